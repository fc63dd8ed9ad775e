// Package preprocess normalises transcript text, queries and web snippets
// before they are embedded.
package preprocess

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

var (
	reSpaces   = regexp.MustCompile(`[ \t]+`)
	reNewlines = regexp.MustCompile(`\n{3,}`)
	reWord     = regexp.MustCompile(`[\p{L}\p{N}']+`)
	reEllipsis = regexp.MustCompile(`\s*(\.\.\.|…)\s*$`)

	fixes = strings.NewReplacer(
		"ﬁ", "fi", "ﬂ", "fl",
		"—", "-", "–", "-",
		"·", ".", "•", "-",
		"\u00a0", " ",
	)
)

// CleanBasic removes control characters, fixes common transcription and OCR
// artifacts and collapses whitespace.
func CleanBasic(text string) string {
	if text == "" {
		return ""
	}

	b := strings.Map(func(r rune) rune {
		if r == '\n' {
			return r
		}
		if r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)

	b = fixes.Replace(b)
	b = reSpaces.ReplaceAllString(b, " ")
	b = reNewlines.ReplaceAllString(b, "\n\n")

	return strings.TrimSpace(b)
}

// HTMLToText extracts headings, paragraphs and list items from an HTML page.
func HTMLToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	var out []string
	doc.Find("h1,h2,h3,h4,p,li,pre").Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		switch goquery.NodeName(s) {
		case "h1":
			out = append(out, "# "+text)
		case "h2":
			out = append(out, "## "+text)
		case "h3", "h4":
			out = append(out, "### "+text)
		case "li":
			out = append(out, "- "+text)
		default:
			out = append(out, text)
		}
	})
	return strings.Join(out, "\n\n"), nil
}

// CleanSnippet strips inline markup from a search snippet and flattens it to
// a single line. A trailing ellipsis added by the search engine is dropped.
func CleanSnippet(snippet string) string {
	text := snippet
	if strings.ContainsAny(snippet, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(snippet)); err == nil {
			text = doc.Text()
		}
	}
	text = strings.Join(strings.Fields(CleanBasic(text)), " ")
	return reEllipsis.ReplaceAllString(text, "")
}

// RemoveDuplicateParagraphs dedupe by exact paragraph text
func RemoveDuplicateParagraphs(text string) string {
	parts := strings.Split(text, "\n\n")
	seen := map[string]struct{}{}
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return strings.Join(out, "\n\n")
}

// Normalizer prepares text for embedding. Ingestion and querying must use
// the same Normalizer so both sides land in the same space.
type Normalizer struct {
	lower     bool
	stopwords map[string]struct{}
}

// NormalizerOption customises a Normalizer.
type NormalizerOption func(*Normalizer)

// WithLowercase folds text to lower case.
func WithLowercase() NormalizerOption {
	return func(n *Normalizer) {
		n.lower = true
	}
}

// WithStopwords removes the given words (case-insensitive). Passing no
// words installs the built-in English list.
func WithStopwords(words ...string) NormalizerOption {
	return func(n *Normalizer) {
		if len(words) == 0 {
			words = englishStopwords
		}
		n.stopwords = make(map[string]struct{}, len(words))
		for _, w := range words {
			n.stopwords[strings.ToLower(w)] = struct{}{}
		}
	}
}

// NewNormalizer builds a Normalizer. With no options it only applies
// CleanBasic.
func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize cleans text and applies the configured folding. If stopword
// removal would leave nothing, the cleaned text is returned unchanged.
func (n *Normalizer) Normalize(text string) string {
	out := CleanBasic(text)
	if n == nil {
		return out
	}
	if n.lower {
		out = strings.ToLower(out)
	}
	if len(n.stopwords) == 0 {
		return out
	}
	words := reWord.FindAllString(out, -1)
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if _, stop := n.stopwords[strings.ToLower(w)]; stop {
			continue
		}
		kept = append(kept, w)
	}
	if len(kept) == 0 {
		return out
	}
	return strings.Join(kept, " ")
}

var englishStopwords = []string{
	"a", "about", "above", "after", "again", "against", "all", "am", "an", "and",
	"any", "are", "as", "at", "be", "because", "been", "before", "being", "below",
	"between", "both", "but", "by", "can", "did", "do", "does", "doing", "down",
	"during", "each", "few", "for", "from", "further", "had", "has", "have",
	"having", "he", "her", "here", "hers", "herself", "him", "himself", "his",
	"how", "i", "if", "in", "into", "is", "it", "its", "itself", "just", "me",
	"more", "most", "my", "myself", "no", "nor", "not", "now", "of", "off", "on",
	"once", "only", "or", "other", "our", "ours", "ourselves", "out", "over",
	"own", "same", "she", "should", "so", "some", "such", "than", "that", "the",
	"their", "theirs", "them", "themselves", "then", "there", "these", "they",
	"this", "those", "through", "to", "too", "under", "until", "up", "very",
	"was", "we", "were", "what", "when", "where", "which", "while", "who",
	"whom", "why", "will", "with", "would", "you", "your", "yours", "yourself",
	"yourselves",
}
