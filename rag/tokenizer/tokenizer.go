// Package tokenizer counts tokens for chunk sizing.
package tokenizer

import (
	"unicode"
)

// Tokenizer counts model tokens in text.
type Tokenizer interface {
	CountTokens(text string) int
}

// WordTokenizer approximates token counts without a model vocabulary:
// runs of letters or digits count as one token, every other non-space rune
// (punctuation, CJK characters) counts as one.
type WordTokenizer struct{}

var _ Tokenizer = WordTokenizer{}

// CountTokens implements Tokenizer.
func (WordTokenizer) CountTokens(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			inWord = false
		case unicode.Is(unicode.Han, r):
			inWord = false
			count++
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'':
			if !inWord {
				count++
				inWord = true
			}
		default:
			inWord = false
			count++
		}
	}
	return count
}
