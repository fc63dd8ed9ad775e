package preprocess

import "testing"

func TestCleanBasic(t *testing.T) {
	in := "so  the\tmodel\x07 is ﬁtted —\n\n\n\nnext"
	want := "so the model is fitted -\n\nnext"
	if got := CleanBasic(in); got != want {
		t.Fatalf("CleanBasic = %q, want %q", got, want)
	}
}

func TestCleanSnippet(t *testing.T) {
	cases := map[string]string{
		"Linear <b>regression</b> predicts price": "Linear regression predicts price",
		"Tom &amp; Jerry\n spans  lines ...":      "Tom & Jerry spans lines",
		"plain text…":                             "plain text",
		"":                                        "",
	}
	for in, want := range cases {
		if got := CleanSnippet(in); got != want {
			t.Errorf("CleanSnippet(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHTMLToText(t *testing.T) {
	html := `<html><body><h1>Title</h1><p>Body text.</p><ul><li>item</li></ul><p> </p></body></html>`
	got, err := HTMLToText(html)
	if err != nil {
		t.Fatalf("HTMLToText error: %v", err)
	}
	want := "# Title\n\nBody text.\n\n- item"
	if got != want {
		t.Fatalf("HTMLToText = %q, want %q", got, want)
	}
}

func TestRemoveDuplicateParagraphs(t *testing.T) {
	got := RemoveDuplicateParagraphs("a\n\nb\n\na\n\n\n\nc")
	if got != "a\n\nb\n\nc" {
		t.Fatalf("unexpected dedupe result %q", got)
	}
}

func TestNormalizer(t *testing.T) {
	t.Run("clean only", func(t *testing.T) {
		if got := NewNormalizer().Normalize("  What  Is  This? "); got != "What Is This?" {
			t.Fatalf("unexpected %q", got)
		}
	})
	t.Run("lowercase and stopwords", func(t *testing.T) {
		n := NewNormalizer(WithLowercase(), WithStopwords())
		got := n.Normalize("What method do we use to predict house price?")
		if got != "method use predict house price" {
			t.Fatalf("unexpected %q", got)
		}
	})
	t.Run("all stopwords keeps text", func(t *testing.T) {
		n := NewNormalizer(WithStopwords("the", "a"))
		if got := n.Normalize("The a"); got != "The a" {
			t.Fatalf("unexpected %q", got)
		}
	})
}
