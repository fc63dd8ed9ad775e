package tokenizer

import "testing"

func TestWordTokenizer(t *testing.T) {
	cases := map[string]int{
		"":                      0,
		"hello world":           2,
		"linear regression, ok": 4,
		"don't stop":            2,
		"价格 model":              3,
	}
	for in, want := range cases {
		if got := (WordTokenizer{}).CountTokens(in); got != want {
			t.Errorf("CountTokens(%q) = %d, want %d", in, got, want)
		}
	}
}
