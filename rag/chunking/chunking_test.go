package chunking

import (
	"strings"
	"testing"
)

func segs(texts ...string) []Segment {
	out := make([]Segment, len(texts))
	for i, text := range texts {
		out[i] = Segment{Text: text, Start: float64(i * 10), End: float64(i*10 + 9)}
	}
	return out
}

func TestChunkGroupsThreeParagraphs(t *testing.T) {
	chunks := New().Chunk("vid", segs("a", "b", "c", "d", "e"))
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	first, second := chunks[0], chunks[1]
	if first.ID != "vid_0" || first.Text != "a b c" || first.Start != 0 || first.End != 29 {
		t.Fatalf("unexpected first chunk %+v", first)
	}
	if second.ID != "vid_1" || second.Ordinal != 1 || second.Text != "d e" || second.Start != 30 || second.End != 49 {
		t.Fatalf("unexpected second chunk %+v", second)
	}
}

func TestChunkRespectsTokenBudget(t *testing.T) {
	long := strings.Repeat("word ", 6)
	chunks := New(WithMaxTokens(8), WithMaxSegments(10)).Chunk("v", segs(long, "two words", "three more words", "x"))
	var got []string
	for _, c := range chunks {
		got = append(got, c.Text)
	}
	want := []string{strings.TrimSpace(long) + " two words", "three more words x"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestChunkOversizedParagraphStandsAlone(t *testing.T) {
	big := strings.Repeat("w ", 20)
	chunks := New(WithMaxTokens(5)).Chunk("v", segs(big, "small"))
	if len(chunks) != 2 {
		t.Fatalf("expected oversized paragraph alone, got %d chunks", len(chunks))
	}
}

func TestChunkSkipsBlankSegments(t *testing.T) {
	chunks := New().Chunk("v", segs(" ", "", "only"))
	if len(chunks) != 1 || chunks[0].Text != "only" || chunks[0].Start != 20 {
		t.Fatalf("unexpected chunks %+v", chunks)
	}
	if got := New().Chunk("v", nil); len(got) != 0 {
		t.Fatalf("expected no chunks")
	}
}
