package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	serrors "github.com/sweetpotato0/sensei/errors"
	"github.com/sweetpotato0/sensei/rag/chunking"
)

// transcript mirrors the subset of the speech-to-text response we read:
// results.channels[0].alternatives[0].paragraphs.paragraphs[].
type transcript struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
				Paragraphs struct {
					Paragraphs []struct {
						Start     float64 `json:"start"`
						End       float64 `json:"end"`
						Sentences []struct {
							Text string `json:"text"`
						} `json:"sentences"`
					} `json:"paragraphs"`
				} `json:"paragraphs"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// ParseTranscript reads a speech-to-text JSON document and returns one
// segment per paragraph, sentences joined by a space.
func ParseTranscript(r io.Reader) ([]chunking.Segment, error) {
	var doc transcript
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode transcript: %w: %w", serrors.ErrInvalidInput, err)
	}
	if len(doc.Results.Channels) == 0 || len(doc.Results.Channels[0].Alternatives) == 0 {
		return nil, fmt.Errorf("decode transcript: %w: no channels or alternatives", serrors.ErrInvalidInput)
	}
	alt := doc.Results.Channels[0].Alternatives[0]

	segments := make([]chunking.Segment, 0, len(alt.Paragraphs.Paragraphs))
	for _, p := range alt.Paragraphs.Paragraphs {
		parts := make([]string, 0, len(p.Sentences))
		for _, s := range p.Sentences {
			if text := strings.TrimSpace(s.Text); text != "" {
				parts = append(parts, text)
			}
		}
		if len(parts) == 0 {
			continue
		}
		segments = append(segments, chunking.Segment{
			Text:  strings.Join(parts, " "),
			Start: p.Start,
			End:   p.End,
		})
	}
	if len(segments) == 0 && strings.TrimSpace(alt.Transcript) != "" {
		// transcripts produced without paragraph detection
		segments = append(segments, chunking.Segment{Text: strings.TrimSpace(alt.Transcript)})
	}
	return segments, nil
}
