// Package transcript holds the engine-specific raw transcript models, the
// canonical transcript model and the normalizer converting one into the other.
package transcript

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Word is a canonical word with timing in seconds and a probability in [0,1].
type Word struct {
	Word        string  `json:"word"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Probability float64 `json:"probability"`
}

// Segment is a contiguous span of speech. ID equals its index in the transcript.
type Segment struct {
	ID      int     `json:"id"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Words   []Word  `json:"words"`
	Speaker *string `json:"speaker"`
}

// Transcript is the engine-agnostic transcript stored on an interview.
type Transcript struct {
	Language *string    `json:"language"`
	Text     string     `json:"text"`
	Segments []Segment  `json:"segments"`
	Speakers SpeakerSet `json:"speakers"`
}

// SpeakerSet is a set of canonical speaker labels. It serializes as a sorted
// JSON array so identical transcripts always encode to identical bytes.
type SpeakerSet map[string]struct{}

func NewSpeakerSet(labels ...string) SpeakerSet {
	s := make(SpeakerSet, len(labels))
	for _, l := range labels {
		s.Add(l)
	}
	return s
}

func (s SpeakerSet) Add(label string) { s[label] = struct{}{} }

func (s SpeakerSet) Has(label string) bool {
	_, ok := s[label]
	return ok
}

// Sorted returns the labels in lexical order.
func (s SpeakerSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func (s SpeakerSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *SpeakerSet) UnmarshalJSON(data []byte) error {
	var labels []string
	if err := json.Unmarshal(data, &labels); err != nil {
		return fmt.Errorf("speakers: %w", err)
	}
	*s = NewSpeakerSet(labels...)
	return nil
}

// Validate checks the canonical invariants: sequential segment ids, ordered
// word timing and probabilities within [0,1].
func (t *Transcript) Validate() error {
	for i, seg := range t.Segments {
		if seg.ID != i {
			return fmt.Errorf("segment %d has id %d", i, seg.ID)
		}
		if seg.Speaker != nil && !t.Speakers.Has(*seg.Speaker) {
			return fmt.Errorf("segment %d speaker %q missing from speaker set", i, *seg.Speaker)
		}
		for j, w := range seg.Words {
			if w.Start > w.End {
				return fmt.Errorf("segment %d word %d: start %.3f after end %.3f", i, j, w.Start, w.End)
			}
			if w.Probability < 0 || w.Probability > 1 {
				return fmt.Errorf("segment %d word %d: probability %f outside [0,1]", i, j, w.Probability)
			}
		}
	}
	return nil
}

// SegmentText joins the trimmed word tokens of a segment with single spaces.
func (s Segment) SegmentText() string {
	parts := make([]string, 0, len(s.Words))
	for _, w := range s.Words {
		if t := strings.TrimSpace(w.Word); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
