package transcript

import (
	"fmt"
	"math"
	"strings"
)

// SpeakerPrefix is prepended to raw engine speaker identifiers.
const SpeakerPrefix = "SPEAKER_"

// AnomalyKind names a data-quality problem found while normalizing.
type AnomalyKind string

const (
	AnomalyProbabilityRange AnomalyKind = "probability_out_of_range"
	AnomalyNegativeTime     AnomalyKind = "negative_time"
	AnomalyEndBeforeStart   AnomalyKind = "end_before_start"
	AnomalyNotANumber       AnomalyKind = "not_a_number"
	AnomalyLanguage         AnomalyKind = "invalid_language"
)

// Anomaly records one corrected value. Segment and Word are canonical
// indexes, -1 when the anomaly is transcript-level.
type Anomaly struct {
	Kind    AnomalyKind
	Segment int
	Word    int
	Field   string
	Value   float64
	Detail  string
}

func (a Anomaly) String() string {
	if a.Segment < 0 {
		return fmt.Sprintf("%s: %s", a.Kind, a.Detail)
	}
	return fmt.Sprintf("%s at segment %d word %d (%s=%v)", a.Kind, a.Segment, a.Word, a.Field, a.Value)
}

// seedWord is the accumulator state before the first word of a transcript.
var seedWord = Word{Word: "", Start: 0, End: 0, Probability: 1}

// Normalize converts any engine transcript into the canonical model.
//
// Segment ids are reassigned in document order. Speaker labels are
// canonicalized and collected. Word fields missing in the source inherit the
// value of the previous word, across segment boundaries. Values breaking the
// canonical bounds are corrected and reported as anomalies. The result only
// depends on raw.
func Normalize(raw Raw) (Transcript, []Anomaly) {
	var anomalies []Anomaly
	out := Transcript{
		Text:     raw.SourceText(),
		Segments: []Segment{},
		Speakers: SpeakerSet{},
	}
	if lang, ok := canonicalLanguage(raw.SourceLanguage()); ok {
		out.Language = &lang
	} else if strings.TrimSpace(raw.SourceLanguage()) != "" {
		anomalies = append(anomalies, Anomaly{
			Kind: AnomalyLanguage, Segment: -1, Word: -1, Field: "language",
			Detail: fmt.Sprintf("dropped language %q", raw.SourceLanguage()),
		})
	}

	prev := seedWord
	for i, rs := range raw.RawSegments() {
		seg := Segment{ID: i, Start: rs.Start, End: rs.End, Words: make([]Word, 0, len(rs.Words))}
		if rs.Speaker != nil {
			if label, ok := CanonicalSpeaker(*rs.Speaker); ok {
				out.Speakers.Add(label)
				seg.Speaker = &label
			}
		}
		for j, rw := range rs.Words {
			var found []Anomaly
			prev, found = fillWord(prev, rw, i, j)
			anomalies = append(anomalies, found...)
			seg.Words = append(seg.Words, prev)
		}
		out.Segments = append(out.Segments, seg)
	}
	return out, anomalies
}

// CanonicalSpeaker maps a raw speaker identifier to its canonical label.
// Labels already carrying SpeakerPrefix are kept as is.
func CanonicalSpeaker(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if strings.HasPrefix(raw, SpeakerPrefix) {
		return raw, true
	}
	return SpeakerPrefix + raw, true
}

func canonicalLanguage(raw string) (string, bool) {
	l := strings.ToLower(strings.TrimSpace(raw))
	if len(l) != 2 || l[0] < 'a' || l[0] > 'z' || l[1] < 'a' || l[1] > 'z' {
		return "", false
	}
	return l, true
}

// fillWord merges rw over prev and returns the canonical word, which is also
// the next accumulator value.
func fillWord(prev Word, rw RawWord, seg, idx int) (Word, []Anomaly) {
	var anomalies []Anomaly
	note := func(kind AnomalyKind, field string, v float64) {
		anomalies = append(anomalies, Anomaly{Kind: kind, Segment: seg, Word: idx, Field: field, Value: v})
	}
	take := func(field string, v *float64, dst *float64) {
		if v == nil {
			return
		}
		if math.IsNaN(*v) {
			note(AnomalyNotANumber, field, *v)
			return
		}
		*dst = *v
	}

	w := prev
	w.Word = rw.Word
	take("start", rw.Start, &w.Start)
	take("end", rw.End, &w.End)
	take("score", rw.Score, &w.Probability)

	if w.Probability < 0 || w.Probability > 1 {
		note(AnomalyProbabilityRange, "score", w.Probability)
		w.Probability = math.Min(1, math.Max(0, w.Probability))
	}
	if w.Start < 0 {
		note(AnomalyNegativeTime, "start", w.Start)
		w.Start = 0
	}
	if w.End < 0 {
		note(AnomalyNegativeTime, "end", w.End)
		w.End = 0
	}
	if w.End < w.Start {
		note(AnomalyEndBeforeStart, "end", w.End)
		w.End = w.Start
	}
	return w, anomalies
}
