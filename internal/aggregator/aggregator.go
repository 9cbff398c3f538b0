package aggregator

import (
	"sort"

	"interview-stt-go/internal/transcript"
	"interview-stt-go/internal/types"
)

// Unattributed labels segments without a speaker.
const Unattributed = "UNKNOWN"

type SpeakerStats struct {
	Label          string  `json:"label"`
	Name           string  `json:"name"`
	Segments       int     `json:"segments"`
	Words          int     `json:"words"`
	TalkTimeS      float64 `json:"talk_time_s"`
	TalkShare      float64 `json:"talk_share"`
	MeanConfidence float64 `json:"mean_confidence"`
}

type Insight struct {
	Speakers     []SpeakerStats `json:"speakers"`
	TotalWords   int            `json:"total_words"`
	TotalTalkS   float64        `json:"total_talk_s"`
	LowConfWords int            `json:"low_confidence_words"`
}

// LowConfidence is the probability under which a word counts as doubtful.
const LowConfidence = 0.5

// Aggregate computes per-speaker statistics. Display names come from names
// and fall back to the label.
func Aggregate(t *transcript.Transcript, names types.Speakers) Insight {
	stats := map[string]*SpeakerStats{}
	probSum := map[string]float64{}
	var out Insight

	for _, seg := range t.Segments {
		label := Unattributed
		if seg.Speaker != nil {
			label = *seg.Speaker
		}
		st, ok := stats[label]
		if !ok {
			st = &SpeakerStats{Label: label, Name: DisplayName(label, names)}
			stats[label] = st
		}
		st.Segments++
		if d := seg.End - seg.Start; d > 0 {
			st.TalkTimeS += d
			out.TotalTalkS += d
		}
		for _, w := range seg.Words {
			st.Words++
			probSum[label] += w.Probability
			if w.Probability < LowConfidence {
				out.LowConfWords++
			}
		}
		out.TotalWords += len(seg.Words)
	}

	out.Speakers = make([]SpeakerStats, 0, len(stats))
	for label, st := range stats {
		if st.Words > 0 {
			st.MeanConfidence = probSum[label] / float64(st.Words)
		}
		if out.TotalTalkS > 0 {
			st.TalkShare = st.TalkTimeS / out.TotalTalkS
		}
		out.Speakers = append(out.Speakers, *st)
	}
	sort.Slice(out.Speakers, func(i, j int) bool { return out.Speakers[i].Label < out.Speakers[j].Label })
	return out
}

// DisplayName resolves a speaker label through the interview's name map.
func DisplayName(label string, names types.Speakers) string {
	if n, ok := names[label]; ok && n != "" {
		return n
	}
	return label
}
