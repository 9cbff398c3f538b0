package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interview-stt-go/internal/transcript"
	"interview-stt-go/internal/types"
)

func TestAggregate(t *testing.T) {
	a, b := "SPEAKER_0", "SPEAKER_1"
	tr := &transcript.Transcript{
		Segments: []transcript.Segment{
			{ID: 0, Start: 0, End: 3, Speaker: &a, Words: []transcript.Word{{Probability: 1}, {Probability: 0.4}}},
			{ID: 1, Start: 3, End: 4, Speaker: &b, Words: []transcript.Word{{Probability: 0.8}}},
			{ID: 2, Start: 4, End: 4, Words: []transcript.Word{}},
		},
		Speakers: transcript.NewSpeakerSet(a, b),
	}

	got := Aggregate(tr, types.Speakers{"SPEAKER_1": "Bob"})

	assert.Equal(t, 3, got.TotalWords)
	assert.Equal(t, 1, got.LowConfWords)
	assert.InDelta(t, 4.0, got.TotalTalkS, 1e-9)
	require.Len(t, got.Speakers, 3)

	s0 := got.Speakers[0]
	assert.Equal(t, "SPEAKER_0", s0.Name)
	assert.Equal(t, 2, s0.Words)
	assert.InDelta(t, 0.7, s0.MeanConfidence, 1e-9)
	assert.InDelta(t, 0.75, s0.TalkShare, 1e-9)

	assert.Equal(t, "Bob", got.Speakers[1].Name)
	assert.Equal(t, Unattributed, got.Speakers[2].Label)
	assert.Zero(t, got.Speakers[2].MeanConfidence)
}
