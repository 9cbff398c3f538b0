package transcript

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptJSONRoundTrip(t *testing.T) {
	lang := "fr"
	spk := "SPEAKER_1"
	in := Transcript{
		Language: &lang,
		Text:     "bonjour à tous",
		Segments: []Segment{
			{ID: 0, Start: 0, End: 1.2, Speaker: &spk, Words: []Word{
				{Word: "bonjour", Start: 0, End: 0.5, Probability: 0.98},
				{Word: "à", Start: 0.5, End: 0.7, Probability: 0.7},
			}},
			{ID: 1, Start: 1.2, End: 2, Words: []Word{}},
		},
		Speakers: NewSpeakerSet(spk),
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Transcript
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
	assert.NoError(t, out.Validate())
}

func TestSpeakerSetEncodesSorted(t *testing.T) {
	data, err := json.Marshal(NewSpeakerSet("SPEAKER_2", "SPEAKER_0", "SPEAKER_1"))
	require.NoError(t, err)
	assert.JSONEq(t, `["SPEAKER_0","SPEAKER_1","SPEAKER_2"]`, string(data))
}

func TestValidate(t *testing.T) {
	spk := "SPEAKER_9"
	bad := []Transcript{
		{Segments: []Segment{{ID: 1}}},
		{Segments: []Segment{{ID: 0, Speaker: &spk}}, Speakers: SpeakerSet{}},
		{Segments: []Segment{{ID: 0, Words: []Word{{Start: 2, End: 1}}}}},
		{Segments: []Segment{{ID: 0, Words: []Word{{Probability: 1.5}}}}},
	}
	for idx, tr := range bad {
		assert.Error(t, tr.Validate(), "case %d", idx)
	}
}

func TestSegmentText(t *testing.T) {
	seg := Segment{Words: []Word{{Word: " Bonjour"}, {Word: ","}, {Word: ""}, {Word: "vous "}}}
	assert.Equal(t, "Bonjour , vous", seg.SegmentText())
}
