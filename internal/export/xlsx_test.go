package export

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"interview-stt-go/internal/transcript"
	"interview-stt-go/internal/types"
)

func interview(t *testing.T) *types.Interview {
	t.Helper()
	a := "SPEAKER_0"
	tr := transcript.Transcript{
		Segments: []transcript.Segment{
			{ID: 0, Start: 3725.4, End: 3727, Speaker: &a, Words: []transcript.Word{
				{Word: " Bonjour", Probability: 0.9}, {Word: " Paul", Probability: 0.7},
			}},
			{ID: 1, Start: 3727, End: 3728, Words: []transcript.Word{{Word: "oui", Probability: 1}}},
		},
		Speakers: transcript.NewSpeakerSet(a),
	}
	raw, err := json.Marshal(tr)
	require.NoError(t, err)
	names, err := json.Marshal(types.Speakers{"SPEAKER_0": "Alice"})
	require.NoError(t, err)
	return &types.Interview{ID: uuid.New(), Status: types.StatusTranscripted, Transcript: raw, Speakers: names}
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, interview(t)))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetTranscript, SheetTimecoded, SheetSpeakers}, f.GetSheetList())

	rows, err := f.GetRows(SheetTranscript)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"0", "Alice", "3725.4", "3727", "Bonjour Paul", "0.8"}, rows[1])

	lines, err := f.GetRows(SheetTimecoded)
	require.NoError(t, err)
	assert.Equal(t, "[01:02:05] Alice: Bonjour Paul", lines[0][0])
	assert.Equal(t, "[01:02:07] oui", lines[1][0])

	speakers, err := f.GetRows(SheetSpeakers)
	require.NoError(t, err)
	require.Len(t, speakers, 3)
	assert.Equal(t, "Alice", speakers[1][1])
}

func TestWriteWithoutTranscript(t *testing.T) {
	err := Write(&bytes.Buffer{}, &types.Interview{ID: uuid.New(), Status: types.StatusProcessing})
	assert.ErrorIs(t, err, ErrNoTranscript)
}

func TestTimecode(t *testing.T) {
	assert.Equal(t, "00:00:00", Timecode(-1))
	assert.Equal(t, "00:01:01", Timecode(61.9))
	assert.Equal(t, "10:00:00", Timecode(36000))
}
