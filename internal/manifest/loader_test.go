package manifest

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeManifest(t *testing.T, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, r := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cellRef, &r))
	}
	path := filepath.Join(t.TempDir(), "manifest.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestLoad(t *testing.T) {
	user := uuid.New()
	existing := uuid.New()
	path := writeManifest(t, [][]interface{}{
		{"Owner ID", "Interview", "Interview name", "Audio file"},
		{user.String(), existing.String(), "", ""},
		{user.String(), "", "Focus group", "/data/fg.mp3"},
		{"not-a-uuid", "", "", "/data/x.mp3"},
		{user.String(), "", "", ""},
		{"", "", "", ""},
	})

	entries, skipped, err := Load(path)
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, Entry{Row: 2, UserID: user, InterviewID: existing}, entries[0])
	assert.Equal(t, Entry{Row: 3, UserID: user, Name: "Focus group", AudioLocation: "/data/fg.mp3"}, entries[1])

	require.Len(t, skipped, 2)
	assert.Equal(t, 4, skipped[0].Row)
	assert.Equal(t, 5, skipped[1].Row)
}

func TestLoadRejectsMissingColumns(t *testing.T) {
	path := writeManifest(t, [][]interface{}{
		{"Interview", "Audio"},
		{uuid.NewString(), "/a.mp3"},
	})

	_, _, err := Load(path)
	assert.Error(t, err)
}
