// Package manifest reads batch manifests listing the interviews to transcribe.
package manifest

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// Entry is one manifest row. InterviewID is uuid.Nil when the row asks for a
// new interview to be created.
type Entry struct {
	Row           int
	UserID        uuid.UUID
	InterviewID   uuid.UUID
	Name          string
	AudioLocation string
}

// Skipped describes a row that could not be used.
type Skipped struct {
	Row    int
	Reason string
}

type columns struct {
	user, interview, audio, name int
}

// detect finds columns by header heuristics. The first matching header wins.
func detect(header []string) columns {
	c := columns{user: -1, interview: -1, audio: -1, name: -1}
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(l, "user") || strings.Contains(l, "creator") || strings.Contains(l, "owner"):
			if c.user == -1 {
				c.user = i
			}
		case strings.Contains(l, "audio") || strings.Contains(l, "file") || strings.Contains(l, "path") || strings.Contains(l, "record"):
			if c.audio == -1 {
				c.audio = i
			}
		case strings.Contains(l, "interview") && !strings.Contains(l, "name") || l == "id":
			if c.interview == -1 {
				c.interview = i
			}
		case strings.Contains(l, "name") || strings.Contains(l, "title"):
			if c.name == -1 {
				c.name = i
			}
		}
	}
	return c
}

// Load reads the first sheet of an xlsx manifest.
func Load(path string) ([]Entry, []Skipped, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, nil, fmt.Errorf("no data rows")
	}

	cols := detect(rows[0])
	if cols.user == -1 {
		return nil, nil, fmt.Errorf("no user column in header %v", rows[0])
	}
	if cols.interview == -1 && cols.audio == -1 {
		return nil, nil, fmt.Errorf("manifest needs an interview id or an audio column")
	}

	var (
		out     []Entry
		skipped []Skipped
	)
	for i, r := range rows[1:] {
		rowNum := i + 2
		if blank(r) {
			continue
		}
		e := Entry{Row: rowNum}

		userID, err := uuid.Parse(cell(r, cols.user))
		if err != nil {
			skipped = append(skipped, Skipped{Row: rowNum, Reason: fmt.Sprintf("user id: %v", err)})
			continue
		}
		e.UserID = userID

		if raw := cell(r, cols.interview); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				skipped = append(skipped, Skipped{Row: rowNum, Reason: fmt.Sprintf("interview id: %v", err)})
				continue
			}
			e.InterviewID = id
		}
		e.AudioLocation = cell(r, cols.audio)
		e.Name = cell(r, cols.name)

		if e.InterviewID == uuid.Nil && e.AudioLocation == "" {
			skipped = append(skipped, Skipped{Row: rowNum, Reason: "neither interview id nor audio location"})
			continue
		}
		out = append(out, e)
	}
	return out, skipped, nil
}

func cell(r []string, idx int) string {
	if idx < 0 || idx >= len(r) {
		return ""
	}
	return strings.TrimSpace(r[idx])
}

func blank(r []string) bool {
	for _, c := range r {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
