// Package export renders a transcripted interview as an xlsx workbook.
package export

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/xuri/excelize/v2"

	"interview-stt-go/internal/aggregator"
	"interview-stt-go/internal/transcript"
	"interview-stt-go/internal/types"
)

const (
	SheetTranscript = "Transcript"
	SheetTimecoded  = "Timecoded"
	SheetSpeakers   = "Speakers"
)

// ErrNoTranscript is returned for interviews that are not transcripted yet.
var ErrNoTranscript = errors.New("interview has no transcript")

// Workbook builds the export for iv. The caller must close the file.
func Workbook(iv *types.Interview) (*excelize.File, error) {
	tr, err := iv.CanonicalTranscript()
	if err != nil {
		return nil, err
	}
	if tr == nil {
		return nil, ErrNoTranscript
	}
	names, err := iv.SpeakerNames()
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetTranscript); err != nil {
		f.Close()
		return nil, err
	}
	for _, build := range []func(*excelize.File, *transcript.Transcript, types.Speakers) error{
		transcriptSheet, timecodedSheet, speakersSheet,
	} {
		if err := build(f, tr, names); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

// Write streams the workbook for iv to w.
func Write(w io.Writer, iv *types.Interview) error {
	f, err := Workbook(iv)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func transcriptSheet(f *excelize.File, tr *transcript.Transcript, names types.Speakers) error {
	if err := f.SetSheetRow(SheetTranscript, "A1", &[]interface{}{"Segment", "Speaker", "Start", "End", "Text", "Confidence"}); err != nil {
		return err
	}
	for i, seg := range tr.Segments {
		row := []interface{}{seg.ID, speakerName(seg, names), round(seg.Start), round(seg.End), seg.SegmentText(), round(meanProbability(seg))}
		cellRef, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetTranscript, cellRef, &row); err != nil {
			return err
		}
	}
	return f.SetColWidth(SheetTranscript, "E", "E", 80)
}

func timecodedSheet(f *excelize.File, tr *transcript.Transcript, names types.Speakers) error {
	if _, err := f.NewSheet(SheetTimecoded); err != nil {
		return err
	}
	for i, seg := range tr.Segments {
		line := fmt.Sprintf("[%s] %s", Timecode(seg.Start), seg.SegmentText())
		if seg.Speaker != nil {
			line = fmt.Sprintf("[%s] %s: %s", Timecode(seg.Start), speakerName(seg, names), seg.SegmentText())
		}
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetCellStr(SheetTimecoded, cellRef, line); err != nil {
			return err
		}
	}
	return f.SetColWidth(SheetTimecoded, "A", "A", 120)
}

func speakersSheet(f *excelize.File, tr *transcript.Transcript, names types.Speakers) error {
	if _, err := f.NewSheet(SheetSpeakers); err != nil {
		return err
	}
	if err := f.SetSheetRow(SheetSpeakers, "A1", &[]interface{}{"Label", "Name", "Segments", "Words", "Talk time (s)", "Talk share", "Mean confidence"}); err != nil {
		return err
	}
	insight := aggregator.Aggregate(tr, names)
	for i, s := range insight.Speakers {
		row := []interface{}{s.Label, s.Name, s.Segments, s.Words, round(s.TalkTimeS), round(s.TalkShare), round(s.MeanConfidence)}
		cellRef, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetSpeakers, cellRef, &row); err != nil {
			return err
		}
	}
	return nil
}

// Timecode formats seconds as hh:mm:ss.
func Timecode(seconds float64) string {
	s := int(math.Max(0, seconds))
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, s%3600/60, s%60)
}

func speakerName(seg transcript.Segment, names types.Speakers) string {
	if seg.Speaker == nil {
		return ""
	}
	return aggregator.DisplayName(*seg.Speaker, names)
}

func meanProbability(seg transcript.Segment) float64 {
	if len(seg.Words) == 0 {
		return 0
	}
	var sum float64
	for _, w := range seg.Words {
		sum += w.Probability
	}
	return sum / float64(len(seg.Words))
}

func round(v float64) float64 { return math.Round(v*1000) / 1000 }
