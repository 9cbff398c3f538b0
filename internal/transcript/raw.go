package transcript

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// RawWord is the common denominator of an engine word. Timing and score are
// absent for words the engine inferred instead of recognizing.
type RawWord struct {
	Word  string
	Start *float64
	End   *float64
	Score *float64
}

// RawSegment is the common denominator of an engine segment or utterance.
type RawSegment struct {
	Start   float64
	End     float64
	Speaker *string
	Words   []RawWord
}

// Raw is implemented by every engine transcript model.
type Raw interface {
	SourceLanguage() string
	SourceText() string
	RawSegments() []RawSegment
}

//
// whisper
//

type WhisperWord struct {
	Word        string   `json:"word"`
	Start       *float64 `json:"start"`
	End         *float64 `json:"end"`
	Probability *float64 `json:"probability"`
}

type WhisperSegment struct {
	ID               int           `json:"id"`
	Seek             int           `json:"seek"`
	Start            float64       `json:"start"`
	End              float64       `json:"end"`
	Text             string        `json:"text"`
	Tokens           []int         `json:"tokens"`
	Temperature      float64       `json:"temperature"`
	AvgLogprob       float64       `json:"avg_logprob"`
	CompressionRatio float64       `json:"compression_ratio"`
	NoSpeechProb     float64       `json:"no_speech_prob"`
	Words            []WhisperWord `json:"words"`
}

type WhisperTranscript struct {
	Language string           `json:"language"`
	Text     string           `json:"text"`
	Segments []WhisperSegment `json:"segments"`
}

func (w *WhisperTranscript) SourceLanguage() string { return w.Language }
func (w *WhisperTranscript) SourceText() string     { return w.Text }

func (w *WhisperTranscript) RawSegments() []RawSegment {
	out := make([]RawSegment, 0, len(w.Segments))
	for _, s := range w.Segments {
		rs := RawSegment{Start: s.Start, End: s.End, Words: make([]RawWord, 0, len(s.Words))}
		for _, wd := range s.Words {
			rs.Words = append(rs.Words, RawWord{Word: wd.Word, Start: wd.Start, End: wd.End, Score: wd.Probability})
		}
		out = append(out, rs)
	}
	return out
}

//
// whisperx
//

type WhisperXWord struct {
	Word    string   `json:"word"`
	Start   *float64 `json:"start"`
	End     *float64 `json:"end"`
	Score   *float64 `json:"score"`
	Speaker *string  `json:"speaker"`
}

type WhisperXSegment struct {
	Start   float64        `json:"start"`
	End     float64        `json:"end"`
	Text    string         `json:"text"`
	Speaker *string        `json:"speaker"`
	Words   []WhisperXWord `json:"words"`
}

type WhisperXTranscript struct {
	Language     string            `json:"language,omitempty"`
	Segments     []WhisperXSegment `json:"segments"`
	WordSegments []WhisperXWord    `json:"word_segments"`
}

func (w *WhisperXTranscript) SourceLanguage() string { return w.Language }

// SourceText is empty: whisperx does not emit a running text.
func (w *WhisperXTranscript) SourceText() string { return "" }

func (w *WhisperXTranscript) RawSegments() []RawSegment {
	out := make([]RawSegment, 0, len(w.Segments))
	for _, s := range w.Segments {
		rs := RawSegment{Start: s.Start, End: s.End, Speaker: s.Speaker, Words: make([]RawWord, 0, len(s.Words))}
		for _, wd := range s.Words {
			rs.Words = append(rs.Words, RawWord{Word: wd.Word, Start: wd.Start, End: wd.End, Score: wd.Score})
		}
		out = append(out, rs)
	}
	return out
}

//
// wordcab
//

type WordcabWord struct {
	Word  string   `json:"word"`
	Start *float64 `json:"start"`
	End   *float64 `json:"end"`
	Score *float64 `json:"score"`
}

type WordcabUtterance struct {
	Start   float64       `json:"start"`
	End     float64       `json:"end"`
	Text    string        `json:"text"`
	Speaker *int          `json:"speaker"`
	Words   []WordcabWord `json:"words"`
}

type WordcabTranscript struct {
	Utterances     []WordcabUtterance `json:"utterances"`
	Alignment      bool               `json:"alignment"`
	Diarization    bool               `json:"diarization"`
	DualChannel    bool               `json:"dual_channel"`
	SourceLang     string             `json:"source_lang"`
	Timestamps     string             `json:"timestamps"`
	UseBatch       bool               `json:"use_batch"`
	WordTimestamps bool               `json:"word_timestamps"`
}

func (w *WordcabTranscript) SourceLanguage() string { return w.SourceLang }
func (w *WordcabTranscript) SourceText() string     { return "" }

func (w *WordcabTranscript) RawSegments() []RawSegment {
	out := make([]RawSegment, 0, len(w.Utterances))
	for _, u := range w.Utterances {
		rs := RawSegment{Start: u.Start, End: u.End, Words: make([]RawWord, 0, len(u.Words))}
		if u.Speaker != nil {
			label := strconv.Itoa(*u.Speaker)
			rs.Speaker = &label
		}
		for _, wd := range u.Words {
			rs.Words = append(rs.Words, RawWord{Word: wd.Word, Start: wd.Start, End: wd.End, Score: wd.Score})
		}
		out = append(out, rs)
	}
	return out
}

// DecodeWhisper parses the JSON file written by whisper.
func DecodeWhisper(data []byte) (*WhisperTranscript, error) {
	var t WhisperTranscript
	if err := decodeStrictSegments(data, &t, "segments"); err != nil {
		return nil, fmt.Errorf("whisper output: %w", err)
	}
	return &t, nil
}

// DecodeWhisperX parses the JSON file written by whisperx.
func DecodeWhisperX(data []byte) (*WhisperXTranscript, error) {
	var t WhisperXTranscript
	if err := decodeStrictSegments(data, &t, "segments"); err != nil {
		return nil, fmt.Errorf("whisperx output: %w", err)
	}
	return &t, nil
}

// DecodeWordcab parses the JSON body returned by the wordcab service.
func DecodeWordcab(data []byte) (*WordcabTranscript, error) {
	var t WordcabTranscript
	if err := decodeStrictSegments(data, &t, "utterances"); err != nil {
		return nil, fmt.Errorf("wordcab response: %w", err)
	}
	return &t, nil
}

// decodeStrictSegments unmarshals data into v and rejects documents missing
// the segment list, which engines only omit when they failed.
func decodeStrictSegments(data []byte, v any, key string) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if _, ok := probe[key]; !ok {
		return fmt.Errorf("missing %q", key)
	}
	return json.Unmarshal(data, v)
}
