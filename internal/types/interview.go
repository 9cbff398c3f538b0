package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"interview-stt-go/internal/transcript"
)

// InterviewStatus is the lifecycle state of an interview record.
type InterviewStatus string

const (
	StatusUploaded     InterviewStatus = "uploaded"
	StatusProcessing   InterviewStatus = "processing"
	StatusTranscripted InterviewStatus = "transcripted"
	// StatusFailed is reached only after the retry budget of a run is spent.
	StatusFailed InterviewStatus = "failed"
)

func (s InterviewStatus) rank() int {
	switch s {
	case StatusUploaded:
		return 0
	case StatusProcessing:
		return 1
	case StatusTranscripted, StatusFailed:
		return 2
	default:
		return -1
	}
}

func (s InterviewStatus) Valid() bool { return s.rank() >= 0 }

// Terminal reports whether no further pipeline transition is allowed.
func (s InterviewStatus) Terminal() bool { return s.rank() == 2 }

// CanAdvanceTo enforces forward-only transitions. Re-entering processing is
// allowed so a redelivered job can run again.
func (s InterviewStatus) CanAdvanceTo(next InterviewStatus) bool {
	if !s.Valid() || !next.Valid() || s.Terminal() {
		return false
	}
	if next == StatusProcessing {
		return s == StatusUploaded || s == StatusProcessing
	}
	if next.Terminal() {
		return s == StatusProcessing
	}
	return false
}

// TranscriptSource identifies the ASR engine that produced a transcript.
type TranscriptSource string

const (
	SourceWhisper  TranscriptSource = "whisper"
	SourceWhisperX TranscriptSource = "whisperx"
	SourceWordcab  TranscriptSource = "wordcab"
)

var knownSources = []TranscriptSource{SourceWhisper, SourceWhisperX, SourceWordcab}

func ParseTranscriptSource(s string) (TranscriptSource, error) {
	v := TranscriptSource(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range knownSources {
		if v == k {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown transcript source %q (want one of %v)", s, knownSources)
}

// Speakers maps a canonical speaker label to a display name.
type Speakers map[string]string

// Interview is the persisted interview record.
type Interview struct {
	ID                  uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	CreatorID           uuid.UUID         `gorm:"type:uuid;index;not null" json:"creator_id"`
	Name                string            `gorm:"not null" json:"name"`
	AudioLocation       string            `json:"audio_location"`
	AudioDuration       float64           `json:"audio_duration"`
	Status              InterviewStatus   `gorm:"type:varchar(32);index;not null" json:"status"`
	Transcript          datatypes.JSON    `json:"transcript,omitempty"`
	TranscriptSource    *TranscriptSource `gorm:"type:varchar(32)" json:"transcript_source,omitempty"`
	TranscriptDurationS *int              `json:"transcript_duration_s,omitempty"`
	TranscriptTS        *time.Time        `json:"transcript_ts,omitempty"`
	Speakers            datatypes.JSON    `json:"speakers,omitempty"`
	RunToken            *string           `gorm:"type:varchar(36)" json:"-"`
	RunAttempts         int               `gorm:"not null" json:"run_attempts"`
	FailureReason       *string           `json:"failure_reason,omitempty"`
	UpdateTS            time.Time         `gorm:"autoUpdateTime" json:"update_ts"`
	UploadTS            time.Time         `gorm:"autoCreateTime" json:"upload_ts"`
}

func (Interview) TableName() string { return "interviews" }

// CanonicalTranscript decodes the stored transcript, nil when none was stored.
func (i *Interview) CanonicalTranscript() (*transcript.Transcript, error) {
	if len(i.Transcript) == 0 || string(i.Transcript) == "null" {
		return nil, nil
	}
	var t transcript.Transcript
	if err := json.Unmarshal(i.Transcript, &t); err != nil {
		return nil, fmt.Errorf("decode transcript of interview %s: %w", i.ID, err)
	}
	return &t, nil
}

// SpeakerNames decodes the speaker display-name map; never nil.
func (i *Interview) SpeakerNames() (Speakers, error) {
	out := Speakers{}
	if len(i.Speakers) == 0 || string(i.Speakers) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(i.Speakers, &out); err != nil {
		return nil, fmt.Errorf("decode speakers of interview %s: %w", i.ID, err)
	}
	return out, nil
}

// InterviewUpdate is a partial update; nil fields are left untouched.
//
// Speakers is merged into the stored map. A non-nil empty map clears it.
// ExpectRunToken turns the update into a fenced write that only applies when
// the stored run token still matches.
type InterviewUpdate struct {
	Name                *string
	Speakers            Speakers
	Status              *InterviewStatus
	Transcript          *transcript.Transcript
	TranscriptSource    *TranscriptSource
	TranscriptDurationS *int
	TranscriptTS        *time.Time
	RunToken            *string
	RunAttempts         *int
	FailureReason       *string
	ExpectRunToken      *string
}
