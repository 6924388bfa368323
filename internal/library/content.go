package library

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// WordTimestamp is one aligned word in the combined speech track. Times are
// seconds from the start of the combined file.
type WordTimestamp struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Text is a source document plus its per-text artifacts: the music prompt,
// the downloaded music bed, and the word timestamps from the latest alignment.
type Text struct {
	ID                 int64
	Title              string
	Body               string
	MusicPrompt        string
	WordTimestampsJSON string
	HasMusic           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// WordTimestamps decodes the persisted alignment. Empty or invalid payloads
// yield nil.
func (t Text) WordTimestamps() []WordTimestamp {
	trimmed := strings.TrimSpace(t.WordTimestampsJSON)
	if trimmed == "" {
		return nil
	}
	var out []WordTimestamp
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return nil
	}
	return out
}

// SpeechSegment is one narrated chunk of a text. Audio is the raw encoded
// payload; TrailingSilence records deliberate silence already present at the
// end of the clip.
type SpeechSegment struct {
	ID              int64
	TextID          int64
	Sequence        int
	Audio           []byte
	DurationSeconds float64
	TrailingSilence float64
	CreatedAt       time.Time
}

// SoundEffect is a generated clip cued against word positions in a text.
// StartTime/EndTime hold resolved timeline seconds once alignment has run;
// they are nil until then.
type SoundEffect struct {
	ID                int64
	TextID            int64
	Name              string
	Prompt            string
	StartWord         string
	EndWord           string
	StartWordPosition *int
	EndWordPosition   *int
	StartTime         *float64
	EndTime           *float64
	Rank              int
	Audio             []byte
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasAudio reports whether generated audio has been stored for the effect.
func (e SoundEffect) HasAudio() bool {
	return len(e.Audio) > 0
}

// JobType identifies the kind of asynchronous generation work a webhook
// callback refers to.
type JobType string

const (
	JobSoundEffect     JobType = "sound_effect"
	JobBackgroundMusic JobType = "background_music"
)

// ParseJobType converts a string into a known JobType.
func ParseJobType(value string) (JobType, bool) {
	switch JobType(strings.ToLower(strings.TrimSpace(value))) {
	case JobSoundEffect:
		return JobSoundEffect, true
	case JobBackgroundMusic:
		return JobBackgroundMusic, true
	default:
		return "", false
	}
}

// JobStatus mirrors the provider's prediction lifecycle.
type JobStatus string

const (
	JobStatusStarting   JobStatus = "starting"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCanceled   JobStatus = "canceled"
)

// Terminal reports whether a job status represents a finished prediction.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	default:
		return false
	}
}

// GenerationJob tracks one dispatched prediction. (Type, JobID) is the job
// key: JobID is the effect ID for sound effects and the text ID for
// background music.
type GenerationJob struct {
	ID           int64
	Type         JobType
	JobID        int64
	TextID       int64
	PredictionID string
	Status       JobStatus
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Key returns the canonical job key string used in logs and webhook paths.
func (j GenerationJob) Key() string {
	return JobKey(j.Type, j.JobID)
}

// JobKey formats a (type, id) pair as the canonical job key string.
func JobKey(jobType JobType, jobID int64) string {
	return fmt.Sprintf("%s_%d", jobType, jobID)
}
