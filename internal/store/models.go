package store

import (
	"errors"
	"time"
)

// Status represents the recorded lifecycle of a session.
//
// A session never records "crashed": a crash by definition never gets the
// chance to write a status. An interrupted session is one still marked
// active whose process is gone.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusDiscarded Status = "discarded"
)

// ErrNotFound is returned when a requested session does not exist.
var ErrNotFound = errors.New("session not found")

// Session is one sitting of the battery for one participant.
type Session struct {
	ID            string
	ParticipantID string
	Status        Status
	TaskQueue     []string
	CurrentTask   string
	CrashCount    int
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

// Trial is one recorded trial of one task within a session.
type Trial struct {
	SessionID      string
	TaskName       string
	TrialNumber    int
	Stimulus       string
	Expected       string
	Response       string
	Correct        bool
	ReactionTimeMS float64
	VoiceOnsetMS   float64
	RecordedAt     time.Time
}

// Export records a completed results file write for one task of a session.
type Export struct {
	SessionID  string
	TaskName   string
	FilePath   string
	Checksum   string
	TrialCount int
	ExportedAt time.Time
}

func validStatus(status Status) bool {
	switch status {
	case StatusActive, StatusCompleted, StatusDiscarded:
		return true
	}
	return false
}
