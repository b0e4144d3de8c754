package domain

import (
	"time"
)

// SessionStatus is the lifecycle state of a counseling session.
type SessionStatus string

const (
	// SessionOpen means the session is accepting turns.
	SessionOpen SessionStatus = "open"
	// SessionClosed is the terminal state.
	SessionClosed SessionStatus = "closed"
)

// Session tracks one counseling conversation for a user.
// At most one open session exists per user at any time.
type Session struct {
	ID                    int64         `json:"id"`
	UserID                string        `json:"user_id"`
	Status                SessionStatus `json:"status"`
	StartTime             time.Time     `json:"start_time"`
	EndTime               *time.Time    `json:"end_time,omitempty"`
	ActiveDurationSeconds int           `json:"active_duration_seconds"`
	TurnCount             int           `json:"turn_count"`
	OvertimeReminderCount int           `json:"overtime_reminder_count"`
	ConversationRef       string        `json:"conversation_ref"`
}

// IsOpen returns true if the session still accepts turns.
func (s *Session) IsOpen() bool {
	return s.Status == SessionOpen
}

// StaleAt returns true if an open session started before now-window
// and should be force-closed rather than resumed.
func (s *Session) StaleAt(now time.Time, window time.Duration) bool {
	return s.IsOpen() && s.StartTime.Before(now.Add(-window))
}

// SessionReview is the end-of-session summary produced when a session
// closes.
type SessionReview struct {
	ReviewText string   `json:"review_text"`
	KeyEvents  []string `json:"key_events"`
}
