package domain

import (
	"time"
)

// EmoScoreSource says which flow produced an emotion score record.
type EmoScoreSource string

const (
	// SourceOnboarding marks the assessment generated at the end of intake.
	SourceOnboarding EmoScoreSource = "onboarding"
	// SourceSession marks a mid- or post-session assessment.
	SourceSession EmoScoreSource = "session"
)

// EmoScores is a partial set of the four score dimensions, each on the
// 1-100 scale. Absent dimensions stay nil.
type EmoScores struct {
	Stress     *int `json:"stress_score,omitempty"`
	Stable     *int `json:"stable_score,omitempty"`
	Anxiety    *int `json:"anxiety_score,omitempty"`
	Functional *int `json:"functional_score,omitempty"`
}

// Empty returns true when no dimension is set.
func (s EmoScores) Empty() bool {
	return s.Stress == nil && s.Stable == nil && s.Anxiety == nil && s.Functional == nil
}

// EmoScoreRecord is one append-only snapshot in a user's emotion score
// time series. Change fields are fractional deltas against the most
// recent prior record for the same user, computed at creation time and
// never recomputed.
type EmoScoreRecord struct {
	ID     int64          `json:"id"`
	UserID string         `json:"user_id"`
	Scores EmoScores      `json:"scores"`
	Change EmoScoreChange `json:"change"`

	Source    EmoScoreSource `json:"source"`
	SessionID *int64         `json:"session_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// EmoScoreChange holds the per-dimension fractional deltas. A nil delta
// means the dimension was missing on either side, or the previous value
// was zero.
type EmoScoreChange struct {
	Stress     *float64 `json:"stress_change,omitempty"`
	Stable     *float64 `json:"stable_change,omitempty"`
	Anxiety    *float64 `json:"anxiety_change,omitempty"`
	Functional *float64 `json:"functional_change,omitempty"`
}
