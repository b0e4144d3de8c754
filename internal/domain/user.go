// Package domain contains core domain types for the Calmline application.
package domain

import (
	"time"
)

// User represents a person receiving counseling.
type User struct {
	UserID             string    `json:"user_id"`
	Nickname           string    `json:"nickname,omitempty"`
	CounselorID        int64     `json:"counselor_id,omitempty"`
	FinishedOnboarding bool      `json:"finished_onboarding"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// HasCounselor returns true if the user has an assigned counselor.
func (u *User) HasCounselor() bool {
	return u.CounselorID != 0
}

// Counselor is a counselor persona whose style prompt personalizes
// every agent call made on behalf of an assigned user.
type Counselor struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Prompt    string    `json:"prompt,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
