package domain

import (
	"time"
)

// QuestionType distinguishes multiple-choice from free-text questions.
type QuestionType string

const (
	// QuestionChoice is answered by picking one of 2-4 options.
	QuestionChoice QuestionType = "choice"
	// QuestionText is answered with free text.
	QuestionText QuestionType = "text"
)

const (
	// MinBatchQuestions is the smallest acceptable intake batch.
	MinBatchQuestions = 5
	// MaxBatchQuestions is the largest acceptable intake batch.
	MaxBatchQuestions = 10
	// MinChoiceOptions is the fewest options a choice question may carry.
	MinChoiceOptions = 2
	// MaxChoiceOptions is the most options a choice question may carry.
	MaxChoiceOptions = 4
)

// OnboardingQuestion is one intake question for a user. A user's full
// question set is created in one batch before any answer is accepted;
// QuestionNumber runs contiguously from 1 in batch order.
type OnboardingQuestion struct {
	UserID         string       `json:"user_id"`
	QuestionNumber int          `json:"question_number"`
	Text           string       `json:"text"`
	Type           QuestionType `json:"type"`
	Options        []string     `json:"options,omitempty"`
	Answer         *string      `json:"answer,omitempty"`
	AnsweredAt     *time.Time   `json:"answered_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Answered returns true once the question carries an answer.
func (q *OnboardingQuestion) Answered() bool {
	return q.AnsweredAt != nil
}

// Validate checks a generated question before persistence.
func (q *OnboardingQuestion) Validate() error {
	if q.Text == "" {
		return Validationf("question %d has empty text", q.QuestionNumber)
	}
	switch q.Type {
	case QuestionText:
		if len(q.Options) > 0 {
			return Validationf("question %d is free-text but carries options", q.QuestionNumber)
		}
	case QuestionChoice:
		if len(q.Options) < MinChoiceOptions {
			return Validationf("question %d is a choice question with fewer than %d options", q.QuestionNumber, MinChoiceOptions)
		}
		if len(q.Options) > MaxChoiceOptions {
			return Validationf("question %d has %d options, the maximum is %d", q.QuestionNumber, len(q.Options), MaxChoiceOptions)
		}
	default:
		return Validationf("question %d has invalid type %q", q.QuestionNumber, q.Type)
	}
	return nil
}
