// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/calmline/calmline/internal/domain"
)

// Repository defines the interface for persisting users, counselors,
// sessions, onboarding questions, and emotion score records.
//
// Lookups return (nil, nil) when the row does not exist; callers decide
// whether a missing row is an error. Conditional updates return a
// domain.ConflictError when the guarded state no longer holds.
type Repository interface {
	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateUserProfile stores the nickname and onboarding-finished flag.
	UpdateUserProfile(ctx context.Context, userID, nickname string, finishedOnboarding bool) error

	// AssignCounselor points a user at a counselor.
	AssignCounselor(ctx context.Context, userID string, counselorID int64) error

	// GetCounselor retrieves a counselor by ID.
	GetCounselor(ctx context.Context, id int64) (*domain.Counselor, error)

	// ListCounselors returns all counselors ordered by ID.
	ListCounselors(ctx context.Context) ([]*domain.Counselor, error)

	// CreateCounselor inserts a counselor and fills in its ID.
	CreateCounselor(ctx context.Context, c *domain.Counselor) error

	// CreateSession inserts a session and fills in its ID.
	CreateSession(ctx context.Context, s *domain.Session) error

	// GetSession retrieves a session by ID.
	GetSession(ctx context.Context, id int64) (*domain.Session, error)

	// OpenSessionsForUser returns the user's open sessions, newest first.
	OpenSessionsForUser(ctx context.Context, userID string) ([]*domain.Session, error)

	// ClosedSessionsForUser returns the user's closed sessions, oldest first.
	ClosedSessionsForUser(ctx context.Context, userID string) ([]*domain.Session, error)

	// OpenSessionsStartedBefore returns every open session, any user,
	// whose start time is before the cutoff. Used by the stale sweeper.
	OpenSessionsStartedBefore(ctx context.Context, cutoff time.Time) ([]*domain.Session, error)

	// CloseSession transitions an open session to closed and stamps the
	// end time. Returns domain.ConflictError if the session is not open.
	CloseSession(ctx context.Context, sessionID int64, endTime time.Time) error

	// AdvanceSessionTurn atomically increments the turn counter of an
	// open session, overwriting the active duration when one is supplied,
	// and returns the updated session. Returns domain.ConflictError when
	// the session is missing or closed. The increment is conditional on
	// status=open so two racing turns cannot lose an update.
	AdvanceSessionTurn(ctx context.Context, sessionID int64, activeDurationSeconds *int) (*domain.Session, error)

	// IncrementOvertimeReminder bumps the overtime reminder counter.
	IncrementOvertimeReminder(ctx context.Context, sessionID int64) error

	// CreateQuestionBatch persists a user's full question set in one
	// transaction. Nothing is persisted if any insert fails.
	CreateQuestionBatch(ctx context.Context, userID string, questions []*domain.OnboardingQuestion) error

	// QuestionsForUser returns all questions ascending by number.
	QuestionsForUser(ctx context.Context, userID string) ([]*domain.OnboardingQuestion, error)

	// FirstUnansweredQuestion returns the lowest-numbered unanswered
	// question, or nil when every question is answered or none exist.
	FirstUnansweredQuestion(ctx context.Context, userID string) (*domain.OnboardingQuestion, error)

	// CountQuestions returns how many questions exist for the user.
	CountQuestions(ctx context.Context, userID string) (int, error)

	// AnswerQuestion stamps an answer on a question that is still
	// unanswered. Returns domain.NotFoundError if the question does not
	// exist and domain.ConflictError if it was already answered.
	AnswerQuestion(ctx context.Context, userID string, questionNumber int, answer string, answeredAt time.Time) error

	// InsertEmoScore appends a score record and fills in its ID.
	// Records are never updated or deleted.
	InsertEmoScore(ctx context.Context, rec *domain.EmoScoreRecord) error

	// LatestEmoScore returns the newest record for the user, optionally
	// filtered by source.
	LatestEmoScore(ctx context.Context, userID string, source *domain.EmoScoreSource) (*domain.EmoScoreRecord, error)

	// EmoScoreHistory returns all records for the user, newest first,
	// optionally filtered by source.
	EmoScoreHistory(ctx context.Context, userID string, source *domain.EmoScoreSource) ([]*domain.EmoScoreRecord, error)

	// GetEmoScore retrieves one record scoped to its owner.
	GetEmoScore(ctx context.Context, id int64, userID string) (*domain.EmoScoreRecord, error)

	// GetUserContext returns the personalization text for a user, or ""
	// when none has been generated yet.
	GetUserContext(ctx context.Context, userID string) (string, error)

	// UpsertUserContext stores the personalization text for a user.
	UpsertUserContext(ctx context.Context, userID, text string) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
