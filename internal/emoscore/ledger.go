// Package emoscore maintains the append-only emotional score time
// series and derives per-dimension change ratios at record time.
package emoscore

import (
	"context"
	"log/slog"
	"time"

	"github.com/calmline/calmline/internal/domain"
	"github.com/calmline/calmline/internal/store"
)

const (
	minScore = 1
	maxScore = 100
)

// Ledger appends emotion score snapshots and serves reads. Records are
// never mutated or deleted after creation.
type Ledger struct {
	repo store.Repository
	now  func() time.Time
}

// NewLedger creates a ledger over the given repository.
func NewLedger(repo store.Repository) *Ledger {
	return &Ledger{repo: repo, now: time.Now}
}

// Record appends one assessment. Deltas are computed against the single
// most recent prior record for the same user, any source, per dimension
// independently; they are derived here once and never recomputed.
func (l *Ledger) Record(ctx context.Context, userID string, scores domain.EmoScores, source domain.EmoScoreSource, sessionID *int64) (*domain.EmoScoreRecord, error) {
	if err := validateScores(scores); err != nil {
		return nil, err
	}

	switch source {
	case domain.SourceOnboarding:
		if sessionID != nil {
			return nil, domain.Validationf("onboarding scores cannot reference a session")
		}
	case domain.SourceSession:
		if sessionID == nil {
			return nil, domain.Validationf("session-sourced scores require a session id")
		}
		sess, err := l.repo.GetSession(ctx, *sessionID)
		if err != nil {
			return nil, err
		}
		if sess == nil || sess.UserID != userID {
			return nil, domain.NotFoundf("session %d not found", *sessionID)
		}
	default:
		return nil, domain.Validationf("invalid score source %q", source)
	}

	previous, err := l.repo.LatestEmoScore(ctx, userID, nil)
	if err != nil {
		return nil, err
	}

	rec := &domain.EmoScoreRecord{
		UserID:    userID,
		Scores:    scores,
		Change:    computeChange(scores, previous),
		Source:    source,
		SessionID: sessionID,
		CreatedAt: l.now(),
	}

	if err := l.repo.InsertEmoScore(ctx, rec); err != nil {
		return nil, err
	}

	slog.Info("emotion score recorded", "user_id", userID, "score_id", rec.ID, "source", source)
	return rec, nil
}

// Latest returns the user's newest record, optionally filtered by
// source, or nil when none exists.
func (l *Ledger) Latest(ctx context.Context, userID string, source *domain.EmoScoreSource) (*domain.EmoScoreRecord, error) {
	return l.repo.LatestEmoScore(ctx, userID, source)
}

// History returns the user's records, newest first.
func (l *Ledger) History(ctx context.Context, userID string, source *domain.EmoScoreSource) ([]*domain.EmoScoreRecord, error) {
	return l.repo.EmoScoreHistory(ctx, userID, source)
}

// ByID returns one record scoped to its owner.
func (l *Ledger) ByID(ctx context.Context, id int64, userID string) (*domain.EmoScoreRecord, error) {
	rec, err := l.repo.GetEmoScore(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domain.NotFoundf("score record %d not found", id)
	}
	return rec, nil
}

func validateScores(scores domain.EmoScores) error {
	if scores.Empty() {
		return domain.Validationf("at least one score dimension is required")
	}
	for name, v := range map[string]*int{
		"stress":     scores.Stress,
		"stable":     scores.Stable,
		"anxiety":    scores.Anxiety,
		"functional": scores.Functional,
	} {
		if v != nil && (*v < minScore || *v > maxScore) {
			return domain.Validationf("%s score %d is outside the %d-%d range", name, *v, minScore, maxScore)
		}
	}
	return nil
}

func computeChange(current domain.EmoScores, previous *domain.EmoScoreRecord) domain.EmoScoreChange {
	if previous == nil {
		return domain.EmoScoreChange{}
	}
	return domain.EmoScoreChange{
		Stress:     changeRatio(current.Stress, previous.Scores.Stress),
		Stable:     changeRatio(current.Stable, previous.Scores.Stable),
		Anxiety:    changeRatio(current.Anxiety, previous.Scores.Anxiety),
		Functional: changeRatio(current.Functional, previous.Scores.Functional),
	}
}

// changeRatio is (current-previous)/previous, nil when either side is
// missing or the previous value is zero.
func changeRatio(current, previous *int) *float64 {
	if current == nil || previous == nil || *previous == 0 {
		return nil
	}
	ratio := float64(*current-*previous) / float64(*previous)
	return &ratio
}
