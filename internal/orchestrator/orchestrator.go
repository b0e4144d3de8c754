// Package orchestrator composes the counseling services behind one
// surface the transport layer talks to. It owns no business rules of
// its own beyond counselor assignment.
package orchestrator

import (
	"context"
	"log/slog"

	"github.com/calmline/calmline/internal/domain"
	"github.com/calmline/calmline/internal/emoscore"
	"github.com/calmline/calmline/internal/onboarding"
	"github.com/calmline/calmline/internal/promptcache"
	"github.com/calmline/calmline/internal/session"
	"github.com/calmline/calmline/internal/store"
)

// Orchestrator routes operations to the session, onboarding, and score
// services and handles counselor selection.
type Orchestrator struct {
	sessions *session.Service
	intake   *onboarding.Flow
	scores   *emoscore.Ledger
	repo     store.Repository
	prompts  *promptcache.Cache
}

// New creates an orchestrator.
func New(sessions *session.Service, intake *onboarding.Flow, scores *emoscore.Ledger, repo store.Repository, prompts *promptcache.Cache) *Orchestrator {
	return &Orchestrator{
		sessions: sessions,
		intake:   intake,
		scores:   scores,
		repo:     repo,
		prompts:  prompts,
	}
}

// StartSession opens a new counseling session.
func (o *Orchestrator) StartSession(ctx context.Context, userID string) (*session.StartResult, error) {
	return o.sessions.Start(ctx, userID)
}

// PostTurn records one conversation turn and returns the reply.
func (o *Orchestrator) PostTurn(ctx context.Context, userID string, sessionID int64, message string, activeDurationSeconds *int) (*session.TurnResult, error) {
	return o.sessions.PostTurn(ctx, userID, sessionID, message, activeDurationSeconds)
}

// EndSession closes a session and returns its review.
func (o *Orchestrator) EndSession(ctx context.Context, userID string, sessionID int64) (*session.EndResult, error) {
	return o.sessions.End(ctx, userID, sessionID)
}

// ActiveSession returns the user's open session, or nil.
func (o *Orchestrator) ActiveSession(ctx context.Context, userID string) (*domain.Session, error) {
	return o.sessions.Active(ctx, userID)
}

// SessionHistory returns the user's closed sessions, oldest first.
func (o *Orchestrator) SessionHistory(ctx context.Context, userID string) ([]*domain.Session, error) {
	return o.sessions.History(ctx, userID)
}

// SessionDetail returns one session with the live reminder decision.
func (o *Orchestrator) SessionDetail(ctx context.Context, userID string, sessionID int64) (*session.Detail, error) {
	return o.sessions.Get(ctx, userID, sessionID)
}

// OnboardingState reports the user's intake position.
func (o *Orchestrator) OnboardingState(ctx context.Context, userID string) (*onboarding.State, error) {
	return o.intake.GetState(ctx, userID)
}

// SubmitOnboardingAnswer records one intake answer.
func (o *Orchestrator) SubmitOnboardingAnswer(ctx context.Context, userID string, questionNumber int, answer string) (*onboarding.AnswerOutcome, error) {
	return o.intake.SubmitAnswer(ctx, userID, questionNumber, answer)
}

// RecordEmotionScore appends one assessment to the ledger.
func (o *Orchestrator) RecordEmotionScore(ctx context.Context, userID string, scores domain.EmoScores, source domain.EmoScoreSource, sessionID *int64) (*domain.EmoScoreRecord, error) {
	return o.scores.Record(ctx, userID, scores, source, sessionID)
}

// LatestEmotionScore returns the user's newest score record, or nil.
func (o *Orchestrator) LatestEmotionScore(ctx context.Context, userID string, source *domain.EmoScoreSource) (*domain.EmoScoreRecord, error) {
	return o.scores.Latest(ctx, userID, source)
}

// EmotionScoreHistory returns the user's score records, newest first.
func (o *Orchestrator) EmotionScoreHistory(ctx context.Context, userID string, source *domain.EmoScoreSource) ([]*domain.EmoScoreRecord, error) {
	return o.scores.History(ctx, userID, source)
}

// EmotionScoreByID returns one score record scoped to its owner.
func (o *Orchestrator) EmotionScoreByID(ctx context.Context, id int64, userID string) (*domain.EmoScoreRecord, error) {
	return o.scores.ByID(ctx, id, userID)
}

// Profile returns the user's record.
func (o *Orchestrator) Profile(ctx context.Context, userID string) (*domain.User, error) {
	user, err := o.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.NotFoundf("user %s not found", userID)
	}
	return user, nil
}

// ListCounselors returns every counselor.
func (o *Orchestrator) ListCounselors(ctx context.Context) ([]*domain.Counselor, error) {
	return o.repo.ListCounselors(ctx)
}

// SelectCounselor assigns a counselor to the user and invalidates the
// cached style prompt so the change shows up on the next turn.
func (o *Orchestrator) SelectCounselor(ctx context.Context, userID string, counselorID int64) (*domain.Counselor, error) {
	counselor, err := o.repo.GetCounselor(ctx, counselorID)
	if err != nil {
		return nil, err
	}
	if counselor == nil {
		return nil, domain.NotFoundf("counselor %d not found", counselorID)
	}

	if err := o.repo.AssignCounselor(ctx, userID, counselorID); err != nil {
		return nil, err
	}
	o.prompts.Invalidate(userID)

	slog.Info("counselor selected", "user_id", userID, "counselor_id", counselorID)
	return counselor, nil
}
