package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/calmline/calmline/internal/agent"
	"github.com/calmline/calmline/internal/domain"
	"github.com/calmline/calmline/internal/promptcache"
	"github.com/calmline/calmline/internal/store"
	"github.com/google/uuid"
)

// TurnResult is the outcome of one conversation turn. Fallback is true
// when the agent call failed and Reply carries the fixed fallback text;
// the turn counters are committed either way.
type TurnResult struct {
	Reply          string `json:"reply"`
	Fallback       bool   `json:"fallback"`
	FallbackReason string `json:"-"`
	ShouldRemind   bool   `json:"should_remind"`
}

// StartResult is the outcome of starting a session. Opening is nil when
// generating the counselor's opening message failed; the session is
// created regardless.
type StartResult struct {
	Session *domain.Session `json:"session"`
	Opening *TurnResult     `json:"opening,omitempty"`
}

// EndResult carries the end-of-session review.
type EndResult struct {
	SessionID int64                `json:"session_id"`
	Review    domain.SessionReview `json:"review"`
}

// Detail is a session snapshot plus the live reminder decision for open
// sessions.
type Detail struct {
	Session      *domain.Session `json:"session"`
	ShouldRemind bool            `json:"should_remind"`
}

// Service enforces the session lifecycle: at most one open session per
// user, monotonically advancing counters while open, and the overtime
// reminder policy applied on every turn.
type Service struct {
	repo     store.Repository
	chat     agent.Generator
	reviewer agent.Generator
	prompts  *promptcache.Cache

	reminder   ReminderConfig
	staleAfter time.Duration

	now    func() time.Time
	newRef func() string
}

// NewService creates a session service.
func NewService(repo store.Repository, chat, reviewer agent.Generator, prompts *promptcache.Cache, reminder ReminderConfig, staleAfter time.Duration) *Service {
	return &Service{
		repo:       repo,
		chat:       chat,
		reviewer:   reviewer,
		prompts:    prompts,
		reminder:   reminder,
		staleAfter: staleAfter,
		now:        time.Now,
		newRef:     func() string { return "conv-" + uuid.NewString() },
	}
}

// Start opens a new session for the user. Any previously open session
// is force-closed first so the single-open-session invariant holds, and
// the prompt cache entry is dropped so a counselor switch takes effect
// immediately. The counselor's opening message is synthesized with a
// fixed trigger; its failure is logged but does not abort creation.
func (s *Service) Start(ctx context.Context, userID string) (*StartResult, error) {
	now := s.now()

	open, err := s.repo.OpenSessionsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list open sessions: %w", err)
	}
	for _, prev := range open {
		if prev.StaleAt(now, s.staleAfter) {
			slog.Info("closing stale open session", "session_id", prev.ID, "user_id", userID, "started", prev.StartTime)
		} else {
			slog.Warn("force-closing active session before starting a new one", "session_id", prev.ID, "user_id", userID)
		}
		if err := s.repo.CloseSession(ctx, prev.ID, now); err != nil && !domain.IsConflict(err) {
			return nil, fmt.Errorf("close previous session %d: %w", prev.ID, err)
		}
	}

	sess := &domain.Session{
		UserID:          userID,
		Status:          domain.SessionOpen,
		StartTime:       now,
		ConversationRef: s.newRef(),
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	// A fresh session must see the user's current counselor.
	s.prompts.Invalidate(userID)

	slog.Info("session started", "session_id", sess.ID, "user_id", userID)

	opening, err := s.PostTurn(ctx, userID, sess.ID, openingTrigger, nil)
	if err != nil {
		slog.Error("opening message failed", "session_id", sess.ID, "user_id", userID, "error", err)
		opening = nil
	}

	return &StartResult{Session: sess, Opening: opening}, nil
}

// PostTurn records one conversation turn: the counter advance and the
// reminder decision commit before the agent call, so engagement is
// tracked even when the reply fails and falls back.
func (s *Service) PostTurn(ctx context.Context, userID string, sessionID int64, message string, activeDurationSeconds *int) (*TurnResult, error) {
	if message == "" {
		return nil, domain.Validationf("message cannot be empty")
	}

	sess, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsOpen() {
		return nil, domain.Conflictf("session %d is closed", sessionID)
	}

	updated, err := s.repo.AdvanceSessionTurn(ctx, sessionID, activeDurationSeconds)
	if err != nil {
		return nil, err
	}

	remind := ShouldRemind(updated.ActiveDurationSeconds, updated.TurnCount, s.reminder)
	if remind {
		if err := s.repo.IncrementOvertimeReminder(ctx, sessionID); err != nil {
			return nil, err
		}
	}

	slog.Info("turn recorded",
		"session_id", sessionID,
		"user_id", userID,
		"turns", updated.TurnCount,
		"duration_s", updated.ActiveDurationSeconds,
		"remind", remind)

	notice := ""
	if remind {
		notice = reminderNotice
	}
	systemContext := BuildSystemContext(baseInstructions, s.counselorPrompt(ctx, userID), s.userBackground(ctx, userID), notice)

	reply, err := s.chat.Generate(ctx, systemContext, updated.ConversationRef, message)
	if err != nil {
		slog.Error("agent turn reply failed, substituting fallback",
			"session_id", sessionID, "user_id", userID, "error", err)
		return &TurnResult{
			Reply:          fallbackReply,
			Fallback:       true,
			FallbackReason: err.Error(),
			ShouldRemind:   remind,
		}, nil
	}

	return &TurnResult{Reply: reply.Text, ShouldRemind: remind}, nil
}

// End closes an open session and returns the end-of-session review. If
// review generation fails the session stays open and the error
// propagates, so ending can be retried.
func (s *Service) End(ctx context.Context, userID string, sessionID int64) (*EndResult, error) {
	sess, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsOpen() {
		return nil, domain.Conflictf("session %d is already closed", sessionID)
	}

	review, err := s.generateReview(ctx, sess)
	if err != nil {
		return nil, err
	}

	if err := s.repo.CloseSession(ctx, sessionID, s.now()); err != nil {
		return nil, err
	}

	slog.Info("session ended", "session_id", sessionID, "user_id", userID, "key_events", len(review.KeyEvents))

	return &EndResult{SessionID: sessionID, Review: *review}, nil
}

// Active returns the user's open session, or nil when none exists.
func (s *Service) Active(ctx context.Context, userID string) (*domain.Session, error) {
	open, err := s.repo.OpenSessionsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list open sessions: %w", err)
	}
	if len(open) == 0 {
		return nil, nil
	}
	return open[0], nil
}

// History returns the user's closed sessions, oldest first.
func (s *Service) History(ctx context.Context, userID string) ([]*domain.Session, error) {
	return s.repo.ClosedSessionsForUser(ctx, userID)
}

// Get returns one session with the live reminder decision.
func (s *Service) Get(ctx context.Context, userID string, sessionID int64) (*Detail, error) {
	sess, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	remind := false
	if sess.IsOpen() {
		remind = ShouldRemind(sess.ActiveDurationSeconds, sess.TurnCount, s.reminder)
	}
	return &Detail{Session: sess, ShouldRemind: remind}, nil
}

func (s *Service) ownedSession(ctx context.Context, userID string, sessionID int64) (*domain.Session, error) {
	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	// Ownership mismatches read as not-found so session IDs cannot be probed.
	if sess == nil || sess.UserID != userID {
		return nil, domain.NotFoundf("session %d not found", sessionID)
	}
	return sess, nil
}

// counselorPrompt returns the assigned counselor's style prompt through
// the TTL cache. Store failures degrade to a placeholder so a turn is
// never lost to a personalization read.
func (s *Service) counselorPrompt(ctx context.Context, userID string) string {
	text, err := s.prompts.Get(ctx, userID, func(ctx context.Context) (string, error) {
		return s.loadCounselorPrompt(ctx, userID)
	})
	if err != nil {
		slog.Warn("counselor prompt load failed", "user_id", userID, "error", err)
		return loadFailedText
	}
	return text
}

func (s *Service) loadCounselorPrompt(ctx context.Context, userID string) (string, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if user == nil || !user.HasCounselor() {
		return noCounselorPrompt, nil
	}
	counselor, err := s.repo.GetCounselor(ctx, user.CounselorID)
	if err != nil {
		return "", err
	}
	if counselor == nil || counselor.Prompt == "" {
		return noCounselorPrompt, nil
	}
	return counselor.Prompt, nil
}

func (s *Service) userBackground(ctx context.Context, userID string) string {
	text, err := s.repo.GetUserContext(ctx, userID)
	if err != nil {
		slog.Warn("user context load failed", "user_id", userID, "error", err)
		return loadFailedText
	}
	if text == "" {
		return noUserBackground
	}
	return text
}

type reviewPayload struct {
	ReviewText string   `json:"review_text" jsonschema:"required"`
	KeyEvents  []string `json:"key_events" jsonschema:"required"`
}

var reviewSchema = agent.SchemaJSON[reviewPayload]()

const reviewInstructions = `You are a clinical clerk summarizing a counseling conversation that has
just ended. Write a concise review of the conversation addressed to the
client, and list the key events or themes that came up. Reply with a
single JSON object matching this schema, and nothing else:`

func (s *Service) generateReview(ctx context.Context, sess *domain.Session) (*domain.SessionReview, error) {
	systemContext := reviewInstructions + "\n" + reviewSchema
	reply, err := s.reviewer.Generate(ctx, systemContext, sess.ConversationRef,
		"The session has ended. Produce the review now.")
	if err != nil {
		return nil, &domain.AgentError{Op: "session review", Err: err}
	}

	var payload reviewPayload
	if err := agent.ParseJSONReply(reply.Text, &payload); err != nil {
		return nil, &domain.AgentError{Op: "session review", Err: err}
	}
	if payload.ReviewText == "" {
		return nil, &domain.AgentError{Op: "session review", Err: fmt.Errorf("empty review text")}
	}
	if payload.KeyEvents == nil {
		payload.KeyEvents = []string{}
	}
	return &domain.SessionReview{ReviewText: payload.ReviewText, KeyEvents: payload.KeyEvents}, nil
}
