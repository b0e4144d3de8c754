package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/calmline/calmline/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return repo
}

func TestSQLiteUserRoundtrip(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	missing, err := repo.GetUser(ctx, "nobody")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for missing user, got %+v", missing)
	}

	now := time.Now().Truncate(time.Second)
	user := &domain.User{UserID: "user1", CreatedAt: now, UpdatedAt: now}
	if err := repo.UpsertUser(ctx, user); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}

	got, err := repo.GetUser(ctx, "user1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got == nil || got.UserID != "user1" || got.FinishedOnboarding {
		t.Errorf("Unexpected user %+v", got)
	}

	if err := repo.UpdateUserProfile(ctx, "user1", "Sam", true); err != nil {
		t.Fatalf("UpdateUserProfile failed: %v", err)
	}
	got, _ = repo.GetUser(ctx, "user1")
	if got.Nickname != "Sam" || !got.FinishedOnboarding {
		t.Errorf("Expected updated profile, got %+v", got)
	}

	counselor := &domain.Counselor{Name: "Mora", Prompt: "be gentle", CreatedAt: now}
	if err := repo.CreateCounselor(ctx, counselor); err != nil {
		t.Fatalf("CreateCounselor failed: %v", err)
	}
	if counselor.ID == 0 {
		t.Fatal("Expected counselor ID assigned")
	}
	if err := repo.AssignCounselor(ctx, "user1", counselor.ID); err != nil {
		t.Fatalf("AssignCounselor failed: %v", err)
	}
	got, _ = repo.GetUser(ctx, "user1")
	if got.CounselorID != counselor.ID {
		t.Errorf("Expected counselor %d, got %d", counselor.ID, got.CounselorID)
	}
	if !got.HasCounselor() {
		t.Error("Expected HasCounselor after assignment")
	}

	counselors, err := repo.ListCounselors(ctx)
	if err != nil {
		t.Fatalf("ListCounselors failed: %v", err)
	}
	if len(counselors) != 1 || counselors[0].Prompt != "be gentle" {
		t.Errorf("Unexpected counselors %+v", counselors)
	}
}

func TestSQLiteSessionLifecycle(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	start := time.Now().Truncate(time.Second)

	sess := &domain.Session{
		UserID:          "user1",
		Status:          domain.SessionOpen,
		StartTime:       start,
		ConversationRef: "conv-1",
	}
	if err := repo.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if sess.ID == 0 {
		t.Fatal("Expected session ID assigned")
	}

	// Advance without a duration keeps the stored value.
	updated, err := repo.AdvanceSessionTurn(ctx, sess.ID, nil)
	if err != nil {
		t.Fatalf("AdvanceSessionTurn failed: %v", err)
	}
	if updated.TurnCount != 1 || updated.ActiveDurationSeconds != 0 {
		t.Errorf("Unexpected counters %+v", updated)
	}

	// Advance with a duration overwrites it.
	duration := 90
	updated, err = repo.AdvanceSessionTurn(ctx, sess.ID, &duration)
	if err != nil {
		t.Fatalf("AdvanceSessionTurn failed: %v", err)
	}
	if updated.TurnCount != 2 || updated.ActiveDurationSeconds != 90 {
		t.Errorf("Unexpected counters %+v", updated)
	}

	if err := repo.IncrementOvertimeReminder(ctx, sess.ID); err != nil {
		t.Fatalf("IncrementOvertimeReminder failed: %v", err)
	}
	got, _ := repo.GetSession(ctx, sess.ID)
	if got.OvertimeReminderCount != 1 {
		t.Errorf("Expected reminder count 1, got %d", got.OvertimeReminderCount)
	}

	end := start.Add(10 * time.Minute)
	if err := repo.CloseSession(ctx, sess.ID, end); err != nil {
		t.Fatalf("CloseSession failed: %v", err)
	}
	got, _ = repo.GetSession(ctx, sess.ID)
	if got.IsOpen() || got.EndTime == nil || !got.EndTime.Equal(end) {
		t.Errorf("Unexpected closed session %+v", got)
	}

	// Closed sessions reject further mutation.
	if _, err := repo.AdvanceSessionTurn(ctx, sess.ID, nil); !domain.IsConflict(err) {
		t.Errorf("Expected ConflictError advancing closed session, got %v", err)
	}
	if err := repo.CloseSession(ctx, sess.ID, end); !domain.IsConflict(err) {
		t.Errorf("Expected ConflictError on double close, got %v", err)
	}
	if _, err := repo.AdvanceSessionTurn(ctx, 999, nil); !domain.IsNotFound(err) {
		t.Errorf("Expected NotFoundError for missing session, got %v", err)
	}
}

func TestSQLiteSessionQueries(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Truncate(time.Second)

	mk := func(userID string, start time.Time, status domain.SessionStatus) *domain.Session {
		s := &domain.Session{UserID: userID, Status: status, StartTime: start, ConversationRef: "conv"}
		if err := repo.CreateSession(ctx, s); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
		return s
	}

	stale := mk("user1", base.Add(-48*time.Hour), domain.SessionOpen)
	open := mk("user1", base, domain.SessionOpen)
	mk("user2", base, domain.SessionOpen)

	closedFirst := mk("user1", base.Add(-3*time.Hour), domain.SessionOpen)
	if err := repo.CloseSession(ctx, closedFirst.ID, base.Add(-2*time.Hour)); err != nil {
		t.Fatalf("CloseSession failed: %v", err)
	}
	closedSecond := mk("user1", base.Add(-1*time.Hour), domain.SessionOpen)
	if err := repo.CloseSession(ctx, closedSecond.ID, base); err != nil {
		t.Fatalf("CloseSession failed: %v", err)
	}

	openSessions, err := repo.OpenSessionsForUser(ctx, "user1")
	if err != nil {
		t.Fatalf("OpenSessionsForUser failed: %v", err)
	}
	if len(openSessions) != 2 || openSessions[0].ID != open.ID {
		t.Errorf("Expected newest open session first, got %+v", openSessions)
	}

	closed, err := repo.ClosedSessionsForUser(ctx, "user1")
	if err != nil {
		t.Fatalf("ClosedSessionsForUser failed: %v", err)
	}
	if len(closed) != 2 || closed[0].ID != closedFirst.ID {
		t.Errorf("Expected oldest closed session first, got %+v", closed)
	}

	staleOpen, err := repo.OpenSessionsStartedBefore(ctx, base.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("OpenSessionsStartedBefore failed: %v", err)
	}
	if len(staleOpen) != 1 || staleOpen[0].ID != stale.ID {
		t.Errorf("Expected only the stale session, got %+v", staleOpen)
	}
}

func TestSQLiteQuestions(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	questions := []*domain.OnboardingQuestion{
		{UserID: "user1", QuestionNumber: 1, Text: "Q1", Type: domain.QuestionText, CreatedAt: now},
		{UserID: "user1", QuestionNumber: 2, Text: "Q2", Type: domain.QuestionChoice, Options: []string{"a", "b", "c"}, CreatedAt: now},
		{UserID: "user1", QuestionNumber: 3, Text: "Q3", Type: domain.QuestionText, CreatedAt: now},
		{UserID: "user1", QuestionNumber: 4, Text: "Q4", Type: domain.QuestionText, CreatedAt: now},
		{UserID: "user1", QuestionNumber: 5, Text: "Q5", Type: domain.QuestionText, CreatedAt: now},
	}
	if err := repo.CreateQuestionBatch(ctx, "user1", questions); err != nil {
		t.Fatalf("CreateQuestionBatch failed: %v", err)
	}

	count, err := repo.CountQuestions(ctx, "user1")
	if err != nil {
		t.Fatalf("CountQuestions failed: %v", err)
	}
	if count != 5 {
		t.Errorf("Expected 5 questions, got %d", count)
	}

	all, err := repo.QuestionsForUser(ctx, "user1")
	if err != nil {
		t.Fatalf("QuestionsForUser failed: %v", err)
	}
	if len(all) != 5 || all[1].QuestionNumber != 2 {
		t.Fatalf("Expected ascending question order, got %+v", all)
	}
	if len(all[1].Options) != 3 || all[1].Options[0] != "a" {
		t.Errorf("Expected options roundtrip, got %+v", all[1].Options)
	}

	if err := repo.AnswerQuestion(ctx, "user1", 1, "first", now); err != nil {
		t.Fatalf("AnswerQuestion failed: %v", err)
	}

	next, err := repo.FirstUnansweredQuestion(ctx, "user1")
	if err != nil {
		t.Fatalf("FirstUnansweredQuestion failed: %v", err)
	}
	if next == nil || next.QuestionNumber != 2 {
		t.Errorf("Expected question 2 next, got %+v", next)
	}

	if err := repo.AnswerQuestion(ctx, "user1", 1, "again", now); !domain.IsConflict(err) {
		t.Errorf("Expected ConflictError answering twice, got %v", err)
	}
	if err := repo.AnswerQuestion(ctx, "user1", 42, "hi", now); !domain.IsNotFound(err) {
		t.Errorf("Expected NotFoundError for unknown question, got %v", err)
	}

	answered, _ := repo.QuestionsForUser(ctx, "user1")
	if !answered[0].Answered() || answered[0].Answer == nil || *answered[0].Answer != "first" {
		t.Errorf("Expected stored answer, got %+v", answered[0])
	}

	for i := 2; i <= 5; i++ {
		if err := repo.AnswerQuestion(ctx, "user1", i, "a", now); err != nil {
			t.Fatalf("AnswerQuestion %d failed: %v", i, err)
		}
	}
	next, _ = repo.FirstUnansweredQuestion(ctx, "user1")
	if next != nil {
		t.Errorf("Expected no unanswered question, got %+v", next)
	}
}

func TestSQLiteEmoScores(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Truncate(time.Second)

	stress1, change := 50, 0.2
	first := &domain.EmoScoreRecord{
		UserID:    "user1",
		Scores:    domain.EmoScores{Stress: &stress1},
		Source:    domain.SourceOnboarding,
		CreatedAt: base,
	}
	if err := repo.InsertEmoScore(ctx, first); err != nil {
		t.Fatalf("InsertEmoScore failed: %v", err)
	}
	if first.ID == 0 {
		t.Fatal("Expected score ID assigned")
	}

	sid := int64(7)
	stress2 := 60
	second := &domain.EmoScoreRecord{
		UserID:    "user1",
		Scores:    domain.EmoScores{Stress: &stress2},
		Change:    domain.EmoScoreChange{Stress: &change},
		Source:    domain.SourceSession,
		SessionID: &sid,
		CreatedAt: base.Add(time.Minute),
	}
	if err := repo.InsertEmoScore(ctx, second); err != nil {
		t.Fatalf("InsertEmoScore failed: %v", err)
	}

	latest, err := repo.LatestEmoScore(ctx, "user1", nil)
	if err != nil {
		t.Fatalf("LatestEmoScore failed: %v", err)
	}
	if latest.ID != second.ID {
		t.Errorf("Expected latest record %d, got %d", second.ID, latest.ID)
	}
	if latest.Change.Stress == nil || *latest.Change.Stress != 0.2 {
		t.Errorf("Expected stored delta 0.2, got %v", latest.Change.Stress)
	}
	if latest.SessionID == nil || *latest.SessionID != 7 {
		t.Errorf("Expected session id 7, got %v", latest.SessionID)
	}

	onboardingOnly := domain.SourceOnboarding
	latest, err = repo.LatestEmoScore(ctx, "user1", &onboardingOnly)
	if err != nil {
		t.Fatalf("LatestEmoScore failed: %v", err)
	}
	if latest.ID != first.ID {
		t.Errorf("Expected filtered latest %d, got %d", first.ID, latest.ID)
	}

	history, err := repo.EmoScoreHistory(ctx, "user1", nil)
	if err != nil {
		t.Fatalf("EmoScoreHistory failed: %v", err)
	}
	if len(history) != 2 || history[0].ID != second.ID {
		t.Errorf("Expected newest record first, got %+v", history)
	}

	got, err := repo.GetEmoScore(ctx, first.ID, "user1")
	if err != nil {
		t.Fatalf("GetEmoScore failed: %v", err)
	}
	if got == nil || got.ID != first.ID {
		t.Errorf("Expected record %d, got %+v", first.ID, got)
	}
	foreign, err := repo.GetEmoScore(ctx, first.ID, "someone-else")
	if err != nil {
		t.Fatalf("GetEmoScore failed: %v", err)
	}
	if foreign != nil {
		t.Error("Expected nil for foreign owner")
	}

	none, err := repo.LatestEmoScore(ctx, "fresh-user", nil)
	if err != nil {
		t.Fatalf("LatestEmoScore failed: %v", err)
	}
	if none != nil {
		t.Errorf("Expected nil latest for fresh user, got %+v", none)
	}
}

func TestSQLiteUserContext(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	text, err := repo.GetUserContext(ctx, "user1")
	if err != nil {
		t.Fatalf("GetUserContext failed: %v", err)
	}
	if text != "" {
		t.Errorf("Expected empty context, got %q", text)
	}

	if err := repo.UpsertUserContext(ctx, "user1", "## Background\nfirst"); err != nil {
		t.Fatalf("UpsertUserContext failed: %v", err)
	}
	if err := repo.UpsertUserContext(ctx, "user1", "## Background\nsecond"); err != nil {
		t.Fatalf("UpsertUserContext failed: %v", err)
	}
	text, _ = repo.GetUserContext(ctx, "user1")
	if text != "## Background\nsecond" {
		t.Errorf("Expected latest context, got %q", text)
	}
}
