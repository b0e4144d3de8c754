package onboarding

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/calmline/calmline/internal/agent"
	"github.com/calmline/calmline/internal/domain"
	"github.com/calmline/calmline/internal/emoscore"
	"github.com/calmline/calmline/internal/store"
)

const batchJSON = `{
	"questions": [
		{"text": "How would you like to be addressed?", "type": "text"},
		{"text": "What brings you here today?", "type": "text"},
		{"text": "How stressed do you feel lately?", "type": "choice", "options": ["Not at all", "Somewhat", "Very"]},
		{"text": "How well are you sleeping?", "type": "choice", "options": ["Well", "Poorly"]},
		{"text": "What would a better week look like?", "type": "text"}
	]
}`

const completionJSON = `{
	"nickname": "Sam",
	"stress_score": 70,
	"stable_score": 40,
	"anxiety_score": 65,
	"functional_score": 55,
	"user_context_markdown": "## Background\nSam is under deadline pressure at work."
}`

// scriptedAgent answers the batch request and the completion request
// with canned JSON.
func scriptedAgent(batch, completion string) agent.Generator {
	return agent.GeneratorFunc(func(ctx context.Context, systemContext, conversationRef, userMessage string) (*agent.Reply, error) {
		if strings.Contains(userMessage, "Transcript") {
			return &agent.Reply{Text: completion}, nil
		}
		return &agent.Reply{Text: batch}, nil
	})
}

func newTestFlow(repo store.Repository, gen agent.Generator) *Flow {
	return NewFlow(repo, gen, emoscore.NewLedger(repo))
}

func seedUser(t *testing.T, repo store.Repository, userID string) {
	t.Helper()
	now := time.Now()
	err := repo.UpsertUser(context.Background(), &domain.User{
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}
}

func answerAll(t *testing.T, f *Flow, userID string, total int) *AnswerOutcome {
	t.Helper()
	var outcome *AnswerOutcome
	var err error
	for i := 1; i <= total; i++ {
		outcome, err = f.SubmitAnswer(context.Background(), userID, i, "answer "+string(rune('a'+i-1)))
		if err != nil {
			t.Fatalf("SubmitAnswer %d failed: %v", i, err)
		}
	}
	return outcome
}

func TestGetStateGeneratesBatchOnce(t *testing.T) {
	repo := store.NewMemory()
	f := newTestFlow(repo, scriptedAgent(batchJSON, completionJSON))
	seedUser(t, repo, "user1")

	state, err := f.GetState(context.Background(), "user1")
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if state.Complete {
		t.Error("Expected incomplete state for a fresh user")
	}
	if state.Question == nil || state.Question.QuestionNumber != 1 {
		t.Fatalf("Expected question 1, got %+v", state.Question)
	}

	count, _ := repo.CountQuestions(context.Background(), "user1")
	if count != 5 {
		t.Errorf("Expected 5 persisted questions, got %d", count)
	}

	// A second call resumes at the same question without regenerating.
	state, err = f.GetState(context.Background(), "user1")
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if state.Question == nil || state.Question.QuestionNumber != 1 {
		t.Errorf("Expected resume at question 1, got %+v", state.Question)
	}
	count, _ = repo.CountQuestions(context.Background(), "user1")
	if count != 5 {
		t.Errorf("Expected batch generated once, got %d questions", count)
	}
}

func TestGetStateResumesAtLowestUnanswered(t *testing.T) {
	repo := store.NewMemory()
	f := newTestFlow(repo, scriptedAgent(batchJSON, completionJSON))
	seedUser(t, repo, "user1")

	if _, err := f.GetState(context.Background(), "user1"); err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	for i := 1; i <= 3; i++ {
		if _, err := f.SubmitAnswer(context.Background(), "user1", i, "done"); err != nil {
			t.Fatalf("SubmitAnswer %d failed: %v", i, err)
		}
	}

	state, err := f.GetState(context.Background(), "user1")
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if state.Question == nil || state.Question.QuestionNumber != 4 {
		t.Errorf("Expected resume at question 4, got %+v", state.Question)
	}
}

func TestGetStateCompletedUser(t *testing.T) {
	repo := store.NewMemory()
	f := newTestFlow(repo, scriptedAgent(batchJSON, completionJSON))
	seedUser(t, repo, "user1")
	if err := repo.UpdateUserProfile(context.Background(), "user1", "Sam", true); err != nil {
		t.Fatalf("UpdateUserProfile failed: %v", err)
	}

	state, err := f.GetState(context.Background(), "user1")
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if !state.Complete || state.Question != nil {
		t.Errorf("Expected completed state, got %+v", state)
	}
}

func TestSubmitAnswerProgressesAndCompletes(t *testing.T) {
	repo := store.NewMemory()
	f := newTestFlow(repo, scriptedAgent(batchJSON, completionJSON))
	seedUser(t, repo, "user1")

	if _, err := f.GetState(context.Background(), "user1"); err != nil {
		t.Fatalf("GetState failed: %v", err)
	}

	outcome, err := f.SubmitAnswer(context.Background(), "user1", 1, "Call me Sam")
	if err != nil {
		t.Fatalf("SubmitAnswer failed: %v", err)
	}
	if outcome.Complete {
		t.Error("Expected flow to continue after question 1")
	}
	if outcome.NextQuestion == nil || outcome.NextQuestion.QuestionNumber != 2 {
		t.Errorf("Expected next question 2, got %+v", outcome.NextQuestion)
	}

	for i := 2; i <= 4; i++ {
		if _, err := f.SubmitAnswer(context.Background(), "user1", i, "answer"); err != nil {
			t.Fatalf("SubmitAnswer %d failed: %v", i, err)
		}
	}

	final, err := f.SubmitAnswer(context.Background(), "user1", 5, "A calmer one")
	if err != nil {
		t.Fatalf("final SubmitAnswer failed: %v", err)
	}
	if !final.Complete {
		t.Fatal("Expected completion after the last answer")
	}
	if final.Nickname != "Sam" {
		t.Errorf("Expected nickname Sam, got %q", final.Nickname)
	}
	if final.TotalQuestions != 5 {
		t.Errorf("Expected 5 total questions, got %d", final.TotalQuestions)
	}
	if final.Score == nil || final.Score.Source != domain.SourceOnboarding {
		t.Fatalf("Expected onboarding score record, got %+v", final.Score)
	}
	if final.Score.Scores.Stress == nil || *final.Score.Scores.Stress != 70 {
		t.Errorf("Expected stress score 70, got %v", final.Score.Scores.Stress)
	}

	user, _ := repo.GetUser(context.Background(), "user1")
	if !user.FinishedOnboarding {
		t.Error("Expected user marked finished")
	}
	if user.Nickname != "Sam" {
		t.Errorf("Expected stored nickname Sam, got %q", user.Nickname)
	}
	background, _ := repo.GetUserContext(context.Background(), "user1")
	if !strings.Contains(background, "deadline pressure") {
		t.Errorf("Expected user context persisted, got %q", background)
	}
}

func TestSubmitAnswerErrors(t *testing.T) {
	repo := store.NewMemory()
	f := newTestFlow(repo, scriptedAgent(batchJSON, completionJSON))
	seedUser(t, repo, "user1")

	if _, err := f.GetState(context.Background(), "user1"); err != nil {
		t.Fatalf("GetState failed: %v", err)
	}

	if _, err := f.SubmitAnswer(context.Background(), "user1", 1, "   "); !domain.IsValidation(err) {
		t.Errorf("Expected ValidationError for blank answer, got %v", err)
	}
	if _, err := f.SubmitAnswer(context.Background(), "user1", 42, "hi"); !domain.IsNotFound(err) {
		t.Errorf("Expected NotFoundError for unknown question, got %v", err)
	}

	if _, err := f.SubmitAnswer(context.Background(), "user1", 1, "first"); err != nil {
		t.Fatalf("SubmitAnswer failed: %v", err)
	}
	if _, err := f.SubmitAnswer(context.Background(), "user1", 1, "again"); !domain.IsConflict(err) {
		t.Errorf("Expected ConflictError for double answer, got %v", err)
	}
}

func TestSubmitAnswerAfterCompletion(t *testing.T) {
	repo := store.NewMemory()
	f := newTestFlow(repo, scriptedAgent(batchJSON, completionJSON))
	seedUser(t, repo, "user1")

	if _, err := f.GetState(context.Background(), "user1"); err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	answerAll(t, f, "user1", 5)

	if _, err := f.SubmitAnswer(context.Background(), "user1", 3, "late"); !domain.IsConflict(err) {
		t.Errorf("Expected ConflictError after completion, got %v", err)
	}
}

func TestBatchRejectedNothingPersisted(t *testing.T) {
	tooFew := `{"questions": [
		{"text": "Q1", "type": "text"},
		{"text": "Q2", "type": "text"}
	]}`
	badOptions := `{"questions": [
		{"text": "Q1", "type": "text"},
		{"text": "Q2", "type": "text"},
		{"text": "Q3", "type": "choice", "options": ["only one"]},
		{"text": "Q4", "type": "text"},
		{"text": "Q5", "type": "text"}
	]}`

	for name, payload := range map[string]string{"too few": tooFew, "bad options": badOptions} {
		t.Run(name, func(t *testing.T) {
			repo := store.NewMemory()
			f := newTestFlow(repo, scriptedAgent(payload, completionJSON))
			seedUser(t, repo, "user1")

			_, err := f.GetState(context.Background(), "user1")
			if !domain.IsValidation(err) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			count, _ := repo.CountQuestions(context.Background(), "user1")
			if count != 0 {
				t.Errorf("Expected nothing persisted, got %d questions", count)
			}
		})
	}
}

func TestBatchUnparseableReply(t *testing.T) {
	repo := store.NewMemory()
	f := newTestFlow(repo, scriptedAgent("I would rather chat!", completionJSON))
	seedUser(t, repo, "user1")

	_, err := f.GetState(context.Background(), "user1")
	if !domain.IsAgent(err) {
		t.Errorf("Expected AgentError for unparseable batch, got %v", err)
	}
}

func TestCompletionFailureIsResumable(t *testing.T) {
	repo := store.NewMemory()
	failing := agent.GeneratorFunc(func(ctx context.Context, systemContext, conversationRef, userMessage string) (*agent.Reply, error) {
		if strings.Contains(userMessage, "Transcript") {
			return nil, errors.New("model down")
		}
		return &agent.Reply{Text: batchJSON}, nil
	})
	f := newTestFlow(repo, failing)
	seedUser(t, repo, "user1")

	if _, err := f.GetState(context.Background(), "user1"); err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	for i := 1; i <= 4; i++ {
		if _, err := f.SubmitAnswer(context.Background(), "user1", i, "answer"); err != nil {
			t.Fatalf("SubmitAnswer %d failed: %v", i, err)
		}
	}
	if _, err := f.SubmitAnswer(context.Background(), "user1", 5, "answer"); !domain.IsAgent(err) {
		t.Fatalf("Expected AgentError on completion failure, got %v", err)
	}

	user, _ := repo.GetUser(context.Background(), "user1")
	if user.FinishedOnboarding {
		t.Error("Expected user still unfinished after failed completion")
	}

	// Once the agent recovers, GetState retries completion.
	recovered := newTestFlow(repo, scriptedAgent(batchJSON, completionJSON))
	state, err := recovered.GetState(context.Background(), "user1")
	if err != nil {
		t.Fatalf("GetState retry failed: %v", err)
	}
	if !state.Complete {
		t.Error("Expected completion on retry")
	}
	user, _ = repo.GetUser(context.Background(), "user1")
	if !user.FinishedOnboarding {
		t.Error("Expected user finished after retried completion")
	}
}

func TestCompletionRejectsOutOfRangeScores(t *testing.T) {
	badCompletion := `{
		"nickname": "Sam",
		"stress_score": 170,
		"stable_score": 40,
		"anxiety_score": 65,
		"functional_score": 55,
		"user_context_markdown": "## Background"
	}`
	repo := store.NewMemory()
	f := newTestFlow(repo, scriptedAgent(batchJSON, badCompletion))
	seedUser(t, repo, "user1")

	if _, err := f.GetState(context.Background(), "user1"); err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	for i := 1; i <= 4; i++ {
		if _, err := f.SubmitAnswer(context.Background(), "user1", i, "answer"); err != nil {
			t.Fatalf("SubmitAnswer %d failed: %v", i, err)
		}
	}
	if _, err := f.SubmitAnswer(context.Background(), "user1", 5, "answer"); !domain.IsAgent(err) {
		t.Errorf("Expected AgentError for out-of-range score, got %v", err)
	}

	// Nothing was persisted, the flow stays resumable.
	latest, _ := repo.LatestEmoScore(context.Background(), "user1", nil)
	if latest != nil {
		t.Error("Expected no score persisted from unusable completion")
	}
}
