package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/calmline/calmline/internal/agent"
	"github.com/calmline/calmline/internal/emoscore"
	"github.com/calmline/calmline/internal/onboarding"
	"github.com/calmline/calmline/internal/orchestrator"
	"github.com/calmline/calmline/internal/promptcache"
	"github.com/calmline/calmline/internal/session"
	"github.com/calmline/calmline/internal/store"
	"github.com/go-chi/chi/v5"
)

const testBatchJSON = `{"questions": [
	{"text": "How would you like to be addressed?", "type": "text"},
	{"text": "What brings you here?", "type": "text"},
	{"text": "How stressed are you?", "type": "choice", "options": ["Low", "High"]},
	{"text": "How is your sleep?", "type": "text"},
	{"text": "What would help most?", "type": "text"}
]}`

const testCompletionJSON = `{
	"nickname": "Sam",
	"stress_score": 70,
	"stable_score": 40,
	"anxiety_score": 65,
	"functional_score": 55,
	"user_context_markdown": "## Background\nWork stress."
}`

func newOnboardingRouter(t *testing.T) chi.Router {
	t.Helper()
	repo := store.NewMemory()

	intakeAgent := agent.GeneratorFunc(func(ctx context.Context, systemContext, conversationRef, userMessage string) (*agent.Reply, error) {
		if strings.Contains(userMessage, "Transcript") {
			return &agent.Reply{Text: testCompletionJSON}, nil
		}
		return &agent.Reply{Text: testBatchJSON}, nil
	})

	prompts := promptcache.New(5 * time.Minute)
	ledger := emoscore.NewLedger(repo)
	sessions := session.NewService(repo, stubAgent("hi"), stubAgent("hi"), prompts, session.ReminderConfig{
		SuggestedDurationMinutes: 30, SuggestedTurns: 30, ReminderIntervalTurns: 3,
	}, 24*time.Hour)
	orch := orchestrator.New(sessions, onboarding.NewFlow(repo, intakeAgent, ledger), ledger, repo, prompts)

	r := chi.NewRouter()
	r.Use(testIdentity(repo, "user1"))
	NewHandler(orch).RegisterRoutes(r)
	return r
}

func TestOnboardingEndpoints(t *testing.T) {
	r := newOnboardingRouter(t)

	// First state call generates the batch and returns question 1.
	w := doJSON(t, r, http.MethodGet, "/api/onboarding", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 on state, got %d: %s", w.Code, w.Body.String())
	}
	var state struct {
		Complete bool `json:"complete"`
		Question *struct {
			QuestionNumber int    `json:"question_number"`
			Type           string `json:"type"`
		} `json:"question"`
	}
	if err := json.NewDecoder(w.Body).Decode(&state); err != nil {
		t.Fatalf("Failed to decode state: %v", err)
	}
	if state.Complete || state.Question == nil || state.Question.QuestionNumber != 1 {
		t.Fatalf("Expected question 1, got %+v", state)
	}

	// Blank answers are rejected.
	w = doJSON(t, r, http.MethodPost, "/api/onboarding/answers",
		`{"question_number":1,"answer":"  "}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for blank answer, got %d", w.Code)
	}

	// Answer the first four questions.
	for i := 1; i <= 4; i++ {
		w = doJSON(t, r, http.MethodPost, "/api/onboarding/answers",
			`{"question_number":`+string(rune('0'+i))+`,"answer":"something"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200 answering question %d, got %d: %s", i, w.Code, w.Body.String())
		}
	}

	// Answering again conflicts.
	w = doJSON(t, r, http.MethodPost, "/api/onboarding/answers",
		`{"question_number":1,"answer":"again"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for double answer, got %d", w.Code)
	}

	// The last answer completes the flow.
	w = doJSON(t, r, http.MethodPost, "/api/onboarding/answers",
		`{"question_number":5,"answer":"time off"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 on completion, got %d: %s", w.Code, w.Body.String())
	}
	var outcome struct {
		Complete bool   `json:"complete"`
		Nickname string `json:"nickname"`
	}
	if err := json.NewDecoder(w.Body).Decode(&outcome); err != nil {
		t.Fatalf("Failed to decode outcome: %v", err)
	}
	if !outcome.Complete || outcome.Nickname != "Sam" {
		t.Errorf("Unexpected completion %+v", outcome)
	}

	// State now reports completion.
	w = doJSON(t, r, http.MethodGet, "/api/onboarding", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if err := json.NewDecoder(w.Body).Decode(&state); err != nil {
		t.Fatalf("Failed to decode state: %v", err)
	}
	if !state.Complete {
		t.Error("Expected completed state after final answer")
	}

	// The onboarding score landed in the ledger.
	w = doJSON(t, r, http.MethodGet, "/api/scores/latest", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var latest struct {
		Score *struct {
			Source string `json:"source"`
		} `json:"score"`
	}
	if err := json.NewDecoder(w.Body).Decode(&latest); err != nil {
		t.Fatalf("Failed to decode latest: %v", err)
	}
	if latest.Score == nil || latest.Score.Source != "onboarding" {
		t.Errorf("Expected onboarding score, got %+v", latest.Score)
	}
}
