// Package onboarding runs the resumable intake flow: one generated
// batch of questions, answers collected in order, and a completion step
// that produces the first assessment and the personalization summary.
package onboarding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/calmline/calmline/internal/agent"
	"github.com/calmline/calmline/internal/domain"
	"github.com/calmline/calmline/internal/emoscore"
	"github.com/calmline/calmline/internal/store"
)

// State reports where a user is in the intake flow. Question is the
// next question to answer and is nil once Complete is true.
type State struct {
	Complete bool                       `json:"complete"`
	Question *domain.OnboardingQuestion `json:"question,omitempty"`
}

// AnswerOutcome is the result of submitting one answer: either the next
// question, or the completion payload when the batch is done.
type AnswerOutcome struct {
	Complete       bool                       `json:"complete"`
	NextQuestion   *domain.OnboardingQuestion `json:"next_question,omitempty"`
	Nickname       string                     `json:"nickname,omitempty"`
	Score          *domain.EmoScoreRecord     `json:"score,omitempty"`
	UserContext    string                     `json:"user_context,omitempty"`
	TotalQuestions int                        `json:"total_questions,omitempty"`
}

// Flow drives the intake state machine. Completion failures leave the
// flow resumable; re-running completion over the same transcript is
// safe.
type Flow struct {
	repo   store.Repository
	agent  agent.Generator
	ledger *emoscore.Ledger
	now    func() time.Time
}

// NewFlow creates an onboarding flow.
func NewFlow(repo store.Repository, gen agent.Generator, ledger *emoscore.Ledger) *Flow {
	return &Flow{repo: repo, agent: gen, ledger: ledger, now: time.Now}
}

func conversationRef(userID string) string {
	return "onboarding-" + userID
}

// GetState resolves the user's current intake position: completed,
// resume at the lowest unanswered question, generate the batch for a
// fresh user, or retry the completion step if every question is
// answered but a previous completion attempt failed.
func (f *Flow) GetState(ctx context.Context, userID string) (*State, error) {
	user, err := f.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.NotFoundf("user %s not found", userID)
	}
	if user.FinishedOnboarding {
		return &State{Complete: true}, nil
	}

	next, err := f.repo.FirstUnansweredQuestion(ctx, userID)
	if err != nil {
		return nil, err
	}
	if next != nil {
		slog.Info("resuming onboarding", "user_id", userID, "question", next.QuestionNumber)
		return &State{Question: next}, nil
	}

	count, err := f.repo.CountQuestions(ctx, userID)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		first, err := f.generateBatch(ctx, userID)
		if err != nil {
			return nil, err
		}
		return &State{Question: first}, nil
	}

	// Every question is answered but the user is not marked finished: a
	// previous completion attempt failed. Retry it.
	outcome, err := f.complete(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &State{Complete: outcome.Complete}, nil
}

// SubmitAnswer stamps the answer on a still-unanswered question and
// returns the next question, or runs completion after the last one.
func (f *Flow) SubmitAnswer(ctx context.Context, userID string, questionNumber int, answer string) (*AnswerOutcome, error) {
	if strings.TrimSpace(answer) == "" {
		return nil, domain.Validationf("answer cannot be empty")
	}

	user, err := f.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.NotFoundf("user %s not found", userID)
	}
	if user.FinishedOnboarding {
		return nil, domain.Conflictf("onboarding is already completed")
	}

	if err := f.repo.AnswerQuestion(ctx, userID, questionNumber, answer, f.now()); err != nil {
		return nil, err
	}
	slog.Info("onboarding answer recorded", "user_id", userID, "question", questionNumber)

	next, err := f.repo.FirstUnansweredQuestion(ctx, userID)
	if err != nil {
		return nil, err
	}
	if next != nil {
		return &AnswerOutcome{NextQuestion: next}, nil
	}

	return f.complete(ctx, userID)
}

type questionPayload struct {
	Text    string   `json:"text" jsonschema:"required"`
	Type    string   `json:"type" jsonschema:"required,enum=text,enum=choice"`
	Options []string `json:"options,omitempty"`
}

type batchPayload struct {
	Questions []questionPayload `json:"questions" jsonschema:"required"`
}

var batchSchema = agent.SchemaJSON[batchPayload]()

const generateInstructions = `You are an intake assistant for a counseling service. Generate between
5 and 10 questions, in one batch, to understand a new client:
how they want to be addressed, their goals, main difficulties, stress
sources, emotional state, anxiety, and day-to-day functioning. Use type
"text" for open questions and type "choice" with 2-4 options for
quantitative ones. Reply with a single JSON object matching this schema,
and nothing else:`

// generateBatch asks the agent for the full question set, validates it,
// and persists it all-or-nothing. The first validation failure rejects
// the whole batch.
func (f *Flow) generateBatch(ctx context.Context, userID string) (*domain.OnboardingQuestion, error) {
	slog.Info("generating onboarding batch", "user_id", userID)

	systemContext := generateInstructions + "\n" + batchSchema
	reply, err := f.agent.Generate(ctx, systemContext, conversationRef(userID),
		"Generate the full intake question batch now.")
	if err != nil {
		return nil, &domain.AgentError{Op: "onboarding question generation", Err: err}
	}

	var payload batchPayload
	if err := agent.ParseJSONReply(reply.Text, &payload); err != nil {
		return nil, &domain.AgentError{Op: "onboarding question generation", Err: err}
	}

	questions, err := buildBatch(userID, payload.Questions, f.now())
	if err != nil {
		return nil, err
	}

	if err := f.repo.CreateQuestionBatch(ctx, userID, questions); err != nil {
		return nil, err
	}
	slog.Info("onboarding batch persisted", "user_id", userID, "questions", len(questions))

	return questions[0], nil
}

// buildBatch validates the generated questions and assigns contiguous
// numbers from 1 in batch order.
func buildBatch(userID string, payload []questionPayload, now time.Time) ([]*domain.OnboardingQuestion, error) {
	if len(payload) < domain.MinBatchQuestions || len(payload) > domain.MaxBatchQuestions {
		return nil, domain.Validationf("batch has %d questions, expected %d-%d",
			len(payload), domain.MinBatchQuestions, domain.MaxBatchQuestions)
	}

	questions := make([]*domain.OnboardingQuestion, 0, len(payload))
	for i, p := range payload {
		q := &domain.OnboardingQuestion{
			UserID:         userID,
			QuestionNumber: i + 1,
			Text:           strings.TrimSpace(p.Text),
			Type:           domain.QuestionType(strings.ToLower(p.Type)),
			CreatedAt:      now,
		}
		if q.Type == domain.QuestionChoice {
			q.Options = p.Options
		}
		if err := q.Validate(); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, nil
}

type completionPayload struct {
	Nickname        string `json:"nickname" jsonschema:"required"`
	StressScore     int    `json:"stress_score" jsonschema:"required"`
	StableScore     int    `json:"stable_score" jsonschema:"required"`
	AnxietyScore    int    `json:"anxiety_score" jsonschema:"required"`
	FunctionalScore int    `json:"functional_score" jsonschema:"required"`
	UserContext     string `json:"user_context_markdown" jsonschema:"required"`
}

var completionSchema = agent.SchemaJSON[completionPayload]()

const completeInstructions = `You are an intake assistant reviewing a completed counseling intake
questionnaire. From the transcript: extract the client's preferred
nickname from their first answer; assess four scores on a 1-100 scale
(stress_score for stress load, stable_score for emotional stability,
anxiety_score for anxiety, functional_score for day-to-day functioning);
and write a structured Markdown summary of the client's situation for
their counselor. Reply with a single JSON object matching this schema,
and nothing else:`

// complete turns the finished transcript into the first assessment and
// the personalization summary, then marks the user finished. Any agent
// failure before persistence leaves the flow resumable.
func (f *Flow) complete(ctx context.Context, userID string) (*AnswerOutcome, error) {
	questions, err := f.repo.QuestionsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, domain.Conflictf("no onboarding questions to complete")
	}

	slog.Info("completing onboarding", "user_id", userID, "questions", len(questions))

	reply, err := f.agent.Generate(ctx, completeInstructions+"\n"+completionSchema,
		conversationRef(userID), transcript(questions))
	if err != nil {
		return nil, &domain.AgentError{Op: "onboarding completion", Err: err}
	}

	var payload completionPayload
	if err := agent.ParseJSONReply(reply.Text, &payload); err != nil {
		return nil, &domain.AgentError{Op: "onboarding completion", Err: err}
	}
	if err := validateCompletion(payload); err != nil {
		return nil, &domain.AgentError{Op: "onboarding completion", Err: err}
	}

	scores := domain.EmoScores{
		Stress:     &payload.StressScore,
		Stable:     &payload.StableScore,
		Anxiety:    &payload.AnxietyScore,
		Functional: &payload.FunctionalScore,
	}
	rec, err := f.ledger.Record(ctx, userID, scores, domain.SourceOnboarding, nil)
	if err != nil {
		return nil, err
	}

	if err := f.repo.UpsertUserContext(ctx, userID, payload.UserContext); err != nil {
		return nil, err
	}
	if err := f.repo.UpdateUserProfile(ctx, userID, payload.Nickname, true); err != nil {
		return nil, err
	}

	slog.Info("onboarding completed", "user_id", userID, "nickname", payload.Nickname)

	return &AnswerOutcome{
		Complete:       true,
		Nickname:       payload.Nickname,
		Score:          rec,
		UserContext:    payload.UserContext,
		TotalQuestions: len(questions),
	}, nil
}

func validateCompletion(p completionPayload) error {
	if strings.TrimSpace(p.Nickname) == "" {
		return fmt.Errorf("empty nickname")
	}
	if strings.TrimSpace(p.UserContext) == "" {
		return fmt.Errorf("empty user context")
	}
	for _, score := range []int{p.StressScore, p.StableScore, p.AnxietyScore, p.FunctionalScore} {
		if score < 1 || score > 100 {
			return fmt.Errorf("score %d outside the 1-100 range", score)
		}
	}
	return nil
}

func transcript(questions []*domain.OnboardingQuestion) string {
	var b strings.Builder
	b.WriteString("The client has answered every intake question. Transcript:\n")
	for _, q := range questions {
		answer := "(unanswered)"
		if q.Answer != nil {
			answer = *q.Answer
		}
		fmt.Fprintf(&b, "\nQ%d: %s\nA: %s\n", q.QuestionNumber, q.Text, answer)
	}
	b.WriteString("\nProduce the completion JSON now.")
	return b.String()
}
