package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/calmline/calmline/internal/domain"
)

// Memory is an in-memory Repository used by tests and local development.
// All methods are safe for concurrent use.
type Memory struct {
	mu sync.Mutex

	users      map[string]*domain.User
	counselors map[int64]*domain.Counselor
	sessions   map[int64]*domain.Session
	questions  map[string][]*domain.OnboardingQuestion
	scores     []*domain.EmoScoreRecord
	contexts   map[string]string

	nextCounselorID int64
	nextSessionID   int64
	nextScoreID     int64
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		users:      make(map[string]*domain.User),
		counselors: make(map[int64]*domain.Counselor),
		sessions:   make(map[int64]*domain.Session),
		questions:  make(map[string][]*domain.OnboardingQuestion),
		contexts:   make(map[string]string),
	}
}

func copySession(s *domain.Session) *domain.Session {
	out := *s
	if s.EndTime != nil {
		t := *s.EndTime
		out.EndTime = &t
	}
	return &out
}

func copyQuestion(q *domain.OnboardingQuestion) *domain.OnboardingQuestion {
	out := *q
	out.Options = append([]string(nil), q.Options...)
	if q.Answer != nil {
		a := *q.Answer
		out.Answer = &a
	}
	if q.AnsweredAt != nil {
		t := *q.AnsweredAt
		out.AnsweredAt = &t
	}
	return &out
}

// GetUser retrieves a user by ID.
func (m *Memory) GetUser(_ context.Context, userID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	out := *u
	return &out, nil
}

// UpsertUser creates or updates a user record.
func (m *Memory) UpsertUser(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := *user
	m.users[user.UserID] = &u
	return nil
}

// UpdateUserProfile stores the nickname and onboarding-finished flag.
func (m *Memory) UpdateUserProfile(_ context.Context, userID, nickname string, finishedOnboarding bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.NotFoundf("user %s not found", userID)
	}
	u.Nickname = nickname
	u.FinishedOnboarding = finishedOnboarding
	u.UpdatedAt = time.Now()
	return nil
}

// AssignCounselor points a user at a counselor.
func (m *Memory) AssignCounselor(_ context.Context, userID string, counselorID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.NotFoundf("user %s not found", userID)
	}
	u.CounselorID = counselorID
	u.UpdatedAt = time.Now()
	return nil
}

// GetCounselor retrieves a counselor by ID.
func (m *Memory) GetCounselor(_ context.Context, id int64) (*domain.Counselor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counselors[id]
	if !ok {
		return nil, nil
	}
	out := *c
	return &out, nil
}

// ListCounselors returns all counselors ordered by ID.
func (m *Memory) ListCounselors(_ context.Context) ([]*domain.Counselor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Counselor, 0, len(m.counselors))
	for _, c := range m.counselors {
		cc := *c
		out = append(out, &cc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateCounselor inserts a counselor and fills in its ID.
func (m *Memory) CreateCounselor(_ context.Context, c *domain.Counselor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextCounselorID++
	c.ID = m.nextCounselorID
	cc := *c
	m.counselors[c.ID] = &cc
	return nil
}

// CreateSession inserts a session and fills in its ID.
func (m *Memory) CreateSession(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSessionID++
	s.ID = m.nextSessionID
	m.sessions[s.ID] = copySession(s)
	return nil
}

// GetSession retrieves a session by ID.
func (m *Memory) GetSession(_ context.Context, id int64) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return copySession(s), nil
}

func (m *Memory) sessionsWhere(keep func(*domain.Session) bool) []*domain.Session {
	var out []*domain.Session
	for _, s := range m.sessions {
		if keep(s) {
			out = append(out, copySession(s))
		}
	}
	return out
}

// OpenSessionsForUser returns the user's open sessions, newest first.
func (m *Memory) OpenSessionsForUser(_ context.Context, userID string) ([]*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.sessionsWhere(func(s *domain.Session) bool {
		return s.UserID == userID && s.Status == domain.SessionOpen
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// ClosedSessionsForUser returns the user's closed sessions, oldest first.
func (m *Memory) ClosedSessionsForUser(_ context.Context, userID string) ([]*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.sessionsWhere(func(s *domain.Session) bool {
		return s.UserID == userID && s.Status == domain.SessionClosed
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// OpenSessionsStartedBefore returns every open session started before
// the cutoff.
func (m *Memory) OpenSessionsStartedBefore(_ context.Context, cutoff time.Time) ([]*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.sessionsWhere(func(s *domain.Session) bool {
		return s.Status == domain.SessionOpen && s.StartTime.Before(cutoff)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CloseSession transitions an open session to closed.
func (m *Memory) CloseSession(_ context.Context, sessionID int64, endTime time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return domain.NotFoundf("session %d not found", sessionID)
	}
	if s.Status != domain.SessionOpen {
		return domain.Conflictf("session %d is already closed", sessionID)
	}
	s.Status = domain.SessionClosed
	t := endTime
	s.EndTime = &t
	return nil
}

// AdvanceSessionTurn atomically increments the turn counter of an open
// session under the store mutex.
func (m *Memory) AdvanceSessionTurn(_ context.Context, sessionID int64, activeDurationSeconds *int) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, domain.NotFoundf("session %d not found", sessionID)
	}
	if s.Status != domain.SessionOpen {
		return nil, domain.Conflictf("session %d is closed", sessionID)
	}
	if activeDurationSeconds != nil {
		s.ActiveDurationSeconds = *activeDurationSeconds
	}
	s.TurnCount++
	return copySession(s), nil
}

// IncrementOvertimeReminder bumps the overtime reminder counter.
func (m *Memory) IncrementOvertimeReminder(_ context.Context, sessionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return domain.NotFoundf("session %d not found", sessionID)
	}
	s.OvertimeReminderCount++
	return nil
}

// CreateQuestionBatch persists a user's full question set all at once.
func (m *Memory) CreateQuestionBatch(_ context.Context, userID string, questions []*domain.OnboardingQuestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	batch := make([]*domain.OnboardingQuestion, 0, len(questions))
	for _, q := range questions {
		batch = append(batch, copyQuestion(q))
	}
	m.questions[userID] = append(m.questions[userID], batch...)
	return nil
}

// QuestionsForUser returns all questions ascending by number.
func (m *Memory) QuestionsForUser(_ context.Context, userID string) ([]*domain.OnboardingQuestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	qs := m.questions[userID]
	out := make([]*domain.OnboardingQuestion, 0, len(qs))
	for _, q := range qs {
		out = append(out, copyQuestion(q))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionNumber < out[j].QuestionNumber })
	return out, nil
}

// FirstUnansweredQuestion returns the lowest-numbered unanswered question.
func (m *Memory) FirstUnansweredQuestion(_ context.Context, userID string) (*domain.OnboardingQuestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var first *domain.OnboardingQuestion
	for _, q := range m.questions[userID] {
		if q.Answered() {
			continue
		}
		if first == nil || q.QuestionNumber < first.QuestionNumber {
			first = q
		}
	}
	if first == nil {
		return nil, nil
	}
	return copyQuestion(first), nil
}

// CountQuestions returns how many questions exist for the user.
func (m *Memory) CountQuestions(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.questions[userID]), nil
}

// AnswerQuestion stamps an answer on a still-unanswered question.
func (m *Memory) AnswerQuestion(_ context.Context, userID string, questionNumber int, answer string, answeredAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range m.questions[userID] {
		if q.QuestionNumber != questionNumber {
			continue
		}
		if q.Answered() {
			return domain.Conflictf("question %d is already answered", questionNumber)
		}
		a := answer
		t := answeredAt
		q.Answer = &a
		q.AnsweredAt = &t
		return nil
	}
	return domain.NotFoundf("question %d not found", questionNumber)
}

// InsertEmoScore appends a score record.
func (m *Memory) InsertEmoScore(_ context.Context, rec *domain.EmoScoreRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextScoreID++
	rec.ID = m.nextScoreID
	rr := *rec
	m.scores = append(m.scores, &rr)
	return nil
}

func (m *Memory) scoresFor(userID string, source *domain.EmoScoreSource) []*domain.EmoScoreRecord {
	var out []*domain.EmoScoreRecord
	for _, rec := range m.scores {
		if rec.UserID != userID {
			continue
		}
		if source != nil && rec.Source != *source {
			continue
		}
		rr := *rec
		out = append(out, &rr)
	}
	// Newest first; insertion order breaks creation-time ties.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// LatestEmoScore returns the newest record for the user.
func (m *Memory) LatestEmoScore(_ context.Context, userID string, source *domain.EmoScoreSource) (*domain.EmoScoreRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.scoresFor(userID, source)
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

// EmoScoreHistory returns all records for the user, newest first.
func (m *Memory) EmoScoreHistory(_ context.Context, userID string, source *domain.EmoScoreSource) ([]*domain.EmoScoreRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scoresFor(userID, source), nil
}

// GetEmoScore retrieves one record scoped to its owner.
func (m *Memory) GetEmoScore(_ context.Context, id int64, userID string) (*domain.EmoScoreRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.scores {
		if rec.ID == id && rec.UserID == userID {
			rr := *rec
			return &rr, nil
		}
	}
	return nil, nil
}

// GetUserContext returns the personalization text for a user.
func (m *Memory) GetUserContext(_ context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contexts[userID], nil
}

// UpsertUserContext stores the personalization text for a user.
func (m *Memory) UpsertUserContext(_ context.Context, userID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contexts[userID] = text
	return nil
}

// Ping always succeeds for the in-memory store.
func (m *Memory) Ping(_ context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error { return nil }
