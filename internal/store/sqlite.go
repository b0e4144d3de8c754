package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/calmline/calmline/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		nickname TEXT NOT NULL DEFAULT '',
		counselor_id INTEGER,
		finished_onboarding INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS counselors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		prompt TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER,
		active_duration_seconds INTEGER NOT NULL DEFAULT 0,
		turn_count INTEGER NOT NULL DEFAULT 0,
		overtime_reminder_count INTEGER NOT NULL DEFAULT 0,
		conversation_ref TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user_status ON sessions(user_id, status);
	CREATE INDEX IF NOT EXISTS idx_sessions_status_start ON sessions(status, start_time);

	CREATE TABLE IF NOT EXISTS onboarding_questions (
		user_id TEXT NOT NULL,
		question_number INTEGER NOT NULL,
		question_text TEXT NOT NULL,
		question_type TEXT NOT NULL,
		options_json TEXT,
		answer TEXT,
		answered_at INTEGER,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, question_number)
	);

	CREATE TABLE IF NOT EXISTS emo_scores (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		stress_score INTEGER,
		stable_score INTEGER,
		anxiety_score INTEGER,
		functional_score INTEGER,
		stress_change REAL,
		stable_change REAL,
		anxiety_change REAL,
		functional_change REAL,
		source TEXT NOT NULL,
		session_id INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_emo_scores_user_created ON emo_scores(user_id, created_at);

	CREATE TABLE IF NOT EXISTS user_contexts (
		user_id TEXT PRIMARY KEY,
		context_text TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, nickname, counselor_id, finished_onboarding, created_at, updated_at
		FROM users WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var user domain.User
	var counselorID sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(&user.UserID, &user.Nickname, &counselorID, &user.FinishedOnboarding, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.CounselorID = counselorID.Int64
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, nickname, counselor_id, finished_onboarding, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		nickname = excluded.nickname,
		finished_onboarding = excluded.finished_onboarding,
		updated_at = excluded.updated_at`

	var counselorID interface{}
	if user.CounselorID != 0 {
		counselorID = user.CounselorID
	}

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Nickname, counselorID, user.FinishedOnboarding,
		user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateUserProfile stores the nickname and onboarding-finished flag.
func (s *SQLiteStore) UpdateUserProfile(ctx context.Context, userID, nickname string, finishedOnboarding bool) error {
	query := `UPDATE users SET nickname = ?, finished_onboarding = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, nickname, finishedOnboarding, time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update user profile: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.NotFoundf("user %s not found", userID)
	}
	return nil
}

// AssignCounselor points a user at a counselor.
func (s *SQLiteStore) AssignCounselor(ctx context.Context, userID string, counselorID int64) error {
	query := `UPDATE users SET counselor_id = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, counselorID, time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("assign counselor: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.NotFoundf("user %s not found", userID)
	}
	return nil
}

// GetCounselor retrieves a counselor by ID.
func (s *SQLiteStore) GetCounselor(ctx context.Context, id int64) (*domain.Counselor, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, prompt, created_at FROM counselors WHERE id = ?`, id)

	var c domain.Counselor
	var createdAt int64
	err := row.Scan(&c.ID, &c.Name, &c.Prompt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan counselor row: %w", err)
	}
	c.CreatedAt = time.Unix(createdAt, 0)
	return &c, nil
}

// ListCounselors returns all counselors ordered by ID.
func (s *SQLiteStore) ListCounselors(ctx context.Context) ([]*domain.Counselor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, prompt, created_at FROM counselors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query counselors: %w", err)
	}
	defer rows.Close()

	var out []*domain.Counselor
	for rows.Next() {
		var c domain.Counselor
		var createdAt int64
		if err := rows.Scan(&c.ID, &c.Name, &c.Prompt, &createdAt); err != nil {
			return nil, fmt.Errorf("scan counselor row: %w", err)
		}
		c.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counselors: %w", err)
	}
	return out, nil
}

// CreateCounselor inserts a counselor and fills in its ID.
func (s *SQLiteStore) CreateCounselor(ctx context.Context, c *domain.Counselor) error {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO counselors (name, prompt, created_at) VALUES (?, ?, ?)`,
		c.Name, c.Prompt, c.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert counselor: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("counselor insert id: %w", err)
	}
	c.ID = id
	return nil
}

const sessionColumns = `id, user_id, status, start_time, end_time,
	active_duration_seconds, turn_count, overtime_reminder_count, conversation_ref`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var sess domain.Session
	var status string
	var startTime int64
	var endTime sql.NullInt64

	err := row.Scan(&sess.ID, &sess.UserID, &status, &startTime, &endTime,
		&sess.ActiveDurationSeconds, &sess.TurnCount, &sess.OvertimeReminderCount, &sess.ConversationRef)
	if err != nil {
		return nil, err
	}

	sess.Status = domain.SessionStatus(status)
	sess.StartTime = time.Unix(startTime, 0)
	if endTime.Valid {
		t := time.Unix(endTime.Int64, 0)
		sess.EndTime = &t
	}
	return &sess, nil
}

// CreateSession inserts a session and fills in its ID.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess *domain.Session) error {
	query := `
	INSERT INTO sessions (user_id, status, start_time, active_duration_seconds,
		turn_count, overtime_reminder_count, conversation_ref)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		sess.UserID, string(sess.Status), sess.StartTime.Unix(),
		sess.ActiveDurationSeconds, sess.TurnCount, sess.OvertimeReminderCount,
		sess.ConversationRef,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("session insert id: %w", err)
	}
	sess.ID = id
	return nil
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, id int64) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) querySessions(ctx context.Context, query string, args ...any) ([]*domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// OpenSessionsForUser returns the user's open sessions, newest first.
func (s *SQLiteStore) OpenSessionsForUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	return s.querySessions(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE user_id = ? AND status = ? ORDER BY start_time DESC, id DESC`,
		userID, string(domain.SessionOpen))
}

// ClosedSessionsForUser returns the user's closed sessions, oldest first.
func (s *SQLiteStore) ClosedSessionsForUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	return s.querySessions(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE user_id = ? AND status = ? ORDER BY start_time ASC, id ASC`,
		userID, string(domain.SessionClosed))
}

// OpenSessionsStartedBefore returns every open session started before
// the cutoff.
func (s *SQLiteStore) OpenSessionsStartedBefore(ctx context.Context, cutoff time.Time) ([]*domain.Session, error) {
	return s.querySessions(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE status = ? AND start_time < ? ORDER BY start_time ASC`,
		string(domain.SessionOpen), cutoff.Unix())
}

// CloseSession transitions an open session to closed.
func (s *SQLiteStore) CloseSession(ctx context.Context, sessionID int64, endTime time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, end_time = ? WHERE id = ? AND status = ?`,
		string(domain.SessionClosed), endTime.Unix(), sessionID, string(domain.SessionOpen))
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		existing, err := s.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if existing == nil {
			return domain.NotFoundf("session %d not found", sessionID)
		}
		return domain.Conflictf("session %d is already closed", sessionID)
	}
	return nil
}

// AdvanceSessionTurn atomically increments the turn counter of an open
// session. The conditional UPDATE with RETURNING keeps two racing turns
// from reading the same counter and losing an increment.
func (s *SQLiteStore) AdvanceSessionTurn(ctx context.Context, sessionID int64, activeDurationSeconds *int) (*domain.Session, error) {
	var duration interface{}
	if activeDurationSeconds != nil {
		duration = *activeDurationSeconds
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE sessions SET
			turn_count = turn_count + 1,
			active_duration_seconds = COALESCE(?, active_duration_seconds)
		WHERE id = ? AND status = ?
		RETURNING `+sessionColumns,
		duration, sessionID, string(domain.SessionOpen))

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		existing, getErr := s.GetSession(ctx, sessionID)
		if getErr != nil {
			return nil, getErr
		}
		if existing == nil {
			return nil, domain.NotFoundf("session %d not found", sessionID)
		}
		return nil, domain.Conflictf("session %d is closed", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("advance session turn: %w", err)
	}
	return sess, nil
}

// IncrementOvertimeReminder bumps the overtime reminder counter.
func (s *SQLiteStore) IncrementOvertimeReminder(ctx context.Context, sessionID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET overtime_reminder_count = overtime_reminder_count + 1 WHERE id = ?`,
		sessionID)
	if err != nil {
		return fmt.Errorf("increment overtime reminder: %w", err)
	}
	return nil
}

// CreateQuestionBatch persists a user's full question set in one
// transaction.
func (s *SQLiteStore) CreateQuestionBatch(ctx context.Context, userID string, questions []*domain.OnboardingQuestion) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin question batch: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO onboarding_questions (user_id, question_number, question_text,
		question_type, options_json, answer, answered_at, created_at)
	VALUES (?, ?, ?, ?, ?, NULL, NULL, ?)`

	for _, q := range questions {
		var optionsJSON interface{}
		if len(q.Options) > 0 {
			data, err := json.Marshal(q.Options)
			if err != nil {
				return fmt.Errorf("marshal question options: %w", err)
			}
			optionsJSON = string(data)
		}
		if _, err := tx.ExecContext(ctx, query,
			userID, q.QuestionNumber, q.Text, string(q.Type), optionsJSON, q.CreatedAt.Unix()); err != nil {
			return fmt.Errorf("insert question %d: %w", q.QuestionNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit question batch: %w", err)
	}
	return nil
}

const questionColumns = `user_id, question_number, question_text, question_type,
	options_json, answer, answered_at, created_at`

func scanQuestion(row rowScanner) (*domain.OnboardingQuestion, error) {
	var q domain.OnboardingQuestion
	var qType string
	var optionsJSON, answer sql.NullString
	var answeredAt sql.NullInt64
	var createdAt int64

	err := row.Scan(&q.UserID, &q.QuestionNumber, &q.Text, &qType,
		&optionsJSON, &answer, &answeredAt, &createdAt)
	if err != nil {
		return nil, err
	}

	q.Type = domain.QuestionType(qType)
	if optionsJSON.Valid {
		if err := json.Unmarshal([]byte(optionsJSON.String), &q.Options); err != nil {
			return nil, fmt.Errorf("unmarshal question options: %w", err)
		}
	}
	if answer.Valid {
		q.Answer = &answer.String
	}
	if answeredAt.Valid {
		t := time.Unix(answeredAt.Int64, 0)
		q.AnsweredAt = &t
	}
	q.CreatedAt = time.Unix(createdAt, 0)
	return &q, nil
}

// QuestionsForUser returns all questions ascending by number.
func (s *SQLiteStore) QuestionsForUser(ctx context.Context, userID string) ([]*domain.OnboardingQuestion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+questionColumns+` FROM onboarding_questions
		 WHERE user_id = ? ORDER BY question_number ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	var out []*domain.OnboardingQuestion
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question row: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return out, nil
}

// FirstUnansweredQuestion returns the lowest-numbered unanswered question.
func (s *SQLiteStore) FirstUnansweredQuestion(ctx context.Context, userID string) (*domain.OnboardingQuestion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+questionColumns+` FROM onboarding_questions
		 WHERE user_id = ? AND answered_at IS NULL
		 ORDER BY question_number ASC LIMIT 1`, userID)
	q, err := scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan question row: %w", err)
	}
	return q, nil
}

// CountQuestions returns how many questions exist for the user.
func (s *SQLiteStore) CountQuestions(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM onboarding_questions WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}
	return count, nil
}

// AnswerQuestion stamps an answer on a still-unanswered question.
func (s *SQLiteStore) AnswerQuestion(ctx context.Context, userID string, questionNumber int, answer string, answeredAt time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE onboarding_questions SET answer = ?, answered_at = ?
		 WHERE user_id = ? AND question_number = ? AND answered_at IS NULL`,
		answer, answeredAt.Unix(), userID, questionNumber)
	if err != nil {
		return fmt.Errorf("answer question: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM onboarding_questions WHERE user_id = ? AND question_number = ?`,
			userID, questionNumber).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check question existence: %w", err)
		}
		if exists == 0 {
			return domain.NotFoundf("question %d not found", questionNumber)
		}
		return domain.Conflictf("question %d is already answered", questionNumber)
	}
	return nil
}

const emoScoreColumns = `id, user_id, stress_score, stable_score, anxiety_score,
	functional_score, stress_change, stable_change, anxiety_change,
	functional_change, source, session_id, created_at`

func scanEmoScore(row rowScanner) (*domain.EmoScoreRecord, error) {
	var rec domain.EmoScoreRecord
	var stress, stable, anxiety, functional sql.NullInt64
	var stressC, stableC, anxietyC, functionalC sql.NullFloat64
	var source string
	var sessionID sql.NullInt64
	var createdAt int64

	err := row.Scan(&rec.ID, &rec.UserID, &stress, &stable, &anxiety, &functional,
		&stressC, &stableC, &anxietyC, &functionalC, &source, &sessionID, &createdAt)
	if err != nil {
		return nil, err
	}

	rec.Scores = domain.EmoScores{
		Stress:     nullableInt(stress),
		Stable:     nullableInt(stable),
		Anxiety:    nullableInt(anxiety),
		Functional: nullableInt(functional),
	}
	rec.Change = domain.EmoScoreChange{
		Stress:     nullableFloat(stressC),
		Stable:     nullableFloat(stableC),
		Anxiety:    nullableFloat(anxietyC),
		Functional: nullableFloat(functionalC),
	}
	rec.Source = domain.EmoScoreSource(source)
	if sessionID.Valid {
		rec.SessionID = &sessionID.Int64
	}
	rec.CreatedAt = time.Unix(createdAt, 0)
	return &rec, nil
}

func nullableInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func intArg(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func floatArg(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// InsertEmoScore appends a score record. Records are never updated or
// deleted; the ledger is append-only.
func (s *SQLiteStore) InsertEmoScore(ctx context.Context, rec *domain.EmoScoreRecord) error {
	query := `
	INSERT INTO emo_scores (user_id, stress_score, stable_score, anxiety_score,
		functional_score, stress_change, stable_change, anxiety_change,
		functional_change, source, session_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var sessionID interface{}
	if rec.SessionID != nil {
		sessionID = *rec.SessionID
	}

	result, err := s.db.ExecContext(ctx, query,
		rec.UserID,
		intArg(rec.Scores.Stress), intArg(rec.Scores.Stable),
		intArg(rec.Scores.Anxiety), intArg(rec.Scores.Functional),
		floatArg(rec.Change.Stress), floatArg(rec.Change.Stable),
		floatArg(rec.Change.Anxiety), floatArg(rec.Change.Functional),
		string(rec.Source), sessionID, rec.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert emo score: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("emo score insert id: %w", err)
	}
	rec.ID = id
	return nil
}

// LatestEmoScore returns the newest record for the user. The id is the
// tiebreak for records created within the same second.
func (s *SQLiteStore) LatestEmoScore(ctx context.Context, userID string, source *domain.EmoScoreSource) (*domain.EmoScoreRecord, error) {
	query := `SELECT ` + emoScoreColumns + ` FROM emo_scores WHERE user_id = ?`
	args := []any{userID}
	if source != nil {
		query += ` AND source = ?`
		args = append(args, string(*source))
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, args...)
	rec, err := scanEmoScore(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan emo score row: %w", err)
	}
	return rec, nil
}

// EmoScoreHistory returns all records for the user, newest first.
func (s *SQLiteStore) EmoScoreHistory(ctx context.Context, userID string, source *domain.EmoScoreSource) ([]*domain.EmoScoreRecord, error) {
	query := `SELECT ` + emoScoreColumns + ` FROM emo_scores WHERE user_id = ?`
	args := []any{userID}
	if source != nil {
		query += ` AND source = ?`
		args = append(args, string(*source))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query emo scores: %w", err)
	}
	defer rows.Close()

	var out []*domain.EmoScoreRecord
	for rows.Next() {
		rec, err := scanEmoScore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan emo score row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate emo scores: %w", err)
	}
	return out, nil
}

// GetEmoScore retrieves one record scoped to its owner.
func (s *SQLiteStore) GetEmoScore(ctx context.Context, id int64, userID string) (*domain.EmoScoreRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+emoScoreColumns+` FROM emo_scores WHERE id = ? AND user_id = ?`,
		id, userID)
	rec, err := scanEmoScore(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan emo score row: %w", err)
	}
	return rec, nil
}

// GetUserContext returns the personalization text for a user.
func (s *SQLiteStore) GetUserContext(ctx context.Context, userID string) (string, error) {
	var text string
	err := s.db.QueryRowContext(ctx,
		`SELECT context_text FROM user_contexts WHERE user_id = ?`, userID).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("scan user context: %w", err)
	}
	return text, nil
}

// UpsertUserContext stores the personalization text for a user.
func (s *SQLiteStore) UpsertUserContext(ctx context.Context, userID, text string) error {
	query := `
	INSERT INTO user_contexts (user_id, context_text, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		context_text = excluded.context_text,
		updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query, userID, text, time.Now().Unix()); err != nil {
		return fmt.Errorf("upsert user context: %w", err)
	}
	return nil
}
