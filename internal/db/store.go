package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Message is one turn of conversation. Rows are append-only.
type Message struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	ThreadID    string    `json:"thread_id"`
	Role        string    `json:"role"` // user, assistant, system
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// BufferSummary is a compressed representation of a contiguous run of
// older messages in one thread.
type BufferSummary struct {
	ID             int64     `json:"id"`
	UserID         string    `json:"user_id"`
	ThreadID       string    `json:"thread_id"`
	Summary        string    `json:"summary"`
	MessageCount   int       `json:"message_count"`
	FirstMessageID int64     `json:"first_message_id"`
	LastMessageID  int64     `json:"last_message_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// StageProgress is the durable per-(user, stage) state machine record.
// Exactly one logical row exists per pair; writes are upserts.
type StageProgress struct {
	UserID     string            `json:"user_id"`
	Stage      string            `json:"stage"`
	Step       int               `json:"step"`
	Answers    map[string]string `json:"answers"`
	Completion float64           `json:"completion"`
	IsComplete bool              `json:"is_complete"`
	SkipUntil  *time.Time        `json:"skip_until,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// FinalResult is the durable output of a completed stage. Its existence
// is the authoritative signal that the stage is done.
type FinalResult struct {
	UserID    string          `json:"user_id"`
	Stage     string          `json:"stage"`
	Fields    json.RawMessage `json:"fields"`
	RawInputs json.RawMessage `json:"raw_inputs"`
	CreatedAt time.Time       `json:"created_at"`
}

// UserProfile is the minimal user record messages hang off of.
type UserProfile struct {
	UserID    string    `json:"user_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ThreadRef identifies one conversation thread.
type ThreadRef struct {
	UserID   string
	ThreadID string
}

// Store wraps the shared database connection with typed queries.
type Store struct {
	db *sql.DB
}

// NewStore creates a store from an open connection.
func NewStore(sqlDB *sql.DB) *Store {
	return &Store{db: sqlDB}
}

// DB returns the underlying connection for sharing with other components.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureUserProfile creates a placeholder profile row if none exists.
// Safe to call concurrently and repeatedly.
func (s *Store) EnsureUserProfile(ctx context.Context, userID string) error {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_profiles (user_id, created_at, updated_at) VALUES (?, ?, ?)`,
		userID, now, now,
	)
	return err
}

// GetUserProfile returns the profile for a user (sql.ErrNoRows if absent).
func (s *Store) GetUserProfile(ctx context.Context, userID string) (UserProfile, error) {
	var p UserProfile
	var created, updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, first_name, last_name, email, created_at, updated_at
		 FROM user_profiles WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &p.FirstName, &p.LastName, &p.Email, &created, &updated)
	if err != nil {
		return UserProfile{}, err
	}
	p.CreatedAt = time.Unix(created, 0)
	p.UpdatedAt = time.Unix(updated, 0)
	return p, nil
}

// CreateMessageParams are the inputs for CreateMessage.
type CreateMessageParams struct {
	UserID      string
	ThreadID    string
	Role        string
	Content     string
	ContentHash string
}

// CreateMessage appends a message to the conversation log.
func (s *Store) CreateMessage(ctx context.Context, p CreateMessageParams) (Message, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (user_id, thread_id, role, content, content_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.UserID, p.ThreadID, p.Role, p.Content, p.ContentHash, now.Unix(),
	)
	if err != nil {
		return Message{}, fmt.Errorf("failed to insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Message{}, err
	}
	return Message{
		ID:          id,
		UserID:      p.UserID,
		ThreadID:    p.ThreadID,
		Role:        p.Role,
		Content:     p.Content,
		ContentHash: p.ContentHash,
		CreatedAt:   time.Unix(now.Unix(), 0),
	}, nil
}

// RecentThreadMessages returns messages in a thread created at or after
// the cutoff, oldest first. Used by the dedup check.
func (s *Store) RecentThreadMessages(ctx context.Context, threadID string, since time.Time) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, thread_id, role, content, content_hash, created_at
		 FROM messages WHERE thread_id = ? AND created_at >= ?
		 ORDER BY id`, threadID, since.Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// lastSummarizedID is the highest message id covered by a thread's
// buffer summaries (0 when the thread has never been summarized).
const lastSummarizedID = `COALESCE((SELECT MAX(bs.last_message_id) FROM buffer_summaries bs WHERE bs.thread_id = m.thread_id), 0)`

// LiveThreadMessages returns the un-summarized messages of one thread,
// oldest first.
func (s *Store) LiveThreadMessages(ctx context.Context, threadID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.user_id, m.thread_id, m.role, m.content, m.content_hash, m.created_at
		 FROM messages m WHERE m.thread_id = ? AND m.id > `+lastSummarizedID+`
		 ORDER BY m.id`, threadID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// LiveThreadMessageCount returns the number of un-summarized messages in
// one thread.
func (s *Store) LiveThreadMessageCount(ctx context.Context, threadID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages m WHERE m.thread_id = ? AND m.id > `+lastSummarizedID,
		threadID,
	).Scan(&count)
	return count, err
}

// LiveUserMessages returns the most recent un-summarized messages across
// all of a user's threads, oldest first. Memory must survive a client
// starting a new thread id, so context reads are keyed by user.
func (s *Store) LiveUserMessages(ctx context.Context, userID string, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, thread_id, role, content, content_hash, created_at FROM (
			SELECT m.id, m.user_id, m.thread_id, m.role, m.content, m.content_hash, m.created_at
			FROM messages m WHERE m.user_id = ? AND m.id > `+lastSummarizedID+`
			ORDER BY m.id DESC LIMIT ?
		 ) ORDER BY id`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// CreateBufferSummaryParams are the inputs for CreateBufferSummary.
type CreateBufferSummaryParams struct {
	UserID         string
	ThreadID       string
	Summary        string
	MessageCount   int
	FirstMessageID int64
	LastMessageID  int64
}

// CreateBufferSummary records a completed summarization run.
func (s *Store) CreateBufferSummary(ctx context.Context, p CreateBufferSummaryParams) (BufferSummary, error) {
	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO buffer_summaries (user_id, thread_id, summary, message_count, first_message_id, last_message_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.ThreadID, p.Summary, p.MessageCount, p.FirstMessageID, p.LastMessageID, now,
	)
	if err != nil {
		return BufferSummary{}, fmt.Errorf("failed to insert buffer summary: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return BufferSummary{}, err
	}
	return BufferSummary{
		ID:             id,
		UserID:         p.UserID,
		ThreadID:       p.ThreadID,
		Summary:        p.Summary,
		MessageCount:   p.MessageCount,
		FirstMessageID: p.FirstMessageID,
		LastMessageID:  p.LastMessageID,
		CreatedAt:      time.Unix(now, 0),
	}, nil
}

// RecentBufferSummaries returns a user's newest summaries, newest first.
func (s *Store) RecentBufferSummaries(ctx context.Context, userID string, limit int) ([]BufferSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, thread_id, summary, message_count, first_message_id, last_message_id, created_at
		 FROM buffer_summaries WHERE user_id = ?
		 ORDER BY id DESC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSummaries(rows)
}

// OlderBufferSummaries skips a user's newest `skip` summaries and
// returns up to `limit` of the rest, oldest first. These form the
// long-term section of the static context.
func (s *Store) OlderBufferSummaries(ctx context.Context, userID string, skip, limit int) ([]BufferSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, thread_id, summary, message_count, first_message_id, last_message_id, created_at FROM (
			SELECT * FROM buffer_summaries WHERE user_id = ?
			ORDER BY id DESC LIMIT ? OFFSET ?
		 ) ORDER BY id`, userID, limit, skip,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSummaries(rows)
}

// GetStageProgress returns the progress row for (user, stage)
// (sql.ErrNoRows if the stage was never touched).
func (s *Store) GetStageProgress(ctx context.Context, userID, stage string) (StageProgress, error) {
	var p StageProgress
	var answers string
	var isComplete int
	var skipUntil sql.NullInt64
	var created, updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, stage, step, answers, completion, is_complete, skip_until, created_at, updated_at
		 FROM stage_progress WHERE user_id = ? AND stage = ?`, userID, stage,
	).Scan(&p.UserID, &p.Stage, &p.Step, &answers, &p.Completion, &isComplete, &skipUntil, &created, &updated)
	if err != nil {
		return StageProgress{}, err
	}
	p.IsComplete = isComplete != 0
	if skipUntil.Valid {
		t := time.Unix(skipUntil.Int64, 0)
		p.SkipUntil = &t
	}
	p.CreatedAt = time.Unix(created, 0)
	p.UpdatedAt = time.Unix(updated, 0)
	p.Answers = map[string]string{}
	if answers != "" {
		if err := json.Unmarshal([]byte(answers), &p.Answers); err != nil {
			return StageProgress{}, fmt.Errorf("failed to parse stage answers: %w", err)
		}
	}
	return p, nil
}

// StageProgressForUser returns all stage rows for a user, in stage name
// order so callers see a stable sequence.
func (s *Store) StageProgressForUser(ctx context.Context, userID string) ([]StageProgress, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage FROM stage_progress WHERE user_id = ? ORDER BY stage`, userID,
	)
	if err != nil {
		return nil, err
	}
	var stages []string
	for rows.Next() {
		var stage string
		if err := rows.Scan(&stage); err != nil {
			rows.Close()
			return nil, err
		}
		stages = append(stages, stage)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	progress := make([]StageProgress, 0, len(stages))
	for _, stage := range stages {
		p, err := s.GetStageProgress(ctx, userID, stage)
		if err != nil {
			return nil, err
		}
		progress = append(progress, p)
	}
	return progress, nil
}

// UpsertStageProgress writes the progress row for (user, stage).
// is_complete is monotonic: once a row is complete it can never revert
// through this path.
func (s *Store) UpsertStageProgress(ctx context.Context, p StageProgress) error {
	answers := p.Answers
	if answers == nil {
		answers = map[string]string{}
	}
	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("failed to encode stage answers: %w", err)
	}
	var skipUntil sql.NullInt64
	if p.SkipUntil != nil {
		skipUntil = sql.NullInt64{Int64: p.SkipUntil.Unix(), Valid: true}
	}
	isComplete := 0
	if p.IsComplete {
		isComplete = 1
	}
	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO stage_progress (user_id, stage, step, answers, completion, is_complete, skip_until, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, stage) DO UPDATE SET
			step = excluded.step,
			answers = excluded.answers,
			completion = excluded.completion,
			is_complete = MAX(stage_progress.is_complete, excluded.is_complete),
			skip_until = excluded.skip_until,
			updated_at = excluded.updated_at`,
		p.UserID, p.Stage, p.Step, string(answersJSON), p.Completion, isComplete, skipUntil, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert stage progress: %w", err)
	}
	return nil
}

// SetStageSkipUntil stamps a skip window on (user, stage), creating the
// row if the stage was never touched. Never marks the stage complete.
func (s *Store) SetStageSkipUntil(ctx context.Context, userID, stage string, until time.Time) error {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stage_progress (user_id, stage, step, answers, completion, is_complete, skip_until, created_at, updated_at)
		 VALUES (?, ?, 1, '{}', 0, 0, ?, ?, ?)
		 ON CONFLICT(user_id, stage) DO UPDATE SET
			skip_until = excluded.skip_until,
			updated_at = excluded.updated_at`,
		userID, stage, until.Unix(), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to set skip window: %w", err)
	}
	return nil
}

// HasFinalResult reports whether a stage's final result exists. This is
// the authoritative completion check used by the router.
func (s *Store) HasFinalResult(ctx context.Context, userID, stage string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM final_results WHERE user_id = ? AND stage = ?`, userID, stage,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetFinalResult returns a stage's final result (sql.ErrNoRows if the
// stage has not completed).
func (s *Store) GetFinalResult(ctx context.Context, userID, stage string) (FinalResult, error) {
	var r FinalResult
	var fields, rawInputs string
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, stage, fields, raw_inputs, created_at
		 FROM final_results WHERE user_id = ? AND stage = ?`, userID, stage,
	).Scan(&r.UserID, &r.Stage, &fields, &rawInputs, &created)
	if err != nil {
		return FinalResult{}, err
	}
	r.Fields = json.RawMessage(fields)
	r.RawInputs = json.RawMessage(rawInputs)
	r.CreatedAt = time.Unix(created, 0)
	return r, nil
}

// CreateFinalResult records a stage's computed output. Create-once: a
// second write for the same (user, stage) is a no-op, tolerating the
// double-completion races the flow accepts.
func (s *Store) CreateFinalResult(ctx context.Context, r FinalResult) error {
	fields := r.Fields
	if fields == nil {
		fields = json.RawMessage("{}")
	}
	rawInputs := r.RawInputs
	if rawInputs == nil {
		rawInputs = json.RawMessage("{}")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO final_results (user_id, stage, fields, raw_inputs, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, stage) DO NOTHING`,
		r.UserID, r.Stage, string(fields), string(rawInputs), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert final result: %w", err)
	}
	return nil
}

// ThreadsAtThreshold returns threads whose live message count has
// reached the threshold. Used by the summarization catch-up sweep.
func (s *Store) ThreadsAtThreshold(ctx context.Context, threshold int) ([]ThreadRef, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.user_id, m.thread_id
		 FROM messages m WHERE m.id > `+lastSummarizedID+`
		 GROUP BY m.user_id, m.thread_id
		 HAVING COUNT(*) >= ?
		 ORDER BY m.thread_id`, threshold,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []ThreadRef
	for rows.Next() {
		var ref ThreadRef
		if err := rows.Scan(&ref.UserID, &ref.ThreadID); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var msgs []Message
	for rows.Next() {
		var m Message
		var created int64
		if err := rows.Scan(&m.ID, &m.UserID, &m.ThreadID, &m.Role, &m.Content, &m.ContentHash, &created); err != nil {
			return nil, err
		}
		m.CreatedAt = time.Unix(created, 0)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func scanSummaries(rows *sql.Rows) ([]BufferSummary, error) {
	var sums []BufferSummary
	for rows.Next() {
		var b BufferSummary
		var created int64
		if err := rows.Scan(&b.ID, &b.UserID, &b.ThreadID, &b.Summary, &b.MessageCount, &b.FirstMessageID, &b.LastMessageID, &created); err != nil {
			return nil, err
		}
		b.CreatedAt = time.Unix(created, 0)
		sums = append(sums, b)
	}
	return sums, rows.Err()
}
