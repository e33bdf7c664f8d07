package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/freQuensy23-coder/manim-gpt/internal/llm"
)

// SQLiteStore persists transcripts in SQLite. Conversation handles cannot be
// serialised, so they are kept in process only: a session loaded after a
// restart has a nil Conversation.
type SQLiteStore struct {
	db *sql.DB

	mu   sync.Mutex
	live map[string]llm.Conversation
}

// NewSQLiteStore opens the SQLite database at dbPath and creates tables if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &SQLiteStore{db: db, live: map[string]llm.Conversation{}}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		request TEXT NOT NULL DEFAULT '',
		phase TEXT NOT NULL,
		last_artifact TEXT NOT NULL DEFAULT '',
		conversation_id TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS turns (
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		user_text TEXT NOT NULL,
		answer TEXT NOT NULL,
		reasoning TEXT NOT NULL,
		notice TEXT NOT NULL,
		closed INTEGER NOT NULL DEFAULT 0,
		at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (session_id, seq),
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Get loads a session and its turns. The conversation handle is attached
// only if this process saved it.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Session, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, request, phase, last_artifact, created_at, updated_at
		 FROM sessions WHERE id = ?`,
		id,
	)

	var sess Session
	var phase string
	err := row.Scan(&sess.ID, &sess.Request, &phase, &sess.LastArtifact, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if sess.Phase, err = ParsePhase(phase); err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}

	if sess.Turns, err = s.turns(ctx, id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	sess.Conversation = s.live[id]
	s.mu.Unlock()

	return &sess, nil
}

func (s *SQLiteStore) turns(ctx context.Context, id string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_text, answer, reasoning, notice, closed, at
		 FROM turns
		 WHERE session_id = ?
		 ORDER BY seq ASC`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.User, &t.Answer, &t.Reasoning, &t.Notice, &t.Closed, &t.At); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return turns, nil
}

// Save upserts the session row and rewrites its turns in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, sess *Session) error {
	if err := ValidateID(sess.ID); err != nil {
		return err
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = time.Now()
	}
	convID := ""
	if sess.Conversation != nil {
		convID = sess.Conversation.ID()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, request, phase, last_artifact, conversation_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   request = excluded.request,
		   phase = excluded.phase,
		   last_artifact = excluded.last_artifact,
		   conversation_id = excluded.conversation_id,
		   updated_at = excluded.updated_at`,
		sess.ID, sess.Request, sess.Phase.String(), sess.LastArtifact, convID, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, sess.ID); err != nil {
		return fmt.Errorf("clear turns: %w", err)
	}
	for i, t := range sess.Turns {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO turns (session_id, seq, user_text, answer, reasoning, notice, closed, at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.ID, i, t.User, t.Answer, t.Reasoning, t.Notice, t.Closed, t.At,
		)
		if err != nil {
			return fmt.Errorf("insert turn %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}

	s.mu.Lock()
	if sess.Conversation != nil {
		s.live[sess.ID] = sess.Conversation
	}
	s.mu.Unlock()

	return nil
}

// Delete removes the session and its turns.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.mu.Lock()
	delete(s.live, id)
	s.mu.Unlock()
	return nil
}

// List returns summaries of the most recent sessions.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.request, s.phase, s.last_artifact, s.updated_at,
		        COALESCE(COUNT(t.seq), 0) as turns
		 FROM sessions s
		 LEFT JOIN turns t ON s.id = t.session_id
		 GROUP BY s.id
		 ORDER BY s.updated_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var summaries []Summary
	for rows.Next() {
		var sum Summary
		var phase string
		if err := rows.Scan(&sum.ID, &sum.Request, &phase, &sum.LastArtifact, &sum.UpdatedAt, &sum.Turns); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		if sum.Phase, err = ParsePhase(phase); err != nil {
			return nil, fmt.Errorf("session %s: %w", sum.ID, err)
		}
		summaries = append(summaries, sum)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return summaries, nil
}
