package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loqalabs/loqa-narrator/internal/config"
	_ "modernc.org/sqlite"
)

// SessionRecord is one narration session: a single text streamed for one
// player.
type SessionRecord struct {
	SessionID  string
	PlayerID   string
	UserID     string
	Language   string
	TextLength int
	Outcome    string
	CreatedAt  time.Time
	EndedAt    time.Time
}

// Event is a playback activity entry within a session.
type Event struct {
	ID        int64
	SessionID string
	PlayerID  string
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Store keeps the narration timeline in SQLite. In ephemeral mode every
// method is a no-op.
type Store struct {
	db    *sql.DB
	cfg   config.EventStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the event store according to config.
func Open(ctx context.Context, cfg config.EventStoreConfig, log *slog.Logger) (*Store, error) {
	s := &Store{cfg: cfg, log: log.With(slog.String("component", "eventstore")), clock: time.Now}
	if cfg.RetentionMode == "ephemeral" {
		return s, nil
	}

	if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s.db = db

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	if cfg.VacuumOnStart {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			s.log.Warn("event store vacuum failed", slog.String("error", err.Error()))
		}
	}
	if err := s.Prune(ctx); err != nil {
		s.log.Warn("event store prune on start failed", slog.String("error", err.Error()))
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS narration_sessions (
    session_id TEXT PRIMARY KEY,
    player_id TEXT NOT NULL,
    user_id TEXT,
    language TEXT,
    text_length INTEGER,
    outcome TEXT,
    created_at TIMESTAMP NOT NULL,
    ended_at TIMESTAMP
);
CREATE TABLE IF NOT EXISTS playback_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    player_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    payload BLOB,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(session_id) REFERENCES narration_sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_playback_events_session ON playback_events(session_id, id);
CREATE INDEX IF NOT EXISTS idx_narration_sessions_player ON narration_sessions(player_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) disabled() bool {
	return s.cfg.RetentionMode == "ephemeral" || s.db == nil
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BeginSession records a new narration session. Re-recording an id updates
// the descriptive columns.
func (s *Store) BeginSession(ctx context.Context, rec SessionRecord) error {
	if s.disabled() {
		return nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO narration_sessions(session_id, player_id, user_id, language, text_length, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET user_id=excluded.user_id, language=excluded.language, text_length=excluded.text_length`,
		rec.SessionID, rec.PlayerID, rec.UserID, rec.Language, rec.TextLength, rec.CreatedAt.UTC())
	return err
}

// EndSession stamps the session's outcome (completed, stopped, failed,
// torn_down).
func (s *Store) EndSession(ctx context.Context, sessionID, outcome string) error {
	if s.disabled() {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE narration_sessions SET outcome = ?, ended_at = ? WHERE session_id = ?`,
		outcome, s.clock().UTC(), sessionID)
	return err
}

// AppendEvent writes an activity entry. The session must exist.
func (s *Store) AppendEvent(ctx context.Context, evt Event) error {
	if s.disabled() {
		return nil
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO playback_events(session_id, player_id, event_type, payload, created_at)
		 VALUES(?, ?, ?, ?, ?)`,
		evt.SessionID, evt.PlayerID, evt.Type, evt.Payload, evt.CreatedAt.UTC())
	return err
}

// ListSessionEvents returns up to limit events of a session in insertion
// order.
func (s *Store) ListSessionEvents(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	if s.disabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, player_id, event_type, payload, created_at
		 FROM playback_events WHERE session_id = ? ORDER BY id ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var created string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.PlayerID, &e.Type, &e.Payload, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTime(created)
		events = append(events, e)
	}
	return events, rows.Err()
}

// ListPlayerSessions returns the newest sessions of a player first.
func (s *Store) ListPlayerSessions(ctx context.Context, playerID string, limit int) ([]SessionRecord, error) {
	if s.disabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, player_id, COALESCE(user_id, ''), COALESCE(language, ''), COALESCE(text_length, 0),
		        COALESCE(outcome, ''), created_at, ended_at
		 FROM narration_sessions WHERE player_id = ? ORDER BY created_at DESC LIMIT ?`, playerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var r SessionRecord
		var created string
		var ended sql.NullString
		if err := rows.Scan(&r.SessionID, &r.PlayerID, &r.UserID, &r.Language, &r.TextLength, &r.Outcome, &created, &ended); err != nil {
			return nil, err
		}
		r.CreatedAt = parseTime(created)
		if ended.Valid {
			r.EndedAt = parseTime(ended.String)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune applies configured retention (called on startup and periodically by
// the narration service).
func (s *Store) Prune(ctx context.Context) (err error) {
	if s.disabled() {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour).UTC()
		if _, err = tx.ExecContext(ctx, `DELETE FROM playback_events WHERE created_at < ?`, cutoff); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM narration_sessions WHERE created_at < ?`, cutoff); err != nil {
			return err
		}
	}
	if s.cfg.MaxSessions > 0 {
		if _, err = tx.ExecContext(ctx, `DELETE FROM narration_sessions WHERE session_id IN (
			SELECT session_id FROM narration_sessions ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxSessions); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Ensure checks the store is consistent with its retention mode.
func (s *Store) Ensure() error {
	if s.cfg.RetentionMode == "ephemeral" && s.db != nil {
		return errors.New("ephemeral store should not have database connection")
	}
	return nil
}

func parseTime(v string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05.999999999 -0700 MST"} {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts
		}
	}
	return time.Time{}
}
