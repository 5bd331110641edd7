// Package journal persists placement sessions, the anchor commands they
// issued and their capture outcomes in a sqlite database.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/arpets/internal/capture"
	"github.com/banshee-data/arpets/internal/placement"
)

// ErrUnknownSession is returned when recording against a session that was
// never begun.
var ErrUnknownSession = errors.New("unknown session")

// Store is a sqlite-backed journal.
type Store struct {
	db *sql.DB
}

// Session is one journalled placement session.
type Session struct {
	ID        string
	Strategy  string
	AssetID   string
	StartedAt time.Time
	EndedAt   *time.Time
}

// CommandRecord is one journalled anchor command.
type CommandRecord struct {
	ID         int64
	SessionID  string
	Kind       string
	Handle     string
	X, Y, Z    float64
	RotW       float64
	RotX       float64
	RotY       float64
	RotZ       float64
	Duration   time.Duration
	Timing     string
	Error      string
	RecordedAt time.Time
}

// CaptureRecord is one journalled capture outcome.
type CaptureRecord struct {
	ID          string
	SessionID   string
	Location    string
	Error       string
	StartedAt   time.Time
	CompletedAt time.Time
}

// Open opens (creating if needed) the journal at path. Use ":memory:" for a
// throwaway journal. Call MigrateUp before recording.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// One connection: sqlite serializes writers anyway and an in-memory
	// database exists per connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginSession records the start of a placement session and returns its id.
func (s *Store) BeginSession(ctx context.Context, strategy placement.Strategy, assetID string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (session_id, strategy, asset_id, started_at) VALUES (?, ?, ?, ?)",
		id, strategy.String(), assetID, time.Now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("failed to begin session: %w", err)
	}
	return id, nil
}

// EndSession stamps the session's end time.
func (s *Store) EndSession(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET ended_at = ? WHERE session_id = ?",
		time.Now().UnixNano(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("end session %s: %w", sessionID, ErrUnknownSession)
	}
	return nil
}

// RecordCommand appends an anchor command to the session.
func (s *Store) RecordCommand(ctx context.Context, sessionID string, cmd placement.Command) error {
	return s.RecordCommands(ctx, sessionID, []placement.Command{cmd})
}

// RecordCommands appends cmds to the session in one transaction.
func (s *Store) RecordCommands(ctx context.Context, sessionID string, cmds []placement.Command) error {
	if len(cmds) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO anchor_commands (
			session_id, kind, handle, pos_x, pos_y, pos_z,
			rot_w, rot_x, rot_y, rot_z, duration_ns, timing, error, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare command insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixNano()
	for _, cmd := range cmds {
		var errText, timing string
		if cmd.Err != nil {
			errText = cmd.Err.Error()
		}
		if cmd.Kind == placement.Move {
			timing = cmd.Timing.String()
		}
		p, q := cmd.Pose.Translation, cmd.Pose.Rotation
		if _, err := stmt.ExecContext(ctx,
			sessionID, cmd.Kind.String(), string(cmd.Handle), p.X, p.Y, p.Z,
			q.Real, q.Imag, q.Jmag, q.Kmag, int64(cmd.Duration), timing, errText,
			now); err != nil {
			return fmt.Errorf("failed to record command: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit commands: %w", err)
	}
	return nil
}

// RecordCapture stores a capture outcome for the session.
func (s *Store) RecordCapture(ctx context.Context, sessionID string, res capture.Result) error {
	var errText string
	if res.Err != nil {
		errText = res.Err.Error()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO captures (capture_id, session_id, location, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		res.ID, sessionID, res.Location, errText,
		res.Started.UnixNano(), res.Completed.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record capture: %w", err)
	}
	return nil
}

// Sessions lists journalled sessions, most recent first.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT session_id, strategy, asset_id, started_at, ended_at FROM sessions ORDER BY started_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			sess    Session
			started int64
			ended   sql.NullInt64
		)
		if err := rows.Scan(&sess.ID, &sess.Strategy, &sess.AssetID, &started, &ended); err != nil {
			return nil, err
		}
		sess.StartedAt = time.Unix(0, started)
		if ended.Valid {
			t := time.Unix(0, ended.Int64)
			sess.EndedAt = &t
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Commands returns the session's commands in issue order.
func (s *Store) Commands(ctx context.Context, sessionID string) ([]CommandRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT command_id, session_id, kind, handle, pos_x, pos_y, pos_z,
		       rot_w, rot_x, rot_y, rot_z, duration_ns, timing, error, recorded_at
		FROM anchor_commands WHERE session_id = ? ORDER BY command_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query commands: %w", err)
	}
	defer rows.Close()

	var cmds []CommandRecord
	for rows.Next() {
		var (
			c        CommandRecord
			duration int64
			recorded int64
		)
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Kind, &c.Handle, &c.X, &c.Y, &c.Z,
			&c.RotW, &c.RotX, &c.RotY, &c.RotZ, &duration, &c.Timing, &c.Error, &recorded); err != nil {
			return nil, err
		}
		c.Duration = time.Duration(duration)
		c.RecordedAt = time.Unix(0, recorded)
		cmds = append(cmds, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cmds, nil
}

// Captures returns the session's capture outcomes in completion order.
func (s *Store) Captures(ctx context.Context, sessionID string) ([]CaptureRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT capture_id, session_id, location, error, started_at, completed_at
		FROM captures WHERE session_id = ? ORDER BY completed_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query captures: %w", err)
	}
	defer rows.Close()

	var out []CaptureRecord
	for rows.Next() {
		var (
			c                  CaptureRecord
			started, completed int64
		)
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Location, &c.Error, &started, &completed); err != nil {
			return nil, err
		}
		c.StartedAt = time.Unix(0, started)
		c.CompletedAt = time.Unix(0, completed)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
