// Package journal persists the daemon's manual control overrides, session
// history and an audit trail in SQLite.
//
// A row in control_overrides exists while a Control is forced to a manual
// value. A clean shutdown hands every control back to automatic mode and
// clears its rows, so rows found at startup were left by a run that died
// before teardown. The lifecycle package resets those controls to automatic
// before serving the new peer.
//
// Journal implements telemetry.Recorder and is wired in as one of the
// command loop's observers. Write failures are logged and never reach the
// loop.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/fancontrol-core/internal/hardware"
	"github.com/nerrad567/fancontrol-core/internal/telemetry"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Logger interface for optional logging.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Override is a manual control value recorded by a previous or current session.
type Override struct {
	EntryID   string    `json:"entry_id"`
	Name      string    `json:"name"`
	Value     int32     `json:"value"`
	SessionID string    `json:"session_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Session is one run of the daemon.
type Session struct {
	ID        string     `json:"id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	EndReason string     `json:"end_reason,omitempty"`
	Port      int        `json:"port"`
	Backend   string     `json:"backend"`
}

// Journal records overrides, sessions and audit logs.
type Journal struct {
	db     *sql.DB
	logger Logger
	now    func() time.Time

	mu        sync.Mutex
	sessionID string
}

var _ telemetry.Recorder = (*Journal)(nil)

// New creates a journal over a migrated database.
func New(db *sql.DB) *Journal {
	return &Journal{
		db:     db,
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger for the journal.
func (j *Journal) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	j.logger = logger
}

// SessionID returns the open session's ID, or "" before BeginSession.
func (j *Journal) SessionID() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.sessionID
}

// BeginSession opens a session row for this run.
//
// Parameters:
//   - ctx: Context for the insert
//   - port: The bound protocol port
//   - backend: The hardware backend name
//
// Returns:
//   - string: The new session ID
//   - error: ErrSessionOpen if a session is already open, or a database error
func (j *Journal) BeginSession(ctx context.Context, port int, backend string) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.sessionID != "" {
		return "", ErrSessionOpen
	}

	id := uuid.NewString()
	startedAt := j.now().UTC()

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning session: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO sessions (id, started_at, port, backend) VALUES (?, ?, ?, ?)",
		id, formatTime(startedAt), port, backend,
	); err != nil {
		return "", fmt.Errorf("inserting session: %w", err)
	}
	if err := j.createAudit(ctx, tx, &AuditLog{
		Action:    ActionSessionStart,
		SessionID: id,
		Details:   map[string]any{"port": port, "backend": backend},
		CreatedAt: startedAt,
	}); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing session: %w", err)
	}

	j.sessionID = id
	return id, nil
}

// EndSession closes the open session with the shutdown reason and clears
// its overrides. It must run after the registry has released its controls.
// Rows for the controls listed in unreleased are kept, so the next start
// resets them as stale.
func (j *Journal) EndSession(ctx context.Context, reason string, unreleased ...string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.sessionID == "" {
		return ErrNoSession
	}
	endedAt := j.now().UTC()

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning session end: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx,
		"UPDATE sessions SET ended_at = ?, end_reason = ? WHERE id = ?",
		formatTime(endedAt), reason, j.sessionID,
	); err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	query, args := "DELETE FROM control_overrides WHERE session_id = ?", []any{j.sessionID}
	if len(unreleased) > 0 {
		query += " AND entry_id NOT IN (?" + strings.Repeat(", ?", len(unreleased)-1) + ")"
		for _, id := range unreleased {
			args = append(args, id)
		}
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clearing session overrides: %w", err)
	}
	details := map[string]any{"reason": reason}
	if len(unreleased) > 0 {
		details["unreleased"] = unreleased
	}
	if err := j.createAudit(ctx, tx, &AuditLog{
		Action:    ActionSessionEnd,
		SessionID: j.sessionID,
		Details:   details,
		CreatedAt: endedAt,
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing session end: %w", err)
	}

	j.sessionID = ""
	return nil
}

// Sessions returns the most recent sessions, newest first.
func (j *Journal) Sessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, started_at, ended_at, end_reason, port, backend
		 FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var s Session
		var startedAt string
		var endedAt, reason sql.NullString
		if err := rows.Scan(&s.ID, &startedAt, &endedAt, &reason, &s.Port, &s.Backend); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		if s.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("parsing session start %q: %w", startedAt, err)
		}
		if endedAt.Valid {
			t, err := parseTime(endedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parsing session end %q: %w", endedAt.String, err)
			}
			s.EndedAt = &t
		}
		s.EndReason = reason.String
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// StaleOverrides returns overrides not owned by the open session.
func (j *Journal) StaleOverrides(ctx context.Context) ([]Override, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT entry_id, name, value, session_id, updated_at
		 FROM control_overrides WHERE session_id != ? ORDER BY entry_id`,
		j.SessionID())
	if err != nil {
		return nil, fmt.Errorf("querying overrides: %w", err)
	}
	defer rows.Close()

	var overrides []Override
	for rows.Next() {
		var o Override
		var updatedAt string
		if err := rows.Scan(&o.EntryID, &o.Name, &o.Value, &o.SessionID, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning override: %w", err)
		}
		if o.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parsing override timestamp %q: %w", updatedAt, err)
		}
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating overrides: %w", err)
	}
	return overrides, nil
}

// ClearStale deletes overrides not owned by the open session and records
// one audit entry per cleared override.
//
// Returns:
//   - int: Number of overrides cleared
//   - error: If the transaction fails
func (j *Journal) ClearStale(ctx context.Context, stale []Override) (int, error) {
	if len(stale) == 0 {
		return 0, nil
	}
	sessionID := j.SessionID()

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning stale clear: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	cleared := 0
	for _, o := range stale {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM control_overrides WHERE entry_id = ? AND session_id = ?",
			o.EntryID, o.SessionID)
		if err != nil {
			return 0, fmt.Errorf("deleting override %s: %w", o.EntryID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite3 always reports rows affected
			continue
		}
		cleared++
		if err := j.createAudit(ctx, tx, &AuditLog{
			Action:    ActionStaleReset,
			EntryID:   o.EntryID,
			SessionID: sessionID,
			Details:   map[string]any{"value": o.Value, "previous_session": o.SessionID},
		}); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing stale clear: %w", err)
	}
	return cleared, nil
}

// Overrides returns the open session's overrides.
func (j *Journal) Overrides(ctx context.Context) ([]Override, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT entry_id, name, value, session_id, updated_at
		 FROM control_overrides WHERE session_id = ? ORDER BY entry_id`,
		j.SessionID())
	if err != nil {
		return nil, fmt.Errorf("querying overrides: %w", err)
	}
	defer rows.Close()

	overrides := []Override{}
	for rows.Next() {
		var o Override
		var updatedAt string
		if err := rows.Scan(&o.EntryID, &o.Name, &o.Value, &o.SessionID, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning override: %w", err)
		}
		if o.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parsing override timestamp %q: %w", updatedAt, err)
		}
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating overrides: %w", err)
	}
	return overrides, nil
}

// RecordReading is a no-op; readings are not journaled.
func (j *Journal) RecordReading(context.Context, hardware.EntryInfo, int32) {}

// RecordControl upserts the override for entry and appends an audit entry.
func (j *Journal) RecordControl(ctx context.Context, entry hardware.EntryInfo, value int32) {
	sessionID := j.SessionID()
	if sessionID == "" {
		j.logger.Warn("override not journaled: no open session", "entry", entry.ID)
		return
	}

	err := j.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO control_overrides (entry_id, name, value, session_id, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(entry_id) DO UPDATE SET
			   name = excluded.name, value = excluded.value,
			   session_id = excluded.session_id, updated_at = excluded.updated_at`,
			entry.ID, entry.Name, value, sessionID, formatTime(j.now().UTC()),
		); err != nil {
			return fmt.Errorf("upserting override: %w", err)
		}
		return j.createAudit(ctx, tx, &AuditLog{
			Action:    ActionControlManual,
			EntryID:   entry.ID,
			SessionID: sessionID,
			Details:   map[string]any{"value": value, "index": entry.Index},
		})
	})
	if err != nil {
		j.logger.Warn("journaling override failed", "entry", entry.ID, "error", err)
	}
}

// RecordAuto removes the override for entry and appends an audit entry.
func (j *Journal) RecordAuto(ctx context.Context, entry hardware.EntryInfo) {
	sessionID := j.SessionID()

	err := j.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM control_overrides WHERE entry_id = ?", entry.ID,
		); err != nil {
			return fmt.Errorf("deleting override: %w", err)
		}
		return j.createAudit(ctx, tx, &AuditLog{
			Action:    ActionControlAuto,
			EntryID:   entry.ID,
			SessionID: sessionID,
			Details:   map[string]any{"index": entry.Index},
		})
	})
	if err != nil {
		j.logger.Warn("journaling auto mode failed", "entry", entry.ID, "error", err)
	}
}

func (j *Journal) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
