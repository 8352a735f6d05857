package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Audit actions written by the journal.
const (
	ActionControlManual = "control.manual"
	ActionControlAuto   = "control.auto"
	ActionStaleReset    = "control.stale_reset"
	ActionSessionStart  = "session.start"
	ActionSessionEnd    = "session.end"
)

// List paging limits.
const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// AuditLog is a single entry in the control history.
type AuditLog struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	EntryID   string         `json:"entry_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter controls which audit logs List returns.
type Filter struct {
	Action    string // optional: exact action match
	EntryID   string // optional: hardware entry ID
	SessionID string // optional: daemon session
	Limit     int    // default 50, max 200
	Offset    int
}

// ListResult is one page of audit logs.
type ListResult struct {
	Logs   []AuditLog `json:"logs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CreateAudit inserts an audit log entry. ID and CreatedAt are generated if empty.
func (j *Journal) CreateAudit(ctx context.Context, log *AuditLog) error {
	return j.createAudit(ctx, j.db, log)
}

func (j *Journal) createAudit(ctx context.Context, ex execer, log *AuditLog) error {
	if log.ID == "" {
		log.ID = "aud-" + uuid.NewString()[:8]
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = j.now().UTC()
	}

	var detailsJSON *string
	if log.Details != nil {
		b, err := json.Marshal(log.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		s := string(b)
		detailsJSON = &s
	}

	_, err := ex.ExecContext(ctx,
		`INSERT INTO audit_logs (id, action, entry_id, details, session_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		log.ID, log.Action,
		nullableString(log.EntryID), detailsJSON, nullableString(log.SessionID),
		formatTime(log.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

// ListAudit returns audit logs matching the filter, most recent first.
func (j *Journal) ListAudit(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.EntryID != "" {
		conditions = append(conditions, "entry_id = ?")
		args = append(args, filter.EntryID)
	}
	if filter.SessionID != "" {
		conditions = append(conditions, "session_id = ?")
		args = append(args, filter.SessionID)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM audit_logs " + where
	var total int
	if err := j.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit logs: %w", err)
	}

	query := "SELECT id, action, entry_id, details, session_id, created_at FROM audit_logs " +
		where + " ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}
	defer rows.Close()

	logs := []AuditLog{}
	for rows.Next() {
		var log AuditLog
		var entryID, detailsJSON, sessionID sql.NullString
		var createdAt string

		if err := rows.Scan(&log.ID, &log.Action, &entryID, &detailsJSON, &sessionID, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit log: %w", err)
		}
		log.EntryID = entryID.String
		log.SessionID = sessionID.String
		if detailsJSON.Valid && detailsJSON.String != "" {
			var details map[string]any
			if json.Unmarshal([]byte(detailsJSON.String), &details) == nil {
				log.Details = details
			}
		}
		if log.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing audit log timestamp %q: %w", createdAt, err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit logs: %w", err)
	}

	return &ListResult{
		Logs:   logs,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

// nullableString maps "" to SQL NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
