package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/fancontrol-core/internal/journal"
)

// handleListOverrides returns the controls this session holds in manual mode.
func (s *Server) handleListOverrides(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeUnavailable(w, "journal not enabled")
		return
	}

	overrides, err := s.journal.Overrides(r.Context())
	if err != nil {
		s.logger.Error("failed to list overrides", "error", err)
		writeInternalError(w, "failed to list overrides")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"overrides": overrides})
}

// handleListSessions returns recent daemon sessions.
//
// Query parameters:
//   - limit: max results (default 50, max 200)
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeUnavailable(w, "journal not enabled")
		return
	}

	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	sessions, err := s.journal.Sessions(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list sessions", "error", err)
		writeInternalError(w, "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// handleListAuditLogs returns paginated audit log entries with optional filters.
//
// Query parameters:
//   - action: e.g. control.manual, control.auto, control.stale_reset
//   - entry_id: hardware entry ID
//   - session_id: daemon session ID
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeUnavailable(w, "journal not enabled")
		return
	}

	q := r.URL.Query()
	filter := journal.Filter{
		Action:    q.Get("action"),
		EntryID:   q.Get("entry_id"),
		SessionID: q.Get("session_id"),
	}
	var ok bool
	if filter.Limit, ok = queryInt(w, r, "limit"); !ok {
		return
	}
	if filter.Offset, ok = queryInt(w, r, "offset"); !ok {
		return
	}

	result, err := s.journal.ListAudit(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// queryInt parses an optional integer query parameter. On a malformed
// value it writes a 400 and returns false.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		writeBadRequest(w, name+" must be an integer")
		return 0, false
	}
	return n, true
}
