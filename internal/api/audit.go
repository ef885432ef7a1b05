package api

import (
	"net/http"
	"strconv"

	"github.com/tessera-iot/fleetcore/internal/audit"
)

// recordAudit writes an audit entry attributed to the authenticated user.
// A nil repository disables auditing; failures are logged, never surfaced.
func (s *Server) recordAudit(r *http.Request, action, entityType, entityID string, details map[string]any) {
	if s.audit == nil {
		return
	}

	entry := &audit.Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
	}
	if claims := claimsFrom(r.Context()); claims != nil {
		entry.UserID = claims.Subject
	}

	if err := s.audit.Record(r.Context(), entry); err != nil {
		s.logger.Error("failed to record audit entry",
			"action", action,
			"entity_type", entityType,
			"entity_id", entityID,
			"error", err,
		)
	}
}

// handleListAudit returns the audit trail, filtered by query parameters.
//
// Query parameters:
//   - action: filter by action (create, update, delete, connect, disconnect, login)
//   - entity_type: filter by entity type (broker, device, user)
//   - entity_id: filter by specific entity
//   - limit, offset: pagination
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeNotFound(w, "auditing is not enabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
		filter.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "offset must be an integer")
			return
		}
		filter.Offset = offset
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		writeInternalError(w, "failed to list audit entries")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
