package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tessera-iot/fleetcore/internal/audit"
	"github.com/tessera-iot/fleetcore/internal/broker"
)

// createBrokerRequest is the request body for POST /brokers.
type createBrokerRequest struct {
	Host         string           `json:"host"`
	Port         int              `json:"port"`
	ClientID     string           `json:"client_id"`
	Version      uint             `json:"version"`
	KeepAlive    int              `json:"keep_alive"`
	CleanSession bool             `json:"clean_session"`
	LastWill     *broker.LastWill `json:"last_will"`
}

// updateBrokerRequest is the request body for PATCH /brokers/{id}.
// Absent fields leave the stored value unchanged. The connected flag is
// not part of the request; it is owned by the session supervisor.
type updateBrokerRequest struct {
	Host         *string          `json:"host"`
	Port         *int             `json:"port"`
	ClientID     *string          `json:"client_id"`
	Version      *uint            `json:"version"`
	KeepAlive    *int             `json:"keep_alive"`
	CleanSession *bool            `json:"clean_session"`
	LastWill     *broker.LastWill `json:"last_will"`
}

// handleListBrokers returns all registered brokers.
func (s *Server) handleListBrokers(w http.ResponseWriter, r *http.Request) {
	brokers, err := s.brokers.List(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list brokers")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"brokers": brokers, "count": len(brokers)})
}

// handleGetBroker returns a single broker by ID.
func (s *Server) handleGetBroker(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	b, err := s.brokers.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, broker.ErrBrokerNotFound) {
			writeNotFound(w, "broker not found")
			return
		}
		writeInternalError(w, "failed to get broker")
		return
	}

	writeJSON(w, http.StatusOK, b)
}

// handleCreateBroker registers a new broker. The broker starts
// disconnected; POST /brokers/{id}/connect opens the session.
func (s *Server) handleCreateBroker(w http.ResponseWriter, r *http.Request) {
	var req createBrokerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Host == "" {
		writeBadRequest(w, "host is required")
		return
	}
	if req.Port < 1 || req.Port > 65535 {
		writeBadRequest(w, "port must be between 1 and 65535")
		return
	}

	b := &broker.Broker{
		ID:           uuid.NewString(),
		Host:         req.Host,
		Port:         req.Port,
		ClientID:     req.ClientID,
		Version:      req.Version,
		KeepAlive:    req.KeepAlive,
		CleanSession: req.CleanSession,
		LastWill:     req.LastWill,
	}
	if b.ClientID == "" {
		b.ClientID = "fleetcore-" + b.ID[:8]
	}

	if err := s.brokers.Create(r.Context(), b); err != nil {
		writeInternalError(w, "failed to create broker")
		return
	}

	s.recordAudit(r, audit.ActionCreate, audit.EntityBroker, b.ID,
		map[string]any{"host": b.Host, "port": b.Port})

	writeJSON(w, http.StatusCreated, b)
}

// handleUpdateBroker partially updates a broker's settings.
//
// Changes do not touch a live session; the new settings apply the next
// time the broker is connected.
func (s *Server) handleUpdateBroker(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	b, err := s.brokers.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, broker.ErrBrokerNotFound) {
			writeNotFound(w, "broker not found")
			return
		}
		writeInternalError(w, "failed to get broker")
		return
	}

	var req updateBrokerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.Host != nil {
		b.Host = *req.Host
	}
	if req.Port != nil {
		if *req.Port < 1 || *req.Port > 65535 {
			writeBadRequest(w, "port must be between 1 and 65535")
			return
		}
		b.Port = *req.Port
	}
	if req.ClientID != nil {
		b.ClientID = *req.ClientID
	}
	if req.Version != nil {
		b.Version = *req.Version
	}
	if req.KeepAlive != nil {
		b.KeepAlive = *req.KeepAlive
	}
	if req.CleanSession != nil {
		b.CleanSession = *req.CleanSession
	}
	if req.LastWill != nil {
		b.LastWill = req.LastWill
	}

	if err := s.brokers.Update(r.Context(), b); err != nil {
		writeInternalError(w, "failed to update broker")
		return
	}

	s.recordAudit(r, audit.ActionUpdate, audit.EntityBroker, b.ID, nil)

	writeJSON(w, http.StatusOK, b)
}

// handleDeleteBroker soft-deletes a broker, tearing down its session first
// if one is active.
func (s *Server) handleDeleteBroker(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.sessions.Disconnect(id); err != nil && !errors.Is(err, broker.ErrNoSession) {
		s.logger.Warn("failed to tear down session before delete", "broker_id", id, "error", err)
	}

	if err := s.brokers.SoftDelete(r.Context(), id); err != nil {
		if errors.Is(err, broker.ErrBrokerNotFound) {
			writeNotFound(w, "broker not found")
			return
		}
		writeInternalError(w, "failed to delete broker")
		return
	}

	s.recordAudit(r, audit.ActionDelete, audit.EntityBroker, id, nil)

	w.WriteHeader(http.StatusNoContent)
}

// handleConnectBroker opens an MQTT session to the broker and subscribes
// to all active device topics. Connecting an already-connected broker is
// a no-op success.
func (s *Server) handleConnectBroker(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	if err := s.sessions.Connect(ctx, id); err != nil {
		switch {
		case errors.Is(err, broker.ErrAlreadyRegistered):
			writeJSON(w, http.StatusOK, map[string]any{"status": "connected"})
			return
		case errors.Is(err, broker.ErrBrokerNotFound):
			writeNotFound(w, "broker not found")
			return
		case errors.Is(err, broker.ErrConnect):
			writeUpstreamError(w, "broker connection failed")
			return
		default:
			writeInternalError(w, "failed to connect broker")
			return
		}
	}

	if s.sync != nil {
		if err := s.sync.SetConnected(ctx, id, true, true); err != nil {
			s.logger.Error("failed to persist connected flag", "broker_id", id, "error", err)
		}
	}

	s.recordAudit(r, audit.ActionConnect, audit.EntityBroker, id, nil)

	writeJSON(w, http.StatusOK, map[string]any{"status": "connected"})
}

// handleDisconnectBroker tears down the broker's session. The supervisor
// clears the connected flag as part of its shutdown path; a missing
// session writes nothing.
func (s *Server) handleDisconnectBroker(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.sessions.Disconnect(id); err != nil {
		if errors.Is(err, broker.ErrNoSession) {
			writeNotFound(w, "no active session for broker")
			return
		}
		writeInternalError(w, "failed to disconnect broker")
		return
	}

	s.recordAudit(r, audit.ActionDisconnect, audit.EntityBroker, id, nil)

	writeJSON(w, http.StatusOK, map[string]any{"status": "disconnecting"})
}
