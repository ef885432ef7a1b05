package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tessera-iot/fleetcore/internal/audit"
	"github.com/tessera-iot/fleetcore/internal/broker"
	"github.com/tessera-iot/fleetcore/internal/device"
	"github.com/tessera-iot/fleetcore/internal/docstore"
)

// createDeviceRequest is the request body for POST /devices.
type createDeviceRequest struct {
	UserID     string         `json:"user_id"`
	Name       string         `json:"name"`
	Kind       device.Kind    `json:"kind"`
	MACAddress string         `json:"mac_address"`
	QoS        byte           `json:"qos"`
	Subscriber bool           `json:"subscriber"`
	Scales     []device.Scale `json:"scales"`
}

// handleListDevices returns all devices, optionally filtered by owner.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if userID := r.URL.Query().Get("user_id"); userID != "" {
		devices, err := s.devices.ListByUser(ctx, userID)
		if err != nil {
			writeInternalError(w, "failed to list devices")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
		return
	}

	devices, err := s.devices.List(ctx)
	if err != nil {
		writeInternalError(w, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d, err := s.devices.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// handleCreateDevice registers a new device.
//
// The telemetry topic is composed once here from the owner, the generated
// device ID, and the name. A document-store record is created alongside
// the relational row; if the currently connected broker exists and the
// device subscribes, its topic is queued for subscription on the live
// session.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}
	if _, err := uuid.Parse(req.UserID); err != nil {
		writeBadRequest(w, "user_id must be a UUID")
		return
	}

	d := &device.Device{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		Name:       req.Name,
		Kind:       req.Kind,
		MACAddress: req.MACAddress,
		Condition:  device.ConditionActive,
		QoS:        req.QoS,
		Subscriber: req.Subscriber,
		Scales:     req.Scales,
	}
	d.Topic = device.ComposeTopic(d.UserID, d.ID, d.Name)
	if err := device.ValidTopic(d.Topic); err != nil {
		writeBadRequest(w, "name must be a single topic segment")
		return
	}
	if d.QoS > 2 {
		writeBadRequest(w, "qos must be 0, 1 or 2")
		return
	}

	if err := s.devices.Create(ctx, d); err != nil {
		if errors.Is(err, device.ErrDeviceExists) {
			writeConflict(w, "mac address already registered")
			return
		}
		writeInternalError(w, "failed to create device")
		return
	}

	if err := s.records.CreateRecord(ctx, d.ID, d.UserID); err != nil && !errors.Is(err, docstore.ErrRecordExists) {
		// Keep the registry consistent: no record, no device.
		if delErr := s.devices.SoftDelete(ctx, d.ID); delErr != nil {
			s.logger.Error("failed to roll back device after record failure",
				"device_id", d.ID, "error", delErr)
		}
		writeInternalError(w, "failed to create device record")
		return
	}

	s.subscribeNewDevice(r, d)

	s.recordAudit(r, audit.ActionCreate, audit.EntityDevice, d.ID,
		map[string]any{"name": d.Name, "topic": d.Topic})

	writeJSON(w, http.StatusCreated, d)
}

// subscribeNewDevice queues a subscription for a freshly created
// subscriber device on the connected broker's session, if there is one.
// Failures are logged; the reconcile on the next connect picks the
// device up regardless.
func (s *Server) subscribeNewDevice(r *http.Request, d *device.Device) {
	if !d.Subscriber || d.Condition != device.ConditionActive {
		return
	}

	b, err := s.brokers.GetConnected(r.Context())
	if err != nil {
		if !errors.Is(err, broker.ErrBrokerNotFound) {
			s.logger.Warn("failed to look up connected broker", "error", err)
		}
		return
	}

	cmd := broker.SubscribeCommand{Topic: d.Topic, QoS: d.QoS}
	if err := s.sessions.Enqueue(b.ID, cmd); err != nil {
		s.logger.Warn("failed to queue subscription for new device",
			"device_id", d.ID, "broker_id", b.ID, "error", err)
	}
}

// handleDeleteDevice soft-deletes a device, removes its document-store
// record, and unsubscribes its topic from the live session if one exists.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	d, err := s.devices.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	if err := s.devices.SoftDelete(ctx, id); err != nil {
		writeInternalError(w, "failed to delete device")
		return
	}

	if err := s.records.DeleteRecord(ctx, id); err != nil && !errors.Is(err, docstore.ErrRecordNotFound) {
		s.logger.Warn("failed to delete device record", "device_id", id, "error", err)
	}

	if d.Subscriber {
		if b, err := s.brokers.GetConnected(ctx); err == nil {
			if err := s.sessions.Enqueue(b.ID, broker.UnsubscribeCommand{Topic: d.Topic}); err != nil {
				s.logger.Warn("failed to queue unsubscribe for deleted device",
					"device_id", id, "broker_id", b.ID, "error", err)
			}
		}
	}

	s.recordAudit(r, audit.ActionDelete, audit.EntityDevice, id, nil)

	w.WriteHeader(http.StatusNoContent)
}

// handleDeviceLatest returns the latest reading per metric for a device.
func (s *Server) handleDeviceLatest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := s.records.GetRecord(r.Context(), id)
	if err != nil {
		if errors.Is(err, docstore.ErrRecordNotFound) {
			writeNotFound(w, "device record not found")
			return
		}
		writeInternalError(w, "failed to get device record")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": rec.ID,
		"messages":  rec.Messages,
	})
}

// handleDeviceRecord returns the device record metadata without the
// per-metric readings.
func (s *Server) handleDeviceRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := s.records.GetRecordMeta(r.Context(), id)
	if err != nil {
		if errors.Is(err, docstore.ErrRecordNotFound) {
			writeNotFound(w, "device record not found")
			return
		}
		writeInternalError(w, "failed to get device record")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}
