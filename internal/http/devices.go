// Package http serves the relay's REST surface next to the WebSocket
// endpoint: device and pair listings plus owner-scoped deletes.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nextlevelbuilder/devlink/internal/auth"
	"github.com/nextlevelbuilder/devlink/internal/gateway"
	"github.com/nextlevelbuilder/devlink/internal/store"
)

// Relay is the slice of the gateway the REST layer reads and mutates.
type Relay interface {
	DeviceList(ctx context.Context, userID, selfDeviceID string) ([]gateway.DeviceView, error)
	PairList(ctx context.Context, userID string) ([]gateway.PairView, error)
	Unpair(ctx context.Context, userID, pairID string) error
	RemoveDevice(ctx context.Context, userID, deviceID string) error
	SessionCount() int
}

// DevicesHandler handles the device and pair endpoints.
type DevicesHandler struct {
	relay    Relay
	verifier auth.Verifier
}

// NewDevicesHandler creates a handler for device management endpoints.
func NewDevicesHandler(relay Relay, verifier auth.Verifier) *DevicesHandler {
	return &DevicesHandler{relay: relay, verifier: verifier}
}

// RegisterRoutes registers all device routes on the given mux.
func (h *DevicesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /api/devices", requireIdentity(h.verifier, h.handleListDevices))
	mux.HandleFunc("DELETE /api/devices/{id}", requireIdentity(h.verifier, h.handleDeleteDevice))
	mux.HandleFunc("GET /api/pairs", requireIdentity(h.verifier, h.handleListPairs))
	mux.HandleFunc("DELETE /api/pairs/{id}", requireIdentity(h.verifier, h.handleDeletePair))
}

func (h *DevicesHandler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": h.relay.SessionCount(),
	})
}

func (h *DevicesHandler) handleListDevices(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	devices, err := h.relay.DeviceList(r.Context(), id.UserID, "")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

func (h *DevicesHandler) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	if err := h.relay.RemoveDevice(r.Context(), id.UserID, r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DevicesHandler) handleListPairs(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	pairs, err := h.relay.PairList(r.Context(), id.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pairs": pairs})
}

func (h *DevicesHandler) handleDeletePair(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	if err := h.relay.Unpair(r.Context(), id.UserID, r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DevicesHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	slog.Error("http request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
