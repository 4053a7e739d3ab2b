package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jbweber/homelab/warden/internal/domain"
	"github.com/jbweber/homelab/warden/internal/engine"
	"go.uber.org/zap"
)

// AddBindingRequest is the admission payload.
type AddBindingRequest struct {
	Zone            string     `json:"zone"`
	MAC             string     `json:"mac"`
	DurationSeconds int64      `json:"duration_seconds,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	VoucherHash     string     `json:"voucher_hash,omitempty"`
	SrcIP           string     `json:"src_ip,omitempty"`
	Description     string     `json:"description,omitempty"`
	Action          string     `json:"action,omitempty"`
}

// AddBindingResponse reports the applied binding.
type AddBindingResponse struct {
	Zone      string    `json:"zone"`
	MAC       string    `json:"mac"`
	ExpiresAt time.Time `json:"expires_at"`
	Action    string    `json:"action"`
	// Warning is set when the binding was stored locally but a
	// registry, reload, or audit step failed.
	Warning string `json:"warning,omitempty"`
}

// UpdateBindingRequest mutates fields of an existing binding.
type UpdateBindingRequest struct {
	Zone        string     `json:"zone,omitempty"`
	Action      string     `json:"action,omitempty"`
	Description string     `json:"description,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// ErrorResponse is the generic error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ConflictResponse carries the machine-readable voucher conflict.
type ConflictResponse struct {
	Error            string `json:"error"`
	Code             string `json:"code"`
	BoundMAC         string `json:"bound_mac"`
	RemainingSeconds int64  `json:"remaining_seconds"`
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("failed to encode response", zap.Error(err))
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeEngineError maps the engine error taxonomy to HTTP statuses.
func (a *API) writeEngineError(w http.ResponseWriter, err error) {
	var conflict *engine.ConflictError
	switch {
	case errors.As(err, &conflict):
		a.writeJSON(w, http.StatusConflict, ConflictResponse{
			Error:            conflict.Error(),
			Code:             conflict.Code(),
			BoundMAC:         conflict.BoundMAC,
			RemainingSeconds: conflict.RemainingSeconds,
		})
	case errors.Is(err, engine.ErrValidation):
		a.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrNotFound):
		a.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrCollaborator):
		a.writeError(w, http.StatusBadGateway, err.Error())
	default:
		a.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// ListBindingsHandler returns the reconciled binding view, optionally
// filtered by the zone query parameter.
func (a *API) ListBindingsHandler(w http.ResponseWriter, r *http.Request) {
	unified, err := a.service.ListBindings(r.Context(), r.URL.Query().Get("zone"))
	if err != nil {
		a.writeEngineError(w, err)
		return
	}
	if unified == nil {
		unified = []domain.UnifiedBinding{}
	}
	a.writeJSON(w, http.StatusOK, unified)
}

// AddBindingHandler admits or renews a binding.
func (a *API) AddBindingHandler(w http.ResponseWriter, r *http.Request) {
	var req AddBindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Zone == "" || req.MAC == "" {
		a.writeError(w, http.StatusBadRequest, "zone and mac are required")
		return
	}

	srcIP := req.SrcIP
	if srcIP == "" {
		if ip, err := extractClientIP(r); err == nil {
			srcIP = ip
		}
	}

	addReq := engine.AddRequest{
		Zone:        req.Zone,
		MAC:         req.MAC,
		Duration:    time.Duration(req.DurationSeconds) * time.Second,
		VoucherHash: req.VoucherHash,
		SrcIP:       srcIP,
		Description: req.Description,
		Action:      req.Action,
	}
	if req.ExpiresAt != nil {
		addReq.ExpiresAt = *req.ExpiresAt
	}

	res, err := a.service.AddBinding(r.Context(), addReq)
	if err != nil && !errors.Is(err, engine.ErrCollaborator) {
		a.writeEngineError(w, err)
		return
	}

	resp := AddBindingResponse{
		Zone:      res.Binding.Zone,
		MAC:       res.Binding.MAC,
		ExpiresAt: res.ExpiresAt,
		Action:    res.Action,
	}
	status := http.StatusOK
	if res.Action == "created" {
		status = http.StatusCreated
	}
	if err != nil {
		// Stored locally; external commit needs a retry or sweep.
		resp.Warning = err.Error()
	}
	a.writeJSON(w, status, resp)
}

// RemoveBindingHandler tears down a binding. The outcome field lets
// callers tell an idempotent repeat from a zone-filtered miss.
func (a *API) RemoveBindingHandler(w http.ResponseWriter, r *http.Request) {
	mac := chi.URLParam(r, "mac")
	if mac == "" {
		a.writeError(w, http.StatusBadRequest, "mac is required")
		return
	}
	res, err := a.service.RemoveBinding(r.Context(), mac, r.URL.Query().Get("zone"))
	if err != nil {
		a.writeEngineError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, res)
}

// UpdateBindingHandler changes action, description, or expiry.
func (a *API) UpdateBindingHandler(w http.ResponseWriter, r *http.Request) {
	mac := chi.URLParam(r, "mac")
	if mac == "" {
		a.writeError(w, http.StatusBadRequest, "mac is required")
		return
	}
	var req UpdateBindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	res, err := a.service.UpdateBinding(r.Context(), engine.UpdateRequest{
		MAC:         mac,
		Zone:        req.Zone,
		Action:      req.Action,
		Description: req.Description,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		a.writeEngineError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, res)
}

// CleanupHandler runs an expiry sweep.
func (a *API) CleanupHandler(w http.ResponseWriter, r *http.Request) {
	res, err := a.service.CleanupExpired(r.Context())
	if err != nil {
		a.writeEngineError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, res)
}

// SearchHandler filters the reconciled view by substring.
func (a *API) SearchHandler(w http.ResponseWriter, r *http.Request) {
	unified, err := a.service.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		a.writeEngineError(w, err)
		return
	}
	if unified == nil {
		unified = []domain.UnifiedBinding{}
	}
	a.writeJSON(w, http.StatusOK, unified)
}
