// Package endpoints provides HTTP endpoint handlers
package endpoints

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/admeshlabs/mediation-bridge/internal/config"
	"github.com/admeshlabs/mediation-bridge/internal/dispatch"
	"github.com/admeshlabs/mediation-bridge/internal/mediation"
	"github.com/admeshlabs/mediation-bridge/internal/storage"
	"github.com/admeshlabs/mediation-bridge/pkg/logger"
)

// BridgeHandler exposes load, show and invalidate over HTTP
type BridgeHandler struct {
	dispatcher  *dispatch.Dispatcher
	placements  storage.PlacementStore
	loadTimeout time.Duration
	showTimeout time.Duration
}

// NewBridgeHandler creates a new bridge handler. placements may be nil,
// in which case requests must carry their own unit configuration.
func NewBridgeHandler(d *dispatch.Dispatcher, placements storage.PlacementStore, loadTimeout, showTimeout time.Duration) *BridgeHandler {
	return &BridgeHandler{
		dispatcher:  d,
		placements:  placements,
		loadTimeout: loadTimeout,
		showTimeout: showTimeout,
	}
}

// loadRequest is the wire form of a load call
type loadRequest struct {
	PlacementID string `json:"placement_id"`
	Format      string `json:"format,omitempty"`
	UnitID      string `json:"unit_id,omitempty"`
	Markup      string `json:"markup,omitempty"`
	Height      *int   `json:"height,omitempty"`
	Muted       bool   `json:"muted,omitempty"`
}

// loadResponse is returned on a successful load
type loadResponse struct {
	HandleID    string `json:"handle_id"`
	PlacementID string `json:"placement_id"`
	Format      string `json:"format"`
	State       string `json:"state"`
}

// handleRequest is the wire form of show and invalidate calls
type handleRequest struct {
	HandleID string `json:"handle_id"`
}

// stateResponse reports a handle's state after an operation
type stateResponse struct {
	HandleID string `json:"handle_id"`
	State    string `json:"state,omitempty"`
}

// HandleLoad handles POST /v1/load
func (h *BridgeHandler) HandleLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var lr loadRequest
	if !decodeBody(w, r, &lr) {
		return
	}

	req := mediation.Request{
		Format:      mediation.Format(lr.Format),
		PlacementID: lr.PlacementID,
		UnitID:      lr.UnitID,
		Markup:      lr.Markup,
		Height:      lr.Height,
		Muted:       lr.Muted,
	}

	// Resolve the partner unit from the catalog when the caller did not
	// supply one directly
	if lr.UnitID == "" && h.placements != nil {
		p, err := h.placements.GetByPlacementID(r.Context(), lr.PlacementID)
		if err != nil {
			lg := logger.HTTP()
			lg.Error().Err(err).Str("placement_id", lr.PlacementID).Msg("Placement lookup failed")
			writeError(w, "placement lookup failed", http.StatusInternalServerError)
			return
		}
		if p == nil {
			writeError(w, "unknown placement", http.StatusNotFound)
			return
		}
		req.UnitID = p.UnitID
		if req.Format == "" {
			req.Format = p.Format
		}
		if req.Height == nil {
			req.Height = p.HeightHint
		}
		if p.Muted {
			req.Muted = true
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.loadTimeout)
	defer cancel()

	start := time.Now()
	handle, err := h.dispatcher.Load(ctx, req)
	if err != nil {
		lg := logger.HTTP()
		lg.Warn().
			Err(err).
			Str("placement_id", req.PlacementID).
			Str("format", string(req.Format)).
			Dur("duration_ms", time.Since(start)).
			Msg("Load failed")
		writeMediationError(w, err)
		return
	}

	lg := logger.HTTP()
	lg.Info().
		Str("handle_id", handle.ID()).
		Str("placement_id", req.PlacementID).
		Str("format", string(req.Format)).
		Dur("duration_ms", time.Since(start)).
		Msg("Load completed")

	writeJSON(w, http.StatusOK, loadResponse{
		HandleID:    handle.ID(),
		PlacementID: req.PlacementID,
		Format:      string(req.Format),
		State:       string(handle.State()),
	})
}

// HandleShow handles POST /v1/show
func (h *BridgeHandler) HandleShow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var hr handleRequest
	if !decodeBody(w, r, &hr) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.showTimeout)
	defer cancel()

	if err := h.dispatcher.Show(ctx, hr.HandleID); err != nil {
		lg := logger.HTTP()
		lg.Warn().Err(err).Str("handle_id", hr.HandleID).Msg("Show failed")
		writeMediationError(w, err)
		return
	}

	state := "shown"
	if hd, ok := h.dispatcher.Registry().Get(hr.HandleID); ok {
		state = string(hd.State())
	}
	writeJSON(w, http.StatusOK, stateResponse{HandleID: hr.HandleID, State: state})
}

// HandleInvalidate handles POST /v1/invalidate
func (h *BridgeHandler) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var hr handleRequest
	if !decodeBody(w, r, &hr) {
		return
	}

	if err := h.dispatcher.Invalidate(hr.HandleID); err != nil {
		writeMediationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stateResponse{HandleID: hr.HandleID, State: "invalidated"})
}

// decodeBody reads and decodes a JSON request body, writing an error
// response and returning false on failure
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, config.DefaultMaxBodySize))
	if err != nil {
		writeError(w, "failed to read request body", http.StatusBadRequest)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, "invalid JSON in request body", http.StatusBadRequest)
		return false
	}
	return true
}

// errorResponse is the wire form of an error
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// writeMediationError maps bridge error codes to HTTP statuses
func writeMediationError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := ""

	var me *mediation.Error
	if errors.As(err, &me) {
		code = string(me.Code)
		switch me.Code {
		case mediation.ErrorCodePrecondition, mediation.ErrorCodeUnsupportedFormat:
			status = http.StatusBadRequest
		case mediation.ErrorCodeNotFound:
			status = http.StatusNotFound
		case mediation.ErrorCodeNotInitialized:
			status = http.StatusServiceUnavailable
		case mediation.ErrorCodeLoadFailed, mediation.ErrorCodeShowFailed:
			status = http.StatusBadGateway
		case mediation.ErrorCodeCancelled:
			status = http.StatusGatewayTimeout
		}
	}

	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: err.Error()}})
}

// writeError writes a plain error response
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, errorResponse{Error: errorBody{Message: message}})
}

// writeJSON writes a JSON response with the given status
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		lg := logger.HTTP()
		lg.Error().Err(err).Msg("failed to encode response")
	}
}
