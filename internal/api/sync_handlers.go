package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"log/slog"

	"github.com/mrolabs/growthwatch/internal/syncqueue"
)

// SyncHandler exposes the sync queue lifecycle over HTTP. Runs are tied
// to runCtx (the process lifetime), not to the request that started them.
type SyncHandler struct {
	manager *syncqueue.Manager
	runCtx  context.Context
	logger  *slog.Logger
}

func NewSyncHandler(manager *syncqueue.Manager, runCtx context.Context, logger *slog.Logger) *SyncHandler {
	if runCtx == nil {
		runCtx = context.Background()
	}
	return &SyncHandler{manager: manager, runCtx: runCtx, logger: logger}
}

// StartSyncRequest represents a sync run start request
type StartSyncRequest struct {
	Usernames []string `json:"usernames"`
}

// Start handles POST /api/sync/start
func (h *SyncHandler) Start(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if !requirePost(w, r) {
		return
	}

	var req StartSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := ValidateRoster(req.Usernames); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.manager.Start(h.runCtx, req.Usernames); err != nil {
		if errors.Is(err, syncqueue.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, "A sync run is already in progress")
			return
		}
		h.logger.Error("failed to start sync run", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to start sync run")
		return
	}

	writeJSON(w, http.StatusAccepted, h.manager.Status())
}

// Pause handles POST /api/sync/pause
func (h *SyncHandler) Pause(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if !requirePost(w, r) {
		return
	}
	h.manager.Pause()
	writeJSON(w, http.StatusOK, h.manager.Status())
}

// Resume handles POST /api/sync/resume
func (h *SyncHandler) Resume(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if !requirePost(w, r) {
		return
	}
	h.manager.Resume()
	writeJSON(w, http.StatusOK, h.manager.Status())
}

// Stop handles POST /api/sync/stop
func (h *SyncHandler) Stop(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if !requirePost(w, r) {
		return
	}
	h.manager.Stop()
	writeJSON(w, http.StatusOK, h.manager.Status())
}

// Status handles GET /api/sync/status
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, h.manager.Status())
}
