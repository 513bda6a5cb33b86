package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"log/slog"

	"github.com/mrolabs/growthwatch/internal/poller"
)

// PollHandler exposes the polling lifecycle over HTTP.
type PollHandler struct {
	poller *poller.Poller
	logger *slog.Logger
}

func NewPollHandler(p *poller.Poller, logger *slog.Logger) *PollHandler {
	return &PollHandler{poller: p, logger: logger}
}

// ActivateRequest represents a polling activation request
type ActivateRequest struct {
	Username   string `json:"username"`
	Credential string `json:"credential"`
}

// UsernameRequest is the body shared by deactivate and check.
type UsernameRequest struct {
	Username string `json:"username"`
}

// Activate handles POST /api/poll/activate
func (h *PollHandler) Activate(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if !requirePost(w, r) {
		return
	}

	var req ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := ValidateUsername(req.Username); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	account, err := h.poller.Activate(r.Context(), req.Username, req.Credential)
	if err != nil {
		h.logger.Error("activation failed", "username", req.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to activate polling")
		return
	}

	writeJSON(w, http.StatusOK, account)
}

// Deactivate handles POST /api/poll/deactivate
func (h *PollHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if !requirePost(w, r) {
		return
	}

	var req UsernameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.poller.Deactivate(r.Context(), req.Username); err != nil {
		if errors.Is(err, poller.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "No tracked account for username")
			return
		}
		h.logger.Error("deactivation failed", "username", req.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to deactivate polling")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// Check handles POST /api/poll/check
func (h *PollHandler) Check(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if !requirePost(w, r) {
		return
	}

	var req UsernameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.poller.Check(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, poller.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "No tracked account for username")
			return
		}
		h.logger.Error("check cycle failed", "username", req.Username, "error", err)
		writeError(w, http.StatusBadGateway, "Check cycle failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Status handles GET /api/poll/status?username=
func (h *PollHandler) Status(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	username := r.URL.Query().Get("username")
	if err := ValidateUsername(username); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	status, err := h.poller.Status(r.Context(), username)
	if err != nil {
		if errors.Is(err, poller.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "No tracked account for username")
			return
		}
		h.logger.Error("status lookup failed", "username", username, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load polling status")
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return false
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}
