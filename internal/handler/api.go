package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"hwrelay/internal/domain"
	"hwrelay/internal/relay"
	"hwrelay/internal/repository"
)

const (
	defaultJournalLimit = 50
	maxJournalLimit     = 1000
)

// StatusSource reports the relay's current state
type StatusSource interface {
	Status() relay.Status
}

// APIHandler handles the status and journal API
type APIHandler struct {
	status  StatusSource
	journal repository.Journal
}

// NewAPIHandler creates a new API handler. journal may be nil when the
// activity journal is disabled.
func NewAPIHandler(status StatusSource, journal repository.Journal) *APIHandler {
	return &APIHandler{status: status, journal: journal}
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// HealthResponse is the /healthz body
type HealthResponse struct {
	Status        string `json:"status"`
	HardwareReady bool   `json:"hardware_ready"`
}

// GetStatus returns the relay status
func (h *APIHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.status.Status(), http.StatusOK)
}

// GetJournal returns recent activity, newest first
func (h *APIHandler) GetJournal(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeError(w, "Journal disabled", "set journal.path or --journal to enable", http.StatusServiceUnavailable)
		return
	}

	limit := defaultJournalLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, "Invalid limit", "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxJournalLimit)
	}

	entries, err := h.journal.Recent(r.Context(), limit)
	if err != nil {
		log.Printf("Failed to read journal: %v", err)
		writeError(w, "Failed to read journal", err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []domain.JournalEntry{}
	}

	writeJSON(w, entries, http.StatusOK)
}

// Healthz reports that the process is serving. Hardware state is included
// for information only; a disconnected device is not unhealthy.
func (h *APIHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthResponse{
		Status:        "ok",
		HardwareReady: h.status.Status().HardwareReady,
	}, http.StatusOK)
}

func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON: %v", err)
	}
}

func writeError(w http.ResponseWriter, error, details string, statusCode int) {
	writeJSON(w, ErrorResponse{Error: error, Details: details}, statusCode)
}
