package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/javezbak/Jarrarium-Time-Lapse/internal/collector"
)

// StatusSource reports the scheduler's state. *collector.Scheduler
// implements it.
type StatusSource interface {
	Status() collector.Status
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Status        StatusSource
	Logger        *slog.Logger
	StartTime     time.Time
	StorageDriver string
	Version       string
}

// apiError is a JSON error response.
type apiError struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg, Code: status})
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status    string           `json:"status"`
	Version   string           `json:"version"`
	Uptime    string           `json:"uptime"`
	Scheduler collector.Status `json:"scheduler"`
	Database  DatabaseHealth   `json:"database"`
	Backlog   BacklogHealth    `json:"backlog"`
}

// DatabaseHealth describes the store connection.
type DatabaseHealth struct {
	Driver string `json:"driver"`
	Status string `json:"status"`
}

// BacklogHealth counts records waiting to be persisted.
type BacklogHealth struct {
	Readings int `json:"readings"`
	Errors   int `json:"errors"`
}

// Health handles GET /api/v1/health. The daemon is "degraded" while the
// database is unreachable or records are waiting in the backlog.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.Status == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}
	st := h.Status.Status()

	resp := HealthResponse{
		Status:    "healthy",
		Version:   h.Version,
		Uptime:    formatUptime(time.Since(h.StartTime)),
		Scheduler: st,
		Database:  DatabaseHealth{Driver: h.StorageDriver, Status: "disconnected"},
		Backlog:   BacklogHealth{Readings: st.PendingReadings, Errors: st.PendingErrors},
	}
	if st.DatabaseConnected {
		resp.Database.Status = "connected"
	}

	// Outside a session (overnight) the store is closed on purpose.
	inSession := st.SessionID != ""
	if (inSession && !st.DatabaseConnected) || st.PendingReadings > 0 || st.PendingErrors > 0 {
		resp.Status = "degraded"
	}

	writeJSON(w, http.StatusOK, resp)
}

// SchedulerStatus handles GET /api/v1/status.
func (h *Handlers) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if h.Status == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}
	writeJSON(w, http.StatusOK, h.Status.Status())
}
