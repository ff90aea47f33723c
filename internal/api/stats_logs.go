package api

import (
	"net/http"

	"github.com/alchemist-io/alchemist/internal/jobs"
	"github.com/alchemist-io/alchemist/internal/store"
)

// Stats handles GET /api/stats: aggregated lifetime counters across every
// job the store has ever recorded.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Store.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// DailyStats handles GET /api/stats/daily?days=.
func (h *Handler) DailyStats(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)
	daily, err := h.Store.DailyStats(r.Context(), days)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, daily)
}

// DetailedStats handles GET /api/stats/detailed: the most recently
// completed jobs, for a per-file breakdown rather than the aggregated
// counters Stats reports.
func (h *Handler) DetailedStats(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	list, err := h.Store.ListJobs(r.Context(), store.JobFilter{Status: jobs.StatusCompleted, Limit: limit})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Logs handles GET /api/logs?limit=&offset=.
func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)
	list, err := h.Store.RecentLogs(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// ClearLogs handles DELETE /api/logs.
func (h *Handler) ClearLogs(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.ClearLogs(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
