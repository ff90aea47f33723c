// Package api is the thin HTTP collaborator described as "out of scope,
// interfaces only": it exposes the operations behind the real HTTP/SSE
// surface without owning authentication, sessions, or UI assets. Identity
// is deliberately opaque — the core never inspects who's calling, only
// the real HTTP layer (not built here) would resolve one from a session
// and pass it through. Grounded on link270-shrinkray/internal/api's
// handler/router/sse split and its http.ServeMux + PathValue idiom.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/alchemist-io/alchemist/internal/config"
	"github.com/alchemist-io/alchemist/internal/events"
	"github.com/alchemist-io/alchemist/internal/jobs"
	"github.com/alchemist-io/alchemist/internal/notify"
	"github.com/alchemist-io/alchemist/internal/scheduler"
	"github.com/alchemist-io/alchemist/internal/store"
	"github.com/alchemist-io/alchemist/internal/watcher"
)

// Identity is an opaque authentication/session handle: the core never
// inspects it, it only exists so a future real HTTP layer has somewhere to
// thread a resolved session through without the core package depending on
// how auth works.
type Identity interface{}

// Handler wires every HTTP operation to its collaborators. None of these
// fields does its own locking beyond what the collaborator itself
// provides; Handler is safe for concurrent use because Store, Pool,
// Watcher, and Bus all are.
type Handler struct {
	Store    store.Store
	Pool     *scheduler.Pool
	Watcher  *watcher.Watcher
	Bus      *events.Bus
	Settings *config.LiveSettings
	Notify   *notify.Dispatcher

	scan scanState
}

// NewHandler builds a Handler over its already-running collaborators.
func NewHandler(st store.Store, pool *scheduler.Pool, w *watcher.Watcher, bus *events.Bus, settings *config.LiveSettings, notifier *notify.Dispatcher) *Handler {
	return &Handler{Store: st, Pool: pool, Watcher: w, Bus: bus, Settings: settings, Notify: notifier}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decodeJSON decodes r's body into dst, writing a 400 and reporting false
// on failure so callers can return immediately.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// ListJobs handles GET /api/jobs?status=&search=&limit=&offset=
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	filter := store.JobFilter{
		Status: jobs.Status(r.URL.Query().Get("status")),
		Search: r.URL.Query().Get("search"),
		Limit:  queryInt(r, "limit", 0),
		Offset: queryInt(r, "offset", 0),
	}
	list, err := h.Store.ListJobs(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetJob handles GET /api/jobs/{id}: the job plus its latest decision and
// encode stats.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	detail, err := h.Store.GetJobDetail(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// CancelJob handles DELETE /api/jobs/{id}: cancels an in-flight job via the
// Pool's cancellation handle, or transitions a queued job straight to
// cancelled if no Runner has claimed it yet.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if h.Pool.CancelJob(id) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
		return
	}
	if err := h.Store.Transition(r.Context(), id, jobs.StatusQueued, jobs.StatusCancelled, "cancelled before claim"); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// RestartJob handles POST /api/jobs/{id}/retry.
func (h *Handler) RestartJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.Store.RestartJob(r.Context(), id); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}

// DeleteJob handles DELETE /api/jobs/{id}/delete (distinct from cancel:
// removes the row entirely rather than transitioning it).
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.Store.DeleteJob(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// BulkRequest is the request body for POST /api/jobs/bulk.
type BulkRequest struct {
	Action string   `json:"action"` // cancel, restart, delete, clear-completed
	IDs    []string `json:"ids,omitempty"`
}

// BulkJobs handles POST /api/jobs/bulk, applying one action (cancel,
// restart, delete, or clear-completed) across a set of jobs (or every
// completed job, for clear-completed) and reporting how many succeeded.
func (h *Handler) BulkJobs(w http.ResponseWriter, r *http.Request) {
	var req BulkRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ids := req.IDs
	if req.Action == "clear-completed" {
		completed, err := h.Store.ListJobs(r.Context(), store.JobFilter{Status: jobs.StatusCompleted})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		ids = make([]string, len(completed))
		for i, j := range completed {
			ids[i] = j.ID
		}
		req.Action = "delete"
	}

	succeeded := 0
	for _, id := range ids {
		var err error
		switch req.Action {
		case "cancel":
			if !h.Pool.CancelJob(id) {
				err = h.Store.Transition(r.Context(), id, jobs.StatusQueued, jobs.StatusCancelled, "bulk cancel")
			}
		case "restart":
			err = h.Store.RestartJob(r.Context(), id)
		case "delete":
			err = h.Store.DeleteJob(r.Context(), id)
		default:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown bulk action %q", req.Action))
			return
		}
		if err == nil {
			succeeded++
		}
	}
	writeJSON(w, http.StatusOK, map[string]int{"succeeded": succeeded, "requested": len(ids)})
}

// PauseQueue handles POST /api/queue/pause.
func (h *Handler) PauseQueue(w http.ResponseWriter, r *http.Request) {
	h.Pool.Pause()
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

// ResumeQueue handles POST /api/queue/resume.
func (h *Handler) ResumeQueue(w http.ResponseWriter, r *http.Request) {
	h.Pool.Resume()
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

// EngineStatus handles GET /api/engine/status: the pool's active count
// and paused flag, the concurrent-job limit from the live settings, plus
// lifetime total/completed/failed counters.
func (h *Handler) EngineStatus(w http.ResponseWriter, r *http.Request) {
	poolStatus := h.Pool.Status()
	stats, err := h.Store.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active":          poolStatus.Active,
		"paused":          poolStatus.Paused,
		"concurrent_limit": h.Settings.Current().Transcode.ConcurrentJobs,
		"total":           stats.Total,
		"completed":       stats.Completed,
		"failed":          stats.Failed,
	})
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil {
		return def
	}
	return n
}
