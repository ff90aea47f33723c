package api

import (
	"fmt"
	"net/http"

	"github.com/alchemist-io/alchemist/internal/config"
	"github.com/alchemist-io/alchemist/internal/jobs"
	"github.com/alchemist-io/alchemist/internal/notify"
)

// GetTranscodeSettings handles GET /api/settings/transcode.
func (h *Handler) GetTranscodeSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Settings.Current().Transcode)
}

// UpdateTranscodeSettings handles PUT /api/settings/transcode.
func (h *Handler) UpdateTranscodeSettings(w http.ResponseWriter, r *http.Request) {
	var req config.TranscodeSettings
	if !decodeJSON(w, r, &req) {
		return
	}
	updated, err := h.Settings.Update(r.Context(), func(e *config.EngineSettings) { e.Transcode = req })
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated.Transcode)
}

// GetFileSettings handles GET /api/settings/files.
func (h *Handler) GetFileSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Settings.Current().Files)
}

// UpdateFileSettings handles PUT /api/settings/files.
func (h *Handler) UpdateFileSettings(w http.ResponseWriter, r *http.Request) {
	var req config.FileSettings
	if !decodeJSON(w, r, &req) {
		return
	}
	updated, err := h.Settings.Update(r.Context(), func(e *config.EngineSettings) { e.Files = req })
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated.Files)
}

// GetHardwareSettings handles GET /api/settings/hardware.
func (h *Handler) GetHardwareSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Settings.Current().Hardware)
}

// UpdateHardwareSettings handles PUT /api/settings/hardware.
func (h *Handler) UpdateHardwareSettings(w http.ResponseWriter, r *http.Request) {
	var req config.HardwareSettings
	if !decodeJSON(w, r, &req) {
		return
	}
	updated, err := h.Settings.Update(r.Context(), func(e *config.EngineSettings) { e.Hardware = req })
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated.Hardware)
}

// GetSystemSettings handles GET /api/settings/system.
func (h *Handler) GetSystemSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Settings.Current().System)
}

// UpdateSystemSettings handles PUT /api/settings/system.
func (h *Handler) UpdateSystemSettings(w http.ResponseWriter, r *http.Request) {
	var req config.SystemSettings
	if !decodeJSON(w, r, &req) {
		return
	}
	updated, err := h.Settings.Update(r.Context(), func(e *config.EngineSettings) { e.System = req })
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated.System)
}

// ListScheduleWindows handles GET /api/settings/schedule.
func (h *Handler) ListScheduleWindows(w http.ResponseWriter, r *http.Request) {
	list, err := h.Store.ListScheduleWindows(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// AddScheduleWindow handles POST /api/settings/schedule.
func (h *Handler) AddScheduleWindow(w http.ResponseWriter, r *http.Request) {
	var req jobs.ScheduleWindow
	if !decodeJSON(w, r, &req) {
		return
	}
	added, err := h.Store.AddScheduleWindow(r.Context(), &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

// DeleteScheduleWindow handles DELETE /api/settings/schedule/{id}.
func (h *Handler) DeleteScheduleWindow(w http.ResponseWriter, r *http.Request) {
	id := pathInt64(r, "id")
	if err := h.Store.DeleteScheduleWindow(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ListNotificationTargets handles GET /api/settings/notifications.
func (h *Handler) ListNotificationTargets(w http.ResponseWriter, r *http.Request) {
	list, err := h.Store.ListNotificationTargets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// AddNotificationTarget handles POST /api/settings/notifications.
func (h *Handler) AddNotificationTarget(w http.ResponseWriter, r *http.Request) {
	var req jobs.NotificationTarget
	if !decodeJSON(w, r, &req) {
		return
	}
	added, err := h.Store.AddNotificationTarget(r.Context(), &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

// DeleteNotificationTarget handles DELETE /api/settings/notifications/{id}.
func (h *Handler) DeleteNotificationTarget(w http.ResponseWriter, r *http.Request) {
	id := pathInt64(r, "id")
	if err := h.Store.DeleteNotificationTarget(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// TestNotificationTarget handles POST /api/settings/notifications/{id}/test:
// sends one synthetic delivery through the named target without it needing
// to be subscribed to any real event.
func (h *Handler) TestNotificationTarget(w http.ResponseWriter, r *http.Request) {
	id := pathInt64(r, "id")
	targets, err := h.Store.ListNotificationTargets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var target *jobs.NotificationTarget
	for _, t := range targets {
		if t.ID == id {
			target = t
			break
		}
	}
	if target == nil {
		writeError(w, http.StatusNotFound, "notification target not found")
		return
	}

	sender, err := notify.NewSender(target, notify.NewHTTPClient())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := sender.Send(r.Context(), notify.Message{Title: "Alchemist: test notification", Body: "This is a test delivery."}); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// ListWatchDirs handles GET /api/settings/watch-dirs.
func (h *Handler) ListWatchDirs(w http.ResponseWriter, r *http.Request) {
	list, err := h.Store.ListWatchDirs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// AddWatchDir handles POST /api/settings/watch-dirs.
func (h *Handler) AddWatchDir(w http.ResponseWriter, r *http.Request) {
	var req jobs.WatchDir
	if !decodeJSON(w, r, &req) {
		return
	}
	added, err := h.Store.AddWatchDir(r.Context(), &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.Watcher != nil {
		if err := h.Watcher.Reload(); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusCreated, added)
}

// DeleteWatchDir handles DELETE /api/settings/watch-dirs/{id}.
func (h *Handler) DeleteWatchDir(w http.ResponseWriter, r *http.Request) {
	id := pathInt64(r, "id")
	if err := h.Store.DeleteWatchDir(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func pathInt64(r *http.Request, key string) int64 {
	var id int64
	_, _ = fmt.Sscan(r.PathValue(key), &id)
	return id
}
