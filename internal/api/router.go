package api

import "net/http"

// registerAPIRoutes wires every HTTP operation to its handler method.
func registerAPIRoutes(mux *http.ServeMux, h *Handler) {
	// Job management
	mux.HandleFunc("GET /api/jobs", h.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", h.GetJob)
	mux.HandleFunc("DELETE /api/jobs/{id}", h.CancelJob)
	mux.HandleFunc("POST /api/jobs/{id}/retry", h.RestartJob)
	mux.HandleFunc("DELETE /api/jobs/{id}/delete", h.DeleteJob)
	mux.HandleFunc("POST /api/jobs/bulk", h.BulkJobs)
	mux.HandleFunc("GET /api/events/stream", h.EventStream)

	// Queue/engine control
	mux.HandleFunc("POST /api/queue/pause", h.PauseQueue)
	mux.HandleFunc("POST /api/queue/resume", h.ResumeQueue)
	mux.HandleFunc("GET /api/engine/status", h.EngineStatus)

	// On-demand rescan
	mux.HandleFunc("POST /api/scan/start", h.StartScan)
	mux.HandleFunc("GET /api/scan/status", h.ScanStatus)

	// Settings
	mux.HandleFunc("GET /api/settings/transcode", h.GetTranscodeSettings)
	mux.HandleFunc("PUT /api/settings/transcode", h.UpdateTranscodeSettings)
	mux.HandleFunc("GET /api/settings/files", h.GetFileSettings)
	mux.HandleFunc("PUT /api/settings/files", h.UpdateFileSettings)
	mux.HandleFunc("GET /api/settings/hardware", h.GetHardwareSettings)
	mux.HandleFunc("PUT /api/settings/hardware", h.UpdateHardwareSettings)
	mux.HandleFunc("GET /api/settings/system", h.GetSystemSettings)
	mux.HandleFunc("PUT /api/settings/system", h.UpdateSystemSettings)

	mux.HandleFunc("GET /api/settings/schedule", h.ListScheduleWindows)
	mux.HandleFunc("POST /api/settings/schedule", h.AddScheduleWindow)
	mux.HandleFunc("DELETE /api/settings/schedule/{id}", h.DeleteScheduleWindow)

	mux.HandleFunc("GET /api/settings/notifications", h.ListNotificationTargets)
	mux.HandleFunc("POST /api/settings/notifications", h.AddNotificationTarget)
	mux.HandleFunc("DELETE /api/settings/notifications/{id}", h.DeleteNotificationTarget)
	mux.HandleFunc("POST /api/settings/notifications/{id}/test", h.TestNotificationTarget)

	mux.HandleFunc("GET /api/settings/watch-dirs", h.ListWatchDirs)
	mux.HandleFunc("POST /api/settings/watch-dirs", h.AddWatchDir)
	mux.HandleFunc("DELETE /api/settings/watch-dirs/{id}", h.DeleteWatchDir)

	// Stats and logs
	mux.HandleFunc("GET /api/stats", h.Stats)
	mux.HandleFunc("GET /api/stats/daily", h.DailyStats)
	mux.HandleFunc("GET /api/stats/detailed", h.DetailedStats)
	mux.HandleFunc("GET /api/logs", h.Logs)
	mux.HandleFunc("DELETE /api/logs", h.ClearLogs)
}

// NewRouter builds the full HTTP surface over h. There's no bundled UI to
// serve here — this package stays a thin collaborator over the real
// operations, not a UI host — so the root path just confirms the server
// is up.
func NewRouter(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	registerAPIRoutes(mux, h)

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("alchemist engine running"))
	})

	return mux
}
