package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/alchemist-io/alchemist/internal/watcher"
)

// scanState tracks the one on-demand rescan allowed in flight at a time,
// mirroring the background-goroutine pattern the teacher's CreateJobs uses
// for slow work: respond immediately, let the caller poll status.
type scanState struct {
	mu      sync.Mutex
	running bool
	result  *watcher.RescanResult
	err     error
}

// StartScan handles POST /api/scan/start. If a scan is already running it
// reports that instead of starting a second one.
func (h *Handler) StartScan(w http.ResponseWriter, r *http.Request) {
	h.scan.mu.Lock()
	if h.scan.running {
		h.scan.mu.Unlock()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "already_running"})
		return
	}
	h.scan.running = true
	h.scan.result = nil
	h.scan.err = nil
	h.scan.mu.Unlock()

	go func() {
		result, err := h.Watcher.RescanAll(context.Background())
		h.scan.mu.Lock()
		h.scan.running = false
		h.scan.result = result
		h.scan.err = err
		h.scan.mu.Unlock()
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// scanStatusResponse reports the progress of the current or most recent
// rescan: whether one is running, how many candidates it found/enqueued,
// and the folder it's currently walking.
type scanStatusResponse struct {
	IsRunning     bool   `json:"is_running"`
	FilesFound    int    `json:"files_found"`
	FilesAdded    int    `json:"files_added"`
	CurrentFolder string `json:"current_folder"`
	Error         string `json:"error,omitempty"`
}

// ScanStatus handles GET /api/scan/status.
func (h *Handler) ScanStatus(w http.ResponseWriter, r *http.Request) {
	h.scan.mu.Lock()
	defer h.scan.mu.Unlock()

	resp := scanStatusResponse{IsRunning: h.scan.running}
	if h.scan.result != nil {
		resp.FilesFound = h.scan.result.FilesFound
		resp.FilesAdded = h.scan.result.FilesAdded
		resp.CurrentFolder = h.scan.result.CurrentFolder
	}
	if h.scan.err != nil {
		resp.Error = h.scan.err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
