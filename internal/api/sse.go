package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/alchemist-io/alchemist/internal/store"
)

// EventStream handles GET /api/events/stream, a server-sent-events feed of
// job lifecycle activity. It sends the current job list and stats as an
// "init" frame, then relays every published event until the client
// disconnects.
func (h *Handler) EventStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := h.Bus.Subscribe()
	defer h.Bus.Unsubscribe(ch)

	ctx := r.Context()
	initJobs, err := h.Store.ListJobs(ctx, store.JobFilter{})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	stats, err := h.Store.Stats(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	initData, _ := json.Marshal(map[string]interface{}{
		"type":  "init",
		"jobs":  initJobs,
		"stats": stats,
	})
	fmt.Fprintf(w, "data: %s\n\n", initData)
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
