package notify

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/alchemist-io/alchemist/internal/jobs"
	"github.com/alchemist-io/alchemist/internal/logger"
	"github.com/alchemist-io/alchemist/internal/store"
	"github.com/alchemist-io/alchemist/internal/util"
)

// Dispatcher fans one lifecycle event out to every enabled NotificationTarget
// subscribed to it. A delivery failure against one target is logged and
// skipped rather than aborting the rest, mirroring the teacher's "log error
// but don't crash" handling of its own single Pushover send.
type Dispatcher struct {
	Store store.Store
	HTTP  httpDoer
}

// NewDispatcher builds a Dispatcher backed by a real retryablehttp client.
func NewDispatcher(st store.Store) *Dispatcher {
	return &Dispatcher{Store: st, HTTP: NewHTTPClient()}
}

// Notify delivers event to every enabled target subscribed to it. detail is
// a short free-text reason (empty for EventQueued, the failure reason for
// EventFailed, unused for EventCompleted). stats is nil unless event is
// EventCompleted.
func (d *Dispatcher) Notify(ctx context.Context, event jobs.NotificationEvent, job *jobs.Job, detail string, stats *jobs.EncodeStats) {
	targets, err := d.Store.ListNotificationTargets(ctx)
	if err != nil {
		logger.Warn("notify: list targets failed", "error", err)
		return
	}

	msg := buildMessage(event, job, detail, stats)
	for _, target := range targets {
		if !target.Enabled || !subscribesTo(target, event) {
			continue
		}
		sender, err := NewSender(target, d.HTTP)
		if err != nil {
			logger.Warn("notify: unsupported target", "target", target.Name, "error", err)
			continue
		}
		if err := sender.Send(ctx, msg); err != nil {
			logger.Warn("notify: delivery failed", "target", target.Name, "event", event, "error", err)
		}
	}
}

func subscribesTo(target *jobs.NotificationTarget, event jobs.NotificationEvent) bool {
	for _, e := range target.Events {
		if e == event {
			return true
		}
	}
	return false
}

func buildMessage(event jobs.NotificationEvent, job *jobs.Job, detail string, stats *jobs.EncodeStats) Message {
	name := filepath.Base(job.InputPath)
	switch event {
	case jobs.EventQueued:
		return Message{Title: "Alchemist: job queued", Body: name}
	case jobs.EventCompleted:
		body := name
		if stats != nil {
			saved := stats.InputSizeBytes - stats.OutputSizeBytes
			body = fmt.Sprintf("%s\n%s -> %s (saved %s)", name,
				util.FormatBytes(stats.InputSizeBytes), util.FormatBytes(stats.OutputSizeBytes), util.FormatBytes(saved))
		}
		return Message{Title: "Alchemist: job completed", Body: body}
	case jobs.EventFailed:
		return Message{Title: "Alchemist: job failed", Body: fmt.Sprintf("%s\n%s", name, detail)}
	default:
		return Message{Title: "Alchemist", Body: name}
	}
}
