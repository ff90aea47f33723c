// Package notify delivers job lifecycle notifications to operator-configured
// targets (Discord, Gotify, or a generic webhook), each subscribed to its
// own subset of lifecycle events. It has no teacher analog beyond the shape
// of link270-shrinkray/internal/api/sse.go's checkAndSendNotification, which
// drove a single hardcoded Pushover sender off the job queue's empty/complete
// state; here the target type and event subset are both operator data.
package notify

import (
	"context"
	"fmt"

	"github.com/alchemist-io/alchemist/internal/jobs"
)

// Message is the rendered content of one notification, independent of the
// target type that ultimately delivers it.
type Message struct {
	Title string
	Body  string
}

// Sender delivers one Message to a single configured NotificationTarget.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NewSender builds the Sender matching target's type. httpDo is the shared
// retryablehttp-backed client every sender uses to make its own delivery
// resilient to transient network failures without each implementation
// managing its own retry loop.
func NewSender(target *jobs.NotificationTarget, httpDo httpDoer) (Sender, error) {
	switch target.TargetType {
	case jobs.NotificationDiscord:
		return &discordSender{target: target, http: httpDo}, nil
	case jobs.NotificationGotify:
		return &gotifySender{target: target, http: httpDo}, nil
	case jobs.NotificationWebhook:
		return &webhookSender{target: target, http: httpDo}, nil
	default:
		return nil, fmt.Errorf("notify: unknown target type %q", target.TargetType)
	}
}
