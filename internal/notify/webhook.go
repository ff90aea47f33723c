package notify

import (
	"context"
	"time"

	"github.com/alchemist-io/alchemist/internal/jobs"
)

// webhookSender posts a generic JSON envelope to an operator-supplied URL,
// for targets that don't match Discord's or Gotify's specific shapes.
// AuthToken, when set, is sent as a bearer token rather than a query
// parameter, since a generic webhook has no fixed auth convention to match.
type webhookSender struct {
	target *jobs.NotificationTarget
	http   httpDoer
}

type webhookPayload struct {
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *webhookSender) Send(ctx context.Context, msg Message) error {
	payload := webhookPayload{Title: msg.Title, Message: msg.Body, Timestamp: time.Now()}
	var headers map[string]string
	if s.target.AuthToken != "" {
		headers = map[string]string{"Authorization": "Bearer " + s.target.AuthToken}
	}
	return postJSON(ctx, s.http, s.target.EndpointURL, payload, headers)
}
