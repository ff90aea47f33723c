package notify

import (
	"context"

	"github.com/alchemist-io/alchemist/internal/jobs"
)

// gotifySender posts to a Gotify server's /message endpoint. Gotify
// authenticates via an application token passed as a query parameter, per
// its own API convention, rather than a header.
type gotifySender struct {
	target *jobs.NotificationTarget
	http   httpDoer
}

type gotifyPayload struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	Priority int    `json:"priority"`
}

const gotifyDefaultPriority = 5

func (s *gotifySender) Send(ctx context.Context, msg Message) error {
	payload := gotifyPayload{Title: msg.Title, Message: msg.Body, Priority: gotifyDefaultPriority}
	url := s.target.EndpointURL
	if s.target.AuthToken != "" {
		url += "?token=" + s.target.AuthToken
	}
	return postJSON(ctx, s.http, url, payload, nil)
}
