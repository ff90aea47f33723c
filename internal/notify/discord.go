package notify

import (
	"context"

	"github.com/alchemist-io/alchemist/internal/jobs"
)

// discordSender posts to a Discord incoming-webhook URL. Discord's webhook
// API takes a single "content" field; Title and Body are folded into one
// bolded-title message rather than Discord's richer embed format, matching
// the plain title+message shape every other target type uses.
type discordSender struct {
	target *jobs.NotificationTarget
	http   httpDoer
}

type discordPayload struct {
	Content string `json:"content"`
}

func (s *discordSender) Send(ctx context.Context, msg Message) error {
	payload := discordPayload{Content: "**" + msg.Title + "**\n" + msg.Body}
	return postJSON(ctx, s.http, s.target.EndpointURL, payload, nil)
}
