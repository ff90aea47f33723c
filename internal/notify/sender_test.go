package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/alchemist-io/alchemist/internal/jobs"
)

// fakeDoer records every request it receives and returns a fixed status,
// standing in for the real HTTP round trip the senders otherwise make.
type fakeDoer struct {
	status   int
	requests []*retryablehttp.Request
}

func (f *fakeDoer) Do(req *retryablehttp.Request) (*http.Response, error) {
	f.requests = append(f.requests, req)
	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(""))}, nil
}

func bodyOf(t *testing.T, req *retryablehttp.Request) map[string]interface{} {
	t.Helper()
	rc, err := req.GetBody()
	if err != nil {
		t.Fatalf("GetBody: %v", err)
	}
	raw, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal body %q: %v", raw, err)
	}
	return decoded
}

func TestDiscordSenderPostsContentField(t *testing.T) {
	target := &jobs.NotificationTarget{TargetType: jobs.NotificationDiscord, EndpointURL: "https://discord.example/webhook"}
	doer := &fakeDoer{}
	sender, err := NewSender(target, doer)
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}

	if err := sender.Send(context.Background(), Message{Title: "Job done", Body: "movie.mkv"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(doer.requests) != 1 {
		t.Fatalf("got %d requests, want 1", len(doer.requests))
	}
	req := doer.requests[0]
	if req.URL.String() != target.EndpointURL {
		t.Errorf("URL = %q, want %q", req.URL.String(), target.EndpointURL)
	}
	body := bodyOf(t, req)
	content, _ := body["content"].(string)
	if !strings.Contains(content, "Job done") || !strings.Contains(content, "movie.mkv") {
		t.Errorf("content = %q, want it to contain title and body", content)
	}
}

func TestGotifySenderAppendsTokenQueryParam(t *testing.T) {
	target := &jobs.NotificationTarget{
		TargetType:  jobs.NotificationGotify,
		EndpointURL: "https://gotify.example/message",
		AuthToken:   "secret-token",
	}
	doer := &fakeDoer{}
	sender, err := NewSender(target, doer)
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}

	if err := sender.Send(context.Background(), Message{Title: "t", Body: "b"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	req := doer.requests[0]
	if req.URL.Query().Get("token") != "secret-token" {
		t.Errorf("token query param = %q, want %q", req.URL.Query().Get("token"), "secret-token")
	}
	body := bodyOf(t, req)
	if body["title"] != "t" || body["message"] != "b" {
		t.Errorf("body = %+v, want title=t message=b", body)
	}
}

func TestWebhookSenderSetsBearerHeaderWhenAuthTokenPresent(t *testing.T) {
	target := &jobs.NotificationTarget{
		TargetType:  jobs.NotificationWebhook,
		EndpointURL: "https://hooks.example/alchemist",
		AuthToken:   "abc123",
	}
	doer := &fakeDoer{}
	sender, err := NewSender(target, doer)
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}

	if err := sender.Send(context.Background(), Message{Title: "t", Body: "b"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	req := doer.requests[0]
	if got := req.Header.Get("Authorization"); got != "Bearer abc123" {
		t.Errorf("Authorization header = %q, want %q", got, "Bearer abc123")
	}
}

func TestWebhookSenderOmitsAuthHeaderWhenNoToken(t *testing.T) {
	target := &jobs.NotificationTarget{TargetType: jobs.NotificationWebhook, EndpointURL: "https://hooks.example/alchemist"}
	doer := &fakeDoer{}
	sender, _ := NewSender(target, doer)

	if err := sender.Send(context.Background(), Message{Title: "t", Body: "b"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got := doer.requests[0].Header.Get("Authorization"); got != "" {
		t.Errorf("Authorization header = %q, want empty", got)
	}
}

func TestSenderReturnsErrorOnNonSuccessStatus(t *testing.T) {
	target := &jobs.NotificationTarget{TargetType: jobs.NotificationWebhook, EndpointURL: "https://hooks.example/alchemist"}
	doer := &fakeDoer{status: http.StatusInternalServerError}
	sender, _ := NewSender(target, doer)

	if err := sender.Send(context.Background(), Message{Title: "t", Body: "b"}); err == nil {
		t.Error("Send() = nil error, want an error for a 500 response")
	}
}

func TestNewSenderRejectsUnknownTargetType(t *testing.T) {
	target := &jobs.NotificationTarget{TargetType: "carrier-pigeon"}
	if _, err := NewSender(target, &fakeDoer{}); err == nil {
		t.Error("NewSender() = nil error, want one for an unrecognized target type")
	}
}
