package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// httpDoer is the seam every Sender delivers through; satisfied by
// *retryablehttp.Client in production and swappable in tests for one that
// records requests instead of making them.
type httpDoer interface {
	Do(req *retryablehttp.Request) (*http.Response, error)
}

// NewHTTPClient builds the retryablehttp client shared by every Sender. Its
// own logger is silenced in favor of this package's structured warnings —
// retryablehttp's default logs straight to stderr, which would bypass the
// rest of the application's logging.
func NewHTTPClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.Logger = nil
	c.RetryMax = 3
	c.RetryWaitMin = 250 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second
	c.HTTPClient.Timeout = 10 * time.Second
	return c
}

// postJSON marshals body, POSTs it to url via doer, and treats any
// non-2xx response as delivery failure.
func postJSON(ctx context.Context, doer httpDoer, url string, body interface{}, headers map[string]string) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("notify: encode payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := doer.Do(req)
	if err != nil {
		return fmt.Errorf("notify: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: target responded %s", resp.Status)
	}
	return nil
}
