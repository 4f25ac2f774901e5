// Package relay adapts the Broker's fallback routing cascade to the
// Asgard and Yggdrasil relay services: when a device isn't reachable by a
// direct local socket, its message is POSTed to a relay over HTTP.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/edda-mesh/bifrost-heimdall/internal/message"
)

// ErrNotConfigured is returned by NopClient for any relay slot the
// deployment hasn't pointed at a real service.
var ErrNotConfigured = errors.New("relay: not configured")

// Client delivers one message envelope to a downstream relay.
type Client interface {
	Deliver(ctx context.Context, env message.Envelope) error
}

// NopClient satisfies Client for a relay slot that isn't wired up, always
// failing so the fallback cascade correctly moves on to the next relay
// (or gives up) instead of silently "succeeding".
type NopClient struct{}

func (NopClient) Deliver(context.Context, message.Envelope) error { return ErrNotConfigured }

// HTTPClient POSTs the canonical JSON envelope to a relay's ingest
// endpoint, retrying transient (5xx, network) failures with exponential
// backoff before giving up.
type HTTPClient struct {
	BaseURL    string
	HTTPClient *http.Client
	MaxRetries uint64
}

// NewHTTPClient creates a relay client targeting baseURL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{BaseURL: baseURL, HTTPClient: &http.Client{Timeout: 10 * time.Second}, MaxRetries: 3}
}

// Deliver POSTs env as canonical JSON. A transport error or a response
// outside 2xx and 4xx is retried up to MaxRetries times with exponential
// backoff; a 4xx response fails at once without retry. The final attempt's
// error is returned if every attempt fails.
func (c *HTTPClient) Deliver(ctx context.Context, env message.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("relay: encoding envelope: %w", err)
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("relay: building request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("relay: request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(fmt.Errorf("relay: rejected with status %d", resp.StatusCode))
		}
		return fmt.Errorf("relay: transient status %d", resp.StatusCode)
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.MaxRetries)
	return backoff.Retry(operation, backoff.WithContext(policy, ctx))
}
