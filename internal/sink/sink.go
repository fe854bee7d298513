// Package sink forwards order payloads to the remote order-processing endpoint.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/kunhuatsai-cpu/tilepark-order/internal/enum"
	"github.com/kunhuatsai-cpu/tilepark-order/internal/order"
)

// ErrRejected is returned in acknowledged mode when the endpoint answers
// with a non-2xx status.
var ErrRejected = errors.New("order rejected by endpoint")

// Client posts payloads to an endpoint. It never retries.
type Client struct {
	http *http.Client
}

// NewClient creates a Client whose requests give up after timeout.
// A zero timeout means no limit.
func NewClient(timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}}
}

// NewClientWith wraps an existing http.Client, e.g. one carrying a custom
// TLS configuration or transport.
func NewClientWith(c *http.Client) *Client {
	return &Client{http: c}
}

// Send posts p as JSON to endpoint.
//
// In OPAQUE mode the response is drained and ignored: any completed round
// trip counts as delivered, even a 5xx. Only ACKNOWLEDGED mode looks at the
// status code.
func (c *Client) Send(ctx context.Context, endpoint, ackMode string, p order.Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post order %s: %w", p.OrderID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if ackMode == enum.AckModeAcknowledged && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		log.Printf("WARN: order %s rejected by endpoint: status %d", p.OrderID, resp.StatusCode)
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}
	return nil
}
