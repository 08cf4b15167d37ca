// Package relay talks to the central coordinating service: dispatching
// signed transfers and resolving counterpart public keys. Every call is a
// timeout-bounded network request; callers must not hold account locks
// across them.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vantagebank/settlement/models"
)

// ErrUnavailable indicates the relay could not be reached or did not answer
// in time. A timeout is treated the same as an explicit rejection upstream.
var ErrUnavailable = errors.New("central relay unavailable")

// Rejection is a relay response that refused the transfer. The code and
// message come from the relay's error envelope.
type Rejection struct {
	Code    string
	Message string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("relay rejected transfer: %s (%s)", r.Message, r.Code)
}

// Client dispatches signed transfer payloads to the relay.
type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

// NewClient returns a Client with the given request timeout.
func NewClient(baseURL string, timeout time.Duration, log *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log.With("component", "relay"),
	}
}

// Dispatch posts the signed payload to the relay's transfer endpoint.
// A non-success response comes back as *Rejection; transport failures and
// timeouts come back wrapping ErrUnavailable.
func (c *Client) Dispatch(ctx context.Context, p models.TransferPayload) (*models.RelayAck, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build dispatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("dispatch transport failure", "transaction_id", p.TransactionID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var ack models.RelayAck
		if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
			return nil, fmt.Errorf("%w: bad acknowledgment: %v", ErrUnavailable, err)
		}
		return &ack, nil
	}

	var relayErr models.RelayError
	if err := json.NewDecoder(resp.Body).Decode(&relayErr); err != nil || relayErr.Error.Code == "" {
		c.log.Warn("dispatch failed without error envelope", "transaction_id", p.TransactionID, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil, &Rejection{Code: relayErr.Error.Code, Message: relayErr.Error.Message}
}
