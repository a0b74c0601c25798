// Package notify sends push notifications through OneSignal.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// DefaultEndpoint is the OneSignal notifications API.
const DefaultEndpoint = "https://onesignal.com/api/v1/notifications"

// ErrNotConfigured is returned when no app id or key is set.
var ErrNotConfigured = errors.New("notify: onesignal not configured")

// Client posts notifications. Calls are throttled so a burst of scans at
// opening time does not trip the provider's limits.
type Client struct {
	AppID    string
	RESTKey  string
	Endpoint string
	HTTP     *http.Client
	limiter  *rate.Limiter
}

// New creates a client allowing perSecond notifications with the given burst.
func New(appID, restKey string, perSecond float64, burst int) *Client {
	return &Client{
		AppID:    appID,
		RESTKey:  restKey,
		Endpoint: DefaultEndpoint,
		HTTP:     &http.Client{Timeout: 10 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Configured reports whether credentials are present.
func (c *Client) Configured() bool {
	return c != nil && c.AppID != "" && c.RESTKey != ""
}

type payload struct {
	AppID            string            `json:"app_id"`
	Headings         map[string]string `json:"headings"`
	Contents         map[string]string `json:"contents"`
	IncludedSegments []string          `json:"included_segments,omitempty"`
	ExternalUserIDs  []string          `json:"include_external_user_ids,omitempty"`
}

// Broadcast notifies every subscribed device.
func (c *Client) Broadcast(ctx context.Context, title, message string) error {
	return c.send(ctx, payload{
		Headings:         map[string]string{"en": title},
		Contents:         map[string]string{"en": message},
		IncludedSegments: []string{"Subscribed Users"},
	})
}

// NotifySubject notifies the devices tagged with subjectID.
func (c *Client) NotifySubject(ctx context.Context, subjectID, title, message string) error {
	return c.send(ctx, payload{
		Headings:        map[string]string{"en": title},
		Contents:        map[string]string{"en": message},
		ExternalUserIDs: []string{subjectID},
	})
}

func (c *Client) send(ctx context.Context, p payload) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("notify: throttle: %w", err)
	}
	p.AppID = c.AppID
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Basic "+c.RESTKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("notify: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("notify: onesignal returned %d: %s", resp.StatusCode, string(msg))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
