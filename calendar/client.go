package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Client is a thin HTTP Source over the clinic's calendar gateway. The
// gateway owns upstream credentials and rate limiting; this client only
// consumes its listing endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a client with the given request timeout. The timeout is
// the sync orchestrator's only defense against a hung collaborator, so it
// must not be zero.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ListBookings fetches bookings in [timeMin, timeMax]. Any transport or
// decode failure is a whole-run failure for the caller.
func (c *Client) ListBookings(ctx context.Context, timeMin, timeMax time.Time) ([]RawBooking, error) {
	q := url.Values{}
	q.Set("time_min", timeMin.UTC().Format(time.RFC3339))
	q.Set("time_max", timeMax.UTC().Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/bookings?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("calendar: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		Bookings []RawBooking `json:"bookings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("calendar: decode response: %w", err)
	}
	return payload.Bookings, nil
}
