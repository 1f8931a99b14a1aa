/*
Package calendar defines the external calendar collaborator consumed by the
sync orchestrator.

This core does not own credentials, upstream retry policy or rate limiting;
those belong to the collaborator behind the Source interface. The package
owns only the booking shape, strict payload validation and cancellation
detection.
*/
package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedBooking marks a single payload with missing or unusable
// required fields. Sync counts and skips these; they never abort a run.
var ErrMalformedBooking = errors.New("malformed booking payload")

// Booking is the validated shape consumed from the collaborator.
type Booking struct {
	ExternalID string
	Title      string
	Start      time.Time
	End        time.Time
	Cancelled  bool
}

// Source lists bookings in [timeMin, timeMax]. Implementations must honor
// ctx; any transport failure means the whole sync run fails.
type Source interface {
	ListBookings(ctx context.Context, timeMin, timeMax time.Time) ([]RawBooking, error)
}

// RawBooking is the wire payload before validation. Fields arrive
// dynamically typed upstream; deviation from the required shape is a
// malformed record, never best-effort field-guessing.
type RawBooking struct {
	ExternalID string `json:"external_id"`
	Title      string `json:"title"`
	Start      string `json:"start_datetime"`
	End        string `json:"end_datetime"`
	Cancelled  bool   `json:"cancelled"`
	Status     string `json:"status,omitempty"`
}

// Validate turns a raw payload into a Booking or reports it malformed.
func (r RawBooking) Validate() (Booking, error) {
	if strings.TrimSpace(r.ExternalID) == "" {
		return Booking{}, fmt.Errorf("%w: missing external id", ErrMalformedBooking)
	}
	start, err := parseBookingTime(r.Start)
	if err != nil {
		return Booking{}, fmt.Errorf("%w: booking %s: bad start %q", ErrMalformedBooking, r.ExternalID, r.Start)
	}
	end, err := parseBookingTime(r.End)
	if err != nil {
		return Booking{}, fmt.Errorf("%w: booking %s: bad end %q", ErrMalformedBooking, r.ExternalID, r.End)
	}

	return Booking{
		ExternalID: strings.TrimSpace(r.ExternalID),
		Title:      r.Title,
		Start:      start,
		End:        end,
		Cancelled:  IsCancelled(r),
	}, nil
}

func parseBookingTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	// All-day bookings arrive date-only.
	return time.Parse("2006-01-02", s)
}

// IsCancelled detects cancellation from the status field or a
// struck-through title. Orthogonal to attribution.
func IsCancelled(r RawBooking) bool {
	if r.Cancelled || strings.EqualFold(r.Status, "cancelled") {
		return true
	}
	return struckThrough(r.Title)
}

// struckThrough reports titles rendered with combining long stroke overlay
// characters, the calendar UI's strikethrough.
func struckThrough(title string) bool {
	return strings.ContainsRune(title, '̶')
}
