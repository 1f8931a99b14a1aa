package calendar_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxia/clinic-engine/calendar"
)

// =============================================================================
// VALIDATION TESTS
// =============================================================================

func TestRawBooking_Validate_Strict(t *testing.T) {
	// GIVEN: Payloads missing required fields or carrying unparseable times
	// WHEN: Validating
	// THEN: Each is a malformed booking, never best-effort repaired

	cases := map[string]calendar.RawBooking{
		"missing id":   {Title: "x", Start: "2026-03-10T10:00:00Z", End: "2026-03-10T11:00:00Z"},
		"blank id":     {ExternalID: "   ", Start: "2026-03-10T10:00:00Z", End: "2026-03-10T11:00:00Z"},
		"bad start":    {ExternalID: "b1", Start: "tuesday", End: "2026-03-10T11:00:00Z"},
		"bad end":      {ExternalID: "b1", Start: "2026-03-10T10:00:00Z", End: "soon"},
		"empty start":  {ExternalID: "b1", End: "2026-03-10T11:00:00Z"},
	}

	for name, raw := range cases {
		_, err := raw.Validate()
		assert.ErrorIs(t, err, calendar.ErrMalformedBooking, name)
	}
}

func TestRawBooking_Validate_AcceptsRFC3339AndDateOnly(t *testing.T) {
	// Timed booking.
	b, err := calendar.RawBooking{
		ExternalID: "b1",
		Title:      "Patient /eli/",
		Start:      "2026-03-10T10:00:00Z",
		End:        "2026-03-10T11:00:00Z",
	}.Validate()
	require.NoError(t, err)
	assert.Equal(t, "b1", b.ExternalID)
	assert.Equal(t, time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC), b.Start)

	// All-day booking arrives date-only.
	b, err = calendar.RawBooking{
		ExternalID: "b2",
		Start:      "2026-03-10",
		End:        "2026-03-11",
	}.Validate()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC), b.Start)
}

// =============================================================================
// CANCELLATION DETECTION
// =============================================================================

func TestIsCancelled(t *testing.T) {
	base := calendar.RawBooking{ExternalID: "b1", Start: "2026-03-10", End: "2026-03-10"}

	flag := base
	flag.Cancelled = true
	assert.True(t, calendar.IsCancelled(flag), "explicit flag")

	status := base
	status.Status = "CANCELLED"
	assert.True(t, calendar.IsCancelled(status), "status field, any case")

	struck := base
	struck.Title = "P̶a̶t̶i̶e̶n̶t̶"
	assert.True(t, calendar.IsCancelled(struck), "struck-through title")

	assert.False(t, calendar.IsCancelled(base), "plain booking")
}

// =============================================================================
// HTTP CLIENT TESTS
// =============================================================================

func TestClient_ListBookings(t *testing.T) {
	// GIVEN: A gateway serving one booking
	// WHEN: Listing a window
	// THEN: Query params carry the window and the payload decodes

	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"time_min": r.URL.Query().Get("time_min"),
			"time_max": r.URL.Query().Get("time_max"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"bookings":[{"external_id":"b1","title":"Patient /eli/","start_datetime":"2026-03-10T10:00:00Z","end_datetime":"2026-03-10T11:00:00Z"}]}`))
	}))
	t.Cleanup(srv.Close)

	client := calendar.NewClient(srv.URL, 5*time.Second)
	from := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC)

	bookings, err := client.ListBookings(context.Background(), from, to)
	require.NoError(t, err)

	require.Len(t, bookings, 1)
	assert.Equal(t, "b1", bookings[0].ExternalID)
	assert.Equal(t, "2026-03-01T00:00:00Z", gotQuery["time_min"])
	assert.Equal(t, "2026-03-31T00:00:00Z", gotQuery["time_max"])
}

func TestClient_ListBookings_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	client := calendar.NewClient(srv.URL, 5*time.Second)
	_, err := client.ListBookings(context.Background(), time.Now().Add(-time.Hour), time.Now())
	assert.Error(t, err)
}
