package ingest_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxia/clinic-engine/billing"
	"github.com/praxia/clinic-engine/billing/store"
	"github.com/praxia/clinic-engine/calendar"
	"github.com/praxia/clinic-engine/ingest"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fakeSource struct {
	bookings []calendar.RawBooking
	err      error
}

func (f *fakeSource) ListBookings(_ context.Context, _, _ time.Time) ([]calendar.RawBooking, error) {
	return f.bookings, f.err
}

type memoryRunRecorder struct {
	mu   sync.Mutex
	runs []ingest.Run
}

func (r *memoryRunRecorder) SaveRun(_ context.Context, run ingest.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

func newTestOrchestrator(t *testing.T, src *fakeSource) (*ingest.Orchestrator, *store.Memory, *memoryRunRecorder) {
	t.Helper()
	mem := store.NewMemory()
	recorder := &memoryRunRecorder{}

	require.NoError(t, mem.SavePractitioner(context.Background(), billing.Practitioner{
		ID:           "p-eli",
		Name:         "Elisabeth Moreau",
		Aliases:      []string{"eli"},
		SessionPrice: decimal.NewFromInt(100),
	}))

	return &ingest.Orchestrator{
		Source:        src,
		Sessions:      mem,
		Practitioners: mem,
		Runs:          recorder,
	}, mem, recorder
}

func booking(id, title, start string) calendar.RawBooking {
	return calendar.RawBooking{
		ExternalID: id,
		Title:      title,
		Start:      start,
		End:        start,
	}
}

func window() (time.Time, time.Time) {
	return time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// SYNC TESTS
// =============================================================================

func TestSync_AttributesAndPricesSessions(t *testing.T) {
	// GIVEN: One booking tagged /eli/ and one without any tag
	// WHEN: Syncing
	// THEN: The tagged one is attributed with the registry price, the other
	//       lands unassigned but still in the ledger

	src := &fakeSource{bookings: []calendar.RawBooking{
		booking("b1", "Patient A /eli/", "2026-03-10T10:00:00Z"),
		booking("b2", "Patient B", "2026-03-11T09:00:00Z"),
	}}
	o, mem, _ := newTestOrchestrator(t, src)
	ctx := context.Background()

	from, to := window()
	result, err := o.Sync(ctx, from, to)
	require.NoError(t, err)
	assert.Equal(t, ingest.Result{Processed: 2, Created: 2}, result)

	tagged, err := mem.GetSession(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, billing.PractitionerID("p-eli"), tagged.PractitionerID)
	assert.True(t, decimal.NewFromInt(100).Equal(tagged.OriginalPrice))
	assert.Equal(t, "10:00", tagged.StartTime)
	assert.Equal(t, billing.PaymentPending, tagged.PaymentStatus)

	orphan, err := mem.GetSession(ctx, "b2")
	require.NoError(t, err)
	assert.False(t, orphan.Assigned())
	assert.True(t, orphan.OriginalPrice.IsZero())
}

func TestSync_IdempotentRerun(t *testing.T) {
	// GIVEN: A booking already synced once
	// WHEN: Syncing again with a changed title
	// THEN: The same ledger row is updated, never duplicated

	src := &fakeSource{bookings: []calendar.RawBooking{
		booking("b1", "Patient A /eli/", "2026-03-10T10:00:00Z"),
	}}
	o, mem, _ := newTestOrchestrator(t, src)
	ctx := context.Background()
	from, to := window()

	_, err := o.Sync(ctx, from, to)
	require.NoError(t, err)

	src.bookings[0].Title = "Patient A (rescheduled) /eli/"
	result, err := o.Sync(ctx, from, to)
	require.NoError(t, err)
	assert.Equal(t, ingest.Result{Processed: 1, Updated: 1}, result)

	sessions, err := mem.ListPeriod(ctx, billing.Period{Year: 2026, Month: time.March})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "Patient A (rescheduled) /eli/", sessions[0].Title)
}

func TestSync_PreservesOperatorFields(t *testing.T) {
	// GIVEN: A synced session an operator then overrode and marked paid
	// WHEN: The booking is re-synced
	// THEN: The override, payment status and payment date all survive

	src := &fakeSource{bookings: []calendar.RawBooking{
		booking("b1", "Patient A /eli/", "2026-03-10T10:00:00Z"),
	}}
	o, mem, _ := newTestOrchestrator(t, src)
	ctx := context.Background()
	from, to := window()

	_, err := o.Sync(ctx, from, to)
	require.NoError(t, err)

	override := decimal.NewFromInt(80)
	require.NoError(t, mem.SetPriceOverride(ctx, "b1", &override))
	payDay := time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC)
	require.NoError(t, mem.SetPaymentStatus(ctx, "b1", billing.PaymentPaid, &payDay))

	_, err = o.Sync(ctx, from, to)
	require.NoError(t, err)

	s, err := mem.GetSession(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, s.OverridePrice)
	assert.True(t, override.Equal(*s.OverridePrice))
	assert.Equal(t, billing.PaymentPaid, s.PaymentStatus)
	require.NotNil(t, s.PaymentDate)
	assert.Equal(t, payDay, *s.PaymentDate)
}

func TestSync_MalformedBookingSkippedAndCounted(t *testing.T) {
	// GIVEN: One good booking and one with an unparseable start
	// WHEN: Syncing
	// THEN: The run completes, the bad payload is counted as failed

	src := &fakeSource{bookings: []calendar.RawBooking{
		booking("b1", "Patient A /eli/", "2026-03-10T10:00:00Z"),
		booking("b2", "Broken /eli/", "not-a-time"),
	}}
	o, mem, recorder := newTestOrchestrator(t, src)
	ctx := context.Background()

	from, to := window()
	result, err := o.Sync(ctx, from, to)
	require.NoError(t, err)
	assert.Equal(t, ingest.Result{Processed: 2, Created: 1, Failed: 1}, result)

	_, err = mem.GetSession(ctx, "b2")
	assert.ErrorIs(t, err, billing.ErrNotFound)

	// Failed count survives into the recorded run.
	require.Len(t, recorder.runs, 1)
	assert.Equal(t, 1, recorder.runs[0].Result.Failed)
	assert.Empty(t, recorder.runs[0].Error)
}

func TestSync_CollaboratorFailureFailsRun(t *testing.T) {
	// GIVEN: The calendar collaborator is down
	// WHEN: Syncing
	// THEN: The whole run fails with ErrCalendarUnavailable and is recorded

	src := &fakeSource{err: errors.New("connection refused")}
	o, _, recorder := newTestOrchestrator(t, src)

	from, to := window()
	_, err := o.Sync(context.Background(), from, to)
	assert.ErrorIs(t, err, billing.ErrCalendarUnavailable)

	require.Len(t, recorder.runs, 1)
	assert.NotEmpty(t, recorder.runs[0].Error)
}

func TestSync_AliasCollisionAbortsBeforeProcessing(t *testing.T) {
	// GIVEN: Two practitioners claiming the same alias
	// WHEN: Syncing
	// THEN: The run aborts with a configuration error; nothing is upserted

	src := &fakeSource{bookings: []calendar.RawBooking{
		booking("b1", "Patient /eli/", "2026-03-10T10:00:00Z"),
	}}
	o, mem, _ := newTestOrchestrator(t, src)
	ctx := context.Background()

	require.NoError(t, mem.SavePractitioner(ctx, billing.Practitioner{
		ID:      "p-other",
		Name:    "Eliott Second",
		Aliases: []string{"eli"},
	}))

	from, to := window()
	_, err := o.Sync(ctx, from, to)
	assert.True(t, billing.IsConfiguration(err))

	_, err = mem.GetSession(ctx, "b1")
	assert.ErrorIs(t, err, billing.ErrNotFound)
}

func TestSync_CancelledBetweenBookings(t *testing.T) {
	// GIVEN: A context cancelled before the run starts processing
	// WHEN: Syncing
	// THEN: The loop stops cooperatively; committed work stays committed

	src := &fakeSource{bookings: []calendar.RawBooking{
		booking("b1", "Patient A /eli/", "2026-03-10T10:00:00Z"),
		booking("b2", "Patient B /eli/", "2026-03-11T10:00:00Z"),
	}}
	o, _, recorder := newTestOrchestrator(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	from, to := window()
	result, err := o.Sync(ctx, from, to)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, result.Processed)

	// The partial run is still recorded despite the dead context.
	require.Len(t, recorder.runs, 1)
}

func TestSync_CancelledBookingSyncsWithFlag(t *testing.T) {
	// GIVEN: A booking with a struck-through title
	// WHEN: Syncing
	// THEN: The session lands in the ledger flagged cancelled

	src := &fakeSource{bookings: []calendar.RawBooking{
		{ExternalID: "b1", Title: "P̶a̶t̶i̶e̶n̶t̶ /eli/", Start: "2026-03-10T10:00:00Z", End: "2026-03-10T11:00:00Z"},
	}}
	o, mem, _ := newTestOrchestrator(t, src)
	ctx := context.Background()

	from, to := window()
	_, err := o.Sync(ctx, from, to)
	require.NoError(t, err)

	s, err := mem.GetSession(ctx, "b1")
	require.NoError(t, err)
	assert.True(t, s.Cancelled)
	assert.False(t, s.Billable())
}

func TestSync_NoSourceConfigured(t *testing.T) {
	// GIVEN: An orchestrator wired without a calendar source, as a deployment
	//        with sync disabled builds it
	// WHEN: Syncing
	// THEN: A configuration error comes back instead of a crash

	mem := store.NewMemory()
	o := &ingest.Orchestrator{
		Sessions:      mem,
		Practitioners: mem,
		Runs:          &memoryRunRecorder{},
	}

	from, to := window()
	result, err := o.Sync(context.Background(), from, to)
	require.Error(t, err)
	assert.True(t, billing.IsConfiguration(err))
	assert.Equal(t, ingest.Result{}, result)
}
