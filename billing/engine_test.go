package billing_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxia/clinic-engine/billing"
	"github.com/praxia/clinic-engine/billing/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type capturingNotifier struct {
	mu      sync.Mutex
	notices []billing.RevocationNotice
}

func (n *capturingNotifier) SettlementRevoked(_ context.Context, notice billing.RevocationNotice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func newTestEngine(t *testing.T) (*billing.Engine, *store.Memory, *capturingNotifier) {
	t.Helper()
	mem := store.NewMemory()
	notifier := &capturingNotifier{}
	return billing.NewEngine(mem, mem, notifier), mem, notifier
}

func seedSessions(t *testing.T, mem *store.Memory, practitionerID string, period billing.Period, prices ...string) []billing.SessionID {
	t.Helper()
	ctx := context.Background()

	ids := make([]billing.SessionID, len(prices))
	for i, price := range prices {
		id := billing.SessionID(string(rune('a'+i)) + "-session")
		_, err := mem.Upsert(ctx, id, billing.SessionPatch{
			PractitionerID: billing.PractitionerID(practitionerID),
			Date:           period.Start().AddDate(0, 0, i),
			StartTime:      "10:00",
			Title:          "Patient /x/",
			OriginalPrice:  dec(price),
		})
		require.NoError(t, err)
		ids[i] = id
	}
	return ids
}

func march() billing.Period {
	p, _ := billing.NewPeriod(2026, 3)
	return p
}

// =============================================================================
// SUBMIT TESTS
// =============================================================================

func TestEngine_Submit_FreezesTotals(t *testing.T) {
	// GIVEN: Three 100.00 sessions in March
	// WHEN: Submitting the period
	// THEN: The settlement carries the frozen money chain and the rates used

	engine, mem, _ := newTestEngine(t)
	ctx := context.Background()
	seedSessions(t, mem, "p1", march(), "100.00", "100.00", "100.00")

	s, err := engine.Submit(ctx, billing.SubmitInput{
		PractitionerID: "p1",
		Period:         march(),
		InvoiceRef:     "INV-2026-03",
		Rates:          testRates(),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, s.ID)
	assert.True(t, dec("300.00").Equal(s.Subtotal))
	assert.True(t, dec("90.00").Equal(s.CommissionAmount))
	assert.True(t, dec("31.50").Equal(s.WithholdingAmount))
	assert.True(t, dec("178.50").Equal(s.NetPayable))
	assert.Equal(t, "INV-2026-03", s.InvoiceRef)
	assert.False(t, s.Validated)
}

func TestEngine_Submit_SecondSubmitRejected(t *testing.T) {
	// GIVEN: A period already submitted
	// WHEN: Submitting it again
	// THEN: ErrAlreadySubmitted, classified as a conflict

	engine, mem, _ := newTestEngine(t)
	ctx := context.Background()
	seedSessions(t, mem, "p1", march(), "100.00")

	_, err := engine.Submit(ctx, billing.SubmitInput{
		PractitionerID: "p1", Period: march(), Rates: testRates(),
	})
	require.NoError(t, err)

	_, err = engine.Submit(ctx, billing.SubmitInput{
		PractitionerID: "p1", Period: march(), Rates: testRates(),
	})
	assert.ErrorIs(t, err, billing.ErrAlreadySubmitted)
	assert.True(t, billing.IsConflict(err))
}

func TestEngine_Submit_ConcurrentSubmitsOneWins(t *testing.T) {
	// GIVEN: Two goroutines submitting the same period simultaneously
	// WHEN: Both race through the engine
	// THEN: Exactly one succeeds, the other gets ErrAlreadySubmitted

	engine, mem, _ := newTestEngine(t)
	ctx := context.Background()
	seedSessions(t, mem, "p1", march(), "100.00")

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Submit(ctx, billing.SubmitInput{
				PractitionerID: "p1", Period: march(), Rates: testRates(),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, conflict int
	for err := range errs {
		if err == nil {
			ok++
		} else if assert.ErrorIs(t, err, billing.ErrAlreadySubmitted) {
			conflict++
		}
	}
	assert.Equal(t, 1, ok, "exactly one submit should win")
	assert.Equal(t, 1, conflict)
}

func TestEngine_Submit_OtherPeriodsUnaffected(t *testing.T) {
	// GIVEN: March submitted for p1
	// WHEN: Submitting April for p1 and March for p2
	// THEN: Both succeed; the uniqueness scope is the pair

	engine, mem, _ := newTestEngine(t)
	ctx := context.Background()
	seedSessions(t, mem, "p1", march(), "100.00")

	_, err := engine.Submit(ctx, billing.SubmitInput{
		PractitionerID: "p1", Period: march(), Rates: testRates(),
	})
	require.NoError(t, err)

	_, err = engine.Submit(ctx, billing.SubmitInput{
		PractitionerID: "p1", Period: march().Next(), Rates: testRates(),
	})
	assert.NoError(t, err)

	_, err = engine.Submit(ctx, billing.SubmitInput{
		PractitionerID: "p2", Period: march(), Rates: testRates(),
	})
	assert.NoError(t, err)
}

// =============================================================================
// IMMUTABILITY TESTS
// =============================================================================

func TestEngine_Query_FrozenSettlementNeverRecomputed(t *testing.T) {
	// GIVEN: A submitted settlement over one 100.00 session
	// WHEN: The ledger changes afterwards (price override, new session)
	// THEN: Query returns the frozen amounts verbatim

	engine, mem, _ := newTestEngine(t)
	ctx := context.Background()
	ids := seedSessions(t, mem, "p1", march(), "100.00")

	submitted, err := engine.Submit(ctx, billing.SubmitInput{
		PractitionerID: "p1", Period: march(), Rates: testRates(),
	})
	require.NoError(t, err)

	// Mutate the ledger after filing.
	override := dec("999.00")
	require.NoError(t, mem.SetPriceOverride(ctx, ids[0], &override))
	seedSessions(t, mem, "p1", march(), "100.00", "100.00")

	view, err := engine.Query(ctx, "p1", march(), nil, testRates())
	require.NoError(t, err)

	assert.Equal(t, billing.PeriodSubmitted, view.Status)
	assert.Nil(t, view.Live)
	require.NotNil(t, view.Settlement)
	assert.True(t, submitted.Subtotal.Equal(view.Settlement.Subtotal),
		"frozen subtotal must not track the ledger")
}

func TestEngine_Query_OpenPeriodComputesLive(t *testing.T) {
	// GIVEN: An open period with two sessions
	// WHEN: Querying with a tentative exclusion
	// THEN: Live totals reflect the exclusion; no settlement present

	engine, mem, _ := newTestEngine(t)
	ctx := context.Background()
	ids := seedSessions(t, mem, "p1", march(), "100.00", "50.00")

	view, err := engine.Query(ctx, "p1", march(), []billing.SessionID{ids[1]}, testRates())
	require.NoError(t, err)

	assert.Equal(t, billing.PeriodOpen, view.Status)
	assert.Nil(t, view.Settlement)
	require.NotNil(t, view.Live)
	assert.True(t, dec("100.00").Equal(view.Live.Subtotal))
	assert.Equal(t, 1, view.Live.ExcludedCount)
}

func TestEngine_Submit_ExclusionSnapshotStable(t *testing.T) {
	// GIVEN: A settlement submitted with one session excluded
	// WHEN: Reading it back
	// THEN: The exclusion set is a sorted snapshot, not a live filter

	engine, mem, _ := newTestEngine(t)
	ctx := context.Background()
	ids := seedSessions(t, mem, "p1", march(), "100.00", "100.00", "100.00")

	s, err := engine.Submit(ctx, billing.SubmitInput{
		PractitionerID:     "p1",
		Period:             march(),
		ExcludedSessionIDs: []billing.SessionID{ids[2], ids[0]},
		Rates:              testRates(),
	})
	require.NoError(t, err)

	assert.Equal(t, []billing.SessionID{ids[0], ids[2]}, s.ExcludedSessionIDs)
	assert.True(t, dec("100.00").Equal(s.Subtotal))
	assert.True(t, s.Excludes(ids[0]))
	assert.False(t, s.Excludes(ids[1]))
}

// =============================================================================
// VALIDATE TESTS
// =============================================================================

func TestEngine_Validate_Lifecycle(t *testing.T) {
	// GIVEN: A submitted settlement
	// WHEN: Validating with a payment date
	// THEN: Status becomes validated; validating twice is a conflict

	engine, mem, _ := newTestEngine(t)
	ctx := context.Background()
	seedSessions(t, mem, "p1", march(), "100.00")

	submitted, err := engine.Submit(ctx, billing.SubmitInput{
		PractitionerID: "p1", Period: march(), Rates: testRates(),
	})
	require.NoError(t, err)

	payDay := time.Date(2026, time.April, 5, 0, 0, 0, 0, time.UTC)
	validated, err := engine.Validate(ctx, submitted.ID, payDay)
	require.NoError(t, err)
	assert.True(t, validated.Validated)
	require.NotNil(t, validated.PaymentDate)
	assert.Equal(t, payDay, *validated.PaymentDate)

	view, err := engine.Query(ctx, "p1", march(), nil, testRates())
	require.NoError(t, err)
	assert.Equal(t, billing.PeriodValidated, view.Status)

	_, err = engine.Validate(ctx, submitted.ID, payDay)
	assert.ErrorIs(t, err, billing.ErrNotSubmitted)
}

func TestEngine_Validate_AbsentSettlement(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.Validate(context.Background(), "nope", time.Now())
	assert.ErrorIs(t, err, billing.ErrNotSubmitted)
}

// =============================================================================
// REVOKE TESTS
// =============================================================================

func TestEngine_Revoke_ReopensPeriod(t *testing.T) {
	// GIVEN: A submitted settlement
	// WHEN: Revoking with a reason
	// THEN: The period is open again and can be resubmitted

	engine, mem, notifier := newTestEngine(t)
	ctx := context.Background()
	seedSessions(t, mem, "p1", march(), "100.00")

	s, err := engine.Submit(ctx, billing.SubmitInput{
		PractitionerID: "p1", Period: march(), Rates: testRates(),
	})
	require.NoError(t, err)

	require.NoError(t, engine.Revoke(ctx, s.ID, "wrong rate applied"))

	view, err := engine.Query(ctx, "p1", march(), nil, testRates())
	require.NoError(t, err)
	assert.Equal(t, billing.PeriodOpen, view.Status)

	// Resubmission of the reopened period succeeds.
	_, err = engine.Submit(ctx, billing.SubmitInput{
		PractitionerID: "p1", Period: march(), Rates: testRates(),
	})
	assert.NoError(t, err)

	require.Len(t, notifier.notices, 1)
	assert.Equal(t, billing.PractitionerID("p1"), notifier.notices[0].PractitionerID)
	assert.Equal(t, "wrong rate applied", notifier.notices[0].Reason)
}

func TestEngine_Revoke_ValidatedSettlementAllowed(t *testing.T) {
	// GIVEN: A validated settlement
	// WHEN: Revoking with an explicit reason
	// THEN: The revoke succeeds; corrections after payment are legal

	engine, mem, _ := newTestEngine(t)
	ctx := context.Background()
	seedSessions(t, mem, "p1", march(), "100.00")

	s, err := engine.Submit(ctx, billing.SubmitInput{
		PractitionerID: "p1", Period: march(), Rates: testRates(),
	})
	require.NoError(t, err)
	_, err = engine.Validate(ctx, s.ID, time.Now().UTC())
	require.NoError(t, err)

	assert.NoError(t, engine.Revoke(ctx, s.ID, "duplicate invoice discovered"))
}

func TestEngine_Revoke_RequiresReason(t *testing.T) {
	engine, mem, notifier := newTestEngine(t)
	ctx := context.Background()
	seedSessions(t, mem, "p1", march(), "100.00")

	s, err := engine.Submit(ctx, billing.SubmitInput{
		PractitionerID: "p1", Period: march(), Rates: testRates(),
	})
	require.NoError(t, err)

	err = engine.Revoke(ctx, s.ID, "")
	assert.ErrorIs(t, err, billing.ErrReasonRequired)
	assert.Empty(t, notifier.notices)

	// Settlement untouched.
	view, _ := engine.Query(ctx, "p1", march(), nil, testRates())
	assert.Equal(t, billing.PeriodSubmitted, view.Status)
}

func TestEngine_Revoke_AbsentSettlement(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	err := engine.Revoke(context.Background(), "nope", "some reason")
	assert.ErrorIs(t, err, billing.ErrNotSubmitted)
}

// =============================================================================
// BREAKDOWN TESTS
// =============================================================================

func TestEngine_Breakdown_Partition(t *testing.T) {
	// GIVEN: A settlement with one excluded session, plus a cancelled one
	// WHEN: Asking for the breakdown
	// THEN: Billables split into included/excluded; cancelled appears in neither

	engine, mem, _ := newTestEngine(t)
	ctx := context.Background()
	ids := seedSessions(t, mem, "p1", march(), "100.00", "100.00")

	_, err := mem.Upsert(ctx, "cancelled-session", billing.SessionPatch{
		PractitionerID: "p1",
		Date:           march().Start(),
		Cancelled:      true,
		OriginalPrice:  dec("100.00"),
	})
	require.NoError(t, err)

	s, err := engine.Submit(ctx, billing.SubmitInput{
		PractitionerID:     "p1",
		Period:             march(),
		ExcludedSessionIDs: []billing.SessionID{ids[1]},
		Rates:              testRates(),
	})
	require.NoError(t, err)

	b, err := engine.Breakdown(ctx, s.ID)
	require.NoError(t, err)

	require.Len(t, b.Included, 1)
	assert.Equal(t, ids[0], b.Included[0].ID)
	require.Len(t, b.Excluded, 1)
	assert.Equal(t, ids[1], b.Excluded[0].ID)
}
