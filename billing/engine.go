/*
engine.go - The settlement state machine

STATES:
  Open       no active settlement for (practitioner, period); totals are
             computed live from the ledger on demand
  Submitted  a frozen Settlement row exists, validated = false
  Validated  validated = true, payment date set (terminal success)

  Submitted/Validated -> Open via Revoke, which DELETES the row. Revoking a
  validated settlement is permitted (corrections happen after payment) but
  must carry an explicit reason; the reason is pushed to the notifier since
  it un-pays a practitioner on record.

FREEZING:
  Submit computes totals once and persists them with the rates and the
  exclusion set. A submitted settlement is never recomputed from the ledger,
  no matter how the ledger changes afterwards.

CONCURRENCY:
  The uniqueness check and the insert are one atomic unit inside
  SettlementStore.Create. Two concurrent submits for the same period cannot
  both succeed; exactly one gets ErrAlreadySubmitted.
*/
package billing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// NOTIFIER - fire-and-forget collaborator, called on revoke
// =============================================================================

// RevocationNotice is emitted when a settlement is revoked. Delivery is
// fire-and-forget: a failed notification never rolls back the revoke.
type RevocationNotice struct {
	PractitionerID PractitionerID
	Period         Period
	Reason         string
}

type Notifier interface {
	SettlementRevoked(ctx context.Context, notice RevocationNotice)
}

// LogNotifier writes notices to the process log. The production deployment
// swaps in the email collaborator here.
type LogNotifier struct{}

func (LogNotifier) SettlementRevoked(_ context.Context, n RevocationNotice) {
	log.Printf("[Notify] settlement revoked: practitioner=%s period=%s reason=%q",
		n.PractitionerID, n.Period, n.Reason)
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine owns settlement computation and the submit/validate/revoke state
// machine. It reads the session ledger but never mutates it.
type Engine struct {
	Sessions    SessionStore
	Settlements SettlementStore

	// Notifier may be nil; revocations are then only logged by callers.
	Notifier Notifier
}

func NewEngine(sessions SessionStore, settlements SettlementStore, notifier Notifier) *Engine {
	return &Engine{Sessions: sessions, Settlements: settlements, Notifier: notifier}
}

// LiveTotals computes the current aggregate for an open period straight
// from the ledger. Valid only while the period is open; Submit uses it to
// produce the frozen snapshot.
func (e *Engine) LiveTotals(ctx context.Context, practitionerID PractitionerID, period Period, excluded []SessionID, rates Rates) (Totals, error) {
	sessions, err := e.Sessions.ListForPeriod(ctx, practitionerID, period)
	if err != nil {
		return Totals{}, fmt.Errorf("list sessions for %s/%s: %w", practitionerID, period, err)
	}
	return ComputeTotals(sessions, ExclusionSet(excluded), rates), nil
}

// SubmitInput carries everything Submit needs. Rates are resolved by the
// caller (global defaults + per-practitioner overrides) and snapshotted
// into the settlement, independent of later rate changes.
type SubmitInput struct {
	PractitionerID     PractitionerID
	Period             Period
	ExcludedSessionIDs []SessionID
	InvoiceRef         string
	Rates              Rates
}

// Submit freezes the period: computes totals, persists the settlement and
// transitions Open -> Submitted. Fails with ErrAlreadySubmitted when an
// active settlement exists for the pair.
func (e *Engine) Submit(ctx context.Context, in SubmitInput) (*Settlement, error) {
	totals, err := e.LiveTotals(ctx, in.PractitionerID, in.Period, in.ExcludedSessionIDs, in.Rates)
	if err != nil {
		return nil, err
	}

	excluded := append([]SessionID(nil), in.ExcludedSessionIDs...)
	sort.Slice(excluded, func(i, j int) bool { return excluded[i] < excluded[j] })

	s := Settlement{
		ID:                 SettlementID(uuid.NewString()),
		PractitionerID:     in.PractitionerID,
		Period:             in.Period,
		Subtotal:           totals.Subtotal,
		CommissionRate:     totals.CommissionRate,
		CommissionAmount:   totals.CommissionAmount,
		WithholdingRate:    totals.WithholdingRate,
		WithholdingAmount:  totals.WithholdingAmount,
		NetPayable:         totals.NetPayable,
		ExcludedSessionIDs: excluded,
		SubmittedAt:        time.Now().UTC(),
		InvoiceRef:         in.InvoiceRef,
	}

	// The store's create is the atomic uniqueness boundary; no pre-check
	// here, a lost race must surface as ErrAlreadySubmitted.
	if err := e.Settlements.Create(ctx, s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate marks a submitted settlement as paid out. Fails with
// ErrNotSubmitted when the settlement is absent or already validated.
func (e *Engine) Validate(ctx context.Context, id SettlementID, paymentDate time.Time) (*Settlement, error) {
	s, err := e.Settlements.GetSettlement(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotSubmitted
		}
		return nil, err
	}
	if s.Validated {
		return nil, ErrNotSubmitted
	}

	if err := e.Settlements.MarkValidated(ctx, id, paymentDate); err != nil {
		return nil, err
	}
	s.Validated = true
	s.PaymentDate = &paymentDate
	return s, nil
}

// Revoke deletes the settlement, returning the period to Open, and emits
// the reason to the notifier. Works on validated settlements too; the
// explicit reason keeps the correction on record.
func (e *Engine) Revoke(ctx context.Context, id SettlementID, reason string) error {
	if reason == "" {
		return ErrReasonRequired
	}

	s, err := e.Settlements.GetSettlement(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotSubmitted
		}
		return err
	}

	if err := e.Settlements.DeleteSettlement(ctx, id); err != nil {
		return err
	}

	if e.Notifier != nil {
		e.Notifier.SettlementRevoked(ctx, RevocationNotice{
			PractitionerID: s.PractitionerID,
			Period:         s.Period,
			Reason:         reason,
		})
	}
	return nil
}

// =============================================================================
// READ SIDE
// =============================================================================

type PeriodStatus string

const (
	PeriodOpen      PeriodStatus = "open"
	PeriodSubmitted PeriodStatus = "submitted"
	PeriodValidated PeriodStatus = "validated"
)

// PeriodView is what administrative and practitioner-facing views render:
// live totals while open, the frozen settlement verbatim once filed.
type PeriodView struct {
	PractitionerID PractitionerID
	Period         Period
	Status         PeriodStatus

	// Live is set only while the period is open.
	Live *Totals

	// Settlement is set once submitted. Never recomputed.
	Settlement *Settlement
}

// Query returns the period view. For an open period, excluded carries the
// operator's tentative exclusions for preview; pass nil for plain totals.
func (e *Engine) Query(ctx context.Context, practitionerID PractitionerID, period Period, excluded []SessionID, rates Rates) (*PeriodView, error) {
	view := &PeriodView{PractitionerID: practitionerID, Period: period}

	s, err := e.Settlements.GetActive(ctx, practitionerID, period)
	switch {
	case err == nil:
		view.Settlement = s
		view.Status = PeriodSubmitted
		if s.Validated {
			view.Status = PeriodValidated
		}
		return view, nil
	case errors.Is(err, ErrNotFound):
		// Open period, fall through to live totals.
	default:
		return nil, err
	}

	totals, err := e.LiveTotals(ctx, practitionerID, period, excluded, rates)
	if err != nil {
		return nil, err
	}
	view.Status = PeriodOpen
	view.Live = &totals
	return view, nil
}

// SessionBreakdown partitions a settlement's period sessions into included
// and excluded, for the document-rendering layer. Cancelled and unassigned
// sessions contribute nothing and are omitted from both sets.
type SessionBreakdown struct {
	Settlement Settlement
	Included   []Session
	Excluded   []Session
}

func (e *Engine) Breakdown(ctx context.Context, id SettlementID) (*SessionBreakdown, error) {
	s, err := e.Settlements.GetSettlement(ctx, id)
	if err != nil {
		return nil, err
	}

	sessions, err := e.Sessions.ListForPeriod(ctx, s.PractitionerID, s.Period)
	if err != nil {
		return nil, err
	}

	b := &SessionBreakdown{Settlement: *s}
	excluded := ExclusionSet(s.ExcludedSessionIDs)
	for _, sess := range sessions {
		switch {
		case excluded[sess.ID]:
			b.Excluded = append(b.Excluded, sess)
		case sess.Billable():
			b.Included = append(b.Included, sess)
		}
	}
	return b, nil
}
