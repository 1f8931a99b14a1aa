/*
Package billing provides the core session attribution and settlement engine.

PURPOSE:
  This package contains the domain types and algorithms that turn external
  calendar bookings into a billable session ledger, aggregate a
  practitioner's month into a settlement (commission retained by the
  clinic, tax withheld, net payable), and manage the submit/validate/revoke
  state machine that makes settlements immutable once filed.

KEY CONCEPTS IN THIS FILE (types.go):
  - Session: one ledger row per external booking (the idempotency key)
  - Settlement: a frozen, period-scoped money computation for one practitioner
  - Practitioner: referenced entity carrying aliases, a session price and
    optional rate overrides
  - Rates/RateConfig: commission and withholding configuration

DESIGN PRINCIPLES:
  1. Immutability: a Settlement's money fields are never recomputed
  2. Precision: uses decimal.Decimal to avoid floating-point errors
  3. Ownership: sync owns descriptive session fields; operators own price
     overrides, payment status and payment date
  4. Purity: attribution and money arithmetic are pure functions over
     configuration passed per call

SEE ALSO:
  - attribution.go: calendar title -> practitioner resolution
  - totals.go: subtotal/commission/withholding arithmetic
  - engine.go: the settlement state machine
  - store.go: persistence interfaces
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// SessionID is the external booking id supplied by the calendar collaborator.
// It is the ledger's idempotency key: stable, unique, never reassigned.
type SessionID string

type PractitionerID string

type SettlementID string

// =============================================================================
// PRACTITIONER - referenced by this core, owned by an external admin surface
// =============================================================================

type Practitioner struct {
	ID   PractitionerID
	Name string

	// Aliases are explicit calendar tokens claiming bookings for this
	// practitioner. When empty, the first whitespace-delimited token of
	// Name is used as a fallback.
	Aliases []string

	// SessionPrice is the default price recorded on newly synced sessions.
	SessionPrice decimal.Decimal

	// Per-practitioner rate overrides. Nil means the global default applies.
	CommissionRate  *decimal.Decimal
	WithholdingRate *decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// RATES - immutable per-call configuration
// =============================================================================

// Rates is the resolved pair applied to one settlement computation.
type Rates struct {
	Commission  decimal.Decimal
	Withholding decimal.Decimal
}

// RateConfig carries clinic-wide defaults. Per-practitioner overrides win.
type RateConfig struct {
	DefaultCommissionRate  decimal.Decimal
	DefaultWithholdingRate decimal.Decimal
}

// RatesFor resolves the rates for a practitioner. A rate that is neither
// overridden nor configured globally is a configuration error, never a
// silent default.
func (c RateConfig) RatesFor(p Practitioner) (Rates, error) {
	r := Rates{
		Commission:  c.DefaultCommissionRate,
		Withholding: c.DefaultWithholdingRate,
	}
	if p.CommissionRate != nil {
		r.Commission = *p.CommissionRate
	}
	if p.WithholdingRate != nil {
		r.Withholding = *p.WithholdingRate
	}
	if r.Commission.IsNegative() || r.Commission.GreaterThan(decimal.NewFromInt(1)) {
		return Rates{}, &MissingRateError{PractitionerID: p.ID, Rate: "commission"}
	}
	if r.Withholding.IsNegative() || r.Withholding.GreaterThan(decimal.NewFromInt(1)) {
		return Rates{}, &MissingRateError{PractitionerID: p.ID, Rate: "withholding"}
	}
	return r, nil
}

// =============================================================================
// SESSION - one ledger row per external booking
// =============================================================================

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

func (s PaymentStatus) Valid() bool {
	return s == PaymentPending || s == PaymentPaid
}

type Session struct {
	// ID is the external booking id. Immutable.
	ID SessionID

	// PractitionerID is empty for unassigned sessions. Unassigned sessions
	// stay in the ledger so operators can see and fix orphan bookings, but
	// they never count toward a settlement.
	PractitionerID PractitionerID

	Date      time.Time // calendar day, UTC midnight
	StartTime string    // "15:04"
	Title     string
	Cancelled bool

	// OriginalPrice is set from the attributed practitioner's session price
	// at sync time. OverridePrice, when set by an operator, wins.
	OriginalPrice decimal.Decimal
	OverridePrice *decimal.Decimal

	// Operator-owned payment tracking, never touched by sync.
	PaymentStatus PaymentStatus
	PaymentDate   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Assigned reports whether the session is attributed to a practitioner.
func (s Session) Assigned() bool { return s.PractitionerID != "" }

// Billable reports whether the session counts toward a settlement:
// not cancelled and attributed.
func (s Session) Billable() bool { return !s.Cancelled && s.Assigned() }

// EffectivePrice is the override price when present, else the original.
func (s Session) EffectivePrice() decimal.Decimal {
	if s.OverridePrice != nil {
		return *s.OverridePrice
	}
	return s.OriginalPrice
}

// SessionPatch is the set of descriptive fields owned by sync. Everything
// not listed here (override price, payment status, payment date) is owned
// by operators and survives every re-sync untouched.
type SessionPatch struct {
	PractitionerID PractitionerID
	Date           time.Time
	StartTime      string
	Title          string
	Cancelled      bool
	OriginalPrice  decimal.Decimal
}

// =============================================================================
// SETTLEMENT - frozen snapshot created by Submit
// =============================================================================

type Settlement struct {
	ID             SettlementID
	PractitionerID PractitionerID
	Period         Period

	Subtotal          decimal.Decimal
	CommissionRate    decimal.Decimal
	CommissionAmount  decimal.Decimal
	WithholdingRate   decimal.Decimal
	WithholdingAmount decimal.Decimal
	NetPayable        decimal.Decimal

	// ExcludedSessionIDs is a snapshot of the operator's selection at
	// submission time, not a live filter.
	ExcludedSessionIDs []SessionID

	SubmittedAt time.Time
	InvoiceRef  string
	Validated   bool
	PaymentDate *time.Time
}

// Excludes reports whether the given session was left out of this settlement.
func (s Settlement) Excludes(id SessionID) bool {
	for _, ex := range s.ExcludedSessionIDs {
		if ex == id {
			return true
		}
	}
	return false
}

// =============================================================================
// TOTALS - the computed money aggregate for a period
// =============================================================================

type Totals struct {
	Subtotal          decimal.Decimal
	CommissionRate    decimal.Decimal
	CommissionAmount  decimal.Decimal
	WithholdingRate   decimal.Decimal
	WithholdingAmount decimal.Decimal
	NetPayable        decimal.Decimal

	// BillableCount/ExcludedCount describe the sessions behind Subtotal.
	BillableCount int
	ExcludedCount int
}
