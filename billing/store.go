/*
store.go - Persistence interfaces for the session ledger and settlements

PURPOSE:
  Defines the contract between the domain logic and storage. The sqlite
  implementation backs production; billing/store provides an in-memory
  implementation for tests and dev mode.

OWNERSHIP CONTRACT:
  Upsert writes descriptive fields only. Operator-owned fields (override
  price, payment status, payment date) are written exclusively through
  SetPaymentStatus / SetPriceOverride and survive every re-sync.

ATOMIC SUBMIT:
  SettlementStore.Create MUST be atomic with the at-most-one-active check:
  of two concurrent creates for the same (practitioner, period), exactly one
  succeeds and the other gets ErrAlreadySubmitted. The sqlite store uses a
  unique index; the memory store checks-and-inserts under one lock.
*/
package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// UpsertOutcome reports what a ledger upsert did.
type UpsertOutcome string

const (
	UpsertCreated UpsertOutcome = "created"
	UpsertUpdated UpsertOutcome = "updated"
)

// SessionStore is the durable session ledger: one row per external booking.
type SessionStore interface {
	// Upsert inserts the session if the id is unseen, otherwise updates
	// descriptive fields only. An empty id is a configuration error.
	Upsert(ctx context.Context, id SessionID, patch SessionPatch) (UpsertOutcome, error)

	// GetSession returns ErrNotFound for absent ids.
	GetSession(ctx context.Context, id SessionID) (*Session, error)

	// ListForPeriod returns the practitioner's sessions whose calendar date
	// falls in the period, ordered by date then start time. Restartable:
	// no hidden cursor state.
	ListForPeriod(ctx context.Context, practitionerID PractitionerID, period Period) ([]Session, error)

	// ListPeriod returns every session in the period, including unassigned
	// ones, so orphan bookings stay visible to operators.
	ListPeriod(ctx context.Context, period Period) ([]Session, error)

	// SetPaymentStatus and SetPriceOverride are operator-owned mutations,
	// independent of sync. A nil price clears the override.
	SetPaymentStatus(ctx context.Context, id SessionID, status PaymentStatus, paymentDate *time.Time) error
	SetPriceOverride(ctx context.Context, id SessionID, price *decimal.Decimal) error

	// DeleteSession removes a ledger row. Explicit administrative action
	// only; sync never deletes.
	DeleteSession(ctx context.Context, id SessionID) error
}

// SettlementStore persists frozen settlements.
type SettlementStore interface {
	// Create persists a new settlement, enforcing at most one active per
	// (practitioner, period). Returns ErrAlreadySubmitted on conflict.
	Create(ctx context.Context, s Settlement) error

	// GetSettlement returns ErrNotFound for absent ids.
	GetSettlement(ctx context.Context, id SettlementID) (*Settlement, error)

	// GetActive returns the active settlement for the pair, or ErrNotFound.
	GetActive(ctx context.Context, practitionerID PractitionerID, period Period) (*Settlement, error)

	// MarkValidated sets the validated flag and payment date. Money fields
	// are never touched.
	MarkValidated(ctx context.Context, id SettlementID, paymentDate time.Time) error

	// DeleteSettlement removes the row, returning the period to Open.
	DeleteSettlement(ctx context.Context, id SettlementID) error

	// ListSettlements filters by practitioner and/or year; zero values mean
	// no filter.
	ListSettlements(ctx context.Context, practitionerID PractitionerID, year int) ([]Settlement, error)
}

// PractitionerStore persists the practitioner registry consumed by
// attribution and rate resolution.
type PractitionerStore interface {
	SavePractitioner(ctx context.Context, p Practitioner) error
	GetPractitioner(ctx context.Context, id PractitionerID) (*Practitioner, error)
	ListPractitioners(ctx context.Context) ([]Practitioner, error)
	DeletePractitioner(ctx context.Context, id PractitionerID) error
}
