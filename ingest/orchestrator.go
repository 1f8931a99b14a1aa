/*
Package ingest pulls bookings from the calendar collaborator and folds them
into the session ledger.

FAILURE SEMANTICS:
  - Collaborator unreachable/timeout: the whole run fails (nothing counted),
    retried by the caller, not looped here.
  - One malformed booking: counted in Failed, logged, skipped; the run
    continues.
  - Alias collision or missing configuration: fail-fast, run aborts.

IDEMPOTENCY:
  Re-running for overlapping or identical ranges is free: each booking maps
  to one ledger row keyed by external id, upserts touch descriptive fields
  only, and ordering across bookings does not matter.

CANCELLATION:
  The orchestrator checks ctx between bookings and leaves everything
  processed so far committed; re-running finishes the rest.
*/
package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/praxia/clinic-engine/billing"
	"github.com/praxia/clinic-engine/calendar"
)

// Result summarizes one sync run. Failed counts are always surfaced to the
// operator who triggered the run.
type Result struct {
	Processed int
	Created   int
	Updated   int
	Failed    int
}

// Run is the persisted summary of one sync run.
type Run struct {
	ID          string
	WindowStart time.Time
	WindowEnd   time.Time
	Result      Result
	Error       string
	StartedAt   time.Time
	CompletedAt time.Time
}

// RunRecorder persists run summaries. Optional; a nil recorder only logs.
type RunRecorder interface {
	SaveRun(ctx context.Context, run Run) error
}

// Orchestrator wires the calendar source to the session ledger through the
// attribution resolver.
type Orchestrator struct {
	Source        calendar.Source
	Sessions      billing.SessionStore
	Practitioners billing.PractitionerStore
	Runs          RunRecorder
}

// Sync pulls [from, to] from the collaborator and upserts every booking.
// The alias table and price map are built once at run start from the
// practitioner registry, so configuration edits never race a run.
func (o *Orchestrator) Sync(ctx context.Context, from, to time.Time) (Result, error) {
	started := time.Now().UTC()

	// Deployments without a calendar wire no source; syncing there is a
	// configuration error, not a panic.
	if o.Source == nil {
		return Result{}, fmt.Errorf("%w: no calendar source configured", billing.ErrConfiguration)
	}

	practitioners, err := o.Practitioners.ListPractitioners(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load practitioner registry: %w", err)
	}
	table, err := billing.NewAliasTable(practitioners)
	if err != nil {
		// Alias collision: fatal configuration error, nothing processed.
		return Result{}, err
	}
	prices := make(map[billing.PractitionerID]decimal.Decimal, len(practitioners))
	for _, p := range practitioners {
		prices[p.ID] = p.SessionPrice
	}

	raws, err := o.Source.ListBookings(ctx, from, to)
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", billing.ErrCalendarUnavailable, err)
		o.record(ctx, from, to, started, Result{}, wrapped)
		return Result{}, wrapped
	}

	var result Result
	for _, raw := range raws {
		if err := ctx.Err(); err != nil {
			// Cooperative cancellation: everything upserted so far stays
			// committed, re-running is free.
			o.record(context.WithoutCancel(ctx), from, to, started, result, err)
			return result, err
		}

		result.Processed++
		outcome, err := o.processBooking(ctx, raw, table, prices)
		if err != nil {
			result.Failed++
			log.Printf("[Sync] booking %q skipped: %v", raw.ExternalID, err)
			continue
		}
		switch outcome {
		case billing.UpsertCreated:
			result.Created++
		case billing.UpsertUpdated:
			result.Updated++
		}
	}

	o.record(ctx, from, to, started, result, nil)
	return result, nil
}

func (o *Orchestrator) processBooking(ctx context.Context, raw calendar.RawBooking, table *billing.AliasTable, prices map[billing.PractitionerID]decimal.Decimal) (billing.UpsertOutcome, error) {
	booking, err := raw.Validate()
	if err != nil {
		return "", fmt.Errorf("%w: %v", billing.ErrMalformedRecord, err)
	}

	patch := billing.SessionPatch{
		Date:      booking.Start.UTC().Truncate(24 * time.Hour),
		StartTime: booking.Start.UTC().Format("15:04"),
		Title:     booking.Title,
		Cancelled: booking.Cancelled,
	}
	if id, ok := table.Resolve(booking.Title); ok {
		patch.PractitionerID = id
		patch.OriginalPrice = prices[id]
	}

	return o.Sessions.Upsert(ctx, billing.SessionID(booking.ExternalID), patch)
}

func (o *Orchestrator) record(ctx context.Context, from, to, started time.Time, result Result, runErr error) {
	run := Run{
		ID:          uuid.NewString(),
		WindowStart: from,
		WindowEnd:   to,
		Result:      result,
		StartedAt:   started,
		CompletedAt: time.Now().UTC(),
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}

	if o.Runs != nil {
		if err := o.Runs.SaveRun(ctx, run); err != nil {
			log.Printf("[Sync] failed to record run %s: %v", run.ID, err)
		}
	}
	log.Printf("[Sync] window=[%s, %s] processed=%d created=%d updated=%d failed=%d err=%q",
		from.Format("2006-01-02"), to.Format("2006-01-02"),
		result.Processed, result.Created, result.Updated, result.Failed, run.Error)
}
