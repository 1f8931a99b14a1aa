/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements all persistence interfaces (SessionStore, SettlementStore,
  PractitionerStore, RunRecorder) using SQLite. In production, the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  billing.SessionStore:      Session ledger persistence
  billing.SettlementStore:   Frozen settlement records
  billing.PractitionerStore: Practitioner registry
  ingest.RunRecorder:        Sync run summaries

OWNERSHIP ENFORCEMENT:
  The sync upsert's UPDATE clause lists descriptive columns only.
  Operator-owned columns (override_price, payment_status, payment_date)
  have dedicated write paths and are never touched by the upsert.

KEY TABLES:
  practitioners: Registry rows (aliases, rates, session price)
  sessions:      One row per external booking id (the ledger)
  settlements:   Frozen monthly settlements
  sync_runs:     Calendar sync run summaries

INDEXES:
  Critical indexes for performance and correctness:
  - idx_sessions_practitioner_date:  Period listing (hot path for totals)
  - idx_unique_active_settlement:    At most one active settlement per
    (practitioner, year, month); concurrent submits race on this index
    and exactly one wins. Revoke deletes the row, so presence = active.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/clinic.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - billing/store.go: Interface definitions
  - billing/engine.go: Settlement engine built on these interfaces
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/praxia/clinic-engine/billing"
	"github.com/praxia/clinic-engine/ingest"
)

const dateLayout = "2006-01-02"

// Store implements the billing storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a store at the given path. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Practitioner registry (attribution + rates source)
	CREATE TABLE IF NOT EXISTS practitioners (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		aliases_json TEXT NOT NULL DEFAULT '[]',
		session_price TEXT NOT NULL DEFAULT '0',
		commission_rate TEXT,
		withholding_rate TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Session ledger: one row per external booking id
	CREATE TABLE IF NOT EXISTS sessions (
		external_id TEXT PRIMARY KEY,
		practitioner_id TEXT,
		date TEXT NOT NULL,
		start_time TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		cancelled BOOLEAN NOT NULL DEFAULT FALSE,
		original_price TEXT NOT NULL DEFAULT '0',
		override_price TEXT,
		payment_status TEXT NOT NULL DEFAULT 'pending',
		payment_date TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_practitioner_date
		ON sessions(practitioner_id, date);
	CREATE INDEX IF NOT EXISTS idx_sessions_date
		ON sessions(date);

	-- Frozen settlements
	CREATE TABLE IF NOT EXISTS settlements (
		id TEXT PRIMARY KEY,
		practitioner_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		subtotal TEXT NOT NULL,
		commission_rate TEXT NOT NULL,
		commission_amount TEXT NOT NULL,
		withholding_rate TEXT NOT NULL,
		withholding_amount TEXT NOT NULL,
		net_payable TEXT NOT NULL,
		excluded_json TEXT NOT NULL DEFAULT '[]',
		submitted_at TEXT NOT NULL,
		invoice_ref TEXT,
		validated BOOLEAN NOT NULL DEFAULT FALSE,
		payment_date TEXT
	);

	-- CRITICAL: at most one active settlement per (practitioner, period).
	-- Revoke deletes the row, so the check and the insert form one
	-- atomic unit under concurrent submits.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_active_settlement
		ON settlements(practitioner_id, year, month);

	CREATE INDEX IF NOT EXISTS idx_settlements_practitioner
		ON settlements(practitioner_id, year);

	-- Sync run summaries
	CREATE TABLE IF NOT EXISTS sync_runs (
		id TEXT PRIMARY KEY,
		window_start TEXT NOT NULL,
		window_end TEXT NOT NULL,
		processed INTEGER NOT NULL DEFAULT 0,
		created_count INTEGER NOT NULL DEFAULT 0,
		updated_count INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sync_runs_started
		ON sync_runs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// ============================================================================
// SESSION LEDGER (billing.SessionStore)
// ============================================================================

// Upsert inserts on first sight of an external id, otherwise updates
// descriptive fields only.
func (s *Store) Upsert(ctx context.Context, id billing.SessionID, patch billing.SessionPatch) (billing.UpsertOutcome, error) {
	if strings.TrimSpace(string(id)) == "" {
		return "", fmt.Errorf("%w: empty external booking id", billing.ErrConfiguration)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)

	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET practitioner_id = ?, date = ?, start_time = ?, title = ?,
		    cancelled = ?, original_price = ?, updated_at = ?
		WHERE external_id = ?`,
		nullString(string(patch.PractitionerID)),
		patch.Date.Format(dateLayout),
		patch.StartTime,
		patch.Title,
		patch.Cancelled,
		patch.OriginalPrice.String(),
		now,
		id,
	)
	if err != nil {
		return "", fmt.Errorf("failed to update session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return billing.UpsertUpdated, nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions
		(external_id, practitioner_id, date, start_time, title, cancelled,
		 original_price, payment_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		nullString(string(patch.PractitionerID)),
		patch.Date.Format(dateLayout),
		patch.StartTime,
		patch.Title,
		patch.Cancelled,
		patch.OriginalPrice.String(),
		billing.PaymentPending,
		now,
		now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert session %s: %w", id, err)
	}
	return billing.UpsertCreated, nil
}

const sessionColumns = `external_id, practitioner_id, date, start_time, title, cancelled,
	original_price, override_price, payment_status, payment_date, created_at, updated_at`

func (s *Store) GetSession(ctx context.Context, id billing.SessionID) (*billing.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE external_id = ?`, id)

	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, billing.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) ListForPeriod(ctx context.Context, practitionerID billing.PractitionerID, period billing.Period) ([]billing.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.querySessions(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE practitioner_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC, start_time ASC, external_id ASC`,
		practitionerID,
		period.Start().Format(dateLayout),
		period.End().Format(dateLayout),
	)
}

func (s *Store) ListPeriod(ctx context.Context, period billing.Period) ([]billing.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.querySessions(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE date >= ? AND date <= ?
		ORDER BY date ASC, start_time ASC, external_id ASC`,
		period.Start().Format(dateLayout),
		period.End().Format(dateLayout),
	)
}

func (s *Store) SetPaymentStatus(ctx context.Context, id billing.SessionID, status billing.PaymentStatus, paymentDate *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var date *string
	if paymentDate != nil {
		d := paymentDate.Format(dateLayout)
		date = &d
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET payment_status = ?, payment_date = ?, updated_at = ?
		WHERE external_id = ?`,
		status, date, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set payment status on %s: %w", id, err)
	}
	return errIfMissing(res)
}

func (s *Store) SetPriceOverride(ctx context.Context, id billing.SessionID, price *decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var v *string
	if price != nil {
		p := price.String()
		v = &p
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET override_price = ?, updated_at = ?
		WHERE external_id = ?`,
		v, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set price override on %s: %w", id, err)
	}
	return errIfMissing(res)
}

func (s *Store) DeleteSession(ctx context.Context, id billing.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE external_id = ?", id)
	if err != nil {
		return err
	}
	return errIfMissing(res)
}

func (s *Store) querySessions(ctx context.Context, query string, args ...any) ([]billing.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []billing.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (billing.Session, error) {
	var (
		sess           billing.Session
		practitionerID sql.NullString
		date           string
		originalPrice  string
		overridePrice  sql.NullString
		paymentDate    sql.NullString
		createdAt      string
		updatedAt      string
	)

	err := row.Scan(
		&sess.ID, &practitionerID, &date, &sess.StartTime, &sess.Title,
		&sess.Cancelled, &originalPrice, &overridePrice, &sess.PaymentStatus,
		&paymentDate, &createdAt, &updatedAt,
	)
	if err != nil {
		return sess, err
	}

	sess.PractitionerID = billing.PractitionerID(practitionerID.String)
	sess.Date, _ = time.Parse(dateLayout, date)
	sess.OriginalPrice = mustDecimal(originalPrice)
	if overridePrice.Valid {
		d := mustDecimal(overridePrice.String)
		sess.OverridePrice = &d
	}
	if paymentDate.Valid {
		t, _ := time.Parse(dateLayout, paymentDate.String)
		sess.PaymentDate = &t
	}
	sess.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	sess.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return sess, nil
}

// ============================================================================
// SETTLEMENTS (billing.SettlementStore)
// ============================================================================

const settlementColumns = `id, practitioner_id, year, month, subtotal, commission_rate,
	commission_amount, withholding_rate, withholding_amount, net_payable,
	excluded_json, submitted_at, invoice_ref, validated, payment_date`

// Create inserts a frozen settlement. The unique index on
// (practitioner_id, year, month) makes the uniqueness check and the
// insert one atomic unit; a violation means one already exists.
func (s *Store) Create(ctx context.Context, st billing.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	excludedJSON, _ := json.Marshal(st.ExcludedSessionIDs)

	var paymentDate *string
	if st.PaymentDate != nil {
		d := st.PaymentDate.Format(dateLayout)
		paymentDate = &d
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settlements (`+settlementColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID,
		st.PractitionerID,
		st.Period.Year,
		int(st.Period.Month),
		st.Subtotal.String(),
		st.CommissionRate.String(),
		st.CommissionAmount.String(),
		st.WithholdingRate.String(),
		st.WithholdingAmount.String(),
		st.NetPayable.String(),
		string(excludedJSON),
		st.SubmittedAt.Format(time.RFC3339),
		nullString(st.InvoiceRef),
		st.Validated,
		paymentDate,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return billing.ErrAlreadySubmitted
		}
		return fmt.Errorf("failed to insert settlement: %w", err)
	}
	return nil
}

func (s *Store) GetSettlement(ctx context.Context, id billing.SettlementID) (*billing.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+settlementColumns+` FROM settlements WHERE id = ?`, id)
	return scanSettlementRow(row)
}

func (s *Store) GetActive(ctx context.Context, practitionerID billing.PractitionerID, period billing.Period) (*billing.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT `+settlementColumns+` FROM settlements
		WHERE practitioner_id = ? AND year = ? AND month = ?`,
		practitionerID, period.Year, int(period.Month))
	return scanSettlementRow(row)
}

func (s *Store) MarkValidated(ctx context.Context, id billing.SettlementID, paymentDate time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE settlements SET validated = TRUE, payment_date = ?
		WHERE id = ?`,
		paymentDate.Format(dateLayout), id,
	)
	if err != nil {
		return fmt.Errorf("failed to validate settlement %s: %w", id, err)
	}
	return errIfMissing(res)
}

func (s *Store) DeleteSettlement(ctx context.Context, id billing.SettlementID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM settlements WHERE id = ?", id)
	if err != nil {
		return err
	}
	return errIfMissing(res)
}

func (s *Store) ListSettlements(ctx context.Context, practitionerID billing.PractitionerID, year int) ([]billing.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + settlementColumns + ` FROM settlements`
	var clauses []string
	var args []any
	if practitionerID != "" {
		clauses = append(clauses, "practitioner_id = ?")
		args = append(args, practitionerID)
	}
	if year != 0 {
		clauses = append(clauses, "year = ?")
		args = append(args, year)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY submitted_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query settlements: %w", err)
	}
	defer rows.Close()

	var settlements []billing.Settlement
	for rows.Next() {
		st, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		settlements = append(settlements, st)
	}
	return settlements, rows.Err()
}

func scanSettlementRow(row rowScanner) (*billing.Settlement, error) {
	st, err := scanSettlement(row)
	if err == sql.ErrNoRows {
		return nil, billing.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func scanSettlement(row rowScanner) (billing.Settlement, error) {
	var (
		st           billing.Settlement
		year, month  int
		subtotal     string
		commRate     string
		commAmount   string
		withRate     string
		withAmount   string
		net          string
		excludedJSON string
		submittedAt  string
		invoiceRef   sql.NullString
		paymentDate  sql.NullString
	)

	err := row.Scan(
		&st.ID, &st.PractitionerID, &year, &month, &subtotal, &commRate,
		&commAmount, &withRate, &withAmount, &net, &excludedJSON,
		&submittedAt, &invoiceRef, &st.Validated, &paymentDate,
	)
	if err != nil {
		return st, err
	}

	st.Period = billing.Period{Year: year, Month: time.Month(month)}
	st.Subtotal = mustDecimal(subtotal)
	st.CommissionRate = mustDecimal(commRate)
	st.CommissionAmount = mustDecimal(commAmount)
	st.WithholdingRate = mustDecimal(withRate)
	st.WithholdingAmount = mustDecimal(withAmount)
	st.NetPayable = mustDecimal(net)
	json.Unmarshal([]byte(excludedJSON), &st.ExcludedSessionIDs)
	st.SubmittedAt, _ = time.Parse(time.RFC3339, submittedAt)
	st.InvoiceRef = invoiceRef.String
	if paymentDate.Valid {
		t, _ := time.Parse(dateLayout, paymentDate.String)
		st.PaymentDate = &t
	}
	return st, nil
}

// ============================================================================
// PRACTITIONERS (billing.PractitionerStore)
// ============================================================================

func (s *Store) SavePractitioner(ctx context.Context, p billing.Practitioner) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	aliasesJSON, _ := json.Marshal(p.Aliases)
	var commission, withholding *string
	if p.CommissionRate != nil {
		v := p.CommissionRate.String()
		commission = &v
	}
	if p.WithholdingRate != nil {
		v := p.WithholdingRate.String()
		withholding = &v
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO practitioners
		(id, name, aliases_json, session_price, commission_rate, withholding_rate, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			aliases_json = excluded.aliases_json,
			session_price = excluded.session_price,
			commission_rate = excluded.commission_rate,
			withholding_rate = excluded.withholding_rate,
			updated_at = excluded.updated_at`,
		p.ID, p.Name, string(aliasesJSON), p.SessionPrice.String(),
		commission, withholding, now, now,
	)
	return err
}

const practitionerColumns = `id, name, aliases_json, session_price, commission_rate,
	withholding_rate, created_at, updated_at`

func (s *Store) GetPractitioner(ctx context.Context, id billing.PractitionerID) (*billing.Practitioner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+practitionerColumns+` FROM practitioners WHERE id = ?`, id)

	p, err := scanPractitioner(row)
	if err == sql.ErrNoRows {
		return nil, billing.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListPractitioners(ctx context.Context) ([]billing.Practitioner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+practitionerColumns+` FROM practitioners ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var practitioners []billing.Practitioner
	for rows.Next() {
		p, err := scanPractitioner(rows)
		if err != nil {
			return nil, err
		}
		practitioners = append(practitioners, p)
	}
	return practitioners, rows.Err()
}

func (s *Store) DeletePractitioner(ctx context.Context, id billing.PractitionerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM practitioners WHERE id = ?", id)
	if err != nil {
		return err
	}
	return errIfMissing(res)
}

func scanPractitioner(row rowScanner) (billing.Practitioner, error) {
	var (
		p                       billing.Practitioner
		aliasesJSON             string
		sessionPrice            string
		commission, withholding sql.NullString
		createdAt, updatedAt    string
	)

	err := row.Scan(&p.ID, &p.Name, &aliasesJSON, &sessionPrice,
		&commission, &withholding, &createdAt, &updatedAt)
	if err != nil {
		return p, err
	}

	json.Unmarshal([]byte(aliasesJSON), &p.Aliases)
	p.SessionPrice = mustDecimal(sessionPrice)
	if commission.Valid {
		d := mustDecimal(commission.String)
		p.CommissionRate = &d
	}
	if withholding.Valid {
		d := mustDecimal(withholding.String)
		p.WithholdingRate = &d
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return p, nil
}

// ============================================================================
// SYNC RUNS (ingest.RunRecorder)
// ============================================================================

func (s *Store) SaveRun(ctx context.Context, run ingest.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs
		(id, window_start, window_end, processed, created_count, updated_count,
		 failed, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.WindowStart.Format(time.RFC3339),
		run.WindowEnd.Format(time.RFC3339),
		run.Result.Processed,
		run.Result.Created,
		run.Result.Updated,
		run.Result.Failed,
		nullString(run.Error),
		run.StartedAt.Format(time.RFC3339),
		run.CompletedAt.Format(time.RFC3339),
	)
	return err
}

// ListRuns returns the most recent sync run summaries, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]ingest.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, window_start, window_end, processed, created_count,
		       updated_count, failed, error, started_at, completed_at
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []ingest.Run
	for rows.Next() {
		var (
			r                                              ingest.Run
			windowStart, windowEnd, startedAt, completedAt string
			errStr                                         sql.NullString
		)
		if err := rows.Scan(&r.ID, &windowStart, &windowEnd,
			&r.Result.Processed, &r.Result.Created, &r.Result.Updated,
			&r.Result.Failed, &errStr, &startedAt, &completedAt); err != nil {
			return nil, err
		}
		r.WindowStart, _ = time.Parse(time.RFC3339, windowStart)
		r.WindowEnd, _ = time.Parse(time.RFC3339, windowEnd)
		r.Error = errStr.String
		r.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		r.CompletedAt, _ = time.Parse(time.RFC3339, completedAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ============================================================================
// UTILITIES
// ============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"sessions", "settlements", "practitioners", "sync_runs"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func errIfMissing(res sql.Result) error {
	if n, _ := res.RowsAffected(); n == 0 {
		return billing.ErrNotFound
	}
	return nil
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
