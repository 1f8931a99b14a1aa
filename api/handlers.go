/*
handlers.go - HTTP API handlers for the settlement engine

PURPOSE:
  Exposes the session ledger and settlement engine via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Sync:
    POST   /api/sync                    On-demand calendar sync
    GET    /api/sync/runs               Recent run summaries

  Practitioners:
    GET    /api/practitioners           List practitioners
    POST   /api/practitioners           Create practitioner
    GET    /api/practitioners/{id}      Get practitioner
    PUT    /api/practitioners/{id}      Update practitioner
    DELETE /api/practitioners/{id}      Delete practitioner

  Sessions:
    GET    /api/sessions                Period listing (year/month filters)
    PUT    /api/sessions/{id}/payment   Set payment status
    PUT    /api/sessions/{id}/price     Set/clear price override
    DELETE /api/sessions/{id}           Admin delete

  Periods:
    GET    /api/practitioners/{id}/periods/{year}/{month}          Query facade
    POST   /api/practitioners/{id}/periods/{year}/{month}/preview  Live preview

  Settlements:
    POST   /api/settlements               Submit
    GET    /api/settlements               List (practitioner/year filters)
    GET    /api/settlements/{id}          Frozen record
    POST   /api/settlements/{id}/validate Validate (payment date)
    POST   /api/settlements/{id}/revoke   Revoke (reason required)
    GET    /api/settlements/{id}/sessions Included/excluded partition

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, missing rates
  - 404: Resource not found
  - 409: Conflict (settlement already submitted / not submitted)
  - 502: Calendar collaborator unavailable
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/praxia/clinic-engine/billing"
	"github.com/praxia/clinic-engine/ingest"
	"github.com/praxia/clinic-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store        *sqlite.Store
	Engine       *billing.Engine
	Orchestrator *ingest.Orchestrator
	Rates        billing.RateConfig
}

// NewHandler creates a new handler.
func NewHandler(store *sqlite.Store, engine *billing.Engine, orchestrator *ingest.Orchestrator, rates billing.RateConfig) *Handler {
	return &Handler{
		Store:        store,
		Engine:       engine,
		Orchestrator: orchestrator,
		Rates:        rates,
	}
}

// =============================================================================
// SYNC HANDLERS
// =============================================================================

// TriggerSync runs an on-demand calendar sync over the given window.
// POST /api/sync
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	from, err := parseFlexibleTime(req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid 'from' timestamp", err)
		return
	}
	to, err := parseFlexibleTime(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid 'to' timestamp", err)
		return
	}
	if !to.After(from) {
		writeError(w, http.StatusBadRequest, "'to' must be after 'from'", nil)
		return
	}

	result, err := h.Orchestrator.Sync(r.Context(), from, to)
	if err != nil {
		if errors.Is(err, billing.ErrCalendarUnavailable) {
			writeError(w, http.StatusBadGateway, "Calendar unavailable", err)
			return
		}
		if billing.IsConfiguration(err) {
			writeError(w, http.StatusBadRequest, "Sync configuration error", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Sync failed", err)
		return
	}

	writeJSON(w, http.StatusOK, SyncResultDTO{
		Processed: result.Processed,
		Created:   result.Created,
		Updated:   result.Updated,
		Failed:    result.Failed,
	})
}

// ListSyncRuns returns recent run summaries, newest first.
// GET /api/sync/runs
func (h *Handler) ListSyncRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	runs, err := h.Store.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sync runs", err)
		return
	}

	dtos := make([]SyncRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toSyncRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PRACTITIONER HANDLERS
// =============================================================================

// ListPractitioners returns all practitioners.
func (h *Handler) ListPractitioners(w http.ResponseWriter, r *http.Request) {
	practitioners, err := h.Store.ListPractitioners(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list practitioners", err)
		return
	}

	dtos := make([]PractitionerDTO, len(practitioners))
	for i, p := range practitioners {
		dtos[i] = toPractitionerDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetPractitioner returns a single practitioner.
func (h *Handler) GetPractitioner(w http.ResponseWriter, r *http.Request) {
	id := billing.PractitionerID(chi.URLParam(r, "id"))

	p, err := h.Store.GetPractitioner(r.Context(), id)
	if err != nil {
		if billing.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Practitioner not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get practitioner", err)
		return
	}
	writeJSON(w, http.StatusOK, toPractitionerDTO(*p))
}

// CreatePractitioner creates a new practitioner.
func (h *Handler) CreatePractitioner(w http.ResponseWriter, r *http.Request) {
	var req SavePractitionerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.savePractitioner(w, r, req)
}

// UpdatePractitioner updates an existing practitioner. The path id wins
// over any id in the body.
func (h *Handler) UpdatePractitioner(w http.ResponseWriter, r *http.Request) {
	var req SavePractitionerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.ID = chi.URLParam(r, "id")
	h.savePractitioner(w, r, req)
}

func (h *Handler) savePractitioner(w http.ResponseWriter, r *http.Request, req SavePractitionerRequest) {
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	p := billing.Practitioner{
		ID:      billing.PractitionerID(req.ID),
		Name:    req.Name,
		Aliases: req.Aliases,
	}

	if req.SessionPrice != "" {
		price, err := decimal.NewFromString(req.SessionPrice)
		if err != nil || price.IsNegative() {
			writeError(w, http.StatusBadRequest, "Invalid session_price", err)
			return
		}
		p.SessionPrice = price
	}

	var err error
	if p.CommissionRate, err = parseRate(req.CommissionRate); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid commission_rate", err)
		return
	}
	if p.WithholdingRate, err = parseRate(req.WithholdingRate); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid withholding_rate", err)
		return
	}

	if err := h.Store.SavePractitioner(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save practitioner", err)
		return
	}

	saved, err := h.Store.GetPractitioner(r.Context(), p.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reload practitioner", err)
		return
	}
	writeJSON(w, http.StatusOK, toPractitionerDTO(*saved))
}

// DeletePractitioner removes a practitioner from the registry. Existing
// sessions keep their attribution.
func (h *Handler) DeletePractitioner(w http.ResponseWriter, r *http.Request) {
	id := billing.PractitionerID(chi.URLParam(r, "id"))

	if err := h.Store.DeletePractitioner(r.Context(), id); err != nil {
		if billing.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Practitioner not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete practitioner", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SESSION HANDLERS
// =============================================================================

// ListSessions returns the ledger rows for a period, optionally filtered
// by practitioner. Unassigned sessions are included so operators can spot
// orphan bookings.
// GET /api/sessions?year=&month=&practitioner_id=
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	period, ok := parsePeriodQuery(w, r)
	if !ok {
		return
	}

	var (
		sessions []billing.Session
		err      error
	)
	if pid := r.URL.Query().Get("practitioner_id"); pid != "" {
		sessions, err = h.Store.ListForPeriod(r.Context(), billing.PractitionerID(pid), period)
	} else {
		sessions, err = h.Store.ListPeriod(r.Context(), period)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTOs(sessions))
}

// SetPayment sets a session's payment status and optional payment date.
// PUT /api/sessions/{id}/payment
func (h *Handler) SetPayment(w http.ResponseWriter, r *http.Request) {
	id := billing.SessionID(chi.URLParam(r, "id"))

	var req SetPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	status := billing.PaymentStatus(req.Status)
	if !status.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid payment status", nil)
		return
	}

	var paymentDate *time.Time
	if req.PaymentDate != nil {
		d, err := time.Parse("2006-01-02", *req.PaymentDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid payment_date", err)
			return
		}
		paymentDate = &d
	}

	if err := h.Store.SetPaymentStatus(r.Context(), id, status, paymentDate); err != nil {
		if billing.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Session not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to set payment status", err)
		return
	}
	h.writeSession(w, r, id)
}

// SetPrice sets or clears a session's price override.
// PUT /api/sessions/{id}/price
func (h *Handler) SetPrice(w http.ResponseWriter, r *http.Request) {
	id := billing.SessionID(chi.URLParam(r, "id"))

	var req SetPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var price *decimal.Decimal
	if req.Price != nil {
		p, err := decimal.NewFromString(*req.Price)
		if err != nil || p.IsNegative() {
			writeError(w, http.StatusBadRequest, "Invalid price", err)
			return
		}
		price = &p
	}

	if err := h.Store.SetPriceOverride(r.Context(), id, price); err != nil {
		if billing.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Session not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to set price override", err)
		return
	}
	h.writeSession(w, r, id)
}

// DeleteSession removes a ledger row. The next sync recreates it if the
// booking still exists on the calendar.
// DELETE /api/sessions/{id}
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := billing.SessionID(chi.URLParam(r, "id"))

	if err := h.Store.DeleteSession(r.Context(), id); err != nil {
		if billing.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Session not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeSession(w http.ResponseWriter, r *http.Request, id billing.SessionID) {
	s, err := h.Store.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reload session", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(*s))
}

// =============================================================================
// PERIOD HANDLERS
// =============================================================================

// GetPeriod returns the period view: live totals while open, the frozen
// settlement verbatim once filed.
// GET /api/practitioners/{id}/periods/{year}/{month}
func (h *Handler) GetPeriod(w http.ResponseWriter, r *http.Request) {
	h.periodView(w, r, nil)
}

// PreviewPeriod returns live totals with tentative exclusions applied.
// Only meaningful for an open period; a filed period returns the
// settlement unchanged.
// POST /api/practitioners/{id}/periods/{year}/{month}/preview
func (h *Handler) PreviewPeriod(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.periodView(w, r, toSessionIDs(req.ExcludedSessionIDs))
}

func (h *Handler) periodView(w http.ResponseWriter, r *http.Request, excluded []billing.SessionID) {
	practitionerID := billing.PractitionerID(chi.URLParam(r, "id"))
	period, ok := parsePeriodPath(w, r)
	if !ok {
		return
	}

	rates, ok := h.resolveRates(w, r, practitionerID)
	if !ok {
		return
	}

	view, err := h.Engine.Query(r.Context(), practitionerID, period, excluded, rates)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query period", err)
		return
	}

	dto := PeriodViewDTO{
		PractitionerID: string(view.PractitionerID),
		Year:           view.Period.Year,
		Month:          int(view.Period.Month),
		Status:         string(view.Status),
	}
	if view.Live != nil {
		t := toTotalsDTO(*view.Live)
		dto.Live = &t
	}
	if view.Settlement != nil {
		s := toSettlementDTO(*view.Settlement)
		dto.Settlement = &s
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// SETTLEMENT HANDLERS
// =============================================================================

// SubmitSettlement freezes a period.
// POST /api/settlements
func (h *Handler) SubmitSettlement(w http.ResponseWriter, r *http.Request) {
	var req SubmitSettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	period, err := billing.NewPeriod(req.Year, req.Month)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	practitionerID := billing.PractitionerID(req.PractitionerID)
	rates, ok := h.resolveRates(w, r, practitionerID)
	if !ok {
		return
	}

	settlement, err := h.Engine.Submit(r.Context(), billing.SubmitInput{
		PractitionerID:     practitionerID,
		Period:             period,
		ExcludedSessionIDs: toSessionIDs(req.ExcludedSessionIDs),
		InvoiceRef:         req.InvoiceRef,
		Rates:              rates,
	})
	if err != nil {
		if billing.IsConflict(err) {
			writeError(w, http.StatusConflict, "Settlement already submitted for this period", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to submit settlement", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSettlementDTO(*settlement))
}

// ListSettlements returns settlements, optionally filtered.
// GET /api/settlements?practitioner_id=&year=
func (h *Handler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	practitionerID := billing.PractitionerID(r.URL.Query().Get("practitioner_id"))
	year, _ := strconv.Atoi(r.URL.Query().Get("year"))

	settlements, err := h.Store.ListSettlements(r.Context(), practitionerID, year)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list settlements", err)
		return
	}

	dtos := make([]SettlementDTO, len(settlements))
	for i, s := range settlements {
		dtos[i] = toSettlementDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSettlement returns a frozen settlement record.
func (h *Handler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	id := billing.SettlementID(chi.URLParam(r, "id"))

	s, err := h.Store.GetSettlement(r.Context(), id)
	if err != nil {
		if billing.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Settlement not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get settlement", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementDTO(*s))
}

// ValidateSettlement marks a submitted settlement as paid out.
// POST /api/settlements/{id}/validate
func (h *Handler) ValidateSettlement(w http.ResponseWriter, r *http.Request) {
	id := billing.SettlementID(chi.URLParam(r, "id"))

	var req ValidateSettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	paymentDate, err := time.Parse("2006-01-02", req.PaymentDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payment_date", err)
		return
	}

	s, err := h.Engine.Validate(r.Context(), id, paymentDate)
	if err != nil {
		if billing.IsConflict(err) {
			writeError(w, http.StatusConflict, "Settlement is not in submitted state", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to validate settlement", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementDTO(*s))
}

// RevokeSettlement deletes a settlement, returning the period to open.
// POST /api/settlements/{id}/revoke
func (h *Handler) RevokeSettlement(w http.ResponseWriter, r *http.Request) {
	id := billing.SettlementID(chi.URLParam(r, "id"))

	var req RevokeSettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Engine.Revoke(r.Context(), id, req.Reason); err != nil {
		switch {
		case billing.IsClientError(err):
			writeError(w, http.StatusBadRequest, "Revocation reason is required", nil)
		case billing.IsConflict(err):
			writeError(w, http.StatusConflict, "No settlement to revoke", nil)
		default:
			writeError(w, http.StatusInternalServerError, "Failed to revoke settlement", err)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetBreakdown returns the included/excluded session partition behind a
// settlement, for invoice rendering.
// GET /api/settlements/{id}/sessions
func (h *Handler) GetBreakdown(w http.ResponseWriter, r *http.Request) {
	id := billing.SettlementID(chi.URLParam(r, "id"))

	b, err := h.Engine.Breakdown(r.Context(), id)
	if err != nil {
		if billing.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Settlement not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to compute breakdown", err)
		return
	}

	writeJSON(w, http.StatusOK, BreakdownDTO{
		Settlement: toSettlementDTO(b.Settlement),
		Included:   toSessionDTOs(b.Included),
		Excluded:   toSessionDTOs(b.Excluded),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// resolveRates loads the practitioner and merges per-practitioner rate
// overrides onto the clinic defaults. Writes the error response itself.
func (h *Handler) resolveRates(w http.ResponseWriter, r *http.Request, id billing.PractitionerID) (billing.Rates, bool) {
	p, err := h.Store.GetPractitioner(r.Context(), id)
	if err != nil {
		if billing.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Practitioner not found", nil)
			return billing.Rates{}, false
		}
		writeError(w, http.StatusInternalServerError, "Failed to load practitioner", err)
		return billing.Rates{}, false
	}

	rates, err := h.Rates.RatesFor(*p)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Rate configuration error", err)
		return billing.Rates{}, false
	}
	return rates, true
}

func parsePeriodPath(w http.ResponseWriter, r *http.Request) (billing.Period, bool) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return billing.Period{}, false
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return billing.Period{}, false
	}
	period, err := billing.NewPeriod(year, month)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return billing.Period{}, false
	}
	return period, true
}

func parsePeriodQuery(w http.ResponseWriter, r *http.Request) (billing.Period, bool) {
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "year query parameter is required", err)
		return billing.Period{}, false
	}
	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "month query parameter is required", err)
		return billing.Period{}, false
	}
	period, err := billing.NewPeriod(year, month)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return billing.Period{}, false
	}
	return period, true
}

func parseRate(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// parseFlexibleTime accepts RFC3339 or a bare ISO date.
func parseFlexibleTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func toSessionIDs(ids []string) []billing.SessionID {
	out := make([]billing.SessionID, len(ids))
	for i, id := range ids {
		out[i] = billing.SessionID(id)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
