/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY ENCODING:
  Decimal amounts are encoded as JSON strings ("297.50"), never floats.
  Clients doing arithmetic must parse them with a decimal library.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - billing/types.go: Domain counterparts
*/
package api

import (
	"time"

	"github.com/praxia/clinic-engine/billing"
	"github.com/praxia/clinic-engine/ingest"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// PractitionerDTO represents a practitioner in API responses.
type PractitionerDTO struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Aliases         []string `json:"aliases"`
	SessionPrice    string   `json:"session_price"`
	CommissionRate  *string  `json:"commission_rate,omitempty"`
	WithholdingRate *string  `json:"withholding_rate,omitempty"`
	CreatedAt       string   `json:"created_at,omitempty"`
	UpdatedAt       string   `json:"updated_at,omitempty"`
}

// SavePractitionerRequest is the request to create or update a practitioner.
type SavePractitionerRequest struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Aliases         []string `json:"aliases"`
	SessionPrice    string   `json:"session_price"`
	CommissionRate  *string  `json:"commission_rate,omitempty"`
	WithholdingRate *string  `json:"withholding_rate,omitempty"`
}

// SessionDTO represents a session ledger row.
type SessionDTO struct {
	ID             string  `json:"id"`
	PractitionerID string  `json:"practitioner_id,omitempty"`
	Date           string  `json:"date"`
	StartTime      string  `json:"start_time,omitempty"`
	Title          string  `json:"title"`
	Cancelled      bool    `json:"cancelled"`
	OriginalPrice  string  `json:"original_price"`
	OverridePrice  *string `json:"override_price,omitempty"`
	EffectivePrice string  `json:"effective_price"`
	PaymentStatus  string  `json:"payment_status"`
	PaymentDate    *string `json:"payment_date,omitempty"`
	UpdatedAt      string  `json:"updated_at,omitempty"`
}

// SetPaymentRequest sets a session's payment status.
type SetPaymentRequest struct {
	Status      string  `json:"status"`
	PaymentDate *string `json:"payment_date,omitempty"` // ISO date
}

// SetPriceRequest sets or clears a session's price override.
type SetPriceRequest struct {
	Price *string `json:"price"` // null clears the override
}

// TotalsDTO represents a period money aggregate.
type TotalsDTO struct {
	Subtotal          string `json:"subtotal"`
	CommissionRate    string `json:"commission_rate"`
	CommissionAmount  string `json:"commission_amount"`
	WithholdingRate   string `json:"withholding_rate"`
	WithholdingAmount string `json:"withholding_amount"`
	NetPayable        string `json:"net_payable"`
	BillableCount     int    `json:"billable_count"`
	ExcludedCount     int    `json:"excluded_count"`
}

// SettlementDTO represents a frozen settlement.
type SettlementDTO struct {
	ID                 string   `json:"id"`
	PractitionerID     string   `json:"practitioner_id"`
	Year               int      `json:"year"`
	Month              int      `json:"month"`
	Subtotal           string   `json:"subtotal"`
	CommissionRate     string   `json:"commission_rate"`
	CommissionAmount   string   `json:"commission_amount"`
	WithholdingRate    string   `json:"withholding_rate"`
	WithholdingAmount  string   `json:"withholding_amount"`
	NetPayable         string   `json:"net_payable"`
	ExcludedSessionIDs []string `json:"excluded_session_ids"`
	SubmittedAt        string   `json:"submitted_at"`
	InvoiceRef         string   `json:"invoice_ref,omitempty"`
	Validated          bool     `json:"validated"`
	PaymentDate        *string  `json:"payment_date,omitempty"`
}

// PeriodViewDTO is the query facade response: live totals while open,
// the frozen settlement verbatim once filed.
type PeriodViewDTO struct {
	PractitionerID string         `json:"practitioner_id"`
	Year           int            `json:"year"`
	Month          int            `json:"month"`
	Status         string         `json:"status"`
	Live           *TotalsDTO     `json:"live,omitempty"`
	Settlement     *SettlementDTO `json:"settlement,omitempty"`
}

// PreviewRequest carries tentative exclusions for a live totals preview.
type PreviewRequest struct {
	ExcludedSessionIDs []string `json:"excluded_session_ids"`
}

// SubmitSettlementRequest is the request to submit a period.
type SubmitSettlementRequest struct {
	PractitionerID     string   `json:"practitioner_id"`
	Year               int      `json:"year"`
	Month              int      `json:"month"`
	ExcludedSessionIDs []string `json:"excluded_session_ids"`
	InvoiceRef         string   `json:"invoice_ref,omitempty"`
}

// ValidateSettlementRequest marks a settlement as paid out.
type ValidateSettlementRequest struct {
	PaymentDate string `json:"payment_date"` // ISO date
}

// RevokeSettlementRequest revokes a settlement. Reason is mandatory.
type RevokeSettlementRequest struct {
	Reason string `json:"reason"`
}

// BreakdownDTO partitions a settlement's sessions for document rendering.
type BreakdownDTO struct {
	Settlement SettlementDTO `json:"settlement"`
	Included   []SessionDTO  `json:"included"`
	Excluded   []SessionDTO  `json:"excluded"`
}

// SyncRequest triggers an on-demand calendar sync.
type SyncRequest struct {
	From string `json:"from"` // ISO date or RFC3339
	To   string `json:"to"`
}

// SyncResultDTO summarizes one sync run.
type SyncResultDTO struct {
	Processed int `json:"processed"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Failed    int `json:"failed"`
}

// SyncRunDTO is a persisted run summary.
type SyncRunDTO struct {
	ID          string        `json:"id"`
	WindowStart string        `json:"window_start"`
	WindowEnd   string        `json:"window_end"`
	Result      SyncResultDTO `json:"result"`
	Error       string        `json:"error,omitempty"`
	StartedAt   string        `json:"started_at"`
	CompletedAt string        `json:"completed_at"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toPractitionerDTO(p billing.Practitioner) PractitionerDTO {
	dto := PractitionerDTO{
		ID:           string(p.ID),
		Name:         p.Name,
		Aliases:      p.Aliases,
		SessionPrice: p.SessionPrice.StringFixed(2),
		CreatedAt:    p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    p.UpdatedAt.Format(time.RFC3339),
	}
	if dto.Aliases == nil {
		dto.Aliases = []string{}
	}
	if p.CommissionRate != nil {
		v := p.CommissionRate.String()
		dto.CommissionRate = &v
	}
	if p.WithholdingRate != nil {
		v := p.WithholdingRate.String()
		dto.WithholdingRate = &v
	}
	return dto
}

func toSessionDTO(s billing.Session) SessionDTO {
	dto := SessionDTO{
		ID:             string(s.ID),
		PractitionerID: string(s.PractitionerID),
		Date:           s.Date.Format("2006-01-02"),
		StartTime:      s.StartTime,
		Title:          s.Title,
		Cancelled:      s.Cancelled,
		OriginalPrice:  s.OriginalPrice.StringFixed(2),
		EffectivePrice: s.EffectivePrice().StringFixed(2),
		PaymentStatus:  string(s.PaymentStatus),
		UpdatedAt:      s.UpdatedAt.Format(time.RFC3339),
	}
	if s.OverridePrice != nil {
		v := s.OverridePrice.StringFixed(2)
		dto.OverridePrice = &v
	}
	if s.PaymentDate != nil {
		v := s.PaymentDate.Format("2006-01-02")
		dto.PaymentDate = &v
	}
	return dto
}

func toSessionDTOs(sessions []billing.Session) []SessionDTO {
	dtos := make([]SessionDTO, len(sessions))
	for i, s := range sessions {
		dtos[i] = toSessionDTO(s)
	}
	return dtos
}

func toTotalsDTO(t billing.Totals) TotalsDTO {
	return TotalsDTO{
		Subtotal:          t.Subtotal.StringFixed(2),
		CommissionRate:    t.CommissionRate.String(),
		CommissionAmount:  t.CommissionAmount.StringFixed(2),
		WithholdingRate:   t.WithholdingRate.String(),
		WithholdingAmount: t.WithholdingAmount.StringFixed(2),
		NetPayable:        t.NetPayable.StringFixed(2),
		BillableCount:     t.BillableCount,
		ExcludedCount:     t.ExcludedCount,
	}
}

func toSettlementDTO(s billing.Settlement) SettlementDTO {
	excluded := make([]string, len(s.ExcludedSessionIDs))
	for i, id := range s.ExcludedSessionIDs {
		excluded[i] = string(id)
	}
	dto := SettlementDTO{
		ID:                 string(s.ID),
		PractitionerID:     string(s.PractitionerID),
		Year:               s.Period.Year,
		Month:              int(s.Period.Month),
		Subtotal:           s.Subtotal.StringFixed(2),
		CommissionRate:     s.CommissionRate.String(),
		CommissionAmount:   s.CommissionAmount.StringFixed(2),
		WithholdingRate:    s.WithholdingRate.String(),
		WithholdingAmount:  s.WithholdingAmount.StringFixed(2),
		NetPayable:         s.NetPayable.StringFixed(2),
		ExcludedSessionIDs: excluded,
		SubmittedAt:        s.SubmittedAt.Format(time.RFC3339),
		InvoiceRef:         s.InvoiceRef,
		Validated:          s.Validated,
	}
	if s.PaymentDate != nil {
		v := s.PaymentDate.Format("2006-01-02")
		dto.PaymentDate = &v
	}
	return dto
}

func toSyncRunDTO(r ingest.Run) SyncRunDTO {
	return SyncRunDTO{
		ID:          r.ID,
		WindowStart: r.WindowStart.Format(time.RFC3339),
		WindowEnd:   r.WindowEnd.Format(time.RFC3339),
		Result: SyncResultDTO{
			Processed: r.Result.Processed,
			Created:   r.Result.Created,
			Updated:   r.Result.Updated,
			Failed:    r.Result.Failed,
		},
		Error:       r.Error,
		StartedAt:   r.StartedAt.Format(time.RFC3339),
		CompletedAt: r.CompletedAt.Format(time.RFC3339),
	}
}
