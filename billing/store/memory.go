// Package store provides in-memory billing store implementations for
// tests and dev mode.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/praxia/clinic-engine/billing"
)

// =============================================================================
// MEMORY STORE - implements SessionStore, SettlementStore, PractitionerStore
// =============================================================================

type Memory struct {
	mu            sync.RWMutex
	sessions      map[billing.SessionID]billing.Session
	settlements   map[billing.SettlementID]billing.Settlement
	activeByPair  map[pairKey]billing.SettlementID
	practitioners map[billing.PractitionerID]billing.Practitioner
}

type pairKey struct {
	Practitioner billing.PractitionerID
	Period       billing.Period
}

func NewMemory() *Memory {
	return &Memory{
		sessions:      make(map[billing.SessionID]billing.Session),
		settlements:   make(map[billing.SettlementID]billing.Settlement),
		activeByPair:  make(map[pairKey]billing.SettlementID),
		practitioners: make(map[billing.PractitionerID]billing.Practitioner),
	}
}

// =============================================================================
// SESSION LEDGER
// =============================================================================

func (m *Memory) Upsert(_ context.Context, id billing.SessionID, patch billing.SessionPatch) (billing.UpsertOutcome, error) {
	if id == "" {
		return "", billing.ErrConfiguration
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := m.sessions[id]; ok {
		existing.PractitionerID = patch.PractitionerID
		existing.Date = patch.Date
		existing.StartTime = patch.StartTime
		existing.Title = patch.Title
		existing.Cancelled = patch.Cancelled
		existing.OriginalPrice = patch.OriginalPrice
		existing.UpdatedAt = now
		m.sessions[id] = existing
		return billing.UpsertUpdated, nil
	}

	m.sessions[id] = billing.Session{
		ID:             id,
		PractitionerID: patch.PractitionerID,
		Date:           patch.Date,
		StartTime:      patch.StartTime,
		Title:          patch.Title,
		Cancelled:      patch.Cancelled,
		OriginalPrice:  patch.OriginalPrice,
		PaymentStatus:  billing.PaymentPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return billing.UpsertCreated, nil
}

func (m *Memory) GetSession(_ context.Context, id billing.SessionID) (*billing.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, billing.ErrNotFound
	}
	return &s, nil
}

func (m *Memory) ListForPeriod(_ context.Context, practitionerID billing.PractitionerID, period billing.Period) ([]billing.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []billing.Session
	for _, s := range m.sessions {
		if s.PractitionerID == practitionerID && period.Contains(s.Date) {
			result = append(result, s)
		}
	}
	sortSessions(result)
	return result, nil
}

func (m *Memory) ListPeriod(_ context.Context, period billing.Period) ([]billing.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []billing.Session
	for _, s := range m.sessions {
		if period.Contains(s.Date) {
			result = append(result, s)
		}
	}
	sortSessions(result)
	return result, nil
}

func (m *Memory) SetPaymentStatus(_ context.Context, id billing.SessionID, status billing.PaymentStatus, paymentDate *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return billing.ErrNotFound
	}
	s.PaymentStatus = status
	s.PaymentDate = paymentDate
	s.UpdatedAt = time.Now().UTC()
	m.sessions[id] = s
	return nil
}

func (m *Memory) SetPriceOverride(_ context.Context, id billing.SessionID, price *decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return billing.ErrNotFound
	}
	s.OverridePrice = price
	s.UpdatedAt = time.Now().UTC()
	m.sessions[id] = s
	return nil
}

func (m *Memory) DeleteSession(_ context.Context, id billing.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return billing.ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

func sortSessions(sessions []billing.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].Date.Equal(sessions[j].Date) {
			return sessions[i].Date.Before(sessions[j].Date)
		}
		if sessions[i].StartTime != sessions[j].StartTime {
			return sessions[i].StartTime < sessions[j].StartTime
		}
		return sessions[i].ID < sessions[j].ID
	})
}

// =============================================================================
// SETTLEMENTS
// =============================================================================

// Create checks-and-inserts under one lock, which is the memory store's
// version of the atomic uniqueness boundary.
func (m *Memory) Create(_ context.Context, s billing.Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := pairKey{Practitioner: s.PractitionerID, Period: s.Period}
	if _, ok := m.activeByPair[k]; ok {
		return billing.ErrAlreadySubmitted
	}
	m.settlements[s.ID] = s
	m.activeByPair[k] = s.ID
	return nil
}

func (m *Memory) GetSettlement(_ context.Context, id billing.SettlementID) (*billing.Settlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.settlements[id]
	if !ok {
		return nil, billing.ErrNotFound
	}
	return &s, nil
}

func (m *Memory) GetActive(_ context.Context, practitionerID billing.PractitionerID, period billing.Period) (*billing.Settlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.activeByPair[pairKey{Practitioner: practitionerID, Period: period}]
	if !ok {
		return nil, billing.ErrNotFound
	}
	s := m.settlements[id]
	return &s, nil
}

func (m *Memory) MarkValidated(_ context.Context, id billing.SettlementID, paymentDate time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.settlements[id]
	if !ok {
		return billing.ErrNotFound
	}
	s.Validated = true
	s.PaymentDate = &paymentDate
	m.settlements[id] = s
	return nil
}

func (m *Memory) DeleteSettlement(_ context.Context, id billing.SettlementID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.settlements[id]
	if !ok {
		return billing.ErrNotFound
	}
	delete(m.settlements, id)
	delete(m.activeByPair, pairKey{Practitioner: s.PractitionerID, Period: s.Period})
	return nil
}

func (m *Memory) ListSettlements(_ context.Context, practitionerID billing.PractitionerID, year int) ([]billing.Settlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []billing.Settlement
	for _, s := range m.settlements {
		if practitionerID != "" && s.PractitionerID != practitionerID {
			continue
		}
		if year != 0 && s.Period.Year != year {
			continue
		}
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SubmittedAt.After(result[j].SubmittedAt)
	})
	return result, nil
}

// =============================================================================
// PRACTITIONERS
// =============================================================================

func (m *Memory) SavePractitioner(_ context.Context, p billing.Practitioner) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := m.practitioners[p.ID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	m.practitioners[p.ID] = p
	return nil
}

func (m *Memory) GetPractitioner(_ context.Context, id billing.PractitionerID) (*billing.Practitioner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.practitioners[id]
	if !ok {
		return nil, billing.ErrNotFound
	}
	return &p, nil
}

func (m *Memory) ListPractitioners(_ context.Context) ([]billing.Practitioner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]billing.Practitioner, 0, len(m.practitioners))
	for _, p := range m.practitioners {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *Memory) DeletePractitioner(_ context.Context, id billing.PractitionerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.practitioners[id]; !ok {
		return billing.ErrNotFound
	}
	delete(m.practitioners, id)
	return nil
}
