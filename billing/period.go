package billing

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - settlements are always scoped to one calendar month
// =============================================================================

// Period identifies a settlement month. The pair (PractitionerID, Period)
// admits at most one active Settlement.
type Period struct {
	Year  int
	Month time.Month
}

// NewPeriod validates and builds a Period.
func NewPeriod(year int, month int) (Period, error) {
	if year < 2000 || year > 2200 {
		return Period{}, fmt.Errorf("%w: year %d out of range", ErrInvalidPeriod, year)
	}
	if month < 1 || month > 12 {
		return Period{}, fmt.Errorf("%w: month %d out of range", ErrInvalidPeriod, month)
	}
	return Period{Year: year, Month: time.Month(month)}, nil
}

// PeriodOf returns the period containing the given instant.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// Start is the first instant of the month, UTC.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End is the last day of the month, UTC midnight.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, -1)
}

// Contains reports whether the given calendar day falls in the period.
func (p Period) Contains(t time.Time) bool {
	return t.Year() == p.Year && t.Month() == p.Month
}

func (p Period) Next() Period     { return PeriodOf(p.Start().AddDate(0, 1, 0)) }
func (p Period) Previous() Period { return PeriodOf(p.Start().AddDate(0, -1, 0)) }

func (p Period) IsZero() bool { return p.Year == 0 && p.Month == 0 }

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}
