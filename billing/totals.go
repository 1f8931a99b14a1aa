/*
totals.go - Settlement money arithmetic

The chain, in order:

  subtotal    = sum of effective prices over billable, non-excluded sessions
  commission  = subtotal * commission_rate          (clinic's cut)
  withholdable = subtotal - commission
  withholding = withholdable * withholding_rate    (tax, after commission)
  net payable = withholdable - withholding

Withholding applies to (subtotal - commission), not to subtotal. That
ordering is how the clinic has always filed; changing it materially changes
the net payable. Every money step rounds half-up to 2 decimal places.
*/
package billing

import "github.com/shopspring/decimal"

// ComputeTotals aggregates a period's sessions under the given rates and
// exclusion set. Pure: inputs in, totals out, no store access.
func ComputeTotals(sessions []Session, excluded map[SessionID]bool, rates Rates) Totals {
	subtotal := decimal.Zero
	billable := 0
	skipped := 0

	for _, s := range sessions {
		if !s.Billable() {
			continue
		}
		if excluded[s.ID] {
			skipped++
			continue
		}
		billable++
		subtotal = subtotal.Add(s.EffectivePrice())
	}
	subtotal = subtotal.Round(2)

	commission := subtotal.Mul(rates.Commission).Round(2)
	withholdable := subtotal.Sub(commission)
	withholding := withholdable.Mul(rates.Withholding).Round(2)
	net := withholdable.Sub(withholding)

	return Totals{
		Subtotal:          subtotal,
		CommissionRate:    rates.Commission,
		CommissionAmount:  commission,
		WithholdingRate:   rates.Withholding,
		WithholdingAmount: withholding,
		NetPayable:        net,
		BillableCount:     billable,
		ExcludedCount:     skipped,
	}
}

// ExclusionSet turns an id slice into the lookup form ComputeTotals takes.
func ExclusionSet(ids []SessionID) map[SessionID]bool {
	set := make(map[SessionID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
