package transform

import (
	"sort"

	"github.com/shopspring/decimal"
)

var (
	hundred        = decimal.NewFromInt(100)
	withholdingPct = decimal.NewFromInt(2)
)

// validVATRates are the rates that can be booked in a VAT slot.
var validVATRates = map[float64]bool{0: true, 4: true, 10: true, 12: true, 21: true}

// round2 rounds half away from zero to cents.
func round2(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

func money(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

// rateGroups accumulates net bases per VAT rate.
type rateGroups map[float64]decimal.Decimal

func (g rateGroups) add(rate float64, base decimal.Decimal) {
	g[rate] = g[rate].Add(base)
}

func (g rateGroups) rates(desc bool) []float64 {
	out := make([]float64, 0, len(g))
	for r := range g {
		out = append(out, r)
	}
	if desc {
		sort.Sort(sort.Reverse(sort.Float64Slice(out)))
	} else {
		sort.Float64s(out)
	}
	return out
}

// applyDiscount subtracts discount from the groups, highest rate first,
// never taking a group below zero. It returns what could not be applied.
func (g rateGroups) applyDiscount(discount decimal.Decimal) decimal.Decimal {
	rest := discount
	for _, r := range g.rates(true) {
		if !rest.IsPositive() {
			break
		}
		base := g[r]
		if !base.IsPositive() {
			continue
		}
		cut := decimal.Min(rest, base)
		g[r] = base.Sub(cut)
		rest = rest.Sub(cut)
	}
	return rest
}
