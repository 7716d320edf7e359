package pressure

import (
	"github.com/shopspring/decimal"

	"marketsim/internal/market"
)

type MonthlyPerformance struct {
	Year        int     `json:"year"`
	Month       int     `json:"month"`
	StartAssets float64 `json:"start_assets"`
	EndAssets   float64 `json:"end_assets"`
	ReturnRate  float64 `json:"return_rate"`
	TaxPaid     float64 `json:"tax_paid"`
}

// State is the player's economic pressure. Every function here takes a State by
// value and returns the updated copy.
type State struct {
	Tier                             Tier                 `json:"tier"`
	PreviousTier                     Tier                 `json:"previous_tier,omitempty"`
	History                          []MonthlyPerformance `json:"history"`
	ConsecutiveHighPerformanceMonths int                  `json:"consecutive_high_performance_months"`
	ConsecutiveLossMonths            int                  `json:"consecutive_loss_months"`
	NegativeEventMultiplier          float64              `json:"negative_event_multiplier"`
	ReliefEligible                   bool                 `json:"relief_eligible"`
	MonthlyTaxPaid                   float64              `json:"monthly_tax_paid"`
	TotalTaxPaid                     float64              `json:"total_tax_paid"`
}

func NewState() State {
	return State{Tier: TierBeginner, NegativeEventMultiplier: 1}
}

// UpdateTier re-derives the tier from assets, remembering the old one on change.
func UpdateTier(s State, totalAssets float64) (State, bool) {
	next := TierForAssets(totalAssets)
	if next == s.Tier {
		return s, false
	}
	s.PreviousTier = s.Tier
	s.Tier = next
	return s, true
}

// EffectiveRate is the tier's monthly rate after any relief discount.
func EffectiveRate(s State) decimal.Decimal {
	rate := decimal.NewFromFloat(ConfigFor(s.Tier).MonthlyTaxRate)
	if s.ReliefEligible {
		rate = rate.Mul(decimal.NewFromFloat(ReliefTaxDiscount))
	}
	return rate
}

// MonthlyTax settles a month of tax: floor(totalAssets x effective rate).
func MonthlyTax(s State, totalAssets float64) (float64, State) {
	if totalAssets <= 0 {
		s.MonthlyTaxPaid = 0
		return 0, s
	}
	tax := decimal.NewFromFloat(totalAssets).Mul(EffectiveRate(s)).Floor()
	amount := tax.InexactFloat64()
	s.MonthlyTaxPaid = amount
	s.TotalTaxPaid = decimal.NewFromFloat(s.TotalTaxPaid).Add(tax).InexactFloat64()
	return amount, s
}

// HourlyTax is one hour's share of the monthly tax.
func HourlyTax(s State, totalAssets float64) (float64, State) {
	if totalAssets <= 0 {
		return 0, s
	}
	tax := decimal.NewFromFloat(totalAssets).
		Mul(EffectiveRate(s)).
		Div(decimal.NewFromInt(market.TicksPerMonth)).
		Floor()
	s.MonthlyTaxPaid = decimal.NewFromFloat(s.MonthlyTaxPaid).Add(tax).InexactFloat64()
	s.TotalTaxPaid = decimal.NewFromFloat(s.TotalTaxPaid).Add(tax).InexactFloat64()
	return tax.InexactFloat64(), s
}

// RecordMonthlyPerformance appends a month, keeps the last twelve and refreshes
// the streak-driven difficulty and relief flags.
func RecordMonthlyPerformance(s State, year, month int, startAssets, endAssets, taxPaid float64) State {
	var ret float64
	if startAssets > 0 {
		ret = (endAssets - startAssets) / startAssets
	}
	history := append(append([]MonthlyPerformance(nil), s.History...), MonthlyPerformance{
		Year:        year,
		Month:       month,
		StartAssets: startAssets,
		EndAssets:   endAssets,
		ReturnRate:  ret,
		TaxPaid:     taxPaid,
	})
	if len(history) > HistoryMonths {
		history = history[len(history)-HistoryMonths:]
	}

	high, loss := 0, 0
	for i := len(history) - 1; i >= 0 && history[i].ReturnRate >= HighPerformanceThreshold; i-- {
		high++
	}
	for i := len(history) - 1; i >= 0 && history[i].ReturnRate < 0; i-- {
		loss++
	}

	s.History = history
	s.ConsecutiveHighPerformanceMonths = high
	s.ConsecutiveLossMonths = loss
	s.NegativeEventMultiplier = 1 + float64(high)*NegativeEventStep
	s.ReliefEligible = loss >= ReliefConsecutiveLossMonths
	s.MonthlyTaxPaid = 0
	return s
}

type PositionCheck struct {
	Allowed   bool   `json:"allowed"`
	MaxShares int64  `json:"max_shares"`
	Reason    string `json:"reason,omitempty"`
}

// CheckPositionLimit caps a buy so the position stays within the tier's share of
// total assets. Oversized requests are truncated; only zero headroom disallows.
func CheckPositionLimit(tier Tier, totalAssets, currentPositionValue, price float64, requestedShares int64) PositionCheck {
	if requestedShares <= 0 || price <= 0 {
		return PositionCheck{Allowed: false, Reason: "shares and price must be positive"}
	}
	limit := decimal.NewFromFloat(totalAssets).Mul(decimal.NewFromFloat(ConfigFor(tier).MaxPositionPercent))
	current := decimal.NewFromFloat(currentPositionValue)
	p := decimal.NewFromFloat(price)
	requested := decimal.NewFromInt(requestedShares)

	if current.Add(p.Mul(requested)).LessThanOrEqual(limit) {
		return PositionCheck{Allowed: true, MaxShares: requestedShares}
	}
	headroom := limit.Sub(current)
	if !headroom.IsPositive() {
		return PositionCheck{Allowed: false, Reason: "position limit reached for tier " + string(tier)}
	}
	maxShares := headroom.Div(p).Floor().IntPart()
	if maxShares <= 0 {
		return PositionCheck{Allowed: false, Reason: "position limit reached for tier " + string(tier)}
	}
	return PositionCheck{Allowed: true, MaxShares: maxShares, Reason: "truncated to position limit"}
}

// CheckPositionCount reports whether a new holding may be opened given how many
// distinct holdings already exist.
func CheckPositionCount(tier Tier, heldPositions int) bool {
	return heldPositions < ConfigFor(tier).MaxTotalPositions
}
