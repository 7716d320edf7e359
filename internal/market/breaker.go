package market

import (
	"math"
	"slices"
)

type BreakerLevel struct {
	Level     int
	Threshold float64
	// HaltTicks of zero halts for the rest of the trading day.
	HaltTicks int
}

var BreakerLevels = []BreakerLevel{
	{Level: 3, Threshold: -0.20, HaltTicks: 0},
	{Level: 2, Threshold: -0.15, HaltTicks: 120},
	{Level: 1, Threshold: -0.08, HaltTicks: 60},
}

type BreakerState struct {
	Level           int     `json:"level"`
	Active          bool    `json:"active"`
	Remaining       int     `json:"remaining"`
	UntilClose      bool    `json:"until_close"`
	SessionOpen     float64 `json:"session_open_index"`
	Index           float64 `json:"index"`
	TriggeredLevels []int   `json:"triggered_levels,omitempty"`
}

func NewBreaker(index float64) BreakerState {
	return BreakerState{SessionOpen: index, Index: index}
}

func (b BreakerState) Halted() bool {
	return b.Active && (b.UntilClose || b.Remaining > 0)
}

// MarketIndex is a market-cap weighted index of returns against base prices,
// anchored at 100.
func MarketIndex(companies []Company) float64 {
	var total float64
	for _, c := range companies {
		total += c.MarketCap
	}
	if total <= 0 {
		return 100
	}
	var weighted float64
	for _, c := range companies {
		if c.BasePrice <= 0 {
			continue
		}
		weighted += (c.Price - c.BasePrice) / c.BasePrice * (c.MarketCap / total)
	}
	return 100 * (1 + weighted)
}

// CheckBreaker ages an active halt or trips the deepest untriggered level the
// index has crossed since the session open. Each level trips once per day.
func CheckBreaker(b BreakerState, index float64) (BreakerState, bool) {
	b.Index = index
	b.TriggeredLevels = slices.Clone(b.TriggeredLevels)
	if b.Active {
		if b.UntilClose {
			return b, false
		}
		b.Remaining--
		if b.Remaining <= 0 {
			b.Active = false
			b.Remaining = 0
			b.Level = 0
		}
		return b, false
	}
	if b.SessionOpen <= 0 || math.IsNaN(index) {
		return b, false
	}
	ret := (index - b.SessionOpen) / b.SessionOpen
	for _, lvl := range BreakerLevels {
		if ret > lvl.Threshold || slices.Contains(b.TriggeredLevels, lvl.Level) {
			continue
		}
		b.Level = lvl.Level
		b.Active = true
		b.Remaining = lvl.HaltTicks
		b.UntilClose = lvl.HaltTicks == 0
		b.TriggeredLevels = append(b.TriggeredLevels, lvl.Level)
		return b, true
	}
	return b, false
}
