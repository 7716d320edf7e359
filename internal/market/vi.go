package market

import "math"

const (
	VIThreshold     = 0.03
	VIWindow        = 3
	VIHaltTicks     = 6
	VICooldownTicks = 30
)

// VIState is a company's volatility-interruption state. While Halted, Remaining
// counts halt ticks; afterwards it counts cooldown ticks.
type VIState struct {
	Halted       bool      `json:"halted"`
	Remaining    int       `json:"remaining"`
	RecentPrices []float64 `json:"-"`
}

func (v VIState) Active() bool {
	return v.Halted && v.Remaining > 0
}

// UpdateVI records a new price, ages the halt or cooldown and reports whether a
// new halt started on this tick.
func UpdateVI(v VIState, price float64) (VIState, bool) {
	v.RecentPrices = AppendHistory(append([]float64(nil), v.RecentPrices...), price, VIWindow)

	switch {
	case v.Halted:
		v.Remaining--
		if v.Remaining <= 0 {
			v.Halted = false
			v.Remaining = VICooldownTicks
		}
		return v, false
	case v.Remaining > 0:
		v.Remaining--
		return v, false
	}

	if len(v.RecentPrices) < VIWindow {
		return v, false
	}
	oldest := v.RecentPrices[0]
	if oldest <= 0 {
		return v, false
	}
	if math.Abs((price-oldest)/oldest) >= VIThreshold {
		v.Halted = true
		v.Remaining = VIHaltTicks
		return v, true
	}
	return v, false
}

func ResetVI() VIState {
	return VIState{}
}
