package market

import "math"

const (
	DailyLimit = 0.30
	// StepLimit caps a single tick's move against the current price.
	StepLimit = 0.30

	AbsoluteFloorRatio   = 0.001
	AbsoluteCeilingRatio = 1000.0
)

// TickSize returns the KRX quote unit for a price.
func TickSize(price float64) float64 {
	switch {
	case price < 1_000:
		return 1
	case price < 5_000:
		return 5
	case price < 10_000:
		return 10
	case price < 50_000:
		return 50
	default:
		return 100
	}
}

// Quantize rounds price to the nearest valid quote. Quantize(Quantize(p)) == Quantize(p).
func Quantize(price float64) float64 {
	t := TickSize(price)
	return math.Round(price/t) * t
}

// QuantizeWithin rounds to the quote grid and snaps inward when rounding would
// leave [lo, hi].
func QuantizeWithin(price, lo, hi float64) float64 {
	t := TickSize(price)
	q := math.Round(price/t) * t
	if q > hi {
		q = math.Floor(price/t) * t
	}
	if q < lo {
		q = math.Ceil(price/t) * t
	}
	return q
}

// DailyLimits returns the quantized lower and upper limit prices for a session.
func DailyLimits(sessionOpen float64) (lower, upper float64) {
	return Quantize(sessionOpen * (1 - DailyLimit)), Quantize(sessionOpen * (1 + DailyLimit))
}

type LimitState string

const (
	LimitNone  LimitState = ""
	LimitUpper LimitState = "upper"
	LimitLower LimitState = "lower"
)

func LimitHit(price, sessionOpen float64) LimitState {
	if sessionOpen <= 0 {
		return LimitNone
	}
	lower, upper := DailyLimits(sessionOpen)
	switch {
	case price >= upper:
		return LimitUpper
	case price <= lower:
		return LimitLower
	default:
		return LimitNone
	}
}
