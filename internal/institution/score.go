package institution

import (
	"math"

	"marketsim/internal/market"
)

type sectorWeights struct {
	profitability float64
	debt          float64
	growth        float64
	valuation     float64
}

var defaultWeights = sectorWeights{profitability: 0.3, debt: 0.2, growth: 0.25, valuation: 0.25}

var weightsBySector = map[string]sectorWeights{
	"tech":       {profitability: 0.2, debt: 0.1, growth: 0.5, valuation: 0.2},
	"finance":    {profitability: 0.4, debt: 0.3, growth: 0.1, valuation: 0.2},
	"energy":     {profitability: 0.3, debt: 0.35, growth: 0.15, valuation: 0.2},
	"healthcare": {profitability: 0.25, debt: 0.2, growth: 0.35, valuation: 0.2},
	"consumer":   {profitability: 0.3, debt: 0.2, growth: 0.3, valuation: 0.2},
	"industrial": {profitability: 0.35, debt: 0.3, growth: 0.15, valuation: 0.2},
	"telecom":    {profitability: 0.3, debt: 0.35, growth: 0.15, valuation: 0.2},
	"materials":  {profitability: 0.3, debt: 0.35, growth: 0.15, valuation: 0.2},
	"utilities":  {profitability: 0.3, debt: 0.4, growth: 0.1, valuation: 0.2},
	"realestate": {profitability: 0.25, debt: 0.4, growth: 0.15, valuation: 0.2},
}

// FundamentalScore rates a company from 0 to 100 on profitability, leverage,
// growth and valuation, reweighted by what matters in its sector.
func FundamentalScore(c market.Company) float64 {
	w, ok := weightsBySector[c.Sector]
	if !ok {
		w = defaultWeights
	}
	f := c.Financials

	var profitability float64
	switch roe := f.ROE(); {
	case roe >= 0.15:
		profitability = 30
	case roe >= 0.10:
		profitability = 20
	case roe >= 0.05:
		profitability = 10
	case roe >= 0:
		profitability = 5
	}

	var debt float64
	switch {
	case f.DebtRatio <= 1.0:
		debt = 20
	case f.DebtRatio <= 1.5:
		debt = 10
	case f.DebtRatio <= 2.0:
		debt = 0
	case f.DebtRatio <= 2.5:
		debt = -10
	default:
		debt = -20
	}

	var growth float64
	switch {
	case f.GrowthRate >= 0.20:
		growth = 25
	case f.GrowthRate >= 0.10:
		growth = 15
	case f.GrowthRate >= 0.05:
		growth = 10
	case f.GrowthRate >= 0:
		growth = 5
	}

	per := 999.0
	if f.EPS > 0 {
		per = c.Price / f.EPS
	}
	var valuation float64
	switch {
	case per <= 10:
		valuation = 25
	case per <= 15:
		valuation = 15
	case per <= 20:
		valuation = 10
	case per <= 30:
		valuation = 5
	}

	total := profitability*(w.profitability/0.3) +
		debt*(w.debt/0.2) +
		growth*(w.growth/0.25) +
		valuation*(w.valuation/0.25)
	return math.Max(0, math.Min(100, total))
}

const algoWindow = 20

// AlgoScore is the signal an algorithmic institution trades on, in [-1, 1].
func AlgoScore(s Strategy, c market.Company) float64 {
	switch s {
	case StrategyMomentum:
		if len(c.PriceHistory) < algoWindow {
			return 0
		}
		if c.Price > market.MovingAverage(c.PriceHistory, algoWindow) {
			return 0.7
		}
		return -0.7
	case StrategyMeanReversion:
		if len(c.PriceHistory) < algoWindow {
			return 0
		}
		recent := c.PriceHistory[len(c.PriceHistory)-algoWindow:]
		mean := market.MovingAverage(recent, algoWindow)
		var variance float64
		for _, p := range recent {
			variance += (p - mean) * (p - mean)
		}
		std := math.Sqrt(variance / float64(len(recent)))
		switch {
		case c.Price < mean-std:
			return 0.8
		case c.Price > mean+std:
			return -0.8
		}
		return 0
	case StrategyVolatility:
		switch {
		case c.Volatility > 0.35:
			return -0.6
		case c.Volatility < 0.2:
			return 0.6
		}
		return 0
	}
	return 0
}
