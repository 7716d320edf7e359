package sim

import (
	"math"
	"math/rand"
	"strings"

	"marketsim/internal/market"
)

type listing struct {
	Ticker string
	Name   string
	Sector string
	Price  float64
}

var defaultListings = []listing{
	{"COBOLT", "Cobalt Dynamics", "materials", 52000},
	{"NIMBUS", "Nimbus Labs", "tech", 38000},
	{"RUSTIC", "Rustic Systems", "industrial", 46000},
	{"PYLONS", "Pylon Networks", "telecom", 32000},
	{"JAVOLT", "Javolt Cloud", "tech", 42000},
	{"SWIFTR", "Swiftr Mobile", "telecom", 60000},
	{"KOTLIN", "Kotlin Forge", "industrial", 36000},
	{"NODEON", "Nodeon Runtime", "utilities", 48000},
	{"RUBYIX", "Rubyix Core", "consumer", 28000},
	{"ELIXIR", "Elixir Ops", "healthcare", 50000},
	{"QUARKX", "Quarkx Compute", "materials", 54000},
	{"VECTRA", "Vectra AI", "healthcare", 66000},
	{"DATUMX", "Datumx Data", "finance", 34000},
	{"CYBRON", "Cybron Secure", "finance", 56000},
	{"FUSION", "Fusion Grid", "energy", 44000},
	{"NEBULA", "Nebula Energy", "energy", 36800},
	{"ORBITZ", "Orbitz Space", "realestate", 72000},
	{"ZENITH", "Zenith Retail", "consumer", 30000},
	{"ARCANE", "Arcane Finance", "realestate", 58000},
	{"LUMINA", "Lumina Health", "utilities", 40800},
}

// VolatilityScale maps a market volatility mode to a multiplier on company
// volatility. Unknown modes fall back to "mor".
func VolatilityScale(mode string) float64 {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "calm":
		return 0.6
	case "wild":
		return 1.6
	default:
		return 1.0
	}
}

// DefaultCompanies lists the starting market with randomized fundamentals.
func DefaultCompanies(rng *rand.Rand, volatilityMode string) []market.Company {
	scale := VolatilityScale(volatilityMode)
	out := make([]market.Company, 0, len(defaultListings))
	for _, l := range defaultListings {
		price := market.Quantize(l.Price)
		shares := math.Floor(1e7 + rng.Float64()*9e7)
		revenue := math.Floor(1e11 + rng.Float64()*9e11)
		margin := -0.05 + rng.Float64()*0.25
		netIncome := math.Floor(revenue * margin)
		out = append(out, market.Company{
			ID:               strings.ToLower(l.Ticker),
			Ticker:           l.Ticker,
			Name:             l.Name,
			Sector:           l.Sector,
			Price:            price,
			PreviousPrice:    price,
			BasePrice:        price,
			SessionOpenPrice: price,
			PriceHistory:     []float64{price},
			Volatility:       (0.015 + rng.Float64()*0.025) * scale,
			Drift:            -0.005 + rng.Float64()*0.015,
			MarketCap:        price * shares,
			Financials: market.Financials{
				Revenue:    revenue,
				NetIncome:  netIncome,
				DebtRatio:  0.2 + rng.Float64()*2.3,
				GrowthRate: -0.1 + rng.Float64()*0.4,
				EPS:        math.Round(netIncome / shares),
			},
			VI: market.ResetVI(),
		})
	}
	return out
}
