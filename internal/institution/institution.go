package institution

import (
	"fmt"
	"math/rand"
)

type Type string

const (
	HedgeFund Type = "HedgeFund"
	Pension   Type = "Pension"
	Bank      Type = "Bank"
	Algorithm Type = "Algorithm"
)

type Strategy string

const (
	StrategyNone          Strategy = ""
	StrategyMomentum      Strategy = "momentum"
	StrategyMeanReversion Strategy = "meanReversion"
	StrategyVolatility    Strategy = "volatility"
)

type Institution struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Type         Type     `json:"type"`
	RiskAppetite float64  `json:"risk_appetite"`
	Capital      float64  `json:"capital"`
	Strategy     Strategy `json:"strategy,omitempty"`
	// Cooldowns maps company ID to the first tick trading is allowed again.
	Cooldowns map[string]int `json:"-"`
}

type Profile struct {
	MaxDebtRatio     float64
	MinGrowth        float64
	MinProfitability float64
	PreferredSectors []string
	PanicSellProne   bool
	Cooldown         int
}

var Profiles = map[Type]Profile{
	Pension: {
		MaxDebtRatio:     1.5,
		MinGrowth:        0.03,
		MinProfitability: 0.05,
		PreferredSectors: []string{"utilities", "consumer", "finance"},
		PanicSellProne:   true,
		Cooldown:         20,
	},
	HedgeFund: {
		MaxDebtRatio:     3.0,
		MinGrowth:        0.08,
		MinProfitability: 0,
		PreferredSectors: []string{"tech", "healthcare", "energy"},
		Cooldown:         5,
	},
	Bank: {
		MaxDebtRatio:     2.0,
		MinGrowth:        0.02,
		MinProfitability: 0.03,
		PreferredSectors: []string{"finance", "industrial", "consumer"},
		PanicSellProne:   true,
		Cooldown:         15,
	},
	Algorithm: {
		MaxDebtRatio:     5.0,
		MinGrowth:        -1,
		MinProfitability: -1,
		Cooldown:         3,
	},
}

const (
	TotalInstitutions = 100
	MinCapital        = 1_000_000_000
	MaxCapital        = 10_000_000_000
)

// Distribution is the number of institutions generated per type.
var Distribution = []struct {
	Type  Type
	Count int
}{
	{Type: HedgeFund, Count: 25},
	{Type: Pension, Count: 30},
	{Type: Bank, Count: 25},
	{Type: Algorithm, Count: 20},
}

var namePrefixes = map[Type][]string{
	HedgeFund: {"Cobalt", "Redline", "Vanta", "Northwind", "Ironbridge"},
	Pension:   {"National", "Teachers", "Civil Service", "Harbor", "Evergreen"},
	Bank:      {"Hanil", "Seoul Merchant", "Pacific", "Union", "Crown"},
	Algorithm: {"Quantum", "Lattice", "Vector", "Sigma", "Tensor"},
}

var nameSuffixes = map[Type]string{
	HedgeFund: "Capital",
	Pension:   "Pension Fund",
	Bank:      "Bank",
	Algorithm: "Quant",
}

var algoStrategies = []Strategy{StrategyMomentum, StrategyMeanReversion, StrategyVolatility}

// Generate builds the standard institution roster.
func Generate(rng *rand.Rand) []Institution {
	out := make([]Institution, 0, TotalInstitutions)
	for _, d := range Distribution {
		prefixes := namePrefixes[d.Type]
		for i := 0; i < d.Count; i++ {
			inst := Institution{
				ID:           fmt.Sprintf("inst-%03d", len(out)+1),
				Name:         fmt.Sprintf("%s %s %d", prefixes[i%len(prefixes)], nameSuffixes[d.Type], i/len(prefixes)+1),
				Type:         d.Type,
				RiskAppetite: rng.Float64(),
				Capital:      MinCapital + rng.Float64()*(MaxCapital-MinCapital),
				Cooldowns:    make(map[string]int),
			}
			if d.Type == Algorithm {
				inst.Strategy = algoStrategies[i%len(algoStrategies)]
			}
			out = append(out, inst)
		}
	}
	return out
}
