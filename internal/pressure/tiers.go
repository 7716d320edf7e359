package pressure

import (
	"fmt"
	"strings"
)

type Tier string

const (
	TierBeginner    Tier = "beginner"
	TierGrowing     Tier = "growing"
	TierEstablished Tier = "established"
	TierWealthy     Tier = "wealthy"
	TierElite       Tier = "elite"
	TierTycoon      Tier = "tycoon"
)

type TierConfig struct {
	Tier               Tier    `json:"tier"`
	Label              string  `json:"label"`
	MinAssets          int64   `json:"min_assets"`
	MonthlyTaxRate     float64 `json:"monthly_tax_rate"`
	MaxPositionPercent float64 `json:"max_position_percent"`
	MaxTotalPositions  int     `json:"max_total_positions"`
}

// Tiers is ordered by ascending MinAssets.
var Tiers = []TierConfig{
	{Tier: TierBeginner, Label: "Beginner investor", MinAssets: 0, MonthlyTaxRate: 0, MaxPositionPercent: 1.0, MaxTotalPositions: 20},
	{Tier: TierGrowing, Label: "Growing investor", MinAssets: 50_000_000, MonthlyTaxRate: 0.001, MaxPositionPercent: 0.5, MaxTotalPositions: 20},
	{Tier: TierEstablished, Label: "Established investor", MinAssets: 100_000_000, MonthlyTaxRate: 0.003, MaxPositionPercent: 0.4, MaxTotalPositions: 20},
	{Tier: TierWealthy, Label: "Wealthy", MinAssets: 500_000_000, MonthlyTaxRate: 0.005, MaxPositionPercent: 0.3, MaxTotalPositions: 15},
	{Tier: TierElite, Label: "Elite", MinAssets: 1_000_000_000, MonthlyTaxRate: 0.008, MaxPositionPercent: 0.2, MaxTotalPositions: 15},
	{Tier: TierTycoon, Label: "Tycoon", MinAssets: 5_000_000_000, MonthlyTaxRate: 0.012, MaxPositionPercent: 0.15, MaxTotalPositions: 10},
}

const (
	HighPerformanceThreshold    = 0.10
	ReliefConsecutiveLossMonths = 3
	ReliefTaxDiscount           = 0.5
	NegativeEventStep           = 0.15
	HistoryMonths               = 12
)

func TierForAssets(totalAssets float64) Tier {
	for i := len(Tiers) - 1; i >= 0; i-- {
		if totalAssets >= float64(Tiers[i].MinAssets) {
			return Tiers[i].Tier
		}
	}
	return TierBeginner
}

// ConfigFor falls back to the beginner tier for unknown names.
func ConfigFor(t Tier) TierConfig {
	for _, c := range Tiers {
		if c.Tier == t {
			return c
		}
	}
	return Tiers[0]
}

func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	for _, c := range Tiers {
		if c.Tier == t {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown tier %q", s)
}
