package market

import "math"

// ImpactConfig tunes how institutional and order-book flow move drift and volatility.
type ImpactConfig struct {
	LiquidityFactor          float64 `json:"liquidity_factor" yaml:"liquidity_factor"`
	TicksPerDay              int     `json:"ticks_per_day" yaml:"ticks_per_day"`
	ConcentrationThreshold   float64 `json:"concentration_threshold" yaml:"concentration_threshold"`
	ConcentrationSlope       float64 `json:"concentration_slope" yaml:"concentration_slope"`
	InstitutionalCoefficient float64 `json:"institutional_coefficient" yaml:"institutional_coefficient"`
	MaxInstitutionalImpact   float64 `json:"max_institutional_impact" yaml:"max_institutional_impact"`

	ImpactCoefficient     float64 `json:"impact_coefficient" yaml:"impact_coefficient"`
	LiquidityScale        float64 `json:"liquidity_scale" yaml:"liquidity_scale"`
	ImbalanceSigmaFactor  float64 `json:"imbalance_sigma_factor" yaml:"imbalance_sigma_factor"`
	MaxDriftImpact        float64 `json:"max_drift_impact" yaml:"max_drift_impact"`
	MaxSigmaAmplification float64 `json:"max_sigma_amplification" yaml:"max_sigma_amplification"`
}

func DefaultImpactConfig() ImpactConfig {
	return ImpactConfig{
		LiquidityFactor:          0.001,
		TicksPerDay:              TicksPerDay,
		ConcentrationThreshold:   0.3,
		ConcentrationSlope:       0.833,
		InstitutionalCoefficient: 0.0002,
		MaxInstitutionalImpact:   0.05,
		ImpactCoefficient:        0.01,
		LiquidityScale:           50_000_000,
		ImbalanceSigmaFactor:     0.1,
		MaxDriftImpact:           0.03,
		MaxSigmaAmplification:    2.0,
	}
}

// WithDefaults fills every non-positive field from DefaultImpactConfig.
func (c ImpactConfig) WithDefaults() ImpactConfig {
	d := DefaultImpactConfig()
	if c.LiquidityFactor <= 0 {
		c.LiquidityFactor = d.LiquidityFactor
	}
	if c.TicksPerDay <= 0 {
		c.TicksPerDay = d.TicksPerDay
	}
	if c.ConcentrationThreshold <= 0 {
		c.ConcentrationThreshold = d.ConcentrationThreshold
	}
	if c.ConcentrationSlope <= 0 {
		c.ConcentrationSlope = d.ConcentrationSlope
	}
	if c.InstitutionalCoefficient <= 0 {
		c.InstitutionalCoefficient = d.InstitutionalCoefficient
	}
	if c.MaxInstitutionalImpact <= 0 {
		c.MaxInstitutionalImpact = d.MaxInstitutionalImpact
	}
	if c.ImpactCoefficient <= 0 {
		c.ImpactCoefficient = d.ImpactCoefficient
	}
	if c.LiquidityScale <= 0 {
		c.LiquidityScale = d.LiquidityScale
	}
	if c.ImbalanceSigmaFactor <= 0 {
		c.ImbalanceSigmaFactor = d.ImbalanceSigmaFactor
	}
	if c.MaxDriftImpact <= 0 {
		c.MaxDriftImpact = d.MaxDriftImpact
	}
	if c.MaxSigmaAmplification <= 0 {
		c.MaxSigmaAmplification = d.MaxSigmaAmplification
	}
	return c
}

// Liquidity is the per-tick tradeable notional for a company. A company with no
// market cap has no liquidity and receives no institutional impact.
func (c ImpactConfig) Liquidity(marketCap float64) float64 {
	if marketCap <= 0 || math.IsNaN(marketCap) || math.IsInf(marketCap, 0) {
		return 0
	}
	return marketCap * c.LiquidityFactor / float64(c.TicksPerDay)
}

// ConcentrationMultiplier grows once institutional ownership passes the threshold.
func (c ImpactConfig) ConcentrationMultiplier(ownership float64) float64 {
	if math.IsNaN(ownership) {
		return 1
	}
	return 1 + math.Max(0, ownership-c.ConcentrationThreshold)*c.ConcentrationSlope
}

func (c ImpactConfig) AdjustedLiquidity(marketCap, ownership float64) float64 {
	return c.Liquidity(marketCap) / c.ConcentrationMultiplier(ownership)
}

// InstitutionalImpact converts net institutional buying into a drift term using
// the square-root law, capped at MaxInstitutionalImpact.
func (c ImpactConfig) InstitutionalImpact(netBuyVolume, marketCap, ownership float64) float64 {
	liq := c.AdjustedLiquidity(marketCap, ownership)
	if liq <= 0 || netBuyVolume == 0 || math.IsNaN(netBuyVolume) {
		return 0
	}
	ratio := netBuyVolume / liq
	impact := math.Sqrt(math.Abs(ratio)) * c.InstitutionalCoefficient
	if ratio < 0 {
		impact = -impact
	}
	return clamp(impact, -c.MaxInstitutionalImpact, c.MaxInstitutionalImpact)
}

// OrderFlowImpact returns the drift added by a net signed notional imbalance and
// the amplified sigma. The amplification never exceeds MaxSigmaAmplification x baseSigma.
func (c ImpactConfig) OrderFlowImpact(netNotional, sigma, baseSigma float64) (driftDelta, amplified float64) {
	if netNotional == 0 || math.IsNaN(netNotional) {
		return 0, sigma
	}
	driftDelta = c.ImpactCoefficient * math.Tanh(netNotional/c.LiquidityScale)
	driftDelta = clamp(driftDelta, -c.MaxDriftImpact, c.MaxDriftImpact)

	abs := math.Abs(netNotional)
	amplified = sigma * (1 + c.ImbalanceSigmaFactor*abs/(abs+c.LiquidityScale))
	if limit := c.MaxSigmaAmplification * baseSigma; baseSigma > 0 && amplified > limit {
		amplified = math.Max(limit, sigma)
	}
	return driftDelta, amplified
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
