package market

import (
	"bytes"
	"encoding/json"
	"math"
)

// Rand is the randomness a price step needs. *math/rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

const (
	maxDrift      = 0.10
	minSigma      = 0.01
	maxSigmaRatio = 1.5
)

// OrderFlow is the signed notional traded against a company over one tick.
type OrderFlow struct {
	NetNotional float64 `json:"net_notional"`
	TradeCount  int     `json:"trade_count"`
}

func (f *OrderFlow) Add(notional float64) {
	f.NetNotional += notional
	f.TradeCount++
}

// CompanySnapshot is the immutable per-company input of a price tick.
type CompanySnapshot struct {
	ID                     string     `json:"id"`
	Sector                 string     `json:"sector"`
	Price                  float64    `json:"price"`
	Drift                  float64    `json:"drift"`
	Volatility             float64    `json:"volatility"`
	BasePrice              float64    `json:"base_price"`
	SessionOpenPrice       float64    `json:"session_open_price"`
	MarketCap              float64    `json:"market_cap"`
	Financials             Financials `json:"financials"`
	NetBuyVolume           float64    `json:"net_buy_volume"`
	InstitutionalOwnership float64    `json:"institutional_ownership"`
}

func (c Company) Snapshot() CompanySnapshot {
	return CompanySnapshot{
		ID:                     c.ID,
		Sector:                 c.Sector,
		Price:                  c.Price,
		Drift:                  c.Drift,
		Volatility:             c.Volatility,
		BasePrice:              c.BasePrice,
		SessionOpenPrice:       c.SessionOpenPrice,
		MarketCap:              c.MarketCap,
		Financials:             c.Financials,
		NetBuyVolume:           c.InstitutionFlow.NetBuyVolume,
		InstitutionalOwnership: c.InstitutionFlow.InstitutionalOwnership,
	}
}

// TickRequest is everything one batch price step reads. It is never mutated.
type TickRequest struct {
	Companies []CompanySnapshot    `json:"companies"`
	Dt        float64              `json:"dt"`
	Events    []EventModifier      `json:"events,omitempty"`
	Sentiment *SentimentSnapshot   `json:"sentiment,omitempty"`
	OrderFlow map[string]OrderFlow `json:"order_flow,omitempty"`
	Impact    *ImpactConfig        `json:"impact,omitempty"`
}

// FlowEntry is one company's order flow in the list form of a tick request.
type FlowEntry struct {
	CompanyID   string  `json:"companyId"`
	NetNotional float64 `json:"netNotional"`
	TradeCount  int     `json:"tradeCount"`
}

// MarketImpact names the order-flow fields of ImpactConfig in camelCase.
type MarketImpact struct {
	ImpactCoefficient     float64 `json:"impactCoefficient"`
	LiquidityScale        float64 `json:"liquidityScale"`
	ImbalanceSigmaFactor  float64 `json:"imbalanceSigmaFactor"`
	MaxDriftImpact        float64 `json:"maxDriftImpact"`
	MaxSigmaAmplification float64 `json:"maxSigmaAmplification"`
}

// UnmarshalJSON also accepts orderFlow as a list of FlowEntry and impact
// settings under marketImpact. List entries add to order_flow entries for the
// same company and non-zero marketImpact fields override impact.
func (r *TickRequest) UnmarshalJSON(data []byte) error {
	type plain TickRequest
	var in struct {
		plain
		FlowList     []FlowEntry   `json:"orderFlow"`
		MarketImpact *MarketImpact `json:"marketImpact"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return err
	}
	*r = TickRequest(in.plain)
	if len(in.FlowList) > 0 && r.OrderFlow == nil {
		r.OrderFlow = make(map[string]OrderFlow, len(in.FlowList))
	}
	for _, e := range in.FlowList {
		f := r.OrderFlow[e.CompanyID]
		f.NetNotional += e.NetNotional
		f.TradeCount += e.TradeCount
		r.OrderFlow[e.CompanyID] = f
	}
	if m := in.MarketImpact; m != nil {
		if r.Impact == nil {
			r.Impact = &ImpactConfig{}
		}
		m.overlay(r.Impact)
	}
	return nil
}

func (m MarketImpact) overlay(c *ImpactConfig) {
	if m.ImpactCoefficient != 0 {
		c.ImpactCoefficient = m.ImpactCoefficient
	}
	if m.LiquidityScale != 0 {
		c.LiquidityScale = m.LiquidityScale
	}
	if m.ImbalanceSigmaFactor != 0 {
		c.ImbalanceSigmaFactor = m.ImbalanceSigmaFactor
	}
	if m.MaxDriftImpact != 0 {
		c.MaxDriftImpact = m.MaxDriftImpact
	}
	if m.MaxSigmaAmplification != 0 {
		c.MaxSigmaAmplification = m.MaxSigmaAmplification
	}
}

type TickResponse struct {
	Prices map[string]float64 `json:"prices"`
}

// Drivers are the non-company inputs that move one company's price.
type Drivers struct {
	Dt        float64
	Events    []EventModifier
	Sentiment *SentimentSnapshot
	Flow      OrderFlow
	Impact    ImpactConfig
}

// ComputeTick advances every company in req by one step.
func ComputeTick(req TickRequest, rng Rand) TickResponse {
	impact := DefaultImpactConfig()
	if req.Impact != nil {
		impact = req.Impact.WithDefaults()
	}
	out := TickResponse{Prices: make(map[string]float64, len(req.Companies))}
	for _, c := range req.Companies {
		out.Prices[c.ID] = NextPrice(c, Drivers{
			Dt:        req.Dt,
			Events:    req.Events,
			Sentiment: req.Sentiment,
			Flow:      req.OrderFlow[c.ID],
			Impact:    impact,
		}, rng)
	}
	return out
}

// Parameters returns the clamped drift and volatility for one step.
func Parameters(c CompanySnapshot, d Drivers) (mu, sigma float64) {
	baseSigma := finiteOr(c.Volatility, 0)
	mu = finiteOr(c.Drift, 0) + FundamentalDrift(c.Financials)
	sigma = baseSigma

	for _, ev := range d.Events {
		if !ev.Applies(c.ID, c.Sector) {
			continue
		}
		w := ev.PropagationFactor() * ev.SensitivityFor(c.ID)
		mu += ev.DriftModifier * w
		sigma *= 1 + ev.VolatilityModifier*w
	}

	if s := d.Sentiment; s != nil {
		mu += s.GlobalDrift + s.SectorDrifts[c.Sector]
		if s.VolatilityMultiplier > 0 {
			sigma *= s.VolatilityMultiplier
		}
	}

	mu += d.Impact.InstitutionalImpact(c.NetBuyVolume, c.MarketCap, c.InstitutionalOwnership)
	flowDrift, amplified := d.Impact.OrderFlowImpact(d.Flow.NetNotional, sigma, baseSigma)
	mu += flowDrift
	sigma = amplified

	mu = clamp(finiteOr(mu, 0), -maxDrift, maxDrift)
	sigma = clamp(finiteOr(sigma, minSigma), minSigma, math.Max(minSigma, maxSigmaRatio*baseSigma))
	return mu, sigma
}

// FundamentalDrift biases drift by growth and profitability.
func FundamentalDrift(f Financials) float64 {
	d := finiteOr(f.GrowthRate, 0) * 0.05
	switch {
	case f.NetIncome > 0:
		d += 0.01
	case f.NetIncome < 0:
		d -= 0.01
	}
	if f.DebtRatio > 2.0 {
		d -= 0.005
	}
	return d
}

// NextPrice runs one geometric Brownian motion step and applies, in order, the
// single-step cap, the price floor, the daily band around the session open, the
// absolute band around the base price and tick-size quantization.
func NextPrice(c CompanySnapshot, d Drivers, rng Rand) float64 {
	price := c.Price
	if !(price > 0) || math.IsInf(price, 0) {
		price = c.BasePrice
		if !(price > 0) || math.IsInf(price, 0) {
			price = MinPrice
		}
	}
	dt := d.Dt
	if !(dt > 0) || math.IsInf(dt, 0) {
		dt = DefaultDt
	}

	mu, sigma := Parameters(c, d)
	z := Gaussian(rng)
	next := price * math.Exp((mu-sigma*sigma/2)*dt+sigma*math.Sqrt(dt)*z)
	if math.IsNaN(next) || math.IsInf(next, 0) {
		next = price
	}

	next = clamp(next, price*(1-StepLimit), price*(1+StepLimit))
	lo, hi := priceBand(c.SessionOpenPrice, c.BasePrice)
	next = clamp(next, lo, hi)
	return QuantizeWithin(next, lo, hi)
}

// priceBand intersects the price floor, the daily band around the session open
// and the absolute band around the base price. The absolute band replaces a
// daily band it does not overlap, and the floor always holds.
func priceBand(sessionOpen, base float64) (lo, hi float64) {
	lo, hi = MinPrice, math.Inf(1)
	if sessionOpen > 0 && !math.IsInf(sessionOpen, 0) {
		lo = math.Max(lo, sessionOpen*(1-DailyLimit))
		hi = math.Min(hi, sessionOpen*(1+DailyLimit))
		if hi < lo {
			hi = lo
		}
	}
	if base > 0 && !math.IsInf(base, 0) {
		absLo, absHi := base*AbsoluteFloorRatio, base*AbsoluteCeilingRatio
		if absLo > hi || absHi < lo {
			lo, hi = absLo, absHi
		} else {
			lo = math.Max(lo, absLo)
			hi = math.Min(hi, absHi)
		}
	}
	lo = math.Max(lo, MinPrice)
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// Gaussian draws a standard normal variate with the Box-Muller transform.
func Gaussian(rng Rand) float64 {
	u1 := 1 - rng.Float64()
	u2 := rng.Float64()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

func finiteOr(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}
