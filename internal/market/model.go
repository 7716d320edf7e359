package market

import "errors"

const (
	// TicksPerDay is the number of hourly ticks in one trading day.
	TicksPerDay   = 10
	DaysPerMonth  = 30
	MonthsPerYear = 12
	// TicksPerMonth is used for hourly pro-rating of monthly rates.
	TicksPerMonth = TicksPerDay * DaysPerMonth

	// DefaultDt is one hourly tick expressed as a fraction of a trading day.
	DefaultDt = 1.0 / TicksPerDay
	MinPrice  = 100.0
)

var (
	ErrUnknownCompany = errors.New("unknown company")
	ErrUnknownSector  = errors.New("unknown sector")
)

// Sectors in rotation order.
var Sectors = []string{
	"tech",
	"finance",
	"energy",
	"healthcare",
	"consumer",
	"industrial",
	"telecom",
	"materials",
	"utilities",
	"realestate",
}

func ValidSector(sector string) bool {
	for _, s := range Sectors {
		if s == sector {
			return true
		}
	}
	return false
}

type Financials struct {
	Revenue    float64 `json:"revenue" yaml:"revenue"`
	NetIncome  float64 `json:"net_income" yaml:"net_income"`
	DebtRatio  float64 `json:"debt_ratio" yaml:"debt_ratio"`
	GrowthRate float64 `json:"growth_rate" yaml:"growth_rate"`
	EPS        float64 `json:"eps" yaml:"eps"`
}

// ROE here is net margin: net income over revenue, -1 when there is no revenue.
func (f Financials) ROE() float64 {
	if f.Revenue <= 0 {
		return -1
	}
	return f.NetIncome / f.Revenue
}

type InstitutionFlow struct {
	NetBuyVolume           float64  `json:"net_buy_volume"`
	TopBuyers              []string `json:"top_buyers"`
	TopSellers             []string `json:"top_sellers"`
	InstitutionalOwnership float64  `json:"institutional_ownership"`
}

type Company struct {
	ID               string     `json:"id" yaml:"id"`
	Ticker           string     `json:"ticker" yaml:"ticker"`
	Name             string     `json:"name" yaml:"name"`
	Sector           string     `json:"sector" yaml:"sector"`
	Price            float64    `json:"price" yaml:"price"`
	PreviousPrice    float64    `json:"previous_price" yaml:"-"`
	BasePrice        float64    `json:"base_price" yaml:"base_price"`
	SessionOpenPrice float64    `json:"session_open_price" yaml:"-"`
	PriceHistory     []float64  `json:"price_history,omitempty" yaml:"-"`
	Volatility       float64    `json:"volatility" yaml:"volatility"`
	Drift            float64    `json:"drift" yaml:"drift"`
	MarketCap        float64    `json:"market_cap" yaml:"market_cap"`
	Financials       Financials `json:"financials" yaml:"financials"`

	InstitutionFlow        InstitutionFlow `json:"institution_flow" yaml:"-"`
	InstitutionFlowHistory []float64       `json:"institution_flow_history,omitempty" yaml:"-"`
	// AccumulatedInstitutionalShares backs InstitutionalOwnership between updates.
	AccumulatedInstitutionalShares float64 `json:"-" yaml:"-"`

	VI VIState `json:"vi" yaml:"-"`
}

// Change is the fractional move against the previous price.
func (c Company) Change() float64 {
	if c.PreviousPrice <= 0 {
		return 0
	}
	return (c.Price - c.PreviousPrice) / c.PreviousPrice
}

// SharesOutstanding derives a share count from market cap at the current price.
func (c Company) SharesOutstanding() float64 {
	if c.Price <= 0 || c.MarketCap <= 0 {
		return 0
	}
	return c.MarketCap / c.Price
}

// Clone returns a copy that shares no slices with c.
func (c Company) Clone() Company {
	out := c
	out.PriceHistory = append([]float64(nil), c.PriceHistory...)
	out.InstitutionFlowHistory = append([]float64(nil), c.InstitutionFlowHistory...)
	out.InstitutionFlow.TopBuyers = append([]string(nil), c.InstitutionFlow.TopBuyers...)
	out.InstitutionFlow.TopSellers = append([]string(nil), c.InstitutionFlow.TopSellers...)
	out.VI.RecentPrices = append([]float64(nil), c.VI.RecentPrices...)
	return out
}

// AppendHistory appends p and keeps at most limit points.
func AppendHistory(history []float64, p float64, limit int) []float64 {
	history = append(history, p)
	if limit > 0 && len(history) > limit {
		history = append(history[:0:0], history[len(history)-limit:]...)
	}
	return history
}
