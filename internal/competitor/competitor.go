package competitor

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

type Style string

const (
	Aggressive    Style = "aggressive"
	Conservative  Style = "conservative"
	TrendFollower Style = "trend-follower"
	Contrarian    Style = "contrarian"
)

var Styles = []Style{Aggressive, Conservative, TrendFollower, Contrarian}

func ParseStyle(s string) (Style, error) {
	for _, st := range Styles {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown trading style %q", s)
}

type Side string

const (
	Buy       Side = "buy"
	Sell      Side = "sell"
	PanicSell Side = "panic_sell"
)

var (
	ErrInsufficientCash   = errors.New("insufficient cash")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrInvalidQuantity    = errors.New("quantity must be > 0")
)

type Position struct {
	Shares      int64   `json:"shares"`
	AvgBuyPrice float64 `json:"avg_buy_price"`
}

type Competitor struct {
	ID                string              `json:"id"`
	Name              string              `json:"name"`
	Style             Style               `json:"style"`
	Cash              float64             `json:"cash"`
	Portfolio         map[string]Position `json:"portfolio"`
	InitialAssets     float64             `json:"initial_assets"`
	TotalAssetValue   float64             `json:"total_asset_value"`
	ROI               float64             `json:"roi"`
	LastDayChange     float64             `json:"last_day_change"`
	PanicSellCooldown int                 `json:"panic_sell_cooldown"`
	// PlayerWins and PlayerLosses count monthly head-to-head results against the player.
	PlayerWins   int `json:"player_wins"`
	PlayerLosses int `json:"player_losses"`
}

// TradeAction is one competitor order. Symbol is the company ticker.
type TradeAction struct {
	CompetitorID string  `json:"competitor_id"`
	CompanyID    string  `json:"company_id"`
	Symbol       string  `json:"symbol"`
	Action       Side    `json:"action"`
	Quantity     int64   `json:"quantity"`
	Price        float64 `json:"price"`
	Tick         int     `json:"tick"`
}

func (a TradeAction) Notional() float64 {
	n := float64(a.Quantity) * a.Price
	if a.Action == Buy {
		return n
	}
	return -n
}

var names = []string{
	"Warren Buffoon",
	"Elon Musk-rat",
	"Peter Lynch Pin",
	"Ray Dalio-ma",
	"George Soros-t",
	"Carl Icahn-t",
	"Bill Ackman-ia",
	"David Tepper-oni",
	"Stanley Druckenmiller",
}

// Generate creates count competitors cycling through the four styles.
func Generate(count int, startingCash float64, rng *rand.Rand) []Competitor {
	order := rng.Perm(len(names))
	out := make([]Competitor, count)
	for i := range out {
		out[i] = Competitor{
			ID:              fmt.Sprintf("competitor-%d", i),
			Name:            names[order[i%len(order)]],
			Style:           Styles[i%len(Styles)],
			Cash:            startingCash,
			Portfolio:       make(map[string]Position),
			InitialAssets:   startingCash,
			TotalAssetValue: startingCash,
		}
	}
	return out
}

// Apply executes an action against the competitor's book.
func Apply(c *Competitor, a TradeAction) error {
	if a.Quantity <= 0 || a.Price <= 0 {
		return ErrInvalidQuantity
	}
	if c.Portfolio == nil {
		c.Portfolio = make(map[string]Position)
	}
	cost := float64(a.Quantity) * a.Price
	pos := c.Portfolio[a.CompanyID]
	switch a.Action {
	case Buy:
		if cost > c.Cash {
			return ErrInsufficientCash
		}
		total := pos.AvgBuyPrice*float64(pos.Shares) + cost
		pos.Shares += a.Quantity
		pos.AvgBuyPrice = total / float64(pos.Shares)
		c.Cash -= cost
		c.Portfolio[a.CompanyID] = pos
	case Sell, PanicSell:
		if a.Quantity > pos.Shares {
			return ErrInsufficientShares
		}
		pos.Shares -= a.Quantity
		c.Cash += cost
		if pos.Shares == 0 {
			delete(c.Portfolio, a.CompanyID)
		} else {
			c.Portfolio[a.CompanyID] = pos
		}
	default:
		return fmt.Errorf("unknown action %q", a.Action)
	}
	return nil
}

// Revalue marks the book to market and refreshes ROI.
func Revalue(c *Competitor, prices map[string]float64) {
	total := c.Cash
	for id, pos := range c.Portfolio {
		if p, ok := prices[id]; ok {
			total += float64(pos.Shares) * p
		} else {
			total += float64(pos.Shares) * pos.AvgBuyPrice
		}
	}
	c.TotalAssetValue = total
	if c.InitialAssets > 0 {
		c.ROI = (total - c.InitialAssets) / c.InitialAssets
	}
}

// RecordHeadToHead scores one month against the player by ROI.
func RecordHeadToHead(c *Competitor, playerROI float64) {
	switch {
	case playerROI > c.ROI:
		c.PlayerWins++
	case playerROI < c.ROI:
		c.PlayerLosses++
	}
}

type Standing struct {
	Rank            int     `json:"rank"`
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	TotalAssetValue float64 `json:"total_asset_value"`
	ROI             float64 `json:"roi"`
	IsPlayer        bool    `json:"is_player"`
}

// Rankings orders competitors and the player by total asset value.
func Rankings(competitors []Competitor, playerAssets, playerInitial float64) []Standing {
	out := make([]Standing, 0, len(competitors)+1)
	for _, c := range competitors {
		out = append(out, Standing{ID: c.ID, Name: c.Name, TotalAssetValue: c.TotalAssetValue, ROI: c.ROI})
	}
	player := Standing{ID: "player", Name: "You", TotalAssetValue: playerAssets, IsPlayer: true}
	if playerInitial > 0 {
		player.ROI = (playerAssets - playerInitial) / playerInitial
	}
	out = append(out, player)
	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalAssetValue > out[j].TotalAssetValue })
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
