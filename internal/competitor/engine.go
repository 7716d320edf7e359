package competitor

import (
	"math"
	"math/rand"

	"marketsim/internal/market"
)

const (
	DefaultPanicThreshold = -0.15
	DefaultPanicCooldown  = 300
)

// Engine decides competitor trades each tick. It keeps no per-session state
// besides its random source.
type Engine struct {
	rng    *rand.Rand
	styles map[Style]StyleConfig

	PanicThreshold float64
	PanicCooldown  int
	// PanicProbability is the chance a qualifying loss actually triggers a panic sale.
	PanicProbability float64
}

func NewEngine(rng *rand.Rand) *Engine {
	return &Engine{
		rng:              rng,
		styles:           DefaultStyles,
		PanicThreshold:   DefaultPanicThreshold,
		PanicCooldown:    DefaultPanicCooldown,
		PanicProbability: 1,
	}
}

// Evaluate returns at most one action per competitor. Panic selling is checked
// before the competitor's style. Cooldowns tick down here and are set when a
// panic sale is emitted.
func (e *Engine) Evaluate(competitors []Competitor, companies []market.Company, tick int) []TradeAction {
	var actions []TradeAction
	for i := range competitors {
		c := &competitors[i]
		if c.PanicSellCooldown > 0 {
			c.PanicSellCooldown--
		}
		if c.PanicSellCooldown == 0 {
			if a, ok := e.panicSell(c, companies, tick); ok {
				c.PanicSellCooldown = e.PanicCooldown
				actions = append(actions, a)
				continue
			}
		}

		cfg, ok := e.styles[c.Style]
		if !ok {
			continue
		}
		if !shouldTrade(e.rng, cfg) {
			continue
		}
		if a, ok := strategies[c.Style](e, c, cfg, companies, tick); ok {
			actions = append(actions, a)
		}
	}
	return actions
}

func (e *Engine) panicSell(c *Competitor, companies []market.Company, tick int) (TradeAction, bool) {
	for _, id := range heldIDs(c) {
		co, ok := find(companies, id)
		if !ok {
			continue
		}
		if returnOn(c.Portfolio[id], co.Price) > e.PanicThreshold {
			continue
		}
		if e.rng.Float64() < e.PanicProbability {
			return exit(c, co, PanicSell, tick), true
		}
	}
	return TradeAction{}, false
}

// buy sizes a purchase as a random fraction of cash. It never spends more than
// the competitor holds.
func (e *Engine) buy(c *Competitor, cfg StyleConfig, co market.Company, tick int) (TradeAction, bool) {
	if c.Cash <= 0 || co.Price <= 0 {
		return TradeAction{}, false
	}
	size := c.Cash * (cfg.SizeMin + e.rng.Float64()*(cfg.SizeMax-cfg.SizeMin))
	qty := int64(math.Floor(size / co.Price))
	if qty <= 0 {
		return TradeAction{}, false
	}
	for qty > 0 && float64(qty)*co.Price > c.Cash {
		qty--
	}
	if qty == 0 {
		return TradeAction{}, false
	}
	return TradeAction{
		CompetitorID: c.ID,
		CompanyID:    co.ID,
		Symbol:       co.Ticker,
		Action:       Buy,
		Quantity:     qty,
		Price:        co.Price,
		Tick:         tick,
	}, true
}
