package competitor

import (
	"math"
	"math/rand"
	"sort"

	"marketsim/internal/market"
)

// StyleConfig tunes one trading style. Frequencies are in ticks, sizes are
// fractions of cash and profit thresholds are fractional returns.
type StyleConfig struct {
	FreqMin, FreqMax int
	SizeMin, SizeMax float64
	TakeProfit       float64
	StopLoss         float64

	MinVolatility    float64
	MaxVolatility    float64
	PreferredSectors []string
	ConfirmWindow    int

	MAPeriod       int
	TrendThreshold float64

	RSIPeriod  int
	Oversold   float64
	Overbought float64
}

var DefaultStyles = map[Style]StyleConfig{
	Aggressive: {
		FreqMin: 10, FreqMax: 30,
		SizeMin: 0.15, SizeMax: 0.30,
		TakeProfit: 0.25, StopLoss: -0.15,
		MinVolatility:    0.003,
		PreferredSectors: []string{"tech", "healthcare"},
	},
	Conservative: {
		FreqMin: 40, FreqMax: 80,
		SizeMin: 0.05, SizeMax: 0.10,
		TakeProfit: 0.10, StopLoss: -0.05,
		MaxVolatility: 0.25,
		ConfirmWindow: 10,
	},
	TrendFollower: {
		FreqMin: 20, FreqMax: 50,
		SizeMin: 0.10, SizeMax: 0.20,
		MAPeriod:       20,
		TrendThreshold: 0.02,
	},
	Contrarian: {
		FreqMin: 20, FreqMax: 50,
		SizeMin: 0.12, SizeMax: 0.25,
		RSIPeriod:  9,
		Oversold:   35,
		Overbought: 65,
	},
}

// minIndicatorHistory is the fewest price points trend and contrarian styles act on.
const minIndicatorHistory = 2

type strategy func(e *Engine, c *Competitor, cfg StyleConfig, companies []market.Company, tick int) (TradeAction, bool)

var strategies = map[Style]strategy{
	Aggressive:    aggressive,
	Conservative:  conservative,
	TrendFollower: trendFollower,
	Contrarian:    contrarian,
}

func shouldTrade(rng *rand.Rand, cfg StyleConfig) bool {
	interval := float64(cfg.FreqMin) + rng.Float64()*float64(cfg.FreqMax-cfg.FreqMin)
	if interval < 1 {
		interval = 1
	}
	return rng.Float64() < 1/interval
}

func aggressive(e *Engine, c *Competitor, cfg StyleConfig, companies []market.Company, tick int) (TradeAction, bool) {
	if a, ok := exitOnThresholds(c, cfg, companies, tick); ok {
		return a, true
	}
	var pool, preferred []market.Company
	for _, co := range companies {
		if co.Volatility <= cfg.MinVolatility || held(c, co.ID) {
			continue
		}
		pool = append(pool, co)
		if contains(cfg.PreferredSectors, co.Sector) {
			preferred = append(preferred, co)
		}
	}
	if len(preferred) > 0 {
		pool = preferred
	}
	if len(pool) == 0 {
		return TradeAction{}, false
	}
	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].Volatility+momentum(pool[i].PriceHistory) > pool[j].Volatility+momentum(pool[j].PriceHistory)
	})
	return e.buy(c, cfg, pool[0], tick)
}

func conservative(e *Engine, c *Competitor, cfg StyleConfig, companies []market.Company, tick int) (TradeAction, bool) {
	if a, ok := exitOnThresholds(c, cfg, companies, tick); ok {
		return a, true
	}
	var pool []market.Company
	for _, co := range companies {
		if co.Volatility >= cfg.MaxVolatility || held(c, co.ID) {
			continue
		}
		if !confirmed(co, cfg.ConfirmWindow) {
			continue
		}
		pool = append(pool, co)
	}
	if len(pool) == 0 {
		return TradeAction{}, false
	}
	return e.buy(c, cfg, pool[e.rng.Intn(len(pool))], tick)
}

func trendFollower(e *Engine, c *Competitor, cfg StyleConfig, companies []market.Company, tick int) (TradeAction, bool) {
	for _, id := range heldIDs(c) {
		co, ok := find(companies, id)
		if !ok || len(co.PriceHistory) < minIndicatorHistory {
			continue
		}
		if co.Price < market.MovingAverage(co.PriceHistory, cfg.MAPeriod) {
			return exit(c, co, Sell, tick), true
		}
	}

	var best market.Company
	bestStrength := 0.0
	found := false
	for _, co := range companies {
		if len(co.PriceHistory) < minIndicatorHistory || held(c, co.ID) {
			continue
		}
		ma := market.MovingAverage(co.PriceHistory, cfg.MAPeriod)
		if ma <= 0 || co.Price <= ma*(1+cfg.TrendThreshold) {
			continue
		}
		if strength := (co.Price - ma) / ma; !found || strength > bestStrength {
			best, bestStrength, found = co, strength, true
		}
	}
	if !found {
		return TradeAction{}, false
	}
	return e.buy(c, cfg, best, tick)
}

func contrarian(e *Engine, c *Competitor, cfg StyleConfig, companies []market.Company, tick int) (TradeAction, bool) {
	for _, id := range heldIDs(c) {
		co, ok := find(companies, id)
		if !ok || len(co.PriceHistory) < minIndicatorHistory {
			continue
		}
		if market.RSI(co.PriceHistory, cfg.RSIPeriod) > cfg.Overbought {
			return exit(c, co, Sell, tick), true
		}
	}

	var pool []market.Company
	for _, co := range companies {
		if len(co.PriceHistory) < minIndicatorHistory || held(c, co.ID) {
			continue
		}
		if market.RSI(co.PriceHistory, cfg.RSIPeriod) < cfg.Oversold {
			pool = append(pool, co)
		}
	}
	if len(pool) == 0 {
		return TradeAction{}, false
	}
	return e.buy(c, cfg, pool[e.rng.Intn(len(pool))], tick)
}

// exitOnThresholds sells the first holding past take-profit or stop-loss.
func exitOnThresholds(c *Competitor, cfg StyleConfig, companies []market.Company, tick int) (TradeAction, bool) {
	for _, id := range heldIDs(c) {
		co, ok := find(companies, id)
		if !ok {
			continue
		}
		ret := returnOn(c.Portfolio[id], co.Price)
		if ret > cfg.TakeProfit || ret < cfg.StopLoss {
			return exit(c, co, Sell, tick), true
		}
	}
	return TradeAction{}, false
}

// confirmed holds while price has not fallen more than 2% under its recent mean.
func confirmed(co market.Company, window int) bool {
	if window <= 0 || len(co.PriceHistory) == 0 {
		return true
	}
	return co.Price >= market.MovingAverage(co.PriceHistory, window)*0.98
}

// momentum is the return over the last few points, zero without history.
func momentum(history []float64) float64 {
	if len(history) < 2 {
		return 0
	}
	n := int(math.Min(5, float64(len(history)-1)))
	from := history[len(history)-1-n]
	if from <= 0 {
		return 0
	}
	return (history[len(history)-1] - from) / from
}

func exit(c *Competitor, co market.Company, side Side, tick int) TradeAction {
	return TradeAction{
		CompetitorID: c.ID,
		CompanyID:    co.ID,
		Symbol:       co.Ticker,
		Action:       side,
		Quantity:     c.Portfolio[co.ID].Shares,
		Price:        co.Price,
		Tick:         tick,
	}
}

func returnOn(pos Position, price float64) float64 {
	if pos.AvgBuyPrice <= 0 {
		return 0
	}
	return (price - pos.AvgBuyPrice) / pos.AvgBuyPrice
}

func held(c *Competitor, id string) bool {
	_, ok := c.Portfolio[id]
	return ok
}

// heldIDs lists holdings in a stable order.
func heldIDs(c *Competitor) []string {
	ids := make([]string, 0, len(c.Portfolio))
	for id := range c.Portfolio {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func find(companies []market.Company, id string) (market.Company, bool) {
	for _, co := range companies {
		if co.ID == id {
			return co, true
		}
	}
	return market.Company{}, false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
