package sim

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"marketsim/internal/competitor"
	"marketsim/internal/pressure"
)

var (
	ErrTradingHalted      = errors.New("trading halted")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrPositionLimit      = errors.New("position limit reached")
	ErrInvalidOrder       = errors.New("invalid order")
)

// Player is the human trader's book. Cash may go negative when hourly tax
// exceeds it; buys then fail until it recovers.
type Player struct {
	Cash             float64                        `json:"cash"`
	Holdings         map[string]competitor.Position `json:"holdings"`
	InitialAssets    float64                        `json:"initial_assets"`
	MonthStartAssets float64                        `json:"month_start_assets"`
}

func newPlayer(cash float64) Player {
	return Player{
		Cash:             cash,
		Holdings:         make(map[string]competitor.Position),
		InitialAssets:    cash,
		MonthStartAssets: cash,
	}
}

func (p Player) TotalAssets(prices map[string]float64) float64 {
	total := p.Cash
	for id, pos := range p.Holdings {
		total += float64(pos.Shares) * prices[id]
	}
	return total
}

func (p Player) ROI(assets float64) float64 {
	if p.InitialAssets <= 0 {
		return 0
	}
	return (assets - p.InitialAssets) / p.InitialAssets
}

type PlayerView struct {
	Player
	TotalAssets float64       `json:"total_assets"`
	ROI         float64       `json:"roi"`
	Tier        pressure.Tier `json:"tier"`
}

func (s *Session) Player() PlayerView {
	p := s.player
	p.Holdings = clonePositions(s.player.Holdings)
	assets := p.TotalAssets(s.prices())
	return PlayerView{Player: p, TotalAssets: assets, ROI: p.ROI(assets), Tier: s.pressure.Tier}
}

type OrderResult struct {
	ID        string          `json:"id"`
	CompanyID string          `json:"company_id"`
	Symbol    string          `json:"symbol"`
	Side      competitor.Side `json:"side"`
	Requested int64           `json:"requested"`
	Filled    int64           `json:"filled"`
	Price     float64         `json:"price"`
	Notional  float64         `json:"notional"`
	Truncated bool            `json:"truncated"`
	Cash      float64         `json:"cash"`
}

// PlaceOrder fills a player order at the current price. Buys larger than the
// tier's position limit are truncated to fit. The fill feeds the next tick's
// order flow.
func (s *Session) PlaceOrder(companyID string, side competitor.Side, shares int64) (OrderResult, error) {
	side = competitor.Side(strings.ToLower(strings.TrimSpace(string(side))))
	if shares <= 0 {
		return OrderResult{}, fmt.Errorf("%w: quantity must be > 0", ErrInvalidOrder)
	}
	if side != competitor.Buy && side != competitor.Sell {
		return OrderResult{}, fmt.Errorf("%w: side must be buy or sell", ErrInvalidOrder)
	}
	c, err := s.findCompany(companyID)
	if err != nil {
		return OrderResult{}, err
	}
	if s.breaker.Halted() || c.VI.Active() {
		return OrderResult{}, ErrTradingHalted
	}

	out := OrderResult{
		ID:        uuid.NewString(),
		CompanyID: c.ID,
		Symbol:    c.Ticker,
		Side:      side,
		Requested: shares,
		Price:     c.Price,
	}
	pos, held := s.player.Holdings[c.ID]

	switch side {
	case competitor.Buy:
		if !held && !pressure.CheckPositionCount(s.pressure.Tier, len(s.player.Holdings)) {
			return OrderResult{}, ErrPositionLimit
		}
		assets := s.player.TotalAssets(s.prices())
		check := pressure.CheckPositionLimit(s.pressure.Tier, assets, float64(pos.Shares)*c.Price, c.Price, shares)
		if !check.Allowed {
			return OrderResult{}, fmt.Errorf("%w: %s", ErrPositionLimit, check.Reason)
		}
		qty := check.MaxShares
		cost := float64(qty) * c.Price
		if cost > s.player.Cash {
			return OrderResult{}, ErrInsufficientFunds
		}
		total := pos.AvgBuyPrice*float64(pos.Shares) + cost
		pos.Shares += qty
		pos.AvgBuyPrice = total / float64(pos.Shares)
		s.player.Holdings[c.ID] = pos
		s.player.Cash -= cost
		out.Filled = qty
		out.Truncated = qty < shares
		out.Notional = cost
	case competitor.Sell:
		if !held || shares > pos.Shares {
			return OrderResult{}, ErrInsufficientShares
		}
		proceeds := float64(shares) * c.Price
		pos.Shares -= shares
		if pos.Shares == 0 {
			delete(s.player.Holdings, c.ID)
		} else {
			s.player.Holdings[c.ID] = pos
		}
		s.player.Cash += proceeds
		out.Filled = shares
		out.Notional = -proceeds
	}

	f := s.flow[c.ID]
	f.Add(out.Notional)
	s.flow[c.ID] = f
	out.Cash = s.player.Cash
	s.log.Debug("player order", "session_id", s.ID, "order_id", out.ID, "company", c.Ticker, "side", side, "filled", out.Filled)
	return out, nil
}

// CheckPosition previews the position-limit rule for a buy without placing it.
func (s *Session) CheckPosition(companyID string, shares int64) (pressure.PositionCheck, error) {
	c, err := s.findCompany(companyID)
	if err != nil {
		return pressure.PositionCheck{}, err
	}
	pos := s.player.Holdings[c.ID]
	assets := s.player.TotalAssets(s.prices())
	return pressure.CheckPositionLimit(s.pressure.Tier, assets, float64(pos.Shares)*c.Price, c.Price, shares), nil
}
