package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"

	"github.com/google/uuid"

	"marketsim/internal/competitor"
	"marketsim/internal/institution"
	"marketsim/internal/market"
	"marketsim/internal/pressure"
)

const (
	DefaultCompetitors   = 8
	DefaultStartingCash  = 10_000_000
	DefaultHistoryLimit  = 200
	defaultOwnershipBase = 0.3
)

type Options struct {
	Seed         int64
	Competitors  int
	StartingCash float64
	Volatility   string
	HistoryLimit int
	EventChance  float64
	Impact       market.ImpactConfig
	// Companies replaces the default listings when set.
	Companies []market.Company
	Logger    *slog.Logger
}

// Clock is the in-game calendar derived from the tick counter.
type Clock struct {
	Tick  int `json:"tick"`
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
	Hour  int `json:"hour"`
}

func ClockAt(tick int) Clock {
	day := tick / market.TicksPerDay
	month := day / market.DaysPerMonth
	return Clock{
		Tick:  tick,
		Year:  month/market.MonthsPerYear + 1,
		Month: month%market.MonthsPerYear + 1,
		Day:   day%market.DaysPerMonth + 1,
		Hour:  tick % market.TicksPerDay,
	}
}

// Settlement is the month-end record of the player's pressure state.
type Settlement struct {
	pressure.MonthlyPerformance
	Tier                    pressure.Tier         `json:"tier"`
	PreviousTier            pressure.Tier         `json:"previous_tier,omitempty"`
	TierChanged             bool                  `json:"tier_changed"`
	ReliefEligible          bool                  `json:"relief_eligible"`
	NegativeEventMultiplier float64               `json:"negative_event_multiplier"`
	Rankings                []competitor.Standing `json:"rankings"`
}

// TickSummary is what one Step produced.
type TickSummary struct {
	SessionID    string                   `json:"session_id"`
	Clock        Clock                    `json:"clock"`
	Index        float64                  `json:"index"`
	Prices       map[string]float64       `json:"prices"`
	Breaker      market.BreakerState      `json:"breaker"`
	Halts        []string                 `json:"halts,omitempty"`
	Actions      []competitor.TradeAction `json:"actions,omitempty"`
	NewEvents    []market.EventModifier   `json:"new_events,omitempty"`
	Expired      []market.EventModifier   `json:"expired_events,omitempty"`
	Sentiment    market.SentimentState    `json:"sentiment"`
	PlayerAssets float64                  `json:"player_assets"`
	TaxPaid      float64                  `json:"tax_paid"`
	Settlement   *Settlement              `json:"settlement,omitempty"`
}

// Session is one simulated market. It is not safe for concurrent use; Runner
// serializes access.
type Session struct {
	ID  string
	log *slog.Logger

	rng          *rand.Rand
	pricer       *Pricer
	impact       market.ImpactConfig
	historyLimit int

	companies    []market.Company
	institutions *institution.Simulator
	competitors  []competitor.Competitor
	engine       *competitor.Engine
	player       Player
	pressure     pressure.State
	sentiment    *market.Sentiment
	events       *market.Events
	breaker      market.BreakerState
	flow         map[string]market.OrderFlow
	dayStart     map[string]float64

	tick int
}

func NewSession(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Competitors < 0 {
		opts.Competitors = 0
	}
	if opts.StartingCash <= 0 {
		opts.StartingCash = DefaultStartingCash
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	companies := make([]market.Company, 0, len(opts.Companies))
	for _, c := range opts.Companies {
		companies = append(companies, prepare(c))
	}
	if len(companies) == 0 {
		companies = DefaultCompanies(rng, opts.Volatility)
	}

	sims := institution.NewSimulator(institution.Generate(rng), rng)
	sims.Baseline = defaultOwnershipBase

	s := &Session{
		ID:           uuid.NewString(),
		log:          logger,
		rng:          rng,
		pricer:       NewPricer(rand.New(rand.NewSource(opts.Seed + 1))),
		impact:       opts.Impact.WithDefaults(),
		historyLimit: opts.HistoryLimit,
		companies:    companies,
		institutions: sims,
		competitors:  competitor.Generate(opts.Competitors, opts.StartingCash, rng),
		engine:       competitor.NewEngine(rng),
		player:       newPlayer(opts.StartingCash),
		pressure:     pressure.NewState(),
		sentiment:    market.NewSentiment(),
		events:       market.NewEvents(rng, nil, opts.EventChance),
		flow:         make(map[string]market.OrderFlow),
		dayStart:     make(map[string]float64),
	}
	s.pressure, _ = pressure.UpdateTier(s.pressure, opts.StartingCash)
	s.openDay()
	return s
}

func prepare(c market.Company) market.Company {
	c = c.Clone()
	c.Price = market.Quantize(c.Price)
	if c.BasePrice <= 0 {
		c.BasePrice = c.Price
	}
	if c.PreviousPrice <= 0 {
		c.PreviousPrice = c.Price
	}
	if c.SessionOpenPrice <= 0 {
		c.SessionOpenPrice = c.Price
	}
	if len(c.PriceHistory) == 0 {
		c.PriceHistory = []float64{c.Price}
	}
	return c
}

// Close stops the pricer. The session must not be stepped afterwards.
func (s *Session) Close() {
	s.pricer.Close()
}

// Step advances the market by one hour.
func (s *Session) Step(ctx context.Context) (TickSummary, error) {
	req := s.tickRequest()
	resp, err := s.pricer.Submit(ctx, req)
	if err != nil {
		return TickSummary{}, fmt.Errorf("price tick %d: %w", s.tick, err)
	}

	sum := TickSummary{SessionID: s.ID, Clock: ClockAt(s.tick), Prices: resp.Prices}
	sum.Halts = s.applyPrices(resp.Prices)
	s.flow = make(map[string]market.OrderFlow)

	index := market.MarketIndex(s.companies)
	var tripped bool
	s.breaker, tripped = market.CheckBreaker(s.breaker, index)
	sum.Index = index
	sum.Breaker = s.breaker
	if tripped {
		s.log.Info("circuit breaker triggered", "session_id", s.ID, "tick", s.tick, "level", s.breaker.Level, "index", index)
	}

	sector := institution.SectorFor(s.tick)
	s.institutions.UpdateSector(s.companies, sector, s.sentiment.Mood(), s.tick)

	if !s.breaker.Halted() {
		sum.Actions = s.tradeCompetitors()
	}
	prices := s.prices()
	for i := range s.competitors {
		competitor.Revalue(&s.competitors[i], prices)
	}

	assets := s.player.TotalAssets(prices)
	var tax float64
	tax, s.pressure = pressure.HourlyTax(s.pressure, assets)
	s.player.Cash -= tax
	sum.TaxPaid = tax
	sum.PlayerAssets = s.player.TotalAssets(prices)

	sum.Expired = s.events.Advance()
	if ev, ok := s.events.Roll(s.pressure.NegativeEventMultiplier); ok {
		s.sentiment.OnEvent(ev)
		sum.NewEvents = append(sum.NewEvents, ev)
		s.log.Info("market event", "session_id", s.ID, "tick", s.tick, "title", ev.Title, "severity", ev.Severity)
	}
	s.sentiment.Tick()
	sum.Sentiment = s.sentiment.State()

	s.tick++
	if s.tick%market.TicksPerDay == 0 {
		s.closeDay()
		s.openDay()
	}
	if s.tick%market.TicksPerMonth == 0 {
		st := s.settle(prices)
		sum.Settlement = &st
	}
	s.log.Debug("tick complete", "session_id", s.ID, "tick", sum.Clock.Tick, "index", index, "actions", len(sum.Actions))
	return sum, nil
}

func (s *Session) tickRequest() market.TickRequest {
	snaps := make([]market.CompanySnapshot, len(s.companies))
	for i, c := range s.companies {
		snaps[i] = c.Snapshot()
	}
	flow := make(map[string]market.OrderFlow, len(s.flow))
	for id, f := range s.flow {
		flow[id] = f
	}
	sentiment := s.sentiment.Snapshot()
	impact := s.impact
	return market.TickRequest{
		Companies: snaps,
		Dt:        market.DefaultDt,
		Events:    s.events.Active(),
		Sentiment: &sentiment,
		OrderFlow: flow,
		Impact:    &impact,
	}
}

// applyPrices writes a whole tick of prices before anything reads them and
// returns the companies whose volatility interruption started.
func (s *Session) applyPrices(prices map[string]float64) []string {
	var halts []string
	for i := range s.companies {
		c := &s.companies[i]
		p, ok := prices[c.ID]
		if !ok {
			continue
		}
		if c.Price > 0 {
			c.MarketCap *= p / c.Price
		}
		c.PreviousPrice = c.Price
		c.Price = p
		c.PriceHistory = market.AppendHistory(c.PriceHistory, p, s.historyLimit)
		var started bool
		c.VI, started = market.UpdateVI(c.VI, p)
		if started {
			halts = append(halts, c.ID)
			s.log.Info("volatility interruption", "session_id", s.ID, "tick", s.tick, "company", c.Ticker, "price", p)
		}
	}
	return halts
}

func (s *Session) tradeCompetitors() []competitor.TradeAction {
	tradable := make([]market.Company, 0, len(s.companies))
	for _, c := range s.companies {
		if !c.VI.Active() {
			tradable = append(tradable, c)
		}
	}
	var executed []competitor.TradeAction
	for _, a := range s.engine.Evaluate(s.competitors, tradable, s.tick) {
		c := s.competitorByID(a.CompetitorID)
		if c == nil {
			continue
		}
		if err := competitor.Apply(c, a); err != nil {
			s.log.Debug("competitor action rejected", "session_id", s.ID, "competitor", a.CompetitorID, "err", err)
			continue
		}
		f := s.flow[a.CompanyID]
		f.Add(a.Notional())
		s.flow[a.CompanyID] = f
		executed = append(executed, a)
	}
	return executed
}

func (s *Session) openDay() {
	for i := range s.companies {
		s.companies[i].SessionOpenPrice = s.companies[i].Price
		s.companies[i].VI = market.ResetVI()
	}
	s.breaker = market.NewBreaker(market.MarketIndex(s.companies))
	s.flow = make(map[string]market.OrderFlow)
	for _, c := range s.competitors {
		s.dayStart[c.ID] = c.TotalAssetValue
	}
}

func (s *Session) closeDay() {
	for i := range s.competitors {
		c := &s.competitors[i]
		if start := s.dayStart[c.ID]; start > 0 {
			c.LastDayChange = (c.TotalAssetValue - start) / start
		}
	}
}

func (s *Session) settle(prices map[string]float64) Settlement {
	assets := s.player.TotalAssets(prices)
	var changed bool
	s.pressure, changed = pressure.UpdateTier(s.pressure, assets)
	if changed {
		s.log.Info("tier changed", "session_id", s.ID, "from", s.pressure.PreviousTier, "to", s.pressure.Tier, "assets", assets)
	}

	month := s.tick/market.TicksPerMonth - 1
	year, mon := month/market.MonthsPerYear+1, month%market.MonthsPerYear+1
	taxPaid := s.pressure.MonthlyTaxPaid
	s.pressure = pressure.RecordMonthlyPerformance(s.pressure, year, mon, s.player.MonthStartAssets, assets, taxPaid)
	s.player.MonthStartAssets = assets

	playerROI := s.player.ROI(assets)
	for i := range s.competitors {
		competitor.RecordHeadToHead(&s.competitors[i], playerROI)
	}

	perf := s.pressure.History[len(s.pressure.History)-1]
	st := Settlement{
		MonthlyPerformance:      perf,
		Tier:                    s.pressure.Tier,
		PreviousTier:            s.pressure.PreviousTier,
		TierChanged:             changed,
		ReliefEligible:          s.pressure.ReliefEligible,
		NegativeEventMultiplier: s.pressure.NegativeEventMultiplier,
		Rankings:                competitor.Rankings(s.competitors, assets, s.player.InitialAssets),
	}
	s.log.Info("monthly settlement", "session_id", s.ID, "year", year, "month", mon, "tier", st.Tier, "tax_paid", taxPaid, "return_rate", perf.ReturnRate)
	return st
}

func (s *Session) competitorByID(id string) *competitor.Competitor {
	for i := range s.competitors {
		if s.competitors[i].ID == id {
			return &s.competitors[i]
		}
	}
	return nil
}

func (s *Session) prices() map[string]float64 {
	out := make(map[string]float64, len(s.companies))
	for _, c := range s.companies {
		out[c.ID] = c.Price
	}
	return out
}

func (s *Session) findCompany(id string) (*market.Company, error) {
	for i := range s.companies {
		if s.companies[i].ID == id || s.companies[i].Ticker == id {
			return &s.companies[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", market.ErrUnknownCompany, id)
}

// AddEvent registers an externally authored event and lets it move sentiment.
func (s *Session) AddEvent(ev market.EventModifier) market.EventModifier {
	ev = s.events.Add(ev)
	s.sentiment.OnEvent(ev)
	return ev
}

func (s *Session) Clock() Clock { return ClockAt(s.tick) }

func (s *Session) Companies() []market.Company {
	out := make([]market.Company, len(s.companies))
	for i, c := range s.companies {
		out[i] = c.Clone()
	}
	return out
}

func (s *Session) Company(id string) (market.Company, error) {
	c, err := s.findCompany(id)
	if err != nil {
		return market.Company{}, err
	}
	return c.Clone(), nil
}

func (s *Session) Competitors() []competitor.Competitor {
	out := make([]competitor.Competitor, len(s.competitors))
	for i, c := range s.competitors {
		c.Portfolio = clonePositions(c.Portfolio)
		out[i] = c
	}
	return out
}

func (s *Session) Rankings() []competitor.Standing {
	return competitor.Rankings(s.competitors, s.player.TotalAssets(s.prices()), s.player.InitialAssets)
}

func (s *Session) Pressure() pressure.State {
	st := s.pressure
	st.History = append([]pressure.MonthlyPerformance(nil), s.pressure.History...)
	return st
}

func (s *Session) Events() []market.EventModifier { return s.events.Active() }

func (s *Session) Sentiment() market.SentimentState { return s.sentiment.State() }

func (s *Session) Breaker() market.BreakerState { return s.breaker }

func (s *Session) Index() float64 { return market.MarketIndex(s.companies) }

// Sectors lists the sectors present in the market, sorted.
func (s *Session) Sectors() []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range s.companies {
		if !seen[c.Sector] {
			seen[c.Sector] = true
			out = append(out, c.Sector)
		}
	}
	sort.Strings(out)
	return out
}

func clonePositions(in map[string]competitor.Position) map[string]competitor.Position {
	out := make(map[string]competitor.Position, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
