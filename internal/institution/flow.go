package institution

import (
	"math"
	"math/rand"
	"sort"

	"marketsim/internal/market"
)

const (
	ActiveMin     = 5
	ActiveMax     = 8
	AllocationMin = 0.0005
	AllocationMax = 0.001

	PanicDebtThreshold   = 2.5
	PanicLossThreshold   = -500_000_000
	PanicMoodThreshold   = 0.9
	PanicProbability     = 0.3
	panicHerdingStep     = 0.15
	herdingStep          = 0.1
	maxHerdingMultiplier = 1.5

	decisionThreshold = 0.5
	decisionNoise     = 0.3
	topN              = 3

	participationBase     = 0.4
	participationAppetite = 0.5
	participationMood     = 1.5
	moodLean              = 2.5

	OwnershipDecay  = 0.995
	MaxOwnership    = 0.9
	FlowHistoryKeep = 10
)

// Result is the institutional flow for one company on one update.
type Result struct {
	NetBuyVolume float64  `json:"net_buy_volume"`
	TopBuyers    []string `json:"top_buyers"`
	TopSellers   []string `json:"top_sellers"`
}

// Simulator owns the institution roster and its cooldowns for one session.
type Simulator struct {
	institutions []Institution
	rng          *rand.Rand
	// Baseline is the long-run ownership that accumulated holdings decay toward.
	Baseline float64
}

func NewSimulator(institutions []Institution, rng *rand.Rand) *Simulator {
	for i := range institutions {
		if institutions[i].Cooldowns == nil {
			institutions[i].Cooldowns = make(map[string]int)
		}
	}
	return &Simulator{institutions: institutions, rng: rng}
}

func (s *Simulator) Institutions() []Institution {
	out := make([]Institution, len(s.institutions))
	copy(out, s.institutions)
	return out
}

type trade struct {
	name   string
	volume float64
}

// Simulate lets a random subset of institutions trade one company. mood is the
// market sentiment on a 0.8..1.2 scale.
func (s *Simulator) Simulate(c market.Company, mood float64, tick int) Result {
	n := ActiveMin + s.rng.Intn(ActiveMax-ActiveMin+1)
	if n > len(s.institutions) {
		n = len(s.institutions)
	}
	perm := s.rng.Perm(len(s.institutions))[:n]

	panicking := PanicCondition(c, mood)
	score := FundamentalScore(c) / 100
	prone := 0
	if panicking {
		for _, idx := range perm {
			if Profiles[s.institutions[idx].Type].PanicSellProne {
				prone++
			}
		}
	}

	var buys, sells []trade
	for _, idx := range perm {
		inst := &s.institutions[idx]
		profile := Profiles[inst.Type]
		if until, ok := inst.Cooldowns[c.ID]; ok && tick < until {
			continue
		}

		if panicking && profile.PanicSellProne {
			prob := PanicProbability * (1 + float64(prone)*panicHerdingStep)
			if s.rng.Float64() < prob {
				volume := math.Floor(inst.Capital * (0.01 + PanicSeverity(c, mood)*0.19))
				sells = append(sells, trade{name: inst.Name, volume: volume})
				inst.Cooldowns[c.ID] = tick + profile.Cooldown
				continue
			}
		}

		if s.rng.Float64() >= Participation(inst.RiskAppetite, mood) {
			continue
		}
		decision := s.decide(inst, profile, c, score, mood) + Lean(inst.RiskAppetite, mood) + (s.rng.Float64()-0.5)*decisionNoise
		ratio := AllocationMin + s.rng.Float64()*(AllocationMax-AllocationMin)
		volume := math.Floor(inst.Capital * ratio * (0.75 + 0.5*inst.RiskAppetite))
		switch {
		case decision > decisionThreshold:
			buys = append(buys, trade{name: inst.Name, volume: volume})
		case decision < -decisionThreshold:
			sells = append(sells, trade{name: inst.Name, volume: volume})
		default:
			continue
		}
		inst.Cooldowns[c.ID] = tick + profile.Cooldown
	}

	var net float64
	buyHerd, sellHerd := HerdingMultiplier(len(buys)), HerdingMultiplier(len(sells))
	for i := range buys {
		buys[i].volume = math.Floor(buys[i].volume * buyHerd)
		net += buys[i].volume
	}
	for i := range sells {
		sells[i].volume = math.Floor(sells[i].volume * sellHerd)
		net -= sells[i].volume
	}
	return Result{NetBuyVolume: net, TopBuyers: top(buys), TopSellers: top(sells)}
}

func (s *Simulator) decide(inst *Institution, p Profile, c market.Company, score, mood float64) float64 {
	if inst.Type == Algorithm {
		if inst.Strategy == StrategyNone {
			return (s.rng.Float64() - 0.5) * 2
		}
		return AlgoScore(inst.Strategy, c)
	}
	f := c.Financials
	if f.DebtRatio > p.MaxDebtRatio {
		score -= 0.5
	}
	if f.GrowthRate < p.MinGrowth {
		score -= 0.3
	}
	if f.ROE() < p.MinProfitability {
		score -= 0.4
	}
	if len(p.PreferredSectors) > 0 {
		if contains(p.PreferredSectors, c.Sector) {
			score += 0.2
		} else {
			score -= 0.1
		}
	}
	score += (mood - 1) * 1.5
	if inst.Type == HedgeFund && c.Volatility > 0.3 {
		score += inst.RiskAppetite * 0.5
	}
	return score
}

// Participation is the chance an institution considers trading a company on
// one update. Appetite and any departure from a neutral mood both raise it.
func Participation(riskAppetite, mood float64) float64 {
	return clamp01(participationBase + participationAppetite*riskAppetite + participationMood*math.Abs(mood-1))
}

// Lean tilts a decision toward buying in a bullish market and selling in a
// bearish one, harder for institutions with more appetite.
func Lean(riskAppetite, mood float64) float64 {
	return (mood - 1) * moodLean * (0.5 + riskAppetite)
}

// HerdingMultiplier amplifies each trade by how many others lean the same way.
func HerdingMultiplier(sameSide int) float64 {
	if sameSide <= 1 {
		return 1
	}
	return math.Min(maxHerdingMultiplier, 1+herdingStep*float64(sameSide-1))
}

// PanicCondition holds when leverage, losses and a bear market coincide.
func PanicCondition(c market.Company, mood float64) bool {
	return c.Financials.DebtRatio > PanicDebtThreshold &&
		c.Financials.NetIncome < PanicLossThreshold &&
		mood < PanicMoodThreshold
}

// PanicSeverity averages debt, loss and market stress, each in [0, 1].
func PanicSeverity(c market.Company, mood float64) float64 {
	debt := clamp01((c.Financials.DebtRatio - PanicDebtThreshold) / 2.5)
	loss := clamp01(math.Abs(c.Financials.NetIncome) / 1_000_000_000)
	bear := clamp01((PanicMoodThreshold - mood) / 0.2)
	return (debt + loss + bear) / 3
}

// ApplyFlow records a flow result on the company and moves its ownership.
func (s *Simulator) ApplyFlow(c *market.Company, r Result) {
	c.InstitutionFlow.NetBuyVolume = r.NetBuyVolume
	c.InstitutionFlow.TopBuyers = r.TopBuyers
	c.InstitutionFlow.TopSellers = r.TopSellers
	c.InstitutionFlowHistory = market.AppendHistory(c.InstitutionFlowHistory, r.NetBuyVolume, FlowHistoryKeep)
	UpdateOwnership(c, r.NetBuyVolume, s.Baseline)
}

// UpdateOwnership decays accumulated institutional shares toward the baseline,
// adds the new net shares and derives ownership capped at MaxOwnership.
func UpdateOwnership(c *market.Company, netVolume, baseline float64) {
	outstanding := c.SharesOutstanding()
	if outstanding <= 0 {
		c.InstitutionFlow.InstitutionalOwnership = 0
		return
	}
	base := baseline * outstanding
	acc := base + (c.AccumulatedInstitutionalShares-base)*OwnershipDecay + netVolume/c.Price
	if acc < 0 || math.IsNaN(acc) {
		acc = 0
	}
	c.AccumulatedInstitutionalShares = acc
	c.InstitutionFlow.InstitutionalOwnership = math.Min(MaxOwnership, acc/outstanding)
}

// UpdateSector simulates and applies flow for every company in sector.
func (s *Simulator) UpdateSector(companies []market.Company, sector string, mood float64, tick int) int {
	updated := 0
	for i := range companies {
		if companies[i].Sector != sector {
			continue
		}
		s.ApplyFlow(&companies[i], s.Simulate(companies[i], mood, tick))
		updated++
	}
	return updated
}

// SectorFor returns the sector whose turn it is on a given hourly tick.
func SectorFor(tick int) string {
	if tick < 0 {
		tick = -tick
	}
	return market.Sectors[tick%len(market.Sectors)]
}

func top(trades []trade) []string {
	sort.SliceStable(trades, func(i, j int) bool { return trades[i].volume > trades[j].volume })
	out := make([]string, 0, topN)
	for i := 0; i < len(trades) && i < topN; i++ {
		out = append(out, trades[i].name)
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
