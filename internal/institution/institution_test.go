package institution

import (
	"math"
	"math/rand"
	"testing"

	"marketsim/internal/market"
)

func strongTech() market.Company {
	return market.Company{
		ID: "nova", Sector: "tech", Price: 50_000, MarketCap: 5e12, Volatility: 0.15,
		Financials: market.Financials{Revenue: 1e12, NetIncome: 2e11, DebtRatio: 0.5, GrowthRate: 0.25, EPS: 6_000},
	}
}

func distressedUtility() market.Company {
	return market.Company{
		ID: "grid", Sector: "energy", Price: 8_000, MarketCap: 1e12, Volatility: 0.25,
		Financials: market.Financials{Revenue: 5e11, NetIncome: -9e8, DebtRatio: 4.0, GrowthRate: -0.1, EPS: -50},
	}
}

func roster(t Type, n int) []Institution {
	out := make([]Institution, n)
	for i := range out {
		out[i] = Institution{ID: string(t) + string(rune('a'+i)), Name: string(t) + " " + string(rune('A'+i)), Type: t, RiskAppetite: 0.5, Capital: 5e9}
	}
	return out
}

func TestGenerateDistribution(t *testing.T) {
	insts := Generate(rand.New(rand.NewSource(1)))
	if len(insts) != TotalInstitutions {
		t.Fatalf("got %d institutions", len(insts))
	}
	counts := map[Type]int{}
	for _, inst := range insts {
		counts[inst.Type]++
		if inst.Capital < MinCapital || inst.Capital > MaxCapital {
			t.Fatalf("%s capital %v out of range", inst.ID, inst.Capital)
		}
		if inst.Type == Algorithm && inst.Strategy == StrategyNone {
			t.Fatalf("%s has no strategy", inst.ID)
		}
	}
	for _, d := range Distribution {
		if counts[d.Type] != d.Count {
			t.Fatalf("%s: got %d want %d", d.Type, counts[d.Type], d.Count)
		}
	}
}

func TestFundamentalScore(t *testing.T) {
	if got := FundamentalScore(strongTech()); math.Abs(got-100) > 1e-9 {
		t.Fatalf("strong tech score %v", got)
	}
	if got := FundamentalScore(distressedUtility()); got != 0 {
		t.Fatalf("distressed score %v", got)
	}
	mid := market.Company{Sector: "unknown", Price: 1_500, Financials: market.Financials{Revenue: 100, NetIncome: 11, DebtRatio: 1.2, GrowthRate: 0.06, EPS: 100}}
	// 20 + 10 + 10 + 15 with default weights.
	if got := FundamentalScore(mid); math.Abs(got-55) > 1e-9 {
		t.Fatalf("mid score %v want 55", got)
	}
}

func TestSimulateStrongCompanyDrawsBuyers(t *testing.T) {
	insts := roster(HedgeFund, ActiveMin)
	for i := range insts {
		insts[i].RiskAppetite = 1
	}
	s := NewSimulator(insts, rand.New(rand.NewSource(3)))
	r := s.Simulate(strongTech(), 1.2, 0)
	if r.NetBuyVolume <= 0 {
		t.Fatalf("net buy %v", r.NetBuyVolume)
	}
	if len(r.TopBuyers) == 0 || len(r.TopBuyers) > 3 || len(r.TopSellers) != 0 {
		t.Fatalf("buyers=%v sellers=%v", r.TopBuyers, r.TopSellers)
	}
	again := s.Simulate(strongTech(), 1.2, 1)
	if again.NetBuyVolume != 0 {
		t.Fatalf("cooldown ignored: %+v", again)
	}
	later := s.Simulate(strongTech(), 1.2, 5)
	if later.NetBuyVolume <= 0 {
		t.Fatalf("cooldown did not expire: %+v", later)
	}
}

func TestSimulateDistressedCompanySells(t *testing.T) {
	s := NewSimulator(roster(Pension, 8), rand.New(rand.NewSource(4)))
	r := s.Simulate(distressedUtility(), 0.85, 0)
	if r.NetBuyVolume >= 0 {
		t.Fatalf("net buy %v, want selling", r.NetBuyVolume)
	}
	if len(r.TopSellers) == 0 || len(r.TopBuyers) != 0 {
		t.Fatalf("buyers=%v sellers=%v", r.TopBuyers, r.TopSellers)
	}
}

// mixed scores near zero for a hedge fund, so mood alone decides direction.
func mixed() market.Company {
	return market.Company{
		ID: "mid", Sector: "unknown", Price: 1_500, MarketCap: 1e12, Volatility: 0.1,
		Financials: market.Financials{Revenue: 100, NetIncome: 11, DebtRatio: 1.8, GrowthRate: 0.06, EPS: 100},
	}
}

func TestSimulateFollowsMood(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		bull := NewSimulator(roster(HedgeFund, 8), rand.New(rand.NewSource(seed))).Simulate(mixed(), 1.2, 0)
		if bull.NetBuyVolume <= 0 || len(bull.TopSellers) != 0 {
			t.Fatalf("seed %d: bullish flow %+v", seed, bull)
		}
		bear := NewSimulator(roster(HedgeFund, 8), rand.New(rand.NewSource(seed))).Simulate(mixed(), 0.8, 0)
		if bear.NetBuyVolume >= 0 || len(bear.TopBuyers) != 0 {
			t.Fatalf("seed %d: bearish flow %+v", seed, bear)
		}
	}
}

func TestRiskAppetiteRaisesParticipation(t *testing.T) {
	if lo, hi := Participation(0, 1), Participation(1, 1); lo >= hi {
		t.Fatalf("participation %v at zero appetite, %v at full", lo, hi)
	}
	if Participation(1, 1.2) != 1 {
		t.Fatalf("participation should cap at 1, got %v", Participation(1, 1.2))
	}

	active := func(appetite float64) int {
		insts := roster(HedgeFund, 8)
		for i := range insts {
			insts[i].RiskAppetite = appetite
		}
		s := NewSimulator(insts, rand.New(rand.NewSource(21)))
		total := 0
		for round := 0; round < 200; round++ {
			tick := round * 10
			s.Simulate(strongTech(), 1, tick)
			for _, inst := range s.Institutions() {
				if inst.Cooldowns["nova"] == tick+Profiles[HedgeFund].Cooldown {
					total++
				}
			}
		}
		return total
	}
	timid, bold := active(0), active(1)
	if float64(bold) < 1.5*float64(timid) {
		t.Fatalf("active trades: timid %d, bold %d", timid, bold)
	}
}

func TestPanicConditionAndSeverity(t *testing.T) {
	c := distressedUtility()
	if !PanicCondition(c, 0.85) {
		t.Fatalf("panic expected")
	}
	if PanicCondition(c, 0.95) {
		t.Fatalf("no panic in a neutral market")
	}
	sev := PanicSeverity(c, 0.85)
	if sev <= 0 || sev > 1 {
		t.Fatalf("severity %v", sev)
	}
}

func TestHerdingMultiplier(t *testing.T) {
	tests := []struct {
		n    int
		want float64
	}{
		{n: 0, want: 1},
		{n: 1, want: 1},
		{n: 3, want: 1.2},
		{n: 50, want: 1.5},
	}
	for _, tc := range tests {
		if got := HerdingMultiplier(tc.n); math.Abs(got-tc.want) > 1e-12 {
			t.Fatalf("n=%d got=%v want=%v", tc.n, got, tc.want)
		}
	}
}

func TestUpdateOwnership(t *testing.T) {
	c := market.Company{Price: 1_000, MarketCap: 1_000_000}
	UpdateOwnership(&c, 200_000, 0)
	if math.Abs(c.InstitutionFlow.InstitutionalOwnership-0.2) > 1e-12 {
		t.Fatalf("ownership %v want 0.2", c.InstitutionFlow.InstitutionalOwnership)
	}
	UpdateOwnership(&c, 0, 0)
	if math.Abs(c.InstitutionFlow.InstitutionalOwnership-0.2*OwnershipDecay) > 1e-12 {
		t.Fatalf("ownership did not decay: %v", c.InstitutionFlow.InstitutionalOwnership)
	}
	UpdateOwnership(&c, 10_000_000, 0)
	if c.InstitutionFlow.InstitutionalOwnership != MaxOwnership {
		t.Fatalf("ownership not capped: %v", c.InstitutionFlow.InstitutionalOwnership)
	}
	UpdateOwnership(&c, -1e12, 0)
	if c.InstitutionFlow.InstitutionalOwnership != 0 {
		t.Fatalf("ownership below zero: %v", c.InstitutionFlow.InstitutionalOwnership)
	}

	empty := market.Company{Price: 1_000}
	UpdateOwnership(&empty, 1e6, 0)
	if empty.InstitutionFlow.InstitutionalOwnership != 0 {
		t.Fatalf("zero market cap ownership %v", empty.InstitutionFlow.InstitutionalOwnership)
	}
}

func TestUpdateSectorOnlyTouchesSector(t *testing.T) {
	companies := []market.Company{strongTech(), distressedUtility()}
	s := NewSimulator(roster(HedgeFund, 5), rand.New(rand.NewSource(9)))
	for tick := 0; tick < 15*5; tick += 5 {
		if n := s.UpdateSector(companies, "tech", 1.2, tick); n != 1 {
			t.Fatalf("updated %d companies", n)
		}
	}
	if got := len(companies[0].InstitutionFlowHistory); got != FlowHistoryKeep {
		t.Fatalf("flow history %d want %d", got, FlowHistoryKeep)
	}
	if len(companies[1].InstitutionFlowHistory) != 0 {
		t.Fatalf("energy company touched")
	}
	if companies[0].InstitutionFlow.InstitutionalOwnership <= 0 {
		t.Fatalf("ownership not updated")
	}
}

func TestSectorFor(t *testing.T) {
	if SectorFor(0) != "tech" || SectorFor(10) != "tech" || SectorFor(13) != "healthcare" {
		t.Fatalf("rotation out of order")
	}
}
