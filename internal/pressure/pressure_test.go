package pressure

import (
	"math"
	"testing"
)

func TestTierForAssets(t *testing.T) {
	tests := []struct {
		assets float64
		want   Tier
	}{
		{assets: 0, want: TierBeginner},
		{assets: -10, want: TierBeginner},
		{assets: 49_999_999, want: TierBeginner},
		{assets: 50_000_000, want: TierGrowing},
		{assets: 99_999_999, want: TierGrowing},
		{assets: 100_000_000, want: TierEstablished},
		{assets: 500_000_000, want: TierWealthy},
		{assets: 1_000_000_000, want: TierElite},
		{assets: 4_999_999_999, want: TierElite},
		{assets: 5_000_000_000, want: TierTycoon},
	}
	for _, tc := range tests {
		if got := TierForAssets(tc.assets); got != tc.want {
			t.Fatalf("assets=%v got=%s want=%s", tc.assets, got, tc.want)
		}
	}
}

func TestUpdateTierKeepsPrevious(t *testing.T) {
	s := NewState()
	s, changed := UpdateTier(s, 120_000_000)
	if !changed || s.Tier != TierEstablished || s.PreviousTier != TierBeginner {
		t.Fatalf("state=%+v changed=%v", s, changed)
	}
	s, changed = UpdateTier(s, 130_000_000)
	if changed || s.PreviousTier != TierBeginner {
		t.Fatalf("no-op update changed state: %+v", s)
	}
}

func TestMonthlyTax(t *testing.T) {
	tests := []struct {
		name   string
		tier   Tier
		relief bool
		assets float64
		want   float64
	}{
		{name: "beginner is exempt", tier: TierBeginner, assets: 40_000_000, want: 0},
		{name: "growing", tier: TierGrowing, assets: 60_000_000, want: 60_000},
		{name: "established floors", tier: TierEstablished, assets: 100_000_333, want: 300_000},
		{name: "tycoon", tier: TierTycoon, assets: 5_000_000_000, want: 60_000_000},
		{name: "relief halves", tier: TierWealthy, relief: true, assets: 600_000_000, want: 1_500_000},
		{name: "no assets", tier: TierElite, assets: 0, want: 0},
	}
	for _, tc := range tests {
		s := NewState()
		s.Tier = tc.tier
		s.ReliefEligible = tc.relief
		s.TotalTaxPaid = 10
		got, next := MonthlyTax(s, tc.assets)
		if got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
		if next.TotalTaxPaid != 10+tc.want {
			t.Fatalf("%s: total tax %v", tc.name, next.TotalTaxPaid)
		}
		if s.TotalTaxPaid != 10 {
			t.Fatalf("%s: input state mutated", tc.name)
		}
	}
}

func TestHourlyTaxIsMonthlyOverThreeHundred(t *testing.T) {
	s := NewState()
	s.Tier = TierElite
	got, next := HourlyTax(s, 3_000_000_000)
	if got != 80_000 {
		t.Fatalf("hourly tax %v want 80000", got)
	}
	if next.MonthlyTaxPaid != 80_000 {
		t.Fatalf("monthly accumulator %v", next.MonthlyTaxPaid)
	}
}

func TestRecordMonthlyPerformanceStreaks(t *testing.T) {
	s := NewState()
	for i := 1; i <= 3; i++ {
		s = RecordMonthlyPerformance(s, 1, i, 100, 115, 0)
	}
	if s.ConsecutiveHighPerformanceMonths != 3 {
		t.Fatalf("high streak %d", s.ConsecutiveHighPerformanceMonths)
	}
	if want := 1.45; math.Abs(s.NegativeEventMultiplier-want) > 1e-12 {
		t.Fatalf("multiplier %v want %v", s.NegativeEventMultiplier, want)
	}

	for i := 4; i <= 6; i++ {
		s = RecordMonthlyPerformance(s, 1, i, 100, 90, 0)
	}
	if s.ConsecutiveHighPerformanceMonths != 0 || s.NegativeEventMultiplier != 1 {
		t.Fatalf("streak not reset: %+v", s)
	}
	if !s.ReliefEligible || s.ConsecutiveLossMonths != 3 {
		t.Fatalf("relief expected after 3 loss months: %+v", s)
	}

	for i := 7; i <= 20; i++ {
		s = RecordMonthlyPerformance(s, 1, i, 100, 101, 0)
	}
	if len(s.History) != HistoryMonths {
		t.Fatalf("history length %d", len(s.History))
	}
	if s.History[0].Month != 9 {
		t.Fatalf("oldest month %d want 9", s.History[0].Month)
	}
	if s.ReliefEligible {
		t.Fatalf("relief should end after a gain")
	}
}

func TestCheckPositionLimit(t *testing.T) {
	tests := []struct {
		name      string
		tier      Tier
		assets    float64
		current   float64
		price     float64
		requested int64
		allowed   bool
		maxShares int64
	}{
		{name: "within limit", tier: TierGrowing, assets: 100_000_000, current: 0, price: 10_000, requested: 100, allowed: true, maxShares: 100},
		{name: "truncated", tier: TierGrowing, assets: 100_000_000, current: 45_000_000, price: 10_000, requested: 1_000, allowed: true, maxShares: 500},
		{name: "no headroom", tier: TierTycoon, assets: 1_000_000, current: 150_000, price: 100, requested: 1, allowed: false, maxShares: 0},
		{name: "headroom below one share", tier: TierTycoon, assets: 1_000_000, current: 149_950, price: 100, requested: 1, allowed: false, maxShares: 0},
		{name: "beginner full assets", tier: TierBeginner, assets: 1_000_000, current: 0, price: 1_000, requested: 1_000, allowed: true, maxShares: 1_000},
	}
	for _, tc := range tests {
		got := CheckPositionLimit(tc.tier, tc.assets, tc.current, tc.price, tc.requested)
		if got.Allowed != tc.allowed || got.MaxShares != tc.maxShares {
			t.Fatalf("%s: got %+v", tc.name, got)
		}
	}
}

func TestCheckPositionCount(t *testing.T) {
	if !CheckPositionCount(TierTycoon, 9) {
		t.Fatalf("9 of 10 should be allowed")
	}
	if CheckPositionCount(TierTycoon, 10) {
		t.Fatalf("10 of 10 should be refused")
	}
}
