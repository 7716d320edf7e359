package market

import (
	"math"
	"testing"
)

func TestConcentrationMultiplierMonotone(t *testing.T) {
	cfg := DefaultImpactConfig()
	prev := 0.0
	for own := 0.0; own <= 1.0; own += 0.05 {
		got := cfg.ConcentrationMultiplier(own)
		if got < prev {
			t.Fatalf("ownership=%v multiplier %v dropped below %v", own, got, prev)
		}
		prev = got
	}
	if got := cfg.ConcentrationMultiplier(0.3); got != 1 {
		t.Fatalf("multiplier at threshold = %v", got)
	}
}

func TestInstitutionalImpactSublinear(t *testing.T) {
	cfg := DefaultImpactConfig()
	const marketCap = 1e12
	small := cfg.InstitutionalImpact(1e6, marketCap, 0.1)
	large := cfg.InstitutionalImpact(4e6, marketCap, 0.1)
	if small <= 0 || large <= small {
		t.Fatalf("small=%v large=%v", small, large)
	}
	if math.Abs(large/small-2) > 1e-9 {
		t.Fatalf("4x volume gave %vx impact, want 2x", large/small)
	}
	if sell := cfg.InstitutionalImpact(-1e6, marketCap, 0.1); math.Abs(sell+small) > 1e-15 {
		t.Fatalf("sell impact %v not symmetric with %v", sell, small)
	}
}

func TestInstitutionalImpactCapped(t *testing.T) {
	cfg := DefaultImpactConfig()
	if got := cfg.InstitutionalImpact(1e30, 1e9, 0.9); got != cfg.MaxInstitutionalImpact {
		t.Fatalf("got %v want cap", got)
	}
	if got := cfg.InstitutionalImpact(-1e30, 1e9, 0.9); got != -cfg.MaxInstitutionalImpact {
		t.Fatalf("got %v want -cap", got)
	}
}

func TestInstitutionalImpactZeroMarketCap(t *testing.T) {
	cfg := DefaultImpactConfig()
	if got := cfg.InstitutionalImpact(1e9, 0, 0.5); got != 0 {
		t.Fatalf("got %v want 0", got)
	}
	if got := cfg.Liquidity(-5); got != 0 {
		t.Fatalf("liquidity %v", got)
	}
}

func TestHigherOwnershipMeansMoreImpact(t *testing.T) {
	cfg := DefaultImpactConfig()
	low := cfg.InstitutionalImpact(1e7, 1e12, 0.2)
	high := cfg.InstitutionalImpact(1e7, 1e12, 0.8)
	if high <= low {
		t.Fatalf("high ownership impact %v <= low %v", high, low)
	}
}

func TestOrderFlowImpact(t *testing.T) {
	cfg := DefaultImpactConfig()
	drift, sigma := cfg.OrderFlowImpact(0, 0.2, 0.2)
	if drift != 0 || sigma != 0.2 {
		t.Fatalf("zero flow drift=%v sigma=%v", drift, sigma)
	}

	drift, sigma = cfg.OrderFlowImpact(50_000_000, 0.2, 0.2)
	if math.Abs(drift-0.01*math.Tanh(1)) > 1e-12 {
		t.Fatalf("drift=%v", drift)
	}
	if math.Abs(sigma-0.21) > 1e-12 {
		t.Fatalf("sigma=%v want 0.21", sigma)
	}

	drift, _ = cfg.OrderFlowImpact(-1e15, 0.2, 0.2)
	if drift < -cfg.MaxDriftImpact || drift > 0 {
		t.Fatalf("sell drift=%v", drift)
	}

	cfg.MaxSigmaAmplification = 1.02
	if _, sigma = cfg.OrderFlowImpact(50_000_000, 0.2, 0.2); math.Abs(sigma-0.204) > 1e-12 {
		t.Fatalf("capped sigma=%v want 0.204", sigma)
	}
}

func TestImpactConfigWithDefaults(t *testing.T) {
	got := ImpactConfig{LiquidityScale: 10}.WithDefaults()
	want := DefaultImpactConfig()
	want.LiquidityScale = 10
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}
