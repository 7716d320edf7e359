package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAPIDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("MARKETSIM_CONFIG", "")
	t.Setenv("MARKETSIM_SEED", "11")
	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if cfg.Engine.Seed != 11 || cfg.Engine.Competitors != 8 || cfg.Engine.Volatility != "mor" {
		t.Fatalf("unexpected engine %+v", cfg.Engine)
	}
	if cfg.TickEvery != 2*time.Second {
		t.Fatalf("tick every = %v", cfg.TickEvery)
	}
}

func TestLoadAPIEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MARKETSIM_TICK_EVERY", "250ms")
	t.Setenv("MARKETSIM_COMPETITORS", "3")
	t.Setenv("MARKETSIM_STARTING_CASH", "75000000")
	t.Setenv("MARKETSIM_VOLATILITY", "WILD")
	t.Setenv("MARKETSIM_WORKER_RUN_ONCE", "true")
	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.TickEvery != 250*time.Millisecond {
		t.Fatalf("unexpected cfg %+v", cfg)
	}
	if cfg.Engine.Competitors != 3 || cfg.Engine.StartingCash != 75_000_000 || cfg.Engine.Volatility != "wild" {
		t.Fatalf("unexpected engine %+v", cfg.Engine)
	}
	if !cfg.WorkerRunOnce {
		t.Fatalf("run once not set")
	}
}

func TestLoadEngineFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marketsim.yaml")
	body := `
seed: 99
competitors: 12
impact:
  impact_coefficient: 0.02
companies:
  - id: acme
    ticker: ACME
    sector: tech
    price: 50000
    volatility: 0.02
    market_cap: 1000000000000
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("MARKETSIM_CONFIG", path)
	t.Setenv("MARKETSIM_SEED", "")
	t.Setenv("MARKETSIM_COMPETITORS", "")
	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	eng := cfg.Engine
	if eng.Seed != 99 || eng.Competitors != 12 {
		t.Fatalf("unexpected engine %+v", eng)
	}
	if eng.Impact.ImpactCoefficient != 0.02 || eng.Impact.LiquidityScale != 50_000_000 {
		t.Fatalf("impact not merged: %+v", eng.Impact)
	}
	if len(eng.Companies) != 1 || eng.Companies[0].Ticker != "ACME" {
		t.Fatalf("companies = %+v", eng.Companies)
	}
}

func TestValidate(t *testing.T) {
	good := APIConfig{
		TickEvery:   time.Second,
		PruneCron:   "@every 10m",
		StatusCron:  "*/5 * * * *",
		RetainTicks: 10,
		Engine:      defaultEngine(),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name string
		mut  func(*APIConfig)
	}{
		{"tick", func(c *APIConfig) { c.TickEvery = 0 }},
		{"retain", func(c *APIConfig) { c.RetainTicks = 0 }},
		{"cron", func(c *APIConfig) { c.PruneCron = "whenever" }},
		{"cash", func(c *APIConfig) { c.Engine.StartingCash = 0 }},
		{"chance", func(c *APIConfig) { c.Engine.EventChance = 2 }},
	}
	for _, tc := range tests {
		cfg := good
		tc.mut(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestLoadCLI(t *testing.T) {
	t.Setenv("MSIM_API_BASE_URL", "http://example.test:8080/")
	if got := LoadCLIFromEnv().APIBaseURL; got != "http://example.test:8080" {
		t.Fatalf("base url = %q", got)
	}
}

func TestSessionOptions(t *testing.T) {
	eng := defaultEngine()
	eng.Seed = 42
	eng.Competitors = 2
	opts := eng.SessionOptions(nil)
	if opts.Seed != 42 || opts.Competitors != 2 || opts.Volatility != "mor" {
		t.Fatalf("unexpected options %+v", opts)
	}
	if opts.Impact.LiquidityScale != eng.Impact.LiquidityScale {
		t.Fatalf("impact not carried over: %+v", opts.Impact)
	}
}
