package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"marketsim/internal/market"
	"marketsim/internal/sim"
)

// Engine holds the simulation tunables. It can come from a YAML file named by
// MARKETSIM_CONFIG; environment variables override it.
type Engine struct {
	Seed         int64               `yaml:"seed"`
	Competitors  int                 `yaml:"competitors"`
	StartingCash float64             `yaml:"starting_cash"`
	Volatility   string              `yaml:"volatility"`
	HistoryLimit int                 `yaml:"history_limit"`
	EventChance  float64             `yaml:"event_chance"`
	Impact       market.ImpactConfig `yaml:"impact"`
	Companies    []market.Company    `yaml:"companies"`
}

type APIConfig struct {
	Addr          string
	DatabaseURL   string
	SQLitePath    string
	TickEvery     time.Duration
	PruneCron     string
	StatusCron    string
	RetainTicks   int
	WorkerRunOnce bool
	Engine        Engine
}

type CLIConfig struct {
	APIBaseURL string
}

func defaultEngine() Engine {
	return Engine{
		Seed:         time.Now().UnixNano(),
		Competitors:  8,
		StartingCash: 10_000_000,
		Volatility:   "mor",
		HistoryLimit: 200,
		EventChance:  0.01,
		Impact:       market.DefaultImpactConfig(),
	}
}

// LoadAPIFromEnv reads the service configuration. The YAML file, when set, is
// applied first.
func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("MARKETSIM_API_ADDR", ":8080")
	}

	eng := defaultEngine()
	if path := strings.TrimSpace(os.Getenv("MARKETSIM_CONFIG")); path != "" {
		fileEng, err := LoadEngineFile(path, eng)
		if err != nil {
			return APIConfig{}, err
		}
		eng = fileEng
	}
	eng.Seed = envInt64Default("MARKETSIM_SEED", eng.Seed)
	eng.Competitors = envIntDefault("MARKETSIM_COMPETITORS", eng.Competitors)
	eng.StartingCash = envFloatDefault("MARKETSIM_STARTING_CASH", eng.StartingCash)
	eng.Volatility = envVolatilityDefault(eng.Volatility)

	cfg := APIConfig{
		Addr:          addr,
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SQLitePath:    strings.TrimSpace(os.Getenv("SQLITE_PATH")),
		TickEvery:     envDurationDefault("MARKETSIM_TICK_EVERY", 2*time.Second),
		PruneCron:     envDefault("MARKETSIM_PRUNE_CRON", "@every 10m"),
		StatusCron:    envDefault("MARKETSIM_STATUS_CRON", "@every 1m"),
		RetainTicks:   envIntDefault("MARKETSIM_RETAIN_TICKS", 50_000),
		WorkerRunOnce: envBoolDefault("MARKETSIM_WORKER_RUN_ONCE", false),
		Engine:        eng,
	}
	return cfg, cfg.Validate()
}

func (e Engine) SessionOptions(logger *slog.Logger) sim.Options {
	return sim.Options{
		Seed:         e.Seed,
		Competitors:  e.Competitors,
		StartingCash: e.StartingCash,
		Volatility:   e.Volatility,
		HistoryLimit: e.HistoryLimit,
		EventChance:  e.EventChance,
		Impact:       e.Impact,
		Companies:    e.Companies,
		Logger:       logger,
	}
}

// LoadEngineFile overlays the YAML file at path onto base.
func LoadEngineFile(path string, base Engine) (Engine, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read config file: %w", err)
	}
	eng := base
	if err := yaml.Unmarshal(raw, &eng); err != nil {
		return base, fmt.Errorf("parse config file %s: %w", path, err)
	}
	eng.Impact = eng.Impact.WithDefaults()
	return eng, nil
}

func (c APIConfig) Validate() error {
	var errs []error
	if c.TickEvery <= 0 {
		errs = append(errs, fmt.Errorf("MARKETSIM_TICK_EVERY must be > 0"))
	}
	if c.RetainTicks <= 0 {
		errs = append(errs, fmt.Errorf("MARKETSIM_RETAIN_TICKS must be > 0"))
	}
	for name, spec := range map[string]string{"MARKETSIM_PRUNE_CRON": c.PruneCron, "MARKETSIM_STATUS_CRON": c.StatusCron} {
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if c.Engine.Competitors < 0 {
		errs = append(errs, fmt.Errorf("MARKETSIM_COMPETITORS must be >= 0"))
	}
	if c.Engine.StartingCash <= 0 {
		errs = append(errs, fmt.Errorf("MARKETSIM_STARTING_CASH must be > 0"))
	}
	if c.Engine.EventChance < 0 || c.Engine.EventChance > 1 {
		errs = append(errs, fmt.Errorf("event_chance must be within [0, 1]"))
	}
	for _, co := range c.Engine.Companies {
		if !market.ValidSector(co.Sector) {
			errs = append(errs, fmt.Errorf("company %s: %w: %q", co.ID, market.ErrUnknownSector, co.Sector))
		}
	}
	return errors.Join(errs...)
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("MSIM_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envFloatDefault(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envInt64Default(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envVolatilityDefault(fallback string) string {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("VOLATILITY")))
	if v == "" {
		v = strings.ToLower(strings.TrimSpace(os.Getenv("MARKETSIM_VOLATILITY")))
	}
	if v == "" {
		v = strings.ToLower(strings.TrimSpace(fallback))
	}
	switch v {
	case "calm", "mor", "wild":
		return v
	default:
		return "mor"
	}
}
