package market

import (
	"math"

	"github.com/google/uuid"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Weight() float64 {
	switch s {
	case SeverityLow:
		return 0.3
	case SeverityMedium:
		return 0.6
	case SeverityHigh:
		return 1.0
	case SeverityCritical:
		return 1.5
	default:
		return 0.5
	}
}

// EventModifier is an active market event. With no company or sector filter it
// applies to every company; otherwise it applies to the union of both lists.
type EventModifier struct {
	ID                 string             `json:"id"`
	Title              string             `json:"title,omitempty"`
	DriftModifier      float64            `json:"drift_modifier"`
	VolatilityModifier float64            `json:"volatility_modifier"`
	Severity           Severity           `json:"severity,omitempty"`
	AffectedCompanies  []string           `json:"affected_companies,omitempty"`
	AffectedSectors    []string           `json:"affected_sectors,omitempty"`
	Propagation        *float64           `json:"propagation,omitempty"`
	Sensitivity        map[string]float64 `json:"sensitivity,omitempty"`
	Duration           int                `json:"duration"`
	RemainingTicks     int                `json:"remaining_ticks"`
	// PhaseIn ramps Propagation from 0 to 1 over this many ticks when set.
	PhaseIn int `json:"phase_in,omitempty"`
}

func (e EventModifier) Global() bool {
	return len(e.AffectedCompanies) == 0 && len(e.AffectedSectors) == 0
}

func (e EventModifier) Applies(companyID, sector string) bool {
	if e.Global() {
		return true
	}
	for _, id := range e.AffectedCompanies {
		if id == companyID {
			return true
		}
	}
	for _, s := range e.AffectedSectors {
		if s == sector {
			return true
		}
	}
	return false
}

// PropagationFactor defaults to full strength when unset.
func (e EventModifier) PropagationFactor() float64 {
	if e.Propagation == nil || math.IsNaN(*e.Propagation) {
		return 1
	}
	return clamp(*e.Propagation, 0, 1)
}

func (e EventModifier) SensitivityFor(companyID string) float64 {
	if v, ok := e.Sensitivity[companyID]; ok && !math.IsNaN(v) {
		return v
	}
	return 1
}

// EventTemplate describes a randomly generated event.
type EventTemplate struct {
	Title              string   `yaml:"title"`
	DriftModifier      float64  `yaml:"drift_modifier"`
	VolatilityModifier float64  `yaml:"volatility_modifier"`
	Severity           Severity `yaml:"severity"`
	Sectors            []string `yaml:"sectors"`
	Duration           int      `yaml:"duration"`
	PhaseIn            int      `yaml:"phase_in"`
}

func (t EventTemplate) Adverse() bool {
	return t.DriftModifier < 0
}

var DefaultEventTemplates = []EventTemplate{
	{Title: "Rate cut rally", DriftModifier: 0.015, VolatilityModifier: 0.1, Severity: SeverityMedium, Duration: 60},
	{Title: "Export boom", DriftModifier: 0.02, VolatilityModifier: 0.1, Severity: SeverityMedium, Sectors: []string{"industrial", "materials"}, Duration: 50},
	{Title: "Chip supercycle", DriftModifier: 0.03, VolatilityModifier: 0.2, Severity: SeverityHigh, Sectors: []string{"tech"}, Duration: 80, PhaseIn: 10},
	{Title: "Drug approval wave", DriftModifier: 0.025, VolatilityModifier: 0.25, Severity: SeverityMedium, Sectors: []string{"healthcare"}, Duration: 40},
	{Title: "Consumer confidence surge", DriftModifier: 0.01, Severity: SeverityLow, Sectors: []string{"consumer", "realestate"}, Duration: 30},
	{Title: "Rate hike shock", DriftModifier: -0.02, VolatilityModifier: 0.3, Severity: SeverityHigh, Sectors: []string{"finance", "realestate"}, Duration: 60},
	{Title: "Oil price spike", DriftModifier: -0.015, VolatilityModifier: 0.2, Severity: SeverityMedium, Sectors: []string{"energy", "industrial"}, Duration: 40},
	{Title: "Credit crunch", DriftModifier: -0.03, VolatilityModifier: 0.5, Severity: SeverityCritical, Duration: 100, PhaseIn: 20},
	{Title: "Regulatory inquiry", DriftModifier: -0.01, VolatilityModifier: 0.15, Severity: SeverityLow, Sectors: []string{"telecom", "utilities"}, Duration: 30},
	{Title: "Global recession scare", DriftModifier: -0.025, VolatilityModifier: 0.4, Severity: SeverityHigh, Duration: 80},
}

const defaultEventChance = 0.01

// Events holds the active event list and rolls new random events.
type Events struct {
	active    []EventModifier
	templates []EventTemplate
	chance    float64
	rng       Rand
}

func NewEvents(rng Rand, templates []EventTemplate, chance float64) *Events {
	if len(templates) == 0 {
		templates = DefaultEventTemplates
	}
	if chance <= 0 {
		chance = defaultEventChance
	}
	return &Events{templates: templates, chance: chance, rng: rng}
}

// Add registers an event and returns it with ID and remaining ticks filled in.
func (e *Events) Add(ev EventModifier) EventModifier {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.RemainingTicks <= 0 {
		ev.RemainingTicks = ev.Duration
	}
	if ev.Duration <= 0 {
		ev.Duration = ev.RemainingTicks
	}
	if ev.PhaseIn > 0 && ev.Propagation == nil {
		zero := 0.0
		ev.Propagation = &zero
	}
	e.active = append(e.active, ev)
	return ev
}

// Active returns a copy of the current events.
func (e *Events) Active() []EventModifier {
	out := make([]EventModifier, len(e.active))
	copy(out, e.active)
	return out
}

// Advance ages every event by one tick and drops the expired ones.
func (e *Events) Advance() []EventModifier {
	var expired []EventModifier
	kept := e.active[:0]
	for _, ev := range e.active {
		ev.RemainingTicks--
		if ev.PhaseIn > 0 {
			elapsed := ev.Duration - ev.RemainingTicks
			p := math.Min(1, float64(elapsed)/float64(ev.PhaseIn))
			ev.Propagation = &p
		}
		if ev.RemainingTicks <= 0 {
			expired = append(expired, ev)
			continue
		}
		kept = append(kept, ev)
	}
	e.active = kept
	return expired
}

// Roll may generate one random event. Adverse templates fire more often as
// negativeMultiplier grows.
func (e *Events) Roll(negativeMultiplier float64) (EventModifier, bool) {
	if negativeMultiplier < 1 {
		negativeMultiplier = 1
	}
	var pool []EventTemplate
	switch r := e.rng.Float64(); {
	case r < e.chance/2*negativeMultiplier:
		pool = e.filter(true)
	case r < e.chance/2*negativeMultiplier+e.chance/2:
		pool = e.filter(false)
	default:
		return EventModifier{}, false
	}
	if len(pool) == 0 {
		return EventModifier{}, false
	}
	t := pool[int(e.rng.Float64()*float64(len(pool)))%len(pool)]
	ev := e.Add(EventModifier{
		Title:              t.Title,
		DriftModifier:      t.DriftModifier,
		VolatilityModifier: t.VolatilityModifier,
		Severity:           t.Severity,
		AffectedSectors:    append([]string(nil), t.Sectors...),
		Duration:           t.Duration,
		PhaseIn:            t.PhaseIn,
	})
	return ev, true
}

func (e *Events) filter(adverse bool) []EventTemplate {
	var out []EventTemplate
	for _, t := range e.templates {
		if t.Adverse() == adverse {
			out = append(out, t)
		}
	}
	return out
}
