package market

import "math"

// SentimentSnapshot is the read-only view of sentiment a price tick consumes.
type SentimentSnapshot struct {
	GlobalDrift          float64            `json:"global_drift"`
	VolatilityMultiplier float64            `json:"volatility_multiplier"`
	SectorDrifts         map[string]float64 `json:"sector_drifts,omitempty"`
}

type SentimentState struct {
	Global         float64            `json:"global"`
	Sectors        map[string]float64 `json:"sectors"`
	Momentum       float64            `json:"momentum"`
	FearGreedIndex int                `json:"fear_greed_index"`
}

const sentimentDecayEvery = 100

// Sentiment tracks market mood. Events push it; it reverts toward zero every
// sentimentDecayEvery ticks.
type Sentiment struct {
	global   float64
	sectors  map[string]float64
	momentum float64
	counter  int
	active   bool
}

func NewSentiment() *Sentiment {
	s := &Sentiment{}
	s.Reset()
	return s
}

func (s *Sentiment) Reset() {
	s.global = 0
	s.momentum = 0
	s.counter = 0
	s.active = false
	s.sectors = make(map[string]float64, len(Sectors))
	for _, sec := range Sectors {
		s.sectors[sec] = 0
	}
}

func (s *Sentiment) OnEvent(ev EventModifier) {
	s.active = true
	w := ev.Severity.Weight()
	drift := ev.DriftModifier

	var globalDelta float64
	if drift > 0 {
		globalDelta = math.Min(0.15, drift*w*3)
	} else {
		globalDelta = math.Max(-0.20, drift*w*3)
	}
	s.global = clamp(s.global+globalDelta, -1, 1)
	s.momentum = clamp(s.momentum+globalDelta*0.3, -0.1, 0.1)

	if len(ev.AffectedSectors) == 0 {
		return
	}
	var sectorDelta float64
	if drift > 0 {
		sectorDelta = math.Min(0.25, drift*w*4)
	} else {
		sectorDelta = math.Max(-0.30, drift*w*4)
	}
	for _, sec := range ev.AffectedSectors {
		s.sectors[sec] = clamp(s.sectors[sec]+sectorDelta, -1, 1)
	}
}

// Tick advances the decay counter and reverts toward neutral on every 100th call.
func (s *Sentiment) Tick() {
	if !s.active {
		return
	}
	s.counter++
	if s.counter < sentimentDecayEvery {
		return
	}
	s.counter = 0

	s.global = snapToZero(s.global*0.99, 0.005)
	s.momentum = snapToZero(s.momentum*0.95, 0.001)
	anySector := false
	for sec, v := range s.sectors {
		v = snapToZero(v*0.98, 0.005)
		s.sectors[sec] = v
		if v != 0 {
			anySector = true
		}
	}
	if s.global == 0 && s.momentum == 0 && !anySector {
		s.active = false
	}
}

func (s *Sentiment) Snapshot() SentimentSnapshot {
	drifts := make(map[string]float64, len(s.sectors))
	for sec, v := range s.sectors {
		if v != 0 {
			drifts[sec] = v * 0.015
		}
	}
	return SentimentSnapshot{
		GlobalDrift:          s.global * 0.02,
		VolatilityMultiplier: VolatilityMultiplier(s.global),
		SectorDrifts:         drifts,
	}
}

func (s *Sentiment) State() SentimentState {
	sectors := make(map[string]float64, len(s.sectors))
	for k, v := range s.sectors {
		sectors[k] = v
	}
	return SentimentState{
		Global:         s.global,
		Sectors:        sectors,
		Momentum:       s.momentum,
		FearGreedIndex: int(math.Round((s.global + 1) * 50)),
	}
}

// Mood maps global sentiment onto the 0.8..1.2 scale institutions trade on.
func (s *Sentiment) Mood() float64 {
	return 1 + 0.2*s.global
}

// VolatilityMultiplier amplifies volatility at sentiment extremes: 1.2 above
// 0.8, 1.3 below -0.8, linear between |0.5| and |0.8|.
func VolatilityMultiplier(global float64) float64 {
	abs := math.Abs(global)
	switch {
	case abs < 0.5:
		return 1
	case global > 0.8:
		return 1.2
	case global < -0.8:
		return 1.3
	case global > 0:
		return 1 + (abs-0.5)/0.3*0.2
	default:
		return 1 + (abs-0.5)/0.3*0.3
	}
}

func snapToZero(v, eps float64) float64 {
	if math.Abs(v) < eps {
		return 0
	}
	return v
}
