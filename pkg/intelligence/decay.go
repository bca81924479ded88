package intelligence

import (
	"fmt"
	"math"
)

// preserveFloor is the minimum importance a preserve-flagged memory can
// decay to, no matter how much time passes.
const preserveFloor = 0.1

// DefaultDecayRates returns the default per-category importance decay rates
// (per day). Episodic memories fade fastest, procedural slowest, and core
// memories do not decay at all.
func DefaultDecayRates() map[string]float64 {
	return map[string]float64{
		CategoryCore:       0,
		CategoryEpisodic:   0.08,
		CategoryEmotional:  0.05,
		CategorySemantic:   0.02,
		CategoryProcedural: 0.01,
		"default":          0.05,
	}
}

// DecayEngineConfig configures a DecayEngine.
type DecayEngineConfig struct {
	// DecayRates maps a category to its importance decay rate (per day),
	// with the "default" key as the fallback. Nil uses DefaultDecayRates.
	DecayRates map[string]float64 `json:"decay_rates,omitempty"`
}

// DecayEngine advances memory importance over elapsed time using
// per-category exponential decay.
//
// Decay follows newImportance = importance * exp(-rate * daysPassed).
// Core memories and records flagged NoDecay pass through unchanged;
// records flagged Preserve are floored at 0.1 so they fade but never
// disappear.
type DecayEngine struct {
	decayRates map[string]float64
}

// NewDecayEngine creates a DecayEngine from the given configuration.
// Negative decay rates are a configuration mistake and fail construction.
func NewDecayEngine(cfg *DecayEngineConfig) (*DecayEngine, error) {
	if cfg == nil {
		cfg = &DecayEngineConfig{}
	}

	rates := cfg.DecayRates
	if rates == nil {
		rates = DefaultDecayRates()
	}
	for category, rate := range rates {
		if rate < 0 {
			return nil, fmt.Errorf("intelligence: NewDecayEngine: negative decay rate %v for category %q", rate, category)
		}
	}

	return &DecayEngine{decayRates: rates}, nil
}

// Apply decays every memory's importance by daysPassed days and returns the
// new values, one per input, in input order. Inputs are never mutated.
//
// daysPassed of 0 (or below) is an exact no-op; large values decay
// monotonically toward 0 (or toward the 0.1 preserve floor). A memory with
// no importance set resolves to the 0.5 default before decaying.
func (e *DecayEngine) Apply(memories []Memory, daysPassed float64) []Memory {
	out := make([]Memory, 0, len(memories))

	if daysPassed <= 0 {
		for i := range memories {
			out = append(out, memories[i].Clone())
		}
		return out
	}

	for i := range memories {
		m := memories[i].Clone()

		if m.Category == CategoryCore || (m.Metadata != nil && m.Metadata.NoDecay) {
			out = append(out, m)
			continue
		}

		decayed := m.ImportanceOrDefault() * math.Exp(-e.decayRate(m.Category)*daysPassed)
		if m.Metadata != nil && m.Metadata.Preserve && decayed < preserveFloor {
			decayed = preserveFloor
		}
		decayed = clamp01(decayed)
		m.Importance = &decayed

		out = append(out, m)
	}

	return out
}

// decayRate looks up the per-category decay rate with the default fallback.
func (e *DecayEngine) decayRate(category string) float64 {
	if rate, ok := e.decayRates[category]; ok {
		return rate
	}
	return e.decayRates["default"]
}
