package intelligence

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"time"
)

// ScoringWeights holds the relative weight of each score component.
//
// Weights are fractions of the composite score. If they do not sum to 1.0
// (tolerance 0.001), NewScorer normalizes them proportionally once at
// construction, so the stored weights always sum to exactly 1.0.
type ScoringWeights struct {
	// SemanticRelevance weights the semantic similarity component.
	SemanticRelevance float64 `json:"semantic_relevance"`

	// Importance weights the adjusted importance component.
	Importance float64 `json:"importance"`

	// Recency weights the exponential time-decay component.
	Recency float64 `json:"recency"`

	// AccessFrequency weights the normalized access-count component.
	AccessFrequency float64 `json:"access_frequency"`
}

// DefaultScoringWeights returns the default component weights.
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		SemanticRelevance: 0.4,
		Importance:        0.3,
		Recency:           0.2,
		AccessFrequency:   0.1,
	}
}

// ScorerConfig configures a Scorer.
type ScorerConfig struct {
	// Weights are the component weights. Zero value uses the defaults.
	Weights ScoringWeights `json:"weights"`

	// DecayRates maps a category to its recency decay rate (per day).
	// The "default" key is the fallback for unknown categories.
	// Nil uses DefaultDecayRates.
	DecayRates map[string]float64 `json:"decay_rates,omitempty"`

	// MaxAgeDays caps the age used in the recency calculation, so very old
	// memories saturate instead of vanishing. Default: 365.
	MaxAgeDays float64 `json:"max_age_days,omitempty"`

	// MaxAccessCount is the access count at which the frequency component
	// saturates at 1.0. Default: 100.
	MaxAccessCount int `json:"max_access_count,omitempty"`

	// Estimator supplies semantic similarity when a memory carries no
	// precomputed value and the query context has an embedding. Nil uses
	// the deterministic hash-based stand-in.
	Estimator SimilarityEstimator `json:"-"`

	// Clock supplies the current time for age calculations. Nil uses
	// time.Now. Tests inject a fixed clock for reproducible recency.
	Clock func() time.Time `json:"-"`
}

// Scorer computes a weighted composite relevance score per memory.
//
// The composite is:
//
//	score = w_sem*semantic + w_imp*importance + w_rec*recency + w_acc*access
//
// with every component clamped to [0,1] before weighting, so the composite
// is itself always in [0,1].
type Scorer struct {
	weights        ScoringWeights
	decayRates     map[string]float64
	maxAgeDays     float64
	maxAccessCount int
	estimator      SimilarityEstimator
	clock          func() time.Time
}

// strongEmotions boost importance when they intersect a memory's emotion
// labels.
var strongEmotions = map[string]bool{
	"love":  true,
	"hate":  true,
	"fear":  true,
	"grief": true,
}

// NewScorer creates a Scorer from the given configuration.
//
// Configuration mistakes fail fast: negative weights, a non-positive weight
// sum, negative decay rates, or non-positive caps are programming errors,
// not runtime data conditions. Weight normalization happens here, once,
// never per call.
func NewScorer(cfg *ScorerConfig) (*Scorer, error) {
	if cfg == nil {
		cfg = &ScorerConfig{}
	}

	w := cfg.Weights
	if w == (ScoringWeights{}) {
		w = DefaultScoringWeights()
	}
	if w.SemanticRelevance < 0 || w.Importance < 0 || w.Recency < 0 || w.AccessFrequency < 0 {
		return nil, fmt.Errorf("intelligence: NewScorer: negative scoring weight in %+v", w)
	}
	sum := w.SemanticRelevance + w.Importance + w.Recency + w.AccessFrequency
	if sum <= 0 {
		return nil, fmt.Errorf("intelligence: NewScorer: scoring weights sum to %v, need > 0", sum)
	}
	if math.Abs(sum-1.0) > 0.001 {
		w.SemanticRelevance /= sum
		w.Importance /= sum
		w.Recency /= sum
		w.AccessFrequency /= sum
	}

	rates := cfg.DecayRates
	if rates == nil {
		rates = DefaultDecayRates()
	}
	for category, rate := range rates {
		if rate < 0 {
			return nil, fmt.Errorf("intelligence: NewScorer: negative decay rate %v for category %q", rate, category)
		}
	}

	maxAge := cfg.MaxAgeDays
	if maxAge == 0 {
		maxAge = 365
	}
	if maxAge < 0 {
		return nil, fmt.Errorf("intelligence: NewScorer: max age days must be positive, got %v", maxAge)
	}

	maxAccess := cfg.MaxAccessCount
	if maxAccess == 0 {
		maxAccess = 100
	}
	if maxAccess < 0 {
		return nil, fmt.Errorf("intelligence: NewScorer: max access count must be positive, got %d", maxAccess)
	}

	estimator := cfg.Estimator
	if estimator == nil {
		estimator = hashEstimator{}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Scorer{
		weights:        w,
		decayRates:     rates,
		maxAgeDays:     maxAge,
		maxAccessCount: maxAccess,
		estimator:      estimator,
		clock:          clock,
	}, nil
}

// Weights returns the normalized component weights in effect.
func (s *Scorer) Weights() ScoringWeights {
	return s.weights
}

// Evaluate scores every memory against the query context and returns the
// results sorted descending by score. Ties keep their input order. The
// input slice is never modified.
//
// Malformed individual memories never fail the call: a missing importance
// resolves to 0.5, a zero timestamp yields a neutral recency of 0.5, and a
// missing access count scores 0. An empty input returns an empty result.
func (s *Scorer) Evaluate(memories []Memory, qctx *QueryContext) []ScoredMemory {
	now := s.clock()

	scored := make([]ScoredMemory, 0, len(memories))
	for i := range memories {
		c := ScoreComponents{
			SemanticScore:   clamp01(s.semanticScore(&memories[i], qctx)),
			ImportanceScore: clamp01(s.importanceScore(&memories[i])),
			RecencyScore:    clamp01(s.recencyScore(&memories[i], now)),
			AccessScore:     clamp01(s.accessScore(&memories[i])),
		}
		scored = append(scored, ScoredMemory{
			Memory: memories[i].Clone(),
			Score: s.weights.SemanticRelevance*c.SemanticScore +
				s.weights.Importance*c.ImportanceScore +
				s.weights.Recency*c.RecencyScore +
				s.weights.AccessFrequency*c.AccessScore,
			Components: c,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	return scored
}

// semanticScore resolves the semantic similarity component.
//
// Precedence: a precomputed per-memory similarity is trusted verbatim; with
// no query embedding at all there is nothing to compare against and the
// score is a neutral 0.5; otherwise the injected estimator supplies a
// deterministic stand-in value.
func (s *Scorer) semanticScore(m *Memory, qctx *QueryContext) float64 {
	if m.SemanticSimilarity != nil {
		return *m.SemanticSimilarity
	}
	if !qctx.HasEmbedding() {
		return 0.5
	}
	return s.estimator.Estimate(m, qctx)
}

// importanceScore resolves the adjusted importance component. The three
// adjustments are cumulative and applied in this order: core floor, then
// emotional-category scaling, then strong-emotion scaling.
func (s *Scorer) importanceScore(m *Memory) float64 {
	score := m.ImportanceOrDefault()

	if m.Category == CategoryCore && score < 0.9 {
		score = 0.9
	}
	if m.Category == CategoryEmotional {
		score = math.Min(score*1.2, 1.0)
	}
	if m.Metadata != nil {
		for _, emotion := range m.Metadata.Emotions {
			if strongEmotions[emotion] {
				score = math.Min(score*1.1, 1.0)
				break
			}
		}
	}

	return score
}

// recencyScore computes exp(-rate * min(ageDays, maxAgeDays)) with the
// decay rate looked up by category.
func (s *Scorer) recencyScore(m *Memory, now time.Time) float64 {
	if m.Timestamp.IsZero() {
		return 0.5
	}
	ageDays := now.Sub(m.Timestamp).Hours() / 24.0
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-s.decayRate(m.Category) * math.Min(ageDays, s.maxAgeDays))
}

// accessScore normalizes the access count against the saturation cap.
func (s *Scorer) accessScore(m *Memory) float64 {
	if m.AccessCount <= 0 {
		return 0
	}
	return math.Min(float64(m.AccessCount)/float64(s.maxAccessCount), 1.0)
}

// decayRate looks up the per-category decay rate with the default fallback.
func (s *Scorer) decayRate(category string) float64 {
	if rate, ok := s.decayRates[category]; ok {
		return rate
	}
	return s.decayRates["default"]
}

// hashEstimator is the default SimilarityEstimator: a stand-in that maps an
// FNV-1a hash of the memory ID and query text into [0.5, 1.0].
//
// It exists so that scoring without precomputed similarities is
// deterministic and reproducible rather than random; swap in a real
// embedding-backed estimator via ScorerConfig.Estimator.
type hashEstimator struct{}

// Estimate returns a stable pseudo-similarity in [0.5, 1.0].
func (hashEstimator) Estimate(m *Memory, qctx *QueryContext) float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(m.ID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(qctx.Query))
	return 0.5 + 0.5*float64(h.Sum64()%10000)/10000.0
}
