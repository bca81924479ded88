package intelligence

import "math"

// DefaultDistribution returns the default category distribution targets
// used by the diversity selector. Categories outside this map have an
// implicit target of zero during the distribution pass and only enter the
// result through the fallback fill.
func DefaultDistribution() map[string]float64 {
	return map[string]float64{
		CategoryEpisodic:   0.4,
		CategorySemantic:   0.3,
		CategoryEmotional:  0.2,
		CategoryProcedural: 0.1,
	}
}

// DiversitySelector bounds a ranked memory list while honoring a target
// category distribution and guaranteeing that the best core memory, if one
// exists, always survives.
type DiversitySelector struct{}

// NewDiversitySelector creates a DiversitySelector.
func NewDiversitySelector() *DiversitySelector {
	return &DiversitySelector{}
}

// Select bounds ranked to at most limit memories.
//
// ranked must already be in descending rank order (as produced by
// Scorer.Evaluate). When the list fits inside the limit it is returned
// as-is (copied). Otherwise selection runs in three phases:
//
//  1. the highest-ranked core memory, if any, is reserved a slot;
//  2. remaining slots are distributed by category targets computed as
//     round(remainingSlots * fraction) over a single rank-ordered walk;
//  3. any slots left over (rounding drift, under-represented categories)
//     are filled with the next-highest-ranked unselected memories
//     regardless of category.
//
// The relative rank order established by the input is preserved within
// each phase; memories are never reordered by score after admission.
// distribution may be nil to use DefaultDistribution. limit <= 0 returns
// an empty result.
func (s *DiversitySelector) Select(ranked []ScoredMemory, limit int, distribution map[string]float64) []ScoredMemory {
	if limit <= 0 {
		return []ScoredMemory{}
	}
	if len(ranked) <= limit {
		out := make([]ScoredMemory, len(ranked))
		copy(out, ranked)
		return out
	}
	if distribution == nil {
		distribution = DefaultDistribution()
	}

	selected := make([]ScoredMemory, 0, limit)
	taken := make(map[int]bool, limit)

	// Phase 1: the best core memory always makes it in.
	for i := range ranked {
		if ranked[i].Category == CategoryCore {
			selected = append(selected, ranked[i])
			taken[i] = true
			break
		}
	}

	// Phase 2: admit by category targets over one rank-ordered walk.
	remaining := limit - len(selected)
	targets := make(map[string]int, len(distribution))
	for category, fraction := range distribution {
		targets[category] = int(math.Round(float64(remaining) * fraction))
	}

	counts := make(map[string]int, len(targets))
	for i := range ranked {
		if len(selected) >= limit {
			break
		}
		if taken[i] {
			continue
		}
		category := ranked[i].Category
		if counts[category] < targets[category] {
			selected = append(selected, ranked[i])
			taken[i] = true
			counts[category]++
		}
	}

	// Phase 3: fill leftover slots in rank order, category-blind.
	for i := range ranked {
		if len(selected) >= limit {
			break
		}
		if taken[i] {
			continue
		}
		selected = append(selected, ranked[i])
		taken[i] = true
	}

	return selected
}
