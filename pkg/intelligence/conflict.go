package intelligence

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode"
)

// polarityPairs is the fixed lexicon of clashing phrase pairs. Two memories
// clash when one contains the positive term and the other the negative
// term, checked in both directions. This is a bounded lexical heuristic,
// not natural-language reasoning.
var polarityPairs = [][2]string{
	{"always", "never"},
	{"love", "hate"},
	{"believe", "don't believe"},
	{"support", "oppose"},
}

// conflictEligible lists the categories considered for conflict detection.
// Other categories are never flagged, even on full textual overlap.
var conflictEligible = map[string]bool{
	CategorySemantic: true,
	CategoryEpisodic: true,
}

// ConflictDetectorConfig configures a ConflictDetector.
type ConflictDetectorConfig struct {
	// RecencyDecayRate is the per-day rate used when ranking group members
	// by importance and recency. Zero uses 0.05.
	RecencyDecayRate float64 `json:"recency_decay_rate,omitempty"`

	// Clock supplies the current time for recency ranking. Nil uses
	// time.Now.
	Clock func() time.Time `json:"-"`
}

// ConflictDetector groups memories that plausibly contradict each other.
//
// Two memories could conflict when they share at least one named entity
// and either overlap on three or more long content words or contain a
// polarity-clashing phrase pair. Conflicting pairs are unioned into groups
// by shared membership, and the member ranking highest on combined
// importance and recency is marked dominant.
//
// Detection is pairwise, O(n²) in the number of memories sharing an
// entity. Memories are bucketed by entity name first, so pairs with no
// entity in common (which could never conflict) are skipped without a
// content comparison.
type ConflictDetector struct {
	recencyDecayRate float64
	clock            func() time.Time
}

// NewConflictDetector creates a ConflictDetector.
func NewConflictDetector(cfg *ConflictDetectorConfig) *ConflictDetector {
	if cfg == nil {
		cfg = &ConflictDetectorConfig{}
	}
	rate := cfg.RecencyDecayRate
	if rate <= 0 {
		rate = 0.05
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &ConflictDetector{recencyDecayRate: rate, clock: clock}
}

// Detect returns copies of all input memories in input order. Memories that
// land in a conflict group (size >= 2) carry a Metadata.Conflict annotation;
// everything else is returned unchanged. Nothing is removed or reordered.
func (d *ConflictDetector) Detect(memories []Memory) []Memory {
	out := make([]Memory, 0, len(memories))
	for i := range memories {
		out = append(out, memories[i].Clone())
	}

	// Bucket eligible memories by lowercased entity name. Only pairs
	// sharing a bucket can satisfy the entity condition.
	buckets := make(map[string][]int)
	for i := range out {
		if !conflictEligible[out[i].Category] || out[i].Metadata == nil {
			continue
		}
		for _, entity := range out[i].Metadata.Entities {
			name := strings.ToLower(strings.TrimSpace(entity.Name))
			if name == "" {
				continue
			}
			buckets[name] = append(buckets[name], i)
		}
	}

	uf := newUnionFind(len(out))
	conflicted := make(map[int]bool)
	checked := make(map[[2]int]bool)
	for _, indices := range buckets {
		for x := 0; x < len(indices); x++ {
			for y := x + 1; y < len(indices); y++ {
				a, b := indices[x], indices[y]
				if a == b {
					continue
				}
				key := [2]int{a, b}
				if checked[key] {
					continue
				}
				checked[key] = true
				if contentsConflict(out[a].Content, out[b].Content) {
					uf.union(a, b)
					conflicted[a] = true
					conflicted[b] = true
				}
			}
		}
	}

	// Collect groups by union-find root, keeping member input order.
	groups := make(map[int][]int)
	roots := make([]int, 0)
	for i := range out {
		if !conflicted[i] {
			continue
		}
		root := uf.find(i)
		if _, ok := groups[root]; !ok {
			roots = append(roots, root)
		}
		groups[root] = append(groups[root], i)
	}
	sort.Ints(roots)

	now := d.clock()
	for _, root := range roots {
		members := groups[root]
		if len(members) < 2 {
			continue
		}
		d.annotate(out, members, now)
	}

	return out
}

// CouldConflict reports whether two memories pass the pairwise conflict
// test: both in an eligible category, sharing at least one entity name, and
// overlapping lexically or clashing on a polarity pair. The test is
// symmetric in its arguments.
func (d *ConflictDetector) CouldConflict(a, b *Memory) bool {
	if !conflictEligible[a.Category] || !conflictEligible[b.Category] {
		return false
	}
	if !shareEntity(a, b) {
		return false
	}
	return contentsConflict(a.Content, b.Content)
}

// annotate marks a conflict group: the top member by importance and recency
// is dominant, and every member records its group and the other members.
func (d *ConflictDetector) annotate(memories []Memory, members []int, now time.Time) {
	dominant := members[0]
	best := d.groupRank(&memories[dominant], now)
	for _, i := range members[1:] {
		if rank := d.groupRank(&memories[i], now); rank > best {
			best = rank
			dominant = i
		}
	}

	groupID := "conflict-" + memories[dominant].ID
	for _, i := range members {
		others := make([]string, 0, len(members)-1)
		for _, j := range members {
			if j != i {
				others = append(others, memories[j].ID)
			}
		}
		if memories[i].Metadata == nil {
			memories[i].Metadata = &Metadata{}
		}
		memories[i].Metadata.Conflict = &ConflictInfo{
			GroupID:              groupID,
			IsDominant:           i == dominant,
			ConflictingMemoryIDs: others,
		}
	}
}

// groupRank ranks a group member as importance*0.7 + recency*0.3.
func (d *ConflictDetector) groupRank(m *Memory, now time.Time) float64 {
	recency := 0.5
	if !m.Timestamp.IsZero() {
		ageDays := now.Sub(m.Timestamp).Hours() / 24.0
		if ageDays < 0 {
			ageDays = 0
		}
		recency = math.Exp(-d.recencyDecayRate * math.Min(ageDays, 365))
	}
	return m.ImportanceOrDefault()*0.7 + recency*0.3
}

// shareEntity reports whether two memories reference at least one entity
// with the same name, compared case-insensitively.
func shareEntity(a, b *Memory) bool {
	if a.Metadata == nil || b.Metadata == nil {
		return false
	}
	names := make(map[string]bool, len(a.Metadata.Entities))
	for _, entity := range a.Metadata.Entities {
		names[strings.ToLower(strings.TrimSpace(entity.Name))] = true
	}
	for _, entity := range b.Metadata.Entities {
		if names[strings.ToLower(strings.TrimSpace(entity.Name))] {
			return true
		}
	}
	return false
}

// contentsConflict is the lexical half of the pairwise test: three or more
// shared long words, or a polarity clash.
func contentsConflict(a, b string) bool {
	return sharedLongWords(a, b) >= 3 || polarityClash(a, b)
}

// sharedLongWords counts distinct words longer than five characters that
// appear in both contents, case-insensitively.
func sharedLongWords(a, b string) int {
	wordsA := longWords(a)
	if len(wordsA) == 0 {
		return 0
	}
	shared := 0
	for w := range longWords(b) {
		if wordsA[w] {
			shared++
			wordsA[w] = false
		}
	}
	return shared
}

// longWords tokenizes content on non-word boundaries and returns the set of
// lowercased words longer than five characters.
func longWords(content string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	words := make(map[string]bool, len(fields))
	for _, f := range fields {
		if len(f) > 5 {
			words[f] = true
		}
	}
	return words
}

// polarityClash reports whether one content holds a positive lexicon term
// while the other holds its paired negative, in either direction. A
// positive hit requires the paired negative phrase to be absent from the
// same content, so "don't believe" on both sides is agreement, not a clash.
func polarityClash(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	for _, pair := range polarityPairs {
		pos, neg := pair[0], pair[1]
		aPos := strings.Contains(la, pos) && !strings.Contains(la, neg)
		bPos := strings.Contains(lb, pos) && !strings.Contains(lb, neg)
		aNeg := strings.Contains(la, neg)
		bNeg := strings.Contains(lb, neg)
		if (aPos && bNeg) || (bPos && aNeg) {
			return true
		}
	}
	return false
}

// unionFind is a plain disjoint-set over indices with path compression.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[rb] = ra
	}
}
