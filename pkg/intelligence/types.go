// Package intelligence implements the character-memory scoring core:
// relevance scoring, importance decay, diversity selection, and conflict
// detection over in-memory records.
//
// Every function in this package is pure. Inputs are never mutated; each
// transform returns freshly constructed values, so calls are safe to issue
// concurrently from multiple goroutines with no coordination.
package intelligence

import "time"

// Memory category constants. A memory may also carry any custom category
// string; unknown categories fall back to the default decay rate and are
// excluded from conflict detection and diversity quotas.
const (
	// CategoryCore marks foundational character facts. Core memories never
	// decay and always survive diversity selection.
	CategoryCore = "core"

	// CategoryEpisodic marks event memories (things that happened).
	CategoryEpisodic = "episodic"

	// CategorySemantic marks factual knowledge memories.
	CategorySemantic = "semantic"

	// CategoryProcedural marks skill/habit memories.
	CategoryProcedural = "procedural"

	// CategoryEmotional marks emotionally charged memories.
	CategoryEmotional = "emotional"
)

// Memory is a single memory record attached to a simulated character.
//
// The record is owned by the persistence layer; this package treats it as
// an immutable value and returns copies rather than mutating in place.
// Optional fields use pointers (or zero values) so that a missing value can
// degrade to its documented default instead of being an error.
type Memory struct {
	// ID is the opaque unique identifier of the memory.
	ID string `json:"id"`

	// Content is the substantive memory statement.
	Content string `json:"content"`

	// Category is one of the Category* constants or a custom string.
	Category string `json:"category"`

	// Importance is the assigned salience in [0,1]. Nil means unset and
	// resolves to 0.5 wherever a value is needed.
	Importance *float64 `json:"importance,omitempty"`

	// Timestamp is when the memory was formed. The zero value means
	// unknown and yields a neutral recency score of 0.5.
	Timestamp time.Time `json:"timestamp,omitempty"`

	// AccessCount is the non-negative read frequency counter. This package
	// only reads it; incrementing is the caller's concern.
	AccessCount int `json:"accessCount"`

	// Metadata is the optional structured bag attached to the memory.
	Metadata *Metadata `json:"metadata,omitempty"`

	// SemanticSimilarity is an optional precomputed similarity in [0,1]
	// supplied by an external embedding collaborator. When present it is
	// trusted verbatim by the scorer.
	SemanticSimilarity *float64 `json:"semanticSimilarity,omitempty"`
}

// ImportanceOrDefault returns the memory's importance, or 0.5 when unset.
func (m *Memory) ImportanceOrDefault() float64 {
	if m.Importance == nil {
		return 0.5
	}
	return *m.Importance
}

// Clone returns a deep copy of the memory, including its metadata bag.
func (m Memory) Clone() Memory {
	out := m
	if m.Importance != nil {
		v := *m.Importance
		out.Importance = &v
	}
	if m.SemanticSimilarity != nil {
		v := *m.SemanticSimilarity
		out.SemanticSimilarity = &v
	}
	if m.Metadata != nil {
		out.Metadata = m.Metadata.Clone()
	}
	return out
}

// Entity is a named entity referenced by a memory.
type Entity struct {
	// Name is the entity's display name. Conflict detection matches names
	// case-insensitively.
	Name string `json:"name"`

	// Relation describes the character's relation to the entity (optional).
	Relation string `json:"relation,omitempty"`
}

// ConflictInfo annotates a memory that belongs to a conflict group.
type ConflictInfo struct {
	// GroupID identifies the conflict group ("conflict-" + dominant ID).
	GroupID string `json:"conflictGroupId"`

	// IsDominant is true for exactly one member per group: the one ranked
	// highest by combined importance and recency.
	IsDominant bool `json:"isDominant"`

	// ConflictingMemoryIDs lists the other members of the group, never
	// including the annotated memory's own ID.
	ConflictingMemoryIDs []string `json:"conflictingMemoryIds"`
}

// Clone returns a deep copy of the conflict annotation.
func (c *ConflictInfo) Clone() *ConflictInfo {
	if c == nil {
		return nil
	}
	out := *c
	out.ConflictingMemoryIDs = append([]string(nil), c.ConflictingMemoryIDs...)
	return &out
}

// Metadata is the typed view of a memory's metadata bag.
//
// Well-known keys get typed fields; anything else the caller stored rides
// along in Extra and is preserved untouched across every transform.
type Metadata struct {
	// Emotions lists emotion labels attached to the memory.
	Emotions []string `json:"emotions,omitempty"`

	// Entities lists named entities the memory references.
	Entities []Entity `json:"entities,omitempty"`

	// Preserve floors decayed importance at 0.1 instead of letting the
	// memory fade out entirely.
	Preserve bool `json:"preserve,omitempty"`

	// NoDecay exempts the memory from importance decay altogether.
	NoDecay bool `json:"noDecay,omitempty"`

	// Conflict is set by the conflict detector when the memory belongs to
	// a conflict group.
	Conflict *ConflictInfo `json:"conflict,omitempty"`

	// Extra holds caller-supplied keys this package does not understand.
	Extra map[string]interface{} `json:"-"`
}

// Clone returns a deep copy of the metadata bag.
func (md *Metadata) Clone() *Metadata {
	if md == nil {
		return nil
	}
	out := &Metadata{
		Preserve: md.Preserve,
		NoDecay:  md.NoDecay,
		Conflict: md.Conflict.Clone(),
	}
	out.Emotions = append([]string(nil), md.Emotions...)
	out.Entities = append([]Entity(nil), md.Entities...)
	if md.Extra != nil {
		out.Extra = make(map[string]interface{}, len(md.Extra))
		for k, v := range md.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// QueryContext carries the caller's retrieval context for one scoring call.
type QueryContext struct {
	// Embedding is the query embedding, if the caller produced one. Its
	// presence decides whether a similarity estimate can be made at all.
	Embedding []float64 `json:"embedding,omitempty"`

	// Query is the free-text query.
	Query string `json:"query"`

	// Topics optionally narrows the query to named topics.
	Topics []string `json:"topics,omitempty"`
}

// HasEmbedding reports whether the context carries a query embedding.
func (q *QueryContext) HasEmbedding() bool {
	return q != nil && len(q.Embedding) > 0
}

// ScoreComponents breaks a composite score into its weighted inputs.
// Each component is clamped to [0,1] before weighting.
type ScoreComponents struct {
	// SemanticScore is the semantic similarity component.
	SemanticScore float64 `json:"semanticScore"`

	// ImportanceScore is the adjusted importance component.
	ImportanceScore float64 `json:"importanceScore"`

	// RecencyScore is the exponential time-decay component.
	RecencyScore float64 `json:"recencyScore"`

	// AccessScore is the normalized access-frequency component.
	AccessScore float64 `json:"accessScore"`
}

// ScoredMemory is a memory plus its composite relevance score. It exists
// only for the duration of one ranking call and is never persisted.
type ScoredMemory struct {
	Memory

	// Score is the weighted composite relevance in [0,1].
	Score float64 `json:"score"`

	// Components holds the individual sub-scores behind Score.
	Components ScoreComponents `json:"scoreComponents"`
}

// SimilarityEstimator produces a semantic similarity estimate for a memory
// against a query context when no precomputed similarity is available.
//
// Implementations must be deterministic: scoring is expected to be
// reproducible for identical inputs. Production code backs this with a real
// embedding comparison; tests supply fixed-value stubs.
type SimilarityEstimator interface {
	// Estimate returns a similarity value for the memory. Results are
	// clamped to [0,1] by the scorer.
	Estimate(m *Memory, qctx *QueryContext) float64
}

// clamp01 clamps v to [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
