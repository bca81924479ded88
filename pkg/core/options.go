package core

import "time"

// AddOption configures an Add call via the functional options pattern.
type AddOption func(*AddOptions)

// AddOptions contains configuration for Add calls.
type AddOptions struct {
	// Category is the memory category. Empty uses episodic.
	Category string

	// Importance is the initial salience. Nil uses 0.5.
	Importance *float64

	// Timestamp is when the memory was formed. Zero uses now.
	Timestamp time.Time

	// Metadata is the open metadata bag to store with the memory.
	Metadata map[string]interface{}

	// SkipEmbedding stores the memory without generating an embedding
	// even when an embedder is configured.
	SkipEmbedding bool
}

// WithCategory sets the memory category for Add.
//
// Example:
//
//	memory, _ := client.Add(ctx, "char_001", "Grew up in Vienna",
//	    core.WithCategory(intelligence.CategoryCore))
func WithCategory(category string) AddOption {
	return func(opts *AddOptions) {
		opts.Category = category
	}
}

// WithImportance sets the initial importance for Add.
func WithImportance(importance float64) AddOption {
	return func(opts *AddOptions) {
		opts.Importance = &importance
	}
}

// WithTimestamp sets the formation time for Add.
func WithTimestamp(t time.Time) AddOption {
	return func(opts *AddOptions) {
		opts.Timestamp = t
	}
}

// WithMetadata sets the metadata bag for Add.
//
// Example:
//
//	memory, _ := client.Add(ctx, "char_001", "Met Director Wells",
//	    core.WithMetadata(map[string]interface{}{
//	        "entities": []interface{}{
//	            map[string]interface{}{"name": "Director Wells", "relation": "superior"},
//	        },
//	    }))
func WithMetadata(metadata map[string]interface{}) AddOption {
	return func(opts *AddOptions) {
		opts.Metadata = metadata
	}
}

// WithoutEmbedding stores the memory without an embedding vector.
func WithoutEmbedding() AddOption {
	return func(opts *AddOptions) {
		opts.SkipEmbedding = true
	}
}

// RecallOption configures a Recall call.
type RecallOption func(*RecallOptions)

// RecallOptions contains configuration for Recall calls.
type RecallOptions struct {
	// Distribution overrides the category distribution used by diversity
	// selection. Nil uses the defaults.
	Distribution map[string]float64

	// Topics narrows the query context.
	Topics []string

	// CategoryFilter restricts recall to one category.
	CategoryFilter string

	// SkipAccessBump leaves access counters untouched for this recall.
	SkipAccessBump bool
}

// WithDistribution overrides the diversity distribution for Recall.
func WithDistribution(distribution map[string]float64) RecallOption {
	return func(opts *RecallOptions) {
		opts.Distribution = distribution
	}
}

// WithTopics narrows the query context for Recall.
func WithTopics(topics ...string) RecallOption {
	return func(opts *RecallOptions) {
		opts.Topics = topics
	}
}

// WithCategoryFilter restricts Recall to one category.
func WithCategoryFilter(category string) RecallOption {
	return func(opts *RecallOptions) {
		opts.CategoryFilter = category
	}
}

// WithoutAccessBump leaves access counters untouched for this Recall.
func WithoutAccessBump() RecallOption {
	return func(opts *RecallOptions) {
		opts.SkipAccessBump = true
	}
}

// applyAddOptions folds a list of AddOption into an AddOptions value.
func applyAddOptions(opts []AddOption) *AddOptions {
	options := &AddOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// applyRecallOptions folds a list of RecallOption into a RecallOptions
// value.
func applyRecallOptions(opts []RecallOption) *RecallOptions {
	options := &RecallOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
