package core_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	charmem "github.com/personaforge/charmem-go/pkg/core"
	"github.com/personaforge/charmem-go/pkg/intelligence"
)

func TestAddOptions(t *testing.T) {
	timestamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	metadata := map[string]interface{}{"mood": "optimistic"}

	opts := &charmem.AddOptions{}
	for _, apply := range []charmem.AddOption{
		charmem.WithCategory(intelligence.CategoryCore),
		charmem.WithImportance(0.9),
		charmem.WithTimestamp(timestamp),
		charmem.WithMetadata(metadata),
		charmem.WithoutEmbedding(),
	} {
		apply(opts)
	}

	assert.Equal(t, intelligence.CategoryCore, opts.Category)
	assert.NotNil(t, opts.Importance)
	assert.Equal(t, 0.9, *opts.Importance)
	assert.Equal(t, timestamp, opts.Timestamp)
	assert.Equal(t, metadata, opts.Metadata)
	assert.True(t, opts.SkipEmbedding)
}

func TestRecallOptions(t *testing.T) {
	distribution := map[string]float64{intelligence.CategorySemantic: 1.0}

	opts := &charmem.RecallOptions{}
	for _, apply := range []charmem.RecallOption{
		charmem.WithDistribution(distribution),
		charmem.WithTopics("garden", "research"),
		charmem.WithCategoryFilter(intelligence.CategoryEpisodic),
		charmem.WithoutAccessBump(),
	} {
		apply(opts)
	}

	assert.Equal(t, distribution, opts.Distribution)
	assert.Equal(t, []string{"garden", "research"}, opts.Topics)
	assert.Equal(t, intelligence.CategoryEpisodic, opts.CategoryFilter)
	assert.True(t, opts.SkipAccessBump)
}
