package core_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/personaforge/charmem-go/pkg/contextbuilder"
	charmem "github.com/personaforge/charmem-go/pkg/core"
	"github.com/personaforge/charmem-go/pkg/intelligence"
)

func newPipelineClient(t *testing.T) *charmem.Client {
	client, err := charmem.NewClient(&charmem.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newSQLiteClient(t *testing.T) *charmem.Client {
	client, err := charmem.NewClient(&charmem.Config{
		Storage: charmem.StorageConfig{
			Provider: "sqlite",
			Path:     filepath.Join(t.TempDir(), "charmem.db"),
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewClientRejectsBadConfig(t *testing.T) {
	_, err := charmem.NewClient(&charmem.Config{
		Storage: charmem.StorageConfig{Provider: "redis"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, charmem.ErrInvalidConfig))

	_, err = charmem.NewClient(&charmem.Config{
		Scoring: &intelligence.ScorerConfig{
			Weights: intelligence.ScoringWeights{SemanticRelevance: -1, Importance: 1, Recency: 1, AccessFrequency: 1},
		},
	})
	assert.Error(t, err, "Component construction failures surface from NewClient")
}

func TestPipelineClientStoreOpsDisabled(t *testing.T) {
	client := newPipelineClient(t)
	ctx := context.Background()

	_, err := client.Add(ctx, "char_001", "anything")
	assert.True(t, errors.Is(err, charmem.ErrStorageDisabled))

	_, err = client.Get(ctx, "char_001", "m1")
	assert.True(t, errors.Is(err, charmem.ErrStorageDisabled))

	_, err = client.Recall(ctx, "char_001", "query", 5)
	assert.True(t, errors.Is(err, charmem.ErrStorageDisabled))

	_, err = client.RunDecay(ctx, "char_001", 7)
	assert.True(t, errors.Is(err, charmem.ErrStorageDisabled))

	_, err = client.AuditConflicts(ctx, "char_001")
	assert.True(t, errors.Is(err, charmem.ErrStorageDisabled))

	assert.True(t, errors.Is(client.Delete(ctx, "char_001", "m1"), charmem.ErrStorageDisabled))
	assert.True(t, errors.Is(client.DeleteAll(ctx, "char_001"), charmem.ErrStorageDisabled))
}

func TestPipelineClientPureOps(t *testing.T) {
	client := newPipelineClient(t)

	importance := 0.8
	ranked := client.Rank([]intelligence.Memory{
		{ID: "m1", Content: "Loves the garden", Category: intelligence.CategoryEmotional, Importance: &importance},
		{ID: "m2", Content: "Fixed the filter", Category: intelligence.CategoryProcedural},
	}, &intelligence.QueryContext{Query: "garden"})
	require.Len(t, ranked, 2)
	assert.Equal(t, "m1", ranked[0].ID)

	result := client.Assemble(contextbuilder.Input{
		CharacterPrompt: "You are Maya.",
		Query:           "How is the garden?",
	})
	require.NotEmpty(t, result.Messages)
	assert.False(t, result.OverBudget)
}

func TestPipelineClientBuildContext(t *testing.T) {
	client := newPipelineClient(t)

	result, err := client.BuildContext(context.Background(), "char_001", charmem.BuildContextInput{
		CharacterPrompt: "You are Maya.",
		ExtraSystem:     []string{"Scene: the hydroponics bay, late shift."},
		Query:           "How is the garden?",
	})
	require.NoError(t, err, "BuildContext without storage skips recall")
	require.NotNil(t, result)
	assert.Equal(t, "You are Maya.", result.Messages[0].Content)
	assert.Equal(t, contextbuilder.RoleSystem, result.Messages[1].Role)
	assert.Equal(t, "Scene: the hydroponics bay, late shift.", result.Messages[1].Content)
	last := result.Messages[len(result.Messages)-1]
	assert.Equal(t, "How is the garden?", last.Content)
}

func TestClientGetNotFound(t *testing.T) {
	client := newSQLiteClient(t)

	_, err := client.Get(context.Background(), "char_001", "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, charmem.ErrNotFound))
}

func TestClientAddValidation(t *testing.T) {
	client := newSQLiteClient(t)
	ctx := context.Background()

	_, err := client.Add(ctx, "char_001", "   ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, charmem.ErrInvalidInput))

	_, err = client.Add(ctx, "char_001", "valid", charmem.WithImportance(1.5))
	require.Error(t, err)
	assert.True(t, errors.Is(err, charmem.ErrInvalidInput))
}

func TestClientAddAndGet(t *testing.T) {
	client := newSQLiteClient(t)
	ctx := context.Background()

	rec, err := client.Add(ctx, "char_001", "Grew up in Vienna",
		charmem.WithCategory(intelligence.CategoryCore),
		charmem.WithImportance(0.95),
	)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.NotEmpty(t, rec.ID, "Add mints an ID")
	assert.Equal(t, intelligence.CategoryCore, rec.Category)

	got, err := client.Get(ctx, "char_001", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Grew up in Vienna", got.Content)
	assert.Equal(t, 0.95, got.Importance)

	// Defaults: episodic category, importance 0.5.
	rec, err = client.Add(ctx, "char_001", "Had toast for breakfast")
	require.NoError(t, err)
	assert.Equal(t, intelligence.CategoryEpisodic, rec.Category)
	assert.Equal(t, 0.5, rec.Importance)
}

func TestClientRecall(t *testing.T) {
	client := newSQLiteClient(t)
	ctx := context.Background()

	seed := []struct {
		content  string
		category string
	}{
		{"Grew up in Vienna", intelligence.CategoryCore},
		{"Met Director Wells about the military project", intelligence.CategoryEpisodic},
		{"The station orbit decays slowly", intelligence.CategorySemantic},
		{"Loves the observatory garden", intelligence.CategoryEmotional},
		{"Knows how to repair the air filter", intelligence.CategoryProcedural},
		{"Argued with Wells about funding", intelligence.CategoryEpisodic},
	}
	for _, s := range seed {
		_, err := client.Add(ctx, "char_001", s.content, charmem.WithCategory(s.category))
		require.NoError(t, err)
	}

	recalled, err := client.Recall(ctx, "char_001", "the military project", 4)
	require.NoError(t, err)
	assert.Len(t, recalled, 4)

	hasCore := false
	for _, m := range recalled {
		if m.Category == intelligence.CategoryCore {
			hasCore = true
		}
		assert.GreaterOrEqual(t, m.Score, 0.0)
		assert.LessOrEqual(t, m.Score, 1.0)
	}
	assert.True(t, hasCore, "Recall keeps the best core memory")

	// Access counters were bumped for the recalled memories.
	bumped := 0
	all, err := client.Recall(ctx, "char_001", "anything", 10, charmem.WithoutAccessBump())
	require.NoError(t, err)
	for _, m := range all {
		if m.AccessCount > 0 {
			bumped++
		}
	}
	assert.Equal(t, 4, bumped)

	// Category filters narrow the candidate set.
	episodic, err := client.Recall(ctx, "char_001", "Wells", 10,
		charmem.WithCategoryFilter(intelligence.CategoryEpisodic),
		charmem.WithoutAccessBump(),
	)
	require.NoError(t, err)
	require.Len(t, episodic, 2)
	for _, m := range episodic {
		assert.Equal(t, intelligence.CategoryEpisodic, m.Category)
	}
}

func TestClientRunDecay(t *testing.T) {
	client := newSQLiteClient(t)
	ctx := context.Background()

	core, err := client.Add(ctx, "char_001", "Grew up in Vienna",
		charmem.WithCategory(intelligence.CategoryCore),
		charmem.WithImportance(0.95),
	)
	require.NoError(t, err)
	episodic, err := client.Add(ctx, "char_001", "Had toast for breakfast",
		charmem.WithCategory(intelligence.CategoryEpisodic),
		charmem.WithImportance(0.8),
	)
	require.NoError(t, err)

	decayed, err := client.RunDecay(ctx, "char_001", 30)
	require.NoError(t, err)
	require.Len(t, decayed, 2)

	gotCore, err := client.Get(ctx, "char_001", core.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.95, gotCore.Importance, "Core memories never decay")

	gotEpisodic, err := client.Get(ctx, "char_001", episodic.ID)
	require.NoError(t, err)
	assert.Less(t, gotEpisodic.Importance, 0.8, "Decayed importance is persisted")
	assert.Greater(t, gotEpisodic.Importance, 0.0)
}

func TestClientAuditConflicts(t *testing.T) {
	client := newSQLiteClient(t)
	ctx := context.Background()

	entities := map[string]interface{}{
		"entities": []interface{}{
			map[string]interface{}{"name": "Director Wells"},
		},
	}
	older, err := client.Add(ctx, "char_001",
		"Director Wells always supported the military project funding",
		charmem.WithCategory(intelligence.CategorySemantic),
		charmem.WithImportance(0.5),
		charmem.WithMetadata(entities),
		charmem.WithTimestamp(time.Now().AddDate(0, -6, 0)),
	)
	require.NoError(t, err)
	newer, err := client.Add(ctx, "char_001",
		"Director Wells never supported the military project funding",
		charmem.WithCategory(intelligence.CategorySemantic),
		charmem.WithImportance(0.9),
		charmem.WithMetadata(entities),
	)
	require.NoError(t, err)

	annotated, err := client.AuditConflicts(ctx, "char_001")
	require.NoError(t, err)
	require.Len(t, annotated, 2)

	// The annotation is persisted on both rows.
	for _, id := range []string{older.ID, newer.ID} {
		got, err := client.Get(ctx, "char_001", id)
		require.NoError(t, err)
		conflict, ok := got.Metadata["conflict"].(map[string]interface{})
		require.True(t, ok, "Memory %s should carry a conflict annotation", id)
		assert.Equal(t, "conflict-"+newer.ID, conflict["conflictGroupId"])
		assert.Equal(t, id == newer.ID, conflict["isDominant"],
			"The fresher, more important memory dominates")
	}
}

func TestClientBuildContextWithMemories(t *testing.T) {
	client := newSQLiteClient(t)
	ctx := context.Background()

	_, err := client.Add(ctx, "char_001", "Loves the observatory garden",
		charmem.WithCategory(intelligence.CategoryEmotional),
		charmem.WithImportance(0.9),
	)
	require.NoError(t, err)

	result, err := client.BuildContext(ctx, "char_001", charmem.BuildContextInput{
		CharacterPrompt: "You are Maya, a station botanist.",
		Query:           "How is the garden?",
		History: []contextbuilder.Message{
			{Role: contextbuilder.RoleUser, Content: "Hello"},
			{Role: contextbuilder.RoleAssistant, Content: "Hi there"},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	var memorySection string
	for _, m := range result.Messages {
		if m.Role == contextbuilder.RoleSystem && m.Content != "You are Maya, a station botanist." {
			memorySection = m.Content
		}
	}
	assert.Contains(t, memorySection, "observatory garden")
	assert.Contains(t, memorySection, "[0.90]")

	last := result.Messages[len(result.Messages)-1]
	assert.Equal(t, "How is the garden?", last.Content)
}

func TestClientDeleteAndDeleteAll(t *testing.T) {
	client := newSQLiteClient(t)
	ctx := context.Background()

	rec, err := client.Add(ctx, "char_001", "Temporary thought")
	require.NoError(t, err)

	require.NoError(t, client.Delete(ctx, "char_001", rec.ID))
	_, err = client.Get(ctx, "char_001", rec.ID)
	assert.Error(t, err)

	_, err = client.Add(ctx, "char_001", "Another one")
	require.NoError(t, err)
	require.NoError(t, client.DeleteAll(ctx, "char_001"))

	recalled, err := client.Recall(ctx, "char_001", "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, recalled)
}
