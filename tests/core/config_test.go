package core_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	charmem "github.com/personaforge/charmem-go/pkg/core"
)

func clearStorageEnv(t *testing.T) {
	for _, key := range []string{
		"STORAGE_PROVIDER", "SQLITE_PATH", "SQLITE_TABLE",
		"POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_USER", "POSTGRES_PASSWORD",
		"POSTGRES_DATABASE", "POSTGRES_TABLE", "POSTGRES_SSLMODE",
		"EMBEDDING_PROVIDER", "EMBEDDING_API_KEY", "EMBEDDING_MODEL",
		"EMBEDDING_BASE_URL", "EMBEDDING_DIMENSIONS",
		"CONTEXT_TOTAL_TOKENS", "CONTEXT_RESPONSE_RESERVE",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	clearStorageEnv(t)

	config, err := charmem.LoadConfigFromEnv()
	require.NoError(t, err)
	require.NotNil(t, config)
	assert.Empty(t, config.Storage.Provider, "No provider means a pipeline-only client")
	assert.Empty(t, config.Embedder.Provider)
}

func TestLoadConfigFromEnvSQLite(t *testing.T) {
	clearStorageEnv(t)
	t.Setenv("STORAGE_PROVIDER", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/test_charmem.db")

	config, err := charmem.LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", config.Storage.Provider)
	assert.Equal(t, "/tmp/test_charmem.db", config.Storage.Path)
}

func TestLoadConfigFromEnvPostgres(t *testing.T) {
	clearStorageEnv(t)
	t.Setenv("STORAGE_PROVIDER", "postgres")
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_PORT", "5433")
	t.Setenv("POSTGRES_PASSWORD", "secret")

	config, err := charmem.LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "postgres", config.Storage.Provider)
	assert.Equal(t, "db.internal", config.Storage.Host)
	assert.Equal(t, 5433, config.Storage.Port)
	assert.Equal(t, "postgres", config.Storage.User, "Defaults fill unset variables")
	assert.Equal(t, "charmem", config.Storage.DBName)
	assert.Equal(t, "disable", config.Storage.SSLMode)
}

func TestLoadConfigFromEnvEmbedding(t *testing.T) {
	clearStorageEnv(t)
	t.Setenv("EMBEDDING_PROVIDER", "openai")
	t.Setenv("EMBEDDING_API_KEY", "sk-test")
	t.Setenv("EMBEDDING_DIMENSIONS", "512")

	config, err := charmem.LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "openai", config.Embedder.Provider)
	assert.Equal(t, "sk-test", config.Embedder.APIKey)
	assert.Equal(t, "text-embedding-3-small", config.Embedder.Model)
	assert.Equal(t, 512, config.Embedder.Dimensions)
}

func TestLoadConfigFromEnvContextBudget(t *testing.T) {
	clearStorageEnv(t)
	t.Setenv("CONTEXT_TOTAL_TOKENS", "16384")
	t.Setenv("CONTEXT_RESPONSE_RESERVE", "4000")

	config, err := charmem.LoadConfigFromEnv()
	require.NoError(t, err)
	require.NotNil(t, config.Context)
	assert.Equal(t, 16384, config.Context.TotalTokens)
	assert.Equal(t, 4000, config.Context.ResponseReserve)

	t.Setenv("CONTEXT_TOTAL_TOKENS", "not-a-number")
	_, err = charmem.LoadConfigFromEnv()
	assert.Error(t, err)
}

func TestLoadConfigFromEnvUnknownProvider(t *testing.T) {
	clearStorageEnv(t)
	t.Setenv("STORAGE_PROVIDER", "cassandra")

	_, err := charmem.LoadConfigFromEnv()
	require.Error(t, err)
	assert.True(t, errors.Is(err, charmem.ErrInvalidConfig))
}

func TestLoadConfigFromJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"storage": {"provider": "sqlite", "path": "./memories.db"},
		"context": {"total_tokens": 4096, "response_reserve": 1000},
		"scoring": {"weights": {"semantic_relevance": 0.5, "importance": 0.3, "recency": 0.1, "access_frequency": 0.1}}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := charmem.LoadConfigFromJSON(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", config.Storage.Provider)
	assert.Equal(t, 4096, config.Context.TotalTokens)
	require.NotNil(t, config.Scoring)
	assert.Equal(t, 0.5, config.Scoring.Weights.SemanticRelevance)

	_, err = charmem.LoadConfigFromJSON(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, (&charmem.Config{}).Validate())

	err := (&charmem.Config{
		Storage: charmem.StorageConfig{Provider: "redis"},
	}).Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, charmem.ErrInvalidConfig))

	err = (&charmem.Config{
		Embedder: charmem.EmbedderConfig{Provider: "openai"},
	}).Validate()
	require.Error(t, err, "An embedding provider without an API key is invalid")

	assert.NoError(t, (&charmem.Config{
		Embedder: charmem.EmbedderConfig{Provider: "openai", APIKey: "sk-test"},
	}).Validate())
}
