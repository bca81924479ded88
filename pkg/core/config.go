package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/personaforge/charmem-go/pkg/contextbuilder"
	"github.com/personaforge/charmem-go/pkg/intelligence"
)

// Config is the complete configuration for a charmem client.
//
// Component sections are explicit values handed to the component
// constructors. There is no package-global budget or weight state, so
// clients with different profiles (context windows, decay curves) can
// coexist in one process.
//
// Example:
//
//	config := &core.Config{
//	    Storage: core.StorageConfig{
//	        Provider: "sqlite",
//	        Path:     "./memories.db",
//	    },
//	    Context: &contextbuilder.BudgetConfig{TotalTokens: 8192},
//	}
//	client, err := core.NewClient(config)
type Config struct {
	// Scoring configures the relevance scorer. Nil uses defaults.
	Scoring *intelligence.ScorerConfig `json:"scoring,omitempty"`

	// Decay configures the importance decay engine. Nil uses defaults.
	Decay *intelligence.DecayEngineConfig `json:"decay,omitempty"`

	// Conflict configures the conflict detector. Nil uses defaults.
	Conflict *intelligence.ConflictDetectorConfig `json:"conflict,omitempty"`

	// Context configures the budget assembler. Nil uses defaults.
	Context *contextbuilder.BudgetConfig `json:"context,omitempty"`

	// Storage configures memory persistence.
	Storage StorageConfig `json:"storage"`

	// Embedder configures the embedding provider used to derive semantic
	// similarity. An empty provider disables embedding.
	Embedder EmbedderConfig `json:"embedder"`
}

// StorageConfig selects and configures the persistence backend.
//
// Supported providers: sqlite, postgres, mysql. An empty provider yields a
// pipeline-only client: the pure scoring and assembly operations work, and
// store-backed operations return ErrStorageDisabled.
type StorageConfig struct {
	// Provider is the backend name (sqlite, postgres, mysql) or empty.
	Provider string `json:"provider,omitempty"`

	// Path is the database file path (sqlite only).
	Path string `json:"path,omitempty"`

	// Host is the server host (postgres, mysql).
	Host string `json:"host,omitempty"`

	// Port is the server port (postgres, mysql).
	Port int `json:"port,omitempty"`

	// User is the database user (postgres, mysql).
	User string `json:"user,omitempty"`

	// Password is the database password (postgres, mysql).
	Password string `json:"password,omitempty"`

	// DBName is the database name (postgres, mysql).
	DBName string `json:"db_name,omitempty"`

	// TableName is the memories table name. Empty uses "memories".
	TableName string `json:"table_name,omitempty"`

	// SSLMode is the sslmode parameter (postgres only).
	SSLMode string `json:"ssl_mode,omitempty"`
}

// EmbedderConfig configures the embedding provider.
//
// Supported providers: openai. Empty disables embedding; scoring then
// falls back to precomputed similarities or the neutral default.
type EmbedderConfig struct {
	// Provider is the embedding provider name or empty.
	Provider string `json:"provider,omitempty"`

	// APIKey is the provider API key.
	APIKey string `json:"api_key,omitempty"`

	// Model is the embedding model name.
	Model string `json:"model,omitempty"`

	// BaseURL overrides the provider API base URL.
	BaseURL string `json:"base_url,omitempty"`

	// Dimensions is the embedding width.
	Dimensions int `json:"dimensions,omitempty"`
}

// LoadConfigFromEnv loads configuration from environment variables,
// sourcing a .env file first when one can be found (searching the current
// directory and up to five levels of parents).
//
// Supported variables:
//   - STORAGE_PROVIDER (sqlite, postgres, mysql; empty disables storage)
//   - SQLITE_PATH, SQLITE_TABLE
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD,
//     POSTGRES_DATABASE, POSTGRES_TABLE, POSTGRES_SSLMODE
//   - MYSQL_HOST, MYSQL_PORT, MYSQL_USER, MYSQL_PASSWORD,
//     MYSQL_DATABASE, MYSQL_TABLE
//   - EMBEDDING_PROVIDER, EMBEDDING_API_KEY, EMBEDDING_MODEL,
//     EMBEDDING_BASE_URL, EMBEDDING_DIMENSIONS
//   - CONTEXT_TOTAL_TOKENS, CONTEXT_RESPONSE_RESERVE
func LoadConfigFromEnv() (*Config, error) {
	if envPath, found := FindEnvFile(); found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	config := &Config{}

	provider := os.Getenv("STORAGE_PROVIDER")
	switch provider {
	case "sqlite":
		config.Storage = StorageConfig{
			Provider:  "sqlite",
			Path:      getEnvOrDefault("SQLITE_PATH", "./charmem.db"),
			TableName: os.Getenv("SQLITE_TABLE"),
		}
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))
		config.Storage = StorageConfig{
			Provider:  "postgres",
			Host:      getEnvOrDefault("POSTGRES_HOST", "localhost"),
			Port:      port,
			User:      getEnvOrDefault("POSTGRES_USER", "postgres"),
			Password:  os.Getenv("POSTGRES_PASSWORD"),
			DBName:    getEnvOrDefault("POSTGRES_DATABASE", "charmem"),
			TableName: os.Getenv("POSTGRES_TABLE"),
			SSLMode:   getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		}
	case "mysql":
		port, _ := strconv.Atoi(getEnvOrDefault("MYSQL_PORT", "3306"))
		config.Storage = StorageConfig{
			Provider:  "mysql",
			Host:      getEnvOrDefault("MYSQL_HOST", "127.0.0.1"),
			Port:      port,
			User:      getEnvOrDefault("MYSQL_USER", "root"),
			Password:  os.Getenv("MYSQL_PASSWORD"),
			DBName:    getEnvOrDefault("MYSQL_DATABASE", "charmem"),
			TableName: os.Getenv("MYSQL_TABLE"),
		}
	case "":
		// Pipeline-only client.
	default:
		return nil, NewMemoryError("LoadConfigFromEnv",
			fmt.Errorf("%w: unknown storage provider %q", ErrInvalidConfig, provider))
	}

	if embeddingProvider := os.Getenv("EMBEDDING_PROVIDER"); embeddingProvider != "" {
		dims, _ := strconv.Atoi(os.Getenv("EMBEDDING_DIMENSIONS"))
		config.Embedder = EmbedderConfig{
			Provider:   embeddingProvider,
			APIKey:     os.Getenv("EMBEDDING_API_KEY"),
			Model:      getEnvOrDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
			BaseURL:    os.Getenv("EMBEDDING_BASE_URL"),
			Dimensions: dims,
		}
	}

	if total := os.Getenv("CONTEXT_TOTAL_TOKENS"); total != "" {
		totalTokens, err := strconv.Atoi(total)
		if err != nil {
			return nil, NewMemoryError("LoadConfigFromEnv",
				fmt.Errorf("%w: CONTEXT_TOTAL_TOKENS: %v", ErrInvalidConfig, err))
		}
		reserve, _ := strconv.Atoi(os.Getenv("CONTEXT_RESPONSE_RESERVE"))
		config.Context = &contextbuilder.BudgetConfig{
			TotalTokens:     totalTokens,
			ResponseReserve: reserve,
		}
	}

	return config, nil
}

// LoadConfigFromJSON loads configuration from a JSON file.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", err)
	}
	return &config, nil
}

// Validate checks the cross-component configuration. Component-level
// validation (weights, budgets) happens in the component constructors.
func (c *Config) Validate() error {
	switch c.Storage.Provider {
	case "", "sqlite", "postgres", "mysql":
	default:
		return NewMemoryError("Validate",
			fmt.Errorf("%w: unknown storage provider %q", ErrInvalidConfig, c.Storage.Provider))
	}
	switch c.Embedder.Provider {
	case "", "openai":
	default:
		return NewMemoryError("Validate",
			fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidConfig, c.Embedder.Provider))
	}
	if c.Embedder.Provider != "" && c.Embedder.APIKey == "" {
		return NewMemoryError("Validate",
			fmt.Errorf("%w: embedding provider %q requires an api key", ErrInvalidConfig, c.Embedder.Provider))
	}
	return nil
}

// getEnvOrDefault gets an environment variable or returns the default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FindEnvFile searches the current directory and up to five parent
// directories for a .env (or .env.example) file.
func FindEnvFile() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for i := 0; i < 6; i++ {
		for _, name := range []string{".env", ".env.example"} {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, true
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}
