package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"

	"github.com/personaforge/charmem-go/pkg/contextbuilder"
	"github.com/personaforge/charmem-go/pkg/embedder"
	openaiEmbedder "github.com/personaforge/charmem-go/pkg/embedder/openai"
	"github.com/personaforge/charmem-go/pkg/intelligence"
	"github.com/personaforge/charmem-go/pkg/storage"
	mysqlStore "github.com/personaforge/charmem-go/pkg/storage/mysql"
	postgresStore "github.com/personaforge/charmem-go/pkg/storage/postgres"
	sqliteStore "github.com/personaforge/charmem-go/pkg/storage/sqlite"
)

// Client is the charmem client: the wiring between memory persistence, the
// embedding collaborator, the scoring core, and the context assembler.
//
// The scoring pipeline itself is pure; the client owns the only mutable
// state (the store connection and ID generator) and is safe for concurrent
// use.
//
// Example usage:
//
//	config, _ := core.LoadConfigFromEnv()
//	client, _ := core.NewClient(config)
//	defer client.Close()
//
//	memories, _ := client.Recall(ctx, "char_001", "the military project", 5)
type Client struct {
	config *Config

	// store is the persistence backend, nil for pipeline-only clients.
	store storage.MemoryStore

	// embedder derives embeddings for similarity scoring, nil if disabled.
	embedder embedder.Provider

	scorer    *intelligence.Scorer
	decay     *intelligence.DecayEngine
	conflicts *intelligence.ConflictDetector
	selector  *intelligence.DiversitySelector
	assembler *contextbuilder.Assembler

	// node mints memory IDs.
	node *snowflake.Node

	mu sync.RWMutex
}

// NewClient creates a charmem client from the given configuration.
// Component configuration mistakes (bad weights, bad budgets) surface here,
// at construction, never at call time.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	scorer, err := intelligence.NewScorer(cfg.Scoring)
	if err != nil {
		return nil, NewMemoryError("NewClient", err)
	}
	decay, err := intelligence.NewDecayEngine(cfg.Decay)
	if err != nil {
		return nil, NewMemoryError("NewClient", err)
	}
	assembler, err := contextbuilder.NewAssembler(cfg.Context)
	if err != nil {
		return nil, NewMemoryError("NewClient", err)
	}

	store, err := initStorage(&cfg.Storage)
	if err != nil {
		return nil, NewMemoryError("NewClient", err)
	}
	provider, err := initEmbedder(&cfg.Embedder)
	if err != nil {
		return nil, NewMemoryError("NewClient", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, NewMemoryError("NewClient", err)
	}

	return &Client{
		config:    cfg,
		store:     store,
		embedder:  provider,
		scorer:    scorer,
		decay:     decay,
		conflicts: intelligence.NewConflictDetector(cfg.Conflict),
		selector:  intelligence.NewDiversitySelector(),
		assembler: assembler,
		node:      node,
	}, nil
}

// initStorage builds the configured persistence backend. An empty provider
// returns a nil store (pipeline-only client).
func initStorage(cfg *StorageConfig) (storage.MemoryStore, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "sqlite":
		return sqliteStore.NewClient(&sqliteStore.Config{
			DBPath:    cfg.Path,
			TableName: cfg.TableName,
		})
	case "postgres":
		return postgresStore.NewClient(&postgresStore.Config{
			Host:      cfg.Host,
			Port:      cfg.Port,
			User:      cfg.User,
			Password:  cfg.Password,
			DBName:    cfg.DBName,
			TableName: cfg.TableName,
			SSLMode:   cfg.SSLMode,
		})
	case "mysql":
		return mysqlStore.NewClient(&mysqlStore.Config{
			Host:      cfg.Host,
			Port:      cfg.Port,
			User:      cfg.User,
			Password:  cfg.Password,
			DBName:    cfg.DBName,
			TableName: cfg.TableName,
		})
	default:
		return nil, fmt.Errorf("%w: unknown storage provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// initEmbedder builds the configured embedding provider, nil if disabled.
func initEmbedder(cfg *EmbedderConfig) (embedder.Provider, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "openai":
		return openaiEmbedder.NewClient(&openaiEmbedder.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
		})
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// Add stores a new memory for a character and returns the stored record.
func (c *Client) Add(ctx context.Context, characterID, content string, opts ...AddOption) (*storage.Record, error) {
	if c.store == nil {
		return nil, NewMemoryError("Add", ErrStorageDisabled)
	}
	if strings.TrimSpace(content) == "" {
		return nil, NewMemoryError("Add", fmt.Errorf("%w: empty content", ErrInvalidInput))
	}

	options := applyAddOptions(opts)
	category := options.Category
	if category == "" {
		category = intelligence.CategoryEpisodic
	}
	importance := 0.5
	if options.Importance != nil {
		importance = *options.Importance
	}
	if importance < 0 || importance > 1 {
		return nil, NewMemoryError("Add", fmt.Errorf("%w: importance %v out of [0,1]", ErrInvalidInput, importance))
	}

	rec := &storage.Record{
		ID:          c.node.Generate().String(),
		CharacterID: characterID,
		Content:     content,
		Category:    category,
		Importance:  importance,
		Metadata:    options.Metadata,
		CreatedAt:   options.Timestamp,
	}

	if c.embedder != nil && !options.SkipEmbedding {
		embedding, err := c.embedder.Embed(ctx, content)
		if err != nil {
			return nil, NewMemoryError("Add", fmt.Errorf("%w: %v", ErrEmbeddingFailed, err))
		}
		rec.Embedding = embedding
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Insert(ctx, rec); err != nil {
		return nil, NewMemoryError("Add", err)
	}
	return rec, nil
}

// Get returns one stored memory.
func (c *Client) Get(ctx context.Context, characterID, id string) (*storage.Record, error) {
	if c.store == nil {
		return nil, NewMemoryError("Get", ErrStorageDisabled)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, err := c.store.Get(ctx, characterID, id)
	if err != nil {
		return nil, NewMemoryError("Get", err)
	}
	return rec, nil
}

// Delete removes one stored memory.
func (c *Client) Delete(ctx context.Context, characterID, id string) error {
	if c.store == nil {
		return NewMemoryError("Delete", ErrStorageDisabled)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return NewMemoryError("Delete", c.store.Delete(ctx, characterID, id))
}

// DeleteAll removes every memory of a character.
func (c *Client) DeleteAll(ctx context.Context, characterID string) error {
	if c.store == nil {
		return NewMemoryError("DeleteAll", ErrStorageDisabled)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return NewMemoryError("DeleteAll", c.store.DeleteAll(ctx, characterID))
}

// Recall loads a character's memories, scores them against the query, and
// returns a diversity-bounded ranked subset.
//
// With an embedder configured, the query is embedded once and each stored
// memory with an embedding gets a cosine-derived semantic similarity;
// memories without embeddings fall back to the scorer's estimator.
// Unless disabled, access counters of the recalled memories are bumped.
func (c *Client) Recall(ctx context.Context, characterID, query string, limit int, opts ...RecallOption) ([]intelligence.ScoredMemory, error) {
	if c.store == nil {
		return nil, NewMemoryError("Recall", ErrStorageDisabled)
	}
	options := applyRecallOptions(opts)

	c.mu.RLock()
	records, err := c.store.List(ctx, characterID, &storage.ListOptions{Category: options.CategoryFilter})
	c.mu.RUnlock()
	if err != nil {
		return nil, NewMemoryError("Recall", err)
	}

	qctx := &intelligence.QueryContext{Query: query, Topics: options.Topics}
	memories := RecordsToMemories(records)

	if c.embedder != nil {
		queryEmbedding, err := c.embedder.Embed(ctx, query)
		if err != nil {
			return nil, NewMemoryError("Recall", fmt.Errorf("%w: %v", ErrEmbeddingFailed, err))
		}
		qctx.Embedding = queryEmbedding
		for i, rec := range records {
			if len(rec.Embedding) > 0 {
				similarity := embedder.CosineSimilarity(queryEmbedding, rec.Embedding)
				memories[i].SemanticSimilarity = &similarity
			}
		}
	}

	ranked := c.scorer.Evaluate(memories, qctx)
	selected := c.selector.Select(ranked, limit, options.Distribution)

	if !options.SkipAccessBump && len(selected) > 0 {
		ids := make([]string, 0, len(selected))
		for _, m := range selected {
			ids = append(ids, m.ID)
		}
		c.mu.Lock()
		err = c.store.IncrementAccess(ctx, characterID, ids)
		c.mu.Unlock()
		if err != nil {
			return nil, NewMemoryError("Recall", err)
		}
	}

	return selected, nil
}

// Rank scores the given memories against a query context without touching
// storage. It is the pure pipeline entry for callers that manage their own
// records.
func (c *Client) Rank(memories []intelligence.Memory, qctx *intelligence.QueryContext) []intelligence.ScoredMemory {
	return c.scorer.Evaluate(memories, qctx)
}

// RunDecay advances importance decay by daysPassed days over a character's
// full memory set and persists the changed values. It returns the decayed
// memories.
func (c *Client) RunDecay(ctx context.Context, characterID string, daysPassed float64) ([]intelligence.Memory, error) {
	if c.store == nil {
		return nil, NewMemoryError("RunDecay", ErrStorageDisabled)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.store.List(ctx, characterID, nil)
	if err != nil {
		return nil, NewMemoryError("RunDecay", err)
	}

	memories := RecordsToMemories(records)
	decayed := c.decay.Apply(memories, daysPassed)

	for i, m := range decayed {
		if m.Importance == nil || *m.Importance == records[i].Importance {
			continue
		}
		if err := c.store.UpdateImportance(ctx, characterID, m.ID, *m.Importance); err != nil {
			return nil, NewMemoryError("RunDecay", err)
		}
	}
	return decayed, nil
}

// AuditConflicts runs conflict detection over a character's full memory
// set, persists the conflict annotations, and returns the annotated
// memories. Previously annotated memories whose group dissolved are left
// untouched; callers wanting a clean slate should clear conflict metadata
// first.
func (c *Client) AuditConflicts(ctx context.Context, characterID string) ([]intelligence.Memory, error) {
	if c.store == nil {
		return nil, NewMemoryError("AuditConflicts", ErrStorageDisabled)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.store.List(ctx, characterID, nil)
	if err != nil {
		return nil, NewMemoryError("AuditConflicts", err)
	}

	annotated := c.conflicts.Detect(RecordsToMemories(records))

	for _, m := range annotated {
		if m.Metadata == nil || m.Metadata.Conflict == nil {
			continue
		}
		if err := c.store.UpdateMetadata(ctx, characterID, m.ID, MetadataToMap(m.Metadata)); err != nil {
			return nil, NewMemoryError("AuditConflicts", err)
		}
	}
	return annotated, nil
}

// BuildContextInput is the request shape for BuildContext.
type BuildContextInput struct {
	// CharacterPrompt is the character-definition system message.
	CharacterPrompt string

	// Query is the current user query.
	Query string

	// History is the prior conversation, oldest first.
	History []contextbuilder.Message

	// ExtraSystem holds additional system messages (world state, scene
	// notes) placed directly after the character prompt.
	ExtraSystem []string

	// MemoryLimit bounds how many memories are recalled into the prompt.
	// Zero uses 10.
	MemoryLimit int

	// RecallOptions tunes the underlying Recall call.
	RecallOptions []RecallOption
}

// BuildContext recalls relevant memories for the query and assembles the
// character prompt, memory section, and history into the token budget.
func (c *Client) BuildContext(ctx context.Context, characterID string, in BuildContextInput) (*contextbuilder.Result, error) {
	limit := in.MemoryLimit
	if limit == 0 {
		limit = 10
	}

	var section string
	if c.store != nil {
		selected, err := c.Recall(ctx, characterID, in.Query, limit, in.RecallOptions...)
		if err != nil {
			return nil, err
		}
		section = FormatMemorySection(selected)
	}

	result := c.assembler.Assemble(contextbuilder.Input{
		CharacterPrompt: in.CharacterPrompt,
		MemorySection:   section,
		ExtraSystem:     in.ExtraSystem,
		History:         in.History,
		Query:           in.Query,
	})
	return &result, nil
}

// Assemble exposes the budget assembler directly for callers that already
// hold a memory section.
func (c *Client) Assemble(in contextbuilder.Input) contextbuilder.Result {
	return c.assembler.Assemble(in)
}

// FormatMemorySection renders ranked memories as the line-per-memory
// section the assembler can re-rank and trim.
func FormatMemorySection(memories []intelligence.ScoredMemory) string {
	if len(memories) == 0 {
		return ""
	}
	lines := make([]string, 0, len(memories))
	for _, m := range memories {
		lines = append(lines, contextbuilder.FormatMemoryLine(m.Content, m.ImportanceOrDefault()))
	}
	return strings.Join(lines, "\n")
}

// Close releases the store and embedder connections.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			firstErr = err
		}
		c.store = nil
	}
	if c.embedder != nil {
		if err := c.embedder.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.embedder = nil
	}
	return NewMemoryError("Close", firstErr)
}
