// Package storage defines the persistence collaborator for character
// memories.
//
// The scoring core is storage-agnostic: it consumes plain records and
// returns derived copies. Implementations of MemoryStore own the actual
// lifecycle (create, update, delete) of memory rows.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a memory lookup or row-targeted update
// matches nothing. Backends wrap it, so check with errors.Is.
var ErrNotFound = errors.New("memory not found")

// Record is the persisted shape of a character memory.
type Record struct {
	// ID is the opaque unique identifier (minted by the client facade).
	ID string `json:"id"`

	// CharacterID identifies the character the memory belongs to.
	CharacterID string `json:"character_id"`

	// Content is the memory statement.
	Content string `json:"content"`

	// Category is the memory category (core, episodic, semantic, ...).
	Category string `json:"category"`

	// Importance is the salience in [0,1], updated by decay runs.
	Importance float64 `json:"importance"`

	// Embedding is the stored content embedding, if one was generated.
	Embedding []float64 `json:"embedding,omitempty"`

	// Metadata is the open metadata bag as stored by callers.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// AccessCount counts reads of this memory.
	AccessCount int `json:"access_count"`

	// CreatedAt is when the memory was formed.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the row was last written.
	UpdatedAt time.Time `json:"updated_at"`
}

// ListOptions filters and pages List calls.
type ListOptions struct {
	// Category restricts results to one category when non-empty.
	Category string

	// Limit caps the number of rows returned; zero means no cap.
	Limit int

	// Offset skips rows for pagination.
	Offset int
}

// MemoryStore is the persistence interface for character memories.
//
// All methods take a context first and return wrapped errors; rows are
// always scoped to a character.
type MemoryStore interface {
	// Insert stores a new memory row.
	Insert(ctx context.Context, rec *Record) error

	// Get returns one memory by ID.
	Get(ctx context.Context, characterID, id string) (*Record, error)

	// List returns a character's memories, most recent first.
	List(ctx context.Context, characterID string, opts *ListOptions) ([]*Record, error)

	// UpdateImportance persists a decayed importance value.
	UpdateImportance(ctx context.Context, characterID, id string, importance float64) error

	// UpdateMetadata replaces a memory's metadata bag (used to persist
	// conflict annotations).
	UpdateMetadata(ctx context.Context, characterID, id string, metadata map[string]interface{}) error

	// IncrementAccess bumps the access counter of the given memories.
	IncrementAccess(ctx context.Context, characterID string, ids []string) error

	// Delete removes one memory.
	Delete(ctx context.Context, characterID, id string) error

	// DeleteAll removes every memory of a character.
	DeleteAll(ctx context.Context, characterID string) error

	// Close releases the underlying connection.
	Close() error
}
