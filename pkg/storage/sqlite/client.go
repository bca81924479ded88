// Package sqlite implements storage.MemoryStore on SQLite.
//
// SQLite is the zero-dependency local backend: embeddings and metadata are
// stored as JSON strings in TEXT columns. Suitable for development and
// single-process deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/personaforge/charmem-go/pkg/storage"
)

// Config configures a SQLite memory store.
type Config struct {
	// DBPath is the path to the database file.
	DBPath string

	// TableName is the memories table name. Empty uses "memories".
	TableName string
}

// Client implements storage.MemoryStore on SQLite.
type Client struct {
	db    *sql.DB
	table string
}

// NewClient opens (creating if needed) the SQLite database and ensures the
// memories table exists.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.DBPath == "" {
		return nil, fmt.Errorf("sqlite: NewClient: db path is required")
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("sqlite: NewClient: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("sqlite: NewClient: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("sqlite: NewClient: %w", err)
	}

	table := cfg.TableName
	if table == "" {
		table = "memories"
	}

	c := &Client{db: db, table: table}
	if err := c.initTables(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

// initTables creates the memories table and its character index.
func (c *Client) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			character_id TEXT NOT NULL,
			content TEXT NOT NULL,
			category TEXT NOT NULL,
			importance REAL NOT NULL DEFAULT 0.5,
			embedding TEXT,
			metadata TEXT,
			access_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`, c.table)
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("sqlite: initTables: %w", err)
	}

	index := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS idx_%s_character ON %s(character_id, category)`,
		c.table, c.table,
	)
	if _, err := c.db.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("sqlite: initTables: %w", err)
	}
	return nil
}

// Insert stores a new memory row.
func (c *Client) Insert(ctx context.Context, rec *storage.Record) error {
	embeddingJSON, metadataJSON, err := encodeRecord(rec)
	if err != nil {
		return fmt.Errorf("sqlite: Insert: %w", err)
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, character_id, content, category, importance, embedding, metadata, access_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.table)

	_, err = c.db.ExecContext(ctx, query,
		rec.ID, rec.CharacterID, rec.Content, rec.Category, rec.Importance,
		embeddingJSON, metadataJSON, rec.AccessCount, createdAt, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: Insert: %w", err)
	}
	return nil
}

// Get returns one memory by ID.
func (c *Client) Get(ctx context.Context, characterID, id string) (*storage.Record, error) {
	query := fmt.Sprintf(`
		SELECT id, character_id, content, category, importance, embedding, metadata, access_count, created_at, updated_at
		FROM %s WHERE character_id = ? AND id = ?
	`, c.table)

	rec, err := scanRecord(c.db.QueryRowContext(ctx, query, characterID, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sqlite: Get: memory %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: Get: %w", err)
	}
	return rec, nil
}

// List returns a character's memories, most recent first.
func (c *Client) List(ctx context.Context, characterID string, opts *storage.ListOptions) ([]*storage.Record, error) {
	if opts == nil {
		opts = &storage.ListOptions{}
	}

	where := "WHERE character_id = ?"
	args := []interface{}{characterID}
	if opts.Category != "" {
		where += " AND category = ?"
		args = append(args, opts.Category)
	}

	query := fmt.Sprintf(`
		SELECT id, character_id, content, category, importance, embedding, metadata, access_count, created_at, updated_at
		FROM %s %s ORDER BY created_at DESC
	`, c.table, where)
	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: List: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*storage.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: List: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: List: %w", err)
	}
	return records, nil
}

// UpdateImportance persists a decayed importance value.
func (c *Client) UpdateImportance(ctx context.Context, characterID, id string, importance float64) error {
	query := fmt.Sprintf(
		`UPDATE %s SET importance = ?, updated_at = ? WHERE character_id = ? AND id = ?`, c.table,
	)
	return c.execOne(ctx, "UpdateImportance", query, importance, time.Now(), characterID, id)
}

// UpdateMetadata replaces a memory's metadata bag.
func (c *Client) UpdateMetadata(ctx context.Context, characterID, id string, metadata map[string]interface{}) error {
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("sqlite: UpdateMetadata: %w", err)
	}
	query := fmt.Sprintf(
		`UPDATE %s SET metadata = ?, updated_at = ? WHERE character_id = ? AND id = ?`, c.table,
	)
	return c.execOne(ctx, "UpdateMetadata", query, string(metadataJSON), time.Now(), characterID, id)
}

// IncrementAccess bumps the access counter of the given memories.
func (c *Client) IncrementAccess(ctx context.Context, characterID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(
		`UPDATE %s SET access_count = access_count + 1 WHERE character_id = ? AND id = ?`, c.table,
	)
	for _, id := range ids {
		if _, err := c.db.ExecContext(ctx, query, characterID, id); err != nil {
			return fmt.Errorf("sqlite: IncrementAccess: %w", err)
		}
	}
	return nil
}

// Delete removes one memory.
func (c *Client) Delete(ctx context.Context, characterID, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE character_id = ? AND id = ?`, c.table)
	return c.execOne(ctx, "Delete", query, characterID, id)
}

// DeleteAll removes every memory of a character.
func (c *Client) DeleteAll(ctx context.Context, characterID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE character_id = ?`, c.table)
	if _, err := c.db.ExecContext(ctx, query, characterID); err != nil {
		return fmt.Errorf("sqlite: DeleteAll: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// execOne runs a statement that must affect exactly one row.
func (c *Client) execOne(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: %s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: %s: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("sqlite: %s: %w", op, storage.ErrNotFound)
	}
	return nil
}

// encodeRecord marshals the embedding and metadata columns.
func encodeRecord(rec *storage.Record) (embeddingJSON, metadataJSON string, err error) {
	embedding, err := json.Marshal(rec.Embedding)
	if err != nil {
		return "", "", err
	}
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return "", "", err
	}
	return string(embedding), string(metadata), nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanRecord scans one memory row.
func scanRecord(scanner rowScanner) (*storage.Record, error) {
	var rec storage.Record
	var embeddingStr, metadataStr sql.NullString

	err := scanner.Scan(
		&rec.ID, &rec.CharacterID, &rec.Content, &rec.Category, &rec.Importance,
		&embeddingStr, &metadataStr, &rec.AccessCount, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if embeddingStr.Valid && embeddingStr.String != "" {
		if err := json.Unmarshal([]byte(embeddingStr.String), &rec.Embedding); err != nil {
			return nil, fmt.Errorf("parse embedding: %w", err)
		}
	}
	if metadataStr.Valid && metadataStr.String != "" && metadataStr.String != "null" {
		if err := json.Unmarshal([]byte(metadataStr.String), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("parse metadata: %w", err)
		}
	}
	return &rec, nil
}
