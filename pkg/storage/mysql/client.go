// Package mysql implements storage.MemoryStore on MySQL-compatible
// databases.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/personaforge/charmem-go/pkg/storage"
)

// Config configures a MySQL memory store.
type Config struct {
	// Host is the server host. Empty uses 127.0.0.1.
	Host string

	// Port is the server port. Zero uses 3306.
	Port int

	// User is the database user.
	User string

	// Password is the database password.
	Password string

	// DBName is the database name.
	DBName string

	// TableName is the memories table name. Empty uses "memories".
	TableName string
}

// Client implements storage.MemoryStore on MySQL.
type Client struct {
	db    *sql.DB
	table string
}

// NewClient connects to MySQL and ensures the memories table exists.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.DBName == "" {
		return nil, fmt.Errorf("mysql: NewClient: db name is required")
	}

	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port == 0 {
		port = 3306
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		cfg.User, cfg.Password, host, port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: NewClient: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("mysql: NewClient: %w", err)
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

func (c *Client) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(64) PRIMARY KEY,
			character_id VARCHAR(64) NOT NULL,
			content TEXT NOT NULL,
			category VARCHAR(64) NOT NULL,
			importance DOUBLE NOT NULL DEFAULT 0.5,
			embedding JSON,
			metadata JSON,
			access_count INT NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_character (character_id, category)
		)
	`, c.table)
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("mysql: initTables: %w", err)
	}
	return nil
}

// Insert stores a new memory row.
func (c *Client) Insert(ctx context.Context, rec *storage.Record) error {
	embeddingJSON, err := json.Marshal(rec.Embedding)
	if err != nil {
		return fmt.Errorf("mysql: Insert: %w", err)
	}
	metadataJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("mysql: Insert: %w", err)
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
		string(embeddingJSON), string(metadataJSON), rec.AccessCount, createdAt, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("mysql: Insert: %w", err)
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
		return nil, fmt.Errorf("mysql: Get: memory %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("mysql: Get: %w", err)
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
		return nil, fmt.Errorf("mysql: List: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*storage.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("mysql: List: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mysql: List: %w", err)
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
		return fmt.Errorf("mysql: UpdateMetadata: %w", err)
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
			return fmt.Errorf("mysql: IncrementAccess: %w", err)
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
		return fmt.Errorf("mysql: DeleteAll: %w", err)
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

func (c *Client) execOne(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("mysql: %s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mysql: %s: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("mysql: %s: %w", op, storage.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

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
