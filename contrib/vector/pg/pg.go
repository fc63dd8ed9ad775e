// Package pg implements vector.Index on PostgreSQL with the pgvector
// extension. All collections share one table keyed by (collection, id).
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	serrors "github.com/sweetpotato0/sensei/errors"
	"github.com/sweetpotato0/sensei/vector"
)

// Index implements vector.Index using PostgreSQL with pgvector.
type Index struct {
	db        *sql.DB
	dimension int
	table     string
}

var _ vector.Index = (*Index)(nil)

// Config holds pgvector configuration
type Config struct {
	// DSN takes precedence over the discrete fields when set.
	DSN       string
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	SSLMode   string
	Dimension int    // Embedding dimension (default: 1536 for OpenAI)
	TableName string // Table name (default: lecture_chunks)
}

// DefaultConfig returns default pgvector configuration
func DefaultConfig() *Config {
	return &Config{
		Host:      "127.0.0.1",
		Port:      5432,
		User:      "postgres",
		DBName:    "sensei",
		SSLMode:   "disable",
		Dimension: 1536,
		TableName: "lecture_chunks",
	}
}

func (c *Config) dsn() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// New connects, enables pgvector and creates the table if needed.
func New(ctx context.Context, config *Config) (*Index, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("pgvector: %w: dimension must be positive", serrors.ErrInvalidInput)
	}
	if config.TableName == "" {
		config.TableName = "lecture_chunks"
	}

	db, err := sql.Open("postgres", config.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	idx := &Index{
		db:        db,
		dimension: config.Dimension,
		table:     pq.QuoteIdentifier(config.TableName),
	}
	if err := idx.setup(ctx, config.TableName); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to setup pgvector: %w", err)
	}
	return idx, nil
}

func (s *Index) setup(ctx context.Context, rawTable string) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTableSQL := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		text TEXT NOT NULL,
		metadata JSONB NOT NULL DEFAULT '{}',
		embedding vector(%d) NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (collection, id)
	)`, s.table, s.dimension)
	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	indexSQL := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)",
		pq.QuoteIdentifier(rawTable+"_embedding_idx"), s.table)
	if _, err := s.db.ExecContext(ctx, indexSQL); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// Upsert implements vector.Index.
func (s *Index) Upsert(ctx context.Context, collection string, embedding *vector.Embedding) error {
	if embedding == nil {
		return fmt.Errorf("embedding cannot be nil")
	}
	if embedding.ID == "" {
		return fmt.Errorf("embedding ID cannot be empty")
	}
	if len(embedding.Vector) != s.dimension {
		return fmt.Errorf("embedding dimension mismatch: expected %d, got %d", s.dimension, len(embedding.Vector))
	}

	meta, err := json.Marshal(embedding.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if embedding.Metadata == nil {
		meta = []byte("{}")
	}

	query := fmt.Sprintf(`
	INSERT INTO %s (collection, id, text, metadata, embedding)
	VALUES ($1, $2, $3, $4::jsonb, $5::vector)
	ON CONFLICT (collection, id) DO UPDATE SET
		text = EXCLUDED.text,
		metadata = EXCLUDED.metadata,
		embedding = EXCLUDED.embedding,
		updated_at = CURRENT_TIMESTAMP
	`, s.table)

	if _, err := s.db.ExecContext(ctx, query, collection, embedding.ID, embedding.Text, string(meta), vectorToString(embedding.Vector)); err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}
	return nil
}

// Query implements vector.Index. Distance is pgvector's cosine distance.
func (s *Index) Query(ctx context.Context, collection string, queryVector []float32, topK int) ([]vector.Hit, error) {
	if len(queryVector) == 0 {
		return nil, fmt.Errorf("query vector cannot be empty")
	}
	if len(queryVector) != s.dimension {
		return nil, fmt.Errorf("query vector dimension mismatch: expected %d, got %d", s.dimension, len(queryVector))
	}
	if topK <= 0 {
		topK = 10
	}

	var exists bool
	existsSQL := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE collection = $1)", s.table)
	if err := s.db.QueryRowContext(ctx, existsSQL, collection).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("collection %s: %w", collection, serrors.ErrNotFound)
	}

	query := fmt.Sprintf(`
	SELECT id, text, metadata, embedding::text, embedding <=> $2::vector AS distance
	FROM %s
	WHERE collection = $1
	ORDER BY distance
	LIMIT $3
	`, s.table)

	rows, err := s.db.QueryContext(ctx, query, collection, vectorToString(queryVector), topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search embeddings: %w", err)
	}
	defer rows.Close()

	hits := make([]vector.Hit, 0, topK)
	for rows.Next() {
		var (
			hit       vector.Hit
			rawMeta   []byte
			vectorStr string
		)
		if err := rows.Scan(&hit.ID, &hit.Text, &rawMeta, &vectorStr, &hit.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		if len(rawMeta) > 0 {
			if err := json.Unmarshal(rawMeta, &hit.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata for %s: %w", hit.ID, err)
			}
		}
		if hit.Vector, err = stringToVector(vectorStr); err != nil {
			return nil, fmt.Errorf("failed to parse vector for embedding %s: %w", hit.ID, err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating embeddings: %w", err)
	}
	return hits, nil
}

// Collections implements vector.Index.
func (s *Index) Collections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT DISTINCT collection FROM %s ORDER BY collection", s.table))
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DeleteCollection removes every chunk of a collection.
func (s *Index) DeleteCollection(ctx context.Context, collection string) error {
	result, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE collection = $1", s.table), collection)
	if err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("collection %s: %w", collection, serrors.ErrNotFound)
	}
	return nil
}

// Close closes the database connection
func (s *Index) Close() error {
	return s.db.Close()
}

func vectorToString(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = strconv.FormatFloat(float64(v), 'g', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func stringToVector(str string) ([]float32, error) {
	str = strings.TrimSpace(str)
	str = strings.TrimPrefix(str, "[")
	str = strings.TrimSuffix(str, "]")
	if str == "" {
		return nil, nil
	}
	parts := strings.Split(str, ",")

	vec := make([]float32, 0, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("failed to parse vector component at index %d: %q", i, part)
		}
		vec = append(vec, float32(v))
	}
	return vec, nil
}
