package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

const cacheSchema = `
CREATE TABLE IF NOT EXISTS embedding_cache (
	content_hash TEXT NOT NULL,
	model        TEXT NOT NULL,
	embedding    BLOB NOT NULL,
	created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (content_hash, model)
);

CREATE INDEX IF NOT EXISTS idx_cache_lookup ON embedding_cache(content_hash, model);
`

// EmbeddingCache is a persistent text-to-vector cache keyed by the
// sha256 of the text plus the model name. It makes index rebuilds
// cheap when most content is unchanged.
type EmbeddingCache struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// NewEmbeddingCache opens (creating if needed) the cache database at path.
func NewEmbeddingCache(path string) (*EmbeddingCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}

	return &EmbeddingCache{db: db}, nil
}

// hashText returns the cache key for a text.
func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// GetBatch looks up vectors for texts in one query. The result has one
// entry per input text in input order; misses are nil.
func (c *EmbeddingCache) GetBatch(ctx context.Context, texts []string, model string) ([][]float32, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, fmt.Errorf("embedding cache is closed")
	}
	if len(texts) == 0 {
		return nil, nil
	}

	hashes := make([]string, len(texts))
	args := make([]any, 0, len(texts)+1)
	for i, text := range texts {
		hashes[i] = hashText(text)
		args = append(args, hashes[i])
	}
	args = append(args, model)

	query := fmt.Sprintf(
		"SELECT content_hash, embedding FROM embedding_cache WHERE content_hash IN (%s) AND model = ?",
		strings.TrimSuffix(strings.Repeat("?,", len(texts)), ","))

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query embedding cache: %w", err)
	}
	defer rows.Close()

	byHash := make(map[string][]float32)
	for rows.Next() {
		var hash string
		var blob []byte
		if err := rows.Scan(&hash, &blob); err != nil {
			return nil, fmt.Errorf("scan cached embedding: %w", err)
		}
		var vec []float32
		if err := json.Unmarshal(blob, &vec); err != nil {
			return nil, fmt.Errorf("decode cached embedding: %w", err)
		}
		byHash[hash] = vec
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for i, hash := range hashes {
		out[i] = byHash[hash]
	}
	return out, nil
}

// SetBatch stores vectors for texts in one transaction.
func (c *EmbeddingCache) SetBatch(ctx context.Context, texts []string, vectors [][]float32, model string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return fmt.Errorf("embedding cache is closed")
	}
	if len(texts) != len(vectors) {
		return fmt.Errorf("texts and vectors length mismatch: %d vs %d", len(texts), len(vectors))
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cache tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO embedding_cache (content_hash, model, embedding)
		VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare cache insert: %w", err)
	}
	defer stmt.Close()

	for i, text := range texts {
		blob, err := json.Marshal(vectors[i])
		if err != nil {
			return fmt.Errorf("encode embedding: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, hashText(text), model, blob); err != nil {
			return fmt.Errorf("insert cached embedding: %w", err)
		}
	}

	return tx.Commit()
}

// Stats returns the number of cached entries per model.
func (c *EmbeddingCache) Stats(ctx context.Context) (map[string]int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, fmt.Errorf("embedding cache is closed")
	}

	rows, err := c.db.QueryContext(ctx,
		"SELECT model, COUNT(*) FROM embedding_cache GROUP BY model")
	if err != nil {
		return nil, fmt.Errorf("query cache stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var model string
		var count int
		if err := rows.Scan(&model, &count); err != nil {
			return nil, fmt.Errorf("scan cache stats: %w", err)
		}
		stats[model] = count
	}
	return stats, rows.Err()
}

// Clear deletes cached entries, optionally restricted to one model.
// It returns the number of deleted rows.
func (c *EmbeddingCache) Clear(ctx context.Context, model string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, fmt.Errorf("embedding cache is closed")
	}

	var res sql.Result
	var err error
	if model == "" {
		res, err = c.db.ExecContext(ctx, "DELETE FROM embedding_cache")
	} else {
		res, err = c.db.ExecContext(ctx, "DELETE FROM embedding_cache WHERE model = ?", model)
	}
	if err != nil {
		return 0, fmt.Errorf("clear embedding cache: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database.
func (c *EmbeddingCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.db.Close()
}
