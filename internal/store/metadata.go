package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const metadataSchema = `
CREATE TABLE IF NOT EXISTS documents (
	doc_id       TEXT PRIMARY KEY,
	file_path    TEXT UNIQUE NOT NULL,
	title        TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	modified_at  TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	metadata     TEXT
);

CREATE TABLE IF NOT EXISTS chunks (
	chunk_id    TEXT PRIMARY KEY,
	doc_id      TEXT NOT NULL,
	content     TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	start_pos   INTEGER NOT NULL,
	end_pos     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tags (
	tag_id   INTEGER PRIMARY KEY AUTOINCREMENT,
	doc_id   TEXT NOT NULL,
	tag_name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS backlinks (
	link_id       INTEGER PRIMARY KEY AUTOINCREMENT,
	source_doc_id TEXT NOT NULL,
	target_page   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(doc_id);
CREATE INDEX IF NOT EXISTS idx_tags_doc ON tags(doc_id);
CREATE INDEX IF NOT EXISTS idx_tags_name ON tags(tag_name);
CREATE INDEX IF NOT EXISTS idx_backlinks_source ON backlinks(source_doc_id);
CREATE INDEX IF NOT EXISTS idx_backlinks_target ON backlinks(target_page);
`

// MetadataStore persists documents, chunks, tags, and backlinks.
type MetadataStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

var _ interface{ Close() error } = (*MetadataStore)(nil)

// NewMetadataStore opens (creating if needed) the SQLite database at path.
func NewMetadataStore(path string) (*MetadataStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open metadata db: %w", err)
	}

	// modernc.org/sqlite serializes access; a single connection avoids
	// SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-65536",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(metadataSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create metadata schema: %w", err)
	}

	return &MetadataStore{db: db}, nil
}

// UpsertDocument inserts or replaces a document row.
func (m *MetadataStore) UpsertDocument(ctx context.Context, doc *Document) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("metadata store is closed")
	}

	metaJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal document metadata: %w", err)
	}

	_, err = m.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO documents
			(doc_id, file_path, title, created_at, modified_at, content_hash, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.DocID, doc.FilePath, doc.Title,
		doc.CreatedAt.Format(time.RFC3339Nano),
		doc.ModifiedAt.Format(time.RFC3339Nano),
		doc.ContentHash, string(metaJSON),
	)
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", doc.DocID, err)
	}
	return nil
}

// ReplaceChunks replaces all chunks of a document in one transaction.
func (m *MetadataStore) ReplaceChunks(ctx context.Context, docID string, chunks []*Chunk) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("metadata store is closed")
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunk tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE doc_id = ?", docID); err != nil {
		return fmt.Errorf("clear chunks for %s: %w", docID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (chunk_id, doc_id, content, chunk_index, start_pos, end_pos)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx,
			c.ChunkID, c.DocID, c.Content, c.ChunkIndex, c.StartPos, c.EndPos); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ChunkID, err)
		}
	}

	return tx.Commit()
}

// ReplaceTags replaces the tag set of a document.
func (m *MetadataStore) ReplaceTags(ctx context.Context, docID string, tags []string) error {
	return m.replaceRows(ctx,
		"DELETE FROM tags WHERE doc_id = ?",
		"INSERT INTO tags (doc_id, tag_name) VALUES (?, ?)",
		docID, tags)
}

// ReplaceBacklinks replaces the outgoing links of a document.
func (m *MetadataStore) ReplaceBacklinks(ctx context.Context, docID string, targets []string) error {
	return m.replaceRows(ctx,
		"DELETE FROM backlinks WHERE source_doc_id = ?",
		"INSERT INTO backlinks (source_doc_id, target_page) VALUES (?, ?)",
		docID, targets)
}

func (m *MetadataStore) replaceRows(ctx context.Context, deleteSQL, insertSQL, docID string, values []string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("metadata store is closed")
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, deleteSQL, docID); err != nil {
		return fmt.Errorf("clear rows for %s: %w", docID, err)
	}
	for _, v := range values {
		if _, err := tx.ExecContext(ctx, insertSQL, docID, v); err != nil {
			return fmt.Errorf("insert row for %s: %w", docID, err)
		}
	}
	return tx.Commit()
}

// DocumentByID returns a document, or nil if it does not exist.
func (m *MetadataStore) DocumentByID(ctx context.Context, docID string) (*Document, error) {
	return m.queryDocument(ctx, "doc_id = ?", docID)
}

// DocumentByPath returns a document by file path, or nil.
func (m *MetadataStore) DocumentByPath(ctx context.Context, path string) (*Document, error) {
	return m.queryDocument(ctx, "file_path = ?", path)
}

func (m *MetadataStore) queryDocument(ctx context.Context, where string, arg any) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	row := m.db.QueryRowContext(ctx, `
		SELECT doc_id, file_path, title, created_at, modified_at, content_hash, metadata
		FROM documents WHERE `+where, arg)

	var doc Document
	var created, modified, metaJSON string
	err := row.Scan(&doc.DocID, &doc.FilePath, &doc.Title, &created, &modified,
		&doc.ContentHash, &metaJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query document: %w", err)
	}

	if doc.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if doc.ModifiedAt, err = time.Parse(time.RFC3339Nano, modified); err != nil {
		return nil, fmt.Errorf("parse modified_at: %w", err)
	}
	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("parse document metadata: %w", err)
		}
	}

	return &doc, nil
}

// ChunkByID returns a chunk, or nil if it does not exist.
func (m *MetadataStore) ChunkByID(ctx context.Context, chunkID string) (*Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	row := m.db.QueryRowContext(ctx, `
		SELECT chunk_id, doc_id, content, chunk_index, start_pos, end_pos
		FROM chunks WHERE chunk_id = ?`, chunkID)

	var c Chunk
	err := row.Scan(&c.ChunkID, &c.DocID, &c.Content, &c.ChunkIndex, &c.StartPos, &c.EndPos)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query chunk %s: %w", chunkID, err)
	}
	return &c, nil
}

// ChunksByDoc returns a document's chunks ordered by chunk index.
func (m *MetadataStore) ChunksByDoc(ctx context.Context, docID string) ([]*Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT chunk_id, doc_id, content, chunk_index, start_pos, end_pos
		FROM chunks WHERE doc_id = ? ORDER BY chunk_index`, docID)
	if err != nil {
		return nil, fmt.Errorf("query chunks for %s: %w", docID, err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ChunkID, &c.DocID, &c.Content,
			&c.ChunkIndex, &c.StartPos, &c.EndPos); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

// TagsForDoc returns the tags attached to a document.
func (m *MetadataStore) TagsForDoc(ctx context.Context, docID string) ([]string, error) {
	return m.queryStrings(ctx,
		"SELECT tag_name FROM tags WHERE doc_id = ?", docID)
}

// BacklinksForDoc returns the pages a document links to.
func (m *MetadataStore) BacklinksForDoc(ctx context.Context, docID string) ([]string, error) {
	return m.queryStrings(ctx,
		"SELECT target_page FROM backlinks WHERE source_doc_id = ?", docID)
}

// DocumentsByTag returns the IDs of documents carrying a tag.
func (m *MetadataStore) DocumentsByTag(ctx context.Context, tag string) ([]string, error) {
	return m.queryStrings(ctx,
		"SELECT DISTINCT doc_id FROM tags WHERE tag_name = ?", tag)
}

// DocumentsLinkingTo returns the IDs of documents linking to a page.
func (m *MetadataStore) DocumentsLinkingTo(ctx context.Context, page string) ([]string, error) {
	return m.queryStrings(ctx,
		"SELECT DISTINCT source_doc_id FROM backlinks WHERE target_page = ?", page)
}

func (m *MetadataStore) queryStrings(ctx context.Context, query string, arg any) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	rows, err := m.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Stats returns document, chunk, and distinct tag counts.
func (m *MetadataStore) Stats(ctx context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Stats{}, fmt.Errorf("metadata store is closed")
	}

	var s Stats
	row := m.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM documents),
			(SELECT COUNT(*) FROM chunks),
			(SELECT COUNT(DISTINCT tag_name) FROM tags)`)
	if err := row.Scan(&s.TotalDocuments, &s.TotalChunks, &s.TotalTags); err != nil {
		return Stats{}, fmt.Errorf("query stats: %w", err)
	}
	return s, nil
}

// Reset deletes all rows. Used before a full index rebuild.
func (m *MetadataStore) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("metadata store is closed")
	}

	for _, table := range []string{"documents", "chunks", "tags", "backlinks"} {
		if _, err := m.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (m *MetadataStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}
