// Package postgres provides the Postgres-backed Store implementation.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/watchpoint/pagewatch/internal/capture"
)

// ErrPageNotFound is returned when no page matches the requested ID.
var ErrPageNotFound = errors.New("page not found")

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Store persists pages, capture records, and artifact sets in Postgres.
//
// Expected schema:
//
//	CREATE TABLE pages (
//	    id TEXT PRIMARY KEY,
//	    site_id TEXT NOT NULL,
//	    url TEXT NOT NULL,
//	    viewport TEXT NOT NULL,
//	    status TEXT NOT NULL,
//	    version INT NOT NULL,
//	    last_seen TIMESTAMPTZ,
//	    cached_text TEXT NOT NULL DEFAULT '',
//	    tags JSONB,
//	    pii_detected BOOLEAN NOT NULL DEFAULT FALSE,
//	    UNIQUE (site_id, url, viewport)
//	);
//
//	CREATE TABLE capture_records (
//	    id TEXT PRIMARY KEY,
//	    page_id TEXT NOT NULL REFERENCES pages(id),
//	    created_at TIMESTAMPTZ NOT NULL,
//	    etag TEXT NOT NULL DEFAULT '',
//	    last_modified TEXT NOT NULL DEFAULT '',
//	    content_hash TEXT NOT NULL,
//	    dom_hash TEXT NOT NULL,
//	    perceptual_hash BIGINT NOT NULL,
//	    width INT NOT NULL,
//	    height INT NOT NULL,
//	    diff_score DOUBLE PRECISION NOT NULL,
//	    changed BOOLEAN NOT NULL
//	);
//
//	CREATE TABLE artifact_sets (
//	    record_id TEXT PRIMARY KEY REFERENCES capture_records(id),
//	    page_id TEXT NOT NULL,
//	    lossless_uri TEXT NOT NULL,
//	    web_uri TEXT NOT NULL,
//	    thumbnail_uri TEXT NOT NULL,
//	    content_hash TEXT NOT NULL,
//	    perceptual_hash BIGINT NOT NULL
//	);
type Store struct {
	pool pool
}

// New connects a pool and returns the store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// UpsertPage inserts the page or, on a (site_id, url, viewport) conflict,
// bumps the version and resets status to pending.
func (s *Store) UpsertPage(ctx context.Context, page capture.MonitoredPage) (capture.MonitoredPage, error) {
	if page.ID == "" {
		return capture.MonitoredPage{}, fmt.Errorf("page id is required")
	}
	query := `
INSERT INTO pages (id, site_id, url, viewport, status, version, last_seen, cached_text, tags, pii_detected)
VALUES ($1, $2, $3, $4, 'pending', 1, $5, '', 'null'::jsonb, FALSE)
ON CONFLICT (site_id, url, viewport) DO UPDATE
SET version = pages.version + 1, status = 'pending'
RETURNING id, site_id, url, viewport, status, version`

	row := s.pool.QueryRow(ctx, query, page.ID, page.SiteID, page.URL, string(page.Viewport), page.LastSeen)
	var out capture.MonitoredPage
	var viewport, status string
	if err := row.Scan(&out.ID, &out.SiteID, &out.URL, &viewport, &status, &out.Version); err != nil {
		return capture.MonitoredPage{}, fmt.Errorf("upsert page: %w", err)
	}
	out.Viewport = capture.ViewportClass(viewport)
	out.Status = capture.PageStatus(status)
	return out, nil
}

// GetPage fetches a page by ID.
func (s *Store) GetPage(ctx context.Context, pageID string) (capture.MonitoredPage, error) {
	query := `
SELECT id, site_id, url, viewport, status, version, COALESCE(last_seen, 'epoch'::timestamptz),
       cached_text, COALESCE(tags, 'null'::jsonb), pii_detected
FROM pages WHERE id = $1`

	row := s.pool.QueryRow(ctx, query, pageID)
	var page capture.MonitoredPage
	var viewport, status string
	var tagsJSON []byte
	err := row.Scan(
		&page.ID, &page.SiteID, &page.URL, &viewport, &status, &page.Version,
		&page.LastSeen, &page.CachedText, &tagsJSON, &page.PIIDetected,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return capture.MonitoredPage{}, ErrPageNotFound
	}
	if err != nil {
		return capture.MonitoredPage{}, fmt.Errorf("get page: %w", err)
	}
	page.Viewport = capture.ViewportClass(viewport)
	page.Status = capture.PageStatus(status)
	if err := json.Unmarshal(tagsJSON, &page.Tags); err != nil {
		return capture.MonitoredPage{}, fmt.Errorf("decode tags: %w", err)
	}
	return page, nil
}

// UpdatePageStatus writes the status field as a single-record update.
func (s *Store) UpdatePageStatus(ctx context.Context, pageID string, status capture.PageStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE pages SET status = $2 WHERE id = $1`, pageID, string(status))
	if err != nil {
		return fmt.Errorf("update page status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPageNotFound
	}
	return nil
}

// UpdatePageMetadata writes the post-capture metadata as a single-record
// update, leaving status alone.
func (s *Store) UpdatePageMetadata(ctx context.Context, pageID string, meta capture.PageMetadata) error {
	tagsJSON, err := json.Marshal(meta.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	query := `
UPDATE pages SET cached_text = $2, tags = $3, pii_detected = $4, last_seen = $5
WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, pageID, meta.CachedText, tagsJSON, meta.PIIDetected, meta.LastSeen)
	if err != nil {
		return fmt.Errorf("update page metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPageNotFound
	}
	return nil
}

const recordColumns = `id, page_id, created_at, etag, last_modified, content_hash, dom_hash,
perceptual_hash, width, height, diff_score, changed`

// LatestRecord returns the most recent capture record for the page, or nil
// when the page has no history yet.
func (s *Store) LatestRecord(ctx context.Context, pageID string) (*capture.CaptureRecord, error) {
	query := `SELECT ` + recordColumns + `
FROM capture_records WHERE page_id = $1 ORDER BY created_at DESC LIMIT 1`
	row := s.pool.QueryRow(ctx, query, pageID)
	record, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest record: %w", err)
	}
	return &record, nil
}

// ListRecords returns the page's capture history ordered by creation time.
func (s *Store) ListRecords(ctx context.Context, pageID string) ([]capture.CaptureRecord, error) {
	query := `SELECT ` + recordColumns + `
FROM capture_records WHERE page_id = $1 ORDER BY created_at ASC`
	rows, err := s.pool.Query(ctx, query, pageID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []capture.CaptureRecord
	for rows.Next() {
		record, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan record: %w", scanErr)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// SaveCapture inserts the record and its artifact set in one transaction so
// readers see both or neither.
func (s *Store) SaveCapture(ctx context.Context, record capture.CaptureRecord, artifacts capture.ArtifactSet) error {
	if record.ID == "" {
		return fmt.Errorf("record id is required")
	}
	if artifacts.RecordID != record.ID {
		return fmt.Errorf("artifact set does not belong to record")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save capture: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	recordQuery := `
INSERT INTO capture_records (` + recordColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	if _, err := tx.Exec(ctx, recordQuery,
		record.ID,
		record.PageID,
		record.CreatedAt,
		record.ETag,
		record.LastModified,
		record.ContentHash,
		record.DOMHash,
		int64(record.Perceptual),
		record.Width,
		record.Height,
		record.DiffScore,
		record.Changed,
	); err != nil {
		return fmt.Errorf("insert capture record: %w", err)
	}

	artifactQuery := `
INSERT INTO artifact_sets (record_id, page_id, lossless_uri, web_uri, thumbnail_uri, content_hash, perceptual_hash)
VALUES ($1,$2,$3,$4,$5,$6,$7)`
	if _, err := tx.Exec(ctx, artifactQuery,
		artifacts.RecordID,
		artifacts.PageID,
		artifacts.LosslessURI,
		artifacts.WebURI,
		artifacts.ThumbnailURI,
		artifacts.ContentHash,
		int64(artifacts.Perceptual),
	); err != nil {
		return fmt.Errorf("insert artifact set: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save capture: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (capture.CaptureRecord, error) {
	var record capture.CaptureRecord
	var perceptual int64
	err := row.Scan(
		&record.ID,
		&record.PageID,
		&record.CreatedAt,
		&record.ETag,
		&record.LastModified,
		&record.ContentHash,
		&record.DOMHash,
		&perceptual,
		&record.Width,
		&record.Height,
		&record.DiffScore,
		&record.Changed,
	)
	if err != nil {
		return capture.CaptureRecord{}, err
	}
	record.Perceptual = uint64(perceptual)
	return record, nil
}
