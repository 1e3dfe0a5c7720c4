// Package postgres provides a PostgreSQL-backed journal store with a
// pgvector semantic index, so "related reflections" queries search by
// meaning rather than by shared words.
//
// The pgvector extension must be available in the target database; [Migrate]
// installs it via CREATE EXTENSION IF NOT EXISTS. Every appended entry is
// embedded through the configured embeddings provider; an embedding failure
// degrades that entry to keyword-invisible rather than failing the append.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/sentirlabs/sentir/internal/journal"
	"github.com/sentirlabs/sentir/pkg/provider/embeddings"
)

// Compile-time interface assertion.
var _ journal.Store = (*Store)(nil)

const ddlEntries = `
CREATE TABLE IF NOT EXISTS journal_entries (
    id         TEXT         PRIMARY KEY,
    role       TEXT         NOT NULL,
    text       TEXT         NOT NULL,
    voice_text TEXT         NOT NULL DEFAULT '',
    symptoms   TEXT[]       NOT NULL DEFAULT '{}',
    citations  JSONB        NOT NULL DEFAULT '[]',
    created_at TIMESTAMPTZ  NOT NULL DEFAULT now(),
    embedding  vector(%d)
);

CREATE INDEX IF NOT EXISTS idx_journal_entries_created_at
    ON journal_entries (created_at);
`

const ddlEmbeddingIndex = `
CREATE INDEX IF NOT EXISTS idx_journal_entries_embedding
    ON journal_entries USING hnsw (embedding vector_cosine_ops);
`

const ddlSettings = `
CREATE TABLE IF NOT EXISTS journal_settings (
    id        INT     PRIMARY KEY CHECK (id = 1),
    voice     TEXT    NOT NULL,
    auto_play BOOLEAN NOT NULL,
    theme     TEXT    NOT NULL
);
`

// Store is the PostgreSQL journal store. All operations are safe for
// concurrent use.
type Store struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
	log      *slog.Logger
}

// NewStore connects to the database at dsn, registers pgvector types on
// every connection and runs Migrate. The embedding column dimension is taken
// from the embedder; changing models over an existing table requires a
// manual schema change.
func NewStore(ctx context.Context, dsn string, embedder embeddings.Provider) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("postgres journal: embedder must not be nil")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres journal: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres journal: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres journal: ping: %w", err)
	}
	if err := Migrate(ctx, pool, embedder.Dimensions()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres journal: migrate: %w", err)
	}

	s := &Store{pool: pool, embedder: embedder, log: slog.Default()}

	// Entries whose embedding failed at append time are invisible to Related;
	// repair them now that the provider is reachable again.
	if n, err := s.Reembed(ctx); err != nil {
		s.log.Warn("re-embedding journal entries failed", "err", err)
	} else if n > 0 {
		s.log.Info("re-embedded journal entries", "count", n)
	}
	return s, nil
}

// reembedBatchSize bounds one EmbedBatch call during backfill.
const reembedBatchSize = 64

// Reembed computes embeddings for entries that have none and returns how many
// were repaired. Entries end up without an embedding when the provider was
// unreachable during Append.
func (s *Store) Reembed(ctx context.Context) (int, error) {
	total := 0
	for {
		const q = `
			SELECT id, text
			FROM   journal_entries
			WHERE  embedding IS NULL
			ORDER  BY created_at
			LIMIT  $1`
		rows, err := s.pool.Query(ctx, q, reembedBatchSize)
		if err != nil {
			return total, fmt.Errorf("postgres journal: reembed: %w", err)
		}
		type pending struct {
			id   string
			text string
		}
		batch, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (pending, error) {
			var p pending
			err := row.Scan(&p.id, &p.text)
			return p, err
		})
		if err != nil {
			return total, fmt.Errorf("postgres journal: reembed: %w", err)
		}
		if len(batch) == 0 {
			return total, nil
		}

		texts := make([]string, len(batch))
		for i, p := range batch {
			texts[i] = p.text
		}
		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return total, fmt.Errorf("postgres journal: reembed batch: %w", err)
		}
		for i, p := range batch {
			vec := pgvector.NewVector(vectors[i])
			if _, err := s.pool.Exec(ctx,
				`UPDATE journal_entries SET embedding = $1 WHERE id = $2`, vec, p.id); err != nil {
				return total, fmt.Errorf("postgres journal: reembed update: %w", err)
			}
			total++
		}
		if len(batch) < reembedBatchSize {
			return total, nil
		}
	}
}

// Migrate ensures the pgvector extension, tables and indexes exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if embeddingDimensions <= 0 {
		return fmt.Errorf("postgres journal: embedding dimensions must be positive, got %d", embeddingDimensions)
	}
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(ddlEntries, embeddingDimensions),
		ddlEmbeddingIndex,
		ddlSettings,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres journal: migrate: %w", err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Append implements journal.Store.
func (s *Store) Append(ctx context.Context, e journal.Entry) (journal.Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	citations, err := json.Marshal(e.Citations)
	if err != nil {
		return journal.Entry{}, fmt.Errorf("postgres journal: marshal citations: %w", err)
	}
	if e.Symptoms == nil {
		e.Symptoms = []string{}
	}

	var embedding *pgvector.Vector
	if vec, err := s.embedder.Embed(ctx, e.Text); err != nil {
		s.log.Warn("embedding journal entry failed", "id", e.ID, "err", err)
	} else {
		v := pgvector.NewVector(vec)
		embedding = &v
	}

	const q = `
		INSERT INTO journal_entries (id, role, text, voice_text, symptoms, citations, created_at, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = s.pool.Exec(ctx, q, e.ID, e.Role, e.Text, e.VoiceText, e.Symptoms, citations, e.CreatedAt, embedding)
	if err != nil {
		return journal.Entry{}, fmt.Errorf("postgres journal: append: %w", err)
	}
	return e, nil
}

// Recent implements journal.Store.
func (s *Store) Recent(ctx context.Context, n int) ([]journal.Entry, error) {
	q := `
		SELECT id, role, text, voice_text, symptoms, citations, created_at
		FROM   journal_entries
		ORDER  BY created_at DESC, id DESC`
	args := []any{}
	if n > 0 {
		q += ` LIMIT $1`
		args = append(args, n)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres journal: recent: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("postgres journal: recent: %w", err)
	}

	// Newest-first from the query; callers expect chronological.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Related implements journal.Store with cosine-distance search over the
// entry embeddings.
func (s *Store) Related(ctx context.Context, query string, limit int) ([]journal.Entry, error) {
	if query == "" || limit <= 0 {
		return nil, nil
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres journal: embed query: %w", err)
	}

	const q = `
		SELECT id, role, text, voice_text, symptoms, citations, created_at
		FROM   journal_entries
		WHERE  embedding IS NOT NULL
		ORDER  BY embedding <=> $1
		LIMIT  $2`
	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(vec), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres journal: related: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("postgres journal: related: %w", err)
	}
	return entries, nil
}

// Clear implements journal.Store. Settings survive.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM journal_entries`); err != nil {
		return fmt.Errorf("postgres journal: clear: %w", err)
	}
	return nil
}

// LoadSettings implements journal.Store.
func (s *Store) LoadSettings(ctx context.Context) (journal.Settings, error) {
	const q = `SELECT voice, auto_play, theme FROM journal_settings WHERE id = 1`
	var set journal.Settings
	err := s.pool.QueryRow(ctx, q).Scan(&set.Voice, &set.AutoPlay, &set.Theme)
	if errors.Is(err, pgx.ErrNoRows) {
		return journal.DefaultSettings(), nil
	}
	if err != nil {
		return journal.Settings{}, fmt.Errorf("postgres journal: load settings: %w", err)
	}
	return set, nil
}

// SaveSettings implements journal.Store.
func (s *Store) SaveSettings(ctx context.Context, set journal.Settings) error {
	const q = `
		INSERT INTO journal_settings (id, voice, auto_play, theme)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
		    voice     = EXCLUDED.voice,
		    auto_play = EXCLUDED.auto_play,
		    theme     = EXCLUDED.theme`
	if _, err := s.pool.Exec(ctx, q, set.Voice, set.AutoPlay, set.Theme); err != nil {
		return fmt.Errorf("postgres journal: save settings: %w", err)
	}
	return nil
}

func scanEntry(row pgx.CollectableRow) (journal.Entry, error) {
	var (
		e         journal.Entry
		citations []byte
	)
	if err := row.Scan(&e.ID, &e.Role, &e.Text, &e.VoiceText, &e.Symptoms, &citations, &e.CreatedAt); err != nil {
		return journal.Entry{}, err
	}
	if err := json.Unmarshal(citations, &e.Citations); err != nil {
		return journal.Entry{}, fmt.Errorf("unmarshal citations: %w", err)
	}
	if len(e.Citations) == 0 {
		e.Citations = nil
	}
	if len(e.Symptoms) == 0 {
		e.Symptoms = nil
	}
	return e, nil
}
