// Package catalog persists chunk metadata: one row per
// (episode_id, chunk_index), ordered retrieval, and all-or-nothing chunk
// set replacement.
package catalog

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/awsl-dev/vidstream/internal/apperr"
	"github.com/awsl-dev/vidstream/internal/models"
)

var tracer = otel.Tracer("vidstream-catalog")

// Store is the MySQL-backed chunk catalog.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// New opens a connection pool against dsn and verifies it.
func New(dsn string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	return &Store{db: db, logger: logger}, nil
}

// NewWithDB wraps an existing handle. Used by tests.
func NewWithDB(db *sql.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the catalog tables if they do not exist. The
// unique key on (episode_id, chunk_index) backs ordered retrieval and
// rejects duplicate indexes at the database level.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS episodes (
			id BIGINT NOT NULL AUTO_INCREMENT,
			title VARCHAR(255) NOT NULL,
			episode_number INT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (id)
		)`,
		`CREATE TABLE IF NOT EXISTS video_chunks (
			id BIGINT NOT NULL AUTO_INCREMENT,
			episode_id BIGINT NOT NULL,
			chunk_index INT NOT NULL,
			file_id VARCHAR(500) NOT NULL,
			chunk_size BIGINT NOT NULL,
			PRIMARY KEY (id),
			UNIQUE KEY idx_episode_chunk (episode_id, chunk_index)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	s.logger.Debug("catalog schema ensured")
	return nil
}

// EpisodeExists reports whether an episode row is present.
func (s *Store) EpisodeExists(ctx context.Context, episodeID int64) (bool, error) {
	ctx, span := tracer.Start(ctx, "catalog.episode_exists",
		trace.WithAttributes(attribute.Int64("episode_id", episodeID)),
	)
	defer span.End()

	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM episodes WHERE id = ?`, episodeID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("query episode: %w", err)
	}
	return true, nil
}

// GetEpisode loads one episode, or apperr.ErrNotFound.
func (s *Store) GetEpisode(ctx context.Context, episodeID int64) (*models.Episode, error) {
	ctx, span := tracer.Start(ctx, "catalog.get_episode",
		trace.WithAttributes(attribute.Int64("episode_id", episodeID)),
	)
	defer span.End()

	var ep models.Episode
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, episode_number, created_at FROM episodes WHERE id = ?`, episodeID,
	).Scan(&ep.ID, &ep.Title, &ep.EpisodeNumber, &ep.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("episode %d: %w", episodeID, apperr.ErrNotFound)
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query episode: %w", err)
	}
	return &ep, nil
}

// ListChunks returns an episode's chunks ordered by chunk_index.
func (s *Store) ListChunks(ctx context.Context, episodeID int64) ([]models.ChunkRecord, error) {
	ctx, span := tracer.Start(ctx, "catalog.list_chunks",
		trace.WithAttributes(attribute.Int64("episode_id", episodeID)),
	)
	defer span.End()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, episode_id, chunk_index, file_id, chunk_size
		 FROM video_chunks
		 WHERE episode_id = ?
		 ORDER BY chunk_index ASC`, episodeID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.ChunkRecord
	for rows.Next() {
		var c models.ChunkRecord
		if err := rows.Scan(&c.ID, &c.EpisodeID, &c.ChunkIndex, &c.FileID, &c.ChunkSize); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	span.SetAttributes(attribute.Int("chunk_count", len(chunks)))
	return chunks, nil
}

// DeleteChunks removes an episode's whole chunk set. Used when the
// owning episode is deleted.
func (s *Store) DeleteChunks(ctx context.Context, episodeID int64) error {
	ctx, span := tracer.Start(ctx, "catalog.delete_chunks",
		trace.WithAttributes(attribute.Int64("episode_id", episodeID)),
	)
	defer span.End()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM video_chunks WHERE episode_id = ?`, episodeID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

// ReplaceTx stages a full replacement of one episode's chunk set inside
// a single transaction. The old rows are deleted up front and new rows
// staged one at a time; readers keep seeing the old set until Commit.
type ReplaceTx struct {
	tx        *sql.Tx
	episodeID int64
	done      bool
}

// BeginReplace opens the replacement transaction and deletes the old
// chunk set within it.
func (s *Store) BeginReplace(ctx context.Context, episodeID int64) (*ReplaceTx, error) {
	ctx, span := tracer.Start(ctx, "catalog.begin_replace",
		trace.WithAttributes(attribute.Int64("episode_id", episodeID)),
	)
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM video_chunks WHERE episode_id = ?`, episodeID); err != nil {
		tx.Rollback()
		span.RecordError(err)
		return nil, fmt.Errorf("delete old chunks: %w", err)
	}
	return &ReplaceTx{tx: tx, episodeID: episodeID}, nil
}

// Stage inserts one new chunk record into the pending set.
func (r *ReplaceTx) Stage(ctx context.Context, rec models.ChunkRecord) error {
	_, err := r.tx.ExecContext(ctx,
		`INSERT INTO video_chunks (episode_id, chunk_index, file_id, chunk_size) VALUES (?, ?, ?, ?)`,
		r.episodeID, rec.ChunkIndex, rec.FileID, rec.ChunkSize)
	if err != nil {
		return fmt.Errorf("insert chunk %d: %w", rec.ChunkIndex, err)
	}
	return nil
}

// Commit publishes the new chunk set atomically.
func (r *ReplaceTx) Commit() error {
	r.done = true
	if err := r.tx.Commit(); err != nil {
		return fmt.Errorf("commit chunk set: %w", err)
	}
	return nil
}

// Rollback discards the pending set. Safe to defer after Commit.
func (r *ReplaceTx) Rollback() error {
	if r.done {
		return nil
	}
	r.done = true
	return r.tx.Rollback()
}
