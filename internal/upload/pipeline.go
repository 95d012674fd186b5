// Package upload owns the replace-all-or-nothing chunk ingestion path:
// split the source, put each chunk to the blob store, and publish the new
// chunk set in one transaction so readers never see a mixed or empty
// intermediate state.
package upload

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/awsl-dev/vidstream/internal/apperr"
	"github.com/awsl-dev/vidstream/internal/blob"
	"github.com/awsl-dev/vidstream/internal/catalog"
	"github.com/awsl-dev/vidstream/internal/chunkio"
	"github.com/awsl-dev/vidstream/internal/models"
)

var tracer = otel.Tracer("vidstream-upload")

// Pipeline coordinates splitter, blob store and catalog for one upload.
// Concurrent replaces against the same episode are not coordinated;
// whichever transaction commits last wins.
type Pipeline struct {
	store     blob.Store
	catalog   *catalog.Store
	chunkSize int
	readSize  int
	logger    *zap.Logger
}

// New builds a pipeline producing chunkSize-byte chunks, reading sources
// readSize bytes at a time.
func New(store blob.Store, cat *catalog.Store, chunkSize, readSize int, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		store:     store,
		catalog:   cat,
		chunkSize: chunkSize,
		readSize:  readSize,
		logger:    logger,
	}
}

// Replace splits src into chunks named {namePrefix}.part{index}, uploads
// each, and swaps the episode's chunk set atomically. It returns the
// number of chunks stored. An empty source leaves the episode with zero
// chunks, which is the valid "no file" state. Any blob failure aborts the
// whole replace; already-uploaded blobs may be orphaned in the backend.
func (p *Pipeline) Replace(ctx context.Context, episodeID int64, src io.Reader, namePrefix string) (int, error) {
	ctx, span := tracer.Start(ctx, "upload.replace",
		trace.WithAttributes(attribute.Int64("episode_id", episodeID)),
	)
	defer span.End()

	ok, err := p.catalog.EpisodeExists(ctx, episodeID)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("episode %d: %w", episodeID, apperr.ErrNotFound)
	}

	tx, err := p.catalog.BeginReplace(ctx, episodeID)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	defer tx.Rollback()

	splitter := chunkio.NewSplitter(src, p.chunkSize, p.readSize)
	count := 0
	var total int64
	for {
		chunk, err := splitter.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			span.RecordError(err)
			return 0, err
		}

		name := fmt.Sprintf("%s.part%d", namePrefix, chunk.Index)
		fileID, err := p.store.Put(ctx, name, chunk.Data)
		if err != nil {
			span.RecordError(err)
			return 0, err
		}

		rec := models.ChunkRecord{
			EpisodeID:  episodeID,
			ChunkIndex: chunk.Index,
			FileID:     fileID,
			ChunkSize:  int64(len(chunk.Data)),
		}
		if err := tx.Stage(ctx, rec); err != nil {
			span.RecordError(err)
			return 0, err
		}

		count++
		total += int64(len(chunk.Data))
		p.logger.Debug("chunk stored",
			zap.Int64("episode_id", episodeID),
			zap.Int("chunk_index", chunk.Index),
			zap.Int("size", len(chunk.Data)))
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		return 0, err
	}

	span.SetAttributes(
		attribute.Int("chunk_count", count),
		attribute.Int64("total_size", total),
	)
	p.logger.Info("chunk set replaced",
		zap.Int64("episode_id", episodeID),
		zap.Int("chunk_count", count),
		zap.Int64("total_size", total))
	return count, nil
}

// Finalize persists a caller-supplied chunk list for uploads that went
// directly to the blob backend, with the same replace-all-or-nothing
// guarantee. The list must be non-empty with contiguous zero-based
// indexes, non-empty file ids and positive sizes.
func (p *Pipeline) Finalize(ctx context.Context, episodeID int64, entries []models.FinalizeChunk) error {
	ctx, span := tracer.Start(ctx, "upload.finalize",
		trace.WithAttributes(
			attribute.Int64("episode_id", episodeID),
			attribute.Int("chunk_count", len(entries)),
		),
	)
	defer span.End()

	if err := validateFinalizeList(entries); err != nil {
		return err
	}

	ok, err := p.catalog.EpisodeExists(ctx, episodeID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !ok {
		return fmt.Errorf("episode %d: %w", episodeID, apperr.ErrNotFound)
	}

	tx, err := p.catalog.BeginReplace(ctx, episodeID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	defer tx.Rollback()

	for _, e := range entries {
		rec := models.ChunkRecord{
			EpisodeID:  episodeID,
			ChunkIndex: e.ChunkIndex,
			FileID:     e.FileID,
			ChunkSize:  e.ChunkSize,
		}
		if err := tx.Stage(ctx, rec); err != nil {
			span.RecordError(err)
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		return err
	}
	p.logger.Info("chunk set finalized",
		zap.Int64("episode_id", episodeID),
		zap.Int("chunk_count", len(entries)))
	return nil
}

func validateFinalizeList(entries []models.FinalizeChunk) error {
	if len(entries) == 0 {
		return fmt.Errorf("empty chunk list: %w", apperr.ErrInvalid)
	}
	for i, e := range entries {
		if e.ChunkIndex != i {
			return fmt.Errorf("chunk index %d at position %d is not contiguous: %w", e.ChunkIndex, i, apperr.ErrInvalid)
		}
		if e.FileID == "" {
			return fmt.Errorf("chunk %d has empty file id: %w", i, apperr.ErrInvalid)
		}
		if e.ChunkSize <= 0 {
			return fmt.Errorf("chunk %d has non-positive size: %w", i, apperr.ErrInvalid)
		}
	}
	return nil
}
