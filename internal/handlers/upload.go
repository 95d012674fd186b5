package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/awsl-dev/vidstream/internal/apperr"
	"github.com/awsl-dev/vidstream/internal/catalog"
	"github.com/awsl-dev/vidstream/internal/models"
	"github.com/awsl-dev/vidstream/internal/upload"
)

// UploadHandler handles chunked video ingestion for an episode: either a
// multipart file upload split server-side, or a finalize call for chunks
// the client already pushed to the blob backend.
type UploadHandler struct {
	pipeline *upload.Pipeline
	catalog  *catalog.Store
	cache    catalog.ChunkCache
	logger   *zap.Logger
}

// NewUploadHandler creates an upload handler. cache may be nil.
func NewUploadHandler(pipeline *upload.Pipeline, cat *catalog.Store, cache catalog.ChunkCache, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{
		pipeline: pipeline,
		catalog:  cat,
		cache:    cache,
		logger:   logger,
	}
}

// UploadResponse is the body returned by upload and finalize.
type UploadResponse struct {
	EpisodeID  int64  `json:"episode_id"`
	ChunkCount int    `json:"chunk_count"`
	Message    string `json:"message"`
}

// ServeUpload handles POST /admin-api/episodes/{episode_id}/upload. The
// multipart body is consumed as a stream; the file is never buffered
// whole.
func (h *UploadHandler) ServeUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "upload_video",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	episodeID, err := parseEpisodeID(r)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	span.SetAttributes(attribute.Int64("episode_id", episodeID))

	episode, err := h.catalog.GetEpisode(ctx, episodeID)
	if err != nil {
		span.RecordError(err)
		apperr.Write(w, err)
		return
	}

	part, err := filePart(r)
	if err != nil {
		apperr.WriteJSON(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	prefix := chunkNamePrefix(episode)
	count, err := h.pipeline.Replace(ctx, episodeID, part, prefix)
	if err != nil {
		span.RecordError(err)
		apperr.Write(w, err)
		return
	}

	h.invalidateCache(r, episodeID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(UploadResponse{
		EpisodeID:  episodeID,
		ChunkCount: count,
		Message:    fmt.Sprintf("Successfully uploaded %d chunks", count),
	})
}

// FinalizeRequest is the body of POST /admin-api/episodes/{id}/finalize.
type FinalizeRequest struct {
	Chunks []models.FinalizeChunk `json:"chunks"`
}

// ServeFinalize persists a caller-supplied chunk list with the same
// replace-all-or-nothing guarantee as a server-side upload.
func (h *UploadHandler) ServeFinalize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "finalize_upload",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	episodeID, err := parseEpisodeID(r)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	span.SetAttributes(attribute.Int64("episode_id", episodeID))

	var req FinalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteJSON(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	if err := h.pipeline.Finalize(ctx, episodeID, req.Chunks); err != nil {
		span.RecordError(err)
		apperr.Write(w, err)
		return
	}

	h.invalidateCache(r, episodeID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(UploadResponse{
		EpisodeID:  episodeID,
		ChunkCount: len(req.Chunks),
		Message:    fmt.Sprintf("Finalized %d chunks", len(req.Chunks)),
	})
}

func (h *UploadHandler) invalidateCache(r *http.Request, episodeID int64) {
	if h.cache == nil {
		return
	}
	if err := h.cache.InvalidateChunks(r.Context(), episodeID); err != nil {
		h.logger.Warn("chunk cache invalidation failed", zap.Int64("episode_id", episodeID), zap.Error(err))
	}
}

// filePart walks the multipart body and returns the "file" part as a
// stream, without triggering whole-body buffering.
func filePart(r *http.Request) (io.Reader, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("expected multipart body: %v", err)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, fmt.Errorf("missing 'file' part")
		}
		if err != nil {
			return nil, fmt.Errorf("read multipart body: %v", err)
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}

// chunkNamePrefix builds the backend filename prefix
// {clean_title}_EP{episode_number}; chunk n becomes {prefix}.part{n}.
func chunkNamePrefix(ep *models.Episode) string {
	var b strings.Builder
	for _, r := range ep.Title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return fmt.Sprintf("%s_EP%d", b.String(), ep.EpisodeNumber)
}
