package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/awsl-dev/vidstream/internal/apperr"
	"github.com/awsl-dev/vidstream/internal/blob"
	"github.com/awsl-dev/vidstream/internal/catalog"
	"github.com/awsl-dev/vidstream/internal/models"
	"github.com/awsl-dev/vidstream/internal/stream"
	"github.com/awsl-dev/vidstream/internal/token"
)

var tracer = otel.Tracer("vidstream-handlers")

// A malformed Range header falls back to a full 200 response instead of
// a 416, so unfamiliar clients still get the file.
var rangePattern = regexp.MustCompile(`^bytes=(\d*)-(\d*)$`)

// StreamHandler serves episode bytes with HTTP range support, either by
// catalog lookup or from a self-contained chunk-list token.
type StreamHandler struct {
	store   blob.Store
	catalog *catalog.Store
	cache   catalog.ChunkCache
	logger  *zap.Logger
}

// NewStreamHandler creates a stream handler. cache may be nil.
func NewStreamHandler(store blob.Store, cat *catalog.Store, cache catalog.ChunkCache, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{
		store:   store,
		catalog: cat,
		cache:   cache,
		logger:  logger,
	}
}

// ServeEpisode handles GET /api/stream/{episode_id}.
func (h *StreamHandler) ServeEpisode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "stream_episode",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	episodeID, err := parseEpisodeID(r)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	span.SetAttributes(attribute.Int64("episode_id", episodeID))

	chunks, err := h.loadChunks(ctx, episodeID)
	if err != nil {
		span.RecordError(err)
		apperr.Write(w, err)
		return
	}
	if len(chunks) == 0 {
		apperr.WriteJSON(w, http.StatusNotFound, "not_found", "video file not found")
		return
	}

	h.serve(w, r.WithContext(ctx), chunks)
}

// ServeDirect handles GET /api/stream-direct?chunks=<token>: the token
// carries the full chunk list, so no catalog lookup happens.
func (h *StreamHandler) ServeDirect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "stream_direct",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	tok := r.URL.Query().Get("chunks")
	if tok == "" {
		apperr.WriteJSON(w, http.StatusBadRequest, "invalid_request", "missing 'chunks' query parameter")
		return
	}

	entries, err := token.Decode(tok)
	if err != nil {
		span.RecordError(err)
		apperr.WriteJSON(w, http.StatusBadRequest, "decode_failed", err.Error())
		return
	}
	if len(entries) == 0 {
		apperr.WriteJSON(w, http.StatusNotFound, "not_found", "token carries no chunks")
		return
	}

	chunks := make([]models.ChunkRecord, len(entries))
	for i, e := range entries {
		chunks[i] = models.ChunkRecord{ChunkIndex: i, FileID: e.FileID, ChunkSize: e.ChunkSize}
	}
	h.serve(w, r.WithContext(ctx), chunks)
}

// StreamURLResponse is the body of GET /api/stream/{episode_id}/url.
type StreamURLResponse struct {
	StreamURL  string `json:"stream_url"`
	ChunkCount int    `json:"chunk_count"`
	TotalSize  int64  `json:"total_size"`
}

// StreamURL handles GET /api/stream/{episode_id}/url: it encodes the
// episode's chunk list into a token and returns a shareable stream URL.
func (h *StreamHandler) StreamURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "stream_url")
	defer span.End()

	episodeID, err := parseEpisodeID(r)
	if err != nil {
		apperr.Write(w, err)
		return
	}

	chunks, err := h.loadChunks(ctx, episodeID)
	if err != nil {
		span.RecordError(err)
		apperr.Write(w, err)
		return
	}
	if len(chunks) == 0 {
		apperr.WriteJSON(w, http.StatusNotFound, "not_found", "video file not found")
		return
	}

	tok, err := token.Encode(models.Entries(chunks), token.ModeAuto)
	if err != nil {
		span.RecordError(err)
		apperr.Write(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(StreamURLResponse{
		StreamURL:  "/api/stream-direct?chunks=" + tok,
		ChunkCount: len(chunks),
		TotalSize:  models.TotalSize(chunks),
	})
}

// ServeCover handles GET /api/cover/{file_id}: a single-blob proxy for
// cover images.
func (h *StreamHandler) ServeCover(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "serve_cover")
	defer span.End()

	fileID := mux.Vars(r)["file_id"]
	data, err := h.store.Get(ctx, fileID)
	if err != nil {
		span.RecordError(err)
		apperr.WriteJSON(w, http.StatusNotFound, "not_found", "cover not found")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

// loadChunks reads the ordered chunk list, cache first.
func (h *StreamHandler) loadChunks(ctx context.Context, episodeID int64) ([]models.ChunkRecord, error) {
	if h.cache != nil {
		chunks, err := h.cache.GetChunks(ctx, episodeID)
		if err != nil {
			h.logger.Warn("chunk cache lookup failed", zap.Int64("episode_id", episodeID), zap.Error(err))
		} else if chunks != nil {
			return chunks, nil
		}
	}

	chunks, err := h.catalog.ListChunks(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	if h.cache != nil && len(chunks) > 0 {
		if err := h.cache.SetChunks(ctx, episodeID, chunks); err != nil {
			h.logger.Warn("chunk cache update failed", zap.Int64("episode_id", episodeID), zap.Error(err))
		}
	}
	return chunks, nil
}

// serve applies range semantics over an ordered chunk list and streams
// the requested bytes without buffering the whole response.
func (h *StreamHandler) serve(w http.ResponseWriter, r *http.Request, chunks []models.ChunkRecord) {
	total := models.TotalSize(chunks)
	start, end, partial := resolveRange(r.Header.Get("Range"), total)

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))

	status := http.StatusOK
	if partial {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, total))
		status = http.StatusPartialContent
	}
	w.WriteHeader(status)

	reader := stream.NewRangeReader(r.Context(), h.store, chunks, start, end)
	if err := copyFlush(w, reader); err != nil {
		// Headers and part of the body are already out; the contract is
		// best-effort partial delivery, then hard stop.
		h.logger.Warn("stream aborted", zap.Error(err))
	}
}

// resolveRange turns a Range header into clamped absolute bounds.
// Missing start defaults to 0, missing end to total-1; anything
// malformed degrades to the full range with a 200.
func resolveRange(header string, total int64) (start, end int64, partial bool) {
	start, end = 0, total-1
	if header == "" {
		return start, end, false
	}
	m := rangePattern.FindStringSubmatch(header)
	if m == nil || (m[1] == "" && m[2] == "") {
		return 0, total - 1, false
	}
	if m[1] != "" {
		v, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, total - 1, false
		}
		start = v
	}
	if m[2] != "" {
		v, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return 0, total - 1, false
		}
		end = v
	}
	if end > total-1 {
		end = total - 1
	}
	if start > end {
		return 0, total - 1, false
	}
	return start, end, true
}

// copyFlush streams src to the response, flushing after each write so
// the client sees bytes as chunks arrive.
func copyFlush(w http.ResponseWriter, src io.Reader) error {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 64*1024)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func parseEpisodeID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["episode_id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("episode id %q: %w", raw, apperr.ErrInvalid)
	}
	return id, nil
}
