// Package stream reconstructs an arbitrary byte range of a chunked file
// from the blob store, one chunk at a time.
package stream

import (
	"context"
	"io"

	"github.com/awsl-dev/vidstream/internal/blob"
	"github.com/awsl-dev/vidstream/internal/models"
)

// RangeReader lazily yields the bytes of [start, end] (inclusive absolute
// offsets) from an ordered chunk list. Chunks whose span falls outside
// the range are never fetched, and at most one chunk's bytes are held in
// memory at a time. Callers must pass bounds already clamped against the
// file's total size.
type RangeReader struct {
	ctx    context.Context
	store  blob.Store
	chunks []models.ChunkRecord
	start  int64
	end    int64

	pos int64 // absolute offset of chunks[idx]'s first byte
	idx int
	buf []byte // unread remainder of the current chunk's slice
	err error
}

// NewRangeReader builds a reader over chunks for [start, end]. The
// context bounds every chunk fetch; cancelling it stops further backend
// calls.
func NewRangeReader(ctx context.Context, store blob.Store, chunks []models.ChunkRecord, start, end int64) *RangeReader {
	return &RangeReader{
		ctx:    ctx,
		store:  store,
		chunks: chunks,
		start:  start,
		end:    end,
	}
}

// Read implements io.Reader. Concatenating everything read equals the
// original file's bytes in [start, end] exactly.
func (r *RangeReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		r.err = r.fill()
		if r.err != nil {
			return 0, r.err
		}
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// fill fetches the next overlapping chunk and slices it to the range.
func (r *RangeReader) fill() error {
	for r.idx < len(r.chunks) {
		c := r.chunks[r.idx]
		chunkStart := r.pos
		chunkEnd := r.pos + c.ChunkSize - 1
		r.pos += c.ChunkSize
		r.idx++

		if chunkEnd < r.start {
			continue
		}
		if chunkStart > r.end {
			break
		}
		if err := r.ctx.Err(); err != nil {
			return err
		}

		data, err := r.store.Get(r.ctx, c.FileID)
		if err != nil {
			return err
		}

		lo := int64(0)
		if r.start > chunkStart {
			lo = r.start - chunkStart
		}
		hi := c.ChunkSize
		if r.end-chunkStart+1 < hi {
			hi = r.end - chunkStart + 1
		}
		// Guard against a backend returning fewer bytes than recorded.
		if hi > int64(len(data)) {
			hi = int64(len(data))
		}
		if lo >= hi {
			continue
		}
		r.buf = data[lo:hi]
		return nil
	}
	return io.EOF
}
