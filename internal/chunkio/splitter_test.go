package chunkio

import (
	"bytes"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, s *Splitter) []Chunk {
	t.Helper()
	var chunks []Chunk
	for {
		c, err := s.Next()
		if err == io.EOF {
			return chunks
		}
		require.NoError(t, err)
		chunks = append(chunks, c)
	}
}

func pattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func TestSplitterChunkCoverage(t *testing.T) {
	const chunkSize = 10
	tests := []struct {
		name      string
		inputLen  int
		wantCount int
		wantLast  int
	}{
		{"empty", 0, 0, 0},
		{"single byte", 1, 1, 1},
		{"one short of full", 9, 1, 9},
		{"exact chunk", 10, 1, 10},
		{"one over", 11, 2, 1},
		{"exact multiple", 30, 3, 10},
		{"partial tail", 25, 3, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := pattern(tt.inputLen)
			s := NewSplitter(bytes.NewReader(input), chunkSize, 4)
			chunks := drain(t, s)

			require.Len(t, chunks, tt.wantCount)
			var rejoined []byte
			for i, c := range chunks {
				assert.Equal(t, i, c.Index)
				if i < len(chunks)-1 {
					assert.Len(t, c.Data, chunkSize)
				} else {
					assert.Len(t, c.Data, tt.wantLast)
				}
				rejoined = append(rejoined, c.Data...)
			}
			assert.Equal(t, input, rejoined)
		})
	}
}

func TestSplitterOneByteReads(t *testing.T) {
	input := pattern(23)
	s := NewSplitter(iotest.OneByteReader(bytes.NewReader(input)), 10, 4)
	chunks := drain(t, s)

	require.Len(t, chunks, 3)
	var rejoined []byte
	for _, c := range chunks {
		rejoined = append(rejoined, c.Data...)
	}
	assert.Equal(t, input, rejoined)
}

func TestSplitterReadSizeLargerThanChunk(t *testing.T) {
	input := pattern(15)
	s := NewSplitter(bytes.NewReader(input), 10, 1<<20)
	chunks := drain(t, s)

	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0].Data, 10)
	assert.Len(t, chunks[1].Data, 5)
}

func TestSplitterEOFIsSticky(t *testing.T) {
	s := NewSplitter(bytes.NewReader(pattern(5)), 10, 4)
	_, err := s.Next()
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = s.Next()
		assert.Equal(t, io.EOF, err)
	}
}

func TestSplitterPropagatesReadErrors(t *testing.T) {
	src := io.MultiReader(bytes.NewReader(pattern(3)), iotest.ErrReader(io.ErrClosedPipe))
	s := NewSplitter(src, 10, 4)
	_, err := s.Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}
