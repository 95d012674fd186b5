package chunkio

import (
	"fmt"
	"io"
)

// Chunk is one segment produced by a Splitter.
type Chunk struct {
	Index int
	Data  []byte
}

// Splitter slices a byte stream into fixed-size chunks, the last possibly
// shorter. It reads the source in small increments so peak memory stays
// bounded by one chunk regardless of input size. A Splitter is not
// restartable; it consumes the source as chunks are pulled.
type Splitter struct {
	src       io.Reader
	chunkSize int
	readSize  int
	buf       []byte
	index     int
	eof       bool
}

// NewSplitter returns a Splitter producing chunkSize-byte chunks, reading
// the source at most readSize bytes at a time.
func NewSplitter(src io.Reader, chunkSize, readSize int) *Splitter {
	if readSize <= 0 || readSize > chunkSize {
		readSize = chunkSize
	}
	return &Splitter{
		src:       src,
		chunkSize: chunkSize,
		readSize:  readSize,
		buf:       make([]byte, 0, chunkSize),
	}
}

// Next returns the next chunk in order. It returns io.EOF after the last
// chunk; an empty source yields io.EOF immediately.
func (s *Splitter) Next() (Chunk, error) {
	if s.eof && len(s.buf) == 0 {
		return Chunk{}, io.EOF
	}
	for !s.eof && len(s.buf) < s.chunkSize {
		want := s.chunkSize - len(s.buf)
		if want > s.readSize {
			want = s.readSize
		}
		n, err := io.ReadFull(s.src, s.buf[len(s.buf):len(s.buf)+want])
		s.buf = s.buf[:len(s.buf)+n]
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			s.eof = true
			break
		}
		if err != nil {
			return Chunk{}, fmt.Errorf("read chunk source: %w", err)
		}
	}
	if len(s.buf) == 0 {
		return Chunk{}, io.EOF
	}
	data := make([]byte, len(s.buf))
	copy(data, s.buf)
	s.buf = s.buf[:0]
	chunk := Chunk{Index: s.index, Data: data}
	s.index++
	return chunk, nil
}
