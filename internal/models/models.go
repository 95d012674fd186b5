package models

import "time"

// Episode is the slice of episode metadata the storage engine needs.
// Full video/episode CRUD lives outside this service.
type Episode struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	EpisodeNumber int       `json:"episode_number"`
	CreatedAt     time.Time `json:"created_at"`
}

// ChunkRecord describes one stored segment of an episode's video file.
// ChunkIndex values for an episode are zero-based, unique and gap-free,
// and the sum of ChunkSize over all records equals the original file size.
type ChunkRecord struct {
	ID         int64  `json:"id"`
	EpisodeID  int64  `json:"episode_id"`
	ChunkIndex int    `json:"chunk_index"`
	FileID     string `json:"file_id"`
	ChunkSize  int64  `json:"chunk_size"`
}

// ChunkEntry is a (file_id, chunk_size) pair as carried by chunk-list
// tokens. It is derived from ChunkRecords and never persisted.
type ChunkEntry struct {
	FileID    string `json:"file_id"`
	ChunkSize int64  `json:"chunk_size"`
}

// FinalizeChunk is one element of a caller-supplied chunk list for
// uploads that went directly to the blob backend.
type FinalizeChunk struct {
	ChunkIndex int    `json:"chunk_index"`
	FileID     string `json:"file_id"`
	ChunkSize  int64  `json:"chunk_size"`
}

// TotalSize returns the original file size represented by an ordered
// chunk list.
func TotalSize(chunks []ChunkRecord) int64 {
	var total int64
	for _, c := range chunks {
		total += c.ChunkSize
	}
	return total
}

// Entries projects chunk records onto the (file_id, chunk_size) pairs
// used by the token codec.
func Entries(chunks []ChunkRecord) []ChunkEntry {
	entries := make([]ChunkEntry, len(chunks))
	for i, c := range chunks {
		entries[i] = ChunkEntry{FileID: c.FileID, ChunkSize: c.ChunkSize}
	}
	return entries
}
