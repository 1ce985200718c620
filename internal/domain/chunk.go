package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// Chunk is a bounded span of document text with a stable identifier,
// ready for embedding. Immutable once created.
type Chunk struct {
	DocID       string `json:"docId"`
	ChunkID     string `json:"chunkId"`
	SourceURI   string `json:"sourceUri"`
	Text        string `json:"text"`
	Language    string `json:"language"`
	ChunkIndex  int    `json:"chunkIndex"`
	TotalChunks int    `json:"totalChunks"`
}

// NewDocID derives a document ID from the store location of the raw object.
// Re-processing the same object yields the same ID.
func NewDocID(bucket, object string) string {
	sum := md5.Sum([]byte(bucket + "/" + object))
	return hex.EncodeToString(sum[:])
}

// NewChunkID derives a chunk ID from the document ID and the chunk's
// position, so re-processing the same document region is idempotent.
func NewChunkID(docID string, chunkIndex int) string {
	return fmt.Sprintf("%s_%d", docID, chunkIndex)
}

// ValidateChunk checks that a chunk event carries every required field.
// Returns ErrMalformedChunkEvent for events that must be dropped.
func ValidateChunk(c *Chunk) error {
	if c == nil {
		return ErrMalformedChunkEvent
	}
	if c.DocID == "" || c.ChunkID == "" || c.Text == "" {
		return ErrMalformedChunkEvent
	}
	if c.ChunkIndex < 0 {
		return ErrMalformedChunkEvent
	}
	return nil
}
