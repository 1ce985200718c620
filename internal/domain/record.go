package domain

import "time"

// RecordMetadata is the provenance carried alongside a vector.
type RecordMetadata struct {
	DocID      string `json:"docId"`
	SourceURI  string `json:"sourceUri"`
	Language   string `json:"language"`
	ChunkIndex int    `json:"chunkIndex"`
}

// EmbeddingRecord pairs a chunk ID with its vector. Never mutated after
// creation; owned by the vector sink until durably staged. The JSON field
// names are the contract with the downstream bulk-upsert consumer.
type EmbeddingRecord struct {
	ID       string         `json:"id"`
	Vector   []float32      `json:"embedding"`
	Metadata RecordMetadata `json:"metadata"`
}

// NewEmbeddingRecord builds a record from a chunk and its vector.
func NewEmbeddingRecord(c Chunk, vector []float32) EmbeddingRecord {
	return EmbeddingRecord{
		ID:     c.ChunkID,
		Vector: vector,
		Metadata: RecordMetadata{
			DocID:      c.DocID,
			SourceURI:  c.SourceURI,
			Language:   c.Language,
			ChunkIndex: c.ChunkIndex,
		},
	}
}

// Batch is a bounded, ordered group of chunks embedded together in a
// single oracle call. Order is arrival order. It lives only inside the
// accumulator and is handed off whole on flush.
type Batch struct {
	Chunks   []Chunk
	OpenedAt time.Time
}

// Size returns the number of chunks in the batch.
func (b *Batch) Size() int {
	return len(b.Chunks)
}

// Texts returns the chunk texts in arrival order.
func (b *Batch) Texts() []string {
	texts := make([]string, len(b.Chunks))
	for i, c := range b.Chunks {
		texts[i] = c.Text
	}
	return texts
}

// BatchResult is the explicit per-batch outcome returned by the embedder.
// A batch either succeeds as a unit or fails as a unit; there is no
// partial credit and no retry at this layer.
type BatchResult struct {
	Records []EmbeddingRecord
	Err     error
}

// BatchSuccess builds a successful result.
func BatchSuccess(records []EmbeddingRecord) BatchResult {
	return BatchResult{Records: records}
}

// BatchFailure builds a failed result.
func BatchFailure(err error) BatchResult {
	return BatchResult{Err: err}
}

// OK reports whether the batch succeeded.
func (r BatchResult) OK() bool {
	return r.Err == nil
}
