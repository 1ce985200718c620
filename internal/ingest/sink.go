package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quarrylabs/quarry/internal/domain"
)

// StagingClient is write-once durable storage with atomic visibility: a
// named object either appears complete or not at all.
type StagingClient interface {
	WriteOnce(ctx context.Context, name string, data []byte) error
}

// JSONLSink serializes one batch's records as a newline-delimited JSON
// file and stages it for the downstream bulk-upsert process.
type JSONLSink struct {
	staging StagingClient
	now     func() time.Time
}

// NewJSONLSink creates a sink writing to the given staging storage.
func NewJSONLSink(staging StagingClient) *JSONLSink {
	return &JSONLSink{
		staging: staging,
		now:     time.Now,
	}
}

// StageBatch writes the records as one uniquely named JSONL file and
// returns the file name. The timestamp plus a random disambiguator keeps
// concurrent flushes from colliding.
func (s *JSONLSink) StageBatch(ctx context.Context, records []domain.EmbeddingRecord) (string, error) {
	if len(records) == 0 {
		return "", domain.ErrEmptyBatch
	}

	data, err := encodeJSONL(records)
	if err != nil {
		return "", fmt.Errorf("failed to encode batch: %w", err)
	}

	name := s.batchFileName()
	if err := s.staging.WriteOnce(ctx, name, data); err != nil {
		return "", fmt.Errorf("failed to stage batch file %s: %w", name, err)
	}

	return name, nil
}

func (s *JSONLSink) batchFileName() string {
	ts := strings.ReplaceAll(s.now().UTC().Format("20060102_150405.000000"), ".", "_")
	return fmt.Sprintf("batch_%s_%s.jsonl", ts, uuid.NewString()[:8])
}

func encodeJSONL(records []domain.EmbeddingRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
