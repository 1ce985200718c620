package ingest

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/quarrylabs/quarry/internal/chunker"
	"github.com/quarrylabs/quarry/internal/domain"
	"github.com/quarrylabs/quarry/internal/telemetry"
)

// DocumentReader streams an extracted-text object from the document store.
type DocumentReader interface {
	ReadObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// ChunkWriter persists chunk metadata for query-time hydration. Writes
// are keyed by chunk ID and overwritable, so redelivered documents are
// idempotent.
type ChunkWriter interface {
	UpsertChunk(ctx context.Context, c domain.Chunk) error
}

// Submitter accepts chunk events into the pipeline.
type Submitter interface {
	Submit(ctx context.Context, c domain.Chunk) error
}

// Intake turns one uploaded document into chunk events: it reads the
// extracted text, splits it, stores chunk metadata, and enqueues every
// chunk for embedding.
type Intake struct {
	reader   DocumentReader
	splitter *chunker.Splitter
	chunks   ChunkWriter
	pipeline Submitter
	bucket   string
}

// NewIntake creates an Intake reading from the given raw-document bucket.
func NewIntake(reader DocumentReader, splitter *chunker.Splitter, chunks ChunkWriter, pipeline Submitter, bucket string) *Intake {
	return &Intake{
		reader:   reader,
		splitter: splitter,
		chunks:   chunks,
		pipeline: pipeline,
		bucket:   bucket,
	}
}

// IntakeResult summarizes one processed document.
type IntakeResult struct {
	DocID    string
	Chunks   int
	Language string
}

// ProcessObject chunks the stored text object and enqueues its chunks.
// The document ID is derived from the object location, so re-processing
// the same object overwrites rather than duplicates.
func (in *Intake) ProcessObject(ctx context.Context, key, language string) (*IntakeResult, error) {
	if key == "" {
		return nil, domain.ErrMissingRequiredField
	}
	if language == "" {
		language = "en"
	}

	ctx, span := telemetry.StartSpan(ctx, "ingest.process_object", telemetry.SpanAttributes{Operation: "process_object"})
	defer span.End()

	rc, err := in.reader.ReadObject(ctx, in.bucket, key)
	if err != nil {
		span.SetError(err)
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeNotFound, "failed to read document", err)
	}
	defer rc.Close()

	text, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read document body: %w", err)
	}

	docID := domain.NewDocID(in.bucket, key)
	sourceURI := fmt.Sprintf("s3://%s/%s", in.bucket, key)

	chunks := in.splitter.ChunkDocument(docID, sourceURI, string(text), language)
	if len(chunks) == 0 {
		return &IntakeResult{DocID: docID, Language: language}, nil
	}

	for _, c := range chunks {
		if err := in.chunks.UpsertChunk(ctx, c); err != nil {
			return nil, fmt.Errorf("failed to store chunk %s: %w", c.ChunkID, err)
		}
		if err := in.pipeline.Submit(ctx, c); err != nil {
			return nil, fmt.Errorf("failed to enqueue chunk %s: %w", c.ChunkID, err)
		}
	}

	log.Printf("document processed (doc=%s chunks=%d language=%s)", docID, len(chunks), language)

	return &IntakeResult{DocID: docID, Chunks: len(chunks), Language: language}, nil
}
