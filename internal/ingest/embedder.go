package ingest

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/quarrylabs/quarry/internal/domain"
	"github.com/quarrylabs/quarry/internal/telemetry"
	"golang.org/x/time/rate"
)

// EmbeddingClient is the embedding oracle: one call per batch, one vector
// per input text, order preserved.
type EmbeddingClient interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorSink durably stages one batch's worth of embedding records.
type VectorSink interface {
	StageBatch(ctx context.Context, records []domain.EmbeddingRecord) (string, error)
}

// RecordWriter persists a single record's vector inline. Only used in
// immediate mode, where the metadata write happens in the embedding
// stage instead of a downstream bulk upsert.
type RecordWriter interface {
	UpsertEmbedding(ctx context.Context, record domain.EmbeddingRecord) error
}

// BatchMetrics is the per-batch observation emitted once per completed
// batch, success or failure.
type BatchMetrics struct {
	BatchSize      int     `json:"batch_size"`
	DurationMS     int64   `json:"duration_ms"`
	ItemsPerSecond float64 `json:"items_per_second"`
	StagedFile     string  `json:"staged_file,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// MetricsObserver receives one BatchMetrics per processed batch.
type MetricsObserver func(BatchMetrics)

func logMetrics(m BatchMetrics) {
	payload, err := json.Marshal(struct {
		Event string `json:"event"`
		BatchMetrics
	}{Event: "batch_embedded", BatchMetrics: m})
	if err != nil {
		log.Printf("batch_metrics_marshal_error: %v", err)
		return
	}
	log.Println(string(payload))
}

// BatchEmbedder turns one batch of chunks into embedding records with a
// single oracle call and hands them to the vector sink. A batch succeeds
// or fails as a unit; there is no per-item retry.
type BatchEmbedder struct {
	client  EmbeddingClient
	sink    VectorSink
	records RecordWriter
	limiter *rate.Limiter
	observe MetricsObserver
}

// EmbedderOption configures a BatchEmbedder.
type EmbedderOption func(*BatchEmbedder)

// WithRateLimiter bounds the oracle call rate.
func WithRateLimiter(limiter *rate.Limiter) EmbedderOption {
	return func(e *BatchEmbedder) {
		e.limiter = limiter
	}
}

// WithMetricsObserver replaces the default log-line metrics emitter.
func WithMetricsObserver(fn MetricsObserver) EmbedderOption {
	return func(e *BatchEmbedder) {
		e.observe = fn
	}
}

// WithRecordWriter enables the inline per-record write used by immediate
// mode.
func WithRecordWriter(w RecordWriter) EmbedderOption {
	return func(e *BatchEmbedder) {
		e.records = w
	}
}

// NewBatchEmbedder creates a BatchEmbedder.
func NewBatchEmbedder(client EmbeddingClient, sink VectorSink, opts ...EmbedderOption) *BatchEmbedder {
	e := &BatchEmbedder{
		client:  client,
		sink:    sink,
		observe: logMetrics,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EmbedBatch embeds every chunk in the batch with one oracle call, pairs
// vectors with chunks positionally, and stages the resulting records.
func (e *BatchEmbedder) EmbedBatch(ctx context.Context, batch *domain.Batch) domain.BatchResult {
	if batch == nil || batch.Size() == 0 {
		return domain.BatchFailure(domain.ErrEmptyBatch)
	}

	ctx, span := telemetry.StartSpan(ctx, "ingest.embed_batch", telemetry.SpanAttributes{
		Operation: "embed_batch",
		BatchSize: batch.Size(),
	})
	defer span.End()

	start := time.Now()
	result := e.embed(ctx, batch)
	if result.Err != nil {
		span.SetError(result.Err)
	}

	duration := time.Since(start)
	m := BatchMetrics{
		BatchSize:  batch.Size(),
		DurationMS: duration.Milliseconds(),
	}
	if secs := duration.Seconds(); secs > 0 {
		m.ItemsPerSecond = float64(batch.Size()) / secs
	}
	if result.Err != nil {
		m.Error = result.Err.Error()
	} else {
		m.StagedFile = result.StagedFile
	}
	e.observe(m)

	return result.BatchResult
}

type embedOutcome struct {
	domain.BatchResult
	StagedFile string
}

func (e *BatchEmbedder) embed(ctx context.Context, batch *domain.Batch) embedOutcome {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return embedOutcome{BatchResult: domain.BatchFailure(
				domain.NewDomainErrorWithCause(domain.ErrCodeTransientOracle, "rate limit wait aborted", err))}
		}
	}

	vectors, err := e.client.GenerateEmbeddings(ctx, batch.Texts())
	if err != nil {
		return embedOutcome{BatchResult: domain.BatchFailure(
			domain.NewDomainErrorWithCause(domain.ErrCodeTransientOracle, "embedding call failed", err))}
	}

	// Positional pairing is only sound when counts match exactly.
	if len(vectors) != batch.Size() {
		return embedOutcome{BatchResult: domain.BatchFailure(domain.ErrVectorCountMismatch)}
	}

	records := make([]domain.EmbeddingRecord, batch.Size())
	for i, c := range batch.Chunks {
		records[i] = domain.NewEmbeddingRecord(c, vectors[i])
	}

	if e.records != nil {
		for _, record := range records {
			if err := e.records.UpsertEmbedding(ctx, record); err != nil {
				return embedOutcome{BatchResult: domain.BatchFailure(
					domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "record write failed", err))}
			}
		}
	}

	name, err := e.sink.StageBatch(ctx, records)
	if err != nil {
		return embedOutcome{BatchResult: domain.BatchFailure(
			domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "staging write failed", err))}
	}

	return embedOutcome{BatchResult: domain.BatchSuccess(records), StagedFile: name}
}
