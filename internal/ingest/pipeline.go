package ingest

import (
	"context"
	"log"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/quarrylabs/quarry/internal/domain"
)

// Mode selects how the pipeline groups work.
type Mode string

const (
	// ModeBatching accumulates events into time/size-bounded batches.
	ModeBatching Mode = "batching"
	// ModeImmediate embeds every event on arrival as a one-item batch
	// and writes its record inline. Simpler, lower throughput.
	ModeImmediate Mode = "immediate"
)

// DefaultEmbedWorkers bounds concurrent in-flight embedding calls.
const DefaultEmbedWorkers = 2

// PipelineConfig configures the ingestion pipeline.
type PipelineConfig struct {
	Mode         Mode
	EmbedWorkers int
	Accumulator  AccumulatorConfig
}

func (c *PipelineConfig) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeBatching
	}
	if c.EmbedWorkers <= 0 {
		c.EmbedWorkers = DefaultEmbedWorkers
	}
	if c.Mode == ModeImmediate {
		c.Accumulator.MaxBatchSize = 1
	}
}

// Pipeline is the long-lived ingestion supervisor: it owns the
// accumulator, a bounded pool of embedding workers, and the handoff to
// the vector sink. One Pipeline runs per process, started before the
// request-serving surface and stopped after it.
type Pipeline struct {
	cfg      PipelineConfig
	acc      *BatchAccumulator
	embedder *BatchEmbedder
	pool     *ants.Pool

	inflight sync.WaitGroup
	doneChan chan struct{}
	stopOnce sync.Once
}

// NewPipeline creates a Pipeline around the given embedder.
func NewPipeline(cfg PipelineConfig, embedder *BatchEmbedder) (*Pipeline, error) {
	cfg.applyDefaults()

	pool, err := ants.NewPool(cfg.EmbedWorkers)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		cfg:      cfg,
		acc:      NewBatchAccumulator(cfg.Accumulator),
		embedder: embedder,
		pool:     pool,
		doneChan: make(chan struct{}),
	}, nil
}

// Submit validates and enqueues one chunk event. This is the
// deliver-and-acknowledge boundary: a nil return means the event is
// accepted and the source may ack. A malformed event is dropped with an
// error; it never aborts a batch. Submit blocks while the intake buffer
// is full.
func (p *Pipeline) Submit(ctx context.Context, c domain.Chunk) error {
	if err := domain.ValidateChunk(&c); err != nil {
		log.Printf("dropping malformed chunk event (doc=%q chunk=%q): %v", c.DocID, c.ChunkID, err)
		return err
	}
	return p.acc.Enqueue(ctx, c)
}

// Handle adapts Submit to the ChunkHandler contract for event sources.
func (p *Pipeline) Handle(ctx context.Context, c domain.Chunk) error {
	return p.Submit(ctx, c)
}

// Start runs the accumulation loop until the accumulator is closed or
// ctx is cancelled. Flushed batches are embedded on the bounded worker
// pool; accumulation of the next batch proceeds while a flush is being
// embedded. A failed batch is logged and never stops the loop.
func (p *Pipeline) Start(ctx context.Context) {
	defer close(p.doneChan)

	log.Printf("ingest pipeline started (mode=%s workers=%d batch_size=%d batch_wait=%s)",
		p.cfg.Mode, p.cfg.EmbedWorkers, p.cfg.Accumulator.MaxBatchSize, p.cfg.Accumulator.MaxBatchWait)

	for {
		batch, err := p.acc.Next(ctx)
		if err != nil {
			if err == domain.ErrAccumulatorClosed {
				log.Println("ingest pipeline drained")
			} else {
				log.Printf("ingest pipeline stopped: %v", err)
			}
			return
		}

		p.dispatch(ctx, batch)
	}
}

// dispatch hands one batch to the worker pool. Blocks when every worker
// is busy, bounding in-flight oracle calls.
func (p *Pipeline) dispatch(ctx context.Context, batch *domain.Batch) {
	p.inflight.Add(1)
	err := p.pool.Submit(func() {
		defer p.inflight.Done()
		if result := p.embedder.EmbedBatch(ctx, batch); !result.OK() {
			log.Printf("batch of %d failed: %v", batch.Size(), result.Err)
		}
	})
	if err != nil {
		p.inflight.Done()
		log.Printf("batch of %d not dispatched: %v", batch.Size(), err)
	}
}

// Stop shuts the pipeline down in order: stop accepting enqueues, flush
// and embed whatever is buffered, wait for in-flight embedding calls,
// then release the workers. Safe to call once the accumulation loop is
// running; idempotent.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.acc.Close()
		<-p.doneChan
		p.inflight.Wait()
		p.pool.Release()
		log.Println("ingest pipeline shutdown complete")
	})
}
