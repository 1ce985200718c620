package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/quarrylabs/quarry/internal/domain"
)

// Accumulator defaults, matching the embedding oracle's sweet spot.
const (
	DefaultMaxBatchSize = 100
	DefaultMaxBatchWait = 10 * time.Second
	DefaultQueueSize    = 1000
)

// AccumulatorConfig controls batching behaviour.
type AccumulatorConfig struct {
	// MaxBatchSize is the flush threshold; no batch ever exceeds it.
	MaxBatchSize int
	// MaxBatchWait is the longest a buffered item waits before its batch
	// is flushed, measured from the oldest unflushed arrival.
	MaxBatchWait time.Duration
	// QueueSize bounds the intake buffer; a full buffer blocks Enqueue.
	QueueSize int
}

func (c *AccumulatorConfig) applyDefaults() {
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = DefaultMaxBatchSize
	}
	if c.MaxBatchWait <= 0 {
		c.MaxBatchWait = DefaultMaxBatchWait
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
}

// BatchAccumulator groups individually-arriving chunks into bounded
// batches. Producers enqueue concurrently; a single consumer drains
// batches via Next. A batch is flushed when it reaches MaxBatchSize,
// when MaxBatchWait elapses, or on Close, whichever comes first.
type BatchAccumulator struct {
	cfg   AccumulatorConfig
	queue chan domain.Chunk

	mu        sync.Mutex
	closing   bool
	producers sync.WaitGroup

	// closed fires only after every in-flight Enqueue has landed, so the
	// consumer sees a complete queue when it drains.
	closed    chan struct{}
	closeOnce sync.Once
}

// NewBatchAccumulator creates an accumulator with the given configuration.
func NewBatchAccumulator(cfg AccumulatorConfig) *BatchAccumulator {
	cfg.applyDefaults()
	return &BatchAccumulator{
		cfg:    cfg,
		queue:  make(chan domain.Chunk, cfg.QueueSize),
		closed: make(chan struct{}),
	}
}

// Enqueue adds a chunk to the intake buffer. It blocks while the buffer
// is full, providing backpressure to the event source. Returns
// ErrAccumulatorClosed once Close has been called.
func (a *BatchAccumulator) Enqueue(ctx context.Context, c domain.Chunk) error {
	a.mu.Lock()
	if a.closing {
		a.mu.Unlock()
		return domain.ErrAccumulatorClosed
	}
	a.producers.Add(1)
	a.mu.Unlock()
	defer a.producers.Done()

	select {
	case a.queue <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops intake and waits for in-flight enqueues to land. Items
// already buffered remain drainable through Next; no item is dropped.
// The consumer must keep calling Next while Close is in progress so a
// producer blocked on a full buffer can finish.
func (a *BatchAccumulator) Close() {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closing = true
		a.mu.Unlock()

		a.producers.Wait()
		close(a.closed)
	})
}

// Next blocks until a batch is ready and returns it. After Close it keeps
// returning the remaining buffered batches, then ErrAccumulatorClosed.
// Every returned batch is non-empty and at most MaxBatchSize chunks.
func (a *BatchAccumulator) Next(ctx context.Context) (*domain.Batch, error) {
	batch := &domain.Batch{}

	// Wait for the first item; an empty batch is never flushed.
	select {
	case c := <-a.queue:
		batch.OpenedAt = time.Now().UTC()
		batch.Chunks = append(batch.Chunks, c)
	case <-a.closed:
		// Intake stopped, but buffered items may remain.
		select {
		case c := <-a.queue:
			batch.OpenedAt = time.Now().UTC()
			batch.Chunks = append(batch.Chunks, c)
		default:
			return nil, domain.ErrAccumulatorClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	timer := time.NewTimer(a.cfg.MaxBatchWait)
	defer timer.Stop()

	for batch.Size() < a.cfg.MaxBatchSize {
		select {
		case c := <-a.queue:
			batch.Chunks = append(batch.Chunks, c)
		case <-timer.C:
			return batch, nil
		case <-a.closed:
			return a.drainInto(batch), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return batch, nil
}

// drainInto tops the batch up from the buffer without blocking.
func (a *BatchAccumulator) drainInto(batch *domain.Batch) *domain.Batch {
	for batch.Size() < a.cfg.MaxBatchSize {
		select {
		case c := <-a.queue:
			batch.Chunks = append(batch.Chunks, c)
		default:
			return batch
		}
	}
	return batch
}
