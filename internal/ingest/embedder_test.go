package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quarrylabs/quarry/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockEmbeddingClient is a mock implementation of EmbeddingClient
type MockEmbeddingClient struct {
	mock.Mock
}

func (m *MockEmbeddingClient) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

// MockVectorSink is a mock implementation of VectorSink
type MockVectorSink struct {
	mock.Mock
}

func (m *MockVectorSink) StageBatch(ctx context.Context, records []domain.EmbeddingRecord) (string, error) {
	args := m.Called(ctx, records)
	return args.String(0), args.Error(1)
}

// MockRecordWriter is a mock implementation of RecordWriter
type MockRecordWriter struct {
	mock.Mock
}

func (m *MockRecordWriter) UpsertEmbedding(ctx context.Context, record domain.EmbeddingRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func testBatch(n int) *domain.Batch {
	b := &domain.Batch{OpenedAt: time.Now().UTC()}
	for i := 0; i < n; i++ {
		b.Chunks = append(b.Chunks, testChunk(i))
	}
	return b
}

func TestBatchEmbedder_Success_PairsInOrder(t *testing.T) {
	client := new(MockEmbeddingClient)
	sink := new(MockVectorSink)

	batch := testBatch(3)
	vectors := [][]float32{{0.0}, {0.1}, {0.2}}
	client.On("GenerateEmbeddings", mock.Anything, batch.Texts()).Return(vectors, nil)
	sink.On("StageBatch", mock.Anything, mock.Anything).Return("batch_x.jsonl", nil)

	var observed []BatchMetrics
	embedder := NewBatchEmbedder(client, sink, WithMetricsObserver(func(m BatchMetrics) {
		observed = append(observed, m)
	}))

	result := embedder.EmbedBatch(context.Background(), batch)

	require.True(t, result.OK())
	require.Len(t, result.Records, 3)
	for i, record := range result.Records {
		assert.Equal(t, batch.Chunks[i].ChunkID, record.ID)
		assert.Equal(t, vectors[i], record.Vector)
		assert.Equal(t, batch.Chunks[i].DocID, record.Metadata.DocID)
		assert.Equal(t, batch.Chunks[i].ChunkIndex, record.Metadata.ChunkIndex)
	}

	require.Len(t, observed, 1)
	assert.Equal(t, 3, observed[0].BatchSize)
	assert.Equal(t, "batch_x.jsonl", observed[0].StagedFile)
	assert.Empty(t, observed[0].Error)

	client.AssertExpectations(t)
	sink.AssertExpectations(t)
}

func TestBatchEmbedder_VectorCountMismatch_FailsWholeBatch(t *testing.T) {
	client := new(MockEmbeddingClient)
	sink := new(MockVectorSink)

	batch := testBatch(3)
	client.On("GenerateEmbeddings", mock.Anything, mock.Anything).Return([][]float32{{0.1}, {0.2}}, nil)

	embedder := NewBatchEmbedder(client, sink, WithMetricsObserver(func(BatchMetrics) {}))
	result := embedder.EmbedBatch(context.Background(), batch)

	require.False(t, result.OK())
	assert.ErrorIs(t, result.Err, domain.ErrVectorCountMismatch)
	sink.AssertNotCalled(t, "StageBatch", mock.Anything, mock.Anything)
}

func TestBatchEmbedder_OracleFailure_FailsWholeBatch(t *testing.T) {
	client := new(MockEmbeddingClient)
	sink := new(MockVectorSink)

	client.On("GenerateEmbeddings", mock.Anything, mock.Anything).Return(nil, errors.New("deadline exceeded"))

	var observed []BatchMetrics
	embedder := NewBatchEmbedder(client, sink, WithMetricsObserver(func(m BatchMetrics) {
		observed = append(observed, m)
	}))
	result := embedder.EmbedBatch(context.Background(), testBatch(2))

	require.False(t, result.OK())
	var domainErr *domain.DomainError
	require.ErrorAs(t, result.Err, &domainErr)
	assert.Equal(t, domain.ErrCodeTransientOracle, domainErr.Code)

	// metrics are emitted for failures too
	require.Len(t, observed, 1)
	assert.Equal(t, 2, observed[0].BatchSize)
	assert.NotEmpty(t, observed[0].Error)

	sink.AssertNotCalled(t, "StageBatch", mock.Anything, mock.Anything)
}

func TestBatchEmbedder_SinkFailure_FailsWholeBatch(t *testing.T) {
	client := new(MockEmbeddingClient)
	sink := new(MockVectorSink)

	client.On("GenerateEmbeddings", mock.Anything, mock.Anything).Return([][]float32{{0.1}}, nil)
	sink.On("StageBatch", mock.Anything, mock.Anything).Return("", errors.New("storage unavailable"))

	embedder := NewBatchEmbedder(client, sink, WithMetricsObserver(func(BatchMetrics) {}))
	result := embedder.EmbedBatch(context.Background(), testBatch(1))

	require.False(t, result.OK())
	var domainErr *domain.DomainError
	require.ErrorAs(t, result.Err, &domainErr)
	assert.Equal(t, domain.ErrCodeInternalError, domainErr.Code)
}

func TestBatchEmbedder_EmptyBatch(t *testing.T) {
	embedder := NewBatchEmbedder(new(MockEmbeddingClient), new(MockVectorSink),
		WithMetricsObserver(func(BatchMetrics) {}))

	result := embedder.EmbedBatch(context.Background(), &domain.Batch{})
	assert.ErrorIs(t, result.Err, domain.ErrEmptyBatch)

	result = embedder.EmbedBatch(context.Background(), nil)
	assert.ErrorIs(t, result.Err, domain.ErrEmptyBatch)
}

func TestBatchEmbedder_RecordWriter_CalledPerRecord(t *testing.T) {
	client := new(MockEmbeddingClient)
	sink := new(MockVectorSink)
	writer := new(MockRecordWriter)

	batch := testBatch(2)
	client.On("GenerateEmbeddings", mock.Anything, mock.Anything).Return([][]float32{{0.1}, {0.2}}, nil)
	sink.On("StageBatch", mock.Anything, mock.Anything).Return("batch_y.jsonl", nil)
	writer.On("UpsertEmbedding", mock.Anything, mock.Anything).Return(nil).Times(2)

	embedder := NewBatchEmbedder(client, sink,
		WithRecordWriter(writer),
		WithMetricsObserver(func(BatchMetrics) {}))
	result := embedder.EmbedBatch(context.Background(), batch)

	require.True(t, result.OK())
	writer.AssertExpectations(t)
}
