package ingest

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/quarrylabs/quarry/internal/chunker"
	"github.com/quarrylabs/quarry/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	objects map[string]string
}

func (f *fakeReader) ReadObject(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	text, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(strings.NewReader(text)), nil
}

// MockChunkWriter is a mock implementation of ChunkWriter
type MockChunkWriter struct {
	mock.Mock
}

func (m *MockChunkWriter) UpsertChunk(ctx context.Context, c domain.Chunk) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

// MockSubmitter is a mock implementation of Submitter
type MockSubmitter struct {
	mock.Mock
}

func (m *MockSubmitter) Submit(ctx context.Context, c domain.Chunk) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func newTestIntake(reader *fakeReader, chunks ChunkWriter, pipeline Submitter) *Intake {
	return NewIntake(reader, chunker.NewSplitter(chunker.DefaultConfig()), chunks, pipeline, "raw-docs")
}

func TestIntake_ProcessObject(t *testing.T) {
	reader := &fakeReader{objects: map[string]string{
		"raw-docs/guides/a.txt": "First paragraph of the guide.\n\nSecond paragraph of the guide.",
	}}
	chunks := new(MockChunkWriter)
	pipeline := new(MockSubmitter)

	var stored, submitted []domain.Chunk
	chunks.On("UpsertChunk", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		stored = append(stored, args.Get(1).(domain.Chunk))
	}).Return(nil)
	pipeline.On("Submit", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		submitted = append(submitted, args.Get(1).(domain.Chunk))
	}).Return(nil)

	intake := newTestIntake(reader, chunks, pipeline)
	result, err := intake.ProcessObject(context.Background(), "guides/a.txt", "en")

	require.NoError(t, err)
	assert.Equal(t, domain.NewDocID("raw-docs", "guides/a.txt"), result.DocID)
	assert.Equal(t, "en", result.Language)
	require.Equal(t, result.Chunks, len(stored))
	require.Equal(t, stored, submitted)

	for i, c := range stored {
		assert.Equal(t, result.DocID, c.DocID)
		assert.Equal(t, "s3://raw-docs/guides/a.txt", c.SourceURI)
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, len(stored), c.TotalChunks)
		assert.NoError(t, domain.ValidateChunk(&c))
	}
}

func TestIntake_ProcessObject_DefaultsLanguage(t *testing.T) {
	reader := &fakeReader{objects: map[string]string{"raw-docs/b.txt": "Some text."}}
	chunks := new(MockChunkWriter)
	pipeline := new(MockSubmitter)
	chunks.On("UpsertChunk", mock.Anything, mock.Anything).Return(nil)
	pipeline.On("Submit", mock.Anything, mock.Anything).Return(nil)

	intake := newTestIntake(reader, chunks, pipeline)
	result, err := intake.ProcessObject(context.Background(), "b.txt", "")

	require.NoError(t, err)
	assert.Equal(t, "en", result.Language)
}

func TestIntake_ProcessObject_EmptyKey(t *testing.T) {
	intake := newTestIntake(&fakeReader{}, new(MockChunkWriter), new(MockSubmitter))

	_, err := intake.ProcessObject(context.Background(), "", "en")
	assert.ErrorIs(t, err, domain.ErrMissingRequiredField)
}

func TestIntake_ProcessObject_MissingObject(t *testing.T) {
	intake := newTestIntake(&fakeReader{}, new(MockChunkWriter), new(MockSubmitter))

	_, err := intake.ProcessObject(context.Background(), "missing.txt", "en")
	require.Error(t, err)
	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeNotFound, domainErr.Code)
}

func TestIntake_ProcessObject_DeterministicDocID(t *testing.T) {
	reader := &fakeReader{objects: map[string]string{"raw-docs/c.txt": "Stable text."}}
	chunks := new(MockChunkWriter)
	pipeline := new(MockSubmitter)
	chunks.On("UpsertChunk", mock.Anything, mock.Anything).Return(nil)
	pipeline.On("Submit", mock.Anything, mock.Anything).Return(nil)

	intake := newTestIntake(reader, chunks, pipeline)
	first, err := intake.ProcessObject(context.Background(), "c.txt", "en")
	require.NoError(t, err)
	second, err := intake.ProcessObject(context.Background(), "c.txt", "en")
	require.NoError(t, err)

	assert.Equal(t, first.DocID, second.DocID)
}

func TestIntake_ProcessObject_StoreFailureStopsEnqueue(t *testing.T) {
	reader := &fakeReader{objects: map[string]string{"raw-docs/d.txt": "Text to chunk."}}
	chunks := new(MockChunkWriter)
	pipeline := new(MockSubmitter)
	chunks.On("UpsertChunk", mock.Anything, mock.Anything).Return(errors.New("db down"))

	intake := newTestIntake(reader, chunks, pipeline)
	_, err := intake.ProcessObject(context.Background(), "d.txt", "en")

	require.Error(t, err)
	pipeline.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}
