//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/quarrylabs/quarry/internal/domain"
	"github.com/quarrylabs/quarry/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unit vector along one axis; 1536 dimensions to match the schema
func axisVector(axis int) []float32 {
	v := make([]float32, 1536)
	v[axis] = 1
	return v
}

func storedRecord(chunkID string, axis int) domain.EmbeddingRecord {
	return domain.EmbeddingRecord{
		ID:     chunkID,
		Vector: axisVector(axis),
		Metadata: domain.RecordMetadata{
			DocID:     "doc-1",
			SourceURI: "s3://raw-docs/a.txt",
			Language:  "en",
		},
	}
}

func TestEmbeddingRepository_SearchOrdersByDistance(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewEmbeddingRepository(pool)

	// axis 0 is the query direction; axis 1 is orthogonal; a mixed
	// vector lands in between
	require.NoError(t, repo.UpsertEmbedding(ctx, storedRecord("exact", 0)))
	require.NoError(t, repo.UpsertEmbedding(ctx, storedRecord("orthogonal", 1)))

	mixed := storedRecord("partial", 0)
	mixed.Vector[1] = 1
	require.NoError(t, repo.UpsertEmbedding(ctx, mixed))

	neighbors, err := repo.Search(ctx, axisVector(0), 3)
	require.NoError(t, err)
	require.Len(t, neighbors, 3)

	assert.Equal(t, "exact", neighbors[0].ID)
	assert.Equal(t, "partial", neighbors[1].ID)
	assert.Equal(t, "orthogonal", neighbors[2].ID)
	assert.InDelta(t, 0.0, neighbors[0].Distance, 0.001)
	assert.Less(t, neighbors[1].Distance, neighbors[2].Distance)
}

func TestEmbeddingRepository_SearchRespectsLimit(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewEmbeddingRepository(pool)

	for i := 0; i < 10; i++ {
		require.NoError(t, repo.UpsertEmbedding(ctx, storedRecord(domain.NewChunkID("doc-1", i), i)))
	}

	neighbors, err := repo.Search(ctx, axisVector(0), 4)
	require.NoError(t, err)
	assert.Len(t, neighbors, 4)
}

func TestEmbeddingRepository_SearchEmptyTable(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewEmbeddingRepository(pool)

	neighbors, err := repo.Search(ctx, axisVector(0), 5)
	require.NoError(t, err)
	assert.Empty(t, neighbors)
}

func TestEmbeddingRepository_UpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewEmbeddingRepository(pool)

	require.NoError(t, repo.UpsertEmbedding(ctx, storedRecord("chunk-a", 0)))
	require.NoError(t, repo.UpsertEmbedding(ctx, storedRecord("chunk-a", 1)))

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunk_embeddings`).Scan(&count))
	assert.Equal(t, 1, count)

	neighbors, err := repo.Search(ctx, axisVector(1), 1)
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.InDelta(t, 0.0, neighbors[0].Distance, 0.001)
}

func TestEmbeddingRepository_UpsertBatch(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewEmbeddingRepository(pool)

	records := []domain.EmbeddingRecord{
		storedRecord("chunk-0", 0),
		storedRecord("chunk-1", 1),
		storedRecord("chunk-2", 2),
	}
	require.NoError(t, repo.UpsertBatch(ctx, records))

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunk_embeddings`).Scan(&count))
	assert.Equal(t, 3, count)
}
