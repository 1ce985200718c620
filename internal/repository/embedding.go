package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/quarrylabs/quarry/internal/domain"
)

// EmbeddingRepository stores chunk vectors and answers nearest-neighbor
// searches over them.
type EmbeddingRepository struct {
	db dbtx
}

func NewEmbeddingRepository(pool *pgxpool.Pool) *EmbeddingRepository {
	return &EmbeddingRepository{db: pool}
}

func NewEmbeddingRepositoryWithTx(tx pgx.Tx) *EmbeddingRepository {
	return &EmbeddingRepository{db: tx}
}

// UpsertEmbedding writes one record's vector keyed by chunk ID.
func (r *EmbeddingRepository) UpsertEmbedding(ctx context.Context, record domain.EmbeddingRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO chunk_embeddings (chunk_id, doc_id, embedding, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (chunk_id) DO UPDATE SET
			doc_id = EXCLUDED.doc_id,
			embedding = EXCLUDED.embedding,
			updated_at = EXCLUDED.updated_at`,
		record.ID, record.Metadata.DocID, pgvector.NewVector(record.Vector), time.Now().UTC(),
	)
	return err
}

// UpsertBatch writes every record in one staged batch.
func (r *EmbeddingRepository) UpsertBatch(ctx context.Context, records []domain.EmbeddingRecord) error {
	for _, record := range records {
		if err := r.UpsertEmbedding(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

// Search returns the limit nearest chunk IDs by cosine distance,
// closest first.
func (r *EmbeddingRepository) Search(ctx context.Context, vector []float32, limit int) ([]domain.Neighbor, error) {
	if limit <= 0 {
		limit = domain.DefaultMaxResults
	}

	rows, err := r.db.Query(ctx,
		`SELECT chunk_id, embedding <=> $1 AS distance
		 FROM chunk_embeddings
		 ORDER BY distance
		 LIMIT $2`,
		pgvector.NewVector(vector), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	neighbors := make([]domain.Neighbor, 0, limit)
	for rows.Next() {
		var n domain.Neighbor
		if err := rows.Scan(&n.ID, &n.Distance); err != nil {
			return nil, err
		}
		neighbors = append(neighbors, n)
	}

	return neighbors, rows.Err()
}

// DeleteByDoc removes every vector belonging to a document.
func (r *EmbeddingRepository) DeleteByDoc(ctx context.Context, docID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM chunk_embeddings WHERE doc_id = $1`, docID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
