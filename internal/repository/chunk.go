package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quarrylabs/quarry/internal/domain"
)

// ChunkRepository handles persistence of chunk metadata, the text and
// provenance hydrated back at query time.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

// UpsertChunk writes one chunk's metadata keyed by chunk ID. Redelivered
// documents overwrite in place, so ingestion stays idempotent.
func (r *ChunkRepository) UpsertChunk(ctx context.Context, c domain.Chunk) error {
	now := time.Now().UTC()
	_, err := r.db.Exec(ctx,
		`INSERT INTO chunks (chunk_id, doc_id, source_uri, text, language, chunk_index, total_chunks, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		 ON CONFLICT (chunk_id) DO UPDATE SET
			doc_id = EXCLUDED.doc_id,
			source_uri = EXCLUDED.source_uri,
			text = EXCLUDED.text,
			language = EXCLUDED.language,
			chunk_index = EXCLUDED.chunk_index,
			total_chunks = EXCLUDED.total_chunks,
			updated_at = EXCLUDED.updated_at`,
		c.ChunkID, c.DocID, c.SourceURI, c.Text, c.Language, c.ChunkIndex, c.TotalChunks, now,
	)
	return err
}

func (r *ChunkRepository) GetByID(ctx context.Context, chunkID string) (*domain.Chunk, error) {
	var c domain.Chunk
	err := r.db.QueryRow(ctx,
		`SELECT chunk_id, doc_id, source_uri, text, language, chunk_index, total_chunks
		 FROM chunks WHERE chunk_id = $1`,
		chunkID,
	).Scan(&c.ChunkID, &c.DocID, &c.SourceURI, &c.Text, &c.Language, &c.ChunkIndex, &c.TotalChunks)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrChunkNotFound
		}
		return nil, err
	}
	return &c, nil
}

// GetByIDs returns the chunks for the given IDs, keyed by chunk ID.
// IDs with no stored metadata are simply absent from the result.
func (r *ChunkRepository) GetByIDs(ctx context.Context, ids []string) (map[string]domain.Chunk, error) {
	results := make(map[string]domain.Chunk, len(ids))
	if len(ids) == 0 {
		return results, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT chunk_id, doc_id, source_uri, text, language, chunk_index, total_chunks
		 FROM chunks WHERE chunk_id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var c domain.Chunk
		if err := rows.Scan(&c.ChunkID, &c.DocID, &c.SourceURI, &c.Text, &c.Language, &c.ChunkIndex, &c.TotalChunks); err != nil {
			return nil, err
		}
		results[c.ChunkID] = c
	}

	return results, rows.Err()
}

// DeleteByDoc removes every chunk belonging to a document.
func (r *ChunkRepository) DeleteByDoc(ctx context.Context, docID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM chunks WHERE doc_id = $1`, docID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
