package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quarrylabs/quarry/internal/domain"
)

// PromptRepository stores versioned answer-generation templates.
type PromptRepository struct {
	db dbtx
}

func NewPromptRepository(pool *pgxpool.Pool) *PromptRepository {
	return &PromptRepository{db: pool}
}

// GetLatest returns the most recently created template.
func (r *PromptRepository) GetLatest(ctx context.Context) (*domain.PromptTemplate, error) {
	var t domain.PromptTemplate
	err := r.db.QueryRow(ctx,
		`SELECT version, template FROM prompt_templates ORDER BY created_at DESC, version DESC LIMIT 1`,
	).Scan(&t.Version, &t.Template)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTemplateNotFound
		}
		return nil, err
	}
	return &t, nil
}

// GetByVersion returns one template by its version string.
func (r *PromptRepository) GetByVersion(ctx context.Context, version string) (*domain.PromptTemplate, error) {
	var t domain.PromptTemplate
	err := r.db.QueryRow(ctx,
		`SELECT version, template FROM prompt_templates WHERE version = $1`,
		version,
	).Scan(&t.Version, &t.Template)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTemplateNotFound
		}
		return nil, err
	}
	return &t, nil
}

// Upsert writes a template under its version.
func (r *PromptRepository) Upsert(ctx context.Context, t domain.PromptTemplate) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO prompt_templates (version, template, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (version) DO UPDATE SET template = EXCLUDED.template`,
		t.Version, t.Template, time.Now().UTC(),
	)
	return err
}
