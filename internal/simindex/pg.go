package simindex

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openwall-hq/wallboard/internal/analysis"
)

// PG is a pgvector-backed index over the feedback_embeddings table.
type PG struct {
	pool *pgxpool.Pool
	dim  int
}

func NewPG(pool *pgxpool.Pool, dim int) *PG {
	return &PG{pool: pool, dim: dim}
}

func (p *PG) Query(ctx context.Context, vector []float64) (*Match, error) {
	if len(vector) != p.dim {
		return nil, fmt.Errorf("%w: query has %d values, index expects %d", analysis.ErrDimensionMismatch, len(vector), p.dim)
	}

	query := `
		SELECT id, feedback_id, 1 - (embedding <=> $1) AS similarity
		FROM feedback_embeddings
		ORDER BY embedding <=> $1
		LIMIT 1`

	var m Match
	err := p.pool.QueryRow(ctx, query, pgVector(vector)).
		Scan(&m.EmbeddingID, &m.FeedbackID, &m.Score)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query nearest embedding: %w", err)
	}
	return &m, nil
}

func (p *PG) Insert(ctx context.Context, e Entry) (uuid.UUID, error) {
	if len(e.Vector) != p.dim {
		return uuid.Nil, fmt.Errorf("%w: entry has %d values, index expects %d", analysis.ErrDimensionMismatch, len(e.Vector), p.dim)
	}

	query := `
		INSERT INTO feedback_embeddings (id, feedback_id, embedding)
		VALUES ($1, $2, $3)
		ON CONFLICT (feedback_id) DO UPDATE
		SET embedding = EXCLUDED.embedding
		RETURNING id`

	var id uuid.UUID
	err := p.pool.QueryRow(ctx, query,
		uuid.New(), e.FeedbackID, pgVector(e.Vector),
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert embedding: %w", err)
	}
	return id, nil
}

func (p *PG) Remove(ctx context.Context, feedbackID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM feedback_embeddings WHERE feedback_id = $1`, feedbackID)
	if err != nil {
		return fmt.Errorf("remove embedding: %w", err)
	}
	return nil
}

// pgVector formats a float64 slice as a pgvector-compatible string literal,
// e.g. "[0.1,0.2,0.3]", suitable for a parameterized query targeting a
// vector column.
func pgVector(v []float64) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = fmt.Sprintf("%g", f)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
