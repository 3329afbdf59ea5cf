package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openwall-hq/wallboard/internal/analysis"
)

type PG struct {
	pool *pgxpool.Pool
}

func NewPG(ctx context.Context, databaseURL string) (*PG, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PG{pool: pool}, nil
}

// NewPGFromPool wraps an existing pool, shared with the ledger and index.
func NewPGFromPool(pool *pgxpool.Pool) *PG {
	return &PG{pool: pool}
}

func (s *PG) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *PG) Close() {
	s.pool.Close()
}

const feedbackColumns = `id, content, author_id, status, approval, sentiment, topics, published, votes, embedding_id, created_at`

func (s *PG) Insert(ctx context.Context, f *Feedback) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	if f.Status == "" {
		f.Status = StatusOpen
	}
	if f.Approval == "" {
		f.Approval = analysis.ApprovalPending
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO feedbacks (id, content, author_id, status, approval, published, votes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		f.ID, f.Content, f.AuthorID, string(f.Status), string(f.Approval), f.Published, f.Votes, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

func (s *PG) Get(ctx context.Context, id uuid.UUID) (*Feedback, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+feedbackColumns+` FROM feedbacks WHERE id = $1`, id)
	return scanFeedback(row)
}

func (s *PG) GetByEmbeddingID(ctx context.Context, embeddingID uuid.UUID) (*Feedback, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+feedbackColumns+` FROM feedbacks WHERE embedding_id = $1`, embeddingID)
	return scanFeedback(row)
}

func (s *PG) Patch(ctx context.Context, id uuid.UUID, p Patch) error {
	set := make([]string, 0, 6)
	args := make([]any, 0, 7)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if p.Approval != nil {
		set = append(set, "approval = "+arg(string(*p.Approval)))
	}
	if p.Sentiment != nil {
		set = append(set, "sentiment = "+arg(string(*p.Sentiment)))
	}
	if p.Topics != nil {
		set = append(set, "topics = "+arg(p.Topics))
	}
	if p.Published != nil {
		set = append(set, "published = "+arg(*p.Published))
	}
	if p.Status != nil {
		set = append(set, "status = "+arg(string(*p.Status)))
	}
	if p.EmbeddingID != nil {
		set = append(set, "embedding_id = "+arg(*p.EmbeddingID))
	}
	if len(set) == 0 {
		return nil
	}

	query := "UPDATE feedbacks SET "
	for i, clause := range set {
		if i > 0 {
			query += ", "
		}
		query += clause
	}
	query += " WHERE id = " + arg(id)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("patch feedback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM feedbacks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete feedback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PG) ToggleVote(ctx context.Context, feedbackID, userID uuid.UUID) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin vote toggle: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM votes WHERE feedback_id = $1 AND user_id = $2`, feedbackID, userID)
	if err != nil {
		return false, fmt.Errorf("withdraw vote: %w", err)
	}

	voted := false
	if tag.RowsAffected() == 0 {
		if _, err := tx.Exec(ctx, `INSERT INTO votes (feedback_id, user_id) VALUES ($1, $2)`, feedbackID, userID); err != nil {
			return false, fmt.Errorf("record vote: %w", err)
		}
		voted = true
	}

	// The counter moves with the row in the same transaction; the atomic
	// increment serializes concurrent toggles on the same record.
	delta := -1
	if voted {
		delta = 1
	}
	tag, err = tx.Exec(ctx, `UPDATE feedbacks SET votes = GREATEST(votes + $1, 0) WHERE id = $2`, delta, feedbackID)
	if err != nil {
		return false, fmt.Errorf("adjust vote count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit vote toggle: %w", err)
	}
	return voted, nil
}

func (s *PG) ToggleNoted(ctx context.Context, id uuid.UUID) (Status, error) {
	var status string
	err := s.pool.QueryRow(ctx, `
		UPDATE feedbacks
		SET status = CASE WHEN status = 'open' THEN 'noted' ELSE 'open' END
		WHERE id = $1
		RETURNING status`, id,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("toggle noted: %w", err)
	}
	return Status(status), nil
}

func (s *PG) SentimentCounts(ctx context.Context) (SentimentCounts, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT COALESCE(sentiment, ''), COUNT(*)
		FROM feedbacks
		GROUP BY sentiment`)
	if err != nil {
		return SentimentCounts{}, fmt.Errorf("count sentiments: %w", err)
	}
	defer rows.Close()

	var c SentimentCounts
	for rows.Next() {
		var sentiment string
		var n int
		if err := rows.Scan(&sentiment, &n); err != nil {
			return SentimentCounts{}, fmt.Errorf("scan sentiment count: %w", err)
		}
		switch analysis.Sentiment(sentiment) {
		case analysis.SentimentPositive:
			c.Positive = n
		case analysis.SentimentNeutral:
			c.Neutral = n
		case analysis.SentimentNegative:
			c.Negative = n
		}
		c.Total += n
	}
	if err := rows.Err(); err != nil {
		return SentimentCounts{}, fmt.Errorf("rows error: %w", err)
	}
	return c, nil
}

func (s *PG) List(ctx context.Context, f Filter) ([]*Feedback, error) {
	query := `SELECT ` + feedbackColumns + ` FROM feedbacks`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var where []string
	if f.Published != nil {
		where = append(where, "published = "+arg(*f.Published))
	}
	if f.Sentiment != "" {
		where = append(where, "sentiment = "+arg(string(f.Sentiment)))
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(string(f.Status)))
	}
	if f.AuthorID != nil {
		where = append(where, "author_id = "+arg(*f.AuthorID))
	}
	if f.Content != "" {
		where = append(where, "to_tsvector('english', content) @@ plainto_tsquery('english', "+arg(f.Content)+")")
	}

	for i, clause := range where {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}

	if f.VotesOrder == "asc" {
		query += " ORDER BY votes ASC, created_at DESC"
	} else {
		query += " ORDER BY votes DESC, created_at DESC"
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list feedbacks: %w", err)
	}
	defer rows.Close()

	var out []*Feedback
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func scanFeedback(row pgx.Row) (*Feedback, error) {
	var f Feedback
	var status, approval string
	var sentiment *string
	var topics []string
	err := row.Scan(&f.ID, &f.Content, &f.AuthorID, &status, &approval, &sentiment,
		&topics, &f.Published, &f.Votes, &f.EmbeddingID, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan feedback: %w", err)
	}
	f.Status = Status(status)
	f.Approval = analysis.Approval(approval)
	if sentiment != nil {
		f.Sentiment = analysis.Sentiment(*sentiment)
	}
	f.Topics = topics
	return &f, nil
}
