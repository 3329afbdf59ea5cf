package topics

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openwall-hq/wallboard/internal/analysis"
)

// PG is the Postgres ledger. The unique index on topics.topic plus
// ON CONFLICT upserts make concurrent get-or-creates converge on one row,
// and counter updates are plain commutative increments, so concurrent runs
// need no coordination beyond the database's row locks.
type PG struct {
	pool *pgxpool.Pool
}

func NewPG(pool *pgxpool.Pool) *PG {
	return &PG{pool: pool}
}

func (p *PG) AddTopics(ctx context.Context, feedbackID uuid.UUID, topicStrings []string, sentiment analysis.Sentiment) error {
	col, err := sentimentColumn(sentiment)
	if err != nil {
		return err
	}

	for _, name := range topicStrings {
		tx, err := p.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin add topic: %w", err)
		}

		var topicID uuid.UUID
		err = tx.QueryRow(ctx, `
			INSERT INTO topics (id, topic)
			VALUES ($1, $2)
			ON CONFLICT (topic) DO UPDATE SET topic = EXCLUDED.topic
			RETURNING id`,
			uuid.New(), name,
		).Scan(&topicID)
		if err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("get or create topic %q: %w", name, err)
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO feedback_topics (feedback_id, topic_id, sentiment)
			VALUES ($1, $2, $3)
			ON CONFLICT (feedback_id, topic_id) DO NOTHING`,
			feedbackID, topicID, string(sentiment),
		)
		if err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("link topic %q: %w", name, err)
		}

		// Counters move only when the link is new, which keeps AddTopics
		// idempotent per (feedback, topic).
		if tag.RowsAffected() == 1 {
			query := fmt.Sprintf(`
				UPDATE topics
				SET occurrences = occurrences + 1, %s = %s + 1
				WHERE id = $1`, col, col)
			if _, err := tx.Exec(ctx, query, topicID); err != nil {
				tx.Rollback(ctx)
				return fmt.Errorf("increment topic %q: %w", name, err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit add topic %q: %w", name, err)
		}
	}
	return nil
}

func (p *PG) RemoveTopics(ctx context.Context, feedbackID uuid.UUID, topicStrings []string) error {
	for _, name := range topicStrings {
		tx, err := p.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin remove topic: %w", err)
		}

		// The link carries the sentiment it contributed; deleting it tells
		// us exactly which tally to decrement.
		var topicID uuid.UUID
		var linkSentiment string
		err = tx.QueryRow(ctx, `
			DELETE FROM feedback_topics ft
			USING topics t
			WHERE ft.topic_id = t.id AND t.topic = $1 AND ft.feedback_id = $2
			RETURNING ft.topic_id, ft.sentiment`,
			name, feedbackID,
		).Scan(&topicID, &linkSentiment)
		if errors.Is(err, pgx.ErrNoRows) {
			// Unknown topic or no link for this feedback: skip.
			tx.Rollback(ctx)
			continue
		}
		if err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("unlink topic %q: %w", name, err)
		}

		col, err := sentimentColumn(analysis.Sentiment(linkSentiment))
		if err != nil {
			tx.Rollback(ctx)
			return err
		}
		query := fmt.Sprintf(`
			UPDATE topics
			SET occurrences = GREATEST(occurrences - 1, 0),
			    %s = GREATEST(%s - 1, 0)
			WHERE id = $1`, col, col)
		if _, err := tx.Exec(ctx, query, topicID); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("decrement topic %q: %w", name, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit remove topic %q: %w", name, err)
		}
	}
	return nil
}

func (p *PG) List(ctx context.Context) ([]Topic, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, topic, occurrences, positive, neutral, negative
		FROM topics
		ORDER BY occurrences DESC, topic ASC`)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()

	var out []Topic
	for rows.Next() {
		var t Topic
		if err := rows.Scan(&t.ID, &t.Topic, &t.Occurrences, &t.Positive, &t.Neutral, &t.Negative); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func sentimentColumn(s analysis.Sentiment) (string, error) {
	switch s {
	case analysis.SentimentPositive:
		return "positive", nil
	case analysis.SentimentNeutral:
		return "neutral", nil
	case analysis.SentimentNegative:
		return "negative", nil
	default:
		return "", fmt.Errorf("unknown sentiment %q", s)
	}
}
