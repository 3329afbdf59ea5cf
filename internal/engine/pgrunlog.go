package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRunLog persists run progress in workflow_runs and workflow_steps so a
// restarted process can pick up in-flight runs.
type PGRunLog struct {
	pool *pgxpool.Pool
}

func NewPGRunLog(pool *pgxpool.Pool) *PGRunLog {
	return &PGRunLog{pool: pool}
}

func (l *PGRunLog) Create(ctx context.Context, run Run) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO workflow_runs (id, feedback_id, moderate, status)
		VALUES ($1, $2, $3, $4)`,
		run.ID, run.FeedbackID, run.Moderate, string(run.Status),
	)
	if err != nil {
		return fmt.Errorf("create workflow run: %w", err)
	}
	return nil
}

func (l *PGRunLog) Append(ctx context.Context, runID uuid.UUID, stage string, output []byte) error {
	if output == nil {
		output = []byte("null")
	}
	// Replays can re-record a stage; the stored output wins.
	_, err := l.pool.Exec(ctx, `
		INSERT INTO workflow_steps (run_id, stage, output)
		VALUES ($1, $2, $3)
		ON CONFLICT (run_id, stage) DO NOTHING`,
		runID, stage, output,
	)
	if err != nil {
		return fmt.Errorf("append workflow step: %w", err)
	}
	return nil
}

func (l *PGRunLog) Stages(ctx context.Context, runID uuid.UUID) (map[string]StageResult, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT stage, output, recorded_at
		FROM workflow_steps
		WHERE run_id = $1`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("load workflow steps: %w", err)
	}
	defer rows.Close()

	out := make(map[string]StageResult)
	for rows.Next() {
		var r StageResult
		if err := rows.Scan(&r.Stage, &r.Output, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan workflow step: %w", err)
		}
		out[r.Stage] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func (l *PGRunLog) SetStatus(ctx context.Context, runID uuid.UUID, status RunStatus) error {
	_, err := l.pool.Exec(ctx, `
		UPDATE workflow_runs SET status = $1, updated_at = now() WHERE id = $2`,
		string(status), runID,
	)
	if err != nil {
		return fmt.Errorf("set run status: %w", err)
	}
	return nil
}

func (l *PGRunLog) Release(ctx context.Context, runID uuid.UUID) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin release: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM workflow_steps WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("release workflow steps: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM workflow_runs WHERE id = $1`, runID); err != nil {
		return fmt.Errorf("release workflow run: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit release: %w", err)
	}
	return nil
}

func (l *PGRunLog) Resumable(ctx context.Context) ([]Run, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, feedback_id, moderate, status
		FROM workflow_runs
		WHERE status = $1
		ORDER BY created_at`, string(RunStatusRunning),
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load resumable runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var run Run
		var status string
		if err := rows.Scan(&run.ID, &run.FeedbackID, &run.Moderate, &status); err != nil {
			return nil, fmt.Errorf("scan workflow run: %w", err)
		}
		run.Status = RunStatus(status)
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}
