// Package engine drives the feedback analysis pipeline: moderate, embed,
// dedupe-or-extract, publish, attach embedding. Each run keeps an append-only
// stage log so retries and process restarts resume at the last completed
// stage instead of re-invoking ports.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openwall-hq/wallboard/internal/analysis"
	"github.com/openwall-hq/wallboard/internal/events"
	"github.com/openwall-hq/wallboard/internal/simindex"
	"github.com/openwall-hq/wallboard/internal/store"
	"github.com/openwall-hq/wallboard/internal/topics"
)

const (
	stageModerate    = "moderate"
	stageSetApproval = "set_approval"
	stageEmbed       = "embed"
	stageDedupe      = "dedupe"
	stageExtract     = "extract"
	stagePublish     = "publish"
	stageAttach      = "attach_embedding"
)

// Publisher is the slice of the events client the engine needs. Nil disables
// event publishing.
type Publisher interface {
	Publish(subject string, payload any) error
}

type Options struct {
	// ReuseThreshold is the cosine similarity at or above which a neighbor's
	// analysis is copied instead of calling the extractor.
	ReuseThreshold float64
	// MaxStepAttempts bounds retries of a stage on unavailable ports.
	MaxStepAttempts int
	// RetryBase is the first backoff delay; it doubles per attempt.
	RetryBase time.Duration
}

type Engine struct {
	store      store.Store
	index      simindex.Index
	ledger     topics.Ledger
	runlog     RunLog
	classifier analysis.Classifier
	embedder   analysis.Embedder
	extractor  analysis.Extractor
	events     Publisher
	logger     *slog.Logger
	opts       Options

	wg sync.WaitGroup
}

func New(st store.Store, idx simindex.Index, ledger topics.Ledger, runlog RunLog,
	classifier analysis.Classifier, embedder analysis.Embedder, extractor analysis.Extractor,
	pub Publisher, logger *slog.Logger, opts Options) *Engine {

	if opts.ReuseThreshold == 0 {
		opts.ReuseThreshold = 0.9
	}
	if opts.MaxStepAttempts == 0 {
		opts.MaxStepAttempts = 4
	}
	if opts.RetryBase == 0 {
		opts.RetryBase = 500 * time.Millisecond
	}
	return &Engine{
		store:      st,
		index:      idx,
		ledger:     ledger,
		runlog:     runlog,
		classifier: classifier,
		embedder:   embedder,
		extractor:  extractor,
		events:     pub,
		logger:     logger,
		opts:       opts,
	}
}

// Start creates a durable run for the feedback record and drives it in the
// background. With moderate false the moderation stages are skipped and the
// record's existing approval stands (used for re-approval of rejected posts).
func (e *Engine) Start(ctx context.Context, feedbackID uuid.UUID, content string, moderate bool) (uuid.UUID, error) {
	run := Run{
		ID:         uuid.New(),
		FeedbackID: feedbackID,
		Moderate:   moderate,
		Status:     RunStatusRunning,
	}
	if err := e.runlog.Create(ctx, run); err != nil {
		return uuid.Nil, fmt.Errorf("create run: %w", err)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.drive(run, content)
	}()
	return run.ID, nil
}

// Resume re-drives every run still marked running, called once at boot.
// Completed stages are skipped via the run log.
func (e *Engine) Resume(ctx context.Context) error {
	runs, err := e.runlog.Resumable(ctx)
	if err != nil {
		return fmt.Errorf("load resumable runs: %w", err)
	}

	for _, run := range runs {
		f, err := e.store.Get(ctx, run.FeedbackID)
		if errors.Is(err, store.ErrNotFound) {
			// Record deleted while the run was in flight.
			e.logger.Warn("resumable run has no feedback record", "run_id", run.ID, "feedback_id", run.FeedbackID)
			if err := e.runlog.SetStatus(ctx, run.ID, RunStatusFailed); err != nil {
				e.logger.Error("mark orphan run failed", "run_id", run.ID, "error", err)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("load feedback for run %s: %w", run.ID, err)
		}

		e.logger.Info("resuming run", "run_id", run.ID, "feedback_id", run.FeedbackID)
		e.wg.Add(1)
		go func(run Run, content string) {
			defer e.wg.Done()
			e.drive(run, content)
		}(run, f.Content)
	}
	return nil
}

// Wait blocks until all in-flight runs have reached a terminal state.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// DeleteFeedback reverses everything a published record contributed: its
// topic tallies, its index entry, and the record itself.
func (e *Engine) DeleteFeedback(ctx context.Context, id uuid.UUID) error {
	f, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if len(f.Topics) > 0 {
		if err := e.ledger.RemoveTopics(ctx, id, f.Topics); err != nil {
			return fmt.Errorf("remove topics: %w", err)
		}
	}
	if err := e.index.Remove(ctx, id); err != nil {
		return fmt.Errorf("remove embedding: %w", err)
	}
	return e.store.Delete(ctx, id)
}

// Per-stage outputs recorded in the run log. Port results are appended
// before any mutation acts on them, so a crash between record and act
// replays the mutation with the same inputs.
type moderateOutput struct {
	Approval analysis.Approval `json:"approval"`
}

type embedOutput struct {
	Vector []float64 `json:"vector"`
}

type dedupeOutput struct {
	Reused    bool               `json:"reused"`
	Score     float64            `json:"score,omitempty"`
	Sentiment analysis.Sentiment `json:"sentiment,omitempty"`
	Topics    []string           `json:"topics,omitempty"`
}

type extractOutput struct {
	Topics    []string           `json:"topics"`
	Sentiment analysis.Sentiment `json:"sentiment"`
}

type attachOutput struct {
	EmbeddingID uuid.UUID `json:"embedding_id"`
}

func (e *Engine) drive(run Run, content string) {
	ctx := context.Background()
	logger := e.logger.With("run_id", run.ID, "feedback_id", run.FeedbackID)

	done, err := e.runlog.Stages(ctx, run.ID)
	if err != nil {
		e.abort(ctx, logger, run, err)
		return
	}

	if run.Moderate {
		raw, err := e.step(ctx, logger, run.ID, done, stageModerate, func(ctx context.Context) (any, error) {
			verdict, err := e.classifier.Classify(ctx, content)
			if err != nil {
				return nil, err
			}
			return moderateOutput{Approval: verdict}, nil
		})
		if err != nil {
			e.abort(ctx, logger, run, err)
			return
		}
		var mod moderateOutput
		if err := json.Unmarshal(raw, &mod); err != nil {
			e.abort(ctx, logger, run, fmt.Errorf("decode %s output: %w", stageModerate, err))
			return
		}

		if _, err := e.step(ctx, logger, run.ID, done, stageSetApproval, func(ctx context.Context) (any, error) {
			return nil, e.store.Patch(ctx, run.FeedbackID, store.ApprovalPatch(mod.Approval))
		}); err != nil {
			e.abort(ctx, logger, run, err)
			return
		}

		if mod.Approval == analysis.ApprovalRejected {
			logger.Info("feedback rejected")
			e.finish(ctx, logger, run, RunStatusRejected)
			e.publish(events.SubjectFeedbackRejected, map[string]any{"feedback_id": run.FeedbackID})
			return
		}
	}

	raw, err := e.step(ctx, logger, run.ID, done, stageEmbed, func(ctx context.Context) (any, error) {
		vec, err := e.embedder.Embed(ctx, content)
		if err != nil {
			return nil, err
		}
		return embedOutput{Vector: vec}, nil
	})
	if err != nil {
		e.abort(ctx, logger, run, err)
		return
	}
	var emb embedOutput
	if err := json.Unmarshal(raw, &emb); err != nil {
		e.abort(ctx, logger, run, fmt.Errorf("decode %s output: %w", stageEmbed, err))
		return
	}

	raw, err = e.step(ctx, logger, run.ID, done, stageDedupe, func(ctx context.Context) (any, error) {
		match, err := e.index.Query(ctx, emb.Vector)
		if err != nil {
			return nil, err
		}
		out := dedupeOutput{}
		if match == nil {
			return out, nil
		}
		out.Score = match.Score
		if match.Score < e.opts.ReuseThreshold {
			return out, nil
		}

		// The index holds vectors only; the neighbor's analysis lives on
		// its feedback record.
		neighbor, err := e.store.GetByEmbeddingID(ctx, match.EmbeddingID)
		if errors.Is(err, store.ErrNotFound) {
			// Neighbor record gone; treat the submission as novel.
			logger.Warn("nearest embedding has no feedback record", "embedding_id", match.EmbeddingID)
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out.Reused = true
		out.Sentiment = neighbor.Sentiment
		out.Topics = neighbor.Topics
		return out, nil
	})
	if err != nil {
		e.abort(ctx, logger, run, err)
		return
	}
	var dd dedupeOutput
	if err := json.Unmarshal(raw, &dd); err != nil {
		e.abort(ctx, logger, run, fmt.Errorf("decode %s output: %w", stageDedupe, err))
		return
	}

	sentiment := dd.Sentiment
	topicList := dd.Topics
	if dd.Reused {
		logger.Info("reusing neighbor analysis", "score", dd.Score)
	} else {
		raw, err = e.step(ctx, logger, run.ID, done, stageExtract, func(ctx context.Context) (any, error) {
			ex, err := e.extractor.Extract(ctx, content)
			if err != nil {
				return nil, err
			}
			return extractOutput{Topics: ex.Topics, Sentiment: ex.Sentiment}, nil
		})
		if err != nil {
			e.abort(ctx, logger, run, err)
			return
		}
		var ex extractOutput
		if err := json.Unmarshal(raw, &ex); err != nil {
			e.abort(ctx, logger, run, fmt.Errorf("decode %s output: %w", stageExtract, err))
			return
		}
		sentiment = ex.Sentiment
		topicList = ex.Topics
	}

	if _, err := e.step(ctx, logger, run.ID, done, stagePublish, func(ctx context.Context) (any, error) {
		if err := e.store.Patch(ctx, run.FeedbackID, store.PublishPatch(sentiment, topicList)); err != nil {
			return nil, err
		}
		return nil, e.ledger.AddTopics(ctx, run.FeedbackID, topicList, sentiment)
	}); err != nil {
		e.abort(ctx, logger, run, err)
		return
	}

	if _, err := e.step(ctx, logger, run.ID, done, stageAttach, func(ctx context.Context) (any, error) {
		embID, err := e.index.Insert(ctx, simindex.Entry{
			FeedbackID: run.FeedbackID,
			Vector:     emb.Vector,
		})
		if err != nil {
			return nil, err
		}
		if err := e.store.Patch(ctx, run.FeedbackID, store.Patch{EmbeddingID: &embID}); err != nil {
			return nil, err
		}
		return attachOutput{EmbeddingID: embID}, nil
	}); err != nil {
		e.abort(ctx, logger, run, err)
		return
	}

	e.finish(ctx, logger, run, RunStatusCompleted)
	e.publish(events.SubjectFeedbackPublished, map[string]any{
		"feedback_id": run.FeedbackID,
		"sentiment":   sentiment,
		"topics":      topicList,
		"reused":      dd.Reused,
	})
	logger.Info("run completed", "reused", dd.Reused, "topics", len(topicList))
}

// step runs one stage. If the stage is already in the run log its recorded
// output is returned without re-executing. Otherwise the stage runs with
// bounded exponential backoff on unavailable ports, and its output is
// appended to the log before step returns. Any non-unavailable error is
// fatal to the run.
func (e *Engine) step(ctx context.Context, logger *slog.Logger, runID uuid.UUID,
	done map[string]StageResult, stage string, fn func(context.Context) (any, error)) ([]byte, error) {

	if rec, ok := done[stage]; ok {
		logger.Debug("stage replayed from log", "stage", stage)
		return rec.Output, nil
	}

	var out []byte
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			out, err = json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("%s: encode output: %w", stage, err)
			}
			break
		}
		if !errors.Is(err, analysis.ErrUnavailable) {
			return nil, fmt.Errorf("%s: %w", stage, err)
		}
		if attempt >= e.opts.MaxStepAttempts {
			return nil, fmt.Errorf("%s: %d attempts exhausted: %w", stage, attempt, err)
		}

		delay := e.opts.RetryBase * time.Duration(1<<(attempt-1))
		logger.Warn("stage unavailable, retrying", "stage", stage, "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	if err := e.runlog.Append(ctx, runID, stage, out); err != nil {
		return nil, fmt.Errorf("%s: record output: %w", stage, err)
	}
	return out, nil
}

func (e *Engine) finish(ctx context.Context, logger *slog.Logger, run Run, status RunStatus) {
	if err := e.runlog.SetStatus(ctx, run.ID, status); err != nil {
		logger.Error("set run status", "status", status, "error", err)
		return
	}
	if err := e.runlog.Release(ctx, run.ID); err != nil {
		logger.Error("release run state", "error", err)
	}
}

// abort marks the run failed and keeps its log for inspection and manual
// re-drive. The record stays in whatever state the completed stages left it.
func (e *Engine) abort(ctx context.Context, logger *slog.Logger, run Run, err error) {
	logger.Error("run failed", "error", err)
	if serr := e.runlog.SetStatus(ctx, run.ID, RunStatusFailed); serr != nil {
		logger.Error("mark run failed", "error", serr)
	}
	e.publish(events.SubjectAnalysisFailed, map[string]any{
		"feedback_id": run.FeedbackID,
		"run_id":      run.ID,
		"error":       err.Error(),
	})
}

// Event delivery is best-effort; the client logs failures.
func (e *Engine) publish(subject string, payload any) {
	if e.events == nil {
		return
	}
	_ = e.events.Publish(subject, payload)
}
