package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of one workflow run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusRejected  RunStatus = "rejected"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one instance of the pipeline bound to a single feedback record.
type Run struct {
	ID         uuid.UUID
	FeedbackID uuid.UUID
	Moderate   bool
	Status     RunStatus
}

// StageResult is one entry in a run's append-only log: the stage name and
// the output it produced, recorded before the output is acted on.
type StageResult struct {
	Stage      string
	Output     []byte
	RecordedAt time.Time
}

// RunLog is the durable progress record that lets a crashed or retried run
// resume at its last completed stage instead of restarting.
type RunLog interface {
	Create(ctx context.Context, run Run) error
	Append(ctx context.Context, runID uuid.UUID, stage string, output []byte) error
	Stages(ctx context.Context, runID uuid.UUID) (map[string]StageResult, error)
	SetStatus(ctx context.Context, runID uuid.UUID, status RunStatus) error
	// Release drops the run's durable state after a terminal
	// completion/rejection.
	Release(ctx context.Context, runID uuid.UUID) error
	// Resumable returns runs still marked running, for re-drive at boot.
	Resumable(ctx context.Context) ([]Run, error)
}

// MemoryRunLog is the in-process run log used by tests and single-node
// deployments without Postgres.
type MemoryRunLog struct {
	mu     sync.Mutex
	runs   map[uuid.UUID]*Run
	stages map[uuid.UUID]map[string]StageResult
}

func NewMemoryRunLog() *MemoryRunLog {
	return &MemoryRunLog{
		runs:   make(map[uuid.UUID]*Run),
		stages: make(map[uuid.UUID]map[string]StageResult),
	}
}

func (l *MemoryRunLog) Create(ctx context.Context, run Run) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := run
	l.runs[run.ID] = &cp
	l.stages[run.ID] = make(map[string]StageResult)
	return nil
}

func (l *MemoryRunLog) Append(ctx context.Context, runID uuid.UUID, stage string, output []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stages[runID] == nil {
		l.stages[runID] = make(map[string]StageResult)
	}
	l.stages[runID][stage] = StageResult{
		Stage:      stage,
		Output:     append([]byte(nil), output...),
		RecordedAt: time.Now().UTC(),
	}
	return nil
}

func (l *MemoryRunLog) Stages(ctx context.Context, runID uuid.UUID) (map[string]StageResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]StageResult, len(l.stages[runID]))
	for k, v := range l.stages[runID] {
		out[k] = v
	}
	return out, nil
}

func (l *MemoryRunLog) SetStatus(ctx context.Context, runID uuid.UUID, status RunStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if run, ok := l.runs[runID]; ok {
		run.Status = status
	}
	return nil
}

func (l *MemoryRunLog) Release(ctx context.Context, runID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.runs, runID)
	delete(l.stages, runID)
	return nil
}

func (l *MemoryRunLog) Resumable(ctx context.Context) ([]Run, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Run
	for _, run := range l.runs {
		if run.Status == RunStatusRunning {
			out = append(out, *run)
		}
	}
	return out, nil
}

// Status reports a run's current status and whether its state is still held.
func (l *MemoryRunLog) Status(runID uuid.UUID) (RunStatus, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	run, ok := l.runs[runID]
	if !ok {
		return "", false
	}
	return run.Status, true
}
