package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/openwall-hq/wallboard/internal/analysis"
	"github.com/openwall-hq/wallboard/internal/simindex"
	"github.com/openwall-hq/wallboard/internal/store"
	"github.com/openwall-hq/wallboard/internal/topics"
)

type fakeClassifier struct {
	calls int
	fn    func() (analysis.Approval, error)
}

func (f *fakeClassifier) Classify(ctx context.Context, text string) (analysis.Approval, error) {
	f.calls++
	if f.fn != nil {
		return f.fn()
	}
	return analysis.ApprovalApproved, nil
}

type fakeEmbedder struct {
	calls  int
	vector []float64
	fn     func(attempt int) ([]float64, error)
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	f.calls++
	if f.fn != nil {
		return f.fn(f.calls)
	}
	return f.vector, nil
}

type fakeExtractor struct {
	calls  int
	result analysis.Extraction
	fn     func() (analysis.Extraction, error)
}

func (f *fakeExtractor) Extract(ctx context.Context, text string) (analysis.Extraction, error) {
	f.calls++
	if f.fn != nil {
		return f.fn()
	}
	return f.result, nil
}

type recordedEvent struct {
	subject string
	payload any
}

type fakePublisher struct {
	events []recordedEvent
}

func (f *fakePublisher) Publish(subject string, payload any) error {
	f.events = append(f.events, recordedEvent{subject: subject, payload: payload})
	return nil
}

type pipeline struct {
	store      *store.Memory
	index      *simindex.Memory
	ledger     *topics.Memory
	runlog     *MemoryRunLog
	classifier *fakeClassifier
	embedder   *fakeEmbedder
	extractor  *fakeExtractor
	events     *fakePublisher
	engine     *Engine
}

func newPipeline(opts Options) *pipeline {
	if opts.RetryBase == 0 {
		opts.RetryBase = time.Millisecond
	}
	p := &pipeline{
		store:  store.NewMemory(),
		index:  simindex.NewMemory(3),
		ledger: topics.NewMemory(),
		runlog: NewMemoryRunLog(),
		classifier: &fakeClassifier{},
		embedder:   &fakeEmbedder{vector: []float64{1, 0, 0}},
		extractor: &fakeExtractor{result: analysis.Extraction{
			Topics:    []string{"slow wifi", "library"},
			Sentiment: analysis.SentimentNegative,
		}},
		events: &fakePublisher{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p.engine = New(p.store, p.index, p.ledger, p.runlog,
		p.classifier, p.embedder, p.extractor, p.events, logger, opts)
	return p
}

func (p *pipeline) submit(t *testing.T, content string) *store.Feedback {
	t.Helper()
	f := &store.Feedback{
		Content:  content,
		AuthorID: uuid.New(),
		Status:   store.StatusOpen,
		Approval: analysis.ApprovalPending,
	}
	if err := p.store.Insert(context.Background(), f); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	return f
}

func (p *pipeline) run(t *testing.T, f *store.Feedback, moderate bool) uuid.UUID {
	t.Helper()
	runID, err := p.engine.Start(context.Background(), f.ID, f.Content, moderate)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	p.engine.Wait()
	return runID
}

func TestRun_RejectedStopsPipeline(t *testing.T) {
	p := newPipeline(Options{})
	p.classifier.fn = func() (analysis.Approval, error) {
		return analysis.ApprovalRejected, nil
	}

	f := p.submit(t, "hostile nonsense")
	runID := p.run(t, f, true)

	got, _ := p.store.Get(context.Background(), f.ID)
	if got.Approval != analysis.ApprovalRejected {
		t.Errorf("expected rejected approval, got %q", got.Approval)
	}
	if got.Published {
		t.Error("rejected feedback must stay unpublished")
	}
	if p.embedder.calls != 0 || p.extractor.calls != 0 {
		t.Errorf("rejected run must not reach embedder/extractor, got %d/%d calls",
			p.embedder.calls, p.extractor.calls)
	}
	if _, held := p.runlog.Status(runID); held {
		t.Error("terminal rejection must release run state")
	}
}

func TestRun_ApprovedNoMatchExtracts(t *testing.T) {
	p := newPipeline(Options{})

	f := p.submit(t, "the wifi in the library is slow")
	runID := p.run(t, f, true)

	got, _ := p.store.Get(context.Background(), f.ID)
	if !got.Published {
		t.Fatal("expected published record")
	}
	if got.Sentiment != analysis.SentimentNegative {
		t.Errorf("expected negative sentiment, got %q", got.Sentiment)
	}
	if len(got.Topics) != 2 {
		t.Errorf("expected 2 topics, got %v", got.Topics)
	}
	if got.EmbeddingID == nil {
		t.Error("expected attached embedding id")
	}
	if p.extractor.calls != 1 {
		t.Errorf("expected one extractor call, got %d", p.extractor.calls)
	}

	for _, name := range []string{"slow wifi", "library"} {
		topic, ok := p.ledger.Get(name)
		if !ok {
			t.Fatalf("expected topic %q in ledger", name)
		}
		if topic.Occurrences != 1 || topic.Negative != 1 {
			t.Errorf("topic %q: occurrences=%d negative=%d, want 1/1",
				name, topic.Occurrences, topic.Negative)
		}
	}

	if p.index.Len() != 1 {
		t.Errorf("expected 1 index entry, got %d", p.index.Len())
	}
	if _, held := p.runlog.Status(runID); held {
		t.Error("completed run must release its state")
	}
}

func TestRun_ReusesNeighborAboveThreshold(t *testing.T) {
	p := newPipeline(Options{ReuseThreshold: 0.9})

	// Publish a first record the normal way so its analysis is indexed.
	first := p.submit(t, "the wifi is slow")
	p.run(t, first, true)
	if p.extractor.calls != 1 {
		t.Fatalf("setup: expected one extractor call, got %d", p.extractor.calls)
	}

	// Identical vector, cosine 1.0: the duplicate must copy, not extract.
	second := p.submit(t, "wifi is really slow")
	p.run(t, second, true)

	if p.extractor.calls != 1 {
		t.Errorf("duplicate must not call the extractor, got %d calls", p.extractor.calls)
	}
	got, _ := p.store.Get(context.Background(), second.ID)
	if !got.Published {
		t.Fatal("expected duplicate published")
	}
	if got.Sentiment != analysis.SentimentNegative || len(got.Topics) != 2 {
		t.Errorf("expected copied analysis, got sentiment=%q topics=%v", got.Sentiment, got.Topics)
	}

	// Both records contribute to the shared tallies.
	topic, _ := p.ledger.Get("slow wifi")
	if topic.Occurrences != 2 || topic.Negative != 2 {
		t.Errorf("expected occurrences=2 negative=2, got %d/%d", topic.Occurrences, topic.Negative)
	}
	if p.index.Len() != 2 {
		t.Errorf("duplicate still gets its own index entry, got %d", p.index.Len())
	}
}

func TestRun_OrphanEmbeddingExtracts(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(Options{ReuseThreshold: 0.9})

	// An embedding whose feedback record is gone must not be reused.
	if _, err := p.index.Insert(ctx, simindex.Entry{FeedbackID: uuid.New(), Vector: []float64{1, 0, 0}}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	f := p.submit(t, "the wifi is slow")
	p.run(t, f, true)

	if p.extractor.calls != 1 {
		t.Errorf("orphan neighbor must fall back to extraction, got %d calls", p.extractor.calls)
	}
	got, _ := p.store.Get(ctx, f.ID)
	if !got.Published || got.Sentiment != analysis.SentimentNegative {
		t.Errorf("expected record published with its own analysis, got published=%v sentiment=%q",
			got.Published, got.Sentiment)
	}
}

func TestRun_BelowThresholdExtracts(t *testing.T) {
	p := newPipeline(Options{ReuseThreshold: 0.9})

	first := p.submit(t, "the wifi is slow")
	p.run(t, first, true)

	// Orthogonal vector, cosine 0: novel content.
	p.embedder.vector = []float64{0, 1, 0}
	p.extractor.result = analysis.Extraction{
		Topics:    []string{"cafeteria food"},
		Sentiment: analysis.SentimentPositive,
	}

	second := p.submit(t, "cafeteria food is great")
	p.run(t, second, true)

	if p.extractor.calls != 2 {
		t.Errorf("novel content must call the extractor, got %d calls", p.extractor.calls)
	}
	got, _ := p.store.Get(context.Background(), second.ID)
	if got.Sentiment != analysis.SentimentPositive {
		t.Errorf("expected its own sentiment, got %q", got.Sentiment)
	}
}

func TestRun_SkipsModeration(t *testing.T) {
	p := newPipeline(Options{})

	f := p.submit(t, "re-approved feedback")
	f.Approval = analysis.ApprovalApproved
	p.store.Patch(context.Background(), f.ID, store.ApprovalPatch(analysis.ApprovalApproved))

	p.run(t, f, false)

	if p.classifier.calls != 0 {
		t.Errorf("moderation skipped, classifier must not be called, got %d", p.classifier.calls)
	}
	got, _ := p.store.Get(context.Background(), f.ID)
	if !got.Published {
		t.Error("expected published record")
	}
}

func TestStep_RetriesUnavailablePort(t *testing.T) {
	p := newPipeline(Options{MaxStepAttempts: 4})
	p.embedder.fn = func(attempt int) ([]float64, error) {
		if attempt < 3 {
			return nil, analysis.ErrEmbedderUnavailable
		}
		return []float64{1, 0, 0}, nil
	}

	f := p.submit(t, "retry me")
	runID := p.run(t, f, true)

	if p.embedder.calls != 3 {
		t.Errorf("expected 3 embed attempts, got %d", p.embedder.calls)
	}
	got, _ := p.store.Get(context.Background(), f.ID)
	if !got.Published {
		t.Error("expected run to complete after retries")
	}
	if _, held := p.runlog.Status(runID); held {
		t.Error("completed run must release its state")
	}
}

func TestStep_ExhaustedRetriesFailRun(t *testing.T) {
	p := newPipeline(Options{MaxStepAttempts: 2})
	p.extractor.fn = func() (analysis.Extraction, error) {
		return analysis.Extraction{}, analysis.ErrExtractorUnavailable
	}

	f := p.submit(t, "extractor is down")
	runID := p.run(t, f, true)

	if p.extractor.calls != 2 {
		t.Errorf("expected 2 extract attempts, got %d", p.extractor.calls)
	}

	status, held := p.runlog.Status(runID)
	if !held || status != RunStatusFailed {
		t.Errorf("expected retained failed run, got status=%q held=%v", status, held)
	}

	// The completed stages' effects stand: approved but never published.
	got, _ := p.store.Get(context.Background(), f.ID)
	if got.Approval != analysis.ApprovalApproved {
		t.Errorf("expected approved, got %q", got.Approval)
	}
	if got.Published {
		t.Error("failed run must not publish")
	}

	var sawFailure bool
	for _, ev := range p.events.events {
		if ev.subject == "wallboard.analysis.failed" {
			sawFailure = true
		}
	}
	if !sawFailure {
		t.Error("expected analysis failure event")
	}
}

func TestStep_FatalErrorDoesNotRetry(t *testing.T) {
	p := newPipeline(Options{MaxStepAttempts: 4})
	p.embedder.fn = func(int) ([]float64, error) {
		return nil, analysis.ErrDimensionMismatch
	}

	f := p.submit(t, "bad dimension")
	runID := p.run(t, f, true)

	if p.embedder.calls != 1 {
		t.Errorf("fatal error must not retry, got %d calls", p.embedder.calls)
	}
	status, held := p.runlog.Status(runID)
	if !held || status != RunStatusFailed {
		t.Errorf("expected retained failed run, got status=%q held=%v", status, held)
	}
}

func TestResume_SkipsRecordedStages(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(Options{})

	f := p.submit(t, "interrupted mid-pipeline")
	p.store.Patch(ctx, f.ID, store.ApprovalPatch(analysis.ApprovalApproved))

	// Simulate a crash after moderate, set_approval, and embed were logged
	// but before the rest of the pipeline ran.
	run := Run{ID: uuid.New(), FeedbackID: f.ID, Moderate: true, Status: RunStatusRunning}
	if err := p.runlog.Create(ctx, run); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	mod, _ := json.Marshal(moderateOutput{Approval: analysis.ApprovalApproved})
	p.runlog.Append(ctx, run.ID, stageModerate, mod)
	p.runlog.Append(ctx, run.ID, stageSetApproval, []byte("null"))
	emb, _ := json.Marshal(embedOutput{Vector: []float64{1, 0, 0}})
	p.runlog.Append(ctx, run.ID, stageEmbed, emb)

	if err := p.engine.Resume(ctx); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	p.engine.Wait()

	if p.classifier.calls != 0 {
		t.Errorf("recorded moderation must not re-call the classifier, got %d", p.classifier.calls)
	}
	if p.embedder.calls != 0 {
		t.Errorf("recorded embedding must not re-call the embedder, got %d", p.embedder.calls)
	}
	if p.extractor.calls != 1 {
		t.Errorf("remaining stages must run, got %d extractor calls", p.extractor.calls)
	}

	got, _ := p.store.Get(ctx, f.ID)
	if !got.Published {
		t.Error("resumed run must finish publishing")
	}
	if _, held := p.runlog.Status(run.ID); held {
		t.Error("resumed run must release its state on completion")
	}
}

func TestResume_OrphanRunMarkedFailed(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(Options{})

	run := Run{ID: uuid.New(), FeedbackID: uuid.New(), Moderate: true, Status: RunStatusRunning}
	p.runlog.Create(ctx, run)

	if err := p.engine.Resume(ctx); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	p.engine.Wait()

	status, held := p.runlog.Status(run.ID)
	if !held || status != RunStatusFailed {
		t.Errorf("expected orphan run marked failed, got status=%q held=%v", status, held)
	}
}

func TestDeleteFeedback_ReversesContributions(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(Options{})

	f := p.submit(t, "the wifi is slow")
	p.run(t, f, true)

	if err := p.engine.DeleteFeedback(ctx, f.ID); err != nil {
		t.Fatalf("DeleteFeedback failed: %v", err)
	}

	if _, err := p.store.Get(ctx, f.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected record gone, got %v", err)
	}
	if p.index.Len() != 0 {
		t.Errorf("expected embedding removed, %d entries left", p.index.Len())
	}
	topic, ok := p.ledger.Get("slow wifi")
	if !ok {
		t.Fatal("topic row survives with zeroed counters")
	}
	if topic.Occurrences != 0 || topic.Negative != 0 {
		t.Errorf("expected zeroed tallies, got occurrences=%d negative=%d",
			topic.Occurrences, topic.Negative)
	}

	// A later duplicate of the deleted content must not reuse its analysis.
	again := p.submit(t, "wifi still slow")
	p.run(t, again, true)
	if p.extractor.calls != 2 {
		t.Errorf("deleted embedding must not match, got %d extractor calls", p.extractor.calls)
	}
}

func TestRun_PublishesLifecycleEvents(t *testing.T) {
	p := newPipeline(Options{})

	f := p.submit(t, "event check")
	p.run(t, f, true)

	var subjects []string
	for _, ev := range p.events.events {
		subjects = append(subjects, ev.subject)
	}
	if len(subjects) != 1 || subjects[0] != "wallboard.feedback.published" {
		t.Errorf("expected one published event, got %v", subjects)
	}
}
