package graph

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/presslens/presslens/internal/domain"
)

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *recordingSink) Emit(e domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) count(kind domain.EventKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func newTestContext() *domain.AnalysisContext {
	return domain.NewAnalysisContext(uuid.New(), &domain.Article{
		ID:   uuid.New(),
		Text: "Some article text.",
	})
}

func newTestRunner(t *testing.T, def *Definition, reg *Registry, sink domain.EventSink) *Runner {
	t.Helper()
	cfg := RunnerConfig{StageTimeout: time.Second, StageRetries: 1}
	r, err := NewRunner(def, reg, cfg, sink, nil)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return r
}

func TestRunnerExecutesLinearGraph(t *testing.T) {
	reg := registryOf(t,
		&stubStage{name: "a"},
		&stubStage{name: "b", requires: []string{"a"}},
		&stubStage{name: "c", requires: []string{"b"}},
	)
	r := newTestRunner(t, linearDef("a", "b", "c"), reg, nil)

	ac := newTestContext()
	if err := r.Run(context.Background(), ac); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ac.Status() != domain.RunCompleted {
		t.Fatalf("expected completed, got %s", ac.Status())
	}
	if !ac.Has("a", "b", "c") {
		t.Fatal("expected results for all three stages")
	}

	results := ac.Results()
	for i, want := range []string{"a", "b", "c"} {
		if results[i].Stage != want {
			t.Fatalf("revision order position %d: expected %s, got %s", i, want, results[i].Stage)
		}
	}
}

func TestRunnerBoundsRetryLoop(t *testing.T) {
	var executions atomic.Int32
	empty := &stubStage{
		name: "extract",
		execute: func(ctx context.Context, ac *domain.AnalysisContext) (*domain.StageResult, error) {
			executions.Add(1)
			// Always empty-handed, so the loop edge always matches.
			return &domain.StageResult{Stage: "extract", Hint: domain.HintEmpty}, nil
		},
	}
	reg := registryOf(t, empty, &stubStage{name: "next", requires: []string{"extract"}})

	def := &Definition{
		Start: "extract",
		Nodes: []string{"extract", "next"},
		Edges: []Edge{
			{From: "extract", To: "extract", Predicate: Predicate{Kind: PredHint, Hint: domain.HintEmpty}, RetryBudget: 1},
			{From: "extract", To: "next"},
		},
	}
	sink := &recordingSink{}
	r := newTestRunner(t, def, reg, sink)

	ac := newTestContext()
	if err := r.Run(context.Background(), ac); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Budget 1 allows the first visit plus exactly one re-entry, then the
	// exhausted loop falls through to the default edge.
	if got := executions.Load(); got != 2 {
		t.Fatalf("expected 2 executions of the looped stage, got %d", got)
	}
	if !ac.Has("extract", "next") {
		t.Fatal("expected results for both stages")
	}
	res, _ := ac.Result("extract")
	if res.Revision != 2 {
		t.Fatalf("expected the revisit to replace the result (revision 2), got %d", res.Revision)
	}
	if sink.count(domain.EventStageRetried) == 0 {
		t.Fatal("expected a stage_retried event for the loop re-entry")
	}
}

func TestRunnerFanOutAndJoin(t *testing.T) {
	var joinRuns atomic.Int32
	slow := &stubStage{
		name:     "c",
		requires: []string{"b"},
		execute: func(ctx context.Context, ac *domain.AnalysisContext) (*domain.StageResult, error) {
			time.Sleep(20 * time.Millisecond)
			return &domain.StageResult{Stage: "c", Hint: domain.HintOK, Confidence: 1}, nil
		},
	}
	join := &stubStage{
		name:     "d",
		requires: []string{"b", "c"},
		execute: func(ctx context.Context, ac *domain.AnalysisContext) (*domain.StageResult, error) {
			joinRuns.Add(1)
			if !ac.Has("b", "c") {
				t.Error("join stage started before its dependencies completed")
			}
			return &domain.StageResult{Stage: "d", Hint: domain.HintOK, Confidence: 1}, nil
		},
	}
	reg := registryOf(t,
		&stubStage{name: "a"},
		&stubStage{name: "b", requires: []string{"a"}},
		slow, join,
	)

	def := &Definition{
		Start: "a",
		Nodes: []string{"a", "b", "c", "d"},
		Edges: []Edge{
			{From: "a", To: "b"},
			{From: "b", To: "c"},
			{From: "b", To: "d"},
			{From: "c", To: "d"},
		},
	}
	r := newTestRunner(t, def, reg, nil)

	ac := newTestContext()
	if err := r.Run(context.Background(), ac); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := joinRuns.Load(); got != 1 {
		t.Fatalf("expected the join stage to run exactly once, got %d", got)
	}
	if !ac.Has("a", "b", "c", "d") {
		t.Fatal("expected results for all four stages")
	}
}

func TestRunnerFailureAbandonsSiblings(t *testing.T) {
	boom := errors.New("boom")
	failing := &stubStage{
		name:     "c",
		requires: []string{"b"},
		execute: func(ctx context.Context, ac *domain.AnalysisContext) (*domain.StageResult, error) {
			return nil, domain.NewPermanentError("c", boom)
		},
	}
	sibling := &stubStage{
		name:     "d",
		requires: []string{"b"},
		execute: func(ctx context.Context, ac *domain.AnalysisContext) (*domain.StageResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	reg := registryOf(t,
		&stubStage{name: "a"},
		&stubStage{name: "b", requires: []string{"a"}},
		failing, sibling,
	)

	def := &Definition{
		Start: "a",
		Nodes: []string{"a", "b", "c", "d"},
		Edges: []Edge{
			{From: "a", To: "b"},
			{From: "b", To: "c"},
			{From: "b", To: "d"},
		},
	}
	r := newTestRunner(t, def, reg, nil)

	ac := newTestContext()
	start := time.Now()
	err := r.Run(context.Background(), ac)
	if err == nil {
		t.Fatal("expected the run to fail")
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected the stage error, got %v", err)
	}
	// The blocked sibling is abandoned through cancellation, not awaited.
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("run took %s; failure should not await the blocked sibling", elapsed)
	}

	failure := ac.Failure()
	if failure == nil {
		t.Fatal("expected a failure record")
	}
	if failure.Reason != domain.FailureModel {
		t.Fatalf("expected model_error, got %s", failure.Reason)
	}
	if failure.LastCompleted != "b" {
		t.Fatalf("expected last completed b, got %s", failure.LastCompleted)
	}
}

func TestRunnerCancellation(t *testing.T) {
	blocked := &stubStage{
		name: "a",
		execute: func(ctx context.Context, ac *domain.AnalysisContext) (*domain.StageResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	reg := registryOf(t, blocked, &stubStage{name: "b", requires: []string{"a"}})
	r := newTestRunner(t, linearDef("a", "b"), reg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	ac := newTestContext()
	err := r.Run(ctx, ac)
	if !errors.Is(err, domain.ErrRunCancelled) {
		t.Fatalf("expected ErrRunCancelled, got %v", err)
	}
	if ac.Failure().Reason != domain.FailureCancelled {
		t.Fatalf("expected cancelled reason, got %s", ac.Failure().Reason)
	}
}

func TestRunnerStageTimeoutRetriesThenFails(t *testing.T) {
	var attempts atomic.Int32
	slow := &stubStage{
		name: "a",
		execute: func(ctx context.Context, ac *domain.AnalysisContext) (*domain.StageResult, error) {
			attempts.Add(1)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	reg := registryOf(t, slow, &stubStage{name: "b", requires: []string{"a"}})

	cfg := RunnerConfig{StageTimeout: 10 * time.Millisecond, StageRetries: 1}
	r, err := NewRunner(linearDef("a", "b"), reg, cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	ac := newTestContext()
	err = r.Run(context.Background(), ac)
	if err == nil {
		t.Fatal("expected the run to fail after timeout retries")
	}
	var me *domain.ModelError
	if !errors.As(err, &me) || me.Transient {
		t.Fatalf("expected a permanent error, got %v", err)
	}
	if got := attempts.Load(); got != 2 {
		t.Fatalf("expected 2 attempts (1 retry), got %d", got)
	}
}

func TestRunnerConditionalRouting(t *testing.T) {
	lowConfidence := &stubStage{
		name: "score",
		execute: func(ctx context.Context, ac *domain.AnalysisContext) (*domain.StageResult, error) {
			return &domain.StageResult{Stage: "score", Hint: domain.HintOK, Confidence: 0.2}, nil
		},
	}
	var reran, accepted atomic.Int32
	reg := registryOf(t,
		lowConfidence,
		&stubStage{name: "recheck", requires: []string{"score"}, execute: func(ctx context.Context, ac *domain.AnalysisContext) (*domain.StageResult, error) {
			reran.Add(1)
			return &domain.StageResult{Stage: "recheck", Hint: domain.HintOK, Confidence: 1}, nil
		}},
		&stubStage{name: "accept", requires: []string{"score"}, execute: func(ctx context.Context, ac *domain.AnalysisContext) (*domain.StageResult, error) {
			accepted.Add(1)
			return &domain.StageResult{Stage: "accept", Hint: domain.HintOK, Confidence: 1}, nil
		}},
	)

	def := &Definition{
		Start: "score",
		Nodes: []string{"score", "recheck", "accept"},
		Edges: []Edge{
			{From: "score", To: "recheck", Predicate: Predicate{Kind: PredConfidenceBelow, Threshold: 0.5}},
			{From: "score", To: "accept"},
		},
	}
	r := newTestRunner(t, def, reg, nil)

	ac := newTestContext()
	if err := r.Run(context.Background(), ac); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Conditional nodes route exclusively: only the first matching edge
	// is taken, never the default alongside it.
	if reran.Load() != 1 || accepted.Load() != 0 {
		t.Fatalf("expected recheck only, got recheck=%d accept=%d", reran.Load(), accepted.Load())
	}
}
