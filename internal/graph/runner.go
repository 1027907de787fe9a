package graph

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/presslens/presslens/internal/domain"
)

// RunnerConfig tunes per-stage execution budgets.
type RunnerConfig struct {
	// StageTimeout is the wall-clock budget for one stage invocation,
	// including the adapter's internal retries.
	StageTimeout time.Duration
	// StageTimeouts overrides the budget per stage name.
	StageTimeouts map[string]time.Duration
	// StageRetries is how many times a timed-out stage invocation is
	// re-attempted before the timeout becomes a permanent failure.
	StageRetries int
}

// DefaultRunnerConfig returns the runner defaults used by the server.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		StageTimeout: 90 * time.Second,
		StageRetries: 1,
	}
}

// Runner executes one validated graph definition over analysis contexts.
// A Runner is immutable after construction and safe to share across
// concurrent runs; all per-run state lives in the walk.
type Runner struct {
	def    *Definition
	reg    *Registry
	cfg    RunnerConfig
	sink   domain.EventSink
	logger *zap.Logger
}

// NewRunner validates the definition against the registry and returns a
// runner for it. A GraphDefinitionError here is fatal configuration; it
// can never surface from Run.
func NewRunner(def *Definition, reg *Registry, cfg RunnerConfig, sink domain.EventSink, logger *zap.Logger) (*Runner, error) {
	if err := def.Validate(reg); err != nil {
		return nil, err
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = DefaultRunnerConfig().StageTimeout
	}
	if sink == nil {
		sink = domain.NopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{def: def, reg: reg, cfg: cfg, sink: sink, logger: logger}, nil
}

// Definition returns the graph the runner executes.
func (r *Runner) Definition() *Definition { return r.def }

// Run walks the graph from the start node until a terminal stage
// completes, accumulating results in the context. On any failure the
// context is marked failed with the originating error and the last
// completed stage attached.
func (r *Runner) Run(ctx context.Context, ac *domain.AnalysisContext) error {
	ac.Start()
	if err := r.walk(ctx, ac); err != nil {
		ac.Fail(err)
		r.sink.Emit(domain.Event{
			Kind:  domain.EventRunFailed,
			RunID: ac.RunID,
			Err:   err.Error(),
			At:    time.Now(),
		})
		return err
	}
	ac.Complete()
	return nil
}

// completion is one finished stage invocation reported by a worker.
type completion struct {
	node string
	res  *domain.StageResult
	err  error
}

func (r *Runner) walk(ctx context.Context, ac *domain.AnalysisContext) error {
	g, gctx := errgroup.WithContext(ctx)

	// Capacity bounds the total number of starts: one first visit per
	// node plus one revisit per unit of retry budget. Workers therefore
	// never block on send, so a failed run can abandon in-flight stages
	// without awaiting them.
	capacity := len(r.def.Nodes)
	for _, e := range r.def.Edges {
		capacity += e.RetryBudget
	}
	done := make(chan completion, capacity)

	visits := make(map[string]int)  // executions started, per node
	pending := make(map[string]bool) // scheduled or parked, not yet completed
	parked := make(map[string]bool)  // scheduled but waiting on dependencies
	inFlight := 0
	terminalReached := false

	start := func(node string) {
		visits[node]++
		visit := visits[node]
		if visit > 1 {
			r.sink.Emit(domain.Event{
				Kind:    domain.EventStageRetried,
				RunID:   ac.RunID,
				Stage:   node,
				Attempt: visit,
				At:      time.Now(),
			})
		}
		inFlight++
		g.Go(func() error {
			res, err := r.invoke(gctx, ac, node)
			done <- completion{node: node, res: res, err: err}
			return err
		})
	}

	// schedule starts a node immediately when its declared dependencies
	// are present in the context, and parks it otherwise. Parked nodes
	// are re-checked after every completion: this is the dependency-gated
	// barrier that joins sibling branches.
	schedule := func(node string) {
		if pending[node] {
			return
		}
		pending[node] = true
		stage, _ := r.reg.Get(node)
		if ac.Has(stage.Requires()...) {
			start(node)
		} else {
			parked[node] = true
		}
	}

	schedule(r.def.Start)

	var firstErr error
	for inFlight > 0 {
		c := <-done
		inFlight--
		delete(pending, c.node)

		if firstErr != nil {
			// Already failing; gctx is cancelled, just account for the
			// stragglers that finished before noticing.
			continue
		}
		if c.err != nil {
			// Siblings were cancelled through gctx; their sends land in
			// the channel buffer whenever they return. Do not await them.
			firstErr = c.err
			break
		}

		var werr error
		if visits[c.node] > 1 {
			werr = ac.ReplaceResult(c.res)
		} else {
			werr = ac.SetResult(c.res)
		}
		if werr != nil {
			firstErr = werr
			break
		}
		r.sink.Emit(domain.Event{
			Kind:    domain.EventStageCompleted,
			RunID:   ac.RunID,
			Stage:   c.node,
			Attempt: visits[c.node],
			At:      time.Now(),
		})

		next := r.resolveNext(c.node, c.res, visits)
		if len(r.def.Outgoing(c.node)) == 0 {
			terminalReached = true
		}
		for _, t := range next {
			schedule(t)
		}
		for p := range parked {
			stage, _ := r.reg.Get(p)
			if ac.Has(stage.Requires()...) {
				delete(parked, p)
				start(p)
			}
		}
	}

	if firstErr != nil {
		return firstErr
	}
	_ = g.Wait()
	if !terminalReached {
		// Validation rules out dead-ends for valid definitions; reaching
		// here means a dependency was declared on a branch that never ran.
		return fmt.Errorf("run stalled before reaching a terminal stage (parked: %d)", len(parked))
	}
	return nil
}

// resolveNext picks the successor nodes after a completed stage.
// Nodes with conditional edges route exclusively: edges are evaluated in
// declaration order and the first match whose retry budget is not
// exhausted wins, falling through to the default edge otherwise. Nodes
// with only default edges fan out to all targets, which may then execute
// concurrently.
func (r *Runner) resolveNext(node string, res *domain.StageResult, visits map[string]int) []string {
	out := r.def.Outgoing(node)
	if len(out) == 0 {
		return nil
	}

	hasConditional := false
	for _, e := range out {
		if !e.Predicate.IsDefault() {
			hasConditional = true
			break
		}
	}

	// An edge is exhausted when its target was already visited more
	// times than the edge's retry budget allows: budget N means at most
	// N+1 visits of the target through this edge's loop.
	exhausted := func(e Edge) bool {
		return visits[e.To] >= e.RetryBudget+1
	}

	if hasConditional {
		for _, e := range out {
			if !e.Predicate.Matches(res) {
				continue
			}
			if !e.Predicate.IsDefault() && exhausted(e) {
				// Fall through to the next matching edge, ultimately the
				// node's default edge. This bounds retry loops
				// deterministically.
				continue
			}
			return []string{e.To}
		}
		return nil
	}

	targets := make([]string, 0, len(out))
	for _, e := range out {
		targets = append(targets, e.To)
	}
	return targets
}

// invoke executes one stage under its wall-clock budget, retrying on
// timeout up to the configured ceiling. Cancellation is checked before
// every attempt.
func (r *Runner) invoke(ctx context.Context, ac *domain.AnalysisContext, node string) (*domain.StageResult, error) {
	stage, ok := r.reg.Get(node)
	if !ok {
		// Unreachable for validated definitions.
		return nil, fmt.Errorf("stage %s not registered", node)
	}
	timeout := r.cfg.StageTimeout
	if t, ok := r.cfg.StageTimeouts[node]; ok && t > 0 {
		timeout = t
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrRunCancelled, err)
		}
		r.sink.Emit(domain.Event{
			Kind:    domain.EventStageStarted,
			RunID:   ac.RunID,
			Stage:   node,
			Attempt: attempt,
			At:      time.Now(),
		})

		sctx, cancel := context.WithTimeout(ctx, timeout)
		res, err := stage.Execute(sctx, ac)
		timedOut := sctx.Err() == context.DeadlineExceeded && ctx.Err() == nil
		cancel()

		if err == nil {
			if res == nil {
				return nil, fmt.Errorf("stage %s returned no result", node)
			}
			res.Stage = node
			return res, nil
		}
		if timedOut {
			if attempt <= r.cfg.StageRetries {
				r.sink.Emit(domain.Event{
					Kind:    domain.EventStageRetried,
					RunID:   ac.RunID,
					Stage:   node,
					Attempt: attempt,
					Err:     "stage timeout",
					At:      time.Now(),
				})
				r.logger.Warn("stage timed out, retrying",
					zap.String("stage", node),
					zap.Int("attempt", attempt),
					zap.Duration("timeout", timeout))
				continue
			}
			return nil, domain.NewPermanentError(node, fmt.Errorf("stage exceeded %s budget %d times", timeout, attempt))
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrRunCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("stage %s: %w", node, err)
	}
}
