package domain

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of one analysis run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunFailure records why a run failed and how far it got; the last
// completed stage enables partial-result inspection by the caller.
type RunFailure struct {
	Reason        FailureReason `json:"reason"`
	Message       string        `json:"message"`
	LastCompleted string        `json:"last_completed_stage,omitempty"`
	Err           error         `json:"-"`
}

// AnalysisContext accumulates stage results across one run. It is
// exclusively owned by that run and never shared across runs; writes are
// serialized internally so concurrently executing sibling stages can
// record results safely. Each result slot is filled exactly once.
type AnalysisContext struct {
	RunID   uuid.UUID
	Article *Article

	mu       sync.RWMutex
	results  map[string]*StageResult
	revision int
	status   RunStatus
	failure  *RunFailure
}

// NewAnalysisContext creates the context for one run over one article.
func NewAnalysisContext(runID uuid.UUID, article *Article) *AnalysisContext {
	return &AnalysisContext{
		RunID:   runID,
		Article: article,
		results: make(map[string]*StageResult),
		status:  RunPending,
	}
}

// SetResult records a stage result under its stage name and stamps it
// with the next revision. Writing the same key twice is an error.
func (ac *AnalysisContext) SetResult(res *StageResult) error {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	if _, exists := ac.results[res.Stage]; exists {
		return ErrDuplicateResult
	}
	ac.revision++
	res.Revision = ac.revision
	ac.results[res.Stage] = res
	return nil
}

// ReplaceResult overwrites the result of an already-visited stage and
// stamps it with the next revision. Only the graph's bounded retry loops
// use this; a first visit must go through SetResult.
func (ac *AnalysisContext) ReplaceResult(res *StageResult) error {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	if _, exists := ac.results[res.Stage]; !exists {
		return fmt.Errorf("no prior result for stage %s to replace", res.Stage)
	}
	ac.revision++
	res.Revision = ac.revision
	ac.results[res.Stage] = res
	return nil
}

// Result returns the recorded result for a stage, if any.
func (ac *AnalysisContext) Result(stage string) (*StageResult, bool) {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	res, ok := ac.results[stage]
	return res, ok
}

// Has reports whether every named stage has a recorded result.
func (ac *AnalysisContext) Has(stages ...string) bool {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	for _, s := range stages {
		if _, ok := ac.results[s]; !ok {
			return false
		}
	}
	return true
}

// Results returns all recorded results in revision order.
func (ac *AnalysisContext) Results() []*StageResult {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	out := make([]*StageResult, 0, len(ac.results))
	for _, res := range ac.results {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Revision < out[j].Revision })
	return out
}

// Revision returns the current revision counter.
func (ac *AnalysisContext) Revision() int {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	return ac.revision
}

// Status returns the run status.
func (ac *AnalysisContext) Status() RunStatus {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	return ac.status
}

// Start transitions the run to running.
func (ac *AnalysisContext) Start() {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	ac.status = RunRunning
}

// Complete transitions the run to completed.
func (ac *AnalysisContext) Complete() {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	ac.status = RunCompleted
}

// Fail marks the run failed with the originating error attached. The
// last completed stage is captured from the highest recorded revision.
func (ac *AnalysisContext) Fail(err error) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	if ac.status == RunFailed {
		return
	}
	ac.status = RunFailed
	last := ""
	rev := 0
	for _, res := range ac.results {
		if res.Revision > rev {
			rev = res.Revision
			last = res.Stage
		}
	}
	ac.failure = &RunFailure{
		Reason:        ClassifyFailure(err),
		Message:       err.Error(),
		LastCompleted: last,
		Err:           err,
	}
}

// Failure returns the failure record for a failed run, or nil.
func (ac *AnalysisContext) Failure() *RunFailure {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	return ac.failure
}
