// Package service orchestrates analysis runs: it owns the run registry,
// drives the graph runner in the background, aggregates completed runs
// into critiques and hands them to the optional archive.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/presslens/presslens/internal/aggregate"
	"github.com/presslens/presslens/internal/domain"
	"github.com/presslens/presslens/internal/graph"
	"github.com/presslens/presslens/internal/store"
)

var (
	ErrArticleEmpty      = errors.New("article text or url is required")
	ErrRunNotCancellable = errors.New("run is not cancellable")
	ErrArchiveDisabled   = errors.New("archive is not configured")
)

// Archiver persists completed critiques. A nil Archiver disables
// archiving without affecting analysis.
type Archiver interface {
	Archive(ctx context.Context, c *domain.Critique, article *domain.Article) error
	GetByRunID(ctx context.Context, runID uuid.UUID) (*domain.Critique, error)
	Delete(ctx context.Context, runID uuid.UUID) error
	Similar(ctx context.Context, runID uuid.UUID, topK int) ([]domain.CritiqueWithScore, error)
}

// run is the in-memory record of one submitted analysis.
type run struct {
	ac       *domain.AnalysisContext
	cancel   context.CancelFunc
	critique *domain.Critique
	done     chan struct{}
}

// RunView is a point-in-time snapshot of a run for API responses.
type RunView struct {
	RunID     uuid.UUID             `json:"run_id"`
	Status    domain.RunStatus      `json:"status"`
	Article   *domain.Article       `json:"article"`
	Critique  *domain.Critique      `json:"critique,omitempty"`
	Failure   *domain.RunFailure    `json:"failure,omitempty"`
	Completed []*domain.StageResult `json:"completed_stages,omitempty"`
}

type AnalysisService struct {
	textRunner *graph.Runner
	urlRunner  *graph.Runner
	aggregator *aggregate.Aggregator
	archiver   Archiver
	logger     *zap.Logger

	mu   sync.RWMutex
	runs map[uuid.UUID]*run
}

func NewAnalysisService(textRunner, urlRunner *graph.Runner, agg *aggregate.Aggregator, logger *zap.Logger) *AnalysisService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalysisService{
		textRunner: textRunner,
		urlRunner:  urlRunner,
		aggregator: agg,
		logger:     logger,
		runs:       make(map[uuid.UUID]*run),
	}
}

func (s *AnalysisService) SetArchiver(a Archiver) {
	s.archiver = a
}

// Submit registers the article and starts its analysis in the
// background. Submissions with a URL but no text run the graph that
// begins with content extraction.
func (s *AnalysisService) Submit(article *domain.Article) (uuid.UUID, error) {
	if article == nil || (article.Text == "" && article.Metadata.URL == "") {
		return uuid.Nil, ErrArticleEmpty
	}
	runner := s.textRunner
	if article.Text == "" {
		runner = s.urlRunner
	}

	if article.ID == uuid.Nil {
		article.ID = uuid.New()
	}
	if article.SubmittedAt.IsZero() {
		article.SubmittedAt = time.Now().UTC()
	}

	runID := uuid.New()
	ac := domain.NewAnalysisContext(runID, article)
	ctx, cancel := context.WithCancel(context.Background())
	rec := &run{ac: ac, cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.runs[runID] = rec
	s.mu.Unlock()

	go s.execute(ctx, runner, rec)

	s.logger.Info("run submitted",
		zap.String("run_id", runID.String()),
		zap.String("article_id", article.ID.String()))
	return runID, nil
}

// Analyze runs the article synchronously under the caller's context and
// returns the critique. Used by the CLI; the run is registered so its
// partial results remain inspectable afterwards.
func (s *AnalysisService) Analyze(ctx context.Context, article *domain.Article) (*domain.Critique, error) {
	if article == nil || (article.Text == "" && article.Metadata.URL == "") {
		return nil, ErrArticleEmpty
	}
	runner := s.textRunner
	if article.Text == "" {
		runner = s.urlRunner
	}

	if article.ID == uuid.Nil {
		article.ID = uuid.New()
	}
	if article.SubmittedAt.IsZero() {
		article.SubmittedAt = time.Now().UTC()
	}

	runID := uuid.New()
	ac := domain.NewAnalysisContext(runID, article)
	rctx, cancel := context.WithCancel(ctx)
	rec := &run{ac: ac, cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.runs[runID] = rec
	s.mu.Unlock()

	s.execute(rctx, runner, rec)

	if failure := ac.Failure(); failure != nil {
		return nil, fmt.Errorf("run %s failed at %q: %w", runID, failure.LastCompleted, failure.Err)
	}
	return rec.critique, nil
}

// execute drives one run to completion and archives the critique.
func (s *AnalysisService) execute(ctx context.Context, runner *graph.Runner, rec *run) {
	defer close(rec.done)
	defer rec.cancel()

	ac := rec.ac
	if err := runner.Run(ctx, ac); err != nil {
		s.logger.Warn("run failed",
			zap.String("run_id", ac.RunID.String()),
			zap.Error(err))
		return
	}

	critique, err := s.aggregator.Aggregate(ac)
	if err != nil {
		ac.Fail(err)
		s.logger.Error("aggregation failed",
			zap.String("run_id", ac.RunID.String()),
			zap.Error(err))
		return
	}
	s.mu.Lock()
	rec.critique = critique
	s.mu.Unlock()

	if s.archiver != nil {
		actx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.archiver.Archive(actx, critique, ac.Article); err != nil {
			// Archive failures never fail the run.
			s.logger.Warn("archiving failed",
				zap.String("run_id", ac.RunID.String()),
				zap.Error(err))
		}
	}

	s.logger.Info("run completed",
		zap.String("run_id", ac.RunID.String()),
		zap.Int("findings", len(critique.Findings)),
		zap.String("leaning", string(critique.Leaning.Direction)))
}

// Get returns a snapshot of the run: its status, the critique when
// completed, the failure record plus all completed stage results when
// failed.
func (s *AnalysisService) Get(runID uuid.UUID) (*RunView, error) {
	s.mu.RLock()
	rec, ok := s.runs[runID]
	critique := (*domain.Critique)(nil)
	if ok {
		critique = rec.critique
	}
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrRunNotFound
	}

	view := &RunView{
		RunID:    rec.ac.RunID,
		Status:   rec.ac.Status(),
		Article:  rec.ac.Article,
		Critique: critique,
	}
	if failure := rec.ac.Failure(); failure != nil {
		view.Failure = failure
		view.Completed = rec.ac.Results()
	}
	return view, nil
}

// RunStats counts registered runs by status.
type RunStats struct {
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Stats snapshots the run registry for the metrics endpoint.
func (s *AnalysisService) Stats() RunStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st RunStats
	for _, rec := range s.runs {
		switch rec.ac.Status() {
		case domain.RunCompleted:
			st.Completed++
		case domain.RunFailed:
			st.Failed++
		default:
			st.Active++
		}
	}
	return st
}

// Cancel aborts a pending or running analysis. Completed and failed
// runs cannot be cancelled.
func (s *AnalysisService) Cancel(runID uuid.UUID) error {
	s.mu.RLock()
	rec, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return domain.ErrRunNotFound
	}
	switch rec.ac.Status() {
	case domain.RunCompleted, domain.RunFailed:
		return ErrRunNotCancellable
	}
	rec.cancel()
	<-rec.done
	return nil
}

// Similar returns archived critiques closest to the given run's claims.
func (s *AnalysisService) Similar(ctx context.Context, runID uuid.UUID, topK int) ([]domain.CritiqueWithScore, error) {
	if s.archiver == nil {
		return nil, ErrArchiveDisabled
	}
	return s.archiver.Similar(ctx, runID, topK)
}

// Forget removes a run from the in-memory registry and deletes its
// archived critique when an archive is configured.
func (s *AnalysisService) Forget(ctx context.Context, runID uuid.UUID) error {
	s.mu.Lock()
	rec, ok := s.runs[runID]
	if ok {
		delete(s.runs, runID)
	}
	s.mu.Unlock()

	archived := false
	if s.archiver != nil {
		switch err := s.archiver.Delete(ctx, runID); {
		case err == nil:
			archived = true
		case errors.Is(err, store.ErrNotFound):
		default:
			return err
		}
	}
	if !ok && !archived {
		return domain.ErrRunNotFound
	}
	if ok {
		rec.cancel()
	}
	return nil
}
