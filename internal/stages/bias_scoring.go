package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/presslens/presslens/internal/domain"
	"github.com/presslens/presslens/internal/llm"
)

// BiasScoring aggregates technique findings into a directional bias
// estimate with confidence.
type BiasScoring struct {
	caller domain.ModelCaller
	logger *zap.Logger
}

func NewBiasScoring(caller domain.ModelCaller, logger *zap.Logger) *BiasScoring {
	return &BiasScoring{caller: caller, logger: logger}
}

func (s *BiasScoring) Name() string { return domain.StageBiasScoring }

func (s *BiasScoring) Requires() []string {
	return []string{domain.StageTechniqueDetection}
}

func (s *BiasScoring) Execute(ctx context.Context, ac *domain.AnalysisContext) (*domain.StageResult, error) {
	article := articleFor(ac)
	findings := findingsFor(ac)

	// Without findings there is nothing to lean on; neutral by
	// construction, no model call.
	if len(findings) == 0 {
		return &domain.StageResult{
			Stage:      domain.StageBiasScoring,
			Leaning:    &domain.Leaning{Direction: domain.LeaningNeutral, Score: 0, Confidence: 1},
			Confidence: 1,
			Hint:       domain.HintOK,
		}, nil
	}

	raw, err := s.caller.Invoke(ctx, llm.BiasScoringSpec(article, findings))
	if err != nil {
		return nil, err
	}

	var resp llm.BiasScoringResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode bias scoring response: %w", err)
	}

	leaning := &domain.Leaning{
		Direction:  domain.LeaningDirection(resp.Direction),
		Score:      resp.Score,
		Confidence: resp.Confidence,
	}
	return &domain.StageResult{
		Stage:      domain.StageBiasScoring,
		Leaning:    leaning,
		Confidence: resp.Confidence,
		Hint:       domain.HintOK,
	}, nil
}
