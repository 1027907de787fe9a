package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/presslens/presslens/internal/domain"
	"github.com/presslens/presslens/internal/llm"
)

// Synthesis produces the human-readable rationale per finding plus the
// overall summary. It joins on technique detection and bias scoring and
// is the terminal stage of the built-in graphs.
type Synthesis struct {
	caller domain.ModelCaller
	logger *zap.Logger
}

func NewSynthesis(caller domain.ModelCaller, logger *zap.Logger) *Synthesis {
	return &Synthesis{caller: caller, logger: logger}
}

func (s *Synthesis) Name() string { return domain.StageSynthesis }

func (s *Synthesis) Requires() []string {
	return []string{domain.StageTechniqueDetection, domain.StageBiasScoring}
}

func (s *Synthesis) Execute(ctx context.Context, ac *domain.AnalysisContext) (*domain.StageResult, error) {
	article := articleFor(ac)
	findings := findingsFor(ac)

	leaning := &domain.Leaning{Direction: domain.LeaningNeutral, Confidence: 1}
	if res, ok := ac.Result(domain.StageBiasScoring); ok && res.Leaning != nil {
		leaning = res.Leaning
	}

	if len(findings) == 0 {
		return &domain.StageResult{
			Stage:      domain.StageSynthesis,
			Narrative:  "No propaganda techniques from the taxonomy were detected in this article.",
			Leaning:    leaning,
			Confidence: 1,
			Hint:       domain.HintOK,
		}, nil
	}

	raw, err := s.caller.Invoke(ctx, llm.SynthesisSpec(article, findings, leaning))
	if err != nil {
		return nil, err
	}

	var resp llm.SynthesisResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode synthesis response: %w", err)
	}

	// Fold the generated explanations back into the findings so the
	// aggregator has one enriched sequence to order.
	enriched := make([]domain.Finding, len(findings))
	copy(enriched, findings)
	for _, rat := range resp.Rationales {
		for i := range enriched {
			if enriched[i].ClaimID == rat.ClaimID && string(enriched[i].Technique) == rat.Technique {
				enriched[i].Rationale = rat.Explanation
				break
			}
		}
	}

	return &domain.StageResult{
		Stage:      domain.StageSynthesis,
		Findings:   enriched,
		Narrative:  resp.Summary,
		Leaning:    leaning,
		Confidence: 1,
		Hint:       domain.HintOK,
	}, nil
}
