package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/presslens/presslens/internal/domain"
	"github.com/presslens/presslens/internal/llm"
)

// TechniqueDetection classifies extracted claims against the closed
// technique taxonomy.
type TechniqueDetection struct {
	caller   domain.ModelCaller
	taxonomy *domain.Taxonomy
	logger   *zap.Logger
}

func NewTechniqueDetection(caller domain.ModelCaller, taxonomy *domain.Taxonomy, logger *zap.Logger) *TechniqueDetection {
	return &TechniqueDetection{caller: caller, taxonomy: taxonomy, logger: logger}
}

func (s *TechniqueDetection) Name() string { return domain.StageTechniqueDetection }

func (s *TechniqueDetection) Requires() []string {
	return []string{domain.StageClaimExtraction}
}

func (s *TechniqueDetection) Execute(ctx context.Context, ac *domain.AnalysisContext) (*domain.StageResult, error) {
	article := articleFor(ac)
	claims := claimsFor(ac)

	// Nothing to classify; skip the model call entirely so an empty
	// extraction still completes deterministically.
	if len(claims) == 0 {
		return &domain.StageResult{
			Stage: domain.StageTechniqueDetection,
			Hint:  domain.HintEmpty,
		}, nil
	}

	raw, err := s.caller.Invoke(ctx, llm.TechniqueDetectionSpec(article, claims, s.taxonomy))
	if err != nil {
		return nil, err
	}

	var resp llm.TechniqueDetectionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode technique detection response: %w", err)
	}

	known := make(map[int]struct{}, len(claims))
	for _, c := range claims {
		known[c.ID] = struct{}{}
	}

	findings := make([]domain.Finding, 0, len(resp.Findings))
	best := 0.0
	for _, det := range resp.Findings {
		if _, ok := known[det.ClaimID]; !ok {
			s.logger.Warn("dropping finding for unknown claim",
				zap.Int("claim", det.ClaimID), zap.String("technique", det.Technique))
			continue
		}
		findings = append(findings, domain.Finding{
			Technique:  domain.TechniqueTag(det.Technique),
			ClaimID:    det.ClaimID,
			Evidence:   det.Evidence,
			Confidence: det.Confidence,
			Rationale:  det.Rationale,
		})
		if det.Confidence > best {
			best = det.Confidence
		}
	}

	res := &domain.StageResult{
		Stage:      domain.StageTechniqueDetection,
		Findings:   findings,
		Confidence: best,
		Hint:       domain.HintOK,
	}
	if len(findings) == 0 {
		res.Hint = domain.HintEmpty
	}
	return res, nil
}
