// Package stages holds the built-in analysis stages the critique graphs
// execute. Stages are side-effect-free apart from model adapter and
// embedding calls, and never mutate the submitted Article; refinements
// of the article (content extraction) travel as stage results.
package stages

import (
	"context"

	"github.com/presslens/presslens/internal/domain"
)

// PageFetcher retrieves the readable text of a news page for the
// content extraction stage.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// articleFor returns the article a downstream stage should analyze: the
// one refined by content extraction when that stage ran, the submitted
// one otherwise.
func articleFor(ac *domain.AnalysisContext) *domain.Article {
	if res, ok := ac.Result(domain.StageContentExtraction); ok && res.Article != nil {
		return res.Article
	}
	return ac.Article
}

// claimsFor returns the claims recorded by claim extraction.
func claimsFor(ac *domain.AnalysisContext) []domain.Claim {
	if res, ok := ac.Result(domain.StageClaimExtraction); ok {
		return res.Claims
	}
	return nil
}

// findingsFor returns the findings recorded by technique detection.
func findingsFor(ac *domain.AnalysisContext) []domain.Finding {
	if res, ok := ac.Result(domain.StageTechniqueDetection); ok {
		return res.Findings
	}
	return nil
}
