// Package aggregate consolidates the stage results of one completed run
// into the final Critique. Aggregation is pure: no model calls, no
// clock reads, and byte-identical output for identical contexts.
package aggregate

import (
	"fmt"
	"sort"

	"github.com/presslens/presslens/internal/domain"
)

// Aggregator builds critiques for one taxonomy version.
type Aggregator struct {
	taxonomyVersion string
}

func New(taxonomyVersion string) *Aggregator {
	return &Aggregator{taxonomyVersion: taxonomyVersion}
}

// Aggregate merges the accumulated stage results into the final Critique.
// The synthesis stage's enriched findings win over the raw detection
// findings when present; ordering is stable by (claim, technique) so
// re-aggregating an unchanged context yields an identical artifact.
func (a *Aggregator) Aggregate(ac *domain.AnalysisContext) (*domain.Critique, error) {
	if ac.Status() != domain.RunCompleted {
		return nil, fmt.Errorf("cannot aggregate run in status %s", ac.Status())
	}

	findings := []domain.Finding{}
	summary := ""
	if res, ok := ac.Result(domain.StageSynthesis); ok {
		findings = res.Findings
		summary = res.Narrative
	} else if res, ok := ac.Result(domain.StageTechniqueDetection); ok {
		findings = res.Findings
	}

	leaning := domain.Leaning{Direction: domain.LeaningNeutral, Score: 0, Confidence: 1}
	if res, ok := ac.Result(domain.StageBiasScoring); ok && res.Leaning != nil {
		leaning = *res.Leaning
	}

	ordered := make([]domain.Finding, len(findings))
	copy(ordered, findings)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].ClaimID != ordered[j].ClaimID {
			return ordered[i].ClaimID < ordered[j].ClaimID
		}
		return ordered[i].Technique < ordered[j].Technique
	})

	var claims []domain.Claim
	if res, ok := ac.Result(domain.StageClaimExtraction); ok {
		claims = res.Claims
	}

	return &domain.Critique{
		RunID:           ac.RunID,
		ArticleID:       ac.Article.ID,
		TaxonomyVersion: a.taxonomyVersion,
		Findings:        ordered,
		Leaning:         leaning,
		Summary:         summary,
		Claims:          claims,
		AnalyzedAt:      ac.Article.SubmittedAt,
	}, nil
}
