package domain

import (
	"time"

	"github.com/google/uuid"
)

// Critique is the final structured artifact returned for one article:
// an ordered sequence of findings plus the overall bias-leaning summary.
// Built once by the aggregator and immutable afterwards.
type Critique struct {
	RunID           uuid.UUID `json:"run_id"`
	ArticleID       uuid.UUID `json:"article_id"`
	TaxonomyVersion string    `json:"taxonomy_version"`
	Findings        []Finding `json:"findings"`
	Leaning         Leaning   `json:"leaning"`
	Summary         string    `json:"summary"`
	Claims          []Claim   `json:"claims,omitempty"`
	AnalyzedAt      time.Time `json:"analyzed_at"`
}

// CritiqueWithScore is a Critique annotated with its cosine similarity
// to a reference critique, as returned by archive similarity lookups.
type CritiqueWithScore struct {
	Critique
	Score float64 `json:"score"`
}
