package llm

import (
	"encoding/json"
	"fmt"

	"github.com/presslens/presslens/internal/domain"
)

// Response payloads for each stage's structured output. Stages decode
// the adapter's validated raw JSON into these.

type ExtractionResponse struct {
	Title    string `json:"title"`
	Lede     string `json:"lede"`
	Body     string `json:"body"`
	Language string `json:"language"`
	Outlet   string `json:"outlet,omitempty"`
}

type ExtractedClaim struct {
	Text     string `json:"text"`
	Kind     string `json:"kind"`
	Sentence int    `json:"sentence"`
}

type ClaimExtractionResponse struct {
	Claims []ExtractedClaim `json:"claims"`
}

type DetectedTechnique struct {
	ClaimID    int     `json:"claim_id"`
	Technique  string  `json:"technique"`
	Evidence   string  `json:"evidence"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

type TechniqueDetectionResponse struct {
	Findings []DetectedTechnique `json:"findings"`
}

type BiasScoringResponse struct {
	Direction  string  `json:"direction"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
}

type FindingRationale struct {
	ClaimID     int    `json:"claim_id"`
	Technique   string `json:"technique"`
	Explanation string `json:"explanation"`
}

type SynthesisResponse struct {
	Summary    string             `json:"summary"`
	Rationales []FindingRationale `json:"rationales"`
}

// Schema validators. Each checks that the raw response decodes into the
// stage's payload and that its values satisfy the invariants (confidence
// in [0,1], tags drawn from the closed vocabulary).

type extractionSchema struct{}

func (extractionSchema) Validate(raw json.RawMessage) error {
	var r ExtractionResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return fmt.Errorf("not valid extraction JSON: %w", err)
	}
	if r.Body == "" {
		return fmt.Errorf("extraction has empty body")
	}
	return nil
}

type claimSchema struct{}

func (claimSchema) Validate(raw json.RawMessage) error {
	var r ClaimExtractionResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return fmt.Errorf("not valid claim JSON: %w", err)
	}
	for i, c := range r.Claims {
		if c.Text == "" {
			return fmt.Errorf("claim %d has empty text", i)
		}
		switch domain.ClaimKind(c.Kind) {
		case domain.ClaimFactual, domain.ClaimOpinion:
		default:
			return fmt.Errorf("claim %d has unknown kind %q", i, c.Kind)
		}
	}
	return nil
}

type techniqueSchema struct {
	taxonomy *domain.Taxonomy
}

func (s techniqueSchema) Validate(raw json.RawMessage) error {
	var r TechniqueDetectionResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return fmt.Errorf("not valid technique JSON: %w", err)
	}
	for i, f := range r.Findings {
		if !s.taxonomy.Valid(domain.TechniqueTag(f.Technique)) {
			return fmt.Errorf("finding %d uses tag %q outside taxonomy %s", i, f.Technique, s.taxonomy.Version)
		}
		if f.Confidence < 0 || f.Confidence > 1 {
			return fmt.Errorf("finding %d confidence %f outside [0,1]", i, f.Confidence)
		}
	}
	return nil
}

type biasSchema struct{}

func (biasSchema) Validate(raw json.RawMessage) error {
	var r BiasScoringResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return fmt.Errorf("not valid bias JSON: %w", err)
	}
	switch domain.LeaningDirection(r.Direction) {
	case domain.LeaningLeft, domain.LeaningRight, domain.LeaningNeutral:
	default:
		return fmt.Errorf("unknown leaning direction %q", r.Direction)
	}
	if r.Score < -1 || r.Score > 1 {
		return fmt.Errorf("leaning score %f outside [-1,1]", r.Score)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("leaning confidence %f outside [0,1]", r.Confidence)
	}
	return nil
}

type synthesisSchema struct{}

func (synthesisSchema) Validate(raw json.RawMessage) error {
	var r SynthesisResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return fmt.Errorf("not valid synthesis JSON: %w", err)
	}
	if r.Summary == "" {
		return fmt.Errorf("synthesis has empty summary")
	}
	return nil
}
