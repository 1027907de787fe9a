package domain

import "context"

// Built-in stage names. The graph definition refers to stages by name;
// these constants exist so the default graph, the registry, and tests
// agree on spelling.
const (
	StageContentExtraction  = "content_extraction"
	StageClaimExtraction    = "claim_extraction"
	StageTechniqueDetection = "technique_detection"
	StageBiasScoring        = "bias_scoring"
	StageSynthesis          = "synthesis"
)

// ClaimKind separates factual assertions from opinion statements.
type ClaimKind string

const (
	ClaimFactual ClaimKind = "factual"
	ClaimOpinion ClaimKind = "opinion"
)

// Claim is one discrete assertion extracted from the article.
type Claim struct {
	ID        int       `json:"id"`
	Text      string    `json:"text"`
	Kind      ClaimKind `json:"kind"`
	Sentence  int       `json:"sentence,omitempty"`
	Embedding []float32 `json:"-"`
}

// Finding ties a detected technique to the claim and evidence span it
// was observed in. Confidence is always within [0,1].
type Finding struct {
	Technique  TechniqueTag `json:"technique"`
	ClaimID    int          `json:"claim_id"`
	Evidence   string       `json:"evidence"`
	Confidence float64      `json:"confidence"`
	Rationale  string       `json:"rationale,omitempty"`
}

// LeaningDirection is the directional component of a bias estimate.
type LeaningDirection string

const (
	LeaningLeft    LeaningDirection = "left"
	LeaningRight   LeaningDirection = "right"
	LeaningNeutral LeaningDirection = "neutral"
)

// Leaning is a directional bias estimate. Score runs from -1 (strongly
// left) to +1 (strongly right); Confidence is within [0,1].
type Leaning struct {
	Direction  LeaningDirection `json:"direction"`
	Score      float64          `json:"score"`
	Confidence float64          `json:"confidence"`
}

// NextHint is the routing hint a stage attaches to its result; the graph
// matches it against edge predicates when choosing the next edge.
type NextHint string

const (
	HintOK    NextHint = "ok"
	HintEmpty NextHint = "empty"
	HintRetry NextHint = "retry"
)

// StageResult is the output of one stage execution. Which fields are
// populated depends on the stage; the routing hint and confidence are
// what the graph's edge predicates consume.
type StageResult struct {
	Stage      string    `json:"stage"`
	Article    *Article  `json:"article,omitempty"`
	Claims     []Claim   `json:"claims,omitempty"`
	Findings   []Finding `json:"findings,omitempty"`
	Leaning    *Leaning  `json:"leaning,omitempty"`
	Narrative  string    `json:"narrative,omitempty"`
	Confidence float64   `json:"confidence"`
	Hint       NextHint  `json:"hint"`
	Revision   int       `json:"revision"`
}

// HasTag reports whether any finding in the result carries the tag.
func (r *StageResult) HasTag(tag TechniqueTag) bool {
	for _, f := range r.Findings {
		if f.Technique == tag {
			return true
		}
	}
	return false
}

// Stage is one reasoning step in the critique pipeline. Implementations
// must be side-effect-free apart from model adapter invocations and must
// not mutate the Article.
type Stage interface {
	// Name is the unique registry key for the stage.
	Name() string
	// Requires lists the stage names whose results must be present in the
	// context before this stage may start.
	Requires() []string
	// Execute runs the stage against the accumulated context.
	Execute(ctx context.Context, ac *AnalysisContext) (*StageResult, error)
}
