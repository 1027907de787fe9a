package graph

import (
	"fmt"

	"github.com/presslens/presslens/internal/domain"
)

// PredicateKind enumerates the tagged predicate variants an edge may
// carry. Routing is data, not code: predicates are inspectable values so
// a definition can be statically validated and visualized without
// executing it.
type PredicateKind string

const (
	// PredDefault matches any result; the edge is the node's fallback.
	PredDefault PredicateKind = "default"
	// PredConfidenceBelow matches when the result confidence is strictly
	// below the threshold.
	PredConfidenceBelow PredicateKind = "on_confidence_below"
	// PredTagPresent matches when any finding carries the tag.
	PredTagPresent PredicateKind = "on_tag_present"
	// PredHint matches when the stage's routing hint equals the value.
	PredHint PredicateKind = "on_hint"
)

// Predicate is one tagged routing condition over a StageResult.
// A zero Predicate is a default edge.
type Predicate struct {
	Kind      PredicateKind       `yaml:"kind" json:"kind"`
	Threshold float64             `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Tag       domain.TechniqueTag `yaml:"tag,omitempty" json:"tag,omitempty"`
	Hint      domain.NextHint     `yaml:"hint,omitempty" json:"hint,omitempty"`
}

// IsDefault reports whether the predicate matches unconditionally.
func (p Predicate) IsDefault() bool {
	return p.Kind == "" || p.Kind == PredDefault
}

// Matches evaluates the predicate against a stage result.
func (p Predicate) Matches(res *domain.StageResult) bool {
	switch p.Kind {
	case "", PredDefault:
		return true
	case PredConfidenceBelow:
		return res.Confidence < p.Threshold
	case PredTagPresent:
		return res.HasTag(p.Tag)
	case PredHint:
		return res.Hint == p.Hint
	default:
		return false
	}
}

// validate rejects malformed predicate values at definition time.
func (p Predicate) validate() error {
	switch p.Kind {
	case "", PredDefault:
		return nil
	case PredConfidenceBelow:
		if p.Threshold <= 0 || p.Threshold > 1 {
			return fmt.Errorf("on_confidence_below threshold %f outside (0,1]", p.Threshold)
		}
		return nil
	case PredTagPresent:
		if p.Tag == "" {
			return fmt.Errorf("on_tag_present requires a tag")
		}
		return nil
	case PredHint:
		if p.Hint == "" {
			return fmt.Errorf("on_hint requires a hint value")
		}
		return nil
	default:
		return fmt.Errorf("unknown predicate kind %q", p.Kind)
	}
}

func (p Predicate) String() string {
	switch p.Kind {
	case "", PredDefault:
		return "default"
	case PredConfidenceBelow:
		return fmt.Sprintf("on_confidence_below(%.2f)", p.Threshold)
	case PredTagPresent:
		return fmt.Sprintf("on_tag_present(%s)", p.Tag)
	case PredHint:
		return fmt.Sprintf("on_hint(%s)", p.Hint)
	default:
		return string(p.Kind)
	}
}
