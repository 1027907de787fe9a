package graph

import (
	"testing"

	"github.com/presslens/presslens/internal/domain"
)

func TestPredicateMatches(t *testing.T) {
	res := &domain.StageResult{
		Confidence: 0.4,
		Hint:       domain.HintEmpty,
		Findings: []domain.Finding{
			{Technique: "loaded_language", ClaimID: 1},
		},
	}

	cases := []struct {
		name string
		p    Predicate
		want bool
	}{
		{"default", Predicate{}, true},
		{"default explicit", Predicate{Kind: PredDefault}, true},
		{"confidence below hit", Predicate{Kind: PredConfidenceBelow, Threshold: 0.5}, true},
		{"confidence below miss", Predicate{Kind: PredConfidenceBelow, Threshold: 0.4}, false},
		{"tag present hit", Predicate{Kind: PredTagPresent, Tag: "loaded_language"}, true},
		{"tag present miss", Predicate{Kind: PredTagPresent, Tag: "strawman"}, false},
		{"hint hit", Predicate{Kind: PredHint, Hint: domain.HintEmpty}, true},
		{"hint miss", Predicate{Kind: PredHint, Hint: domain.HintRetry}, false},
		{"unknown kind", Predicate{Kind: "on_phase_of_moon"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.p.Matches(res); got != tc.want {
				t.Fatalf("Matches = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPredicateValidate(t *testing.T) {
	valid := []Predicate{
		{},
		{Kind: PredDefault},
		{Kind: PredConfidenceBelow, Threshold: 0.5},
		{Kind: PredTagPresent, Tag: "loaded_language"},
		{Kind: PredHint, Hint: domain.HintEmpty},
	}
	for _, p := range valid {
		if err := p.validate(); err != nil {
			t.Fatalf("expected %s to validate, got %v", p, err)
		}
	}

	invalid := []Predicate{
		{Kind: PredConfidenceBelow},
		{Kind: PredConfidenceBelow, Threshold: 1.5},
		{Kind: PredTagPresent},
		{Kind: PredHint},
		{Kind: "on_phase_of_moon"},
	}
	for _, p := range invalid {
		if err := p.validate(); err == nil {
			t.Fatalf("expected %+v to fail validation", p)
		}
	}
}
