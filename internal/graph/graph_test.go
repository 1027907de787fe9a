package graph

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/presslens/presslens/internal/domain"
)

// stubStage is a minimal stage for graph and runner tests.
type stubStage struct {
	name     string
	requires []string
	execute  func(ctx context.Context, ac *domain.AnalysisContext) (*domain.StageResult, error)
}

func (s *stubStage) Name() string       { return s.name }
func (s *stubStage) Requires() []string { return s.requires }

func (s *stubStage) Execute(ctx context.Context, ac *domain.AnalysisContext) (*domain.StageResult, error) {
	if s.execute != nil {
		return s.execute(ctx, ac)
	}
	return &domain.StageResult{Stage: s.name, Hint: domain.HintOK, Confidence: 1}, nil
}

func registryOf(t *testing.T, stages ...*stubStage) *Registry {
	t.Helper()
	reg := NewRegistry()
	for _, s := range stages {
		if err := reg.Register(s); err != nil {
			t.Fatalf("register %s: %v", s.name, err)
		}
	}
	return reg
}

func linearDef(nodes ...string) *Definition {
	def := &Definition{Name: "test", Start: nodes[0], Nodes: nodes}
	for i := 0; i+1 < len(nodes); i++ {
		def.Edges = append(def.Edges, Edge{From: nodes[i], To: nodes[i+1]})
	}
	return def
}

func expectDefinitionError(t *testing.T, err error, fragment string) {
	t.Helper()
	var gde *domain.GraphDefinitionError
	if !errors.As(err, &gde) {
		t.Fatalf("expected GraphDefinitionError, got %v", err)
	}
	if !strings.Contains(err.Error(), fragment) {
		t.Fatalf("expected error containing %q, got %v", fragment, err)
	}
}

func TestValidateEmbeddedDefinitions(t *testing.T) {
	reg := registryOf(t,
		&stubStage{name: domain.StageContentExtraction},
		&stubStage{name: domain.StageClaimExtraction},
		&stubStage{name: domain.StageTechniqueDetection, requires: []string{domain.StageClaimExtraction}},
		&stubStage{name: domain.StageBiasScoring, requires: []string{domain.StageTechniqueDetection}},
		&stubStage{name: domain.StageSynthesis, requires: []string{domain.StageTechniqueDetection, domain.StageBiasScoring}},
	)

	if err := DefaultDefinition().Validate(reg); err != nil {
		t.Fatalf("default definition should validate, got %v", err)
	}
	if err := URLDefinition().Validate(reg); err != nil {
		t.Fatalf("url definition should validate, got %v", err)
	}
}

func TestValidateRejectsMissingStart(t *testing.T) {
	def := &Definition{Nodes: []string{"a"}}
	expectDefinitionError(t, def.Validate(nil), "no start node")

	def = &Definition{Start: "b", Nodes: []string{"a"}}
	expectDefinitionError(t, def.Validate(nil), "start node is not declared")
}

func TestValidateRejectsDuplicateNodes(t *testing.T) {
	def := &Definition{Start: "a", Nodes: []string{"a", "a"}}
	expectDefinitionError(t, def.Validate(nil), "duplicate node")
}

func TestValidateRejectsUndeclaredEdgeEndpoints(t *testing.T) {
	def := &Definition{Start: "a", Nodes: []string{"a"}, Edges: []Edge{{From: "a", To: "ghost"}}}
	expectDefinitionError(t, def.Validate(nil), "edge target")

	def = &Definition{Start: "a", Nodes: []string{"a"}, Edges: []Edge{{From: "ghost", To: "a"}}}
	expectDefinitionError(t, def.Validate(nil), "edge source")
}

func TestValidateRejectsNoTerminal(t *testing.T) {
	def := &Definition{
		Start: "a",
		Nodes: []string{"a", "b"},
		Edges: []Edge{
			{From: "a", To: "b", RetryBudget: 1},
			{From: "b", To: "a", RetryBudget: 1},
		},
	}
	expectDefinitionError(t, def.Validate(nil), "no terminal")
}

func TestValidateRejectsConditionalWithoutDefault(t *testing.T) {
	def := &Definition{
		Start: "a",
		Nodes: []string{"a", "b"},
		Edges: []Edge{
			{From: "a", To: "b", Predicate: Predicate{Kind: PredHint, Hint: domain.HintEmpty}},
		},
	}
	expectDefinitionError(t, def.Validate(nil), "without a default edge")
}

func TestValidateRejectsUnboundedCycle(t *testing.T) {
	def := &Definition{
		Start: "a",
		Nodes: []string{"a", "b", "c"},
		Edges: []Edge{
			{From: "a", To: "b"},
			{From: "b", To: "a"},
			{From: "a", To: "c"},
		},
	}
	expectDefinitionError(t, def.Validate(nil), "cycle without a retry budget")
}

func TestValidateAcceptsBudgetedCycle(t *testing.T) {
	def := &Definition{
		Start: "a",
		Nodes: []string{"a", "b"},
		Edges: []Edge{
			{From: "a", To: "a", Predicate: Predicate{Kind: PredHint, Hint: domain.HintEmpty}, RetryBudget: 2},
			{From: "a", To: "b"},
		},
	}
	if err := def.Validate(nil); err != nil {
		t.Fatalf("expected budgeted self-loop to validate, got %v", err)
	}
}

func TestValidateRejectsNegativeBudget(t *testing.T) {
	def := &Definition{
		Start: "a",
		Nodes: []string{"a", "b"},
		Edges: []Edge{{From: "a", To: "b", RetryBudget: -1}},
	}
	expectDefinitionError(t, def.Validate(nil), "negative retry budget")
}

func TestValidateChecksRegistry(t *testing.T) {
	def := linearDef("a", "b")

	// b has no registered stage.
	reg := registryOf(t, &stubStage{name: "a"})
	expectDefinitionError(t, def.Validate(reg), "no registered stage")

	// b depends on a stage outside the graph.
	reg = registryOf(t,
		&stubStage{name: "a"},
		&stubStage{name: "b", requires: []string{"ghost"}},
	)
	expectDefinitionError(t, def.Validate(reg), "not in the graph")

	// b depends on c, which is declared but downstream of b.
	def = &Definition{
		Start: "a",
		Nodes: []string{"a", "b", "c"},
		Edges: []Edge{{From: "a", To: "b"}, {From: "b", To: "c"}},
	}
	reg = registryOf(t,
		&stubStage{name: "a"},
		&stubStage{name: "b", requires: []string{"c"}},
		&stubStage{name: "c"},
	)
	expectDefinitionError(t, def.Validate(reg), "not upstream")

	// The start stage must not declare dependencies.
	def = linearDef("a", "b")
	reg = registryOf(t,
		&stubStage{name: "a", requires: []string{"b"}},
		&stubStage{name: "b"},
	)
	expectDefinitionError(t, def.Validate(reg), "start stage declares dependencies")
}

func TestTerminalsAndOutgoing(t *testing.T) {
	def := DefaultDefinition()

	terms := def.Terminals()
	if len(terms) != 1 || terms[0] != domain.StageSynthesis {
		t.Fatalf("expected synthesis as the only terminal, got %v", terms)
	}

	out := def.Outgoing(domain.StageClaimExtraction)
	if len(out) != 2 {
		t.Fatalf("expected 2 outgoing edges from claim extraction, got %d", len(out))
	}
	// Declaration order: the retry loop comes before the default edge.
	if out[0].To != domain.StageClaimExtraction || out[0].RetryBudget != 1 {
		t.Fatalf("expected self-loop with budget 1 first, got %+v", out[0])
	}
	if !out[1].Predicate.IsDefault() {
		t.Fatalf("expected default edge second, got %+v", out[1])
	}
}
