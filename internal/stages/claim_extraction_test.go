package stages

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/presslens/presslens/internal/domain"
	"github.com/presslens/presslens/internal/embedding"
)

// stubCaller returns queued raw responses in order, tracking the specs
// it was invoked with.
type stubCaller struct {
	responses []string
	err       error
	specs     []domain.PromptSpec
}

func (c *stubCaller) Invoke(ctx context.Context, spec domain.PromptSpec) (json.RawMessage, error) {
	c.specs = append(c.specs, spec)
	if c.err != nil {
		return nil, c.err
	}
	if len(c.responses) == 0 {
		return json.RawMessage("{}"), nil
	}
	resp := c.responses[0]
	if len(c.responses) > 1 {
		c.responses = c.responses[1:]
	}
	return json.RawMessage(resp), nil
}

func contextWithArticle() *domain.AnalysisContext {
	return domain.NewAnalysisContext(uuid.New(), &domain.Article{
		ID:    uuid.New(),
		Title: "Budget vote",
		Text:  "The minister resigned. Critics called the plan reckless.",
	})
}

func TestClaimExtractionBuildsClaims(t *testing.T) {
	caller := &stubCaller{responses: []string{
		`{"claims":[
			{"text":"The minister resigned.","kind":"factual","sentence":1},
			{"text":"The plan is reckless.","kind":"opinion","sentence":2}
		]}`,
	}}
	stage := NewClaimExtraction(caller, embedding.NewMockClient(), zap.NewNop())

	res, err := stage.Execute(context.Background(), contextWithArticle())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(res.Claims) != 2 {
		t.Fatalf("expected 2 claims, got %d", len(res.Claims))
	}
	if res.Claims[0].ID != 1 || res.Claims[1].ID != 2 {
		t.Fatalf("expected dense claim IDs, got %d and %d", res.Claims[0].ID, res.Claims[1].ID)
	}
	if res.Claims[0].Kind != domain.ClaimFactual || res.Claims[1].Kind != domain.ClaimOpinion {
		t.Fatalf("unexpected claim kinds: %s, %s", res.Claims[0].Kind, res.Claims[1].Kind)
	}
	if res.Hint != domain.HintOK || res.Confidence != 1.0 {
		t.Fatalf("expected ok hint with confidence 1, got %s/%f", res.Hint, res.Confidence)
	}
}

func TestClaimExtractionDeduplicatesRestatements(t *testing.T) {
	// The mock embedder is deterministic on the text, so identical texts
	// embed identically and exceed the duplicate threshold.
	caller := &stubCaller{responses: []string{
		`{"claims":[
			{"text":"The minister resigned.","kind":"factual","sentence":1},
			{"text":"The minister resigned.","kind":"factual","sentence":3},
			{"text":"The plan is reckless.","kind":"opinion","sentence":2}
		]}`,
	}}
	stage := NewClaimExtraction(caller, embedding.NewMockClient(), zap.NewNop())

	res, err := stage.Execute(context.Background(), contextWithArticle())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(res.Claims) != 2 {
		t.Fatalf("expected duplicate claim to be dropped, got %d claims", len(res.Claims))
	}
	for i, c := range res.Claims {
		if c.ID != i+1 {
			t.Fatalf("expected renumbered IDs, got %d at position %d", c.ID, i)
		}
	}
}

func TestClaimExtractionEmptySignalsHint(t *testing.T) {
	caller := &stubCaller{responses: []string{`{"claims":[]}`}}
	stage := NewClaimExtraction(caller, embedding.NewMockClient(), zap.NewNop())

	res, err := stage.Execute(context.Background(), contextWithArticle())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Hint != domain.HintEmpty {
		t.Fatalf("expected empty hint, got %s", res.Hint)
	}
	if res.Confidence != 0 {
		t.Fatalf("expected zero confidence, got %f", res.Confidence)
	}
}

func TestClaimExtractionUsesRefinedArticle(t *testing.T) {
	ac := domain.NewAnalysisContext(uuid.New(), &domain.Article{
		ID:       uuid.New(),
		Metadata: domain.ArticleMetadata{URL: "https://example.org/a"},
	})
	refined := &domain.Article{ID: ac.Article.ID, Title: "Refined", Text: "Extracted body."}
	if err := ac.SetResult(&domain.StageResult{Stage: domain.StageContentExtraction, Article: refined}); err != nil {
		t.Fatalf("seed content extraction: %v", err)
	}

	caller := &stubCaller{responses: []string{`{"claims":[]}`}}
	stage := NewClaimExtraction(caller, nil, zap.NewNop())
	if _, err := stage.Execute(context.Background(), ac); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// The prompt must be built from the refined article, not the bare
	// URL submission.
	if len(caller.specs) != 1 {
		t.Fatalf("expected 1 model call, got %d", len(caller.specs))
	}
	if want := "Extracted body."; !strings.Contains(caller.specs[0].Prompt, want) {
		t.Fatalf("expected prompt to contain %q", want)
	}
}
