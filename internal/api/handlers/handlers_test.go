package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/presslens/presslens/internal/aggregate"
	"github.com/presslens/presslens/internal/domain"
	"github.com/presslens/presslens/internal/embedding"
	"github.com/presslens/presslens/internal/graph"
	"github.com/presslens/presslens/internal/llm"
	"github.com/presslens/presslens/internal/service"
	"github.com/presslens/presslens/internal/stages"
)

// newTestRouter wires the analysis routes over a service whose model
// responses come from the given mock client.
func newTestRouter(t *testing.T, client *llm.MockClient) *chi.Mux {
	t.Helper()

	taxonomy := domain.DefaultTaxonomy()
	caller := llm.NewAdapter(client, llm.AdapterConfig{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		RPS:            1000,
		Burst:          1000,
	}, zap.NewNop())

	reg := graph.NewRegistry()
	reg.MustRegister(
		stages.NewClaimExtraction(caller, embedding.NewMockClient(), zap.NewNop()),
		stages.NewTechniqueDetection(caller, taxonomy, zap.NewNop()),
		stages.NewBiasScoring(caller, zap.NewNop()),
		stages.NewSynthesis(caller, zap.NewNop()),
	)

	cfg := graph.RunnerConfig{StageTimeout: 5 * time.Second, StageRetries: 1}
	runner, err := graph.NewRunner(graph.DefaultDefinition(), reg, cfg, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("build runner: %v", err)
	}

	svc := service.NewAnalysisService(runner, runner, aggregate.New(taxonomy.Version), zap.NewNop())
	h := NewAnalysisHandler(svc)

	r := chi.NewRouter()
	r.Route("/v1/analyses", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/{id}", h.Get)
		r.Delete("/{id}", h.Delete)
		r.Get("/{id}/similar", h.Similar)
	})
	r.Get("/v1/taxonomy", NewTaxonomyHandler(taxonomy).Get)
	return r
}

func enqueuePipeline(client *llm.MockClient) {
	client.Enqueue(`{"claims":[{"text":"The plan is a reckless gamble.","kind":"opinion","sentence":1}]}`, nil)
	client.Enqueue(`{"findings":[{"claim_id":1,"technique":"loaded_language","evidence":"reckless gamble","confidence":0.9}]}`, nil)
	client.Enqueue(`{"direction":"left","score":-0.4,"confidence":0.7}`, nil)
	client.Enqueue(`{"summary":"Leans left with loaded language.","rationales":[]}`, nil)
}

func TestCreateAnalysisAccepted(t *testing.T) {
	client := llm.NewMockClient()
	enqueuePipeline(client)
	router := newTestRouter(t, client)

	body := `{"title":"Budget special","text":"The plan is a reckless gamble."}`
	req := httptest.NewRequest(http.MethodPost, "/v1/analyses", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusAccepted, w.Body.String())
	}

	var resp struct {
		RunID  uuid.UUID `json:"run_id"`
		Status string    `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RunID == uuid.Nil {
		t.Fatal("expected a run_id")
	}
	if resp.Status != "pending" {
		t.Fatalf("status = %q, want pending", resp.Status)
	}

	// The run completes asynchronously; poll until the critique appears.
	view := pollRun(t, router, resp.RunID, "completed")
	if view.Critique == nil {
		t.Fatal("completed run has no critique")
	}
	if view.Critique.Leaning.Direction != domain.LeaningLeft {
		t.Fatalf("leaning = %q, want left", view.Critique.Leaning.Direction)
	}
}

func TestCreateAnalysisRejectsBadInput(t *testing.T) {
	router := newTestRouter(t, llm.NewMockClient())

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"title": `},
		{"empty article", `{"title":"No content"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/analyses", strings.NewReader(tc.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestGetAnalysisErrors(t *testing.T) {
	router := newTestRouter(t, llm.NewMockClient())

	req := httptest.NewRequest(http.MethodGet, "/v1/analyses/not-a-uuid", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid id status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/analyses/"+uuid.NewString(), nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown id status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestDeleteAnalysis(t *testing.T) {
	client := llm.NewMockClient()
	enqueuePipeline(client)
	router := newTestRouter(t, client)

	req := httptest.NewRequest(http.MethodPost, "/v1/analyses", strings.NewReader(`{"text":"Some text."}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var resp struct {
		RunID uuid.UUID `json:"run_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	pollRun(t, router, resp.RunID, "completed")

	// Deleting a finished run removes it from the registry.
	req = httptest.NewRequest(http.MethodDelete, "/v1/analyses/"+resp.RunID.String(), nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want %d", w.Code, http.StatusNoContent)
	}

	req = httptest.NewRequest(http.MethodDelete, "/v1/analyses/"+resp.RunID.String(), nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestSimilarWithoutArchive(t *testing.T) {
	router := newTestRouter(t, llm.NewMockClient())

	req := httptest.NewRequest(http.MethodGet, "/v1/analyses/"+uuid.NewString()+"/similar", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotImplemented)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/analyses/"+uuid.NewString()+"/similar?top_k=0", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad top_k status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestGetTaxonomy(t *testing.T) {
	router := newTestRouter(t, llm.NewMockClient())

	req := httptest.NewRequest(http.MethodGet, "/v1/taxonomy", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var tax domain.Taxonomy
	if err := json.Unmarshal(w.Body.Bytes(), &tax); err != nil {
		t.Fatalf("decode taxonomy: %v", err)
	}
	if tax.Version != domain.DefaultTaxonomy().Version {
		t.Fatalf("version = %q, want %q", tax.Version, domain.DefaultTaxonomy().Version)
	}
	if len(tax.Techniques) == 0 {
		t.Fatal("taxonomy has no techniques")
	}
}

// pollRun fetches the run until it reaches the wanted status.
func pollRun(t *testing.T, router *chi.Mux, runID uuid.UUID, want string) *service.RunView {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		req := httptest.NewRequest(http.MethodGet, "/v1/analyses/"+runID.String(), nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("get run status = %d: %s", w.Code, w.Body.String())
		}
		var view service.RunView
		if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
			t.Fatalf("decode run view: %v", err)
		}
		if string(view.Status) == want {
			return &view
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s never reached status %s", runID, want)
	return nil
}
