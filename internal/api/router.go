package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/presslens/presslens/internal/aggregate"
	"github.com/presslens/presslens/internal/api/handlers"
	mw "github.com/presslens/presslens/internal/api/middleware"
	"github.com/presslens/presslens/internal/config"
	"github.com/presslens/presslens/internal/domain"
	"github.com/presslens/presslens/internal/embedding"
	"github.com/presslens/presslens/internal/fetch"
	"github.com/presslens/presslens/internal/graph"
	"github.com/presslens/presslens/internal/llm"
	"github.com/presslens/presslens/internal/service"
	"github.com/presslens/presslens/internal/stages"
	"github.com/presslens/presslens/internal/store"
)

// App holds the router and the analysis service for lifecycle management.
type App struct {
	Router   *chi.Mux
	Analysis *service.AnalysisService

	db           *pgxpool.Pool
	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
	collector    *mw.MetricsCollector
}

// NewApp wires clients, stages, runners and handlers into a ready
// application. A nil pool disables the critique archive.
func NewApp(db *pgxpool.Pool, logger *zap.Logger) (*App, error) {
	taxonomy := domain.DefaultTaxonomy()
	if path := config.TaxonomyPath(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read taxonomy %s: %w", path, err)
		}
		taxonomy, err = domain.LoadTaxonomy(data)
		if err != nil {
			return nil, err
		}
	}

	modelClient, err := llm.NewClient(config.LLMProvider(), config.LLMAPIKey())
	if err != nil {
		return nil, fmt.Errorf("model client: %w", err)
	}
	logger.Info("model client initialized", zap.String("provider", config.LLMProvider()))

	embeddingClient, err := embedding.NewClient(config.EmbeddingProvider(), config.EmbeddingAPIKey())
	if err != nil {
		return nil, fmt.Errorf("embedding client: %w", err)
	}
	logger.Info("embedding client initialized", zap.String("provider", config.EmbeddingProvider()))

	adapterCfg := llm.DefaultAdapterConfig()
	adapterCfg.RPS = config.ModelRPS()
	adapterCfg.Burst = config.ModelBurst()
	adapterCfg.MaxAttempts = config.ModelMaxAttempts()
	caller := llm.NewAdapter(modelClient, adapterCfg, logger)

	fetcher := fetch.New(logger)

	reg := graph.NewRegistry()
	reg.MustRegister(stages.NewContentExtraction(caller, fetcher, logger))
	reg.MustRegister(stages.NewClaimExtraction(caller, embeddingClient, logger))
	reg.MustRegister(stages.NewTechniqueDetection(caller, taxonomy, logger))
	reg.MustRegister(stages.NewBiasScoring(caller, logger))
	reg.MustRegister(stages.NewSynthesis(caller, logger))

	textDef := graph.DefaultDefinition()
	if path := config.GraphPath(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read graph %s: %w", path, err)
		}
		textDef, err = graph.Load(data)
		if err != nil {
			return nil, err
		}
	}

	runnerCfg := graph.DefaultRunnerConfig()
	runnerCfg.StageTimeout = config.StageTimeout()
	sink := service.NewLogSink(logger)

	textRunner, err := graph.NewRunner(textDef, reg, runnerCfg, sink, logger)
	if err != nil {
		return nil, err
	}
	urlRunner, err := graph.NewRunner(graph.URLDefinition(), reg, runnerCfg, sink, logger)
	if err != nil {
		return nil, err
	}

	agg := aggregate.New(taxonomy.Version)
	analysisSvc := service.NewAnalysisService(textRunner, urlRunner, agg, logger)
	if db != nil {
		analysisSvc.SetArchiver(store.NewCritiqueStore(db))
	}

	analysisHandler := handlers.NewAnalysisHandler(analysisSvc)
	taxonomyHandler := handlers.NewTaxonomyHandler(taxonomy)

	r := chi.NewRouter()
	app := &App{
		Router:    r,
		Analysis:  analysisSvc,
		db:        db,
		startTime: time.Now(),
	}

	app.collector = mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(app.collector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	r.Get("/health", app.healthHandler())
	r.Get("/metrics", app.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/analyses", func(r chi.Router) {
			r.Post("/", analysisHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", analysisHandler.Get)
				r.Delete("/", analysisHandler.Delete)
				r.Get("/similar", analysisHandler.Similar)
			})
		})
		r.Get("/taxonomy", taxonomyHandler.Get)
	})

	return app, nil
}

func (app *App) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]string{"status": "ok", "archive": "disabled"}
		if app.db != nil {
			resp["archive"] = "ok"
			if err := app.db.Ping(r.Context()); err != nil {
				resp["status"] = "degraded"
				resp["archive"] = err.Error()
				writeHealth(w, http.StatusServiceUnavailable, resp)
				return
			}
		}
		writeHealth(w, http.StatusOK, resp)
	}
}

func writeHealth(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"http": map[string]any{
				"request_count": app.requestCount.Load(),
				"error_count":   app.errorCount.Load(),
				"in_flight":     app.collector.InFlight(),
			},
			"runs":       app.Analysis.Stats(),
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb": float64(memStats.Alloc) / 1024 / 1024,
				"sys_mb":   float64(memStats.Sys) / 1024 / 1024,
				"num_gc":   memStats.NumGC,
			},
			"go_version": runtime.Version(),
		}

		writeHealth(w, http.StatusOK, response)
	}
}

// Ensure clients, stages and stores satisfy their interfaces at compile time.
var (
	_ domain.ModelClient     = (*llm.OpenAIClient)(nil)
	_ domain.ModelClient     = (*llm.AnthropicClient)(nil)
	_ domain.ModelClient     = (*llm.MockClient)(nil)
	_ domain.ModelCaller     = (*llm.Adapter)(nil)
	_ domain.EmbeddingClient = (*embedding.OpenAIClient)(nil)
	_ domain.EmbeddingClient = (*embedding.MockClient)(nil)
	_ stages.PageFetcher     = (*fetch.Fetcher)(nil)
	_ service.Archiver       = (*store.CritiqueStore)(nil)
	_ domain.Stage           = (*stages.ContentExtraction)(nil)
	_ domain.Stage           = (*stages.ClaimExtraction)(nil)
	_ domain.Stage           = (*stages.TechniqueDetection)(nil)
	_ domain.Stage           = (*stages.BiasScoring)(nil)
	_ domain.Stage           = (*stages.Synthesis)(nil)
)
