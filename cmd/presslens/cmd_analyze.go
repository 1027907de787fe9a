package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/presslens/presslens/internal/aggregate"
	"github.com/presslens/presslens/internal/config"
	"github.com/presslens/presslens/internal/domain"
	"github.com/presslens/presslens/internal/embedding"
	"github.com/presslens/presslens/internal/fetch"
	"github.com/presslens/presslens/internal/graph"
	"github.com/presslens/presslens/internal/llm"
	"github.com/presslens/presslens/internal/service"
	"github.com/presslens/presslens/internal/stages"
)

var analyzeFlags struct {
	title   string
	outlet  string
	output  string
	timeout time.Duration
	verbose bool
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file|url>",
	Short: "Analyze one article and print the critique JSON",
	Long: `Analyze runs the full critique pipeline on a single article and
prints the resulting critique as JSON.

Usage:
  presslens analyze editorial.txt --outlet "Le Monde"
  presslens analyze https://www.theguardian.com/...

The model provider and API key are read from the environment
(LLM_PROVIDER, plus the provider's key variable); see .env.example.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyzeCmd,
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&analyzeFlags.title, "title", "", "Article title (file submissions)")
	f.StringVar(&analyzeFlags.outlet, "outlet", "", "Outlet name, e.g. \"Le Monde\"")
	f.StringVarP(&analyzeFlags.output, "output", "o", "", "Write the critique to a file instead of stdout")
	f.DurationVar(&analyzeFlags.timeout, "timeout", 5*time.Minute, "Overall analysis deadline")
	f.BoolVarP(&analyzeFlags.verbose, "verbose", "v", false, "Log stage progress to stderr")
}

func runAnalyzeCmd(cmd *cobra.Command, args []string) error {
	if err := config.Load(); err != nil {
		return err
	}

	logger := zap.NewNop()
	if analyzeFlags.verbose {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			return err
		}
	}

	article := &domain.Article{
		Title: analyzeFlags.title,
		Metadata: domain.ArticleMetadata{
			Outlet: domain.Outlet(analyzeFlags.outlet),
		},
	}
	src := args[0]
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		article.Metadata.URL = src
	} else {
		data, err := os.ReadFile(src)
		if err != nil {
			return fmt.Errorf("read article: %w", err)
		}
		article.Text = string(data)
	}

	svc, err := buildAnalysisService(logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), analyzeFlags.timeout)
	defer cancel()

	critique, err := svc.Analyze(ctx, article)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(critique, "", "  ")
	if err != nil {
		return err
	}
	out = append(out, '\n')

	if analyzeFlags.output != "" {
		return os.WriteFile(analyzeFlags.output, out, 0o644)
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

// buildAnalysisService wires the pipeline from environment config, the
// same way the server does, minus the HTTP surface and the archive.
func buildAnalysisService(logger *zap.Logger) (*service.AnalysisService, error) {
	taxonomy := domain.DefaultTaxonomy()
	if path := config.TaxonomyPath(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		taxonomy, err = domain.LoadTaxonomy(data)
		if err != nil {
			return nil, err
		}
	}

	modelClient, err := llm.NewClient(config.LLMProvider(), config.LLMAPIKey())
	if err != nil {
		return nil, err
	}
	embeddingClient, err := embedding.NewClient(config.EmbeddingProvider(), config.EmbeddingAPIKey())
	if err != nil {
		return nil, err
	}

	adapterCfg := llm.DefaultAdapterConfig()
	adapterCfg.RPS = config.ModelRPS()
	adapterCfg.Burst = config.ModelBurst()
	adapterCfg.MaxAttempts = config.ModelMaxAttempts()
	caller := llm.NewAdapter(modelClient, adapterCfg, logger)

	reg := graph.NewRegistry()
	reg.MustRegister(stages.NewContentExtraction(caller, fetch.New(logger), logger))
	reg.MustRegister(stages.NewClaimExtraction(caller, embeddingClient, logger))
	reg.MustRegister(stages.NewTechniqueDetection(caller, taxonomy, logger))
	reg.MustRegister(stages.NewBiasScoring(caller, logger))
	reg.MustRegister(stages.NewSynthesis(caller, logger))

	runnerCfg := graph.DefaultRunnerConfig()
	runnerCfg.StageTimeout = config.StageTimeout()
	sink := service.NewLogSink(logger)

	textRunner, err := graph.NewRunner(graph.DefaultDefinition(), reg, runnerCfg, sink, logger)
	if err != nil {
		return nil, err
	}
	urlRunner, err := graph.NewRunner(graph.URLDefinition(), reg, runnerCfg, sink, logger)
	if err != nil {
		return nil, err
	}

	return service.NewAnalysisService(textRunner, urlRunner, aggregate.New(taxonomy.Version), logger), nil
}
