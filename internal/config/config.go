package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by PRESSLENS_ENV (or .env by
// default), then the corresponding .secret sidecar if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("PRESSLENS_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

// DatabaseURL returns the Postgres URL for the critique archive.
// Empty disables archiving; analysis itself never touches the database.
func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func AnthropicAPIKey() string {
	return os.Getenv("ANTHROPIC_API_KEY")
}

// LLMProvider returns the configured model provider.
// Defaults to "anthropic" if not set.
// Valid values: openai, anthropic, mock
func LLMProvider() string {
	p := os.Getenv("LLM_PROVIDER")
	if p == "" {
		return "anthropic"
	}
	return p
}

// EmbeddingProvider returns the configured embedding provider.
// Defaults to "openai" if not set.
// Valid values: openai, mock
func EmbeddingProvider() string {
	p := os.Getenv("EMBEDDING_PROVIDER")
	if p == "" {
		return "openai"
	}
	return p
}

// LLMAPIKey returns the API key for the configured model provider.
func LLMAPIKey() string {
	switch LLMProvider() {
	case "openai":
		return OpenAIAPIKey()
	case "mock":
		return ""
	default:
		return AnthropicAPIKey()
	}
}

// EmbeddingAPIKey returns the API key for the configured embedding provider.
func EmbeddingAPIKey() string {
	switch EmbeddingProvider() {
	case "mock":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// RateLimitRPS returns the HTTP requests per second limit per client.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for HTTP rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// ModelRPS returns the model adapter's requests per second budget,
// shared across all concurrent runs. Defaults to 5.
func ModelRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("MODEL_RPS"), 64)
	if err != nil || rps <= 0 {
		return 5
	}
	return rps
}

// ModelBurst returns the adapter's token bucket burst. Defaults to 10.
func ModelBurst() int {
	burst, err := strconv.Atoi(os.Getenv("MODEL_BURST"))
	if err != nil || burst <= 0 {
		return 10
	}
	return burst
}

// ModelMaxAttempts bounds the adapter's transient retries per call.
// Defaults to 4.
func ModelMaxAttempts() int {
	n, err := strconv.Atoi(os.Getenv("MODEL_MAX_ATTEMPTS"))
	if err != nil || n <= 0 {
		return 4
	}
	return n
}

// StageTimeout returns the per-stage wall-clock budget.
// Defaults to 90s.
func StageTimeout() time.Duration {
	d, err := time.ParseDuration(os.Getenv("STAGE_TIMEOUT"))
	if err != nil || d <= 0 {
		return 90 * time.Second
	}
	return d
}

// TaxonomyPath returns an optional taxonomy file overriding the
// embedded vocabulary.
func TaxonomyPath() string {
	return os.Getenv("TAXONOMY_PATH")
}

// GraphPath returns an optional graph definition file overriding the
// embedded text-submission graph.
func GraphPath() string {
	return os.Getenv("GRAPH_PATH")
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}
