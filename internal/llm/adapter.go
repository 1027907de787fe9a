package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/presslens/presslens/internal/domain"
)

// AdapterConfig tunes retry and rate-limit behavior of the call adapter.
type AdapterConfig struct {
	// MaxAttempts is the ceiling on attempts for transient failures.
	MaxAttempts int
	// InitialBackoff is the delay before the first retry; it doubles on
	// each subsequent retry up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// RPS and Burst configure the process-wide token bucket. The external
	// model endpoint's rate limit is shared across concurrent runs, so
	// one limiter guards all adapter instances built from one config.
	RPS   float64
	Burst int
}

// DefaultAdapterConfig returns the adapter defaults used by the server.
func DefaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		MaxAttempts:    4,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     8 * time.Second,
		RPS:            5,
		Burst:          10,
	}
}

// Adapter is the uniform model invocation boundary. It owns transient
// retry with exponential backoff, the shared token bucket, and
// structured-output schema validation with a single repair retry.
type Adapter struct {
	client  domain.ModelClient
	limiter *rate.Limiter
	cfg     AdapterConfig
	logger  *zap.Logger
}

// NewAdapter wraps a provider client.
func NewAdapter(client domain.ModelClient, cfg AdapterConfig, logger *zap.Logger) *Adapter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Adapter{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		cfg:     cfg,
		logger:  logger,
	}
}

// Invoke sends the prompt and returns the validated structured response.
// Transient model errors are retried locally and never surface unless
// the attempt ceiling is hit; a schema-invalid response triggers exactly
// one repair retry asking the model to reformat, and is permanent after
// that. Cancellation is checked before every attempt.
func (a *Adapter) Invoke(ctx context.Context, spec domain.PromptSpec) (json.RawMessage, error) {
	prompt := spec.Prompt
	repaired := false
	attempt := 0

	for {
		attempt++
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrRunCancelled, err)
		}
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrRunCancelled, err)
		}

		text, err := a.client.Complete(ctx, prompt, spec.MaxTokens)
		if err != nil {
			if domain.IsTransient(err) && attempt < a.cfg.MaxAttempts {
				a.logger.Warn("model call failed, retrying",
					zap.String("stage", spec.Stage),
					zap.Int("attempt", attempt),
					zap.Error(err))
				if serr := a.sleep(ctx, attempt); serr != nil {
					return nil, serr
				}
				continue
			}
			return nil, err
		}

		raw := json.RawMessage(cleanJSONResponse(text))
		if spec.Schema != nil {
			if verr := spec.Schema.Validate(raw); verr != nil {
				sve := &domain.SchemaValidationError{Stage: spec.Stage, Raw: string(raw), Err: verr}
				if repaired {
					return nil, sve
				}
				// One-shot repair: resend with the invalid output and the
				// validation complaint appended.
				repaired = true
				prompt = repairPrompt(spec.Prompt, string(raw), verr)
				a.logger.Warn("schema validation failed, requesting reformat",
					zap.String("stage", spec.Stage),
					zap.Error(verr))
				continue
			}
		}
		return raw, nil
	}
}

// sleep blocks for the exponential backoff of the given attempt, or
// returns early when the run is cancelled.
func (a *Adapter) sleep(ctx context.Context, attempt int) error {
	d := a.cfg.InitialBackoff << (attempt - 1)
	if d > a.cfg.MaxBackoff || d <= 0 {
		d = a.cfg.MaxBackoff
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", domain.ErrRunCancelled, ctx.Err())
	case <-timer.C:
		return nil
	}
}

func repairPrompt(original, invalid string, verr error) string {
	return fmt.Sprintf(`%s

Your previous response did not match the required JSON schema.
Previous response:
%s

Problem: %v

Respond again with ONLY valid JSON matching the required schema. No markdown, no explanation.`,
		original, invalid, verr)
}
