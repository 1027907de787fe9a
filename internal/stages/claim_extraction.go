package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/presslens/presslens/internal/domain"
	"github.com/presslens/presslens/internal/embedding"
	"github.com/presslens/presslens/internal/llm"
)

// DuplicateClaimThreshold is the minimum embedding similarity at which
// two extracted claims are considered restatements of each other.
const DuplicateClaimThreshold = 0.92

// ClaimExtraction decomposes the article into discrete factual and
// opinion claims, deduplicating near-identical restatements via
// embedding similarity.
type ClaimExtraction struct {
	caller   domain.ModelCaller
	embedder domain.EmbeddingClient
	logger   *zap.Logger
}

func NewClaimExtraction(caller domain.ModelCaller, embedder domain.EmbeddingClient, logger *zap.Logger) *ClaimExtraction {
	return &ClaimExtraction{caller: caller, embedder: embedder, logger: logger}
}

func (s *ClaimExtraction) Name() string { return domain.StageClaimExtraction }

func (s *ClaimExtraction) Requires() []string { return nil }

func (s *ClaimExtraction) Execute(ctx context.Context, ac *domain.AnalysisContext) (*domain.StageResult, error) {
	article := articleFor(ac)

	raw, err := s.caller.Invoke(ctx, llm.ClaimExtractionSpec(article))
	if err != nil {
		return nil, err
	}

	var resp llm.ClaimExtractionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode claim extraction response: %w", err)
	}

	claims := make([]domain.Claim, 0, len(resp.Claims))
	for _, ec := range resp.Claims {
		claims = append(claims, domain.Claim{
			ID:       len(claims) + 1,
			Text:     ec.Text,
			Kind:     domain.ClaimKind(ec.Kind),
			Sentence: ec.Sentence,
		})
	}
	claims = s.dedupe(ctx, claims)

	res := &domain.StageResult{
		Stage:      domain.StageClaimExtraction,
		Claims:     claims,
		Hint:       domain.HintOK,
		Confidence: 1.0,
	}
	if len(claims) == 0 {
		res.Hint = domain.HintEmpty
		res.Confidence = 0
	}
	return res, nil
}

// dedupe drops claims whose embedding is nearly identical to an earlier
// kept claim. Embedding failures are tolerated: the claim is kept and
// recall of duplicates degrades gracefully.
func (s *ClaimExtraction) dedupe(ctx context.Context, claims []domain.Claim) []domain.Claim {
	if s.embedder == nil || len(claims) < 2 {
		return claims
	}

	kept := claims[:0]
	for i := range claims {
		emb, err := s.embedder.Embed(ctx, claims[i].Text)
		if err != nil {
			s.logger.Warn("claim embedding failed, keeping claim",
				zap.Int("claim", claims[i].ID), zap.Error(err))
			kept = append(kept, claims[i])
			continue
		}
		claims[i].Embedding = emb

		duplicate := false
		for _, k := range kept {
			if embedding.Cosine(emb, k.Embedding) >= DuplicateClaimThreshold {
				s.logger.Debug("dropping duplicate claim",
					zap.Int("claim", claims[i].ID), zap.Int("duplicate_of", k.ID))
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, claims[i])
		}
	}

	// Renumber so downstream claim IDs stay dense.
	for i := range kept {
		kept[i].ID = i + 1
	}
	return kept
}
