package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/presslens/presslens/internal/domain"
)

type CritiqueStore struct {
	db *pgxpool.Pool
}

func NewCritiqueStore(db *pgxpool.Pool) *CritiqueStore {
	return &CritiqueStore{db: db}
}

// Archive persists a completed critique along with the article fields
// needed for display. The row embedding is the centroid of the claim
// embeddings; rows without one are excluded from similarity lookups.
func (s *CritiqueStore) Archive(ctx context.Context, c *domain.Critique, article *domain.Article) error {
	findingsJSON, err := json.Marshal(c.Findings)
	if err != nil {
		return fmt.Errorf("marshal findings: %w", err)
	}
	claimsJSON, err := json.Marshal(c.Claims)
	if err != nil {
		return fmt.Errorf("marshal claims: %w", err)
	}

	var embedding *pgvector.Vector
	if centroid := claimCentroid(c.Claims); len(centroid) > 0 {
		v := pgvector.NewVector(centroid)
		embedding = &v
	}

	title, outlet, url := "", "", ""
	if article != nil {
		title = article.Title
		outlet = string(article.Metadata.Outlet)
		url = article.Metadata.URL
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO critiques (run_id, article_id, article_title, outlet, source_url, taxonomy_version, leaning_direction, leaning_score, leaning_confidence, summary, findings, claims, embedding, analyzed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		c.RunID, c.ArticleID, title, outlet, url, c.TaxonomyVersion,
		c.Leaning.Direction, c.Leaning.Score, c.Leaning.Confidence,
		c.Summary, findingsJSON, claimsJSON, embedding, c.AnalyzedAt,
	)
	return err
}

func (s *CritiqueStore) GetByRunID(ctx context.Context, runID uuid.UUID) (*domain.Critique, error) {
	c := &domain.Critique{}
	var findingsJSON, claimsJSON []byte
	err := s.db.QueryRow(ctx,
		`SELECT run_id, article_id, taxonomy_version, leaning_direction, leaning_score, leaning_confidence, summary, findings, claims, analyzed_at
		 FROM critiques WHERE run_id = $1`,
		runID,
	).Scan(&c.RunID, &c.ArticleID, &c.TaxonomyVersion, &c.Leaning.Direction, &c.Leaning.Score, &c.Leaning.Confidence, &c.Summary, &findingsJSON, &claimsJSON, &c.AnalyzedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(findingsJSON, &c.Findings); err != nil {
		return nil, fmt.Errorf("unmarshal findings: %w", err)
	}
	if err := json.Unmarshal(claimsJSON, &c.Claims); err != nil {
		return nil, fmt.Errorf("unmarshal claims: %w", err)
	}
	return c, nil
}

func (s *CritiqueStore) Delete(ctx context.Context, runID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM critiques WHERE run_id = $1`,
		runID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Similar returns the archived critiques closest to the given run's
// claim centroid, best first. The run itself is excluded.
func (s *CritiqueStore) Similar(ctx context.Context, runID uuid.UUID, topK int) ([]domain.CritiqueWithScore, error) {
	if topK <= 0 {
		topK = 5
	}

	rows, err := s.db.Query(ctx,
		`SELECT c.run_id, c.article_id, c.taxonomy_version, c.leaning_direction, c.leaning_score, c.leaning_confidence, c.summary, c.analyzed_at,
		        1 - (c.embedding <=> ref.embedding) AS score
		 FROM critiques c, critiques ref
		 WHERE ref.run_id = $1
		   AND c.run_id != ref.run_id
		   AND c.embedding IS NOT NULL
		   AND ref.embedding IS NOT NULL
		 ORDER BY c.embedding <=> ref.embedding
		 LIMIT $2`,
		runID, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}
	defer rows.Close()

	var results []domain.CritiqueWithScore
	for rows.Next() {
		var cs domain.CritiqueWithScore
		err := rows.Scan(
			&cs.RunID, &cs.ArticleID, &cs.TaxonomyVersion,
			&cs.Leaning.Direction, &cs.Leaning.Score, &cs.Leaning.Confidence,
			&cs.Summary, &cs.AnalyzedAt, &cs.Score,
		)
		if err != nil {
			return nil, fmt.Errorf("scan similarity row: %w", err)
		}
		results = append(results, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("similarity rows: %w", err)
	}
	return results, nil
}

// claimCentroid averages the claim embeddings into one article-level
// vector. Claims without embeddings are skipped.
func claimCentroid(claims []domain.Claim) []float32 {
	var sum []float32
	n := 0
	for _, c := range claims {
		if len(c.Embedding) == 0 {
			continue
		}
		if sum == nil {
			sum = make([]float32, len(c.Embedding))
		}
		if len(c.Embedding) != len(sum) {
			continue
		}
		for i, v := range c.Embedding {
			sum[i] += v
		}
		n++
	}
	if n == 0 {
		return nil
	}
	for i := range sum {
		sum[i] /= float32(n)
	}
	return sum
}
