// Package store persists completed critiques to Postgres for audit and
// cross-article similarity lookup. The analysis engine itself never
// reads from here; archiving is optional and a nil archiver disables it.
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

const schemaSQL = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS critiques (
	run_id UUID PRIMARY KEY,
	article_id UUID NOT NULL,
	article_title TEXT NOT NULL DEFAULT '',
	outlet TEXT NOT NULL DEFAULT '',
	source_url TEXT NOT NULL DEFAULT '',
	taxonomy_version TEXT NOT NULL,
	leaning_direction TEXT NOT NULL,
	leaning_score DOUBLE PRECISION NOT NULL,
	leaning_confidence DOUBLE PRECISION NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	findings JSONB NOT NULL DEFAULT '[]',
	claims JSONB NOT NULL DEFAULT '[]',
	embedding vector(1536),
	analyzed_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_critiques_article ON critiques (article_id);
`

// Migrate creates the archive schema. Safe to run on every startup.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, schemaSQL)
	return err
}
