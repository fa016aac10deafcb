// Package store owns the application schema. River manages its own tables
// through rivermigrate; everything else lives here.
package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id uuid PRIMARY KEY,
	email text NOT NULL UNIQUE,
	display_name text NOT NULL DEFAULT '',
	credit_balance integer NOT NULL DEFAULT 0,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS credit_ledger (
	id uuid PRIMARY KEY,
	account_id uuid NOT NULL REFERENCES accounts(id),
	delta integer NOT NULL,
	reason text NOT NULL,
	ref_id uuid,
	balance_after integer NOT NULL,
	created_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS credit_ledger_account_idx ON credit_ledger (account_id, created_at DESC);
CREATE INDEX IF NOT EXISTS credit_ledger_ref_idx ON credit_ledger (ref_id) WHERE ref_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS cost_configs (
	action_type text NOT NULL,
	model_id text,
	cost integer NOT NULL CHECK (cost >= 0),
	created_at timestamptz NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS cost_configs_action_model_idx
	ON cost_configs (action_type, COALESCE(model_id, ''));

CREATE TABLE IF NOT EXISTS generation_tasks (
	id uuid PRIMARY KEY,
	owner_id uuid NOT NULL REFERENCES accounts(id),
	action_type text NOT NULL,
	model_id text NOT NULL DEFAULT '',
	prompt jsonb NOT NULL,
	status text NOT NULL DEFAULT 'queued',
	cost_charged integer NOT NULL DEFAULT 0,
	artifact_url text,
	storage_key text,
	failure_reason text,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS generation_tasks_owner_idx ON generation_tasks (owner_id, created_at DESC);

CREATE TABLE IF NOT EXISTS posts (
	id uuid PRIMARY KEY,
	author_id uuid NOT NULL REFERENCES accounts(id),
	task_id uuid REFERENCES generation_tasks(id),
	image_url text NOT NULL,
	caption text NOT NULL DEFAULT '',
	like_count integer NOT NULL DEFAULT 0,
	created_at timestamptz NOT NULL DEFAULT now()
);

CREATE MATERIALIZED VIEW IF NOT EXISTS trending_posts AS
	SELECT p.id, p.author_id, p.image_url, p.caption, p.like_count, p.created_at
	FROM posts p
	WHERE p.created_at > now() - interval '7 days'
	ORDER BY p.like_count DESC, p.created_at DESC
	LIMIT 100;
CREATE UNIQUE INDEX IF NOT EXISTS trending_posts_id_idx ON trending_posts (id);
`

// Ensure creates the application tables if they do not exist. Idempotent.
func Ensure(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
