package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema — таблица записей оркестрации.
// Индекс по (final_status, updated_at) нужен sweeper'у.
const schema = `
CREATE TABLE IF NOT EXISTS orchestrations (
	request_id   text PRIMARY KEY,
	engine       jsonb NOT NULL DEFAULT '{}'::jsonb,
	outputs      jsonb NOT NULL DEFAULT '{}'::jsonb,
	final_status text NOT NULL DEFAULT 'PENDING',
	merged_key   text,
	merged_at    timestamptz,
	created_at   timestamptz NOT NULL DEFAULT now(),
	updated_at   timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS orchestrations_status_updated_idx
	ON orchestrations (final_status, updated_at);
`

// EnsureSchema создаёт таблицу, если её ещё нет.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
