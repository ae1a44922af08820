package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Gather/internal/domain"
)

// OrchestrationRepo — хранилище записей оркестрации в PostgreSQL.
//
// Условные обновления выполняются одним UPDATE ... WHERE <условие>,
// поэтому из нескольких конкурентных попыток побеждает ровно одна.
type OrchestrationRepo struct {
	pool *pgxpool.Pool
}

// NewOrchestrationRepo создаёт новый OrchestrationRepo.
func NewOrchestrationRepo(pool *pgxpool.Pool) *OrchestrationRepo {
	return &OrchestrationRepo{pool: pool}
}

var _ Store = (*OrchestrationRepo)(nil)

// Create создаёт новую запись.
func (r *OrchestrationRepo) Create(ctx context.Context, rec *domain.Record) error {
	engineJSON, err := json.Marshal(rec.Engine)
	if err != nil {
		return fmt.Errorf("marshal engine: %w", err)
	}
	outputs := rec.Outputs
	if outputs == nil {
		outputs = map[string]string{}
	}
	outputsJSON, err := json.Marshal(outputs)
	if err != nil {
		return fmt.Errorf("marshal outputs: %w", err)
	}

	query := `
		INSERT INTO orchestrations (request_id, engine, outputs, final_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.pool.Exec(ctx, query,
		rec.RequestID,
		engineJSON,
		outputsJSON,
		string(rec.FinalStatus.OrPending()),
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert orchestration: %w", err)
	}
	return nil
}

// Get возвращает запись по request id.
func (r *OrchestrationRepo) Get(ctx context.Context, requestID string) (*domain.Record, error) {
	query := `
		SELECT request_id, engine, outputs, final_status, merged_key, merged_at, created_at, updated_at
		FROM orchestrations
		WHERE request_id = $1
	`
	return scanRecord(r.pool.QueryRow(ctx, query, requestID))
}

// Update выполняет условное обновление.
func (r *OrchestrationRepo) Update(ctx context.Context, requestID string, upd Update, cond Condition) error {
	query, args, err := buildUpdate(requestID, upd, cond)
	if err != nil {
		return err
	}

	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update orchestration: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	// Ничего не обновили: либо записи нет, либо условие не выполнено.
	var exists bool
	err = r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM orchestrations WHERE request_id = $1)`,
		requestID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check orchestration: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConditionFailed
}

// ListStale возвращает до f.Limit записей под фильтром, самые старые первыми.
func (r *OrchestrationRepo) ListStale(ctx context.Context, f StaleFilter) ([]domain.Record, error) {
	where, args := buildStaleWhere(f)
	query := `
		SELECT request_id, engine, outputs, final_status, merged_key, merged_at, created_at, updated_at
		FROM orchestrations
		WHERE ` + where + `
		ORDER BY updated_at ASC, request_id ASC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf("\n\t\tLIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stale orchestrations: %w", err)
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// CountStale возвращает число записей под фильтром.
func (r *OrchestrationRepo) CountStale(ctx context.Context, f StaleFilter) (int, error) {
	where, args := buildStaleWhere(f)
	var n int
	err := r.pool.QueryRow(ctx, "SELECT count(*) FROM orchestrations WHERE "+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count stale orchestrations: %w", err)
	}
	return n, nil
}

// --- Helpers ---

// buildUpdate собирает UPDATE с условием в WHERE.
func buildUpdate(requestID string, upd Update, cond Condition) (string, []any, error) {
	args := []any{requestID}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	sets := []string{"updated_at = now()"}
	if len(upd.Engine) > 0 {
		b, err := json.Marshal(upd.Engine)
		if err != nil {
			return "", nil, fmt.Errorf("marshal engine: %w", err)
		}
		sets = append(sets, "engine = engine || "+arg(b)+"::jsonb")
	}
	if len(upd.Outputs) > 0 {
		b, err := json.Marshal(upd.Outputs)
		if err != nil {
			return "", nil, fmt.Errorf("marshal outputs: %w", err)
		}
		sets = append(sets, "outputs = outputs || "+arg(b)+"::jsonb")
	}
	if upd.FinalStatus != "" {
		sets = append(sets, "final_status = "+arg(string(upd.FinalStatus)))
	}
	if upd.MergedKey != "" {
		sets = append(sets, "merged_key = "+arg(upd.MergedKey))
	}
	if upd.MergedAt != nil {
		sets = append(sets, "merged_at = "+arg(*upd.MergedAt))
	}

	where := []string{"request_id = $1"}
	if cond.FinalStatus != "" {
		where = append(where, "final_status = "+arg(string(cond.FinalStatus)))
	}
	for _, name := range cond.WorkersDone {
		where = append(where, "engine ->> "+arg(name)+"::text = '"+string(domain.WorkerStatusDone)+"'")
	}
	for _, name := range cond.HasWorkers {
		where = append(where, "engine -> "+arg(name)+"::text IS NOT NULL")
	}

	query := "UPDATE orchestrations SET " + strings.Join(sets, ", ") +
		" WHERE " + strings.Join(where, " AND ")
	return query, args, nil
}

// buildStaleWhere собирает WHERE для StaleFilter.
func buildStaleWhere(f StaleFilter) (string, []any) {
	args := []any{string(f.Status), f.Before}
	where := []string{"final_status = $1", "updated_at < $2"}

	if len(f.WorkersDone) > 0 {
		done := make([]string, len(f.WorkersDone))
		for i, name := range f.WorkersDone {
			args = append(args, name)
			done[i] = fmt.Sprintf("engine ->> $%d::text = '%s'", len(args), domain.WorkerStatusDone)
		}
		all := "(" + strings.Join(done, " AND ") + ")"
		if f.Unfinished {
			// ->> для отсутствующего ключа даёт NULL
			all = "NOT COALESCE(" + all + ", false)"
		}
		where = append(where, all)
	} else if f.Unfinished {
		where = append(where, "false")
	}
	return strings.Join(where, " AND "), args
}

// scanRecord сканирует одну строку в Record.
func scanRecord(row pgx.Row) (*domain.Record, error) {
	var rec domain.Record
	var engineJSON, outputsJSON []byte
	var finalStatus string
	var mergedKey *string

	err := row.Scan(
		&rec.RequestID,
		&engineJSON,
		&outputsJSON,
		&finalStatus,
		&mergedKey,
		&rec.MergedAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan orchestration: %w", err)
	}

	if engineJSON != nil {
		if err := json.Unmarshal(engineJSON, &rec.Engine); err != nil {
			return nil, fmt.Errorf("unmarshal engine: %w", err)
		}
	}
	rec.Outputs = map[string]string{}
	if outputsJSON != nil {
		if err := json.Unmarshal(outputsJSON, &rec.Outputs); err != nil {
			return nil, fmt.Errorf("unmarshal outputs: %w", err)
		}
	}
	rec.FinalStatus = domain.FinalStatus(finalStatus).OrPending()
	if mergedKey != nil {
		rec.MergedKey = *mergedKey
	}
	return &rec, nil
}

// isDuplicateKey проверяет нарушение уникальности (unique_violation, 23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
