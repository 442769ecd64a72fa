package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// ExecutionStore is the durable checkpoint store. Save is an optimistic
// compare-and-swap on the version column, which gives the orchestrator its
// single-writer-per-execution guarantee without a separate lease.
type ExecutionStore struct {
	db *sql.DB
}

func NewExecutionStore(db *sql.DB) *ExecutionStore {
	return &ExecutionStore{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (s *ExecutionStore) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across worker/api startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS executions (
	id TEXT PRIMARY KEY,
	container TEXT NOT NULL,
	key TEXT NOT NULL,
	status TEXT NOT NULL,
	current_stage_index INT NOT NULL DEFAULT 0,
	payload JSONB NOT NULL DEFAULT '{}'::jsonb,
	attempt INT NOT NULL DEFAULT 0,
	last_error TEXT,
	audit JSONB NOT NULL DEFAULT '[]'::jsonb,
	version BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_executions_ref ON executions(container, key);
CREATE INDEX IF NOT EXISTS idx_executions_status ON executions(status);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (s *ExecutionStore) Load(ctx context.Context, executionID string) (*domain.ExecutionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, container, key, status, current_stage_index, payload, attempt, last_error, audit, version, created_at, updated_at
FROM executions
WHERE id = $1
`, executionID)

	record, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrExecutionNotFound, "load execution", fmt.Errorf("id=%s", executionID))
		}
		return nil, fmt.Errorf("load execution: %w", err)
	}
	return record, nil
}

func (s *ExecutionStore) Save(ctx context.Context, record *domain.ExecutionRecord) error {
	payloadJSON, err := json.Marshal(record.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	auditJSON, err := json.Marshal(record.Audit)
	if err != nil {
		return fmt.Errorf("marshal audit: %w", err)
	}

	if record.Version == 0 {
		return s.insert(ctx, record, payloadJSON, auditJSON)
	}
	return s.update(ctx, record, payloadJSON, auditJSON)
}

func (s *ExecutionStore) insert(ctx context.Context, record *domain.ExecutionRecord, payloadJSON, auditJSON []byte) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO executions (
	id, container, key, status, current_stage_index, payload, attempt, last_error, audit, version, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,1,$10,$11)
`,
		record.ID, record.Ref.Container, record.Ref.Key, string(record.Status), record.CurrentStageIndex,
		payloadJSON, record.Attempt, record.LastError, auditJSON, record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrConflict, "insert execution", err)
		}
		return fmt.Errorf("insert execution: %w", err)
	}
	record.Version = 1
	return nil
}

func (s *ExecutionStore) update(ctx context.Context, record *domain.ExecutionRecord, payloadJSON, auditJSON []byte) error {
	result, err := s.db.ExecContext(ctx, `
UPDATE executions
SET status = $2, current_stage_index = $3, payload = $4, attempt = $5, last_error = $6, audit = $7, version = version + 1, updated_at = $8
WHERE id = $1 AND version = $9
`,
		record.ID, string(record.Status), record.CurrentStageIndex, payloadJSON,
		record.Attempt, record.LastError, auditJSON, record.UpdatedAt, record.Version,
	)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update execution rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrConflict, "update execution", fmt.Errorf("id=%s version=%d", record.ID, record.Version))
	}
	record.Version++
	return nil
}

func (s *ExecutionStore) Exists(ctx context.Context, ref domain.DocumentRef) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
SELECT id FROM executions WHERE container = $1 AND key = $2
`, ref.Container, ref.Key).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("check execution exists: %w", err)
	}
	return id, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*domain.ExecutionRecord, error) {
	var record domain.ExecutionRecord
	var status string
	var lastError sql.NullString
	var payloadRaw, auditRaw []byte

	err := row.Scan(
		&record.ID, &record.Ref.Container, &record.Ref.Key, &status, &record.CurrentStageIndex,
		&payloadRaw, &record.Attempt, &lastError, &auditRaw, &record.Version, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(payloadRaw, &record.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := json.Unmarshal(auditRaw, &record.Audit); err != nil {
		return nil, fmt.Errorf("unmarshal audit: %w", err)
	}
	record.Status = domain.ExecutionStatus(status)
	record.LastError = lastError.String
	return &record, nil
}

func isUniqueViolation(err error) bool {
	type coder interface {
		SQLState() string
	}
	var pgErr coder
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
