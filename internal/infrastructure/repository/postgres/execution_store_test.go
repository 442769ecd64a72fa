package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/docflow/internal/core/domain"
)

type uniqueViolation struct{}

func (uniqueViolation) Error() string    { return "duplicate key value violates unique constraint" }
func (uniqueViolation) SQLState() string { return "23505" }

func newMockStore(t *testing.T) (*ExecutionStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewExecutionStore(db), mock
}

func TestSaveInsertsNewRecord(t *testing.T) {
	store, mock := newMockStore(t)
	record := domain.NewExecution(domain.DocumentRef{Container: "docs", Key: "a.pdf"}, time.Now().UTC())

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO executions")).
		WithArgs(
			record.ID, "docs", "a.pdf", "pending", 0,
			sqlmock.AnyArg(), 0, "", sqlmock.AnyArg(), record.CreatedAt, record.UpdatedAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Save(context.Background(), record); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if record.Version != 1 {
		t.Fatalf("expected version 1 after insert, got %d", record.Version)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSaveInsertConflictOnDuplicateRef(t *testing.T) {
	store, mock := newMockStore(t)
	record := domain.NewExecution(domain.DocumentRef{Container: "docs", Key: "a.pdf"}, time.Now().UTC())

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO executions")).
		WillReturnError(uniqueViolation{})

	err := store.Save(context.Background(), record)
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on duplicate insert, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSaveUpdateBumpsVersion(t *testing.T) {
	store, mock := newMockStore(t)
	record := domain.NewExecution(domain.DocumentRef{Container: "docs", Key: "a.pdf"}, time.Now().UTC())
	record.Version = 2
	record.Status = domain.StatusRunning

	mock.ExpectExec(regexp.QuoteMeta("UPDATE executions")).
		WithArgs(
			record.ID, "running", 0, sqlmock.AnyArg(), 0, "", sqlmock.AnyArg(), record.UpdatedAt, int64(2),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Save(context.Background(), record); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if record.Version != 3 {
		t.Fatalf("expected version 3 after update, got %d", record.Version)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSaveUpdateConflictOnStaleVersion(t *testing.T) {
	store, mock := newMockStore(t)
	record := domain.NewExecution(domain.DocumentRef{Container: "docs", Key: "a.pdf"}, time.Now().UTC())
	record.Version = 1

	mock.ExpectExec(regexp.QuoteMeta("UPDATE executions")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Save(context.Background(), record)
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on stale version, got %v", err)
	}
	if record.Version != 1 {
		t.Fatalf("version must not advance on conflict, got %d", record.Version)
	}
}

func TestLoadScansRecord(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Now().UTC().Truncate(time.Second)

	rows := sqlmock.NewRows([]string{
		"id", "container", "key", "status", "current_stage_index", "payload",
		"attempt", "last_error", "audit", "version", "created_at", "updated_at",
	}).AddRow(
		"exec-1", "docs", "a.pdf", "running", 2, []byte(`{"title":"a.pdf"}`),
		1, "timeout", []byte(`[]`), int64(4), created, created,
	)

	mock.ExpectQuery(regexp.QuoteMeta("FROM executions")).
		WithArgs("exec-1").
		WillReturnRows(rows)

	record, err := store.Load(context.Background(), "exec-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if record.Status != domain.StatusRunning || record.CurrentStageIndex != 2 || record.Version != 4 {
		t.Fatalf("unexpected record: %+v", record)
	}
	if record.Payload["title"] != "a.pdf" {
		t.Fatalf("payload not decoded: %v", record.Payload)
	}
	if record.LastError != "timeout" {
		t.Fatalf("last error not decoded: %q", record.LastError)
	}
}

func TestLoadUnknownExecution(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM executions")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.Load(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrExecutionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestExists(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM executions")).
		WithArgs("docs", "a.pdf").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("exec-1"))

	id, ok, err := store.Exists(context.Background(), domain.DocumentRef{Container: "docs", Key: "a.pdf"})
	if err != nil || !ok || id != "exec-1" {
		t.Fatalf("Exists() = %q, %v, %v", id, ok, err)
	}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM executions")).
		WithArgs("docs", "b.pdf").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, ok, err = store.Exists(context.Background(), domain.DocumentRef{Container: "docs", Key: "b.pdf"})
	if err != nil || ok {
		t.Fatalf("Exists() for missing ref = %v, %v", ok, err)
	}
}
