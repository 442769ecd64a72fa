package memory

import (
	"context"
	"testing"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
)

func newRecord(t *testing.T) *domain.ExecutionRecord {
	t.Helper()
	return domain.NewExecution(domain.DocumentRef{Container: "docs", Key: "a.pdf"}, time.Now().UTC())
}

func TestSaveInsertsAtVersionZero(t *testing.T) {
	store := New()
	ctx := context.Background()
	record := newRecord(t)

	if err := store.Save(ctx, record); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if record.Version != 1 {
		t.Fatalf("expected version bump to 1, got %d", record.Version)
	}

	loaded, err := store.Load(ctx, record.ID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Ref != record.Ref || loaded.Version != 1 {
		t.Fatalf("unexpected loaded record: %+v", loaded)
	}
}

func TestSaveRejectsInsertAtNonZeroVersion(t *testing.T) {
	store := New()
	record := newRecord(t)
	record.Version = 2

	err := store.Save(context.Background(), record)
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestSaveRejectsStaleVersion(t *testing.T) {
	store := New()
	ctx := context.Background()

	record := newRecord(t)
	if err := store.Save(ctx, record); err != nil {
		t.Fatalf("insert error = %v", err)
	}

	first, _ := store.Load(ctx, record.ID)
	second, _ := store.Load(ctx, record.ID)

	first.Status = domain.StatusRunning
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("first writer must win: %v", err)
	}

	second.Status = domain.StatusFailed
	err := store.Save(ctx, second)
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("second writer must lose with conflict, got %v", err)
	}

	loaded, _ := store.Load(ctx, record.ID)
	if loaded.Status != domain.StatusRunning {
		t.Fatalf("stale write must not land, got status %s", loaded.Status)
	}
}

func TestLoadUnknownExecution(t *testing.T) {
	store := New()

	_, err := store.Load(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrExecutionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestExists(t *testing.T) {
	store := New()
	ctx := context.Background()
	record := newRecord(t)

	if _, ok, _ := store.Exists(ctx, record.Ref); ok {
		t.Fatal("record must not exist before insert")
	}
	if err := store.Save(ctx, record); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	id, ok, err := store.Exists(ctx, record.Ref)
	if err != nil || !ok || id != record.ID {
		t.Fatalf("Exists() = %q, %v, %v", id, ok, err)
	}
}

func TestLoadReturnsIsolatedCopy(t *testing.T) {
	store := New()
	ctx := context.Background()

	record := newRecord(t)
	record.Payload["title"] = "a.pdf"
	if err := store.Save(ctx, record); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, _ := store.Load(ctx, record.ID)
	loaded.Payload["title"] = "mutated"

	again, _ := store.Load(ctx, record.ID)
	if again.Payload["title"] != "a.pdf" {
		t.Fatalf("stored payload must not alias loaded copies, got %v", again.Payload["title"])
	}
}
