package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bosocmputer/statement_ledger/internal/batch"
	"github.com/bosocmputer/statement_ledger/internal/processor"
)

func newBatch(id string, updated time.Time) *batch.Batch {
	return &batch.Batch{
		ID:       id,
		Filename: id + ".txt",
		State:    batch.StateIdle,
		Chunks: []*processor.Chunk{
			{Index: 1, Kind: processor.KindText, Data: "a", Status: processor.StatusPending, Included: true},
		},
		CreatedAt: updated,
		UpdatedAt: updated,
	}
}

func TestMemoryStoreCopiesOnSaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(DefaultTTL)
	b := newBatch("b1", time.Now())
	if err := s.SaveBatch(ctx, b); err != nil {
		t.Fatal(err)
	}
	b.Chunks[0].Status = processor.StatusFailed

	got, err := s.GetBatch(ctx, "b1")
	if err != nil {
		t.Fatalf("GetBatch() error = %v", err)
	}
	if got.Chunks[0].Status != processor.StatusPending {
		t.Error("store kept a reference to the caller's batch")
	}
	got.Filename = "changed"
	again, _ := s.GetBatch(ctx, "b1")
	if again.Filename != "b1.txt" {
		t.Error("GetBatch returned shared state")
	}
}

func TestMemoryStoreListAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = s.SaveBatch(ctx, newBatch("old", base))
	_ = s.SaveBatch(ctx, newBatch("new", base.Add(time.Hour)))

	list, err := s.ListBatches(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "new" || list[1].ID != "old" {
		t.Fatalf("ListBatches() = %+v", list)
	}
	if list[0].Chunks != 1 || list[0].Merged {
		t.Errorf("summary = %+v", list[0])
	}

	if err := s.DeleteBatch(ctx, "old"); err != nil {
		t.Fatalf("DeleteBatch() error = %v", err)
	}
	if err := s.DeleteBatch(ctx, "old"); !errors.Is(err, batch.ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
	if _, err := s.GetBatch(ctx, "old"); !errors.Is(err, batch.ErrNotFound) {
		t.Errorf("GetBatch() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(time.Hour)
	s.now = func() time.Time { return now }

	_ = s.SaveBatch(ctx, newBatch("b1", now))
	now = now.Add(30 * time.Minute)
	_ = s.SaveBatch(ctx, newBatch("b2", now))

	now = now.Add(45 * time.Minute)
	if _, err := s.GetBatch(ctx, "b1"); !errors.Is(err, batch.ErrNotFound) {
		t.Errorf("expired GetBatch() error = %v", err)
	}
	if _, err := s.GetBatch(ctx, "b2"); err != nil {
		t.Errorf("live GetBatch() error = %v", err)
	}
	if list, _ := s.ListBatches(ctx); len(list) != 1 || list[0].ID != "b2" {
		t.Errorf("ListBatches() = %+v", list)
	}
	if n := s.Purge(); n != 1 {
		t.Errorf("Purge() = %d, want 1", n)
	}
	if n := s.Purge(); n != 0 {
		t.Errorf("second Purge() = %d, want 0", n)
	}
}
