package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/tanq16/pullq/internal/types"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "queue.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_InsertAssignsIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, created, err := s.Insert(ctx, "http://x/a.bin")
	if err != nil || !created {
		t.Fatalf("Insert() = %d, %v, %v", id1, created, err)
	}
	id2, created, err := s.Insert(ctx, "http://x/b.bin")
	if err != nil || !created {
		t.Fatalf("Insert() = %d, %v, %v", id2, created, err)
	}
	if id1 == id2 {
		t.Errorf("ids not unique: %d == %d", id1, id2)
	}

	item, err := s.Get(ctx, id1)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if item.URL != "http://x/a.bin" || item.Status != types.StatusPending {
		t.Errorf("Get() = %+v", item)
	}
	if item.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestSQLite_InsertDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _, err := s.Insert(ctx, "http://x/a.bin")
	if err != nil {
		t.Fatal(err)
	}
	item, _ := s.Get(ctx, id)
	item.Status = types.StatusFailed
	item.Attempts = 2
	if err := s.UpdateStatus(ctx, *item); err != nil {
		t.Fatal(err)
	}

	dupID, created, err := s.Insert(ctx, "http://x/a.bin")
	if err != nil {
		t.Fatalf("Insert() duplicate error = %v", err)
	}
	if created {
		t.Error("Insert() duplicate reported created")
	}
	if dupID != id {
		t.Errorf("duplicate id = %d, want %d", dupID, id)
	}

	all, err := s.ListAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("ListAll() returned %d items, want 1", len(all))
	}
	if all[0].Status != types.StatusFailed || all[0].Attempts != 2 {
		t.Errorf("duplicate insert modified row: %+v", all[0])
	}
}

func TestSQLite_EligibleSelection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	statuses := map[string]types.Status{
		"http://x/pending":   types.StatusPending,
		"http://x/failed":    types.StatusFailed,
		"http://x/completed": types.StatusCompleted,
		"http://x/ignored":   types.StatusIgnored,
	}
	for url, status := range statuses {
		id, _, err := s.Insert(ctx, url)
		if err != nil {
			t.Fatal(err)
		}
		if status == types.StatusPending {
			continue
		}
		if err := s.UpdateStatus(ctx, types.WorkItem{ID: id, URL: url, Status: status}); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.CountEligible(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("CountEligible() = %d, want 2", n)
	}

	items, err := s.ListEligible(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("ListEligible() returned %d items, want 2", len(items))
	}
	for _, item := range items {
		if !item.Status.Eligible() {
			t.Errorf("ListEligible() returned %s item %s", item.Status, item.URL)
		}
	}
}

func TestSQLite_UpdateStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _, _ := s.Insert(ctx, "http://x/a.bin")
	update := types.WorkItem{
		ID:         id,
		Status:     types.StatusCompleted,
		Attempts:   1,
		OutputPath: "/tmp/a.bin",
	}
	if err := s.UpdateStatus(ctx, update); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	// idempotent
	if err := s.UpdateStatus(ctx, update); err != nil {
		t.Fatalf("UpdateStatus() second call error = %v", err)
	}

	item, _ := s.Get(ctx, id)
	if item.Status != types.StatusCompleted || item.OutputPath != "/tmp/a.bin" || item.Attempts != 1 {
		t.Errorf("Get() after update = %+v", item)
	}
	if item.LastError != "" {
		t.Errorf("LastError = %q, want empty", item.LastError)
	}
}

func TestSQLite_UpdateStatusErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.UpdateStatus(ctx, types.WorkItem{ID: 42, Status: types.StatusCompleted})
	if !errors.Is(err, types.ErrItemNotFound) {
		t.Errorf("UpdateStatus() unknown id error = %v, want ErrItemNotFound", err)
	}

	id, _, _ := s.Insert(ctx, "http://x/a.bin")
	if err := s.UpdateStatus(ctx, types.WorkItem{ID: id, Status: types.StatusInProgress}); err == nil {
		t.Error("UpdateStatus() accepted in-progress status")
	}
}

func TestSQLite_GetNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get(context.Background(), 999); !errors.Is(err, types.ErrItemNotFound) {
		t.Errorf("Get() error = %v, want ErrItemNotFound", err)
	}
}

func TestSQLite_ConcurrentWrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []int64
	for i := range 20 {
		id, _, err := s.Insert(ctx, "http://x/file"+string(rune('a'+i)))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(ids))
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			errCh <- s.UpdateStatus(ctx, types.WorkItem{ID: id, Status: types.StatusCompleted, Attempts: 1})
		}(id)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("concurrent UpdateStatus() error = %v", err)
		}
	}

	n, err := s.CountEligible(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("CountEligible() = %d, want 0", n)
	}
}
