package blobstore

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
)

func TestLocalStore_PutAndGet(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	ctx := context.Background()
	data := []byte("%PDF-1.4 fake attachment")

	if err := store.Put(ctx, "att-001", data); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(ctx, "att-001")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("Get = %q, want %q", got, data)
	}
}

func TestLocalStore_GetNotFound(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	_, err = store.Get(context.Background(), "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get non-existent: got err=%v, want ErrNotFound", err)
	}
}

func TestLocalStore_DeleteExisting(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	ctx := context.Background()
	if err := store.Put(ctx, "att-del", []byte("to be deleted")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Delete(ctx, "att-del"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	_, err = store.Get(ctx, "att-del")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete: got err=%v, want ErrNotFound", err)
	}
}

func TestLocalStore_DeleteIdempotent(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	if err := store.Delete(context.Background(), "never-existed"); err != nil {
		t.Errorf("Delete non-existent: got err=%v, want nil", err)
	}
}

func TestLocalStore_AutoCreateDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "dir")
	store, err := NewLocalStore(dir)
	if err != nil {
		t.Fatalf("NewLocalStore with nested dir: %v", err)
	}

	ctx := context.Background()
	data := []byte("nested dir test")

	if err := store.Put(ctx, "att-nested", data); err != nil {
		t.Fatalf("Put after auto-create: %v", err)
	}
	got, err := store.Get(ctx, "att-nested")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("Get = %q, want %q", got, data)
	}
}

func TestLocalStore_ConcurrentAccess(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	ctx := context.Background()
	const n = 50
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			key := "att-" + strconv.Itoa(id)
			if err := store.Put(ctx, key, []byte("data-"+strconv.Itoa(id))); err != nil {
				t.Errorf("concurrent Put(%s): %v", key, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			key := "att-" + strconv.Itoa(id)
			expected := "data-" + strconv.Itoa(id)
			got, err := store.Get(ctx, key)
			if err != nil {
				t.Errorf("concurrent Get(%s): %v", key, err)
				return
			}
			if string(got) != expected {
				t.Errorf("concurrent Get(%s) = %q, want %q", key, got, expected)
			}
		}(i)
	}
	wg.Wait()
}
