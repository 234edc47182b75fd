package storage

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryBlobStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryBlobStore()

	if _, err := s.Get(ctx, "token"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on empty store err=%v want ErrNotFound", err)
	}

	payload := []byte("abc")
	if err := s.Set(ctx, "token", payload); err != nil {
		t.Fatalf("Set: %v", err)
	}
	payload[0] = 'x'

	got, err := s.Get(ctx, "token")
	if err != nil || string(got) != "abc" {
		t.Fatalf("Get=%q,%v want abc (stored copy must be isolated)", got, err)
	}

	if err := s.Remove(ctx, "token"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := s.Get(ctx, "token"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after Remove err=%v want ErrNotFound", err)
	}
	if err := s.Remove(ctx, "token"); err != nil {
		t.Fatalf("Remove of missing key should be a no-op, got %v", err)
	}
}

func TestMemoryStorageCount(t *testing.T) {
	s := NewMemoryStorage[string, int]()
	s.Set("a", 1)
	s.Set("b", 2)
	s.Set("a", 3)
	if s.Count() != 2 {
		t.Fatalf("Count=%d want 2", s.Count())
	}
	if !s.Delete("a") || s.Delete("a") {
		t.Fatal("Delete should report existence")
	}
}
