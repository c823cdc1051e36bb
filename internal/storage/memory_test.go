package storage

import (
	"context"
	"testing"
)

func TestMemoryStore_SetGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.Get(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.Set(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(v) != "v1" {
		t.Fatalf("expected v1, got %s", v)
	}

	// возвращается копия: мутация результата не трогает хранилище
	v[0] = 'X'
	v2, _ := s.Get(ctx, "k")
	if string(v2) != "v1" {
		t.Fatalf("stored value corrupted: %s", v2)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "k"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	// повторное удаление не ошибка
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestMemoryStore_ListKeysWithPrefix(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, k := range []string{"outbox:000000000002", "cache:products", "outbox:000000000001", "outbox:000000000010"} {
		if err := s.Set(ctx, k, []byte("x")); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
	keys, err := s.ListKeysWithPrefix(ctx, "outbox:")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"outbox:000000000001", "outbox:000000000002", "outbox:000000000010"}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %v", len(want), keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("order mismatch: %v", keys)
		}
	}
}
