package blob

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_PutCreateThenGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	v1, err := s.Put(ctx, "a/b.json", []byte(`{"x":1}`), "")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if v1 == "" {
		t.Fatal("Put returned empty version")
	}

	obj, err := s.Get(ctx, "a/b.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(obj.Data) != `{"x":1}` || obj.Version != v1 {
		t.Errorf("Get = (%s, %s), want ({\"x\":1}, %s)", obj.Data, obj.Version, v1)
	}
}

func TestMemoryStore_CreateOnlyConflictsWhenPresent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.Put(ctx, "k", []byte("one"), ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	_, err := s.Put(ctx, "k", []byte("two"), "")
	if !errors.Is(err, ErrVersionConflict) {
		t.Errorf("create-only Put over existing key: err = %v, want ErrVersionConflict", err)
	}
}

func TestMemoryStore_ConditionalReplace(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	v1, _ := s.Put(ctx, "k", []byte("one"), "")
	v2, err := s.Put(ctx, "k", []byte("two"), v1)
	if err != nil {
		t.Fatalf("conditional Put: %v", err)
	}
	if v2 == v1 {
		t.Error("version did not advance on replace")
	}

	// A writer still holding v1 must now lose.
	_, err = s.Put(ctx, "k", []byte("stale"), v1)
	if !errors.Is(err, ErrVersionConflict) {
		t.Errorf("stale Put: err = %v, want ErrVersionConflict", err)
	}

	obj, _ := s.Get(ctx, "k")
	if string(obj.Data) != "two" {
		t.Errorf("stored data = %s, want two", obj.Data)
	}
}

func TestMemoryStore_ConditionalPutMissingKey(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Put(context.Background(), "gone", []byte("x"), "v1")
	if !errors.Is(err, ErrVersionConflict) {
		t.Errorf("err = %v, want ErrVersionConflict", err)
	}
}

func TestMemoryStore_List(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, k := range []string{"users/bob/embeddings.json", "users/alice/embeddings.json", "docs/report.json"} {
		if _, err := s.Put(ctx, k, []byte("{}"), ""); err != nil {
			t.Fatalf("Put %s: %v", k, err)
		}
	}

	keys, err := s.List(ctx, "users/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"users/alice/embeddings.json", "users/bob/embeddings.json"}
	if len(keys) != len(want) {
		t.Fatalf("List returned %d keys, want %d", len(keys), len(want))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %s, want %s", i, keys[i], want[i])
		}
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Put(ctx, "k", []byte("abc"), "")

	obj, _ := s.Get(ctx, "k")
	obj.Data[0] = 'X'

	again, _ := s.Get(ctx, "k")
	if string(again.Data) != "abc" {
		t.Error("mutating a returned object affected the stored copy")
	}
}
