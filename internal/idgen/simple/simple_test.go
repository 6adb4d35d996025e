package simple

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/avstrong/slotreserve/internal/idgen"
)

func TestGenerator_Sequence(t *testing.T) {
	g := New()

	want := []string{"PS-000001", "PS-000002", "PS-000003"}
	for _, w := range want {
		id, err := g.GetID(context.Background())
		if err != nil {
			t.Fatalf("GetID: %v", err)
		}

		if id != w {
			t.Fatalf("got %q, want %q", id, w)
		}
	}
}

func TestGenerator_Base36(t *testing.T) {
	id, err := NewFrom(35).GetID(context.Background())
	if err != nil {
		t.Fatalf("GetID: %v", err)
	}

	if id != "PS-000010" {
		t.Fatalf("got %q", id)
	}
}

func TestGenerator_Observe(t *testing.T) {
	g := New()

	g.Observe("PS-00000Z")
	g.Observe("PS-000003")
	g.Observe("not-an-id")

	id, err := g.GetID(context.Background())
	if err != nil || id != "PS-000010" {
		t.Fatalf("got %q, %v", id, err)
	}
}

func TestGenerator_Exhausted(t *testing.T) {
	g := NewFrom(space - 2)

	id, err := g.GetID(context.Background())
	if err != nil || id != "PS-ZZZZZZ" {
		t.Fatalf("got %q, %v", id, err)
	}

	if _, err := g.GetID(context.Background()); !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}

func TestGenerator_Concurrent(t *testing.T) {
	g := New()

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		seen = make(map[string]struct{})
	)

	for i := 0; i < 50; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for j := 0; j < 20; j++ {
				id, err := g.GetID(context.Background())
				if err != nil {
					t.Errorf("GetID: %v", err)

					return
				}

				if !idgen.Valid(id) {
					t.Errorf("malformed %q", id)
				}

				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	if len(seen) != 1000 {
		t.Fatalf("expected 1000 distinct ids, got %d", len(seen))
	}
}
