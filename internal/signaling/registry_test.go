package signaling

import (
	"fmt"
	"sync"
	"testing"
)

func TestRegistry_Idempotent(t *testing.T) {
	r := NewRegistry(4)
	r.MarkProcessed("c1")
	r.MarkProcessed("c1")
	r.MarkCancelled("c2")
	r.MarkCancelled("c2")

	if !r.IsProcessed("c1") || r.IsProcessed("c2") {
		t.Fatalf("unexpected processed set")
	}
	if !r.IsCancelled("c2") || r.IsCancelled("c1") {
		t.Fatalf("unexpected cancelled set")
	}
	if len(r.processed.order) != 1 {
		t.Fatalf("duplicate marks must not grow the set, got %d", len(r.processed.order))
	}
}

func TestRegistry_TrimsOldestFirst(t *testing.T) {
	r := NewRegistry(3)
	for i := 1; i <= 5; i++ {
		r.MarkProcessed(fmt.Sprintf("c%d", i))
	}
	for _, id := range []string{"c1", "c2"} {
		if r.IsProcessed(id) {
			t.Fatalf("%s should have been evicted", id)
		}
	}
	for _, id := range []string{"c3", "c4", "c5"} {
		if !r.IsProcessed(id) {
			t.Fatalf("%s should be retained", id)
		}
	}
}

func TestRegistry_Reset(t *testing.T) {
	r := NewRegistry(0)
	r.MarkBusy(true)
	r.MarkProcessed("c1")
	r.MarkCancelled("c1")
	r.Reset()
	if r.IsBusy() || r.IsProcessed("c1") || r.IsCancelled("c1") {
		t.Fatalf("reset must clear all state")
	}
}

func TestRegistry_ConcurrentMarks(t *testing.T) {
	r := NewRegistry(1000)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i%10)
			r.MarkProcessed(id)
			r.MarkCancelled(id)
			r.MarkBusy(i%2 == 0)
			_ = r.IsProcessed(id)
		}(i)
	}
	wg.Wait()
	if len(r.processed.order) != 10 || len(r.cancelled.order) != 10 {
		t.Fatalf("expected 10 unique ids, got %d/%d", len(r.processed.order), len(r.cancelled.order))
	}
}
