package voice

import (
	"sync"
	"testing"
)

func TestFirstAssignmentWins(t *testing.T) {
	c := NewCache("alloy", nil)
	if got := c.Assign("narrator", "onyx"); got != "onyx" {
		t.Fatalf("first assign = %q", got)
	}
	if got := c.Assign("narrator", "nova"); got != "onyx" {
		t.Errorf("second assign should keep onyx, got %q", got)
	}
}

func TestResolveRotatesPool(t *testing.T) {
	c := NewCache("alloy", []string{"echo", "nova"})
	a := c.Resolve("a")
	b := c.Resolve("b")
	again := c.Resolve("a")
	if a != "echo" || b != "nova" || again != "echo" {
		t.Errorf("got a=%q b=%q again=%q", a, b, again)
	}
	if c.Resolve("c") != "echo" {
		t.Error("expected pool to wrap around")
	}
}

func TestResolveFallsBackWithoutPool(t *testing.T) {
	c := NewCache("alloy", nil)
	if v := c.Resolve("x"); v != "alloy" {
		t.Errorf("expected fallback voice, got %q", v)
	}
}

func TestConcurrentResolveIsStable(t *testing.T) {
	c := NewCache("alloy", []string{"v1", "v2", "v3"})
	var wg sync.WaitGroup
	results := make([]string, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Resolve("hero")
		}(i)
	}
	wg.Wait()
	for i, r := range results {
		if r != results[0] {
			t.Fatalf("result %d = %q, want %q", i, r, results[0])
		}
	}
	if len(c.Snapshot()) != 1 {
		t.Errorf("expected a single assignment, got %v", c.Snapshot())
	}
	if _, ok := c.Lookup("villain"); ok {
		t.Error("lookup must not assign")
	}
}
