package jbig2

import (
	"fmt"
	"sync"
	"testing"
)

func TestGlobalsCacheEviction(t *testing.T) {
	gc := NewGlobalsCache(2)
	a, b, c := &Globals{}, &Globals{}, &Globals{}

	gc.Put("a", a)
	gc.Put("b", b)
	if g, ok := gc.Get("a"); !ok || g != a {
		t.Fatalf("Expected to find a")
	}
	// b is now least recent.
	gc.Put("c", c)
	if gc.Len() != 2 {
		t.Errorf("Expected 2 entries, got %d", gc.Len())
	}
	if _, ok := gc.Get("b"); ok {
		t.Errorf("Expected b to be evicted")
	}
	if g, ok := gc.Get("a"); !ok || g != a {
		t.Errorf("Expected a to survive")
	}
	if g, ok := gc.Get("c"); !ok || g != c {
		t.Errorf("Expected c to be cached")
	}
}

func TestGlobalsCacheReplace(t *testing.T) {
	gc := NewGlobalsCache(0)
	first, second := &Globals{}, &Globals{}
	gc.Put("k", first)
	gc.Put("k", second)
	if gc.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", gc.Len())
	}
	if g, _ := gc.Get("k"); g != second {
		t.Errorf("Expected the replaced globals")
	}
}

func TestGlobalsCacheConcurrent(t *testing.T) {
	gc := NewGlobalsCache(4)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%6)
			gc.Put(key, &Globals{})
			gc.Get(key)
		}(i)
	}
	wg.Wait()
	if gc.Len() > 4 {
		t.Errorf("Expected at most 4 entries, got %d", gc.Len())
	}
}

func TestGlobalsNil(t *testing.T) {
	var g *Globals
	if g.Len() != 0 || g.Segment(1) != nil {
		t.Errorf("Expected a nil Globals to be empty")
	}
}
