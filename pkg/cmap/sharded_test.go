package cmap

import (
	"fmt"
	"sync"
	"testing"
)

func TestNew(t *testing.T) {
	m := New[string, int]()
	if m == nil {
		t.Fatal("New() returned nil")
	}
	if len(m.shards) != DefaultShardCount {
		t.Errorf("shard count = %d, want %d", len(m.shards), DefaultShardCount)
	}
}

func TestNewWithShards(t *testing.T) {
	tests := []struct {
		input    int
		expected int
	}{
		{0, DefaultShardCount},  // invalid → default
		{-1, DefaultShardCount}, // invalid → default
		{3, DefaultShardCount},  // not power of 2 → default
		{1, 1},
		{4, 4},
		{32, 32},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("shards=%d", tt.input), func(t *testing.T) {
			m := NewWithShards[string, int](tt.input)
			if len(m.shards) != tt.expected {
				t.Errorf("NewWithShards(%d) shard count = %d, want %d",
					tt.input, len(m.shards), tt.expected)
			}
		})
	}
}

func TestSetGetDelete(t *testing.T) {
	m := New[uint32, string]()

	m.Set(7, "pulling")
	m.Set(9, "null")

	val, ok := m.Get(7)
	if !ok || val != "pulling" {
		t.Errorf("Get(7) = (%q, %v), want (pulling, true)", val, ok)
	}

	m.Delete(7)
	if m.Has(7) {
		t.Error("Has(7) = true after Delete")
	}
	if m.Count() != 1 {
		t.Errorf("Count() = %d, want 1", m.Count())
	}
}

func TestUpdate(t *testing.T) {
	m := New[uint32, int]()

	got := m.Update(3, func(v int, exists bool) (int, bool) {
		if exists {
			t.Error("exists = true for absent key")
		}
		return 10, true
	})
	if got != 10 {
		t.Errorf("Update = %d, want 10", got)
	}

	got = m.Update(3, func(v int, exists bool) (int, bool) {
		if !exists || v != 10 {
			t.Errorf("Update saw (%d, %v), want (10, true)", v, exists)
		}
		return v + 1, true
	})
	if got != 11 {
		t.Errorf("Update = %d, want 11", got)
	}
}

func TestUpdateDeclinedWriteLeavesMapUntouched(t *testing.T) {
	m := New[uint32, int]()

	m.Update(9, func(v int, exists bool) (int, bool) {
		return v, false
	})
	if m.Count() != 0 {
		t.Errorf("Count() = %d after declined update on absent key, want 0", m.Count())
	}

	m.Set(9, 5)
	m.Update(9, func(v int, exists bool) (int, bool) {
		return 99, false
	})
	if got, _ := m.Get(9); got != 5 {
		t.Errorf("value = %d after declined update, want 5", got)
	}
}

func TestUpdateConcurrent(t *testing.T) {
	m := New[string, int]()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Update("counter", func(v int, _ bool) (int, bool) { return v + 1, true })
		}()
	}
	wg.Wait()

	val, _ := m.Get("counter")
	if val != 100 {
		t.Errorf("counter = %d, want 100", val)
	}
}

func TestGetOrSet(t *testing.T) {
	m := New[string, int]()

	v, existed := m.GetOrSet("a", 1)
	if existed || v != 1 {
		t.Errorf("GetOrSet first = (%d, %v), want (1, false)", v, existed)
	}

	v, existed = m.GetOrSet("a", 2)
	if !existed || v != 1 {
		t.Errorf("GetOrSet second = (%d, %v), want (1, true)", v, existed)
	}
}

func TestSetIfAbsent(t *testing.T) {
	m := New[string, int]()

	if !m.SetIfAbsent("k", 1) {
		t.Error("SetIfAbsent on absent key = false")
	}
	if m.SetIfAbsent("k", 2) {
		t.Error("SetIfAbsent on present key = true")
	}
	if v, _ := m.Get("k"); v != 1 {
		t.Errorf("value = %d, want 1", v)
	}
}

func TestRangeAndKeys(t *testing.T) {
	m := New[int, int]()
	for i := 0; i < 50; i++ {
		m.Set(i, i*2)
	}

	seen := 0
	m.Range(func(k, v int) bool {
		if v != k*2 {
			t.Errorf("value for %d = %d, want %d", k, v, k*2)
		}
		seen++
		return true
	})
	if seen != 50 {
		t.Errorf("Range visited %d items, want 50", seen)
	}

	if len(m.Keys()) != 50 {
		t.Errorf("Keys() len = %d, want 50", len(m.Keys()))
	}
}

func TestConcurrentAccess(t *testing.T) {
	m := New[int, int]()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				key := base*1000 + i
				m.Set(key, i)
				m.Get(key)
			}
		}(g)
	}
	wg.Wait()

	if m.Count() != 8000 {
		t.Errorf("Count() = %d, want 8000", m.Count())
	}
}
