package slot

import (
	"sync"
	"testing"
)

func TestStatusDefaultsToNull(t *testing.T) {
	s := NewStatusStore()
	if got := s.Get(42); got != StatusNull {
		t.Errorf("Get(42) = %v, want Null", got)
	}
}

func TestPullingLifecycle(t *testing.T) {
	s := NewStatusStore()

	s.SetPulling(7)
	if got := s.Get(7); got != StatusPulling {
		t.Fatalf("after SetPulling: %v", got)
	}

	s.SetPullingWritable(7)
	if got := s.Get(7); got != StatusPullingWritable {
		t.Fatalf("after SetPullingWritable: %v", got)
	}

	s.Clear(7)
	if got := s.Get(7); got != StatusNull {
		t.Fatalf("after Clear: %v", got)
	}
}

func TestSetPullingWritableOnlyFromPulling(t *testing.T) {
	s := NewStatusStore()

	// From Null: no-op.
	s.SetPullingWritable(1)
	if got := s.Get(1); got != StatusNull {
		t.Errorf("from Null: %v, want Null", got)
	}

	// Repeated calls are idempotent.
	s.SetPulling(2)
	s.SetPullingWritable(2)
	s.SetPullingWritable(2)
	if got := s.Get(2); got != StatusPullingWritable {
		t.Errorf("after repeated calls: %v, want PullingWritable", got)
	}
}

func TestSetPullingWritableLeavesAbsentSlotAbsent(t *testing.T) {
	s := NewStatusStore()

	s.SetPullingWritable(5)
	if got := s.statuses.Count(); got != 0 {
		t.Errorf("entries = %d after no-op transition on absent slot, want 0", got)
	}
	if pulling, writable := s.Counts(); pulling != 0 || writable != 0 {
		t.Errorf("Counts = (%d, %d), want (0, 0)", pulling, writable)
	}
}

func TestClearFromAnyState(t *testing.T) {
	s := NewStatusStore()

	s.Clear(1) // Null → Null
	if got := s.Get(1); got != StatusNull {
		t.Errorf("clear from Null: %v", got)
	}

	s.SetPulling(2)
	s.Clear(2)
	if got := s.Get(2); got != StatusNull {
		t.Errorf("clear from Pulling: %v", got)
	}
}

func TestSlotsAreIndependent(t *testing.T) {
	s := NewStatusStore()

	s.SetPulling(1)
	s.SetPulling(2)
	s.SetPullingWritable(1)

	if got := s.Get(1); got != StatusPullingWritable {
		t.Errorf("slot 1 = %v", got)
	}
	if got := s.Get(2); got != StatusPulling {
		t.Errorf("slot 2 = %v", got)
	}
}

func TestCounts(t *testing.T) {
	s := NewStatusStore()
	s.SetPulling(1)
	s.SetPulling(2)
	s.SetPulling(3)
	s.SetPullingWritable(3)

	pulling, writable := s.Counts()
	if pulling != 2 || writable != 1 {
		t.Errorf("Counts = (%d, %d), want (2, 1)", pulling, writable)
	}
}

func TestConcurrentTransitions(t *testing.T) {
	s := NewStatusStore()
	s.SetPulling(9)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.SetPullingWritable(9)
		}()
	}
	wg.Wait()

	if got := s.Get(9); got != StatusPullingWritable {
		t.Errorf("after concurrent transitions: %v", got)
	}
}

func TestRouterDeterministic(t *testing.T) {
	r := NewRouter(0)
	if r.SlotCount() != DefaultSlotCount {
		t.Fatalf("SlotCount = %d", r.SlotCount())
	}

	a := r.SlotOf("sg1", 3)
	b := r.SlotOf("sg1", 3)
	if a != b {
		t.Errorf("SlotOf not deterministic: %d vs %d", a, b)
	}
	if a >= DefaultSlotCount {
		t.Errorf("slot %d out of range", a)
	}

	if r.SlotOf("sg1", 3) == r.SlotOf("sg1", 4) && r.SlotOf("sg1", 3) == r.SlotOf("sg2", 3) {
		t.Error("distinct inputs all mapped to the same slot")
	}
}
