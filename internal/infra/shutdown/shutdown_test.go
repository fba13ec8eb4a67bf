package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestHooksRunInReverseOrder(t *testing.T) {
	h := NewHandler(time.Second)

	var order []string
	h.OnShutdown(func(context.Context) error {
		order = append(order, "first")
		return nil
	})
	h.OnShutdown(func(context.Context) error {
		order = append(order, "second")
		return nil
	})

	h.Trigger()
	if err := h.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Errorf("hook order = %v, want [second first]", order)
	}

	select {
	case <-h.Done():
	default:
		t.Error("Done channel not closed after Wait")
	}
}

func TestFirstHookErrorKept(t *testing.T) {
	h := NewHandler(time.Second)

	errA := errors.New("a failed")
	ran := false
	h.OnShutdown(func(context.Context) error {
		ran = true
		return nil
	})
	h.OnShutdown(func(context.Context) error { return errA })

	h.Trigger()
	if err := h.Wait(); !errors.Is(err, errA) {
		t.Errorf("Wait = %v, want %v", err, errA)
	}
	if !ran {
		t.Error("later hook was skipped after an error")
	}
}

func TestTriggerIsIdempotent(t *testing.T) {
	h := NewHandler(time.Second)
	h.Trigger()
	h.Trigger()
	if err := h.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}
