package metadata

import (
	"errors"
	"testing"

	"github.com/quartzite-io/quartzite-go/internal/core/domain"
)

func TestRegisterSchemaIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	s := domain.SchemaEntry{Path: "root.sg1.d1.s1", DataType: 2, Encoding: 4, Compression: 1}

	if err := r.RegisterSchema(s); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.RegisterSchema(s); err != nil {
		t.Fatalf("re-register identical: %v", err)
	}
	if r.Count() != 1 {
		t.Errorf("Count = %d, want 1", r.Count())
	}
}

func TestRegisterSchemaConflict(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.RegisterSchema(domain.SchemaEntry{Path: "root.sg1.d1.s1", DataType: 2}); err != nil {
		t.Fatalf("register: %v", err)
	}

	err := r.RegisterSchema(domain.SchemaEntry{Path: "root.sg1.d1.s1", DataType: 3})
	if !errors.Is(err, ErrSchemaConflict) {
		t.Fatalf("err = %v, want ErrSchemaConflict", err)
	}
}

func TestGet(t *testing.T) {
	r := NewRegistry(nil)
	s := domain.SchemaEntry{Path: "root.sg1.d1.s2", DataType: 1}
	if err := r.RegisterSchema(s); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, ok := r.Get("root.sg1.d1.s2")
	if !ok || got != s {
		t.Errorf("Get = (%+v, %v), want (%+v, true)", got, ok, s)
	}
	if _, ok := r.Get("root.sg1.d1.s9"); ok {
		t.Error("Get of unregistered path = true")
	}
}
