package catchup

import (
	"errors"
	"fmt"
	"testing"

	"github.com/quartzite-io/quartzite-go/internal/core/domain"
)

func buildSnapshot(schemas, files int) *FileSnapshot {
	snap := NewFileSnapshot()
	snap.SetLastLog(42, 3)
	for i := 0; i < schemas; i++ {
		snap.AddSchema(domain.SchemaEntry{
			Path:        fmt.Sprintf("root.sg1.d%d.s1", i),
			DataType:    2,
			Encoding:    1,
			Compression: 1,
		})
	}
	for i := 0; i < files; i++ {
		snap.AddFile(&domain.FileResource{
			Path:             fmt.Sprintf("sg1/3/%d-%d-0.qzf", i, i),
			MinVersion:       int64(i * 10),
			MaxVersion:       int64(i*10 + 5),
			SourceNode:       "node-2",
			WithModification: i%2 == 1,
		})
	}
	return snap
}

func TestSnapshotRoundTrip(t *testing.T) {
	cases := []struct{ schemas, files int }{
		{0, 0},
		{1, 0},
		{0, 1},
		{1, 1},
		{7, 13},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d_schemas_%d_files", tc.schemas, tc.files), func(t *testing.T) {
			snap := buildSnapshot(tc.schemas, tc.files)
			data, err := snap.Serialize()
			if err != nil {
				t.Fatalf("Serialize: %v", err)
			}

			got := NewFileSnapshot()
			if err := got.Deserialize(data); err != nil {
				t.Fatalf("Deserialize: %v", err)
			}
			if !got.Equal(snap) {
				t.Errorf("round trip not structurally equal: %v vs %v", got, snap)
			}
		})
	}
}

func TestSnapshotFileOrderPreserved(t *testing.T) {
	snap := buildSnapshot(0, 5)
	data, err := snap.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	got := NewFileSnapshot()
	if err := got.Deserialize(data); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	for i, res := range got.Files() {
		if res.Path != snap.Files()[i].Path {
			t.Errorf("file %d = %s, want %s", i, res.Path, snap.Files()[i].Path)
		}
	}
}

func TestSnapshotDeserializeMalformed(t *testing.T) {
	snap := buildSnapshot(2, 2)
	data, err := snap.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	// A count field claiming far more entries than the payload can hold must
	// fail like any truncation, without allocating for the claimed count.
	hugeSchemaCount := []byte{0x40, 0x00, 0x00, 0x00, 0xde, 0xad, 0xbe, 0xef}
	hugeFileCount := append([]byte{0x00, 0x00, 0x00, 0x00}, 0x40, 0x00, 0x00, 0x00)

	cases := map[string][]byte{
		"empty":             {},
		"truncated head":    data[:2],
		"truncated body":    data[:len(data)-3],
		"huge schema count": hugeSchemaCount,
		"huge file count":   hugeFileCount,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			got := NewFileSnapshot()
			err := got.Deserialize(payload)
			if !errors.Is(err, ErrMalformedSnapshot) {
				t.Errorf("err = %v, want ErrMalformedSnapshot", err)
			}
		})
	}
}

func TestSnapshotAddSchemaDeduplicates(t *testing.T) {
	snap := NewFileSnapshot()
	entry := domain.SchemaEntry{Path: "root.sg1.d1.s1", DataType: 2}
	snap.AddSchema(entry)
	snap.AddSchema(entry)
	if len(snap.Schemas()) != 1 {
		t.Errorf("schemas = %d, want 1", len(snap.Schemas()))
	}
}

func TestSnapshotEqualIgnoresSchemaOrder(t *testing.T) {
	a := NewFileSnapshot()
	b := NewFileSnapshot()
	s1 := domain.SchemaEntry{Path: "root.sg1.d1.s1"}
	s2 := domain.SchemaEntry{Path: "root.sg1.d1.s2"}
	a.AddSchema(s1)
	a.AddSchema(s2)
	b.AddSchema(s2)
	b.AddSchema(s1)
	if !a.Equal(b) {
		t.Error("snapshots with same schema set should be equal")
	}
}
