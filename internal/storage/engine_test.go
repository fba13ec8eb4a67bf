package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/quartzite-io/quartzite-go/internal/core/domain"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestVersionFloorMonotonic(t *testing.T) {
	e := newTestEngine(t)

	if err := e.SetPartitionVersionFloor("sg1", 3, 10); err != nil {
		t.Fatalf("set floor: %v", err)
	}
	if err := e.SetPartitionVersionFloor("sg1", 3, 12); err != nil {
		t.Fatalf("raise floor: %v", err)
	}
	// Lower floor must not win.
	if err := e.SetPartitionVersionFloor("sg1", 3, 5); err != nil {
		t.Fatalf("lower floor: %v", err)
	}

	floor, err := e.PartitionVersionFloor("sg1", 3)
	if err != nil {
		t.Fatalf("get floor: %v", err)
	}
	if floor != 12 {
		t.Errorf("floor = %d, want 12", floor)
	}
}

func TestVersionFloorUnsetIsNegative(t *testing.T) {
	e := newTestEngine(t)
	floor, err := e.PartitionVersionFloor("sg9", 0)
	if err != nil {
		t.Fatalf("get floor: %v", err)
	}
	if floor != -1 {
		t.Errorf("floor = %d, want -1", floor)
	}
}

func TestLoadFileAndExists(t *testing.T) {
	e := newTestEngine(t)

	res := &domain.FileResource{
		Path:       "sg1/3/f10.qzf",
		MinVersion: 10,
		MaxVersion: 10,
		SourceNode: "node-2",
	}
	temp := writeTempFile(t, "f10.qzf", "payload")

	dest, err := e.LoadFile(res, temp)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Fatalf("dest file missing: %v", err)
	}
	if _, err := os.Stat(temp); !os.IsNotExist(err) {
		t.Errorf("temp file still present after load")
	}

	ok, err := e.FileExists(res, "sg1", 3)
	if err != nil {
		t.Fatalf("FileExists: %v", err)
	}
	if !ok {
		t.Error("FileExists = false for loaded lineage")
	}
}

func TestFileExistsLineageContainment(t *testing.T) {
	e := newTestEngine(t)

	// Resident compacted file covering versions 8..12.
	wide := &domain.FileResource{Path: "sg1/3/merged.qzf", MinVersion: 8, MaxVersion: 12}
	if _, err := e.LoadFile(wide, writeTempFile(t, "merged.qzf", "x")); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	contained := &domain.FileResource{Path: "sg1/3/f10.qzf", MinVersion: 10, MaxVersion: 10}
	ok, err := e.FileExists(contained, "sg1", 3)
	if err != nil || !ok {
		t.Errorf("contained lineage: (%v, %v), want (true, nil)", ok, err)
	}

	wider := &domain.FileResource{Path: "sg1/3/f14.qzf", MinVersion: 11, MaxVersion: 14}
	ok, err = e.FileExists(wider, "sg1", 3)
	if err != nil || ok {
		t.Errorf("wider lineage: (%v, %v), want (false, nil)", ok, err)
	}

	otherPartition := &domain.FileResource{Path: "sg1/4/f10.qzf", MinVersion: 10, MaxVersion: 10}
	ok, err = e.FileExists(otherPartition, "sg1", 4)
	if err != nil || ok {
		t.Errorf("other partition: (%v, %v), want (false, nil)", ok, err)
	}
}

func TestRemoveSubsumedFiles(t *testing.T) {
	e := newTestEngine(t)

	old1 := &domain.FileResource{Path: "sg1/3/f10.qzf", MinVersion: 10, MaxVersion: 10}
	old2 := &domain.FileResource{Path: "sg1/3/f11.qzf", MinVersion: 11, MaxVersion: 11}
	outside := &domain.FileResource{Path: "sg1/3/f14.qzf", MinVersion: 14, MaxVersion: 14}

	var oldPaths []string
	for _, r := range []*domain.FileResource{old1, old2, outside} {
		_, _, name, _ := r.SplitPath()
		dest, err := e.LoadFile(r, writeTempFile(t, name, "x"))
		if err != nil {
			t.Fatalf("LoadFile %s: %v", name, err)
		}
		oldPaths = append(oldPaths, dest)
	}

	merged := &domain.FileResource{Path: "sg1/3/merged.qzf", MinVersion: 10, MaxVersion: 12}
	if _, err := e.LoadFile(merged, writeTempFile(t, "merged.qzf", "m")); err != nil {
		t.Fatalf("LoadFile merged: %v", err)
	}
	if err := e.RemoveSubsumedFiles(merged); err != nil {
		t.Fatalf("RemoveSubsumedFiles: %v", err)
	}

	names, err := e.ListFiles("sg1", 3)
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	want := map[string]bool{"merged.qzf": true, "f14.qzf": true}
	if len(names) != 2 {
		t.Fatalf("resident files = %v, want merged.qzf and f14.qzf", names)
	}
	for _, n := range names {
		if !want[n] {
			t.Errorf("unexpected resident file %s", n)
		}
	}

	// Subsumed files are gone from disk, the outsider is kept.
	if _, err := os.Stat(oldPaths[0]); !os.IsNotExist(err) {
		t.Error("f10.qzf still on disk")
	}
	if _, err := os.Stat(oldPaths[2]); err != nil {
		t.Error("f14.qzf removed from disk")
	}
}

func TestClosedEngine(t *testing.T) {
	e := newTestEngine(t)
	e.Close()

	if err := e.SetPartitionVersionFloor("sg1", 0, 1); err != ErrClosed {
		t.Errorf("SetPartitionVersionFloor on closed = %v, want ErrClosed", err)
	}
}
