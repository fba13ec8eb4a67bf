package catchup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/quartzite-io/quartzite-go/internal/core/domain"
)

// movingEngine moves loaded files into its data dir, like the real engine.
type movingEngine struct {
	dataDir string
	loadErr error
	removed []string
}

func (e *movingEngine) SetPartitionVersionFloor(string, int64, int64) error { return nil }

func (e *movingEngine) PartitionVersionFloor(string, int64) (int64, error) { return -1, nil }

func (e *movingEngine) FileExists(*domain.FileResource, string, int64) (bool, error) {
	return false, nil
}

func (e *movingEngine) LoadFile(res *domain.FileResource, localPath string) (string, error) {
	if e.loadErr != nil {
		return "", e.loadErr
	}
	dest := filepath.Join(e.dataDir, filepath.Base(localPath))
	if err := os.Rename(localPath, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func (e *movingEngine) RemoveSubsumedFiles(res *domain.FileResource) error {
	e.removed = append(e.removed, res.Path)
	return nil
}

func stageFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("stage %s: %v", name, err)
	}
	return path
}

func TestIntegrateMovesModificationFile(t *testing.T) {
	staging := t.TempDir()
	engine := &movingEngine{dataDir: t.TempDir()}
	g := NewIntegrator(engine, nil)

	local := stageFile(t, staging, "10-10-0.qzf", "data")
	stageFile(t, staging, "10-10-0.qzf"+domain.ModFileSuffix, "deletions")

	res := &domain.FileResource{
		Path: "sg1/3/10-10-0.qzf", MinVersion: 10, MaxVersion: 10,
		SourceNode: "node-2", WithModification: true,
	}
	if err := g.Integrate(context.Background(), res, local); err != nil {
		t.Fatalf("Integrate: %v", err)
	}

	dest := filepath.Join(engine.dataDir, "10-10-0.qzf")
	if _, err := os.Stat(dest); err != nil {
		t.Errorf("data file not in data dir: %v", err)
	}
	mod, err := os.ReadFile(dest + domain.ModFileSuffix)
	if err != nil {
		t.Fatalf("mod file not beside data file: %v", err)
	}
	if string(mod) != "deletions" {
		t.Errorf("mod content = %q", mod)
	}
	if len(engine.removed) != 1 {
		t.Errorf("subsumed removal requested %d times, want 1", len(engine.removed))
	}
}

func TestIntegrateReplacesStaleModificationFile(t *testing.T) {
	staging := t.TempDir()
	engine := &movingEngine{dataDir: t.TempDir()}
	g := NewIntegrator(engine, nil)

	local := stageFile(t, staging, "10-10-0.qzf", "data")
	stageFile(t, staging, "10-10-0.qzf"+domain.ModFileSuffix, "new deletions")
	stageFile(t, engine.dataDir, "10-10-0.qzf"+domain.ModFileSuffix, "stale")

	res := &domain.FileResource{
		Path: "sg1/3/10-10-0.qzf", MinVersion: 10, MaxVersion: 10,
		SourceNode: "node-2", WithModification: true,
	}
	if err := g.Integrate(context.Background(), res, local); err != nil {
		t.Fatalf("Integrate: %v", err)
	}

	mod, err := os.ReadFile(filepath.Join(engine.dataDir, "10-10-0.qzf"+domain.ModFileSuffix))
	if err != nil {
		t.Fatalf("read mod file: %v", err)
	}
	if string(mod) != "new deletions" {
		t.Errorf("mod content = %q, want the pulled file", mod)
	}
}

func TestIntegrateLoadFailure(t *testing.T) {
	staging := t.TempDir()
	engine := &movingEngine{dataDir: t.TempDir(), loadErr: errors.New("rejected")}
	g := NewIntegrator(engine, nil)

	local := stageFile(t, staging, "10-10-0.qzf", "data")
	res := &domain.FileResource{
		Path: "sg1/3/10-10-0.qzf", MinVersion: 10, MaxVersion: 10, SourceNode: "node-2",
	}
	err := g.Integrate(context.Background(), res, local)
	if err == nil {
		t.Fatal("Integrate must report the load failure")
	}
	if _, statErr := os.Stat(local); statErr != nil {
		t.Error("rejected file must stay in the staging area for a later retry")
	}
}
