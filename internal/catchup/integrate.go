package catchup

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/quartzite-io/quartzite-go/internal/core/domain"
	"github.com/quartzite-io/quartzite-go/internal/telemetry/logger"
)

// StorageEngine is the local storage collaborator. Load and overlap removal
// for one storage group are serialized by the engine itself.
type StorageEngine interface {
	SetPartitionVersionFloor(storageGroup string, partition, version int64) error
	PartitionVersionFloor(storageGroup string, partition int64) (int64, error)
	FileExists(res *domain.FileResource, storageGroup string, partition int64) (bool, error)
	LoadFile(res *domain.FileResource, localPath string) (string, error)
	RemoveSubsumedFiles(res *domain.FileResource) error
}

// Integrator commits a fully downloaded file to the storage engine and
// cleans up what the new file makes redundant.
type Integrator struct {
	engine StorageEngine
	logger *slog.Logger
}

// NewIntegrator creates an integrator over the given engine.
func NewIntegrator(engine StorageEngine, log *slog.Logger) *Integrator {
	if log == nil {
		log = slog.Default()
	}
	return &Integrator{engine: engine, logger: log}
}

// Integrate loads the file at localPath as a resident file, removes local
// files its lineage fully subsumes and moves the pulled modification file
// into place. The modification file moves only after the data file is
// durably loaded, so deletions are never visible without their data.
func (g *Integrator) Integrate(ctx context.Context, res *domain.FileResource, localPath string) error {
	dest, err := g.engine.LoadFile(res, localPath)
	if err != nil {
		return fmt.Errorf("catchup: load %s: %w", res.Path, err)
	}

	if err := g.engine.RemoveSubsumedFiles(res); err != nil {
		return fmt.Errorf("catchup: remove subsumed by %s: %w", res.Path, err)
	}

	if res.WithModification {
		modSrc := localPath + domain.ModFileSuffix
		modDest := dest + domain.ModFileSuffix
		if err := os.Remove(modDest); err != nil && !os.IsNotExist(err) {
			logger.L(ctx).Warn("cannot remove stale modification file",
				"file", modDest, "error", err)
		}
		if err := os.Rename(modSrc, modDest); err != nil {
			return fmt.Errorf("catchup: move modification file for %s: %w", res.Path, err)
		}
	}

	logger.L(ctx).Info("remote file integrated", "path", res.Path, "dest", dest)
	return nil
}
