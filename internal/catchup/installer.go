package catchup

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/quartzite-io/quartzite-go/internal/core/domain"
	"github.com/quartzite-io/quartzite-go/internal/slot"
	"github.com/quartzite-io/quartzite-go/internal/telemetry/logger"
	"github.com/quartzite-io/quartzite-go/internal/telemetry/metric"
)

// MetadataRegistrar registers timeseries schemas. Registration is
// idempotent; re-registering an existing schema must not fail.
type MetadataRegistrar interface {
	RegisterSchema(schema domain.SchemaEntry) error
}

// ConsistencyChecker verifies this node is sufficiently caught up with the
// replication source of truth before a batch install touches any partition.
type ConsistencyChecker interface {
	SyncWithConsistencyCheck(ctx context.Context) error
}

// InstallerConfig wires an Installer to its collaborators.
type InstallerConfig struct {
	Registrar   MetadataRegistrar
	Engine      StorageEngine
	Slots       *slot.StatusStore
	Fetcher     FileFetcher
	Integrator  *Integrator
	Consistency ConsistencyChecker
	Metrics     *metric.Registry
	Logger      *slog.Logger
}

// Installer drives the catch-up of one slot, or a batch of slots received
// together, from their FileSnapshots. It is the only writer of slot status
// for the slots it installs.
type Installer struct {
	registrar   MetadataRegistrar
	engine      StorageEngine
	slots       *slot.StatusStore
	fetcher     FileFetcher
	integrator  *Integrator
	consistency ConsistencyChecker
	metrics     *metric.Registry
	logger      *slog.Logger
}

// NewInstaller creates an installer. Consistency may be nil when batch
// installs are not used.
func NewInstaller(cfg InstallerConfig) *Installer {
	if cfg.Metrics == nil {
		cfg.Metrics = metric.NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Integrator == nil {
		cfg.Integrator = NewIntegrator(cfg.Engine, cfg.Logger)
	}
	return &Installer{
		registrar:   cfg.Registrar,
		engine:      cfg.Engine,
		slots:       cfg.Slots,
		fetcher:     cfg.Fetcher,
		integrator:  cfg.Integrator,
		consistency: cfg.Consistency,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}
}

// Install installs one slot: schemas first, then version floors for every
// file, then the files themselves. Failure in any phase aborts the slot with
// an InstallError and leaves the slot status untouched; the completed
// schema and floor work is idempotent and needs no rollback.
func (ins *Installer) Install(ctx context.Context, snap *FileSnapshot, slotID uint32) error {
	ctx = ins.taskContext(ctx)
	start := time.Now()
	log := logger.L(ctx).With("slot", slotID)
	log.Info("installing snapshot", "snapshot", snap.String())

	if err := ins.fail(ins.installSchemas(ctx, snap), slotID); err != nil {
		return err
	}
	if err := ins.fail(ins.installVersions(ctx, snap, slotID), slotID); err != nil {
		return err
	}
	if err := ins.fail(ins.installFiles(ctx, snap, slotID), slotID); err != nil {
		return err
	}

	ins.metrics.InstallsTotal.WithLabelValues("success").Inc()
	ins.metrics.InstallDuration.Observe(time.Since(start).Seconds())
	log.Info("snapshot installed", "duration", time.Since(start))
	return nil
}

// InstallBatch installs several slots received together. One consistency
// check runs before anything is mutated; then each phase runs across all
// slots before the next begins, in ascending slot order, so no slot waits
// non-writable behind another slot's file transfers.
func (ins *Installer) InstallBatch(ctx context.Context, snapshots map[uint32]*FileSnapshot) error {
	ctx = ins.taskContext(ctx)

	if ins.consistency == nil {
		return &ConsistencyError{Err: fmt.Errorf("no consistency collaborator configured")}
	}
	if err := ins.consistency.SyncWithConsistencyCheck(ctx); err != nil {
		ins.metrics.InstallsTotal.WithLabelValues("consistency_failure").Inc()
		return &ConsistencyError{Err: err}
	}

	slots := make([]uint32, 0, len(snapshots))
	for slotID := range snapshots {
		slots = append(slots, slotID)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })

	for _, slotID := range slots {
		if err := ins.fail(ins.installSchemas(ctx, snapshots[slotID]), slotID); err != nil {
			return err
		}
	}
	for _, slotID := range slots {
		if err := ins.fail(ins.installVersions(ctx, snapshots[slotID], slotID), slotID); err != nil {
			return err
		}
	}
	for _, slotID := range slots {
		start := time.Now()
		if err := ins.fail(ins.installFiles(ctx, snapshots[slotID], slotID), slotID); err != nil {
			return err
		}
		ins.metrics.InstallsTotal.WithLabelValues("success").Inc()
		ins.metrics.InstallDuration.Observe(time.Since(start).Seconds())
	}
	return nil
}

func (ins *Installer) taskContext(ctx context.Context) context.Context {
	ctx = logger.WithLogger(ctx, ins.logger)
	return logger.WithTaskID(ctx, ulid.Make().String())
}

func (ins *Installer) fail(err error, slotID uint32) error {
	if err == nil {
		return nil
	}
	ins.metrics.InstallsTotal.WithLabelValues("failure").Inc()
	ins.logger.Error("slot install aborted", "slot", slotID, "error", err)
	return &InstallError{Slot: slotID, Err: err}
}

// installSchemas registers every schema in the snapshot.
func (ins *Installer) installSchemas(ctx context.Context, snap *FileSnapshot) error {
	for _, schema := range snap.Schemas() {
		if err := ins.registrar.RegisterSchema(schema); err != nil {
			return fmt.Errorf("register schema %s: %w", schema.Path, err)
		}
	}
	return nil
}

// installVersions raises the version floor of every file's partition to at
// least the file's max version, then flips the slot to pulling-writable.
// Every floor moves before any file content is fetched; once the slot is
// writable, a concurrently admitted local write cannot be assigned a version
// an in-flight pull is about to claim.
func (ins *Installer) installVersions(ctx context.Context, snap *FileSnapshot, slotID uint32) error {
	for _, res := range snap.Files() {
		storageGroup, partition, _, err := res.SplitPath()
		if err != nil {
			return err
		}
		if err := ins.engine.SetPartitionVersionFloor(storageGroup, partition, res.MaxVersion); err != nil {
			return fmt.Errorf("raise floor %s/%d: %w", storageGroup, partition, err)
		}
	}

	if ins.slots.Get(slotID) == slot.StatusPulling {
		ins.slots.SetPullingWritable(slotID)
		ins.syncSlotGauges()
		logger.L(ctx).Debug("slot is now pulling writable", "slot", slotID)
	}
	return nil
}

// installFiles pulls and integrates every file in source order, skipping
// files whose lineage is already resident. A fetch failure aborts the slot;
// an integration failure is logged and the pulled file kept for a later
// retry. When every file is processed the slot returns to null.
func (ins *Installer) installFiles(ctx context.Context, snap *FileSnapshot, slotID uint32) error {
	log := logger.L(ctx).With("slot", slotID)
	for _, res := range snap.Files() {
		storageGroup, partition, _, err := res.SplitPath()
		if err != nil {
			return err
		}

		exists, err := ins.alreadyPulled(res, storageGroup, partition)
		if err != nil {
			return fmt.Errorf("dedup check %s: %w", res.Path, err)
		}
		if exists {
			ins.metrics.DedupSkips.Inc()
			log.Debug("file already resident, skipping", "path", res.Path)
			continue
		}

		localPath, err := ins.fetcher.Fetch(ctx, res)
		if err != nil {
			return err
		}
		if err := ins.integrator.Integrate(ctx, res, localPath); err != nil {
			log.Error("cannot integrate pulled file, keeping it for retry",
				"path", res.Path, "local", localPath, "error", err)
		}
	}

	ins.slots.Clear(slotID)
	ins.syncSlotGauges()
	log.Info("slot is ready")
	return nil
}

// alreadyPulled reports whether a resident file covers the resource's
// version lineage. File close is centrally sequenced per group, so matching
// lineage implies matching data. Evaluated fresh per file, never cached:
// resident state can change under us, e.g. from an ongoing compaction.
func (ins *Installer) alreadyPulled(res *domain.FileResource, storageGroup string, partition int64) (bool, error) {
	return ins.engine.FileExists(res, storageGroup, partition)
}

func (ins *Installer) syncSlotGauges() {
	pulling, writable := ins.slots.Counts()
	ins.metrics.SlotsPulling.Set(float64(pulling))
	ins.metrics.SlotsPullingWritable.Set(float64(writable))
}
