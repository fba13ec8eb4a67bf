package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v3"

	"github.com/quartzite-io/quartzite-go/internal/core/domain"
	"github.com/quartzite-io/quartzite-go/pkg/cmap"
)

// ErrClosed is returned for operations on a closed engine.
var ErrClosed = errors.New("storage: engine closed")

// Config configures the storage engine.
type Config struct {
	// DataDir is the base directory for resident data files. The file
	// registry lives under "<DataDir>/meta".
	DataDir string

	// SyncWrites makes registry writes durable before returning.
	SyncWrites bool

	// Logger is the structured logger.
	Logger *slog.Logger
}

// fileRecord is the registry entry for one resident data file.
type fileRecord struct {
	Name       string `json:"name"`
	Path       string `json:"path"` // absolute location in the data dir
	MinVersion int64  `json:"min_version"`
	MaxVersion int64  `json:"max_version"`
}

// Engine tracks resident data files and partition version floors.
type Engine struct {
	cfg    Config
	db     *badger.DB
	logger *slog.Logger

	// groupLocks serializes load/remove mutations per storage group.
	groupLocks *cmap.Map[string, *sync.Mutex]

	closed bool
	mu     sync.RWMutex
}

// New opens the storage engine rooted at cfg.DataDir.
func New(cfg Config) (*Engine, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("storage: data_dir is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create data dir: %w", err)
	}

	opts := badger.DefaultOptions(filepath.Join(cfg.DataDir, "meta"))
	opts.Logger = &badgerLogger{logger: cfg.Logger}
	opts.SyncWrites = cfg.SyncWrites

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("storage: open registry: %w", err)
	}

	return &Engine{
		cfg:        cfg,
		db:         db,
		logger:     cfg.Logger,
		groupLocks: cmap.New[string, *sync.Mutex](),
	}, nil
}

// Close closes the registry.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.db.Close()
}

func (e *Engine) checkOpen() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}
	return nil
}

func (e *Engine) lockGroup(storageGroup string) *sync.Mutex {
	lock, _ := e.groupLocks.GetOrSet(storageGroup, &sync.Mutex{})
	lock.Lock()
	return lock
}

func floorKey(storageGroup string, partition int64) []byte {
	return []byte(fmt.Sprintf("floor/%s/%d", storageGroup, partition))
}

func filePrefix(storageGroup string, partition int64) []byte {
	return []byte(fmt.Sprintf("file/%s/%d/", storageGroup, partition))
}

func fileKey(storageGroup string, partition, maxVersion int64, name string) []byte {
	return []byte(fmt.Sprintf("file/%s/%d/%020d/%s", storageGroup, partition, maxVersion, name))
}

// SetPartitionVersionFloor raises the version floor of a partition to at
// least version. Floors only move up; a lower version is a no-op.
func (e *Engine) SetPartitionVersionFloor(storageGroup string, partition, version int64) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	key := floorKey(storageGroup, partition)
	return e.db.Update(func(txn *badger.Txn) error {
		current := int64(-1)
		item, err := txn.Get(key)
		if err == nil {
			err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &current)
			})
			if err != nil {
				return err
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if version <= current {
			return nil
		}
		val, err := json.Marshal(version)
		if err != nil {
			return err
		}
		return txn.Set(key, val)
	})
}

// PartitionVersionFloor returns the current floor of a partition, or -1 when
// no floor has been set.
func (e *Engine) PartitionVersionFloor(storageGroup string, partition int64) (int64, error) {
	if err := e.checkOpen(); err != nil {
		return 0, err
	}
	floor := int64(-1)
	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(floorKey(storageGroup, partition))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &floor)
		})
	})
	return floor, err
}

// FileExists reports whether a resident file already covers the version
// lineage of the given remote resource. Coverage is containment of the
// resource's [MinVersion, MaxVersion] range; file close is centrally
// sequenced per group, so equal lineage implies equal data.
func (e *Engine) FileExists(res *domain.FileResource, storageGroup string, partition int64) (bool, error) {
	if err := e.checkOpen(); err != nil {
		return false, err
	}
	found := false
	err := e.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = filePrefix(storageGroup, partition)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var rec fileRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			if rec.MinVersion <= res.MinVersion && rec.MaxVersion >= res.MaxVersion {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

// LoadFile moves a fully downloaded file into the data directory and records
// it as resident. Returns the file's final location.
func (e *Engine) LoadFile(res *domain.FileResource, localPath string) (string, error) {
	if err := e.checkOpen(); err != nil {
		return "", err
	}
	storageGroup, partition, fileName, err := res.SplitPath()
	if err != nil {
		return "", err
	}

	lock := e.lockGroup(storageGroup)
	defer lock.Unlock()

	destDir := filepath.Join(e.cfg.DataDir, storageGroup, fmt.Sprintf("%d", partition))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("storage: create partition dir: %w", err)
	}
	dest := filepath.Join(destDir, fileName)

	if err := os.Rename(localPath, dest); err != nil {
		return "", fmt.Errorf("storage: move %s into data dir: %w", fileName, err)
	}

	rec := fileRecord{
		Name:       fileName,
		Path:       dest,
		MinVersion: res.MinVersion,
		MaxVersion: res.MaxVersion,
	}
	val, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	err = e.db.Update(func(txn *badger.Txn) error {
		return txn.Set(fileKey(storageGroup, partition, res.MaxVersion, fileName), val)
	})
	if err != nil {
		return "", fmt.Errorf("storage: record %s: %w", fileName, err)
	}

	e.logger.Info("file loaded",
		"storage_group", storageGroup,
		"partition", partition,
		"file", fileName,
		"max_version", res.MaxVersion)
	return dest, nil
}

// RemoveSubsumedFiles removes resident files whose version lineage is fully
// contained in the given resource's lineage. The resource's own file is kept.
func (e *Engine) RemoveSubsumedFiles(res *domain.FileResource) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	storageGroup, partition, fileName, err := res.SplitPath()
	if err != nil {
		return err
	}

	lock := e.lockGroup(storageGroup)
	defer lock.Unlock()

	type victim struct {
		key []byte
		rec fileRecord
	}
	var victims []victim

	err = e.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = filePrefix(storageGroup, partition)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var rec fileRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			if rec.Name == fileName {
				continue
			}
			if rec.MinVersion >= res.MinVersion && rec.MaxVersion <= res.MaxVersion {
				victims = append(victims, victim{key: it.Item().KeyCopy(nil), rec: rec})
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, v := range victims {
		if err := os.Remove(v.rec.Path); err != nil && !os.IsNotExist(err) {
			e.logger.Warn("cannot remove subsumed file", "file", v.rec.Path, "error", err)
			continue
		}
		// Take any modification file with it.
		if err := os.Remove(v.rec.Path + domain.ModFileSuffix); err != nil && !os.IsNotExist(err) {
			e.logger.Warn("cannot remove subsumed mod file", "file", v.rec.Path, "error", err)
		}
		err = e.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(v.key)
		})
		if err != nil {
			return err
		}
		e.logger.Info("subsumed file removed",
			"storage_group", storageGroup,
			"partition", partition,
			"file", v.rec.Name,
			"by", fileName)
	}
	return nil
}

// ListFiles returns the resident files of a partition, for inspection and
// tests.
func (e *Engine) ListFiles(storageGroup string, partition int64) ([]string, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	var names []string
	err := e.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = filePrefix(storageGroup, partition)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var rec fileRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			names = append(names, rec.Name)
		}
		return nil
	})
	return names, err
}

// badgerLogger adapts slog to badger's logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
