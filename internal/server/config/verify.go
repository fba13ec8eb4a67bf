package config

import (
	"errors"
	"fmt"
	"os"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifyCatchup(&cfg.Catchup); err != nil {
		return err
	}
	if err := verifyCluster(&cfg.Cluster); err != nil {
		return err
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return errors.New("cannot create data directory: " + err.Error())
	}
	return nil
}

func verifyCatchup(cfg *CatchupSection) error {
	if cfg.TempDir == "" {
		return errors.New("catchup.temp_dir is required")
	}
	if cfg.ChunkSize < 1 {
		return errors.New("catchup.chunk_size must be positive")
	}
	if cfg.MaxAttempts < 1 {
		return errors.New("catchup.max_attempts must be at least 1")
	}
	if cfg.MaxRateMBps < 0 {
		return errors.New("catchup.max_rate_mbps cannot be negative")
	}
	switch cfg.TransportMode {
	case "pooled", "async":
	default:
		return fmt.Errorf("catchup.transport_mode must be \"pooled\" or \"async\", got %q", cfg.TransportMode)
	}
	return nil
}

func verifyCluster(cfg *ClusterSection) error {
	if cfg.Bootstrap && len(cfg.Seeds) > 0 {
		return errors.New("cluster.bootstrap and cluster.seeds are mutually exclusive")
	}
	if cfg.DataDir == "" {
		return errors.New("cluster.data_dir is required")
	}
	return nil
}
