package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/urfave/cli/v2"

	"github.com/quartzite-io/quartzite-go/internal/catchup"
	"github.com/quartzite-io/quartzite-go/internal/cluster"
	"github.com/quartzite-io/quartzite-go/internal/infra/confloader"
	"github.com/quartzite-io/quartzite-go/internal/infra/shutdown"
	"github.com/quartzite-io/quartzite-go/internal/metadata"
	"github.com/quartzite-io/quartzite-go/internal/server/config"
	"github.com/quartzite-io/quartzite-go/internal/slot"
	"github.com/quartzite-io/quartzite-go/internal/storage"
	"github.com/quartzite-io/quartzite-go/internal/telemetry/logger"
	"github.com/quartzite-io/quartzite-go/internal/telemetry/metric"
	"github.com/quartzite-io/quartzite-go/internal/transport"
)

// Build information, set via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "quartzite-server",
		Usage:   "Quartzite time-series store node",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				EnvVars: []string{"QUARTZITE_CONFIG"},
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	configFile := c.String("config")

	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	slog.SetDefault(log)

	nodeID := cfg.Node.ID
	if nodeID == "" {
		nodeID = "node-" + strings.ToLower(ulid.Make().String())
	}

	log.Info("starting quartzite-server",
		"version", version,
		"commit", commit,
		"node", nodeID,
		"config", configFile)

	metrics := metric.NewRegistry()

	engine, err := storage.New(storage.Config{
		DataDir:    cfg.Storage.DataDir,
		SyncWrites: cfg.Storage.SyncWrites,
		Logger:     log,
	})
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	registry := metadata.NewRegistry(log)
	slots := slot.NewStatusStore()

	fsm := cluster.NewFSM(log)
	raftNode, err := cluster.NewRaftNode(cluster.RaftConfig{
		NodeID:    nodeID,
		BindAddr:  cfg.Cluster.RaftAddr,
		DataDir:   cfg.Cluster.DataDir,
		Bootstrap: cfg.Cluster.Bootstrap,
		Logger:    log,
	}, fsm)
	if err != nil {
		engine.Close()
		return fmt.Errorf("init raft: %w", err)
	}
	consistency := cluster.NewConsistency(raftNode, cluster.ConsistencyConfig{Logger: log})

	directory, err := cluster.NewDirectory(cluster.DirectoryConfig{
		NodeID:    nodeID,
		BindAddr:  cfg.Cluster.GossipAddr,
		BindPort:  cfg.Cluster.GossipPort,
		DataAddr:  cfg.Transport.Addr,
		RaftAddr:  cfg.Cluster.RaftAddr,
		SeedNodes: cfg.Cluster.Seeds,
		Logger:    log,
	})
	if err != nil {
		raftNode.Close()
		engine.Close()
		return fmt.Errorf("init directory: %w", err)
	}

	// The leader folds joining nodes into the Raft configuration and
	// removes nodes that leave the gossip layer.
	directory.OnJoin(func(peerID, raftAddr string) {
		if peerID == nodeID || raftAddr == "" || !raftNode.IsLeader() {
			return
		}
		if err := raftNode.AddVoter(peerID, raftAddr, 10*time.Second); err != nil {
			log.Warn("add voter failed", "node", peerID, "error", err)
		}
	})
	directory.OnLeave(func(peerID string) {
		if peerID == nodeID || !raftNode.IsLeader() {
			return
		}
		if err := raftNode.RemoveServer(peerID, 10*time.Second); err != nil {
			log.Warn("remove server failed", "node", peerID, "error", err)
		}
	})

	reader := newFileReader(cfg, directory, log)

	fetcher := catchup.NewFetcher(catchup.FetcherConfig{
		TempDir:        cfg.Catchup.TempDir,
		Reader:         reader,
		ChunkSize:      int32(cfg.Catchup.ChunkSize),
		MaxAttempts:    cfg.Catchup.MaxAttempts,
		RetryBackoff:   cfg.Catchup.RetryBackoff,
		BytesPerSecond: cfg.Catchup.MaxRateMBps << 20,
		Metrics:        metrics,
		Logger:         log,
	})

	installer := catchup.NewInstaller(catchup.InstallerConfig{
		Registrar:   registry,
		Engine:      engine,
		Slots:       slots,
		Fetcher:     fetcher,
		Consistency: consistency,
		Metrics:     metrics,
		Logger:      log,
	})

	serverCfg := transport.DefaultServerConfig(cfg.Transport.Addr, cfg.Storage.DataDir)
	serverCfg.Logger = log
	serverCfg.Install = func(ctx context.Context, slotID uint32, data []byte) error {
		snap := catchup.NewFileSnapshot()
		if err := snap.Deserialize(data); err != nil {
			return err
		}
		return installer.Install(ctx, snap, slotID)
	}
	fileServer := transport.NewServer(serverCfg)
	if err := fileServer.Start(); err != nil {
		directory.Shutdown()
		raftNode.Close()
		engine.Close()
		return fmt.Errorf("start file server: %w", err)
	}

	var metricsServer *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			log.Info("metrics endpoint listening", "addr", cfg.Metrics.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics endpoint error", "error", err)
			}
		}()
	}

	watcher := watchConfig(configFile, log)

	shutdownHandler := shutdown.NewHandler(30 * time.Second)

	shutdownHandler.OnShutdown(func(context.Context) error {
		log.Info("shutting down storage engine")
		return engine.Close()
	})
	shutdownHandler.OnShutdown(func(context.Context) error {
		log.Info("shutting down raft")
		return raftNode.Close()
	})
	shutdownHandler.OnShutdown(func(context.Context) error {
		log.Info("leaving cluster")
		if err := directory.Leave(); err != nil {
			log.Warn("gossip leave failed", "error", err)
		}
		return directory.Shutdown()
	})
	shutdownHandler.OnShutdown(func(context.Context) error {
		return reader.Close()
	})
	shutdownHandler.OnShutdown(func(context.Context) error {
		log.Info("shutting down file server")
		return fileServer.Close()
	})
	if metricsServer != nil {
		shutdownHandler.OnShutdown(func(ctx context.Context) error {
			return metricsServer.Shutdown(ctx)
		})
	}
	if watcher != nil {
		shutdownHandler.OnShutdown(func(context.Context) error {
			return watcher.Stop()
		})
	}

	log.Info("node started",
		"data_addr", cfg.Transport.Addr,
		"raft_addr", cfg.Cluster.RaftAddr,
		"slot_count", slot.DefaultSlotCount)

	if err := shutdownHandler.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("node stopped gracefully")
	return nil
}

// loadConfig loads configuration from defaults, file and environment.
func loadConfig(configFile string) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}

	loader := confloader.NewLoader(opts...)
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newFileReader selects the remote read client per catchup.transport_mode.
func newFileReader(cfg *config.ServerConfig, resolver transport.AddressResolver, log *slog.Logger) transport.FileReader {
	if cfg.Catchup.TransportMode == "async" {
		return transport.NewAsyncClient(resolver, transport.AsyncClientConfig{
			DialTimeout: cfg.Transport.DialTimeout,
			QueueDepth:  cfg.Transport.QueueDepth,
			Logger:      log,
		})
	}
	return transport.NewPooledClient(resolver, transport.PooledClientConfig{
		DialTimeout: cfg.Transport.DialTimeout,
		IOTimeout:   cfg.Transport.IOTimeout,
		PoolSize:    cfg.Transport.PoolSize,
		Logger:      log,
	})
}

// watchConfig reloads the log level when the config file changes. Other
// settings need a restart.
func watchConfig(configFile string, log *slog.Logger) *confloader.Watcher {
	if configFile == "" {
		return nil
	}
	watcher, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		log.Warn("config watcher unavailable", "error", err)
		return nil
	}
	watcher.OnChange(func(string) {
		cfg, err := loadConfig(configFile)
		if err != nil {
			log.Warn("config reload failed", "error", err)
			return
		}
		logger.SetLevel(cfg.Log.Level)
		log.Info("log level reloaded", "level", cfg.Log.Level)
	})
	if err := watcher.Watch(configFile); err != nil {
		watcher.Stop()
		return nil
	}
	watcher.StartAsync()
	return watcher
}
