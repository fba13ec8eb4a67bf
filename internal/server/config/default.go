package config

import "time"

// Default configuration values.
const (
	DefaultTransportAddr = "127.0.0.1:5721"
	DefaultRaftAddr      = "127.0.0.1:5343"
	DefaultGossipAddr    = "127.0.0.1"
	DefaultGossipPort    = 5344
	DefaultMetricsAddr   = "127.0.0.1:9121"

	DefaultDataDir     = "/var/lib/quartzite-server/data"
	DefaultRaftDataDir = "/var/lib/quartzite-server/raft"
	DefaultTempDir     = "/var/lib/quartzite-server/remote"

	DefaultChunkSize     = 64 << 10
	DefaultMaxAttempts   = 5
	DefaultRetryBackoff  = 5 * time.Second
	DefaultTransportMode = "pooled"

	DefaultPoolSize    = 4
	DefaultQueueDepth  = 32
	DefaultDialTimeout = 10 * time.Second
	DefaultIOTimeout   = 30 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Storage: StorageSection{
			DataDir:    DefaultDataDir,
			SyncWrites: true,
		},
		Catchup: CatchupSection{
			TempDir:       DefaultTempDir,
			ChunkSize:     DefaultChunkSize,
			MaxAttempts:   DefaultMaxAttempts,
			RetryBackoff:  DefaultRetryBackoff,
			TransportMode: DefaultTransportMode,
		},
		Cluster: ClusterSection{
			RaftAddr:   DefaultRaftAddr,
			GossipAddr: DefaultGossipAddr,
			GossipPort: DefaultGossipPort,
			DataDir:    DefaultRaftDataDir,
		},
		Transport: TransportSection{
			Addr:        DefaultTransportAddr,
			PoolSize:    DefaultPoolSize,
			QueueDepth:  DefaultQueueDepth,
			DialTimeout: DefaultDialTimeout,
			IOTimeout:   DefaultIOTimeout,
		},
		Metrics: MetricsSection{
			Addr: DefaultMetricsAddr,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
