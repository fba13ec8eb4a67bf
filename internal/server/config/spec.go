package config

import "time"

// ServerConfig is the root configuration for quartzite-server.
type ServerConfig struct {
	Node      NodeSection      `koanf:"node"`
	Storage   StorageSection   `koanf:"storage"`
	Catchup   CatchupSection   `koanf:"catchup"`
	Cluster   ClusterSection   `koanf:"cluster"`
	Transport TransportSection `koanf:"transport"`
	Metrics   MetricsSection   `koanf:"metrics"`
	Log       LogSection       `koanf:"log"`
}

// NodeSection identifies this node.
type NodeSection struct {
	// ID is the unique identifier for this node. If empty, a random ID is
	// generated at startup.
	ID string `koanf:"id"`
}

// StorageSection configures the local storage engine.
type StorageSection struct {
	// DataDir is the base directory for resident data files and the file
	// registry.
	DataDir string `koanf:"data_dir"`

	// SyncWrites makes registry writes durable before returning.
	SyncWrites bool `koanf:"sync_writes"`
}

// CatchupSection configures slot catch-up behavior.
type CatchupSection struct {
	// TempDir is the staging area for in-flight pulls.
	TempDir string `koanf:"temp_dir"`

	// ChunkSize is the per-read transfer unit in bytes.
	ChunkSize int `koanf:"chunk_size"`

	// MaxAttempts bounds the pull attempts per file.
	MaxAttempts int `koanf:"max_attempts"`

	// RetryBackoff is the wait between failed pull attempts.
	RetryBackoff time.Duration `koanf:"retry_backoff"`

	// MaxRateMBps caps the aggregate pull bandwidth (MB/s). Zero disables
	// the cap.
	MaxRateMBps int `koanf:"max_rate_mbps"`

	// TransportMode selects the remote-read client: "pooled" (blocking,
	// per-node connection pool) or "async" (pipelined connection per node).
	TransportMode string `koanf:"transport_mode"`
}

// ClusterSection configures cluster membership and consensus.
type ClusterSection struct {
	// RaftAddr is the Raft TCP bind address (e.g. "192.168.1.10:5343").
	RaftAddr string `koanf:"raft_addr"`

	// GossipAddr is the gossip bind address.
	GossipAddr string `koanf:"gossip_addr"`

	// GossipPort is the gossip bind port.
	GossipPort int `koanf:"gossip_port"`

	// Bootstrap indicates if this node bootstraps a new cluster.
	// Mutually exclusive with Seeds.
	Bootstrap bool `koanf:"bootstrap"`

	// Seeds is the list of seed node addresses to join an existing cluster.
	Seeds []string `koanf:"seeds"`

	// DataDir is the directory for Raft log and snapshot storage.
	DataDir string `koanf:"data_dir"`
}

// TransportSection configures the file-transfer server and clients.
type TransportSection struct {
	// Addr is the file server bind address.
	Addr string `koanf:"addr"`

	// PoolSize is the idle connections kept per node by the pooled client.
	PoolSize int `koanf:"pool_size"`

	// QueueDepth is the in-flight requests per node for the async client.
	QueueDepth int `koanf:"queue_depth"`

	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration `koanf:"dial_timeout"`

	// IOTimeout bounds one request/response exchange.
	IOTimeout time.Duration `koanf:"io_timeout"`
}

// MetricsSection configures the metrics endpoint.
type MetricsSection struct {
	// Addr is the Prometheus scrape address. Empty disables the endpoint.
	Addr string `koanf:"addr"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
