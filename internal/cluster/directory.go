package cluster

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"

	"github.com/hashicorp/memberlist"

	"github.com/quartzite-io/quartzite-go/pkg/cmap"
)

// nodeMetadata travels in the gossip layer and carries the addresses other
// nodes need to reach this one outside the gossip protocol itself.
type nodeMetadata struct {
	// DataAddr is the file-transfer address (host:port).
	DataAddr string `json:"data_addr"`
	// RaftAddr is the Raft communication address (host:port).
	RaftAddr string `json:"raft_addr,omitempty"`
}

// DirectoryConfig configures the gossip-based node directory.
type DirectoryConfig struct {
	// NodeID is the unique node identifier.
	NodeID string

	// BindAddr is the address to bind for gossip communication.
	BindAddr string

	// BindPort is the port to bind for gossip communication.
	BindPort int

	// DataAddr is this node's file-transfer address, shared via metadata.
	DataAddr string

	// RaftAddr is this node's Raft address, shared via metadata.
	RaftAddr string

	// SeedNodes are the initial nodes to join.
	SeedNodes []string

	// Logger for logging.
	Logger *slog.Logger
}

// Directory tracks cluster membership over gossip and resolves node ids to
// their file-transfer addresses. It implements transport.AddressResolver.
type Directory struct {
	config     *memberlist.Config
	memberList *memberlist.Memberlist
	logger     *slog.Logger
	shutdown   bool

	dataAddrs *cmap.Map[string, string]
	raftAddrs *cmap.Map[string, string]

	onJoin  func(nodeID, raftAddr string)
	onLeave func(nodeID string)
}

// NewDirectory creates a directory and joins the seed nodes if any.
func NewDirectory(cfg DirectoryConfig) (*Directory, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	meta, err := json.Marshal(nodeMetadata{DataAddr: cfg.DataAddr, RaftAddr: cfg.RaftAddr})
	if err != nil {
		return nil, fmt.Errorf("encode node metadata: %w", err)
	}

	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.Name = cfg.NodeID
	mlConfig.BindAddr = cfg.BindAddr
	mlConfig.BindPort = cfg.BindPort
	mlConfig.Delegate = &metadataDelegate{meta: meta}
	mlConfig.LogOutput = &slogWriter{logger: cfg.Logger}

	d := &Directory{
		config:    mlConfig,
		logger:    cfg.Logger,
		dataAddrs: cmap.New[string, string](),
		raftAddrs: cmap.New[string, string](),
	}
	mlConfig.Events = &eventDelegate{directory: d}

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("create memberlist: %w", err)
	}
	d.memberList = ml

	if len(cfg.SeedNodes) > 0 {
		n, err := ml.Join(cfg.SeedNodes)
		if err != nil {
			ml.Shutdown()
			return nil, fmt.Errorf("join seed nodes: %w", err)
		}
		cfg.Logger.Info("joined cluster",
			"node_id", cfg.NodeID,
			"seed_nodes", cfg.SeedNodes,
			"joined_count", n)
	} else {
		cfg.Logger.Info("started directory (bootstrap mode)", "node_id", cfg.NodeID)
	}
	return d, nil
}

// Resolve implements transport.AddressResolver: node id to file-transfer
// address.
func (d *Directory) Resolve(nodeID string) (string, bool) {
	return d.dataAddrs.Get(nodeID)
}

// RaftAddr returns a node's Raft address.
func (d *Directory) RaftAddr(nodeID string) (string, bool) {
	return d.raftAddrs.Get(nodeID)
}

// Members returns the list of current members.
func (d *Directory) Members() []*memberlist.Node {
	if d.memberList == nil {
		return nil
	}
	return d.memberList.Members()
}

// LocalNode returns the local node information.
func (d *Directory) LocalNode() *memberlist.Node {
	if d.memberList == nil {
		return nil
	}
	return d.memberList.LocalNode()
}

// OnJoin registers a callback for node join events, called with the node's
// Raft address.
func (d *Directory) OnJoin(fn func(nodeID, raftAddr string)) {
	d.onJoin = fn
}

// OnLeave registers a callback for node leave events.
func (d *Directory) OnLeave(fn func(nodeID string)) {
	d.onLeave = fn
}

// Leave gracefully leaves the cluster.
func (d *Directory) Leave() error {
	if d.memberList == nil {
		return nil
	}
	if err := d.memberList.Leave(0); err != nil {
		d.logger.Error("failed to leave cluster", "error", err)
		return err
	}
	d.logger.Info("left cluster")
	return nil
}

// Shutdown stops the gossip layer.
func (d *Directory) Shutdown() error {
	if d.shutdown || d.memberList == nil {
		return nil
	}
	d.shutdown = true
	if err := d.memberList.Shutdown(); err != nil {
		return fmt.Errorf("shutdown memberlist: %w", err)
	}
	d.logger.Info("directory shutdown complete")
	return nil
}

func (d *Directory) record(node *memberlist.Node) nodeMetadata {
	var meta nodeMetadata
	if len(node.Meta) > 0 {
		if err := json.Unmarshal(node.Meta, &meta); err != nil {
			d.logger.Warn("node carries undecodable metadata", "node_id", node.Name, "error", err)
		}
	}
	if meta.DataAddr == "" {
		// A node without a declared data address cannot serve pulls; keep
		// the gossip address so the operator can at least see it.
		meta.DataAddr = net.JoinHostPort(node.Addr.String(), fmt.Sprintf("%d", node.Port))
		d.logger.Warn("node joined without data address metadata",
			"node_id", node.Name, "fallback", meta.DataAddr)
	}
	d.dataAddrs.Set(node.Name, meta.DataAddr)
	if meta.RaftAddr != "" {
		d.raftAddrs.Set(node.Name, meta.RaftAddr)
	}
	return meta
}

// eventDelegate implements memberlist.EventDelegate.
type eventDelegate struct {
	directory *Directory
}

// NotifyJoin is called when a node joins.
func (e *eventDelegate) NotifyJoin(node *memberlist.Node) {
	meta := e.directory.record(node)
	e.directory.logger.Info("node joined",
		"node_id", node.Name,
		"data_addr", meta.DataAddr,
		"raft_addr", meta.RaftAddr)
	if e.directory.onJoin != nil {
		e.directory.onJoin(node.Name, meta.RaftAddr)
	}
}

// NotifyLeave is called when a node leaves.
func (e *eventDelegate) NotifyLeave(node *memberlist.Node) {
	e.directory.dataAddrs.Delete(node.Name)
	e.directory.raftAddrs.Delete(node.Name)
	e.directory.logger.Info("node left", "node_id", node.Name)
	if e.directory.onLeave != nil {
		e.directory.onLeave(node.Name)
	}
}

// NotifyUpdate is called when a node's metadata changes.
func (e *eventDelegate) NotifyUpdate(node *memberlist.Node) {
	e.directory.record(node)
	e.directory.logger.Debug("node updated", "node_id", node.Name)
}

// slogWriter adapts slog.Logger to io.Writer for memberlist and raft.
type slogWriter struct {
	logger *slog.Logger
}

// Write implements io.Writer.
func (w *slogWriter) Write(p []byte) (n int, err error) {
	w.logger.Debug(string(p))
	return len(p), nil
}

// metadataDelegate provides node metadata to memberlist.
type metadataDelegate struct {
	meta []byte
}

// NodeMeta returns metadata about this node (up to 512 bytes).
func (m *metadataDelegate) NodeMeta(limit int) []byte {
	if len(m.meta) > limit {
		return m.meta[:limit]
	}
	return m.meta
}

// NotifyMsg is called when a user message is received (not used).
func (m *metadataDelegate) NotifyMsg([]byte) {}

// GetBroadcasts is called to get broadcasts to send (not used).
func (m *metadataDelegate) GetBroadcasts(overhead, limit int) [][]byte {
	return nil
}

// LocalState is used for push/pull state sync (not used).
func (m *metadataDelegate) LocalState(join bool) []byte { return nil }

// MergeRemoteState is used for push/pull state sync (not used).
func (m *metadataDelegate) MergeRemoteState(buf []byte, join bool) {}
