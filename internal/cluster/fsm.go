package cluster

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/hashicorp/raft"
)

// LogEntryType defines the type of a Raft log entry.
type LogEntryType uint8

const (
	// LogEntrySlotAssign assigns a slot to an owning node.
	LogEntrySlotAssign LogEntryType = 1

	// LogEntrySlotRelease removes a slot's ownership record.
	LogEntrySlotRelease LogEntryType = 2
)

// LogEntry is the envelope of every Raft log entry.
type LogEntry struct {
	Type    LogEntryType    `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// SlotAssignPayload records which node owns a slot's data.
type SlotAssignPayload struct {
	Slot   uint32 `json:"slot"`
	NodeID string `json:"node_id"`
}

// SlotReleasePayload removes a slot ownership record.
type SlotReleasePayload struct {
	Slot uint32 `json:"slot"`
}

// FSM is the replicated slot ownership table. All mutations arrive through
// committed Raft log entries; Apply must stay deterministic.
type FSM struct {
	mu     sync.RWMutex
	owners map[uint32]string
	logger *slog.Logger
}

// NewFSM creates an empty ownership table.
func NewFSM(logger *slog.Logger) *FSM {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSM{
		owners: make(map[uint32]string),
		logger: logger,
	}
}

// Owner returns the node owning a slot's data.
func (f *FSM) Owner(slot uint32) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	nodeID, ok := f.owners[slot]
	return nodeID, ok
}

// Owners returns a copy of the full ownership table.
func (f *FSM) Owners() map[uint32]string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[uint32]string, len(f.owners))
	for slot, nodeID := range f.owners {
		out[slot] = nodeID
	}
	return out
}

// Apply applies a committed log entry. An undecodable entry means data
// corruption or an incompatible version and is unrecoverable.
func (f *FSM) Apply(log *raft.Log) interface{} {
	var entry LogEntry
	if err := json.Unmarshal(log.Data, &entry); err != nil {
		f.logger.Error("FATAL: failed to unmarshal log entry",
			"error", err,
			"log_index", log.Index,
			"log_term", log.Term)
		panic(fmt.Sprintf("FSM.Apply: unmarshal failed at index=%d: %v", log.Index, err))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch entry.Type {
	case LogEntrySlotAssign:
		var p SlotAssignPayload
		if err := json.Unmarshal(entry.Payload, &p); err != nil {
			return fmt.Errorf("cluster: decode slot assign: %w", err)
		}
		f.owners[p.Slot] = p.NodeID
		f.logger.Debug("slot assigned", "slot", p.Slot, "node_id", p.NodeID)

	case LogEntrySlotRelease:
		var p SlotReleasePayload
		if err := json.Unmarshal(entry.Payload, &p); err != nil {
			return fmt.Errorf("cluster: decode slot release: %w", err)
		}
		delete(f.owners, p.Slot)
		f.logger.Debug("slot released", "slot", p.Slot)

	default:
		return fmt.Errorf("cluster: unknown log entry type %d", entry.Type)
	}
	return nil
}

// Snapshot implements raft.FSM.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	return &fsmSnapshot{owners: f.Owners()}, nil
}

// Restore implements raft.FSM.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	gz, err := gzip.NewReader(rc)
	if err != nil {
		return fmt.Errorf("cluster: open snapshot: %w", err)
	}
	defer gz.Close()

	var owners map[uint32]string
	if err := json.NewDecoder(gz).Decode(&owners); err != nil {
		return fmt.Errorf("cluster: decode snapshot: %w", err)
	}

	f.mu.Lock()
	f.owners = owners
	f.mu.Unlock()
	f.logger.Info("ownership table restored", "slots", len(owners))
	return nil
}

// fsmSnapshot is a point-in-time copy of the ownership table.
type fsmSnapshot struct {
	owners map[uint32]string
}

// Persist implements raft.FSMSnapshot.
func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	gz := gzip.NewWriter(sink)
	if err := json.NewEncoder(gz).Encode(s.owners); err != nil {
		sink.Cancel()
		return err
	}
	if err := gz.Close(); err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

// Release implements raft.FSMSnapshot.
func (s *fsmSnapshot) Release() {}

// EncodeSlotAssign builds the log entry bytes for a slot assignment.
func EncodeSlotAssign(slot uint32, nodeID string) ([]byte, error) {
	payload, err := json.Marshal(SlotAssignPayload{Slot: slot, NodeID: nodeID})
	if err != nil {
		return nil, err
	}
	return json.Marshal(LogEntry{Type: LogEntrySlotAssign, Payload: payload})
}

// EncodeSlotRelease builds the log entry bytes for a slot release.
func EncodeSlotRelease(slot uint32) ([]byte, error) {
	payload, err := json.Marshal(SlotReleasePayload{Slot: slot})
	if err != nil {
		return nil, err
	}
	return json.Marshal(LogEntry{Type: LogEntrySlotRelease, Payload: payload})
}
