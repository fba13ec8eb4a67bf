package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrNoLeader reports that no Raft leader is known, so there is no source of
// truth to check against.
var ErrNoLeader = errors.New("cluster: no known leader")

// Consistency is the pre-install consistency check. On the leader it is a
// Raft barrier; on a follower it waits until the local FSM has applied the
// full local log, which bounds how stale the ownership view can be.
type Consistency struct {
	node    *RaftNode
	timeout time.Duration
	logger  *slog.Logger
}

// ConsistencyConfig configures the check.
type ConsistencyConfig struct {
	// Timeout bounds one check (default 10s).
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewConsistency creates the check over a Raft node.
func NewConsistency(node *RaftNode, cfg ConsistencyConfig) *Consistency {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Consistency{node: node, timeout: cfg.Timeout, logger: cfg.Logger}
}

// SyncWithConsistencyCheck verifies this node is sufficiently caught up.
func (c *Consistency) SyncWithConsistencyCheck(ctx context.Context) error {
	if c.node.IsLeader() {
		return c.node.Barrier(c.timeout)
	}
	if c.node.Leader() == "" {
		return ErrNoLeader
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	for {
		applied, last := c.node.AppliedIndex(), c.node.LastIndex()
		if applied >= last {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("cluster: not caught up before deadline: applied %d of %d", applied, last)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}
