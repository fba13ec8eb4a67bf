package cluster

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func bootstrapNode(t *testing.T) (*RaftNode, *FSM) {
	t.Helper()
	fsm := NewFSM(quietLogger())
	node, err := NewRaftNode(RaftConfig{
		NodeID:    "node-1",
		BindAddr:  fmt.Sprintf("127.0.0.1:%d", freePort(t)),
		DataDir:   t.TempDir(),
		Bootstrap: true,
		Logger:    quietLogger(),
	}, fsm)
	if err != nil {
		t.Fatalf("NewRaftNode: %v", err)
	}
	t.Cleanup(func() { node.Close() })

	deadline := time.Now().Add(10 * time.Second)
	for !node.IsLeader() {
		if time.Now().After(deadline) {
			t.Fatal("single node never became leader")
		}
		time.Sleep(50 * time.Millisecond)
	}
	return node, fsm
}

func TestRaftSlotOwnershipReplication(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping raft integration test in short mode")
	}
	node, fsm := bootstrapNode(t)

	if err := node.AssignSlot(7, "node-2", 5*time.Second); err != nil {
		t.Fatalf("AssignSlot: %v", err)
	}
	if owner, ok := fsm.Owner(7); !ok || owner != "node-2" {
		t.Errorf("Owner(7) = (%s, %v), want (node-2, true)", owner, ok)
	}

	if err := node.ReleaseSlot(7, 5*time.Second); err != nil {
		t.Fatalf("ReleaseSlot: %v", err)
	}
	if _, ok := fsm.Owner(7); ok {
		t.Error("slot 7 still owned after release")
	}
}

func TestConsistencyCheckOnLeader(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping raft integration test in short mode")
	}
	node, _ := bootstrapNode(t)

	check := NewConsistency(node, ConsistencyConfig{Timeout: 5 * time.Second, Logger: quietLogger()})
	if err := check.SyncWithConsistencyCheck(context.Background()); err != nil {
		t.Errorf("SyncWithConsistencyCheck on leader: %v", err)
	}
}
