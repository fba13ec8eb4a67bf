package cluster

import (
	"testing"
	"time"
)

func TestDirectoryResolvesLocalNode(t *testing.T) {
	d, err := NewDirectory(DirectoryConfig{
		NodeID:   "node-1",
		BindAddr: "127.0.0.1",
		BindPort: 0,
		DataAddr: "127.0.0.1:5721",
		RaftAddr: "127.0.0.1:5722",
		Logger:   quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}
	defer d.Shutdown()

	// The local node's join event fires during Create.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if addr, ok := d.Resolve("node-1"); ok {
			if addr != "127.0.0.1:5721" {
				t.Errorf("Resolve(node-1) = %s, want 127.0.0.1:5721", addr)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("local node never resolvable")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if raftAddr, ok := d.RaftAddr("node-1"); !ok || raftAddr != "127.0.0.1:5722" {
		t.Errorf("RaftAddr(node-1) = (%s, %v)", raftAddr, ok)
	}
	if _, ok := d.Resolve("node-9"); ok {
		t.Error("unknown node must not resolve")
	}
}

func TestDirectoryTwoNodeJoin(t *testing.T) {
	a, err := NewDirectory(DirectoryConfig{
		NodeID:   "node-a",
		BindAddr: "127.0.0.1",
		BindPort: 0,
		DataAddr: "127.0.0.1:6001",
		Logger:   quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewDirectory a: %v", err)
	}
	defer a.Shutdown()

	seed := a.LocalNode().Address()
	b, err := NewDirectory(DirectoryConfig{
		NodeID:    "node-b",
		BindAddr:  "127.0.0.1",
		BindPort:  0,
		DataAddr:  "127.0.0.1:6002",
		SeedNodes: []string{seed},
		Logger:    quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewDirectory b: %v", err)
	}
	defer b.Shutdown()

	deadline := time.Now().Add(5 * time.Second)
	for {
		addrA, okA := b.Resolve("node-a")
		addrB, okB := a.Resolve("node-b")
		if okA && okB {
			if addrA != "127.0.0.1:6001" || addrB != "127.0.0.1:6002" {
				t.Errorf("cross resolution = %s / %s", addrA, addrB)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("nodes never saw each other: a->b %v, b->a %v", okB, okA)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
