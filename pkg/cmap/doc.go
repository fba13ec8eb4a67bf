// Package cmap provides a concurrent map implementation for Quartzite.
//
// This package implements a sharded concurrent map used for process-wide
// tables that are read and written from many goroutines, such as the slot
// status table and the schema registry:
//
//   - Sharding: Configurable shard count for parallelism
//   - Fine-grained Locking: Per-shard RWMutex for minimal contention
//   - Atomic Updates: Per-key read-modify-write without a global lock
//   - Iteration: Safe iteration while holding read locks
//
// Usage:
//
//	m := cmap.New[uint32, SlotStatus]()
//	m.Set(7, StatusPulling)
//	val, ok := m.Get(7)
//
// Thread Safety:
//
// All operations are thread-safe. Read operations (Get, Has) use RLock,
// write operations (Set, Delete, Update) use Lock.
package cmap
