// Package catchup replicates missing slot data from a remote holder.
//
// A catch-up for one slot runs in three phases: register the snapshot's
// schemas, raise the partition version floors for every file in the
// snapshot, then fetch and integrate the files themselves. Raising all
// floors before any fetch is the correctness core: once the slot is marked
// pulling-writable, concurrently admitted local writes can no longer be
// assigned a version an in-flight pull is about to claim.
package catchup
