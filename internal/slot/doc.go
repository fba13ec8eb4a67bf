// Package slot tracks the catch-up state of partition slots.
//
// A slot is the unit of the keyspace over which replication is tracked. The
// status table is process-wide shared state: query and write paths read it to
// decide whether a slot can be served locally, and snapshot installers drive
// its transitions while pulling a slot's data in from a remote holder.
//
// During one catch-up the transitions are monotonic:
//
//	Pulling → PullingWritable → Null
//
// Illegal transitions are no-ops rather than errors because concurrent
// installers may race benignly on the same slot during batch installs.
package slot
