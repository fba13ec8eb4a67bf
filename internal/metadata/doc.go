// Package metadata provides the timeseries schema registry.
//
// The registry is the local metadata collaborator of the snapshot installer:
// schemas carried by an inbound snapshot are registered here before any data
// file is pulled. Registration is idempotent so that re-installing a snapshot
// or installing overlapping snapshots never fails on schemas that already
// exist.
package metadata
