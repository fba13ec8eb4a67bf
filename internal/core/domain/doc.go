// Package domain defines the core domain models for Quartzite catch-up.
//
// The catch-up subsystem moves time-series data files between nodes. The
// models here describe what is moved:
//
//   - SchemaEntry: one timeseries schema descriptor, unique by full path
//   - FileResource: one remote data file with its version lineage and owner
//
// Both are self-delimiting on the wire (length-prefixed strings plus
// fixed-width big-endian fields) so that containers can concatenate them
// behind a count prefix and round-trip losslessly.
package domain
