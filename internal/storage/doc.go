// Package storage provides the local storage engine the catch-up subsystem
// integrates pulled data files into.
//
// The engine tracks two things in a Badger-backed registry:
//
//   - Resident files: which data files live locally, keyed by storage group,
//     partition and version lineage. The dedup check of the installer asks
//     this registry whether a remote file's lineage is already covered.
//   - Partition version floors: the monotonic lower bound a partition's next
//     write version must exceed. Floors are raised for every file of a slot
//     before any file content is fetched, which is what makes a slot safe to
//     write during an ongoing pull.
//
// The physical time-series file format is outside this package; files are
// moved into the data directory as opaque blobs.
package storage
