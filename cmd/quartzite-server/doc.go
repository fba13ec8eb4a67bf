// Package main provides the entry point for quartzite-server.
//
// quartzite-server is the node process for Quartzite, a partitioned,
// replicated time-series store. It serves data files to peers, accepts
// slot snapshots from previous owners and catches up the slots they
// describe.
package main
