// Package cluster integrates Quartzite with its consensus and membership
// collaborators: a Raft node whose log carries slot ownership, the
// consistency check batch installs run before mutating any partition, and a
// gossip-based directory mapping node ids to their file-transfer addresses.
package cluster
