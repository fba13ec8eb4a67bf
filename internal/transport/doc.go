// Package transport implements the inter-node file transfer protocol.
//
// A node exposes its data files through a small framed TCP protocol with a
// single operation: read a byte range of a named file. The catch-up fetcher
// consumes this through the FileReader interface, which has two
// interchangeable implementations selected by configuration:
//
//   - PooledClient: blocking request/response over a per-node connection
//     pool; a connection is borrowed for one call and returned afterwards.
//   - AsyncClient: one multiplexed connection per node with pipelined
//     requests completed in order by a reader goroutine.
//
// Both produce byte-identical results; an empty payload signals EOF.
package transport
