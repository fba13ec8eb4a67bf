// Package shutdown provides graceful shutdown handling. Components register
// hooks; on SIGINT/SIGTERM (or an explicit trigger) the hooks run in
// reverse registration order under a shared timeout.
package shutdown
