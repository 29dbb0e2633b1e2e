// Package stores provides SQLite persistence for the execution-state
// engine: the status catalog, teams, migration and iteration containers,
// template and instance nodes, and the append-only audit trail.
package stores
