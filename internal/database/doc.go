// Package database provides connection pool management for TimescaleDB.
//
// The recorder keeps a single pool for the hedge_events hypertable.
// The archive is append-only: events are inserted once and never
// updated.
package database
