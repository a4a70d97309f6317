// Package archive implements the batch writer that persists hedge
// server events.
//
// Inbound messages are parsed into protocol envelopes and appended to
// the hedge_events hypertable. Writes are append-only and batched;
// rows that fail to parse are counted and skipped, never retried.
package archive
