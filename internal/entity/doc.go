// Package entity defines the latest-record-per-entity model shared by the
// ingestion path, the control engine and the status aggregator, together
// with its SQLite-backed store.
//
// Every entity (two sensors, four valves) has exactly one record, keyed by
// name. Writers upsert by key; readers treat the greatest UpdatedAt per key
// as authoritative.
package entity
