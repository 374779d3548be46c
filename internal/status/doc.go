// Package status builds the dashboard view of the latest state per entity.
//
// The Aggregator reads the entity store, never the control engine's
// in-memory mirror, so it reports what has been persisted by either writer.
package status
