// Package ingest turns raw sensor traffic into entity records.
//
// Sensor agents publish a decimal value on sensors/<channel>/data and a
// retained ONLINE/OFFLINE marker on sensors/<channel>/status. Parse
// validates both into a Message. The Ingestor upserts one record per valid
// message and fans readings out to registered ReadingSinks. Observers, such
// as the control engine, see every valid reading even when the store write
// fails; ordinary sinks, such as the InfluxDB exporter, see stored readings
// only.
//
// Malformed payloads and unknown topics are logged and dropped without
// touching the store.
package ingest
