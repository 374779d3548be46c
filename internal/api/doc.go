// Package api serves ptcontrol's read-only HTTP surface and WebSocket feed.
//
// Routes:
//
//	GET /status, /api/v1/status    latest state per entity
//	GET /alerts, /api/v1/alerts    most recent alerts, oldest first
//	GET /api/v1/health             liveness and version
//	GET /api/v1/metrics            runtime, transport, store and engine counters
//	GET /api/v1/ws                 WebSocket live feed
//
// /status is mounted only when a status source is configured and /alerts
// only when an alert source is, so the ingest and control processes each
// expose their own half.
//
// Errors are JSON objects of the form {"status":500,"code":"...","message":"..."}.
//
// WebSocket clients subscribe to channels (alert.raised, actuator.changed,
// sensor.reading) with {"type":"subscribe","payload":{"channels":[...]}} or
// up front with /api/v1/ws?channels=alert.raised,sensor.reading. Unknown
// channels are rejected.
package api
