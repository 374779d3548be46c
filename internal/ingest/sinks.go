package ingest

import (
	"time"

	"github.com/nerrad567/ptcontrol/internal/entity"
)

// ChannelSensorReading is the WebSocket channel readings are broadcast on.
const ChannelSensorReading = "sensor.reading"

// ReadingEvent is the broadcast payload for one reading.
type ReadingEvent struct {
	Key       entity.Key `json:"key"`
	Value     float64    `json:"value"`
	Unit      string     `json:"unit"`
	Timestamp time.Time  `json:"timestamp"`
}

// Broadcaster fans events out to WebSocket clients. *api.Hub satisfies it.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// HubSink broadcasts readings to live WebSocket clients.
type HubSink struct {
	hub Broadcaster
	now func() time.Time
}

// NewHubSink creates a sink over hub.
func NewHubSink(hub Broadcaster) *HubSink {
	return &HubSink{hub: hub, now: time.Now}
}

// Observe broadcasts the reading on ChannelSensorReading.
func (h *HubSink) Observe(key entity.Key, value float64) {
	var unit string
	if s, ok := entity.SensorByKey(key); ok {
		unit = s.Unit
	}
	h.hub.Broadcast(ChannelSensorReading, ReadingEvent{
		Key:       key,
		Value:     value,
		Unit:      unit,
		Timestamp: h.now().UTC(),
	})
}

// PointWriter writes sensor points to a time-series store.
// *influxdb.Client satisfies it.
type PointWriter interface {
	WriteSensorReading(key, unit string, value float64, at time.Time)
}

// RecorderSink mirrors readings into a time-series store.
type RecorderSink struct {
	w   PointWriter
	now func() time.Time
}

// NewRecorderSink creates a sink over w.
func NewRecorderSink(w PointWriter) *RecorderSink {
	return &RecorderSink{w: w, now: time.Now}
}

// Observe writes the reading.
func (r *RecorderSink) Observe(key entity.Key, value float64) {
	var unit string
	if s, ok := entity.SensorByKey(key); ok {
		unit = s.Unit
	}
	r.w.WriteSensorReading(string(key), unit, value, r.now())
}
