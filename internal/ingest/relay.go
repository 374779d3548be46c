package ingest

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nerrad567/ptcontrol/internal/infrastructure/mqtt"
)

// Relay feeds sensor readings straight from MQTT to sinks without touching
// the store. The standalone control process uses it so the engine sees the
// same readings as the ingestor without a second writer on the store.
//
// Status messages are not relayed; the engine does not act on liveness.
type Relay struct {
	sinks  []ReadingSink
	logger Logger

	relayed     atomic.Uint64
	ignored     atomic.Uint64
	parseErrors atomic.Uint64
	lastMessage atomic.Int64
}

// NewRelay creates a relay delivering to sinks in order.
func NewRelay(sinks ...ReadingSink) *Relay {
	return &Relay{sinks: sinks, logger: noopLogger{}}
}

// SetLogger sets the logger. Passing nil restores the no-op logger.
func (r *Relay) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// Subscribe registers HandleMessage for sensor data topics.
func (r *Relay) Subscribe(sub Subscriber) error {
	topic := mqtt.Topics{}.AllSensorData()
	if err := sub.Subscribe(topic, SubscribeQoS, r.HandleMessage); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	return nil
}

// Unsubscribe stops delivery on the topic registered by Subscribe.
func (r *Relay) Unsubscribe(u Unsubscriber) error {
	topic := mqtt.Topics{}.AllSensorData()
	if err := u.Unsubscribe(topic); err != nil {
		return fmt.Errorf("unsubscribing from %s: %w", topic, err)
	}
	return nil
}

// HandleMessage parses one message and forwards readings.
func (r *Relay) HandleMessage(topic string, payload []byte) error {
	r.lastMessage.Store(time.Now().UnixNano())

	msg, err := Parse(topic, payload)
	if err != nil {
		if errors.Is(err, ErrUnknownTopic) {
			r.ignored.Add(1)
			return nil
		}
		r.parseErrors.Add(1)
		return err
	}

	data, ok := msg.(SensorData)
	if !ok {
		r.ignored.Add(1)
		return nil
	}
	for _, sink := range r.sinks {
		sink.Observe(data.Sensor.Key, data.Value)
	}
	r.relayed.Add(1)
	r.logger.Debug("reading relayed", "sensor", data.Sensor.Key, "value", data.Value)
	return nil
}

// RelayStats holds relay counters.
type RelayStats struct {
	Relayed       uint64    `json:"relayed"`
	Ignored       uint64    `json:"ignored"`
	ParseErrors   uint64    `json:"parse_errors"`
	LastMessageAt time.Time `json:"last_message_at,omitzero"`
}

// Stats returns a snapshot of the counters.
func (r *Relay) Stats() RelayStats {
	s := RelayStats{
		Relayed:     r.relayed.Load(),
		Ignored:     r.ignored.Load(),
		ParseErrors: r.parseErrors.Load(),
	}
	if ns := r.lastMessage.Load(); ns != 0 {
		s.LastMessageAt = time.Unix(0, ns).UTC()
	}
	return s
}
