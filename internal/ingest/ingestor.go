package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/ptcontrol/internal/entity"
	"github.com/nerrad567/ptcontrol/internal/infrastructure/mqtt"
)

// DefaultWriteTimeout bounds each store upsert.
const DefaultWriteTimeout = 5 * time.Second

// SubscribeQoS is the QoS used for both sensor subscriptions.
const SubscribeQoS byte = 1

// SensorStore is the write side of the entity store used by ingestion.
type SensorStore interface {
	UpsertReading(ctx context.Context, key entity.Key, value float64) error
	UpsertLiveness(ctx context.Context, key entity.Key, liveness entity.Liveness) error
}

// ReadingSink receives sensor readings. *control.Engine satisfies it.
type ReadingSink interface {
	Observe(key entity.Key, value float64)
}

// Subscriber registers MQTT handlers. *mqtt.Client satisfies it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Unsubscriber removes MQTT handlers. *mqtt.Client satisfies it.
type Unsubscriber interface {
	Unsubscribe(topic string) error
}

// Logger is the logging interface used by the ingestor.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Ingestor applies sensor messages to the store.
//
// HandleMessage performs at most one upsert per message and is safe to call
// concurrently, though the MQTT client delivers messages one at a time.
type Ingestor struct {
	store        SensorStore
	writeTimeout time.Duration
	logger       Logger

	sinksMu   sync.RWMutex
	observers []ReadingSink
	sinks     []ReadingSink

	received      atomic.Uint64
	stored        atomic.Uint64
	parseErrors   atomic.Uint64
	unknownTopics atomic.Uint64
	storeFailures atomic.Uint64
	lastMessage   atomic.Int64
}

// New creates an Ingestor writing to store. A non-positive writeTimeout
// uses DefaultWriteTimeout.
func New(store SensorStore, writeTimeout time.Duration) *Ingestor {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Ingestor{
		store:        store,
		writeTimeout: writeTimeout,
		logger:       noopLogger{},
	}
}

// SetLogger sets the logger. Passing nil restores the no-op logger.
func (i *Ingestor) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	i.logger = logger
}

// AddObserver registers a sink that sees every valid reading before the
// store write, whether or not the write succeeds. The control engine is
// registered this way so a store outage cannot starve its decisions.
func (i *Ingestor) AddObserver(sink ReadingSink) {
	i.sinksMu.Lock()
	defer i.sinksMu.Unlock()
	i.observers = append(i.observers, sink)
}

// AddSink registers a sink for readings. Sinks are called in registration
// order after the reading is stored.
func (i *Ingestor) AddSink(sink ReadingSink) {
	i.sinksMu.Lock()
	defer i.sinksMu.Unlock()
	i.sinks = append(i.sinks, sink)
}

func ingestTopics() []string {
	topics := mqtt.Topics{}
	return []string{topics.AllSensorData(), topics.AllSensorStatus()}
}

// Subscribe registers HandleMessage for sensor data and status topics.
func (i *Ingestor) Subscribe(sub Subscriber) error {
	for _, topic := range ingestTopics() {
		if err := sub.Subscribe(topic, SubscribeQoS, i.HandleMessage); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}
	return nil
}

// Unsubscribe stops delivery on the topics registered by Subscribe. Call it
// before closing the store so no message arrives after shutdown starts.
func (i *Ingestor) Unsubscribe(u Unsubscriber) error {
	var errs []error
	for _, topic := range ingestTopics() {
		if err := u.Unsubscribe(topic); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribing from %s: %w", topic, err))
		}
	}
	return errors.Join(errs...)
}

// HandleMessage parses and stores one message. It has the mqtt.MessageHandler
// signature; returned errors are logged by the MQTT client.
func (i *Ingestor) HandleMessage(topic string, payload []byte) error {
	i.received.Add(1)
	i.lastMessage.Store(time.Now().UnixNano())

	msg, err := Parse(topic, payload)
	if err != nil {
		if errors.Is(err, ErrUnknownTopic) {
			i.unknownTopics.Add(1)
			i.logger.Debug("ignoring message on unknown topic", "topic", topic)
			return nil
		}
		i.parseErrors.Add(1)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), i.writeTimeout)
	defer cancel()

	switch m := msg.(type) {
	case SensorData:
		i.forward(i.currentObservers(), m.Sensor.Key, m.Value)
		if err := i.store.UpsertReading(ctx, m.Sensor.Key, m.Value); err != nil {
			i.storeFailures.Add(1)
			return err
		}
		i.stored.Add(1)
		i.forward(i.currentSinks(), m.Sensor.Key, m.Value)

	case Liveness:
		if err := i.store.UpsertLiveness(ctx, m.Sensor.Key, m.State()); err != nil {
			i.storeFailures.Add(1)
			return err
		}
		i.stored.Add(1)
		i.logger.Debug("sensor liveness changed", "sensor", m.Sensor.Key, "liveness", m.State())
	}
	return nil
}

func (i *Ingestor) currentObservers() []ReadingSink {
	i.sinksMu.RLock()
	defer i.sinksMu.RUnlock()
	return i.observers
}

func (i *Ingestor) currentSinks() []ReadingSink {
	i.sinksMu.RLock()
	defer i.sinksMu.RUnlock()
	return i.sinks
}

func (i *Ingestor) forward(sinks []ReadingSink, key entity.Key, value float64) {
	for _, sink := range sinks {
		sink.Observe(key, value)
	}
}

// Stats holds ingestion counters.
type Stats struct {
	Received      uint64    `json:"received"`
	Stored        uint64    `json:"stored"`
	ParseErrors   uint64    `json:"parse_errors"`
	UnknownTopics uint64    `json:"unknown_topics"`
	StoreFailures uint64    `json:"store_failures"`
	LastMessageAt time.Time `json:"last_message_at,omitzero"`
}

// Stats returns a snapshot of the counters.
func (i *Ingestor) Stats() Stats {
	s := Stats{
		Received:      i.received.Load(),
		Stored:        i.stored.Load(),
		ParseErrors:   i.parseErrors.Load(),
		UnknownTopics: i.unknownTopics.Load(),
		StoreFailures: i.storeFailures.Load(),
	}
	if ns := i.lastMessage.Load(); ns != 0 {
		s.LastMessageAt = time.Unix(0, ns).UTC()
	}
	return s
}
