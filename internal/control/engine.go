package control

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/nerrad567/ptcontrol/internal/alert"
	"github.com/nerrad567/ptcontrol/internal/entity"
)

const (
	// DefaultInterval is the tick period when Config.Interval is zero.
	DefaultInterval = 10 * time.Second

	// DefaultWriteTimeout bounds each background write when
	// Config.WriteTimeout is zero.
	DefaultWriteTimeout = 5 * time.Second

	readingBuffer = 256
	alertLane     = "alerts"
)

// Config holds engine settings.
type Config struct {
	Interval     time.Duration
	WriteTimeout time.Duration

	// Quantities are evaluated in slice order on every tick.
	// Empty means DefaultQuantities.
	Quantities []Quantity
}

// Deps holds the engine's collaborators. Store and Alerts are required;
// Notifiers and Logger are optional.
type Deps struct {
	Store     ActuatorStore
	Alerts    AlertSink
	Notifiers []Notifier
	Logger    Logger

	// Now overrides the clock used for alert and transition timestamps.
	Now func() time.Time
}

type reading struct {
	key   entity.Key
	value float64
}

// Engine is the threshold control loop.
//
// Thread Safety: Observe, State and Stats are safe from any goroutine.
// Tick must only be called by one goroutine at a time; Run does that itself.
type Engine struct {
	quantities []Quantity
	interval   time.Duration

	state     *LiveState
	store     ActuatorStore
	alerts    AlertSink
	notifiers []Notifier
	writes    *writeQueue
	logger    Logger
	now       func() time.Time

	readings chan reading
	done     chan struct{}
	started  atomic.Bool

	ticks       atomic.Uint64
	transitions atomic.Uint64
	raised      atomic.Uint64
	panics      atomic.Uint64
	dropped     atomic.Uint64
}

// NewEngine creates an engine with an empty LiveState.
// It returns an error if any quantity is invalid or two quantities share an actuator.
func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("control: store is required")
	}
	if deps.Alerts == nil {
		return nil, fmt.Errorf("control: alert sink is required")
	}

	quantities := cfg.Quantities
	if len(quantities) == 0 {
		quantities = DefaultQuantities()
	}
	if err := validateQuantities(quantities); err != nil {
		return nil, err
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}

	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		quantities: append([]Quantity(nil), quantities...),
		interval:   interval,
		state:      NewLiveState(),
		store:      deps.Store,
		alerts:     deps.Alerts,
		notifiers:  deps.Notifiers,
		writes:     newWriteQueue(writeTimeout, logger),
		logger:     logger,
		now:        now,
		readings:   make(chan reading, readingBuffer),
		done:       make(chan struct{}),
	}, nil
}

func validateQuantities(qs []Quantity) error {
	owner := make(map[entity.Key]string)
	for _, q := range qs {
		if err := q.Validate(); err != nil {
			return err
		}
		for _, key := range []entity.Key{q.Low, q.High} {
			if other, taken := owner[key]; taken {
				return fmt.Errorf("%w: %s is shared by %s and %s", ErrInvalidQuantity, key, other, q.Name)
			}
			owner[key] = q.Name
		}
	}
	return nil
}

// Observe delivers a sensor reading to the loop. Readings are applied
// between ticks, never during one.
//
// Observe blocks only if the loop is busy and its buffer is full. After Run
// has returned, readings are discarded.
func (e *Engine) Observe(key entity.Key, value float64) {
	select {
	case e.readings <- reading{key: key, value: value}:
	case <-e.done:
		e.dropped.Add(1)
	}
}

// Run is the engine's event loop. It applies observed readings and ticks
// every interval until ctx is cancelled. Run may only be called once.
//
// Background writes still in flight when Run returns keep going; call Wait
// to drain them.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(e.done)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.logger.Info("control loop started", "interval", e.interval.String(), "quantities", len(e.quantities))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("control loop stopped")
			return nil
		case r := <-e.readings:
			e.apply(r)
		case <-ticker.C:
			e.Tick()
		}
	}
}

// Wait blocks until all background writes submitted so far complete.
func (e *Engine) Wait(ctx context.Context) error {
	return e.writes.wait(ctx)
}

func (e *Engine) apply(r reading) {
	e.state.setValue(r.key, r.value)
	e.logger.Debug("reading applied", "key", string(r.key), "value", r.value)
}

// Tick evaluates every quantity once, in declared order.
// A failure evaluating one quantity is logged and the next still runs.
func (e *Engine) Tick() {
	e.ticks.Add(1)
	for _, q := range e.quantities {
		e.evaluateContained(q)
	}
}

func (e *Engine) evaluateContained(q Quantity) {
	defer func() {
		if r := recover(); r != nil {
			e.panics.Add(1)
			e.logger.Error("quantity evaluation panicked", "quantity", q.Name, "panic", r)
		}
	}()
	e.evaluate(q)
}

func (e *Engine) evaluate(q Quantity) {
	v, ok := e.state.Value(q.Sensor)
	if !ok {
		return
	}

	lowOn := e.state.Engaged(q.Low)
	highOn := e.state.Engaged(q.High)

	switch {
	case v >= q.Min && v <= q.Max:
		if lowOn {
			e.setActuator(q.Low, false)
		}
		if highOn {
			e.setActuator(q.High, false)
		}

	case v > q.Max && !highOn:
		e.setActuator(q.High, true)
		if lowOn {
			e.setActuator(q.Low, false)
		}

	case v < q.Min && !lowOn:
		e.setActuator(q.Low, true)
		if highOn {
			e.setActuator(q.High, false)
		}

	case v > q.Max:
		e.raise(q.highMessage(v))

	case v < q.Min:
		e.raise(q.lowMessage(v))
	}
}

// setActuator flips the mirror and queues the store upsert and notifications.
func (e *Engine) setActuator(key entity.Key, on bool) {
	e.state.setEngaged(key, on)
	e.transitions.Add(1)

	at := e.now()
	e.logger.Info("actuator transition", "actuator", string(key), "engaged", on)

	e.writes.submit(string(key), "upsert "+string(key), func(ctx context.Context) error {
		return e.store.UpsertActuator(ctx, key, on)
	})
	for i, n := range e.notifiers {
		e.writes.submit(notifyLane(string(key), i), "notify "+string(key), func(ctx context.Context) error {
			return n.ActuatorChanged(ctx, key, on, at)
		})
	}
}

func (e *Engine) raise(message string) {
	a := alert.New(message, e.now())
	e.alerts.Add(a)
	e.raised.Add(1)

	e.logger.Warn("alert raised", "message", message)

	for i, n := range e.notifiers {
		e.writes.submit(notifyLane(alertLane, i), "alert "+a.ID, func(ctx context.Context) error {
			return n.AlertRaised(ctx, a)
		})
	}
}

// notifyLane gives each notifier its own lane so a slow publisher never
// holds up store writes for the same key.
func notifyLane(base string, notifier int) string {
	return base + "#" + strconv.Itoa(notifier)
}

// State returns a copy of the live mirror.
func (e *Engine) State() StateSnapshot {
	return e.state.Snapshot()
}

// Stats is a snapshot of engine counters.
type Stats struct {
	Ticks           uint64 `json:"ticks"`
	Transitions     uint64 `json:"transitions"`
	Alerts          uint64 `json:"alerts"`
	Panics          uint64 `json:"panics"`
	DroppedReads    uint64 `json:"dropped_readings"`
	WriteFailures   uint64 `json:"write_failures"`
	PendingWrites   int64  `json:"pending_writes"`
	IntervalSeconds int    `json:"interval_seconds"`
}

// Stats returns the engine's counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Ticks:           e.ticks.Load(),
		Transitions:     e.transitions.Load(),
		Alerts:          e.raised.Load(),
		Panics:          e.panics.Load(),
		DroppedReads:    e.dropped.Load(),
		WriteFailures:   e.writes.failures.Load(),
		PendingWrites:   e.writes.pending.Load(),
		IntervalSeconds: int(e.interval / time.Second),
	}
}
