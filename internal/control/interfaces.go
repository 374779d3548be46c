package control

import (
	"context"
	"time"

	"github.com/nerrad567/ptcontrol/internal/alert"
	"github.com/nerrad567/ptcontrol/internal/entity"
)

// ActuatorStore persists actuator transitions.
type ActuatorStore interface {
	UpsertActuator(ctx context.Context, key entity.Key, engaged bool) error
}

// AlertSink records raised alerts. *alert.Buffer satisfies it.
type AlertSink interface {
	Add(a alert.Alert)
}

// Notifier is told about every transition and alert after the mirror has
// changed. Calls run on the background queue.
type Notifier interface {
	ActuatorChanged(ctx context.Context, key entity.Key, engaged bool, at time.Time) error
	AlertRaised(ctx context.Context, a alert.Alert) error
}

// Logger is the logging interface used by the engine.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
