package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/ptcontrol/internal/alert"
	"github.com/nerrad567/ptcontrol/internal/control"
	"github.com/nerrad567/ptcontrol/internal/entity"
)

type failingActuatorStore struct{}

func (failingActuatorStore) UpsertActuator(context.Context, entity.Key, bool) error {
	return entity.ErrStoreWrite
}

// The engine must keep deciding while every store write fails.
func TestIngestor_EngineActsDuringStoreOutage(t *testing.T) {
	eng, err := control.NewEngine(control.Config{
		Interval:   time.Hour,
		Quantities: control.DefaultQuantities(),
	}, control.Deps{
		Store:  failingActuatorStore{},
		Alerts: alert.NewBuffer(10),
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	ing := New(&mockStore{err: entity.ErrStoreWrite}, 0)
	ing.AddObserver(eng)

	if err := ing.HandleMessage("sensors/pressure/data", []byte("9.0")); err == nil {
		t.Fatal("HandleMessage() error = nil, want the store failure")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if v, ok := eng.State().Values[entity.KeyPressure]; ok && v == 9 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("engine never received the reading: %+v", eng.State())
		}
		time.Sleep(5 * time.Millisecond)
	}

	eng.Tick()
	if !eng.State().Engaged[entity.KeyPressureOutValve] {
		t.Errorf("pressureOut_valve not engaged: %+v", eng.State())
	}
}
