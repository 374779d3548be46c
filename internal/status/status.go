package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/ptcontrol/internal/entity"
)

// Actuator display states.
const (
	StateOpen   = "OPEN"
	StateClosed = "CLOSED"
)

// StatusOffline is reported for a sensor with neither a value nor a
// liveness marker.
const StatusOffline = "OFFLINE"

// Reader returns the stored records. *entity.SQLiteStore satisfies it.
type Reader interface {
	Latest(ctx context.Context) ([]entity.Record, error)
}

// SensorView is the dashboard shape of one sensor.
type SensorView struct {
	Status    string    `json:"status"`
	Value     *float64  `json:"value"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"timestamp"`
	Age       int64     `json:"age"`
}

// Snapshot is the point-in-time status of every known entity that has a
// record. It encodes as a single JSON object keyed by entity.
type Snapshot struct {
	Sensors   map[entity.Key]SensorView
	Actuators map[entity.Key]string
}

// MarshalJSON flattens sensors and actuators into one object. Keys are
// emitted in lexical order.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := make(map[entity.Key]any, len(s.Sensors)+len(s.Actuators))
	for k, v := range s.Sensors {
		out[k] = v
	}
	for k, v := range s.Actuators {
		out[k] = v
	}
	return json.Marshal(out)
}

// Aggregator turns store records into a Snapshot.
type Aggregator struct {
	reader Reader
	now    func() time.Time
}

// NewAggregator creates an Aggregator. A nil now uses time.Now.
func NewAggregator(reader Reader, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{reader: reader, now: now}
}

// Snapshot reads the store and reshapes the latest record per key.
// A read failure returns an error matching entity.ErrStoreRead and no
// snapshot.
func (a *Aggregator) Snapshot(ctx context.Context) (Snapshot, error) {
	records, err := a.reader.Latest(ctx)
	if err != nil {
		if !errors.Is(err, entity.ErrStoreRead) {
			err = fmt.Errorf("%w: %w", entity.ErrStoreRead, err)
		}
		return Snapshot{}, err
	}

	now := a.now()
	snap := Snapshot{
		Sensors:   make(map[entity.Key]SensorView),
		Actuators: make(map[entity.Key]string),
	}
	for key, r := range Reduce(records) {
		kind, ok := entity.KindOf(key)
		if !ok {
			continue
		}
		switch kind {
		case entity.KindActuator:
			snap.Actuators[key] = actuatorState(r.Engaged)
		case entity.KindSensor:
			snap.Sensors[key] = sensorView(r, now)
		}
	}
	return snap, nil
}

// Reduce keeps one record per key: the one with the greatest UpdatedAt.
// On equal timestamps a controller record beats an mqtt one, then an
// actuator record beats a sensor one, then the later record in the input
// wins.
func Reduce(records []entity.Record) map[entity.Key]entity.Record {
	latest := make(map[entity.Key]entity.Record, len(records))
	for _, r := range records {
		cur, ok := latest[r.Key]
		if !ok || supersedes(r, cur) {
			latest[r.Key] = r
		}
	}
	return latest
}

func supersedes(candidate, current entity.Record) bool {
	if !candidate.UpdatedAt.Equal(current.UpdatedAt) {
		return candidate.UpdatedAt.After(current.UpdatedAt)
	}
	if c, k := originRank(candidate.Origin), originRank(current.Origin); c != k {
		return c > k
	}
	if c, k := kindRank(candidate.Kind), kindRank(current.Kind); c != k {
		return c > k
	}
	return true
}

func originRank(o entity.Origin) int {
	if o == entity.OriginController {
		return 1
	}
	return 0
}

func kindRank(k entity.Kind) int {
	if k == entity.KindActuator {
		return 1
	}
	return 0
}

func actuatorState(engaged bool) string {
	if engaged {
		return StateOpen
	}
	return StateClosed
}

func sensorView(r entity.Record, now time.Time) SensorView {
	status := string(r.Liveness)
	if status == "" {
		if r.Value != nil {
			status = string(entity.LivenessOK)
		} else {
			status = StatusOffline
		}
	}

	age := int64(now.Sub(r.UpdatedAt) / time.Second)
	if age < 0 {
		age = 0
	}

	return SensorView{
		Status:    status,
		Value:     r.Value,
		Unit:      r.Unit,
		Timestamp: r.UpdatedAt,
		Age:       age,
	}
}
