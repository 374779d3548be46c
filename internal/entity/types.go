package entity

import "time"

// Key names a single entity. It is the only identity in the store.
type Key string

// Known entity keys. Sensor keys are capitalised and actuator keys are
// snake-ish, matching what dashboards already consume.
const (
	KeyTemperature Key = "Temperature"
	KeyPressure    Key = "Pressure"

	KeyHeatValve        Key = "heat_valve"
	KeyCoolValve        Key = "cool_valve"
	KeyPressureInValve  Key = "pressureIn_valve"
	KeyPressureOutValve Key = "pressureOut_valve"
)

// Kind distinguishes sensor records from actuator records.
type Kind string

const (
	KindSensor   Kind = "Sensor"
	KindActuator Kind = "Actuator"
)

// Liveness is the presence marker reported by a sensor agent.
type Liveness string

const (
	LivenessOK     Liveness = "OK"
	LivenessFailed Liveness = "FAILED"
)

// Origin records which writer produced a record. Informational only.
type Origin string

const (
	OriginMQTT       Origin = "mqtt"
	OriginController Origin = "controller"
)

// Record is the latest known state of one entity.
//
// Sensor records use Value, Unit and Liveness. Actuator records use Engaged.
// Value is nil until the first reading arrives (a liveness message can
// create the record first).
type Record struct {
	Key       Key       `json:"key"`
	Kind      Kind      `json:"kind"`
	Value     *float64  `json:"value,omitempty"`
	Unit      string    `json:"unit,omitempty"`
	Liveness  Liveness  `json:"liveness,omitempty"`
	Engaged   bool      `json:"engaged"`
	Origin    Origin    `json:"origin"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Sensor describes one telemetry channel and the entity it feeds.
type Sensor struct {
	// Channel is the MQTT topic segment, e.g. "temperature".
	Channel string
	Key     Key
	Unit    string
}

// Sensors lists the known telemetry channels.
var Sensors = []Sensor{
	{Channel: "temperature", Key: KeyTemperature, Unit: "C"},
	{Channel: "pressure", Key: KeyPressure, Unit: "bar"},
}

// Actuators lists the known actuator keys.
var Actuators = []Key{
	KeyHeatValve,
	KeyCoolValve,
	KeyPressureInValve,
	KeyPressureOutValve,
}

// SensorByChannel looks up a sensor by its topic segment.
func SensorByChannel(channel string) (Sensor, bool) {
	for _, s := range Sensors {
		if s.Channel == channel {
			return s, true
		}
	}
	return Sensor{}, false
}

// SensorByKey looks up a sensor by its entity key.
func SensorByKey(key Key) (Sensor, bool) {
	for _, s := range Sensors {
		if s.Key == key {
			return s, true
		}
	}
	return Sensor{}, false
}

// IsActuator reports whether key names a known actuator.
func IsActuator(key Key) bool {
	for _, a := range Actuators {
		if a == key {
			return true
		}
	}
	return false
}

// KindOf returns the kind of a known key.
func KindOf(key Key) (Kind, bool) {
	if _, ok := SensorByKey(key); ok {
		return KindSensor, true
	}
	if IsActuator(key) {
		return KindActuator, true
	}
	return "", false
}
