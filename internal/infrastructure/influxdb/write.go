package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementSensorReading = "sensor_reading"
	MeasurementActuatorState = "actuator_state"
	MeasurementAlert         = "alert"
)

// WriteSensorReading records one sensor value.
//
//	client.WriteSensorReading("Pressure", "bar", 7.35, time.Now())
func (c *Client) WriteSensorReading(key, unit string, value float64, at time.Time) {
	c.writePoint(MeasurementSensorReading,
		map[string]string{"sensor": key, "unit": unit},
		map[string]any{"value": value},
		at,
	)
}

// WriteActuatorState records an actuator transition. The state field is 1
// when engaged so it can be graphed next to readings.
func (c *Client) WriteActuatorState(key string, engaged bool, at time.Time) {
	state := 0
	if engaged {
		state = 1
	}
	c.writePoint(MeasurementActuatorState,
		map[string]string{"actuator": key},
		map[string]any{"engaged": engaged, "state": state},
		at,
	)
}

// WriteAlert records a raised alert.
func (c *Client) WriteAlert(message string, at time.Time) {
	c.writePoint(MeasurementAlert, nil, map[string]any{"message": message}, at)
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, at))
}
