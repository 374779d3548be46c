// Package influxdb mirrors ptcontrol telemetry into InfluxDB v2.
//
// The mirror is write-only: sensor readings, actuator transitions and alerts
// are exported as points for external dashboards and never read back.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without the mirror
//	}
//	defer client.Close()
//
//	client.WriteSensorReading("Temperature", "C", 21.5, time.Now())
//
// Writes are non-blocking and batched per the batch_size and
// flush_interval settings. Batch failures are reported through SetOnError.
package influxdb
