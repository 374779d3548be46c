package mqtt

import "fmt"

// Topic roots.
const (
	// TopicPrefixSensors is where sensor agents publish readings and liveness.
	TopicPrefixSensors = "sensors"

	// TopicPrefixActuators is where the control engine publishes valve state.
	TopicPrefixActuators = "actuators"

	// TopicPrefixService is the root for ptcontrol's own topics.
	TopicPrefixService = "ptcontrol"
)

// Topic leaf segments under sensors/<channel>/.
const (
	LeafData   = "data"
	LeafStatus = "status"
)

// Topics provides builders for ptcontrol MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.SensorData("pressure")      // "sensors/pressure/data"
//	topics.ActuatorState("cool_valve") // "actuators/cool_valve/state"
type Topics struct{}

// SensorData returns the topic a sensor agent publishes raw readings on.
//
// Example: sensors/temperature/data
func (Topics) SensorData(channel string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixSensors, channel, LeafData)
}

// SensorStatus returns the retained liveness topic for a sensor agent.
//
// Example: sensors/temperature/status
func (Topics) SensorStatus(channel string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixSensors, channel, LeafStatus)
}

// AllSensorData matches every sensor's data topic.
func (Topics) AllSensorData() string {
	return fmt.Sprintf("%s/+/%s", TopicPrefixSensors, LeafData)
}

// AllSensorStatus matches every sensor's liveness topic.
func (Topics) AllSensorStatus() string {
	return fmt.Sprintf("%s/+/%s", TopicPrefixSensors, LeafStatus)
}

// ActuatorState returns the retained state topic for an actuator.
//
// Example: actuators/pressureOut_valve/state
func (Topics) ActuatorState(name string) string {
	return fmt.Sprintf("%s/%s/state", TopicPrefixActuators, name)
}

// AllActuatorStates matches every actuator state topic.
func (Topics) AllActuatorStates() string {
	return fmt.Sprintf("%s/+/state", TopicPrefixActuators)
}

// Alerts returns the topic control alerts are published on.
func (Topics) Alerts() string {
	return TopicPrefixService + "/alerts"
}

// SystemStatus returns the retained online/offline topic for this service.
// It is also the last-will topic.
func (Topics) SystemStatus() string {
	return TopicPrefixService + "/system/status"
}
