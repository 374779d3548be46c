package ingest

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nerrad567/ptcontrol/internal/entity"
	"github.com/nerrad567/ptcontrol/internal/infrastructure/mqtt"
)

// PayloadOnline is the liveness payload meaning the agent is present.
// Any other payload, including the agent's last will, marks it failed.
const PayloadOnline = "ONLINE"

// Message is a validated inbound message: SensorData or Liveness.
type Message interface {
	isMessage()
}

// SensorData is one numeric reading.
type SensorData struct {
	Sensor entity.Sensor
	Value  float64
}

// Liveness is a presence change for a sensor agent.
type Liveness struct {
	Sensor entity.Sensor
	Online bool
}

func (SensorData) isMessage() {}
func (Liveness) isMessage()   {}

// State maps the presence flag onto the stored liveness marker.
func (l Liveness) State() entity.Liveness {
	if l.Online {
		return entity.LivenessOK
	}
	return entity.LivenessFailed
}

var errNotFinite = errors.New("value is not finite")

// Parse validates a raw MQTT message.
//
// Data payloads must be a complete decimal number, optionally surrounded by
// whitespace; "7.3bar" is rejected rather than read as 7.3. NaN and
// infinities are rejected too.
func Parse(topic string, payload []byte) (Message, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != mqtt.TopicPrefixSensors {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	sensor, ok := entity.SensorByChannel(parts[1])
	if !ok {
		return nil, fmt.Errorf("%w: no sensor for channel %q", ErrUnknownTopic, parts[1])
	}

	raw := strings.TrimSpace(string(payload))

	switch parts[2] {
	case mqtt.LeafData:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, &ParseError{Topic: topic, Payload: raw, Err: err}
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &ParseError{Topic: topic, Payload: raw, Err: errNotFinite}
		}
		return SensorData{Sensor: sensor, Value: v}, nil

	case mqtt.LeafStatus:
		return Liveness{Sensor: sensor, Online: raw == PayloadOnline}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
}
