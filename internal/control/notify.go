package control

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/ptcontrol/internal/alert"
	"github.com/nerrad567/ptcontrol/internal/entity"
)

// WebSocket channels used by HubNotifier.
const (
	ChannelActuatorChanged = "actuator.changed"
	ChannelAlertRaised     = "alert.raised"
)

// ActuatorEvent is the payload published for every transition.
type ActuatorEvent struct {
	Name      entity.Key `json:"name"`
	Engaged   bool       `json:"engaged"`
	State     string     `json:"state"`
	Timestamp time.Time  `json:"timestamp"`
}

func newActuatorEvent(key entity.Key, engaged bool, at time.Time) ActuatorEvent {
	state := "CLOSED"
	if engaged {
		state = "OPEN"
	}
	return ActuatorEvent{Name: key, Engaged: engaged, State: state, Timestamp: at.UTC()}
}

// Publisher publishes raw MQTT payloads. *mqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// TopicScheme names the topics the engine publishes on. mqtt.Topics satisfies it.
type TopicScheme interface {
	ActuatorState(name string) string
	Alerts() string
}

// PublishNotifier announces transitions (retained) and alerts over MQTT.
type PublishNotifier struct {
	pub    Publisher
	topics TopicScheme
	qos    byte
}

// NewPublishNotifier creates a notifier publishing at the given QoS.
func NewPublishNotifier(pub Publisher, topics TopicScheme, qos byte) *PublishNotifier {
	return &PublishNotifier{pub: pub, topics: topics, qos: qos}
}

// ActuatorChanged publishes the actuator's new state as a retained message.
func (p *PublishNotifier) ActuatorChanged(_ context.Context, key entity.Key, engaged bool, at time.Time) error {
	payload, err := json.Marshal(newActuatorEvent(key, engaged, at))
	if err != nil {
		return fmt.Errorf("marshalling actuator event: %w", err)
	}
	return p.pub.Publish(p.topics.ActuatorState(string(key)), payload, p.qos, true)
}

// AlertRaised publishes the alert.
func (p *PublishNotifier) AlertRaised(_ context.Context, a alert.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshalling alert: %w", err)
	}
	return p.pub.Publish(p.topics.Alerts(), payload, p.qos, false)
}

// Broadcaster fans events out to WebSocket subscribers. *api.Hub satisfies it.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// HubNotifier forwards transitions and alerts to live WebSocket clients.
type HubNotifier struct {
	hub Broadcaster
}

// NewHubNotifier creates a notifier over hub.
func NewHubNotifier(hub Broadcaster) *HubNotifier {
	return &HubNotifier{hub: hub}
}

// ActuatorChanged broadcasts on ChannelActuatorChanged.
func (h *HubNotifier) ActuatorChanged(_ context.Context, key entity.Key, engaged bool, at time.Time) error {
	h.hub.Broadcast(ChannelActuatorChanged, newActuatorEvent(key, engaged, at))
	return nil
}

// AlertRaised broadcasts on ChannelAlertRaised.
func (h *HubNotifier) AlertRaised(_ context.Context, a alert.Alert) error {
	h.hub.Broadcast(ChannelAlertRaised, a)
	return nil
}

// PointRecorder writes time-series points. *influxdb.Client satisfies it.
type PointRecorder interface {
	WriteActuatorState(key string, engaged bool, at time.Time)
	WriteAlert(message string, at time.Time)
}

// RecorderNotifier mirrors transitions and alerts into a time-series store.
type RecorderNotifier struct {
	rec PointRecorder
}

// NewRecorderNotifier creates a notifier over rec.
func NewRecorderNotifier(rec PointRecorder) *RecorderNotifier {
	return &RecorderNotifier{rec: rec}
}

// ActuatorChanged records the transition.
func (r *RecorderNotifier) ActuatorChanged(_ context.Context, key entity.Key, engaged bool, at time.Time) error {
	r.rec.WriteActuatorState(string(key), engaged, at)
	return nil
}

// AlertRaised records the alert.
func (r *RecorderNotifier) AlertRaised(_ context.Context, a alert.Alert) error {
	r.rec.WriteAlert(a.Message, a.Timestamp)
	return nil
}
