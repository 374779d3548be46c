package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type received struct {
	topic   string
	payload string
}

// collector is a MessageHandler that forwards messages on a channel.
func collector() (MessageHandler, <-chan received) {
	ch := make(chan received, 16)
	return func(topic string, payload []byte) error {
		ch <- received{topic, string(payload)}
		return nil
	}, ch
}

func waitFor(t *testing.T, ch <-chan received) received {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
		return received{}
	}
}

func TestConnect(t *testing.T) {
	c := connect(t, startBroker(t))
	require.True(t, c.IsConnected())
	require.NoError(t, c.HealthCheck(context.Background()))
}

func TestConnect_BrokerRefused(t *testing.T) {
	cfg := startBroker(t)
	cfg.Broker.Port = 1 // nothing listens here

	_, err := Connect(cfg)
	require.ErrorIs(t, err, ErrConnectionFailed)
}

func TestClose(t *testing.T) {
	c, err := Connect(startBroker(t))
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.False(t, c.IsConnected())
	require.ErrorIs(t, c.HealthCheck(context.Background()), ErrNotConnected)
	require.ErrorIs(t, c.Publish("x", nil, 0, false), ErrNotConnected)
	require.ErrorIs(t, c.Subscribe("x", 0, func(string, []byte) error { return nil }), ErrNotConnected)
}

func TestCloseNil(t *testing.T) {
	c := &Client{}
	require.NoError(t, c.Close())
	require.False(t, c.IsConnected())
}

func TestHealthCheckCancelled(t *testing.T) {
	c := connect(t, startBroker(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, c.HealthCheck(ctx), context.Canceled)
}

func TestPublishValidation(t *testing.T) {
	c := connect(t, startBroker(t))

	require.ErrorIs(t, c.Publish("", []byte("x"), 0, false), ErrInvalidTopic)
	require.ErrorIs(t, c.Publish("t", []byte("x"), 3, false), ErrInvalidQoS)
	require.ErrorIs(t, c.Publish("t", make([]byte, maxPayloadSize+1), 0, false), ErrPublishFailed)
	require.NoError(t, c.Publish("t", nil, 0, false))
}

func TestSubscribeValidation(t *testing.T) {
	c := connect(t, startBroker(t))
	noop := func(string, []byte) error { return nil }

	require.ErrorIs(t, c.Subscribe("", 0, noop), ErrInvalidTopic)
	require.ErrorIs(t, c.Subscribe("t", 3, noop), ErrInvalidQoS)
	require.ErrorIs(t, c.Subscribe("t", 0, nil), ErrSubscribeFailed)
	require.ErrorIs(t, c.Unsubscribe(""), ErrInvalidTopic)
	require.Zero(t, c.SubscriptionCount())
}

func TestSensorWildcardRoundtrip(t *testing.T) {
	cfg := startBroker(t)
	sub := connect(t, cfg)

	pubCfg := cfg
	pubCfg.Broker.ClientID += "-agent"
	agent := connect(t, pubCfg)

	handler, ch := collector()
	topics := Topics{}
	require.NoError(t, sub.Subscribe(topics.AllSensorData(), 1, handler))
	require.Equal(t, 1, sub.SubscriptionCount())

	require.NoError(t, agent.Publish(topics.SensorData("pressure"), []byte("7.35"), 1, false))
	require.NoError(t, agent.Publish(topics.SensorData("temperature"), []byte("21"), 1, false))
	// Status topics must not match the data wildcard.
	require.NoError(t, agent.Publish(topics.SensorStatus("pressure"), []byte("online"), 1, false))

	first := waitFor(t, ch)
	second := waitFor(t, ch)
	require.Equal(t, received{"sensors/pressure/data", "7.35"}, first)
	require.Equal(t, received{"sensors/temperature/data", "21"}, second)

	select {
	case msg := <-ch:
		t.Fatalf("unexpected message %+v", msg)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	c := connect(t, startBroker(t))
	handler, ch := collector()

	require.NoError(t, c.Subscribe("ptcontrol/test", 1, handler))
	require.NoError(t, c.Unsubscribe("ptcontrol/test"))
	require.Zero(t, c.SubscriptionCount())

	require.NoError(t, c.Publish("ptcontrol/test", []byte("x"), 1, false))
	select {
	case msg := <-ch:
		t.Fatalf("received %+v after unsubscribe", msg)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestPublish_RetainedState(t *testing.T) {
	cfg := startBroker(t)
	c := connect(t, cfg)

	state := []byte(`{"name":"cool_valve","engaged":true}`)
	require.NoError(t, c.Publish(Topics{}.ActuatorState("cool_valve"), state, 1, true))

	// A subscriber arriving later still sees the retained state.
	lateCfg := cfg
	lateCfg.Broker.ClientID += "-late"
	late := connect(t, lateCfg)
	handler, ch := collector()
	require.NoError(t, late.Subscribe(Topics{}.AllActuatorStates(), 1, handler))

	msg := waitFor(t, ch)
	require.Equal(t, "actuators/cool_valve/state", msg.topic)
	require.JSONEq(t, `{"name":"cool_valve","engaged":true}`, msg.payload)
}

func TestOnlineStatusPublished(t *testing.T) {
	cfg := startBroker(t)

	watchCfg := cfg
	watchCfg.Broker.ClientID += "-watch"
	watch := connect(t, watchCfg)
	handler, ch := collector()
	require.NoError(t, watch.Subscribe(Topics{}.SystemStatus(), 1, handler))

	connect(t, cfg)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case msg := <-ch:
			var st SystemStatus
			require.NoError(t, json.Unmarshal([]byte(msg.payload), &st))
			if st.ClientID == cfg.Broker.ClientID {
				require.Equal(t, StatusOnline, st.Status)
				return
			}
		case <-deadline:
			t.Fatal("no online status observed")
		}
	}
}

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) record(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+": "+msg)
}

func (l *recordingLogger) Info(msg string, _ ...any)  { l.record("info", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.record("warn", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.record("error", msg) }

func (l *recordingLogger) contains(s string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

func TestHandlerFailuresAreContained(t *testing.T) {
	c := connect(t, startBroker(t))
	logger := &recordingLogger{}
	c.SetLogger(logger)

	handler, ch := collector()
	require.NoError(t, c.Subscribe("ptcontrol/bad/error", 1, func(string, []byte) error {
		return errors.New("boom")
	}))
	require.NoError(t, c.Subscribe("ptcontrol/bad/panic", 1, func(string, []byte) error {
		panic("boom")
	}))
	require.NoError(t, c.Subscribe("ptcontrol/good", 1, handler))

	require.NoError(t, c.Publish("ptcontrol/bad/error", []byte("x"), 1, false))
	require.NoError(t, c.Publish("ptcontrol/bad/panic", []byte("x"), 1, false))
	require.NoError(t, c.Publish("ptcontrol/good", []byte("ok"), 1, false))

	// Ordered delivery: once the good message arrives, both bad ones ran.
	require.Equal(t, "ok", waitFor(t, ch).payload)
	require.True(t, logger.contains("warn: MQTT handler returned error"))
	require.True(t, logger.contains("error: MQTT handler panic recovered"))
	require.True(t, c.IsConnected())

	st := c.Stats()
	require.Equal(t, uint64(1), st.HandlerErrors)
	require.Equal(t, uint64(1), st.HandlerPanics)
}

func TestHandleConnect_RestoresAndCounts(t *testing.T) {
	c := connect(t, startBroker(t))
	logger := &recordingLogger{}
	c.SetLogger(logger)

	handler, _ := collector()
	require.NoError(t, c.Subscribe(Topics{}.AllSensorData(), 1, handler))

	before := c.Stats().Connects
	c.handleConnect()

	st := c.Stats()
	require.Equal(t, before+1, st.Connects)
	require.Equal(t, 1, st.Subscriptions)
	require.False(t, st.LastConnectedAt.IsZero())
	require.True(t, logger.contains("info: MQTT subscriptions restored"))
}

func TestHandleLost(t *testing.T) {
	c := connect(t, startBroker(t))
	logger := &recordingLogger{}
	c.SetLogger(logger)

	c.handleLost(errors.New("link down"))

	require.False(t, c.IsConnected())
	require.Equal(t, uint64(1), c.Stats().ConnectionsLost)
	require.True(t, logger.contains("warn: MQTT connection lost"))
}

func TestSetLoggerNil(t *testing.T) {
	c := &Client{}
	c.SetLogger(nil)
	// Must not panic.
	c.log().Warn("dropped")
}
