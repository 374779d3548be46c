package ingest

import (
	"errors"
	"testing"

	"github.com/nerrad567/ptcontrol/internal/entity"
)

func TestRelay_ForwardsReadings(t *testing.T) {
	a, b := &mockSink{}, &mockSink{}
	r := NewRelay(a, b)

	if err := r.HandleMessage("sensors/temperature/data", []byte("96.5")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	for _, sink := range []*mockSink{a, b} {
		if len(sink.readings) != 1 || sink.readings[0].key != entity.KeyTemperature || sink.readings[0].value != 96.5 {
			t.Errorf("readings = %+v", sink.readings)
		}
	}
	if st := r.Stats(); st.Relayed != 1 || st.LastMessageAt.IsZero() {
		t.Errorf("Stats() = %+v, want one relayed reading", st)
	}
}

func TestRelay_IgnoresStatusAndUnknown(t *testing.T) {
	sink := &mockSink{}
	r := NewRelay(sink)

	if err := r.HandleMessage("sensors/pressure/status", []byte("ONLINE")); err != nil {
		t.Errorf("status: error = %v", err)
	}
	if err := r.HandleMessage("sensors/humidity/data", []byte("40")); err != nil {
		t.Errorf("unknown: error = %v", err)
	}
	if len(sink.readings) != 0 {
		t.Errorf("readings = %+v, want none", sink.readings)
	}
	if st := r.Stats(); st.Ignored != 2 || st.Relayed != 0 {
		t.Errorf("Stats() = %+v, want 2 ignored", st)
	}
}

func TestRelay_ParseError(t *testing.T) {
	sink := &mockSink{}
	r := NewRelay(sink)

	err := r.HandleMessage("sensors/pressure/data", []byte("high"))
	if !errors.Is(err, ErrParse) {
		t.Fatalf("error = %v, want ErrParse", err)
	}
	if st := r.Stats(); len(sink.readings) != 0 || st.Relayed != 0 || st.ParseErrors != 1 {
		t.Errorf("malformed payload was forwarded: readings=%v stats=%+v", sink.readings, st)
	}
}

func TestRelay_Subscribe(t *testing.T) {
	sub := &mockSubscriber{}
	if err := NewRelay().Subscribe(sub); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if len(sub.topics) != 1 || sub.topics[0] != "sensors/+/data" {
		t.Errorf("topics = %v", sub.topics)
	}
}

func TestRelay_Unsubscribe(t *testing.T) {
	u := &mockUnsubscriber{}
	if err := NewRelay().Unsubscribe(u); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if len(u.topics) != 1 || u.topics[0] != "sensors/+/data" {
		t.Errorf("topics = %v", u.topics)
	}
}
