package control

import (
	"errors"
	"testing"
)

func TestQuantity_Messages(t *testing.T) {
	temp := Temperature(15, 95)
	pres := Pressure(2.1, 8.1)

	tests := []struct {
		got  string
		want string
	}{
		{temp.highMessage(100), "Temperature is too high: 100°C. Cooling valve is OPEN."},
		{temp.lowMessage(-3.25), "Temperature is too low: -3.25°C. Heating valve is OPEN."},
		{pres.highMessage(9), "Pressure is too high: 9 bar. Pressure OUT valve is OPEN."},
		{pres.lowMessage(1), "Pressure is too low: 1 bar. Pressure IN valve is OPEN."},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("message = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestQuantity_Validate(t *testing.T) {
	valid := Pressure(2.1, 8.1)
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Quantity)
	}{
		{"no sensor", func(q *Quantity) { q.Sensor = "" }},
		{"no low actuator", func(q *Quantity) { q.Low = "" }},
		{"same actuator", func(q *Quantity) { q.High = q.Low }},
		{"inverted", func(q *Quantity) { q.Min, q.Max = q.Max, q.Min }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := valid
			tt.mutate(&q)
			if err := q.Validate(); !errors.Is(err, ErrInvalidQuantity) {
				t.Errorf("Validate() error = %v, want ErrInvalidQuantity", err)
			}
		})
	}
}

func TestDefaultQuantities(t *testing.T) {
	qs := DefaultQuantities()
	if len(qs) != 2 {
		t.Fatalf("len = %d, want 2", len(qs))
	}
	if qs[0].Min != 15 || qs[0].Max != 95 {
		t.Errorf("temperature band = %v..%v, want 15..95", qs[0].Min, qs[0].Max)
	}
	if qs[1].Min != 2.1 || qs[1].Max != 8.1 {
		t.Errorf("pressure band = %v..%v, want 2.1..8.1", qs[1].Min, qs[1].Max)
	}
}
