package entity

import "testing"

func TestSensorLookups(t *testing.T) {
	s, ok := SensorByChannel("pressure")
	if !ok || s.Key != KeyPressure || s.Unit != "bar" {
		t.Errorf("SensorByChannel(pressure) = %+v, %v", s, ok)
	}
	if _, ok := SensorByChannel("humidity"); ok {
		t.Error("SensorByChannel(humidity) should not resolve")
	}

	s, ok = SensorByKey(KeyTemperature)
	if !ok || s.Channel != "temperature" || s.Unit != "C" {
		t.Errorf("SensorByKey(Temperature) = %+v, %v", s, ok)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		key    Key
		want   Kind
		wantOK bool
	}{
		{KeyTemperature, KindSensor, true},
		{KeyPressure, KindSensor, true},
		{KeyHeatValve, KindActuator, true},
		{KeyPressureOutValve, KindActuator, true},
		{Key("Humidity"), "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			got, ok := KindOf(tt.key)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("KindOf(%s) = %q, %v; want %q, %v", tt.key, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
