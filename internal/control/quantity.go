package control

import (
	"fmt"
	"strconv"

	"github.com/nerrad567/ptcontrol/internal/entity"
)

// Quantity binds one measured sensor to its pair of corrective actuators.
//
// Low is engaged when the value drops below Min, High when it rises above
// Max. Values equal to a bound are in range.
type Quantity struct {
	Name   string
	Sensor entity.Key
	Low    entity.Key
	High   entity.Key
	Min    float64
	Max    float64

	// Alert wording. UnitSuffix is appended directly to the value,
	// so it carries its own leading space when one is wanted.
	Label      string
	UnitSuffix string
	LowLabel   string
	HighLabel  string
}

// Temperature returns the temperature quantity with the given band.
func Temperature(lower, upper float64) Quantity {
	return Quantity{
		Name:       "temperature",
		Sensor:     entity.KeyTemperature,
		Low:        entity.KeyHeatValve,
		High:       entity.KeyCoolValve,
		Min:        lower,
		Max:        upper,
		Label:      "Temperature",
		UnitSuffix: "°C",
		LowLabel:   "Heating valve",
		HighLabel:  "Cooling valve",
	}
}

// Pressure returns the pressure quantity with the given band.
func Pressure(lower, upper float64) Quantity {
	return Quantity{
		Name:       "pressure",
		Sensor:     entity.KeyPressure,
		Low:        entity.KeyPressureInValve,
		High:       entity.KeyPressureOutValve,
		Min:        lower,
		Max:        upper,
		Label:      "Pressure",
		UnitSuffix: " bar",
		LowLabel:   "Pressure IN valve",
		HighLabel:  "Pressure OUT valve",
	}
}

// DefaultQuantities returns temperature then pressure with the plant's
// standard bands: 15..95 °C and 2.1..8.1 bar.
func DefaultQuantities() []Quantity {
	return []Quantity{
		Temperature(15, 95),
		Pressure(2.1, 8.1),
	}
}

// Validate checks the quantity is internally consistent.
func (q Quantity) Validate() error {
	switch {
	case q.Sensor == "":
		return fmt.Errorf("%w: %s has no sensor", ErrInvalidQuantity, q.Name)
	case q.Low == "" || q.High == "":
		return fmt.Errorf("%w: %s needs both actuators", ErrInvalidQuantity, q.Name)
	case q.Low == q.High:
		return fmt.Errorf("%w: %s uses %s for both directions", ErrInvalidQuantity, q.Name, q.Low)
	case !(q.Min < q.Max):
		return fmt.Errorf("%w: %s min %v must be below max %v", ErrInvalidQuantity, q.Name, q.Min, q.Max)
	}
	return nil
}

func (q Quantity) highMessage(v float64) string {
	return fmt.Sprintf("%s is too high: %s%s. %s is OPEN.", q.Label, formatValue(v), q.UnitSuffix, q.HighLabel)
}

func (q Quantity) lowMessage(v float64) string {
	return fmt.Sprintf("%s is too low: %s%s. %s is OPEN.", q.Label, formatValue(v), q.UnitSuffix, q.LowLabel)
}

// formatValue renders v with the shortest exact representation: 9 not 9.000000.
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
