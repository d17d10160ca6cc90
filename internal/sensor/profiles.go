package sensor

import "fmt"

// Definition describes a sensor to register.
type Definition struct {
	ID   int
	Type string
	Min  float32
	Max  float32
}

// Comfort ranges for an indoor office.
var defaultSet = []Definition{
	{ID: 1, Type: "TEMPERATURE", Min: 18, Max: 26},
	{ID: 2, Type: "HUMIDITY", Min: 40, Max: 60},
	{ID: 3, Type: "CO2", Min: 400, Max: 800},
	{ID: 4, Type: "NOISE", Min: 35, Max: 55},
}

var demoExtras = []Definition{
	{ID: 5, Type: "PRESSURE", Min: 980, Max: 1020},
	{ID: 6, Type: "LIGHT", Min: 200, Max: 800},
	{ID: 7, Type: "UV_INDEX", Min: 0, Max: 8},
}

const (
	stressFirstID = 10
	stressLastID  = 24
)

// Profile returns the built-in sensor set for name: "default", "demo" (default
// plus pressure, light and UV), "stress" (default plus fifteen generic sensors)
// or "none".
func Profile(name string) ([]Definition, error) {
	switch name {
	case "", "default":
		return append([]Definition(nil), defaultSet...), nil
	case "demo":
		out := append([]Definition(nil), defaultSet...)
		return append(out, demoExtras...), nil
	case "stress":
		out := append([]Definition(nil), defaultSet...)
		for id := stressFirstID; id <= stressLastID; id++ {
			out = append(out, Definition{ID: id, Type: fmt.Sprintf("STRESS_SENSOR_%d", id), Min: 0, Max: 100})
		}
		return out, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("sensor: unknown profile %q", name)
	}
}
