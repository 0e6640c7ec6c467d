// Package params holds the catalog of parameters the screen can poll and
// the bounded selection the user picks from it.
package params

import (
	"errors"
	"slices"

	"github.com/Station-Manager/elm327/pid"
)

const (
	// MinSelected and MaxSelected bound the number of polled parameters,
	// one per display slot.
	MinSelected = 1
	MaxSelected = 3
)

var (
	ErrTooMany = errors.New("Can't add more than 3 parameters")
	ErrTooFew  = errors.New("There must be at least one parameter to display")
	ErrUnknown = errors.New("unknown parameter")
)

// Entry pairs a display name with the command factory for it.
type Entry struct {
	Name    string
	Factory pid.Factory
}

// catalog is in picker order.
var catalog = []Entry{
	{"Vehicle Identification Number (VIN)", pid.VIN},
	{"Vehicle Speed", pid.VehicleSpeed},
	{"Engine RPM", pid.EngineRPM},
	{"Engine Load", pid.EngineLoad},
	{"Throttle Position", pid.ThrottlePosition},
	{"Engine Coolant Temperature", pid.CoolantTemperature},
	{"Engine oil temperature", pid.OilTemperature},
	{"Intake Manifold Pressure", pid.IntakeManifoldPressure},
	{"Air Intake Temperature", pid.AirIntakeTemperature},
	{"Fuel Level", pid.FuelLevel},
}

// Catalog returns a copy of every known parameter.
func Catalog() []Entry {
	return slices.Clone(catalog)
}

// Names returns the catalog names in picker order.
func Names() []string {
	names := make([]string, len(catalog))
	for i, e := range catalog {
		names[i] = e.Name
	}
	return names
}

// Lookup finds a catalog entry by exact name.
func Lookup(name string) (Entry, bool) {
	for _, e := range catalog {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// DefaultNames is the selection used before the user picks anything.
func DefaultNames() []string {
	return []string{"Engine RPM", "Vehicle Speed", "Engine Load"}
}
