package pid

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

type kind int

const (
	kindRPM kind = iota
	kindSpeed
	kindPercent
	kindTemperature
	kindPressure
)

// live is a mode 01 request whose answer is one or two data bytes.
type live struct {
	name  string
	pid   byte
	size  int
	kind  kind
	units Units
}

func (c live) Name() string    { return c.name }
func (c live) Request() string { return fmt.Sprintf("01 %02X", c.pid) }

func (c live) Run(ctx context.Context, e Execer) (Reading, error) {
	req := c.Request()
	r := Reading{Name: c.name, Request: req, At: time.Now()}

	resp, err := exchange(ctx, e, req)
	r.Raw = resp
	if err != nil {
		return r, err
	}

	data, err := c.payload(req, resp)
	if err != nil {
		return r, err
	}
	c.decode(data, &r)
	return r, nil
}

// payload finds "41 <pid>" in the answer and returns the data bytes after
// it. With several ECUs answering the first complete answer wins.
func (c live) payload(req, resp string) ([]byte, error) {
	b, err := decodeHex(req, resp)
	if err != nil {
		return nil, err
	}
	for i := 0; i+1 < len(b); i++ {
		if b[i] == 0x41 && b[i+1] == c.pid && i+2+c.size <= len(b) {
			return b[i+2 : i+2+c.size], nil
		}
	}
	return nil, &ResponseError{Request: req, Response: resp, Err: ErrUnexpectedResponse}
}

func (c live) decode(a []byte, r *Reading) {
	switch c.kind {
	case kindRPM:
		rpm := (int(a[0])*256 + int(a[1])) / 4
		r.Value, r.Unit = float64(rpm), "RPM"
		r.Calculated = strconv.Itoa(rpm)
		r.Formatted = fmt.Sprintf("%dRPM", rpm)

	case kindSpeed:
		kmh := int(a[0])
		if c.units == Imperial {
			mph := float64(kmh) * 0.621371192
			r.Value, r.Unit = mph, "mph"
			r.Calculated = strconv.FormatFloat(mph, 'f', 2, 64)
			r.Formatted = fmt.Sprintf("%.2fmph", mph)
			return
		}
		r.Value, r.Unit = float64(kmh), "km/h"
		r.Calculated = strconv.Itoa(kmh)
		r.Formatted = fmt.Sprintf("%dkm/h", kmh)

	case kindPercent:
		pct := float64(a[0]) * 100 / 255
		r.Value, r.Unit = pct, "%"
		r.Calculated = strconv.FormatFloat(pct, 'f', 1, 64)
		r.Formatted = fmt.Sprintf("%.1f%%", pct)

	case kindTemperature:
		t := float64(int(a[0]) - 40)
		unit := "C"
		if c.units == Imperial {
			t, unit = t*9/5+32, "F"
		}
		r.Value, r.Unit = t, unit
		r.Calculated = strconv.FormatFloat(t, 'f', -1, 64)
		r.Formatted = fmt.Sprintf("%.1f%s", t, unit)

	case kindPressure:
		kpa := int(a[0])
		if c.units == Imperial {
			psi := float64(kpa) * 0.14503773773
			r.Value, r.Unit = psi, "psi"
			r.Calculated = strconv.FormatFloat(psi, 'f', 1, 64)
			r.Formatted = fmt.Sprintf("%.1fpsi", psi)
			return
		}
		r.Value, r.Unit = float64(kpa), "kPa"
		r.Calculated = strconv.Itoa(kpa)
		r.Formatted = fmt.Sprintf("%dkPa", kpa)
	}
}

func EngineRPM(Units) Command {
	return live{name: "Engine RPM", pid: 0x0C, size: 2, kind: kindRPM}
}

func VehicleSpeed(u Units) Command {
	return live{name: "Vehicle Speed", pid: 0x0D, size: 1, kind: kindSpeed, units: u}
}

func EngineLoad(Units) Command {
	return live{name: "Engine Load", pid: 0x04, size: 1, kind: kindPercent}
}

func ThrottlePosition(Units) Command {
	return live{name: "Throttle Position", pid: 0x11, size: 1, kind: kindPercent}
}

func FuelLevel(Units) Command {
	return live{name: "Fuel Level", pid: 0x2F, size: 1, kind: kindPercent}
}

func CoolantTemperature(u Units) Command {
	return live{name: "Engine Coolant Temperature", pid: 0x05, size: 1, kind: kindTemperature, units: u}
}

func AirIntakeTemperature(u Units) Command {
	return live{name: "Air Intake Temperature", pid: 0x0F, size: 1, kind: kindTemperature, units: u}
}

func OilTemperature(u Units) Command {
	return live{name: "Engine oil temperature", pid: 0x5C, size: 1, kind: kindTemperature, units: u}
}

func IntakeManifoldPressure(u Units) Command {
	return live{name: "Intake Manifold Pressure", pid: 0x0B, size: 1, kind: kindPressure, units: u}
}

// IsNoData reports whether err is the adapter saying the vehicle did not
// answer, which is routine with the ignition off.
func IsNoData(err error) bool {
	return errors.Is(err, ErrNoData)
}
