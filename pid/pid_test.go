package pid

import (
	"context"
	"errors"
	"testing"
)

// scripted answers each request with a canned adapter response.
type scripted struct {
	answers map[string]string
	err     error
	sent    []string
}

func (s *scripted) Exec(_ context.Context, cmd string) (string, error) {
	s.sent = append(s.sent, cmd)
	if s.err != nil {
		return "", s.err
	}
	return s.answers[cmd], nil
}

func run(t *testing.T, c Command, resp string) (Reading, error) {
	t.Helper()
	ex := &scripted{answers: map[string]string{c.Request(): resp}}
	return c.Run(context.Background(), ex)
}

func TestLiveDecoding(t *testing.T) {
	tests := []struct {
		name       string
		cmd        Command
		resp       string
		calculated string
		formatted  string
	}{
		{"rpm", EngineRPM(Metric), "41 0C 1A F8", "1726", "1726RPM"},
		{"rpm idle", EngineRPM(Metric), "41 0C 0B 54\r", "725", "725RPM"},
		{"speed", VehicleSpeed(Metric), "41 0D 32", "50", "50km/h"},
		{"speed mph", VehicleSpeed(Imperial), "41 0D 64", "62.14", "62.14mph"},
		{"load", EngineLoad(Metric), "41 04 FF", "100.0", "100.0%"},
		{"load zero", EngineLoad(Metric), "41 04 00", "0.0", "0.0%"},
		{"throttle", ThrottlePosition(Metric), "41 11 33", "20.0", "20.0%"},
		{"fuel", FuelLevel(Metric), "41 2F 80", "50.2", "50.2%"},
		{"coolant", CoolantTemperature(Metric), "41 05 7B", "83", "83.0C"},
		{"coolant below zero", CoolantTemperature(Metric), "41 05 1E", "-10", "-10.0C"},
		{"coolant fahrenheit", CoolantTemperature(Imperial), "41 05 64", "140", "140.0F"},
		{"air intake", AirIntakeTemperature(Metric), "41 0F 46", "30", "30.0C"},
		{"oil", OilTemperature(Metric), "41 5C 82", "90", "90.0C"},
		{"manifold", IntakeManifoldPressure(Metric), "41 0B 65", "101", "101kPa"},
		{"manifold psi", IntakeManifoldPressure(Imperial), "41 0B 64", "14.5", "14.5psi"},
		{"searching first", EngineRPM(Metric), "SEARCHING...\r41 0C 0F A0", "1000", "1000RPM"},
		{"two ecus", VehicleSpeed(Metric), "41 0D 10\r41 0D 11", "16", "16km/h"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := run(t, tt.cmd, tt.resp)
			if err != nil {
				t.Fatalf("Run error: %v", err)
			}
			if r.Calculated != tt.calculated {
				t.Fatalf("calculated: want %q, got %q", tt.calculated, r.Calculated)
			}
			if r.Formatted != tt.formatted {
				t.Fatalf("formatted: want %q, got %q", tt.formatted, r.Formatted)
			}
			if r.Name != tt.cmd.Name() {
				t.Fatalf("name: want %q, got %q", tt.cmd.Name(), r.Name)
			}
		})
	}
}

func TestLiveRequestText(t *testing.T) {
	if got := EngineRPM(Metric).Request(); got != "01 0C" {
		t.Fatalf("unexpected request %q", got)
	}
	if got := OilTemperature(Metric).Request(); got != "01 5C" {
		t.Fatalf("unexpected request %q", got)
	}
}

func TestAdapterErrors(t *testing.T) {
	tests := []struct {
		resp string
		want error
	}{
		{"NO DATA", ErrNoData},
		{"SEARCHING...\rUNABLE TO CONNECT", ErrUnableToConnect},
		{"STOPPED", ErrStopped},
		{"?", ErrMisunderstood},
		{"BUS BUSY", ErrBusBusy},
		{"BUS ERROR", ErrBusError},
		{"BUS INIT: ...ERROR", ErrBusInit},
		{"CAN ERROR", ErrCANError},
		{"DATA ERROR", ErrDataError},
		{"ERROR", ErrAdapter},
	}

	for _, tt := range tests {
		_, err := run(t, EngineRPM(Metric), tt.resp)
		if !errors.Is(err, tt.want) {
			t.Fatalf("%q: want %v, got %v", tt.resp, tt.want, err)
		}
		var re *ResponseError
		if !errors.As(err, &re) || re.Request != "01 0C" {
			t.Fatalf("%q: expected ResponseError for 01 0C, got %#v", tt.resp, err)
		}
	}
}

func TestNonNumericAndUnexpected(t *testing.T) {
	if _, err := run(t, EngineRPM(Metric), "41 0C ZZ"); !errors.Is(err, ErrNonNumeric) {
		t.Fatalf("expected ErrNonNumeric, got %v", err)
	}
	if _, err := run(t, EngineRPM(Metric), "41 0D 32"); !errors.Is(err, ErrUnexpectedResponse) {
		t.Fatalf("expected ErrUnexpectedResponse, got %v", err)
	}
	// one data byte where two are needed
	if _, err := run(t, EngineRPM(Metric), "41 0C 1A"); !errors.Is(err, ErrUnexpectedResponse) {
		t.Fatalf("expected ErrUnexpectedResponse for short answer, got %v", err)
	}
}

func TestExecErrorIsReturned(t *testing.T) {
	boom := errors.New("link down")
	_, err := EngineLoad(Metric).Run(context.Background(), &scripted{err: boom})
	if !errors.Is(err, boom) {
		t.Fatalf("expected link error, got %v", err)
	}
}

func TestIsNoData(t *testing.T) {
	_, err := run(t, VehicleSpeed(Metric), "NO DATA")
	if !IsNoData(err) {
		t.Fatalf("expected IsNoData for %v", err)
	}
	if IsNoData(errors.New("other")) {
		t.Fatal("plain error reported as no data")
	}
}

func TestClean(t *testing.T) {
	tests := map[string]string{
		"41 0C 1A F8\r\r":          "410C1AF8",
		"searching...\r41 0d 00":   "410D00",
		"BUS INIT: ...OK\r41 05 7B": "41057B",
		"\x0041 04 20":             "410420",
	}
	for in, want := range tests {
		if got := Clean(in); got != want {
			t.Fatalf("Clean(%q): want %q, got %q", in, want, got)
		}
	}
}
