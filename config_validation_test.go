package elm327

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := DefaultConfig("/dev/rfcomm0")
	cfg.MetricsChannelSize = 50
	return cfg
}

func TestValidateConfig_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := ValidateConfig(&cfg); err != nil {
		t.Fatalf("expected valid config, got error: %v", err)
	}
}

func TestValidateConfig_EmptyPortName(t *testing.T) {
	cfg := validConfig()
	cfg.PortName = ""

	err := ValidateConfig(&cfg)
	if err == nil {
		t.Fatal("expected error for empty port name")
	}
	if !strings.Contains(err.Error(), "port name cannot be empty") {
		t.Fatalf("expected 'port name cannot be empty' error, got: %v", err)
	}
}

func TestValidateConfig_InvalidBaudRate(t *testing.T) {
	tests := []struct {
		baudRate int
		wantErr  bool
	}{
		{9600, false},
		{38400, false},
		{115200, false},
		{500000, false},
		{1200, true}, // below anything an ELM327 speaks
		{12345, true},
		{0, true},
		{-9600, true},
		{1000000, true},
	}

	for _, tt := range tests {
		cfg := validConfig()
		cfg.BaudRate = tt.baudRate
		err := ValidateConfig(&cfg)
		if (err != nil) != tt.wantErr {
			t.Fatalf("baudRate=%d: wantErr=%v, got %v", tt.baudRate, tt.wantErr, err)
		}
	}
}

func TestValidateConfig_InvalidDataBits(t *testing.T) {
	tests := []struct {
		dataBits int
		wantErr  bool
	}{
		{5, false},
		{7, false},
		{8, false},
		{4, true},
		{9, true},
		{0, true},
	}

	for _, tt := range tests {
		cfg := validConfig()
		cfg.DataBits = tt.dataBits
		err := ValidateConfig(&cfg)
		if (err != nil) != tt.wantErr {
			t.Fatalf("dataBits=%d: wantErr=%v, got %v", tt.dataBits, tt.wantErr, err)
		}
	}
}

func TestValidateConfig_InvalidParity(t *testing.T) {
	tests := []struct {
		parity  int
		wantErr bool
	}{
		{int(ParityNone), false},
		{int(ParityOdd), false},
		{int(ParityEven), false},
		{int(ParityMark), false},
		{int(ParitySpace), false},
		{-1, true},
		{99, true},
	}

	for _, tt := range tests {
		cfg := validConfig()
		cfg.Parity = tt.parity
		err := ValidateConfig(&cfg)
		if (err != nil) != tt.wantErr {
			t.Fatalf("parity=%d: wantErr=%v, got %v", tt.parity, tt.wantErr, err)
		}
	}
}

func TestValidateConfig_InvalidStopBits(t *testing.T) {
	tests := []struct {
		stopBits float64
		wantErr  bool
	}{
		{0, false},
		{1, false},
		{1.5, false},
		{2, false},
		{3, true},
		{0.5, true},
	}

	for _, tt := range tests {
		cfg := validConfig()
		cfg.StopBits = tt.stopBits
		err := ValidateConfig(&cfg)
		if (err != nil) != tt.wantErr {
			t.Fatalf("stopBits=%.1f: wantErr=%v, got %v", tt.stopBits, tt.wantErr, err)
		}
	}
}

func TestValidateConfig_NegativeTimeouts(t *testing.T) {
	cfg := validConfig()
	cfg.ReadTimeout = -time.Second
	if err := ValidateConfig(&cfg); err == nil || !strings.Contains(err.Error(), "read timeout") {
		t.Fatalf("expected read timeout error, got: %v", err)
	}

	cfg = validConfig()
	cfg.WriteTimeout = -time.Second
	if err := ValidateConfig(&cfg); err == nil || !strings.Contains(err.Error(), "write timeout") {
		t.Fatalf("expected write timeout error, got: %v", err)
	}
}

func TestValidateConfig_Framing(t *testing.T) {
	cfg := validConfig()
	cfg.Terminator = '>'
	if err := ValidateConfig(&cfg); err == nil || !strings.Contains(err.Error(), "must differ") {
		t.Fatalf("expected terminator/prompt error, got: %v", err)
	}

	cfg = validConfig()
	cfg.MaxResponseSize = MaxBufferSize + 1
	if err := ValidateConfig(&cfg); err == nil {
		t.Fatal("expected error for oversized max response size")
	}
}

func TestValidateConfig_InvalidMetricsChannelSize(t *testing.T) {
	for _, size := range []int{-1, 10001} {
		cfg := validConfig()
		cfg.MetricsChannelSize = size
		if err := ValidateConfig(&cfg); err == nil {
			t.Fatalf("size=%d: expected error", size)
		}
	}
}

func TestValidateAttachConfig_SkipsSerialChecks(t *testing.T) {
	cfg := Config{PortName: "", BaudRate: 0}
	if err := validateAttachConfig(&cfg); err != nil {
		t.Fatalf("attached links carry no serial settings, got: %v", err)
	}
}

func TestIsPortAvailable_PathTraversal(t *testing.T) {
	ok, err := isPortAvailable("/dev/../etc/passwd")
	if err == nil || ok {
		t.Fatal("expected error for path traversal attempt")
	}
	if !strings.Contains(err.Error(), "path traversal") {
		t.Fatalf("expected 'path traversal' error, got: %v", err)
	}
}

func TestIsPortAvailable_UsesPortList(t *testing.T) {
	orig := getPortsList
	t.Cleanup(func() { getPortsList = orig })
	getPortsList = func() ([]string, error) { return []string{"/dev/rfcomm0", "/dev/ttyUSB0"}, nil }

	tests := []struct {
		portName string
		want     bool
		wantErr  bool
	}{
		{"/dev/rfcomm0", true, false},
		{"/dev/ttyUSB0", true, false},
		{"/dev/ttyUSB1", false, false},
		{"/tmp/malicious", false, true},
		{"INVALID", false, true},
	}

	for _, tt := range tests {
		got, err := isPortAvailable(tt.portName)
		if (err != nil) != tt.wantErr {
			t.Fatalf("portName=%s: wantErr=%v, got %v", tt.portName, tt.wantErr, err)
		}
		if got != tt.want {
			t.Fatalf("portName=%s: got %v, want %v", tt.portName, got, tt.want)
		}
	}
}

func TestIsValidPortPattern(t *testing.T) {
	tests := []struct {
		portName string
		want     bool
	}{
		{"COM1", true},
		{"COM99", true},
		{"COM999", true},
		{"COMPORT", false},
		{"COM", false},
		{"/dev/rfcomm0", true},
		{"/dev/rfcomm12", true},
		{"/dev/ttyUSB0", true},
		{"/dev/ttyACM0", true},
		{"/dev/cu.OBDII-SPPDev", true},
		{"/tmp/fake", false},
		{"/etc/passwd", false},
		{"", false},
		{"/dev/null", false},
	}

	for _, tt := range tests {
		got := isValidPortPattern(tt.portName)
		if got != tt.want {
			t.Fatalf("isValidPortPattern(%q) = %v, want %v", tt.portName, got, tt.want)
		}
	}
}

func TestStopBitsMapping(t *testing.T) {
	for _, v := range []float64{0, 1, 1.5, 2} {
		if _, err := stopBits(v); err != nil {
			t.Fatalf("stopBits(%.1f): %v", v, err)
		}
	}
	if _, err := stopBits(3); err == nil {
		t.Fatal("expected error for 3 stop bits")
	}
}
