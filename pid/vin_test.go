package pid

import (
	"context"
	"errors"
	"testing"
)

func TestVINMultiFrame(t *testing.T) {
	resp := "014\r0: 49 02 01 31 47 34\r1: 4A 43 35 34 34 34 52\r2: 37 32 35 32 36 37 39\r\r"
	r, err := run(t, VIN(Metric), resp)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if r.Calculated != "1G4JC5444R7252679" {
		t.Fatalf("unexpected VIN %q", r.Calculated)
	}
	if r.Formatted != r.Calculated {
		t.Fatalf("formatted %q differs from calculated %q", r.Formatted, r.Calculated)
	}
}

func TestVINLegacyLines(t *testing.T) {
	resp := "49 02 01 00 00 00 31\r" +
		"49 02 02 47 34 4A 43\r" +
		"49 02 03 35 34 34 34\r" +
		"49 02 04 52 37 32 35\r" +
		"49 02 05 32 36 37 39\r"
	r, err := run(t, VIN(Metric), resp)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if r.Calculated != "1G4JC5444R7252679" {
		t.Fatalf("unexpected VIN %q", r.Calculated)
	}
}

func TestVINNoData(t *testing.T) {
	_, err := run(t, VIN(Metric), "NO DATA")
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestVINOnlyPadding(t *testing.T) {
	_, err := run(t, VIN(Metric), "49 02 01 00 00 00 00")
	if !errors.Is(err, ErrUnexpectedResponse) {
		t.Fatalf("expected ErrUnexpectedResponse, got %v", err)
	}
}

func TestVINRequest(t *testing.T) {
	ex := &scripted{answers: map[string]string{}}
	_, _ = VIN(Metric).Run(context.Background(), ex)
	if len(ex.sent) != 1 || ex.sent[0] != "09 02" {
		t.Fatalf("unexpected requests %v", ex.sent)
	}
}
