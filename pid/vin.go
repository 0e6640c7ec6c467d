package pid

import (
	"context"
	"regexp"
	"strings"
	"time"
)

// frameIndex matches the "N:" sequence numbers ELM327 prints in front of
// each ISO 15765 consecutive frame.
var frameIndex = regexp.MustCompile(`[0-9A-F]:`)

// legacyHeader matches the "49 02 0N" prefix each KWP/ISO 9141 line repeats.
var legacyHeader = regexp.MustCompile(`49020[0-9A-F]`)

type vin struct{}

// VIN reads the vehicle identification number (mode 09 PID 02).
func VIN(Units) Command { return vin{} }

func (vin) Name() string    { return "Vehicle Identification Number (VIN)" }
func (vin) Request() string { return "09 02" }

func (c vin) Run(ctx context.Context, e Execer) (Reading, error) {
	req := c.Request()
	r := Reading{Name: c.Name(), Request: req, At: time.Now()}

	resp, err := exchange(ctx, e, req)
	r.Raw = resp
	if err != nil {
		return r, err
	}

	v, err := decodeVIN(req, resp)
	if err != nil {
		return r, err
	}
	r.Calculated, r.Formatted = v, v
	return r, nil
}

// decodeVIN handles both the CAN multi-frame layout
//
//	014 0:490201314734 1:4A433534343452 2:37323532363739
//
// and the older one-line-per-message layout
//
//	490201000000 31 490202... (five lines)
func decodeVIN(req, resp string) (string, error) {
	data := resp
	if strings.Contains(data, ":") {
		// drop the byte count in front of the first frame
		if i := strings.Index(data, "0:"); i >= 0 {
			data = data[i:]
		}
		data = frameIndex.ReplaceAllString(data, "")
		if strings.HasPrefix(data, "4902") && len(data) >= 6 {
			data = data[6:]
		}
	} else {
		data = legacyHeader.ReplaceAllString(data, "")
	}

	b, err := decodeHex(req, data)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, c := range b {
		// padding and control bytes are not part of the VIN
		if c >= 0x20 && c < 0x7F {
			sb.WriteByte(c)
		}
	}
	if sb.Len() == 0 {
		return "", &ResponseError{Request: req, Response: resp, Err: ErrUnexpectedResponse}
	}
	return sb.String(), nil
}
