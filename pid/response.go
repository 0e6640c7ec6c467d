package pid

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Adapter answers that mean the request failed.
var (
	ErrNoData          = errors.New("no data")
	ErrUnableToConnect = errors.New("unable to connect")
	ErrStopped         = errors.New("stopped")
	ErrMisunderstood   = errors.New("command not understood")
	ErrBusBusy         = errors.New("bus busy")
	ErrBusError        = errors.New("bus error")
	ErrBusInit         = errors.New("bus init error")
	ErrCANError        = errors.New("can error")
	ErrDataError       = errors.New("data error")
	ErrAdapter         = errors.New("adapter error")

	// ErrNonNumeric is returned when a numeric PID answers with non-hex data.
	ErrNonNumeric = errors.New("non-numeric response")
	// ErrUnexpectedResponse is returned when the answer is hex but not for
	// the PID that was asked.
	ErrUnexpectedResponse = errors.New("unexpected response")
)

// ResponseError ties an adapter error to the command that caused it.
type ResponseError struct {
	Request  string
	Response string
	Err      error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: %s (%q)", e.Request, e.Err, e.Response)
}

func (e *ResponseError) Unwrap() error { return e.Err }

// Order matters: BUSINIT...ERROR must win over the bare ERROR.
var adapterErrors = []struct {
	match string
	err   error
}{
	{"UNABLETOCONNECT", ErrUnableToConnect},
	{"NODATA", ErrNoData},
	{"STOPPED", ErrStopped},
	{"BUSBUSY", ErrBusBusy},
	{"BUSINIT...ERROR", ErrBusInit},
	{"BUSERROR", ErrBusError},
	{"CANERROR", ErrCANError},
	{"DATAERROR", ErrDataError},
	{"ERROR", ErrAdapter},
}

// Clean removes protocol search chatter, whitespace and NUL padding from a
// raw response.
func Clean(raw string) string {
	s := strings.ToUpper(raw)
	s = strings.ReplaceAll(s, "SEARCHING...", "")
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == 0 {
			return -1
		}
		return r
	}, s)
	// A successful bus init ("BUS INIT: ...OK") is reported inline before
	// the data.
	s = strings.Replace(s, "BUSINIT:", "BUSINIT", 1)
	if strings.HasPrefix(s, "BUSINIT...") && !strings.HasPrefix(s, "BUSINIT...ERROR") {
		s = strings.TrimPrefix(s, "BUSINIT...")
		s = strings.TrimPrefix(s, "OK")
	}
	return s
}

// stripEcho drops the command text when the adapter still has echo on,
// which is always the case for the first setup command.
func stripEcho(cleaned, req string) string {
	echo := strings.ToUpper(strings.ReplaceAll(req, " ", ""))
	if echo != "" && strings.HasPrefix(cleaned, echo) {
		return cleaned[len(echo):]
	}
	return cleaned
}

func checkErrors(req, cleaned string) error {
	if cleaned == "?" {
		return &ResponseError{Request: req, Response: cleaned, Err: ErrMisunderstood}
	}
	for _, ae := range adapterErrors {
		if strings.Contains(cleaned, ae.match) {
			return &ResponseError{Request: req, Response: cleaned, Err: ae.err}
		}
	}
	return nil
}

// decodeHex parses a cleaned response into bytes.
func decodeHex(req, cleaned string) ([]byte, error) {
	if cleaned == "" || len(cleaned)%2 != 0 {
		return nil, &ResponseError{Request: req, Response: cleaned, Err: ErrNonNumeric}
	}
	b, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, &ResponseError{Request: req, Response: cleaned, Err: ErrNonNumeric}
	}
	return b, nil
}
