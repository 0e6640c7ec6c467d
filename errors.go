package elm327

import "errors"

var (
	ErrClosed          = errors.New("elm327: link closed")
	ErrNotInitialized  = errors.New("elm327: service not initialized")
	ErrPortNotOpen     = errors.New("elm327: port not open")
	ErrInvalidPortName = errors.New("elm327: port not found or not a serial device")
	ErrInvalidBuffer   = errors.New("elm327: buffer is nil or empty")
	ErrBufferTooLarge  = errors.New("elm327: buffer exceeds maximum size")
	ErrWriteTimeout    = errors.New("elm327: write timed out")
)
