package elm327

import (
	"fmt"

	gobug "go.bug.st/serial"
)

type BaudRate int

func (b BaudRate) Int() int {
	return int(b)
}

// Rates an ELM327 (or clone) can be strapped or programmed to.
const (
	Baud9600   BaudRate = 9600
	Baud19200  BaudRate = 19200
	Baud38400  BaudRate = 38400
	Baud57600  BaudRate = 57600
	Baud115200 BaudRate = 115200
	Baud230400 BaudRate = 230400
	Baud500000 BaudRate = 500000
)

var validBaudRates = []int{
	Baud9600.Int(), Baud19200.Int(), Baud38400.Int(), Baud57600.Int(),
	Baud115200.Int(), Baud230400.Int(), Baud500000.Int(),
}

type Parity gobug.Parity

func (pa Parity) Get() gobug.Parity {
	return gobug.Parity(pa)
}

const (
	ParityNone  = Parity(gobug.NoParity)
	ParityOdd   = Parity(gobug.OddParity)
	ParityEven  = Parity(gobug.EvenParity)
	ParityMark  = Parity(gobug.MarkParity)
	ParitySpace = Parity(gobug.SpaceParity)
)

// stopBits maps the human value (1, 1.5, 2) onto the driver enum.
func stopBits(v float64) (gobug.StopBits, error) {
	switch v {
	case 0, 1:
		return gobug.OneStopBit, nil
	case 1.5:
		return gobug.OnePointFiveStopBits, nil
	case 2:
		return gobug.TwoStopBits, nil
	}
	return 0, fmt.Errorf("unsupported stop bits %.1f", v)
}

// mode builds the driver mode for a validated config.
func mode(cfg Config) (*gobug.Mode, error) {
	sb, err := stopBits(cfg.StopBits)
	if err != nil {
		return nil, err
	}
	return &gobug.Mode{
		BaudRate: BaudRate(cfg.BaudRate).Int(),
		DataBits: cfg.DataBits,
		Parity:   Parity(cfg.Parity).Get(),
		StopBits: sb,
	}, nil
}
