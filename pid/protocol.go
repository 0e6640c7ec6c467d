package pid

import (
	"context"
	"time"
)

// Protocol is an OBD transport the adapter can be told to use.
type Protocol struct {
	Code string
	Name string
}

var (
	ProtocolAuto         = Protocol{"0", "AUTO"}
	ProtocolJ1850PWM     = Protocol{"1", "SAE_J1850_PWM"}
	ProtocolJ1850VPW     = Protocol{"2", "SAE_J1850_VPW"}
	ProtocolISO9141      = Protocol{"3", "ISO_9141_2"}
	ProtocolKWP2000      = Protocol{"4", "ISO_14230_4_KWP"}
	ProtocolKWP2000Fast  = Protocol{"5", "ISO_14230_4_KWP_FAST"}
	ProtocolCAN11Bit500K = Protocol{"6", "ISO_15765_4_CAN"}
	ProtocolCAN29Bit500K = Protocol{"7", "ISO_15765_4_CAN_B"}
	ProtocolCAN11Bit250K = Protocol{"8", "ISO_15765_4_CAN_C"}
	ProtocolCAN29Bit250K = Protocol{"9", "ISO_15765_4_CAN_D"}
	ProtocolJ1939        = Protocol{"A", "SAE_J1939_CAN"}
)

// Protocols lists every protocol in adapter code order.
var Protocols = []Protocol{
	ProtocolAuto, ProtocolJ1850PWM, ProtocolJ1850VPW, ProtocolISO9141,
	ProtocolKWP2000, ProtocolKWP2000Fast, ProtocolCAN11Bit500K,
	ProtocolCAN29Bit500K, ProtocolCAN11Bit250K, ProtocolCAN29Bit250K,
	ProtocolJ1939,
}

// LookupProtocol finds a protocol by name or code.
func LookupProtocol(s string) (Protocol, bool) {
	for _, p := range Protocols {
		if p.Name == s || p.Code == s {
			return p, true
		}
	}
	return Protocol{}, false
}

// atCommand is an adapter configuration command. Its result is the cleaned
// response, usually "OK".
type atCommand struct {
	name    string
	request string
}

func (c atCommand) Name() string    { return c.name }
func (c atCommand) Request() string { return c.request }

func (c atCommand) Run(ctx context.Context, e Execer) (Reading, error) {
	resp, err := exchange(ctx, e, c.request)
	r := Reading{
		Name:       c.name,
		Request:    c.request,
		Raw:        resp,
		Calculated: resp,
		Formatted:  resp,
		At:         time.Now(),
	}
	return r, err
}

// EchoOff stops the adapter from repeating each command.
func EchoOff() Command { return atCommand{"Echo Off", "AT E0"} }

// LineFeedOff drops the line feed after each carriage return.
func LineFeedOff() Command { return atCommand{"Line Feed Off", "AT L0"} }

// HeadersOff hides CAN/ISO headers so responses start at the mode byte.
func HeadersOff() Command { return atCommand{"Headers Off", "AT H0"} }

// SelectProtocol fixes the bus protocol, or lets the adapter search with
// ProtocolAuto.
func SelectProtocol(p Protocol) Command {
	return atCommand{"Select Protocol " + p.Name, "AT SP " + p.Code}
}

// Reset restarts the adapter. The response is its version banner.
func Reset() Command { return atCommand{"Reset OBD", "AT Z"} }

// Setup is the fixed sequence run after a link opens.
func Setup(p Protocol) []Command {
	return []Command{EchoOff(), LineFeedOff(), SelectProtocol(p)}
}
