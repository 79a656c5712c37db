// Package rtno is the public facade over the device driver: it wires a
// channel.ByteChannel through internal/transport and internal/protocol and
// exposes the operations a caller needs, without requiring callers to know
// about those internal layers.
package rtno

import (
	"fmt"
	"time"

	"github.com/rjboer/rtnodrv/internal/channel"
	"github.com/rjboer/rtnodrv/internal/channel/serialchan"
	"github.com/rjboer/rtnodrv/internal/channel/tcpchan"
	"github.com/rjboer/rtnodrv/internal/logging"
	"github.com/rjboer/rtnodrv/internal/protocol"
	"github.com/rjboer/rtnodrv/internal/transport"
	"github.com/rjboer/rtnodrv/internal/wire"
)

// Session is a live connection to one device component.
type Session struct {
	ch       channel.ByteChannel
	protocol *protocol.Client
}

// Open constructs a Session over ch, owning its lifecycle: Close closes ch.
func Open(ch channel.ByteChannel, opts protocol.Options) *Session {
	return &Session{
		ch:       ch,
		protocol: protocol.New(transport.New(ch), opts),
	}
}

// OpenSerial opens a serial port and returns a Session over it.
func OpenSerial(portName string, baud int, opts protocol.Options) (*Session, error) {
	ch, err := serialchan.Open(portName, baud)
	if err != nil {
		return nil, fmt.Errorf("rtno: open serial %s: %w", portName, err)
	}
	return Open(ch, opts), nil
}

// OpenTCP dials a cmd/rtno-bridge tunnel (or any device speaking the TCP
// variant of the protocol directly) and returns a Session over it.
func OpenTCP(addr string, dialTimeout time.Duration, opts protocol.Options) (*Session, error) {
	ch, err := tcpchan.Dial(addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("rtno: dial %s: %w", addr, err)
	}
	return Open(ch, opts), nil
}

// Close releases the underlying channel. The device side is left exactly
// as it was; there is no explicit teardown handshake in this protocol.
func (s *Session) Close() error {
	return s.ch.Close()
}

// GetState queries the component's lifecycle state.
func (s *Session) GetState() (wire.State, error) { return s.protocol.GetState() }

// GetECType queries which execution context schedules the component.
func (s *Session) GetECType() (wire.ExecutionContext, error) { return s.protocol.GetECType() }

// Activate transitions the component to its active state.
func (s *Session) Activate() error { return s.protocol.Activate() }

// Deactivate transitions the component to its inactive state.
func (s *Session) Deactivate() error { return s.protocol.Deactivate() }

// Execute runs one step of the component.
func (s *Session) Execute() error { return s.protocol.Execute() }

// GetLog retrieves and clears the component's pending log buffer.
func (s *Session) GetLog() (string, error) { return s.protocol.GetLog() }

// ReceiveLogData retrieves and clears the component's pending log buffer as
// raw bytes.
func (s *Session) ReceiveLogData() ([]byte, error) { return s.protocol.ReceiveLogData() }

// GetProfile requests the component's platform and port profile.
func (s *Session) GetProfile() (protocol.Profile, error) { return s.protocol.GetProfile() }

// SendInportData writes raw bytes to a named input port.
func (s *Session) SendInportData(name string, data []byte) error {
	return s.protocol.SendInportData(name, data)
}

// ReceiveOutportData reads raw bytes from a named output port.
func (s *Session) ReceiveOutportData(name string) ([]byte, error) {
	return s.protocol.ReceiveOutportData(name)
}

// Typed convenience wrappers, forwarding to the underlying protocol client.

func (s *Session) SendBool(name string, v bool) error { return s.protocol.SendBool(name, v) }
func (s *Session) SendChar(name string, v byte) error { return s.protocol.SendChar(name, v) }
func (s *Session) SendU8(name string, v uint8) error { return s.protocol.SendU8(name, v) }
func (s *Session) SendI32(name string, v int32) error { return s.protocol.SendI32(name, v) }
func (s *Session) SendF32(name string, v float32) error { return s.protocol.SendF32(name, v) }
func (s *Session) SendF64(name string, v float64) error { return s.protocol.SendF64(name, v) }

func (s *Session) SendBoolSeq(name string, vs []bool) error { return s.protocol.SendBoolSeq(name, vs) }
func (s *Session) SendI32Seq(name string, vs []int32) error { return s.protocol.SendI32Seq(name, vs) }
func (s *Session) SendF32Seq(name string, vs []float32) error { return s.protocol.SendF32Seq(name, vs) }
func (s *Session) SendF64Seq(name string, vs []float64) error { return s.protocol.SendF64Seq(name, vs) }

func (s *Session) ReceiveBool(name string) (bool, error) { return s.protocol.ReceiveBool(name) }
func (s *Session) ReceiveChar(name string) (byte, error) { return s.protocol.ReceiveChar(name) }
func (s *Session) ReceiveU8(name string) (uint8, error) { return s.protocol.ReceiveU8(name) }
func (s *Session) ReceiveI32(name string) (int32, error) { return s.protocol.ReceiveI32(name) }
func (s *Session) ReceiveF32(name string) (float32, error) { return s.protocol.ReceiveF32(name) }
func (s *Session) ReceiveF64(name string) (float64, error) { return s.protocol.ReceiveF64(name) }

func (s *Session) ReceiveBoolSeq(name string) ([]bool, error) { return s.protocol.ReceiveBoolSeq(name) }
func (s *Session) ReceiveI32Seq(name string) ([]int32, error) { return s.protocol.ReceiveI32Seq(name) }
func (s *Session) ReceiveF32Seq(name string) ([]float32, error) {
	return s.protocol.ReceiveF32Seq(name)
}
func (s *Session) ReceiveF64Seq(name string) ([]float64, error) {
	return s.protocol.ReceiveF64Seq(name)
}

// DefaultLogger returns internal/logging's process-wide default logger, the
// one a Session uses when Options.Logger is nil. It does not replace it.
func DefaultLogger() logging.Logger { return logging.Default() }
