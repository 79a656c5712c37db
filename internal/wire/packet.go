package wire

import "fmt"

// StartByte is repeated twice to form the packet sentinel.
const StartByte = 0x0A

// MaxPayload is the largest payload a single packet may carry; the length
// field on the wire is one byte wide.
const MaxPayload = 252

// HeaderSize is the number of bytes preceding the payload once the sentinel
// has been consumed: command, result, length.
const HeaderSize = 3

// Packet is the atomic unit exchanged with the device.
type Packet struct {
	Command Command
	Result  Result
	Data    []byte
}

// New builds a packet, returning an error if the payload exceeds MaxPayload.
func New(cmd Command, result Result, data []byte) (Packet, error) {
	if len(data) > MaxPayload {
		return Packet{}, fmt.Errorf("wire: payload length %d exceeds max %d", len(data), MaxPayload)
	}
	return Packet{Command: cmd, Result: result, Data: data}, nil
}

// Length returns the payload byte count.
func (p Packet) Length() uint8 {
	return uint8(len(p.Data))
}

// Checksum computes the 8-bit sum of command, result, length and every
// payload byte, wrapping modulo 256.
func (p Packet) Checksum() uint8 {
	sum := uint8(p.Command) + uint8(p.Result) + p.Length()
	for _, b := range p.Data {
		sum += b
	}
	return sum
}

// Serialize encodes command, result, length and payload: the part of the
// frame between the sentinel and the trailing checksum byte. The sentinel
// and checksum are the transport's responsibility (see internal/transport).
func (p Packet) Serialize() ([]byte, error) {
	if len(p.Data) > MaxPayload {
		return nil, fmt.Errorf("wire: payload length %d exceeds max %d", len(p.Data), MaxPayload)
	}
	buf := make([]byte, HeaderSize+len(p.Data))
	buf[0] = byte(p.Command)
	buf[1] = byte(p.Result)
	buf[2] = p.Length()
	copy(buf[HeaderSize:], p.Data)
	return buf, nil
}

// ParseHeader decodes the three fixed header bytes (command, result,
// length) that follow the sentinel.
func ParseHeader(header [HeaderSize]byte) (cmd Command, result Result, length uint8) {
	return Command(header[0]), Result(header[1]), header[2]
}

// Parse assembles a Packet from a decoded header and its payload. The
// caller is responsible for having read exactly `length` payload bytes and
// for checksum verification (the transport layer owns both).
func Parse(cmd Command, result Result, payload []byte) Packet {
	data := make([]byte, len(payload))
	copy(data, payload)
	return Packet{Command: cmd, Result: result, Data: data}
}

func (p Packet) String() string {
	return fmt.Sprintf("Packet(command=%s, result=%s, length=%d, data=% X)", p.Command, p.Result, p.Length(), p.Data)
}
