// Package transport implements the framed packet exchange on top of a
// channel.ByteChannel: sentinel resynchronization, the four timeout
// sub-kinds, and checksum verification. It knows nothing about commands or
// retry policy; see internal/protocol for that.
package transport

import (
	"fmt"
	"time"

	"github.com/rjboer/rtnodrv/internal/channel"
	"github.com/rjboer/rtnodrv/internal/wire"
)

// Deadlines groups the four independent timeout budgets Receive applies
// while assembling one packet. Each is reset at the start of its own
// phase; channel.NoDeadline waits forever.
type Deadlines struct {
	Start    time.Duration
	Header   time.Duration
	Body     time.Duration
	Checksum time.Duration
}

// Transport drives one ByteChannel.
type Transport struct {
	ch channel.ByteChannel
}

// New wraps ch.
func New(ch channel.ByteChannel) *Transport {
	return &Transport{ch: ch}
}

// ClearRXBuffer discards unread bytes, used by the caller's retry policy
// after a checksum error or timeout.
func (t *Transport) ClearRXBuffer() error {
	return t.ch.FlushRX()
}

// Send writes the sentinel, header, payload and trailing checksum byte.
func (t *Transport) Send(p wire.Packet) error {
	body, err := p.Serialize()
	if err != nil {
		return err
	}
	frame := make([]byte, 0, 2+len(body)+1)
	frame = append(frame, wire.StartByte, wire.StartByte)
	frame = append(frame, body...)
	frame = append(frame, p.Checksum())
	return t.ch.Write(frame)
}

// deadlineOf returns the absolute deadline for budget, and whether the wait
// is unbounded.
func deadlineOf(budget time.Duration) (time.Time, bool) {
	if budget == channel.NoDeadline {
		return time.Time{}, true
	}
	return time.Now().Add(budget), false
}

// pollInterval is the sleep between reads while waiting for bytes to
// arrive, so an empty channel is not spun on at full speed.
const pollInterval = 50 * time.Microsecond

// IsNew busy-polls for the two-byte start sentinel within budget. A lone
// StartByte followed by a non-StartByte byte restarts the search from that
// second byte.
func (t *Transport) IsNew(budget time.Duration) (bool, error) {
	deadline, unbounded := deadlineOf(budget)
	sawStart := false
	var one [1]byte
	for {
		n, err := t.ch.Read(one[:])
		if err != nil {
			return false, err
		}
		if n == 1 {
			if one[0] == wire.StartByte {
				if sawStart {
					return true, nil
				}
				sawStart = true
			} else {
				sawStart = false
			}
			if !unbounded && time.Now().After(deadline) {
				return false, nil
			}
			continue
		}
		if !unbounded && time.Now().After(deadline) {
			return false, nil
		}
		time.Sleep(pollInterval)
	}
}

// readN busy-polls until n bytes are available, then reads exactly n bytes.
// It reports false if budget elapses first.
func (t *Transport) readN(n int, budget time.Duration) ([]byte, bool, error) {
	if n == 0 {
		return nil, true, nil
	}
	deadline, unbounded := deadlineOf(budget)
	for {
		avail, err := t.ch.BytesAvailable()
		if err != nil {
			return nil, false, err
		}
		if avail >= n {
			buf := make([]byte, 0, n)
			for len(buf) < n {
				scratch := make([]byte, n-len(buf))
				m, err := t.ch.Read(scratch)
				if err != nil {
					return nil, false, err
				}
				buf = append(buf, scratch[:m]...)
			}
			return buf, true, nil
		}
		if !unbounded && time.Now().After(deadline) {
			return nil, false, nil
		}
		time.Sleep(pollInterval)
	}
}

// TimeoutError reports which of the four timeout sub-kinds fired.
type TimeoutError struct {
	Result wire.Result
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("transport: %s", e.Result)
}

// ChecksumError indicates the trailing checksum byte did not match the
// header and payload.
type ChecksumError struct {
	Want, Got uint8
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("transport: checksum mismatch: computed 0x%02X, received 0x%02X", e.Want, e.Got)
}

// Receive waits for one full, checksum-verified packet, applying d's four
// independent timeout budgets in sequence: Start while searching for the
// sentinel, Header for the 3-byte command/result/length, Body for the
// payload, Checksum for the trailing byte.
func (t *Transport) Receive(d Deadlines) (wire.Packet, error) {
	found, err := t.IsNew(d.Start)
	if err != nil {
		return wire.Packet{}, err
	}
	if !found {
		return wire.Packet{}, &TimeoutError{wire.ResultPacketStartTimeout}
	}

	headerBytes, ok, err := t.readN(wire.HeaderSize, d.Header)
	if err != nil {
		return wire.Packet{}, err
	}
	if !ok {
		return wire.Packet{}, &TimeoutError{wire.ResultPacketHeaderTimeout}
	}
	var header [wire.HeaderSize]byte
	copy(header[:], headerBytes)
	cmd, result, length := wire.ParseHeader(header)

	payload, ok, err := t.readN(int(length), d.Body)
	if err != nil {
		return wire.Packet{}, err
	}
	if !ok {
		return wire.Packet{}, &TimeoutError{wire.ResultPacketBodyTimeout}
	}

	checksumByte, ok, err := t.readN(1, d.Checksum)
	if err != nil {
		return wire.Packet{}, err
	}
	if !ok {
		return wire.Packet{}, &TimeoutError{wire.ResultPacketChecksumTimeout}
	}

	p := wire.Parse(cmd, result, payload)
	want := p.Checksum()
	got := checksumByte[0]
	if want != got {
		return wire.Packet{}, &ChecksumError{Want: want, Got: got}
	}
	return p, nil
}
