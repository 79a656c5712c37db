package rtno

import (
	"testing"

	"github.com/rjboer/rtnodrv/internal/protocol"
	"github.com/rjboer/rtnodrv/internal/wire"
)

// loopChannel is a minimal in-memory channel.ByteChannel for exercising the
// Session facade without real I/O.
type loopChannel struct {
	pending []byte
	sent    []byte
}

func (l *loopChannel) BytesAvailable() (int, error) { return len(l.pending), nil }

func (l *loopChannel) Read(p []byte) (int, error) {
	if len(l.pending) == 0 {
		return 0, nil
	}
	n := copy(p, l.pending)
	l.pending = l.pending[n:]
	return n, nil
}

func (l *loopChannel) Write(p []byte) error {
	l.sent = append(l.sent, p...)
	return nil
}

func (l *loopChannel) FlushRX() error {
	l.pending = nil
	return nil
}

func (l *loopChannel) Close() error { return nil }

func frame(cmd wire.Command, result wire.Result, data []byte) []byte {
	p, err := wire.New(cmd, result, data)
	if err != nil {
		panic(err)
	}
	body, err := p.Serialize()
	if err != nil {
		panic(err)
	}
	out := append([]byte{wire.StartByte, wire.StartByte}, body...)
	return append(out, p.Checksum())
}

func TestSessionGetStateRoundTrip(t *testing.T) {
	ch := &loopChannel{pending: frame(wire.CmdGetState, wire.ResultOK, []byte{byte(wire.StateActive)})}
	s := Open(ch, protocol.DefaultOptions())
	defer s.Close()

	state, err := s.GetState()
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state != wire.StateActive {
		t.Fatalf("GetState = %v, want %v", state, wire.StateActive)
	}
}

func TestSessionReceiveTypedValue(t *testing.T) {
	// RECEIVE_DATA replies carry name length, data length, name, data.
	reply := append([]byte{6, 1}, []byte("switch")...)
	reply = append(reply, 1)
	ch := &loopChannel{pending: frame(wire.CmdReceiveData, wire.ResultOK, reply)}
	s := Open(ch, protocol.DefaultOptions())
	defer s.Close()

	v, err := s.ReceiveBool("switch")
	if err != nil {
		t.Fatalf("ReceiveBool: %v", err)
	}
	if !v {
		t.Fatal("ReceiveBool = false, want true")
	}
}
