package protocol

import (
	"testing"
	"time"

	"github.com/rjboer/rtnodrv/internal/wire"
)

// fakeChannel is an in-memory channel.ByteChannel: Write appends to Sent,
// Read drains Pending. Tests preload Pending with the bytes a device would
// have replied with, or queue per-request replies so each write makes the
// next one readable. revealAfter/lateReply simulate a reply that only
// becomes readable once revealAfter has elapsed since the channel was
// built, checked synchronously inside Read (no goroutines, no races), so a
// retry path can be exercised deterministically against wall time.
type fakeChannel struct {
	Pending []byte
	Sent    []byte
	flushes int

	// replies are appended to Pending one element per Write, emulating a
	// device that answers each request it hears.
	replies [][]byte

	start       time.Time
	revealAfter time.Duration
	lateReply   []byte
}

func (f *fakeChannel) BytesAvailable() (int, error) { return len(f.Pending), nil }

func (f *fakeChannel) Read(p []byte) (int, error) {
	if len(f.Pending) == 0 && f.lateReply != nil && time.Since(f.start) >= f.revealAfter {
		f.Pending = f.lateReply
		f.lateReply = nil
	}
	if len(f.Pending) == 0 {
		return 0, nil
	}
	n := copy(p, f.Pending)
	f.Pending = f.Pending[n:]
	return n, nil
}

func (f *fakeChannel) Write(p []byte) error {
	f.Sent = append(f.Sent, p...)
	if len(f.replies) > 0 {
		f.Pending = append(f.Pending, f.replies[0]...)
		f.replies = f.replies[1:]
	}
	return nil
}

func (f *fakeChannel) FlushRX() error {
	f.flushes++
	f.Pending = nil
	return nil
}

func (f *fakeChannel) Close() error { return nil }

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
	out = append(out, p.Checksum())
	return out
}

func testOptions() Options {
	return Options{
		CommandWait:    50 * time.Millisecond,
		DataWait:       50 * time.Millisecond,
		CommandRetries: 2,
		DataRetries:    2,
	}
}

func TestGetStateRoundTrip(t *testing.T) {
	ch := &fakeChannel{Pending: frame(wire.CmdGetState, wire.ResultOK, []byte{byte(wire.StateActive)})}
	c := NewWithChannel(ch, testOptions())

	state, err := c.GetState()
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state != wire.StateActive {
		t.Fatalf("GetState = %v, want %v", state, wire.StateActive)
	}
}

func TestHeartBeatIsIgnored(t *testing.T) {
	ch := &fakeChannel{}
	ch.Pending = append(ch.Pending, frame(wire.CmdHeartBeat, wire.ResultOK, nil)...)
	ch.Pending = append(ch.Pending, frame(wire.CmdGetState, wire.ResultOK, []byte{byte(wire.StateInactive)})...)
	c := NewWithChannel(ch, testOptions())

	state, err := c.GetState()
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state != wire.StateInactive {
		t.Fatalf("GetState = %v, want %v", state, wire.StateInactive)
	}
}

func TestPacketErrorIsNotRetried(t *testing.T) {
	ch := &fakeChannel{Pending: frame(wire.CmdPacketError, wire.ResultErr, nil)}
	c := NewWithChannel(ch, testOptions())

	_, err := c.GetState()
	if err == nil {
		t.Fatal("expected error")
	}
	perr, ok := err.(*ProtocolError)
	if !ok {
		t.Fatalf("err = %v (%T), want *ProtocolError", err, err)
	}
	if perr.Command != wire.CmdPacketError {
		t.Fatalf("ProtocolError.Command = %v, want PACKET_ERROR", perr.Command)
	}
	if ch.flushes != 0 {
		t.Fatalf("flushes = %d, want 0 (PACKET_ERROR must not retry)", ch.flushes)
	}
}

func TestActivateResultError(t *testing.T) {
	ch := &fakeChannel{Pending: frame(wire.CmdActivate, wire.ResultErr, nil)}
	c := NewWithChannel(ch, testOptions())

	err := c.Activate()
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestRetriesOnTimeoutThenSucceeds(t *testing.T) {
	// No bytes are available until well after the first attempt's
	// PACKET_START_TIMEOUT has certainly fired, so the reply is only seen
	// by the retried attempt.
	ch := &fakeChannel{
		start:       time.Now(),
		revealAfter: 80 * time.Millisecond,
		lateReply:   frame(wire.CmdGetState, wire.ResultOK, []byte{byte(wire.StateActive)}),
	}
	c := NewWithChannel(ch, testOptions())

	state, err := c.GetState()
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state != wire.StateActive {
		t.Fatalf("GetState = %v, want %v", state, wire.StateActive)
	}
	if ch.flushes == 0 {
		t.Fatal("expected at least one ClearRXBuffer call during retry")
	}
}

// receiveDataReply lays out a RECEIVE_DATA reply payload: name length,
// data length, name, data.
func receiveDataReply(name string, data []byte) []byte {
	out := []byte{byte(len(name)), byte(len(data))}
	out = append(out, name...)
	return append(out, data...)
}

func TestReceiveOutportData(t *testing.T) {
	ch := &fakeChannel{Pending: frame(wire.CmdReceiveData, wire.ResultOK, receiveDataReply("counter", []byte{0x2A}))}
	c := NewWithChannel(ch, testOptions())

	v, err := c.ReceiveU8("counter")
	if err != nil {
		t.Fatalf("ReceiveU8: %v", err)
	}
	if v != 0x2A {
		t.Fatalf("ReceiveU8 = %d, want 42", v)
	}
}

func TestSendF64NarrowsOnTheWire(t *testing.T) {
	ch := &fakeChannel{replies: [][]byte{frame(wire.CmdSendData, wire.ResultOK, nil)}}
	c := NewWithChannel(ch, testOptions())

	if err := c.SendF64("double_in", 3.0); err != nil {
		t.Fatalf("SendF64: %v", err)
	}

	// Sent frame: sentinel, command, result, length, then the SEND_DATA
	// payload whose final four bytes must be IEEE-754 single for 3.0.
	name := "double_in"
	wantLen := 2 + len(name) + 4
	payload := ch.Sent[5 : 5+wantLen]
	if int(ch.Sent[4]) != wantLen {
		t.Fatalf("wire length = %d, want %d (f64 must narrow to 4 bytes)", ch.Sent[4], wantLen)
	}
	if payload[1] != 4 {
		t.Fatalf("data length byte = %d, want 4", payload[1])
	}
	data := payload[2+len(name):]
	want := []byte{0x00, 0x00, 0x40, 0x40}
	for i := range want {
		if data[i] != want[i] {
			t.Fatalf("data bytes = % X, want % X", data, want)
		}
	}
}

func TestChecksumErrorFlushesAndRetries(t *testing.T) {
	good := frame(wire.CmdExecute, wire.ResultOK, nil)
	bad := append([]byte{}, good...)
	bad[len(bad)-1] ^= 0xFF

	ch := &fakeChannel{replies: [][]byte{bad, good}}
	c := NewWithChannel(ch, testOptions())

	if err := c.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if ch.flushes != 1 {
		t.Fatalf("flushes = %d, want 1 (one checksum failure, one retry)", ch.flushes)
	}
}

// profileStream concatenates the frames of one full GET_PROFILE exchange.
func profileStream(arch wire.Architecture) []byte {
	var stream []byte
	stream = append(stream, frame(wire.CmdPlatformProfile, wire.ResultOK, []byte{byte(arch)})...)
	stream = append(stream, frame(wire.CmdInportProfile, wire.ResultOK, append([]byte{1}, []byte("led\x00")...))...)
	stream = append(stream, frame(wire.CmdOutportProfile, wire.ResultOK, append([]byte{1}, []byte("button\x00")...))...)
	stream = append(stream, frame(wire.CmdGetProfile, wire.ResultOK, nil)...)
	return stream
}

func TestGetProfileStreams(t *testing.T) {
	ch := &fakeChannel{replies: [][]byte{profileStream(wire.ArchAVR)}}
	c := NewWithChannel(ch, testOptions())
	prof, err := c.GetProfile()
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if prof.Architecture != wire.ArchAVR {
		t.Fatalf("Architecture = %v, want AVR", prof.Architecture)
	}
	in, err := prof.Inport("led")
	if err != nil {
		t.Fatalf("Inport(led): %v", err)
	}
	if in.TypeCode != 1 {
		t.Fatalf("Inport TypeCode = %d, want 1", in.TypeCode)
	}
	out, err := prof.Outport("button")
	if err != nil {
		t.Fatalf("Outport(button): %v", err)
	}
	if out.TypeCode != 1 {
		t.Fatalf("Outport TypeCode = %d, want 1", out.TypeCode)
	}
	if _, err := prof.Inport("missing"); err == nil {
		t.Fatal("expected error for unknown inport")
	}
}

func TestGetProfileRestartsAfterMidStreamChecksumError(t *testing.T) {
	corrupt := frame(wire.CmdInportProfile, wire.ResultOK, append([]byte{1}, []byte("led\x00")...))
	corrupt[len(corrupt)-1] ^= 0xFF
	firstAttempt := append([]byte{}, frame(wire.CmdPlatformProfile, wire.ResultOK, []byte{byte(wire.ArchARM)})...)
	firstAttempt = append(firstAttempt, corrupt...)

	ch := &fakeChannel{replies: [][]byte{firstAttempt, profileStream(wire.ArchARM)}}
	c := NewWithChannel(ch, testOptions())

	prof, err := c.GetProfile()
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if prof.Architecture != wire.ArchARM {
		t.Fatalf("Architecture = %v, want ARM", prof.Architecture)
	}
	if len(prof.InPorts) != 1 || len(prof.OutPorts) != 1 {
		t.Fatalf("ports = %d in / %d out, want 1/1 (restart must not duplicate)", len(prof.InPorts), len(prof.OutPorts))
	}
	if ch.flushes == 0 {
		t.Fatal("expected an RX flush before the restarted exchange")
	}
}
