// Package protocol implements the request/reply exchange with the device:
// state and execution-context queries, component lifecycle control, profile
// discovery, port data transfer, and log retrieval, each wrapped in the
// retry and recovery policy the device expects.
package protocol

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/rjboer/rtnodrv/internal/channel"
	"github.com/rjboer/rtnodrv/internal/codec"
	"github.com/rjboer/rtnodrv/internal/logging"
	"github.com/rjboer/rtnodrv/internal/transport"
	"github.com/rjboer/rtnodrv/internal/wire"
)

// Default timing and retry budgets, named so callers needn't guess at
// reasonable values. Port data transfers are small and frequent, so they
// wait far less per attempt than lifecycle commands and retry more.
const (
	DefaultCommandWait    = time.Second
	DefaultDataWait       = 20 * time.Millisecond
	DefaultCommandRetries = 5
	DefaultDataRetries    = 10
)

// Options configures a Client's timing and retry policy.
type Options struct {
	CommandWait    time.Duration
	DataWait       time.Duration
	CommandRetries int
	DataRetries    int
	Logger         logging.Logger
}

// DefaultOptions returns the recommended timing and retry budgets.
func DefaultOptions() Options {
	return Options{
		CommandWait:    DefaultCommandWait,
		DataWait:       DefaultDataWait,
		CommandRetries: DefaultCommandRetries,
		DataRetries:    DefaultDataRetries,
		Logger:         logging.Default(),
	}
}

func (o Options) withDefaults() Options {
	if o.CommandWait <= 0 {
		o.CommandWait = DefaultCommandWait
	}
	if o.DataWait <= 0 {
		o.DataWait = DefaultDataWait
	}
	if o.CommandRetries <= 0 {
		o.CommandRetries = DefaultCommandRetries
	}
	if o.DataRetries <= 0 {
		o.DataRetries = DefaultDataRetries
	}
	if o.Logger == nil {
		o.Logger = logging.Default()
	}
	return o
}

// Client drives the request/reply protocol over one Transport.
type Client struct {
	tr   *transport.Transport
	opts Options
}

// New builds a Client over an already-constructed Transport.
func New(tr *transport.Transport, opts Options) *Client {
	return &Client{tr: tr, opts: opts.withDefaults()}
}

// NewWithChannel is a convenience constructor wrapping ch in a Transport.
func NewWithChannel(ch channel.ByteChannel, opts Options) *Client {
	return New(transport.New(ch), opts)
}

func (c *Client) commandDeadlines() transport.Deadlines {
	return transport.Deadlines{
		Start:    c.opts.CommandWait,
		Header:   c.opts.CommandWait,
		Body:     c.opts.CommandWait,
		Checksum: c.opts.CommandWait,
	}
}

func (c *Client) dataDeadlines() transport.Deadlines {
	return transport.Deadlines{
		Start:    c.opts.DataWait,
		Header:   c.opts.DataWait,
		Body:     c.opts.DataWait,
		Checksum: c.opts.DataWait,
	}
}

// waitAndReceiveCommand reads packets until it sees one with command cmd, a
// PACKET_ERROR reply (whose embedded result is returned immediately as a
// ProtocolError), or a transport-level error. HEART_BEAT replies are
// silently discarded and never count against maxAttempts, since they are
// not produced in response to anything this client sent; any other stray
// packet does count. When maxAttempts packets have been read without a
// match, a TIMEOUT is returned.
func (c *Client) waitAndReceiveCommand(cmd wire.Command, d transport.Deadlines, maxAttempts int) (wire.Packet, error) {
	for attempts := 0; attempts < maxAttempts; {
		p, err := c.tr.Receive(d)
		if err != nil {
			return wire.Packet{}, err
		}
		switch p.Command {
		case wire.CmdHeartBeat:
			continue
		case wire.CmdPacketError:
			return wire.Packet{}, &ProtocolError{Command: p.Command, Result: p.Result}
		case cmd:
			return p, nil
		default:
			c.opts.Logger.Debug("discarding unexpected packet", logging.Field{Key: "expected", Value: cmd.String()}, logging.Field{Key: "received", Value: p.Command.String()})
			attempts++
		}
	}
	return wire.Packet{}, &transport.TimeoutError{Result: wire.ResultTimeout}
}

// sendAndAwait sends one request and waits for its reply, retrying up to
// retries times on a transport timeout or checksum error by flushing the
// receive buffer and resending. A ProtocolError (PACKET_ERROR or a non-OK
// result) is never retried.
func (c *Client) sendAndAwait(cmd wire.Command, payload []byte, d transport.Deadlines, retries int) (wire.Packet, error) {
	var reply wire.Packet
	operation := func() error {
		req, err := wire.New(cmd, wire.ResultOK, payload)
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := c.tr.Send(req); err != nil {
			return backoff.Permanent(err)
		}
		p, err := c.waitAndReceiveCommand(cmd, d, retries+1)
		if err == nil {
			reply = p
			return nil
		}
		if !isRetryable(err) {
			return backoff.Permanent(err)
		}
		if flushErr := c.tr.ClearRXBuffer(); flushErr != nil {
			return backoff.Permanent(flushErr)
		}
		c.opts.Logger.Warn("retrying after transport error", logging.Field{Key: "command", Value: cmd.String()}, logging.Field{Key: "error", Value: err.Error()})
		return err
	}
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(0), uint64(retries))
	if err := backoff.Retry(operation, policy); err != nil {
		return wire.Packet{}, err
	}
	return reply, nil
}

// GetState queries the component's lifecycle state.
func (c *Client) GetState() (wire.State, error) {
	reply, err := c.sendAndAwait(wire.CmdGetState, nil, c.commandDeadlines(), c.opts.CommandRetries)
	if err != nil {
		return 0, err
	}
	if len(reply.Data) != 1 {
		return 0, &ProtocolError{Command: wire.CmdGetState, Result: wire.ResultErr}
	}
	return wire.State(reply.Data[0]), nil
}

// GetECType queries which execution context schedules the component.
func (c *Client) GetECType() (wire.ExecutionContext, error) {
	reply, err := c.sendAndAwait(wire.CmdGetContextType, nil, c.commandDeadlines(), c.opts.CommandRetries)
	if err != nil {
		return 0, err
	}
	if len(reply.Data) != 1 {
		return 0, &ProtocolError{Command: wire.CmdGetContextType, Result: wire.ResultErr}
	}
	return wire.ExecutionContext(reply.Data[0]), nil
}

// Activate transitions the component to its active state.
func (c *Client) Activate() error {
	reply, err := c.sendAndAwait(wire.CmdActivate, nil, c.commandDeadlines(), c.opts.CommandRetries)
	if err != nil {
		return err
	}
	return resultError(wire.CmdActivate, reply.Result)
}

// Deactivate transitions the component to its inactive state.
func (c *Client) Deactivate() error {
	reply, err := c.sendAndAwait(wire.CmdDeactivate, nil, c.commandDeadlines(), c.opts.CommandRetries)
	if err != nil {
		return err
	}
	return resultError(wire.CmdDeactivate, reply.Result)
}

// Execute runs one step of the component.
func (c *Client) Execute() error {
	reply, err := c.sendAndAwait(wire.CmdExecute, nil, c.commandDeadlines(), c.opts.CommandRetries)
	if err != nil {
		return err
	}
	return resultError(wire.CmdExecute, reply.Result)
}

// ReceiveLogData retrieves and clears the component's pending log buffer,
// returning the raw reply payload.
func (c *Client) ReceiveLogData() ([]byte, error) {
	reply, err := c.sendAndAwait(wire.CmdReceiveLog, nil, c.commandDeadlines(), c.opts.CommandRetries)
	if err != nil {
		return nil, err
	}
	if err := resultError(wire.CmdReceiveLog, reply.Result); err != nil {
		return nil, err
	}
	return reply.Data, nil
}

// GetLog retrieves and clears the component's pending log buffer, decoded
// as a NUL-terminated string.
func (c *Client) GetLog() (string, error) {
	data, err := c.ReceiveLogData()
	if err != nil {
		return "", err
	}
	return nulTerminated(data), nil
}

func nulTerminated(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// SendInportData writes raw bytes to a named input port.
func (c *Client) SendInportData(name string, data []byte) error {
	payload, err := buildSendDataPayload(name, data)
	if err != nil {
		return err
	}
	reply, err := c.sendAndAwait(wire.CmdSendData, payload, c.dataDeadlines(), c.opts.DataRetries)
	if err != nil {
		return err
	}
	return resultError(wire.CmdSendData, reply.Result)
}

// ReceiveOutportData reads raw bytes from a named output port. The reply
// payload carries the same layout as a SEND_DATA request (name length,
// data length, name, data); only the data bytes are returned.
func (c *Client) ReceiveOutportData(name string) ([]byte, error) {
	payload, err := buildReceiveDataRequest(name)
	if err != nil {
		return nil, err
	}
	reply, err := c.sendAndAwait(wire.CmdReceiveData, payload, c.dataDeadlines(), c.opts.DataRetries)
	if err != nil {
		return nil, err
	}
	if err := resultError(wire.CmdReceiveData, reply.Result); err != nil {
		return nil, err
	}
	return parseReceiveDataReply(reply.Data)
}

// parseReceiveDataReply unpacks a RECEIVE_DATA reply payload and returns
// the data bytes.
func parseReceiveDataReply(payload []byte) ([]byte, error) {
	if len(payload) < 2 {
		return nil, fmt.Errorf("protocol: RECEIVE_DATA reply payload too short (%d bytes)", len(payload))
	}
	nameLen := int(payload[0])
	dataLen := int(payload[1])
	if len(payload) < 2+nameLen+dataLen {
		return nil, fmt.Errorf("protocol: RECEIVE_DATA reply claims %d name + %d data bytes but carries %d", nameLen, dataLen, len(payload)-2)
	}
	data := make([]byte, dataLen)
	copy(data, payload[2+nameLen:2+nameLen+dataLen])
	return data, nil
}

// buildSendDataPayload lays out a SEND_DATA request: byte 0 is the name
// length, byte 1 is the data length, the name follows, then the data.
func buildSendDataPayload(name string, data []byte) ([]byte, error) {
	if len(name) > 255 || len(data) > 255 {
		return nil, &ProtocolError{Command: wire.CmdSendData, Result: wire.ResultErr}
	}
	buf := make([]byte, 2+len(name)+len(data))
	buf[0] = byte(len(name))
	buf[1] = byte(len(data))
	copy(buf[2:], name)
	copy(buf[2+len(name):], data)
	return buf, nil
}

// buildReceiveDataRequest lays out a RECEIVE_DATA request: byte 0 is the
// name length, byte 1 is reserved (always zero; the device does not know
// the reply length in advance), the name follows.
func buildReceiveDataRequest(name string) ([]byte, error) {
	if len(name) > 255 {
		return nil, &ProtocolError{Command: wire.CmdReceiveData, Result: wire.ResultErr}
	}
	buf := make([]byte, 2+len(name))
	buf[0] = byte(len(name))
	buf[1] = 0
	copy(buf[2:], name)
	return buf, nil
}

// Typed port helpers compose SendInportData/ReceiveOutportData with
// internal/codec.

func (c *Client) SendBool(name string, v bool) error { return c.SendInportData(name, codec.EncodeBool(v)) }
func (c *Client) SendChar(name string, v byte) error { return c.SendInportData(name, codec.EncodeChar(v)) }
func (c *Client) SendU8(name string, v uint8) error { return c.SendInportData(name, codec.EncodeU8(v)) }
func (c *Client) SendI32(name string, v int32) error { return c.SendInportData(name, codec.EncodeI32(v)) }
func (c *Client) SendF32(name string, v float32) error {
	return c.SendInportData(name, codec.EncodeF32(v))
}
func (c *Client) SendF64(name string, v float64) error {
	return c.SendInportData(name, codec.EncodeF64(v))
}

func (c *Client) SendBoolSeq(name string, vs []bool) error {
	return c.SendInportData(name, codec.EncodeBoolSeq(vs))
}
func (c *Client) SendI32Seq(name string, vs []int32) error {
	return c.SendInportData(name, codec.EncodeI32Seq(vs))
}
func (c *Client) SendF32Seq(name string, vs []float32) error {
	return c.SendInportData(name, codec.EncodeF32Seq(vs))
}
func (c *Client) SendF64Seq(name string, vs []float64) error {
	return c.SendInportData(name, codec.EncodeF64Seq(vs))
}

func (c *Client) ReceiveBool(name string) (bool, error) {
	data, err := c.ReceiveOutportData(name)
	if err != nil {
		return false, err
	}
	return codec.DecodeBool(data)
}
func (c *Client) ReceiveChar(name string) (byte, error) {
	data, err := c.ReceiveOutportData(name)
	if err != nil {
		return 0, err
	}
	return codec.DecodeChar(data)
}
func (c *Client) ReceiveU8(name string) (uint8, error) {
	data, err := c.ReceiveOutportData(name)
	if err != nil {
		return 0, err
	}
	return codec.DecodeU8(data)
}
func (c *Client) ReceiveI32(name string) (int32, error) {
	data, err := c.ReceiveOutportData(name)
	if err != nil {
		return 0, err
	}
	return codec.DecodeI32(data)
}
func (c *Client) ReceiveF32(name string) (float32, error) {
	data, err := c.ReceiveOutportData(name)
	if err != nil {
		return 0, err
	}
	return codec.DecodeF32(data)
}
func (c *Client) ReceiveF64(name string) (float64, error) {
	data, err := c.ReceiveOutportData(name)
	if err != nil {
		return 0, err
	}
	return codec.DecodeF64(data)
}

func (c *Client) ReceiveBoolSeq(name string) ([]bool, error) {
	data, err := c.ReceiveOutportData(name)
	if err != nil {
		return nil, err
	}
	return codec.DecodeBoolSeq(data)
}
func (c *Client) ReceiveI32Seq(name string) ([]int32, error) {
	data, err := c.ReceiveOutportData(name)
	if err != nil {
		return nil, err
	}
	return codec.DecodeI32Seq(data)
}
func (c *Client) ReceiveF32Seq(name string) ([]float32, error) {
	data, err := c.ReceiveOutportData(name)
	if err != nil {
		return nil, err
	}
	return codec.DecodeF32Seq(data)
}
func (c *Client) ReceiveF64Seq(name string) ([]float64, error) {
	data, err := c.ReceiveOutportData(name)
	if err != nil {
		return nil, err
	}
	return codec.DecodeF64Seq(data)
}

// GetProfile requests the device's platform and port profile, retrying the
// whole streamed exchange (with a decremented retry budget) if a checksum
// error interrupts the stream: a short settle sleep, a receive-buffer
// flush, and a fresh attempt.
func (c *Client) GetProfile() (Profile, error) {
	return c.getProfile(c.opts.CommandRetries)
}

func (c *Client) getProfile(retriesLeft int) (Profile, error) {
	if err := c.tr.ClearRXBuffer(); err != nil {
		return Profile{}, err
	}
	req, err := wire.New(wire.CmdGetProfile, wire.ResultOK, nil)
	if err != nil {
		return Profile{}, err
	}
	if err := c.tr.Send(req); err != nil {
		return Profile{}, err
	}

	// retryStream recovers from a transport failure during the exchange by
	// flushing the receive buffer and re-running the whole exchange with one
	// fewer retry. A checksum error additionally gets a short settle sleep
	// so the device finishes emitting whatever desynchronized frame it was
	// mid-way through.
	retryStream := func(cause error) (Profile, error) {
		if retriesLeft <= 0 {
			return Profile{}, cause
		}
		if isChecksumError(cause) {
			time.Sleep(10 * time.Millisecond)
		}
		if flushErr := c.tr.ClearRXBuffer(); flushErr != nil {
			return Profile{}, flushErr
		}
		c.opts.Logger.Warn("restarting profile exchange", logging.Field{Key: "error", Value: cause.Error()})
		return c.getProfile(retriesLeft - 1)
	}

	first, err := c.waitAndReceiveCommand(wire.CmdPlatformProfile, c.commandDeadlines(), c.opts.CommandRetries+1)
	if err != nil {
		if isRetryable(err) {
			return retryStream(err)
		}
		return Profile{}, err
	}
	var prof Profile
	if err := applyPlatformProfile(&prof, first); err != nil {
		return Profile{}, err
	}

	for {
		pkt, err := c.tr.Receive(c.commandDeadlines())
		if err != nil {
			if isRetryable(err) {
				return retryStream(err)
			}
			return Profile{}, err
		}
		switch pkt.Command {
		case wire.CmdHeartBeat:
			continue
		case wire.CmdPlatformProfile:
			if err := applyPlatformProfile(&prof, pkt); err != nil {
				return Profile{}, err
			}
		case wire.CmdInportProfile:
			port, err := parsePortProfile(pkt)
			if err != nil {
				return Profile{}, err
			}
			prof.InPorts = append(prof.InPorts, port)
		case wire.CmdOutportProfile:
			port, err := parsePortProfile(pkt)
			if err != nil {
				return Profile{}, err
			}
			prof.OutPorts = append(prof.OutPorts, port)
		case wire.CmdGetProfile:
			if err := c.tr.ClearRXBuffer(); err != nil {
				return Profile{}, err
			}
			return prof, nil
		case wire.CmdPacketError:
			return Profile{}, &ProtocolError{Command: pkt.Command, Result: wire.ResultErr}
		case wire.CmdPacketErrorCRC:
			return Profile{}, &ProtocolError{Command: pkt.Command, Result: wire.ResultChecksumError}
		case wire.CmdPacketErrorTO:
			return Profile{}, &ProtocolError{Command: pkt.Command, Result: wire.ResultTimeout}
		default:
			c.opts.Logger.Debug("ignoring unexpected packet during profile exchange", logging.Field{Key: "received", Value: pkt.Command.String()})
			continue
		}
	}
}
