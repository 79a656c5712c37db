package protocol

import (
	"errors"
	"fmt"

	"github.com/rjboer/rtnodrv/internal/transport"
	"github.com/rjboer/rtnodrv/internal/wire"
)

// ProtocolError reports a failure as a command and result code: a
// PACKET_ERROR reply, a non-OK result or malformed payload on an otherwise
// well-formed reply, or a check made locally (an unknown port name in a
// Profile, an oversized port name or data). It is never retried.
type ProtocolError struct {
	Command wire.Command
	Result  wire.Result
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: %s replied %s", e.Command, e.Result)
}

// isRetryable reports whether err is a transport-level failure that the
// retry policy should recover from by flushing the receive buffer and
// resending: a timeout sub-kind or a checksum mismatch. A ProtocolError
// (including PACKET_ERROR) is never retryable.
func isRetryable(err error) bool {
	var timeoutErr *transport.TimeoutError
	var checksumErr *transport.ChecksumError
	return errors.As(err, &timeoutErr) || errors.As(err, &checksumErr)
}

// resultError converts a non-OK result on an otherwise successfully
// received reply into a ProtocolError.
func resultError(cmd wire.Command, result wire.Result) error {
	if result == wire.ResultOK {
		return nil
	}
	return &ProtocolError{Command: cmd, Result: result}
}

// isChecksumError reports whether err is a transport checksum mismatch.
func isChecksumError(err error) bool {
	var checksumErr *transport.ChecksumError
	return errors.As(err, &checksumErr)
}
