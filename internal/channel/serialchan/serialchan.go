// Package serialchan implements channel.ByteChannel over a physical or
// USB-virtual serial port using go.bug.st/serial.
package serialchan

import (
	"bytes"
	"fmt"
	"sync"

	"go.bug.st/serial"
)

// Channel is a channel.ByteChannel backed by an open serial port.
type Channel struct {
	port serial.Port

	mu  sync.Mutex
	buf bytes.Buffer
}

// Open opens portName at baud, 8N1, matching the default framing the
// device firmware expects.
func Open(portName string, baud int) (*Channel, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("serialchan: open %s: %w", portName, err)
	}
	return &Channel{port: p}, nil
}

// fill drains whatever the port currently has buffered into c.buf without
// blocking the caller longer than the port driver's own read timeout.
func (c *Channel) fill() error {
	scratch := make([]byte, 4096)
	if err := c.port.SetReadTimeout(0); err != nil {
		return err
	}
	n, err := c.port.Read(scratch)
	if err != nil {
		return fmt.Errorf("serialchan: read: %w", err)
	}
	if n > 0 {
		c.buf.Write(scratch[:n])
	}
	return nil
}

// BytesAvailable reports how many bytes are ready to read without blocking.
func (c *Channel) BytesAvailable() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fill(); err != nil {
		return 0, err
	}
	return c.buf.Len(), nil
}

// Read copies up to len(p) currently-buffered bytes into p. It never blocks.
func (c *Channel) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fill(); err != nil {
		return 0, err
	}
	return c.buf.Read(p)
}

// Write blocks until every byte of p reaches the port.
func (c *Channel) Write(p []byte) error {
	written := 0
	for written < len(p) {
		n, err := c.port.Write(p[written:])
		if err != nil {
			return fmt.Errorf("serialchan: write: %w", err)
		}
		written += n
	}
	return nil
}

// FlushRX discards any buffered-but-unread bytes, both ours and the
// driver's.
func (c *Channel) FlushRX() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf.Reset()
	return c.port.ResetInputBuffer()
}

// Close releases the underlying serial port.
func (c *Channel) Close() error {
	return c.port.Close()
}
