// Package tcpchan implements channel.ByteChannel over a TCP connection to
// a serial tunnel (see cmd/rtno-bridge). A background reader goroutine
// continuously drains the socket into a buffer so reads never block on the
// network.
package tcpchan

import (
	"bytes"
	"fmt"
	"net"
	"sync"
	"time"
)

// Channel is a channel.ByteChannel backed by a TCP connection.
type Channel struct {
	conn net.Conn

	mu      sync.Mutex
	buf     bytes.Buffer
	readErr error

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to addr (host:port) and starts the background reader.
func Dial(addr string, timeout time.Duration) (*Channel, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("tcpchan: dial %s: %w", addr, err)
	}
	c := &Channel{conn: conn, done: make(chan struct{})}
	go c.readLoop()
	return c, nil
}

// readLoop continuously copies socket bytes into buf until the connection
// closes or errors.
func (c *Channel) readLoop() {
	scratch := make([]byte, 4096)
	for {
		n, err := c.conn.Read(scratch)
		if n > 0 {
			c.mu.Lock()
			c.buf.Write(scratch[:n])
			c.mu.Unlock()
		}
		if err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			close(c.done)
			return
		}
	}
}

// BytesAvailable reports how many bytes are currently buffered.
func (c *Channel) BytesAvailable() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buf.Len() == 0 && c.readErr != nil {
		return 0, fmt.Errorf("tcpchan: connection closed: %w", c.readErr)
	}
	return c.buf.Len(), nil
}

// Read copies up to len(p) currently-buffered bytes into p. It never blocks
// on the network; it only drains what readLoop has already received.
func (c *Channel) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buf.Len() == 0 {
		if c.readErr != nil {
			return 0, fmt.Errorf("tcpchan: connection closed: %w", c.readErr)
		}
		return 0, nil
	}
	return c.buf.Read(p)
}

// Write blocks until every byte of p has been written to the socket.
func (c *Channel) Write(p []byte) error {
	written := 0
	for written < len(p) {
		n, err := c.conn.Write(p[written:])
		if err != nil {
			return fmt.Errorf("tcpchan: write: %w", err)
		}
		written += n
	}
	return nil
}

// FlushRX discards any bytes the background reader has buffered but the
// caller has not yet consumed.
func (c *Channel) FlushRX() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf.Reset()
	return nil
}

// Close shuts down the connection and stops the background reader.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}
