// Command rtno-bridge exposes a serial-attached device over TCP: one
// client at a time is shuttled bytes to and from the serial port.
package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/rjboer/rtnodrv/internal/channel/serialchan"
	"github.com/rjboer/rtnodrv/internal/logging"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: rtno-bridge <serial-device> <baudrate> [port]")
	}
	flag.Parse()
	args := flag.Args()
	if len(args) < 2 {
		flag.Usage()
		os.Exit(-1)
	}

	baud, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid baud rate %q: %v\n", args[1], err)
		os.Exit(-1)
	}
	port := 10000
	if len(args) >= 3 {
		port, err = strconv.Atoi(args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid port %q: %v\n", args[2], err)
			os.Exit(-1)
		}
	}

	log := logging.New(logging.Info, logging.Text, os.Stderr)
	if err := run(args[0], baud, port, log); err != nil {
		log.Error("bridge stopped", logging.Field{Key: "error", Value: err.Error()})
		os.Exit(-1)
	}
}

func run(device string, baud, port int, log logging.Logger) error {
	serial, err := serialchan.Open(device, baud)
	if err != nil {
		return fmt.Errorf("open %s: %w", device, err)
	}
	defer serial.Close()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("listen :%d: %w", port, err)
	}
	defer ln.Close()
	log.Info("listening", logging.Field{Key: "port", Value: port}, logging.Field{Key: "device", Value: device})

	// Advertise as _rtno._tcp, the service internal/discovery browses for.
	host, _ := os.Hostname()
	mdns, err := zeroconf.Register("rtno on "+host, "_rtno._tcp", "local.", port, nil, nil)
	if err != nil {
		log.Warn("mDNS advertisement failed", logging.Field{Key: "error", Value: err.Error()})
	} else {
		defer mdns.Shutdown()
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("accept: %w", err)
		}
		log.Info("client connected", logging.Field{Key: "remote", Value: conn.RemoteAddr().String()})
		serveOne(conn, serial, log)
		log.Info("client disconnected", logging.Field{Key: "remote", Value: conn.RemoteAddr().String()})
	}
}

// serialReadWriter adapts channel.ByteChannel's non-blocking Read to the
// blocking io.Reader io.Copy expects, busy-polling Read.
type serialReadWriter struct {
	ch *serialchan.Channel
}

func (s serialReadWriter) Read(p []byte) (int, error) {
	for {
		n, err := s.ch.Read(p)
		if err != nil || n > 0 {
			return n, err
		}
		time.Sleep(500 * time.Microsecond)
	}
}

func (s serialReadWriter) Write(p []byte) (int, error) {
	if err := s.ch.Write(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// serveOne shuttles bytes bidirectionally between conn and the serial port
// until either side closes, blocking further accepts until it returns;
// only one client owns the serial port at a time.
func serveOne(conn net.Conn, serial *serialchan.Channel, log logging.Logger) {
	defer conn.Close()
	rw := serialReadWriter{ch: serial}

	done := make(chan struct{}, 2)
	go func() {
		io.Copy(rw, conn)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(conn, rw)
		done <- struct{}{}
	}()
	<-done
}
