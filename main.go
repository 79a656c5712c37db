package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rjboer/rtnodrv/internal/protocol"
	"github.com/rjboer/rtnodrv/rtno"
)

// Injectable for testing: tests swap these out and restore them via defer.
var (
	openSerial = rtno.OpenSerial
	openTCP    = rtno.OpenTCP
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Print(err)
		os.Exit(-1)
	}
}

// run implements the CLI surface: either `<device-path> <baud>` to open a
// local serial port, or `tcp://host:port` to dial a cmd/rtno-bridge tunnel.
// It reports the component's current state and platform architecture.
func run(args []string, out io.Writer) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: rtnodrv <device-path> <baud> | tcp://host:port")
	}

	opts := protocol.DefaultOptions()

	var session *rtno.Session
	if strings.HasPrefix(args[0], "tcp://") {
		addr := strings.TrimPrefix(args[0], "tcp://")
		s, err := openTCP(addr, 5*time.Second, opts)
		if err != nil {
			return fmt.Errorf("failed to dial %s: %w", addr, err)
		}
		session = s
	} else {
		if len(args) < 2 {
			return fmt.Errorf("usage: rtnodrv <device-path> <baud>")
		}
		baud, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid baud rate %q: %w", args[1], err)
		}
		s, err := openSerial(args[0], baud, opts)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		session = s
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Printf("failed to close session: %v", err)
		}
	}()

	state, err := session.GetState()
	if err != nil {
		return fmt.Errorf("failed to query state: %w", err)
	}
	profile, err := session.GetProfile()
	if err != nil {
		return fmt.Errorf("failed to query profile: %w", err)
	}

	_, err = fmt.Fprintf(out, "state=%s architecture=%s inports=%d outports=%d\n",
		state, profile.Architecture, len(profile.InPorts), len(profile.OutPorts))
	return err
}
