// Command rtno-harness runs the standard port-pair round-trip sweep
// against a connected device, then drops into an interactive REPL for
// manual state queries and port exercise.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rjboer/rtnodrv/internal/harness"
	"github.com/rjboer/rtnodrv/internal/logging"
	"github.com/rjboer/rtnodrv/internal/protocol"
	"github.com/rjboer/rtnodrv/rtno"
)

func main() {
	tcpAddr := flag.String("tcp", "", "dial a cmd/rtno-bridge tunnel at host:port instead of a local serial port")
	device := flag.String("device", "", "serial device path")
	baud := flag.Int("baud", 115200, "serial baud rate")
	repl := flag.Bool("repl", true, "drop into an interactive REPL after the sweep")
	flag.Parse()

	log := logging.New(logging.Info, logging.Text, os.Stderr)

	var session *rtno.Session
	var err error
	opts := protocol.DefaultOptions()
	opts.Logger = log
	switch {
	case *tcpAddr != "":
		session, err = rtno.OpenTCP(*tcpAddr, 5*time.Second, opts)
	case *device != "":
		session, err = rtno.OpenSerial(*device, *baud, opts)
	default:
		fmt.Fprintln(os.Stderr, "usage: rtno-harness -device /dev/ttyUSB0 -baud 115200 | -tcp host:port")
		os.Exit(-1)
	}
	if err != nil {
		log.Error("failed to open session", logging.Field{Key: "error", Value: err.Error()})
		os.Exit(-1)
	}
	defer session.Close()

	results, err := harness.Sweep(session, log)
	if err != nil {
		log.Error("sweep failed", logging.Field{Key: "error", Value: err.Error()})
		os.Exit(-1)
	}
	reportSweep(results)

	if *repl {
		runREPL(session, log)
	}
}

func reportSweep(results []harness.PairResult) {
	for _, r := range results {
		switch {
		case r.Skipped:
			fmt.Printf("%-8s SKIP (ports not advertised)\n", r.Name)
		case r.Err != nil:
			fmt.Printf("%-8s ERROR %v\n", r.Name, r.Err)
		case r.Passed:
			fmt.Printf("%-8s PASS\n", r.Name)
		default:
			fmt.Printf("%-8s FAIL\n", r.Name)
		}
	}
}

// runREPL offers a minimal line-oriented console: "state", "profile",
// "activate", "deactivate", "execute", "log", "send-i32", "recv-i32",
// "quit" (or "exit").
func runREPL(session *rtno.Session, log logging.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("rtno-harness console. Commands: state profile activate deactivate execute log send-i32 recv-i32 quit")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "quit", "exit":
			return
		case "state":
			state, err := session.GetState()
			printResult(state, err)
		case "profile":
			profile, err := session.GetProfile()
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Printf("architecture=%s\n", profile.Architecture)
			for _, p := range profile.InPorts {
				fmt.Printf("  in  %s (type %d)\n", p.Name, p.TypeCode)
			}
			for _, p := range profile.OutPorts {
				fmt.Printf("  out %s (type %d)\n", p.Name, p.TypeCode)
			}
		case "activate":
			printResult("ok", session.Activate())
		case "deactivate":
			printResult("ok", session.Deactivate())
		case "execute":
			printResult("ok", session.Execute())
		case "log":
			text, err := session.GetLog()
			printResult(text, err)
		case "send-i32":
			if len(fields) != 3 {
				fmt.Println("usage: send-i32 <port> <value>")
				continue
			}
			v, err := strconv.Atoi(fields[2])
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			printResult("ok", session.SendI32(fields[1], int32(v)))
		case "recv-i32":
			if len(fields) != 2 {
				fmt.Println("usage: recv-i32 <port>")
				continue
			}
			v, err := session.ReceiveI32(fields[1])
			printResult(v, err)
		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
}

func printResult(v any, err error) {
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println(v)
}
