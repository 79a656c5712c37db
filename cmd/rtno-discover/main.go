// Command rtno-discover browses for network-attached rtno-bridge instances
// over mDNS and prints what it finds.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rjboer/rtnodrv/internal/discovery"
)

func main() {
	timeout := flag.Duration("timeout", 3*time.Second, "mDNS browse duration")
	flag.Parse()

	devices, err := discovery.Browse(*timeout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(-1)
	}
	if len(devices) == 0 {
		fmt.Println("no devices found")
		return
	}
	for _, d := range devices {
		fmt.Printf("%s\t%s\n", d.Instance, d.Addr())
	}
}
