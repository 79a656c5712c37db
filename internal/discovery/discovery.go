// Package discovery browses for network-attached devices advertising
// themselves over mDNS, for use with internal/channel/tcpchan instead of a
// hardcoded host:port.
package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

// serviceName is the mDNS service type a cmd/rtno-bridge instance (or any
// device speaking the TCP tunnel directly) advertises.
const serviceName = "_rtno._tcp"

// Device describes one discovered bridge or TCP-capable device.
type Device struct {
	Instance  string // advertised name, e.g. "rtno on greenhouse-1"
	Hostname  string // DNS hostname, e.g. "greenhouse-1.local."
	Addresses []net.IP
	Port      int
	TXT       []string
}

// Addr returns a host:port suitable for tcpchan.Dial, preferring the first
// advertised address over the hostname.
func (d Device) Addr() string {
	if len(d.Addresses) > 0 {
		return fmt.Sprintf("%s:%d", d.Addresses[0].String(), d.Port)
	}
	return fmt.Sprintf("%s:%d", strings.TrimSuffix(d.Hostname, "."), d.Port)
}

// Browse performs a blocking mDNS browse for serviceName, returning
// deduplicated entries once timeout elapses.
func Browse(timeout time.Duration) ([]Device, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: new resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(map[string]Device)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case e, ok := <-entries:
				if !ok {
					close(done)
					return
				}
				if e == nil {
					continue
				}
				addrs := make([]net.IP, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
				addrs = append(addrs, e.AddrIPv4...)
				addrs = append(addrs, e.AddrIPv6...)

				key := fmt.Sprintf("%s|%d", e.HostName, e.Port)
				found[key] = Device{
					Instance:  cleanInstance(e.Instance),
					Hostname:  e.HostName,
					Addresses: addrs,
					Port:      e.Port,
					TXT:       append([]string{}, e.Text...),
				}
			case <-ctx.Done():
				close(done)
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, serviceName, "local.", entries); err != nil {
		return nil, fmt.Errorf("discovery: browse: %w", err)
	}
	<-done

	out := make([]Device, 0, len(found))
	for _, d := range found {
		out = append(out, d)
	}
	return out, nil
}

// cleanInstance removes zeroconf escape sequences ("\ " -> " ").
func cleanInstance(s string) string {
	return strings.ReplaceAll(s, `\ `, " ")
}
