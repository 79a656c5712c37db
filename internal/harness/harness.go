// Package harness implements the round-trip port exercise: for each
// well-known in/out port-name pair the device may expose, send a test
// value on the input port, step the component once, and confirm the same
// value comes back on the matching output port, skipping any pair the
// device's profile does not advertise.
package harness

import (
	"fmt"

	"github.com/rjboer/rtnodrv/internal/logging"
	"github.com/rjboer/rtnodrv/internal/protocol"
)

// Device is the subset of rtno.Session (or a bare protocol.Client) the
// sweep needs. Defined here, rather than imported, so this package does
// not depend on the top-level facade.
type Device interface {
	GetProfile() (protocol.Profile, error)
	Execute() error
	SendBool(name string, v bool) error
	ReceiveBool(name string) (bool, error)
	SendChar(name string, v byte) error
	ReceiveChar(name string) (byte, error)
	SendU8(name string, v uint8) error
	ReceiveU8(name string) (uint8, error)
	SendI32(name string, v int32) error
	ReceiveI32(name string) (int32, error)
	SendF32(name string, v float32) error
	ReceiveF32(name string) (float32, error)
	SendF64(name string, v float64) error
	ReceiveF64(name string) (float64, error)
}

// PairResult reports the outcome of one port-pair round-trip check.
type PairResult struct {
	Name    string
	Skipped bool
	Passed  bool
	Err     error
}

type pair struct {
	name    string
	in, out string
	run     func(d Device, in, out string) (bool, error)
}

// standardPairs are the well-known port-pair names the sweep checks: a
// type's _in and _out ports, tested with one representative value each.
var standardPairs = []pair{
	{"bool", "bool_in", "bool_out", testBool},
	{"char", "char_in", "char_out", testChar},
	{"octet", "octet_in", "octet_out", testOctet},
	{"long", "long_in", "long_out", testLong},
	{"float", "float_in", "float_out", testFloat},
	{"double", "double_in", "double_out", testDouble},
}

func testBool(d Device, in, out string) (bool, error) {
	const want = true
	if err := d.SendBool(in, want); err != nil {
		return false, err
	}
	if err := d.Execute(); err != nil {
		return false, err
	}
	got, err := d.ReceiveBool(out)
	if err != nil {
		return false, err
	}
	return got == want, nil
}

func testChar(d Device, in, out string) (bool, error) {
	const want = byte('Q')
	if err := d.SendChar(in, want); err != nil {
		return false, err
	}
	if err := d.Execute(); err != nil {
		return false, err
	}
	got, err := d.ReceiveChar(out)
	if err != nil {
		return false, err
	}
	return got == want, nil
}

func testOctet(d Device, in, out string) (bool, error) {
	const want = uint8(200)
	if err := d.SendU8(in, want); err != nil {
		return false, err
	}
	if err := d.Execute(); err != nil {
		return false, err
	}
	got, err := d.ReceiveU8(out)
	if err != nil {
		return false, err
	}
	return got == want, nil
}

func testLong(d Device, in, out string) (bool, error) {
	const want = int32(-123456)
	if err := d.SendI32(in, want); err != nil {
		return false, err
	}
	if err := d.Execute(); err != nil {
		return false, err
	}
	got, err := d.ReceiveI32(out)
	if err != nil {
		return false, err
	}
	return got == want, nil
}

func testFloat(d Device, in, out string) (bool, error) {
	const want = float32(3.5)
	if err := d.SendF32(in, want); err != nil {
		return false, err
	}
	if err := d.Execute(); err != nil {
		return false, err
	}
	got, err := d.ReceiveF32(out)
	if err != nil {
		return false, err
	}
	return got == want, nil
}

func testDouble(d Device, in, out string) (bool, error) {
	const want = 2.5 // exactly representable in float32, survives the f64 narrowing quirk
	if err := d.SendF64(in, want); err != nil {
		return false, err
	}
	if err := d.Execute(); err != nil {
		return false, err
	}
	got, err := d.ReceiveF64(out)
	if err != nil {
		return false, err
	}
	return got == want, nil
}

// Sweep queries the device's profile, then runs every standard port-pair
// round trip whose in/out ports are both present, logging and skipping the
// rest.
func Sweep(d Device, log logging.Logger) ([]PairResult, error) {
	profile, err := d.GetProfile()
	if err != nil {
		return nil, fmt.Errorf("harness: get profile: %w", err)
	}

	results := make([]PairResult, 0, len(standardPairs))
	for _, p := range standardPairs {
		if _, err := profile.Inport(p.in); err != nil {
			log.Warn("skipping port pair: inport not found", logging.Field{Key: "pair", Value: p.name}, logging.Field{Key: "port", Value: p.in})
			results = append(results, PairResult{Name: p.name, Skipped: true})
			continue
		}
		if _, err := profile.Outport(p.out); err != nil {
			log.Warn("skipping port pair: outport not found", logging.Field{Key: "pair", Value: p.name}, logging.Field{Key: "port", Value: p.out})
			results = append(results, PairResult{Name: p.name, Skipped: true})
			continue
		}
		passed, err := p.run(d, p.in, p.out)
		results = append(results, PairResult{Name: p.name, Passed: passed, Err: err})
	}
	return results, nil
}
