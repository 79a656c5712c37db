package protocol

import (
	"bytes"
	"fmt"

	"github.com/rjboer/rtnodrv/internal/wire"
)

// maxPortNameLength bounds the NUL-terminated name buffer the device
// fills in INPORT_PROFILE and OUTPORT_PROFILE frames.
const maxPortNameLength = 64

// PortProfile describes one named, typed port exposed by the device.
type PortProfile struct {
	TypeCode byte
	Name     string
}

// Profile is the device's full self-description, assembled from one
// PLATFORM_PROFILE packet followed by a stream of INPORT_PROFILE and
// OUTPORT_PROFILE packets.
type Profile struct {
	Architecture wire.Architecture
	InPorts      []PortProfile
	OutPorts     []PortProfile
}

// Inport looks up a named input port.
func (p Profile) Inport(name string) (PortProfile, error) {
	for _, port := range p.InPorts {
		if port.Name == name {
			return port, nil
		}
	}
	return PortProfile{}, &ProtocolError{Command: wire.CmdInportProfile, Result: wire.ResultInportNotFound}
}

// Outport looks up a named output port.
func (p Profile) Outport(name string) (PortProfile, error) {
	for _, port := range p.OutPorts {
		if port.Name == name {
			return port, nil
		}
	}
	return PortProfile{}, &ProtocolError{Command: wire.CmdOutportProfile, Result: wire.ResultOutportNotFound}
}

func applyPlatformProfile(prof *Profile, pkt wire.Packet) error {
	if len(pkt.Data) < 1 {
		return fmt.Errorf("protocol: PLATFORM_PROFILE payload too short (%d bytes)", len(pkt.Data))
	}
	prof.Architecture = wire.Architecture(pkt.Data[0])
	return nil
}

// parsePortProfile decodes an INPORT_PROFILE/OUTPORT_PROFILE payload: byte 0
// is the type code, the remaining bytes are the port name, NUL-terminated
// within a maxPortNameLength buffer on the device side.
func parsePortProfile(pkt wire.Packet) (PortProfile, error) {
	if len(pkt.Data) < 1 {
		return PortProfile{}, fmt.Errorf("protocol: %s payload too short (%d bytes)", pkt.Command, len(pkt.Data))
	}
	typeCode := pkt.Data[0]
	name := pkt.Data[1:]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	if len(name) > maxPortNameLength {
		name = name[:maxPortNameLength]
	}
	return PortProfile{TypeCode: typeCode, Name: string(name)}, nil
}
