package idnode

import (
	"encoding/binary"
	"fmt"
	"net"
)

// StateSize is the fixed length of a packed NodeState record.
const StateSize = 18

// Mode codes carried in the record's trailing two bytes.
var (
	ModeUp        = [2]byte{'U', 'P'} // announcement: this node is live
	ModeRequest   = [2]byte{'R', 'Q'} // request for the stored view of an id
	ModeHighWater = [2]byte{'H', 'W'} // high-water hint for an id
)

// NodeState is the compressed state of one id node. The same 18-byte layout
// is stored in the record file and carried as the multicast payload.
// Multi-byte integers are little-endian on both.
type NodeState struct {
	Timestamp uint64  // high-water mark, milliseconds
	ID        uint16  // node id (0..1023)
	Port      uint16  // UDP port the node sends from
	IPAddr    uint32  // IPv4 address, host byte order
	Mode      [2]byte // "UP", "RQ", or "HW"
}

// HasMode reports whether the record carries mode m.
func (s *NodeState) HasMode(m [2]byte) bool { return s.Mode == m }

// SetMode sets the record's mode field.
func (s *NodeState) SetMode(m [2]byte) { s.Mode = m }

// SetAddress records addr's IPv4 address and port.
func (s *NodeState) SetAddress(addr *net.UDPAddr) {
	if ip := addr.IP.To4(); ip != nil {
		s.IPAddr = binary.BigEndian.Uint32(ip)
	} else {
		s.IPAddr = 0
	}
	s.Port = uint16(addr.Port)
}

// Address reconstructs the UDP address held in the record.
func (s *NodeState) Address() *net.UDPAddr {
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, s.IPAddr)
	return &net.UDPAddr{IP: ip, Port: int(s.Port)}
}

// Marshal packs the record into its fixed 18-byte layout.
func (s *NodeState) Marshal() []byte {
	b := make([]byte, StateSize)
	binary.LittleEndian.PutUint64(b[0:8], s.Timestamp)
	binary.LittleEndian.PutUint16(b[8:10], s.ID)
	binary.LittleEndian.PutUint16(b[10:12], s.Port)
	binary.LittleEndian.PutUint32(b[12:16], s.IPAddr)
	copy(b[16:18], s.Mode[:])
	return b
}

// UnmarshalNodeState decodes a packed record.
func UnmarshalNodeState(b []byte) (NodeState, error) {
	if len(b) != StateSize {
		return NodeState{}, fmt.Errorf("%w: %d bytes, want %d", ErrRecordSize, len(b), StateSize)
	}
	var s NodeState
	s.Timestamp = binary.LittleEndian.Uint64(b[0:8])
	s.ID = binary.LittleEndian.Uint16(b[8:10])
	s.Port = binary.LittleEndian.Uint16(b[10:12])
	s.IPAddr = binary.LittleEndian.Uint32(b[12:16])
	copy(s.Mode[:], b[16:18])
	return s, nil
}
