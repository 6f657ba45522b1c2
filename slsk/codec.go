package slsk

import (
	"encoding/binary"
	"errors"
)

// Family identifies which of the four framings a connection is currently
// speaking.
type Family uint8

const (
	FamilyServer Family = iota
	FamilyPeerInit
	FamilyP2P
	FamilyDistributed
)

// headerLen is the fixed header size (length prefix + code) for a family.
func (f Family) headerLen() int {
	switch f {
	case FamilyServer, FamilyP2P:
		return 8
	case FamilyPeerInit, FamilyDistributed:
		return 5
	default:
		return 0
	}
}

func (f Family) codeLen() int {
	switch f {
	case FamilyServer, FamilyP2P:
		return 4
	case FamilyPeerInit, FamilyDistributed:
		return 1
	default:
		return 0
	}
}

func (f Family) String() string {
	switch f {
	case FamilyServer:
		return "server"
	case FamilyPeerInit:
		return "peer-init"
	case FamilyP2P:
		return "p2p"
	case FamilyDistributed:
		return "distributed"
	default:
		return "unknown-family"
	}
}

// Header is the probed, non-consuming result of reading a frame's length
// and code. BodyLen excludes the code itself; FrameLen is the total number
// of bytes (header + body) that must be present before Decode can consume
// the frame.
type Header struct {
	Family   Family
	Code     uint32
	BodyLen  int
	FrameLen int
}

// ProbeHeader reads the length+code prefix of buf without consuming
// anything. It fails with Incomplete if fewer bytes than the family's
// header length are available.
func ProbeHeader(family Family, buf []byte) (Header, error) {
	hl := family.headerLen()
	if len(buf) < hl {
		return Header{}, Incomplete
	}
	declared := binary.LittleEndian.Uint32(buf[0:4])
	codeLen := family.codeLen()
	var code uint32
	switch codeLen {
	case 1:
		code = uint32(buf[4])
	case 4:
		code = binary.LittleEndian.Uint32(buf[4:8])
	}
	// declared counts every byte after the length field itself, i.e. code + body.
	bodyLen := int(declared) - codeLen
	if bodyLen < 0 {
		return Header{}, &DecodeError{Family: family.String(), Code: int(code), Cause: errors.New("declared length shorter than the message code")}
	}
	return Header{
		Family:   family,
		Code:     code,
		BodyLen:  bodyLen,
		FrameLen: 4 + int(declared),
	}, nil
}

// CheckAvailable fails with Incomplete if the frame body hasn't fully
// arrived yet.
func CheckAvailable(buf []byte, h Header) error {
	if len(buf) < h.FrameLen {
		return Incomplete
	}
	return nil
}

// Body returns the frame's payload bytes (after the header, before the
// next frame), given a buffer that CheckAvailable has already confirmed
// holds the full frame.
func Body(buf []byte, h Header) []byte {
	hl := h.Family.headerLen()
	return buf[hl:h.FrameLen]
}

// WriteHeader writes the length+code prefix for a family given a fully
// built payload, returning the complete frame bytes.
func WriteHeader(family Family, code uint32, payload []byte) []byte {
	codeLen := family.codeLen()
	declared := uint32(codeLen + len(payload))
	out := make([]byte, 0, 4+int(declared))
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], declared)
	out = append(out, lenBuf[:]...)
	switch codeLen {
	case 1:
		out = append(out, byte(code))
	case 4:
		var cb [4]byte
		binary.LittleEndian.PutUint32(cb[:], code)
		out = append(out, cb[:]...)
	}
	out = append(out, payload...)
	return out
}
