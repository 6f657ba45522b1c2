package slsk

// Frame is one fully decoded message, tagged by which family produced
// it. Exactly one of the family fields is non-nil.
type Frame struct {
	Family      Family
	Server      *ServerMessage
	Handshake   *HandshakeMessage
	Peer        *PeerResponsePacket
	Distributed *DistributedMessage
}

// Decode attempts to pull exactly one frame off buf's unconsumed bytes.
// On success it returns the decoded Frame and the number of bytes the
// caller must Advance the buffer by. On Incomplete, the buffer is
// untouched and the caller should wait for more bytes to arrive before
// retrying.
func Decode(family Family, buf *Buffer) (Frame, int, error) {
	h, err := ProbeHeader(family, buf.Bytes())
	if err != nil {
		return Frame{}, 0, err
	}
	if err := CheckAvailable(buf.Bytes(), h); err != nil {
		return Frame{}, 0, err
	}
	body := Body(buf.Bytes(), h)

	switch family {
	case FamilyServer:
		m, err := DecodeServer(h.Code, body)
		if err != nil {
			return Frame{}, 0, err
		}
		return Frame{Family: family, Server: &m}, h.FrameLen, nil
	case FamilyPeerInit:
		m, err := DecodeHandshake(h.Code, body)
		if err != nil {
			return Frame{}, 0, err
		}
		return Frame{Family: family, Handshake: &m}, h.FrameLen, nil
	case FamilyP2P:
		m, err := DecodeP2P(h.Code, body)
		if err != nil {
			return Frame{}, 0, err
		}
		return Frame{Family: family, Peer: &m}, h.FrameLen, nil
	case FamilyDistributed:
		m, err := DecodeDistributed(h.Code, body)
		if err != nil {
			return Frame{}, 0, err
		}
		return Frame{Family: family, Distributed: &m}, h.FrameLen, nil
	default:
		return Frame{}, 0, &DecodeError{Family: family.String(), Code: int(h.Code), Cause: Incomplete}
	}
}
