package slsk

import "errors"

// Peer-init connection messages: the five-byte-header handshake every new
// peer TCP connection exchanges before it is reclassified into P2P,
// FileTransfer or Distributed. Both messages fit in one frame each; there
// is no Unknown fallback at this layer since a connection that sends
// anything else is simply closed.

const (
	PierceFireWallCode uint32 = 0
	PeerInitCode       uint32 = 1
)

// PierceFirewall answers an indirect ConnectToPeer invitation, binding the
// new connection back to the token the server handed out.
type PierceFirewall struct {
	Token Token
}

func (m PierceFirewall) Encode() []byte {
	var w Writer
	w.U32(uint32(m.Token))
	return WriteHeader(FamilyPeerInit, PierceFireWallCode, w.Payload())
}

func DecodePierceFirewall(body []byte) (PierceFirewall, error) {
	r := NewReader(body)
	token, err := r.U32()
	if err != nil {
		return PierceFirewall{}, &DecodeError{Family: "peer-init", Code: int(PierceFireWallCode), Cause: err}
	}
	return PierceFirewall{Token: Token(token)}, nil
}

// PeerInit opens a direct connection and declares what it will be used
// for. ConnectionType is one of "P", "F", "D".
type PeerInit struct {
	Username       string
	ConnectionType string
	Token          Token
}

func (m PeerInit) Encode() []byte {
	var w Writer
	w.String(m.Username)
	w.String(m.ConnectionType)
	w.U32(uint32(m.Token))
	return WriteHeader(FamilyPeerInit, PeerInitCode, w.Payload())
}

func DecodePeerInit(body []byte) (PeerInit, error) {
	r := NewReader(body)
	username, err := r.String()
	if err != nil {
		return PeerInit{}, &DecodeError{Family: "peer-init", Code: int(PeerInitCode), Cause: err}
	}
	connType, err := r.String()
	if err != nil {
		return PeerInit{}, &DecodeError{Family: "peer-init", Code: int(PeerInitCode), Cause: err}
	}
	token, err := r.U32()
	if err != nil {
		return PeerInit{}, &DecodeError{Family: "peer-init", Code: int(PeerInitCode), Cause: err}
	}
	return PeerInit{Username: username, ConnectionType: connType, Token: Token(token)}, nil
}

// HandshakeMessage is whichever of the two peer-init messages arrived on a
// fresh connection.
type HandshakeMessage struct {
	PierceFirewall *PierceFirewall
	PeerInit       *PeerInit
}

// DecodeHandshake dispatches a peer-init frame body by code.
func DecodeHandshake(code uint32, body []byte) (HandshakeMessage, error) {
	switch code {
	case PierceFireWallCode:
		m, err := DecodePierceFirewall(body)
		if err != nil {
			return HandshakeMessage{}, err
		}
		return HandshakeMessage{PierceFirewall: &m}, nil
	case PeerInitCode:
		m, err := DecodePeerInit(body)
		if err != nil {
			return HandshakeMessage{}, err
		}
		return HandshakeMessage{PeerInit: &m}, nil
	default:
		return HandshakeMessage{}, &DecodeError{Family: "peer-init", Code: int(code), Cause: errors.New("unknown peer-init message code")}
	}
}
