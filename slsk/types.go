package slsk

import "fmt"

// ConnectionKind discriminates what a peer connection is used for. Every
// peer connection begins as HandShake and transitions exactly once to one
// of the other three kinds.
type ConnectionKind uint8

const (
	HandShake ConnectionKind = iota
	P2P
	Distributed
	FileTransfer
)

func (k ConnectionKind) String() string {
	switch k {
	case HandShake:
		return "HandShake"
	case P2P:
		return "P2P"
	case Distributed:
		return "Distributed"
	case FileTransfer:
		return "FileTransfer"
	default:
		return fmt.Sprintf("ConnectionKind(%d)", uint8(k))
	}
}

// ConnectionTypeCode returns the single-byte ASCII code Soulseek uses for
// this kind in a PeerInit handshake ("P", "F", "D"). HandShake has no wire
// representation of its own.
func (k ConnectionKind) ConnectionTypeCode() string {
	switch k {
	case P2P:
		return "P"
	case FileTransfer:
		return "F"
	case Distributed:
		return "D"
	default:
		return ""
	}
}

// ConnectionKindFromCode parses the single-letter wire code used by
// PeerInit. Unknown codes map to HandShake so callers can fail explicitly
// rather than silently misroute.
func ConnectionKindFromCode(code string) (ConnectionKind, bool) {
	switch code {
	case "P":
		return P2P, true
	case "F":
		return FileTransfer, true
	case "D":
		return Distributed, true
	default:
		return HandShake, false
	}
}

// Token binds an outbound indirect-connection attempt across the server
// round trip. Token 0 is reserved for an incoming connection that delivers
// a single search reply and is expected to close without registration.
type Token uint32

// IsEphemeral reports whether this token marks a one-shot search-reply
// delivery connection, per spec.
func (t Token) IsEphemeral() bool { return t == 0 }

// PeerRecord is a resolved peer address, persisted and refreshed whenever
// the server reports it again.
type PeerRecord struct {
	Username string
	IP       [4]byte
	Port     uint16
}

func (p PeerRecord) Address() string {
	return fmt.Sprintf("%d.%d.%d.%d:%d", p.IP[0], p.IP[1], p.IP[2], p.IP[3], p.Port)
}

// Parent is structurally identical to PeerRecord: an entry of a
// PossibleParents push from the server. Kept as a distinct name at call
// sites to document provenance, not as a distinct shape.
type Parent = PeerRecord

// Phase is the lifecycle stage of a ConnectionState.
type Phase uint8

const (
	ExpectingIndirect Phase = iota
	HandshakeSent
	Ready
	Closed
)

func (p Phase) String() string {
	switch p {
	case ExpectingIndirect:
		return "ExpectingIndirect"
	case HandshakeSent:
		return "HandshakeSent"
	case Ready:
		return "Ready"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// ConnectionState is a snapshot of one peer connection's registry entry.
// Egress is nil until the handshake completes.
type ConnectionState struct {
	Token    Token
	Username string
	Kind     ConnectionKind
	Egress   chan<- PeerRequestPacket
	Phase    Phase
}

// DownloadRecord tracks an in-flight or completed inbound download, keyed
// by (User, Ticket). Only the owning file-transfer connection mutates
// BytesProgressed.
type DownloadRecord struct {
	User            string
	Ticket          uint32
	Filename        string
	FileSize        uint64
	BytesProgressed uint64
}

// UploadRecord tracks one entry of the outbound upload queue.
type UploadRecord struct {
	User         string
	Filename     string
	Ticket       uint32
	PlaceInQueue uint32
}

// SearchLimit is a process-wide singleton: the current search ticket and
// how many more SearchReply events for it may still reach the event
// outlet.
type SearchLimit struct {
	CurrentTicket  uint32
	RemainingEmits int
}

// Reset starts tracking a fresh ticket with n allowed emits.
func (s *SearchLimit) Reset(ticket uint32, n int) {
	s.CurrentTicket = ticket
	s.RemainingEmits = n
}

// Allow reports whether a SearchReply for ticket may still be emitted, and
// if so decrements the remaining count. Replies for any other ticket (a
// stale search) are always rejected.
func (s *SearchLimit) Allow(ticket uint32) bool {
	if ticket != s.CurrentTicket || s.RemainingEmits <= 0 {
		return false
	}
	s.RemainingEmits--
	return true
}
