package slsk

// Distributed-overlay message codes. This family carries the
// search-fan-out tree: a parent pushes SearchRequest down to its
// children, and Ping/BranchLevel/BranchRoot/ChildDepth keep the tree's
// shape visible.
const (
	codeDistPing                 uint8 = 0
	codeDistSearchRequest        uint8 = 3
	codeDistBranchLevel          uint8 = 4
	codeDistBranchRoot           uint8 = 5
	codeDistChildDepth           uint8 = 7
	codeDistServerSearchRequest  uint8 = 93
)

// DistPing keeps a parent-child link alive. No payload.
type DistPing struct{}

func (m DistPing) Encode() []byte {
	return WriteHeader(FamilyDistributed, uint32(codeDistPing), nil)
}

// DistSearchRequest is a query relayed down the overlay from the branch
// root that originated it. Unknown is carried through unexamined; the
// original protocol never documented its purpose.
type DistSearchRequest struct {
	Unknown  uint32
	Username string
	Ticket   uint32
	Query    string
}

func (m DistSearchRequest) Encode() []byte {
	var w Writer
	w.U32(m.Unknown)
	w.String(m.Username)
	w.U32(m.Ticket)
	w.String(m.Query)
	return WriteHeader(FamilyDistributed, uint32(codeDistSearchRequest), w.Payload())
}

func decodeDistSearchRequest(body []byte) (DistSearchRequest, error) {
	r := NewReader(body)
	unknown, err := r.U32()
	if err != nil {
		return DistSearchRequest{}, &DecodeError{Family: "distributed", Code: int(codeDistSearchRequest), Cause: err}
	}
	username, err := r.String()
	if err != nil {
		return DistSearchRequest{}, &DecodeError{Family: "distributed", Code: int(codeDistSearchRequest), Cause: err}
	}
	ticket, err := r.U32()
	if err != nil {
		return DistSearchRequest{}, &DecodeError{Family: "distributed", Code: int(codeDistSearchRequest), Cause: err}
	}
	query, err := r.String()
	if err != nil {
		return DistSearchRequest{}, &DecodeError{Family: "distributed", Code: int(codeDistSearchRequest), Cause: err}
	}
	return DistSearchRequest{Unknown: unknown, Username: username, Ticket: ticket, Query: query}, nil
}

// DistBranchLevel announces this node's depth in the overlay to its
// children.
type DistBranchLevel struct{ Level uint32 }

func (m DistBranchLevel) Encode() []byte {
	var w Writer
	w.U32(m.Level)
	return WriteHeader(FamilyDistributed, uint32(codeDistBranchLevel), w.Payload())
}

func decodeDistBranchLevel(body []byte) (DistBranchLevel, error) {
	r := NewReader(body)
	v, err := r.U32()
	if err != nil {
		return DistBranchLevel{}, &DecodeError{Family: "distributed", Code: int(codeDistBranchLevel), Cause: err}
	}
	return DistBranchLevel{Level: v}, nil
}

// DistBranchRoot announces the username at the root of this node's
// branch to its children.
type DistBranchRoot struct{ Root string }

func (m DistBranchRoot) Encode() []byte {
	var w Writer
	w.String(m.Root)
	return WriteHeader(FamilyDistributed, uint32(codeDistBranchRoot), w.Payload())
}

func decodeDistBranchRoot(body []byte) (DistBranchRoot, error) {
	r := NewReader(body)
	v, err := r.String()
	if err != nil {
		return DistBranchRoot{}, &DecodeError{Family: "distributed", Code: int(codeDistBranchRoot), Cause: err}
	}
	return DistBranchRoot{Root: v}, nil
}

// DistChildDepth reports how many additional levels this node's own
// children extend the overlay by.
type DistChildDepth struct{ Depth uint32 }

func (m DistChildDepth) Encode() []byte {
	var w Writer
	w.U32(m.Depth)
	return WriteHeader(FamilyDistributed, uint32(codeDistChildDepth), w.Payload())
}

func decodeDistChildDepth(body []byte) (DistChildDepth, error) {
	r := NewReader(body)
	v, err := r.U32()
	if err != nil {
		return DistChildDepth{}, &DecodeError{Family: "distributed", Code: int(codeDistChildDepth), Cause: err}
	}
	return DistChildDepth{Depth: v}, nil
}

// DistServerSearchRequest is a search embedded verbatim by the server
// rather than relayed from another peer; this package treats its body
// as opaque since the original protocol documentation never settled on
// its inner shape.
type DistServerSearchRequest struct {
	Body []byte
}

// DistUnknown preserves an unrecognized distributed message's raw code
// and body.
type DistUnknown struct {
	Code uint8
	Body []byte
}

// DistributedMessage is the decoded form of one distributed-family
// frame. Exactly one field is non-nil.
type DistributedMessage struct {
	Ping                 *DistPing
	SearchRequest        *DistSearchRequest
	BranchLevel          *DistBranchLevel
	BranchRoot           *DistBranchRoot
	ChildDepth           *DistChildDepth
	ServerSearchRequest  *DistServerSearchRequest
	Unknown              *DistUnknown
}

// DecodeDistributed dispatches a distributed-family frame body by code.
func DecodeDistributed(code uint32, body []byte) (DistributedMessage, error) {
	switch uint8(code) {
	case codeDistPing:
		return DistributedMessage{Ping: &DistPing{}}, nil
	case codeDistSearchRequest:
		m, err := decodeDistSearchRequest(body)
		if err != nil {
			return DistributedMessage{}, err
		}
		return DistributedMessage{SearchRequest: &m}, nil
	case codeDistBranchLevel:
		m, err := decodeDistBranchLevel(body)
		if err != nil {
			return DistributedMessage{}, err
		}
		return DistributedMessage{BranchLevel: &m}, nil
	case codeDistBranchRoot:
		m, err := decodeDistBranchRoot(body)
		if err != nil {
			return DistributedMessage{}, err
		}
		return DistributedMessage{BranchRoot: &m}, nil
	case codeDistChildDepth:
		m, err := decodeDistChildDepth(body)
		if err != nil {
			return DistributedMessage{}, err
		}
		return DistributedMessage{ChildDepth: &m}, nil
	case codeDistServerSearchRequest:
		return DistributedMessage{ServerSearchRequest: &DistServerSearchRequest{Body: body}}, nil
	default:
		return DistributedMessage{Unknown: &DistUnknown{Code: uint8(code), Body: body}}, nil
	}
}
