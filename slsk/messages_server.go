package slsk

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// Server-link message codes, numbered per the live Soulseek server protocol.
// The protocol is not publicly specified and may grow new codes at any
// time; anything this package doesn't recognize decodes as ServerUnknown
// rather than failing the connection.
const (
	codeLogin                   uint32 = 1
	codeSetListenPort            uint32 = 2
	codeGetPeerAddress           uint32 = 3
	codeWatchUser                uint32 = 5
	codeUnwatchUser              uint32 = 6
	codeGetUserStatus            uint32 = 7
	codeSayChatroom              uint32 = 13
	codeJoinRoom                 uint32 = 14
	codeLeaveRoom                uint32 = 15
	codeUserJoinedRoom           uint32 = 16
	codeUserLeftRoom             uint32 = 17
	codeConnectToPeer            uint32 = 18
	codePrivateMessage           uint32 = 22
	codeAckPrivateMessage        uint32 = 23
	codeFileSearch               uint32 = 26
	codeSetOnlineStatus          uint32 = 28
	codeSharedFoldersAndFiles    uint32 = 35
	codeGetUserStats             uint32 = 36
	codeKickedFromServer         uint32 = 41
	codeUserSearch               uint32 = 42
	codeRoomList                 uint32 = 64
	codePrivilegedUsers          uint32 = 69
	codeHaveNoParents            uint32 = 71
	codeParentMinSpeed           uint32 = 83
	codeParentSpeedRatio         uint32 = 84
	codeCheckPrivileges          uint32 = 92
	codeEmbeddedMessage          uint32 = 93
	codeAcceptChildren           uint32 = 100
	codePossibleParents          uint32 = 102
	codeWishlistSearch           uint32 = 103
	codeWishlistInterval         uint32 = 104
	codeBranchLevel              uint32 = 126
	codeBranchRoot                uint32 = 127
	codeChildDepth                uint32 = 129
	codeCantConnectToPeer        uint32 = 1001
)

const loginVersion = 157
const loginMinorVersion = 19

// LoginDigest hashes username||password the way the server expects: a
// single md5 digest over the concatenation, no separator.
func LoginDigest(username, password string) string {
	sum := md5.Sum([]byte(username + password))
	return hex.EncodeToString(sum[:])
}

// LoginRequest is the first frame sent on every server link.
type LoginRequest struct {
	Username string
	Password string
}

func (m LoginRequest) Encode() []byte {
	var w Writer
	w.String(m.Username)
	w.String(m.Password)
	w.U32(loginVersion)
	w.String(LoginDigest(m.Username, m.Password))
	w.U32(loginMinorVersion)
	return WriteHeader(FamilyServer, codeLogin, w.Payload())
}

// LoginResult is either a Success or a Failure, never both.
type LoginResult struct {
	Success         bool
	Greeting        string
	ServerIP        [4]byte
	PasswordDigest  string
	FailureReason   string
}

func decodeLoginResult(body []byte) (LoginResult, error) {
	r := NewReader(body)
	ok, err := r.Bool()
	if err != nil {
		return LoginResult{}, &DecodeError{Family: "server", Code: int(codeLogin), Cause: err}
	}
	if !ok {
		reason, err := r.String()
		if err != nil {
			return LoginResult{}, &DecodeError{Family: "server", Code: int(codeLogin), Cause: err}
		}
		return LoginResult{Success: false, FailureReason: reason}, nil
	}
	greeting, err := r.String()
	if err != nil {
		return LoginResult{}, &DecodeError{Family: "server", Code: int(codeLogin), Cause: err}
	}
	ip, err := r.IPv4()
	if err != nil {
		return LoginResult{}, &DecodeError{Family: "server", Code: int(codeLogin), Cause: err}
	}
	digest := ""
	if r.Remaining() > 0 {
		digest, _ = r.String()
	}
	return LoginResult{Success: true, Greeting: greeting, ServerIP: ip, PasswordDigest: digest}, nil
}

// SetListenPort tells the server which port we accept direct peer
// connections on.
type SetListenPort struct {
	Port uint32
}

func (m SetListenPort) Encode() []byte {
	var w Writer
	w.U32(m.Port)
	return WriteHeader(FamilyServer, codeSetListenPort, w.Payload())
}

// GetPeerAddress both requests and receives a peer's resolved address;
// the server reuses the request code for its reply.
type GetPeerAddress struct {
	Username string
}

func (m GetPeerAddress) Encode() []byte {
	var w Writer
	w.String(m.Username)
	return WriteHeader(FamilyServer, codeGetPeerAddress, w.Payload())
}

// PeerAddress is the GetPeerAddress reply: a resolved username, IP and
// port. A zero IP means the user is offline or unknown to the server.
type PeerAddress struct {
	Username string
	IP       [4]byte
	Port     uint16
}

func decodePeerAddress(body []byte) (PeerAddress, error) {
	r := NewReader(body)
	username, err := r.String()
	if err != nil {
		return PeerAddress{}, &DecodeError{Family: "server", Code: int(codeGetPeerAddress), Cause: err}
	}
	ip, err := r.IPv4()
	if err != nil {
		return PeerAddress{}, &DecodeError{Family: "server", Code: int(codeGetPeerAddress), Cause: err}
	}
	port, err := r.U32()
	if err != nil {
		return PeerAddress{}, &DecodeError{Family: "server", Code: int(codeGetPeerAddress), Cause: err}
	}
	return PeerAddress{Username: username, IP: ip, Port: uint16(port)}, nil
}

// WatchUser subscribes to status updates for a username.
type WatchUser struct {
	Username string
}

func (m WatchUser) Encode() []byte {
	var w Writer
	w.String(m.Username)
	return WriteHeader(FamilyServer, codeWatchUser, w.Payload())
}

// UserStatus reports whether a watched user is offline, away or online.
type UserStatus struct {
	Username   string
	Status     uint32
	Privileged bool
}

func decodeUserStatus(body []byte) (UserStatus, error) {
	r := NewReader(body)
	username, err := r.String()
	if err != nil {
		return UserStatus{}, &DecodeError{Family: "server", Code: int(codeGetUserStatus), Cause: err}
	}
	status, err := r.U32()
	if err != nil {
		return UserStatus{}, &DecodeError{Family: "server", Code: int(codeGetUserStatus), Cause: err}
	}
	privileged := false
	if r.Remaining() > 0 {
		privileged, _ = r.Bool()
	}
	return UserStatus{Username: username, Status: status, Privileged: privileged}, nil
}

// ConnectToPeer is the server's invitation to dial a peer who could not
// reach us directly. It is decode-only; our own request asking the server
// to relay such an invitation is RequestConnectToPeer.
type ConnectToPeer struct {
	Username       string
	ConnectionType string
	IP             [4]byte
	Port           uint32
	Token          Token
	Privileged     bool
}

func decodeConnectToPeer(body []byte) (ConnectToPeer, error) {
	r := NewReader(body)
	username, err := r.String()
	if err != nil {
		return ConnectToPeer{}, &DecodeError{Family: "server", Code: int(codeConnectToPeer), Cause: err}
	}
	connType, err := r.String()
	if err != nil {
		return ConnectToPeer{}, &DecodeError{Family: "server", Code: int(codeConnectToPeer), Cause: err}
	}
	ip, err := r.IPv4()
	if err != nil {
		return ConnectToPeer{}, &DecodeError{Family: "server", Code: int(codeConnectToPeer), Cause: err}
	}
	port, err := r.U32()
	if err != nil {
		return ConnectToPeer{}, &DecodeError{Family: "server", Code: int(codeConnectToPeer), Cause: err}
	}
	token, err := r.U32()
	if err != nil {
		return ConnectToPeer{}, &DecodeError{Family: "server", Code: int(codeConnectToPeer), Cause: err}
	}
	privileged := false
	if r.Remaining() > 0 {
		privileged, _ = r.Bool()
	}
	return ConnectToPeer{Username: username, ConnectionType: connType, IP: ip, Port: port, Token: Token(token), Privileged: privileged}, nil
}

// RequestConnectToPeer asks the server to relay a ConnectToPeer
// invitation to username on our behalf, for the indirect-connection
// fallback.
type RequestConnectToPeer struct {
	Token          Token
	Username       string
	ConnectionType string
}

func (m RequestConnectToPeer) Encode() []byte {
	var w Writer
	w.U32(uint32(m.Token))
	w.String(m.Username)
	w.String(m.ConnectionType)
	return WriteHeader(FamilyServer, codeConnectToPeer, w.Payload())
}

// CantConnectToPeer tells the server that the indirect connection attempt
// identified by Ticket, towards Username, did not complete. The p2p
// package sends it with the token of our own RequestConnectToPeer once
// that attempt times out.
type CantConnectToPeer struct {
	Ticket   Token
	Username string
}

func (m CantConnectToPeer) Encode() []byte {
	var w Writer
	w.U32(uint32(m.Ticket))
	if m.Username != "" {
		w.String(m.Username)
	}
	return WriteHeader(FamilyServer, codeCantConnectToPeer, w.Payload())
}

func decodeCantConnectToPeer(body []byte) (CantConnectToPeer, error) {
	r := NewReader(body)
	ticket, err := r.U32()
	if err != nil {
		return CantConnectToPeer{}, &DecodeError{Family: "server", Code: int(codeCantConnectToPeer), Cause: err}
	}
	username := ""
	if r.Remaining() > 0 {
		username, _ = r.String()
	}
	return CantConnectToPeer{Ticket: Token(ticket), Username: username}, nil
}

// SayChatroom is a chat line, either sent by us or received from a room.
type SayChatroom struct {
	Room    string
	Message string
}

func (m SayChatroom) Encode() []byte {
	var w Writer
	w.String(m.Room)
	w.String(m.Message)
	return WriteHeader(FamilyServer, codeSayChatroom, w.Payload())
}

func decodeSayChatroom(body []byte) (SayChatroom, error) {
	r := NewReader(body)
	room, err := r.String()
	if err != nil {
		return SayChatroom{}, wrapServerErr(err, codeSayChatroom)
	}
	message, err := r.String()
	return SayChatroom{Room: room, Message: message}, wrapServerErr(err, codeSayChatroom)
}

// JoinRoom asks the server to join a chat room.
type JoinRoom struct {
	Room string
}

func (m JoinRoom) Encode() []byte {
	var w Writer
	w.String(m.Room)
	return WriteHeader(FamilyServer, codeJoinRoom, w.Payload())
}

// LeaveRoom asks the server to leave a chat room.
type LeaveRoom struct {
	Room string
}

func (m LeaveRoom) Encode() []byte {
	var w Writer
	w.String(m.Room)
	return WriteHeader(FamilyServer, codeLeaveRoom, w.Payload())
}

// UserJoinedRoom announces a new room member.
type UserJoinedRoom struct {
	Room     string
	Username string
}

func decodeUserJoinedRoom(body []byte) (UserJoinedRoom, error) {
	r := NewReader(body)
	room, err := r.String()
	if err != nil {
		return UserJoinedRoom{}, wrapServerErr(err, codeUserJoinedRoom)
	}
	username, err := r.String()
	return UserJoinedRoom{Room: room, Username: username}, wrapServerErr(err, codeUserJoinedRoom)
}

// UserLeftRoom announces a member departing a room.
type UserLeftRoom struct {
	Room     string
	Username string
}

func decodeUserLeftRoom(body []byte) (UserLeftRoom, error) {
	r := NewReader(body)
	room, err := r.String()
	if err != nil {
		return UserLeftRoom{}, wrapServerErr(err, codeUserLeftRoom)
	}
	username, err := r.String()
	return UserLeftRoom{Room: room, Username: username}, wrapServerErr(err, codeUserLeftRoom)
}

// PrivateMessage is an inbound chat message from a user, pending our ack.
type PrivateMessage struct {
	ID        uint32
	Timestamp uint32
	Username  string
	Message   string
	IsAdmin   bool
}

func decodePrivateMessage(body []byte) (PrivateMessage, error) {
	r := NewReader(body)
	id, err := r.U32()
	if err != nil {
		return PrivateMessage{}, &DecodeError{Family: "server", Code: int(codePrivateMessage), Cause: err}
	}
	ts, err := r.U32()
	if err != nil {
		return PrivateMessage{}, &DecodeError{Family: "server", Code: int(codePrivateMessage), Cause: err}
	}
	username, err := r.String()
	if err != nil {
		return PrivateMessage{}, &DecodeError{Family: "server", Code: int(codePrivateMessage), Cause: err}
	}
	message, err := r.String()
	if err != nil {
		return PrivateMessage{}, &DecodeError{Family: "server", Code: int(codePrivateMessage), Cause: err}
	}
	isAdmin := false
	if r.Remaining() > 0 {
		isAdmin, _ = r.Bool()
	}
	return PrivateMessage{ID: id, Timestamp: ts, Username: username, Message: message, IsAdmin: isAdmin}, nil
}

// AckPrivateMessage acknowledges receipt of a PrivateMessage by ID.
type AckPrivateMessage struct {
	ID uint32
}

func (m AckPrivateMessage) Encode() []byte {
	var w Writer
	w.U32(m.ID)
	return WriteHeader(FamilyServer, codeAckPrivateMessage, w.Payload())
}

// FileSearch issues a global search under a fresh ticket.
type FileSearch struct {
	Ticket uint32
	Query  string
}

func (m FileSearch) Encode() []byte {
	var w Writer
	w.U32(m.Ticket)
	w.String(m.Query)
	return WriteHeader(FamilyServer, codeFileSearch, w.Payload())
}

// UserSearch issues a search scoped to a single username's shares.
type UserSearch struct {
	Username string
	Ticket   uint32
	Query    string
}

func (m UserSearch) Encode() []byte {
	var w Writer
	w.String(m.Username)
	w.U32(m.Ticket)
	w.String(m.Query)
	return WriteHeader(FamilyServer, codeUserSearch, w.Payload())
}

// WishlistSearch issues a search from the periodic wishlist rotation.
type WishlistSearch struct {
	Ticket uint32
	Query  string
}

func (m WishlistSearch) Encode() []byte {
	var w Writer
	w.U32(m.Ticket)
	w.String(m.Query)
	return WriteHeader(FamilyServer, codeWishlistSearch, w.Payload())
}

// SetOnlineStatus pushes our own presence (1 = online, 2 = away).
type SetOnlineStatus struct {
	Status uint32
}

func (m SetOnlineStatus) Encode() []byte {
	var w Writer
	w.U32(m.Status)
	return WriteHeader(FamilyServer, codeSetOnlineStatus, w.Payload())
}

// SharedFoldersAndFiles reports our share counts to the server.
type SharedFoldersAndFiles struct {
	Folders uint32
	Files   uint32
}

func (m SharedFoldersAndFiles) Encode() []byte {
	var w Writer
	w.U32(m.Folders)
	w.U32(m.Files)
	return WriteHeader(FamilyServer, codeSharedFoldersAndFiles, w.Payload())
}

// GetUserStats requests aggregate stats (speed, shares) for a username.
type GetUserStats struct {
	Username string
}

func (m GetUserStats) Encode() []byte {
	var w Writer
	w.String(m.Username)
	return WriteHeader(FamilyServer, codeGetUserStats, w.Payload())
}

// UserStats is the GetUserStats reply.
type UserStats struct {
	Username   string
	AvgSpeed   uint32
	Uploads    uint64
	Files      uint32
	Folders    uint32
}

func decodeUserStats(body []byte) (UserStats, error) {
	r := NewReader(body)
	username, err := r.String()
	if err != nil {
		return UserStats{}, &DecodeError{Family: "server", Code: int(codeGetUserStats), Cause: err}
	}
	avg, err := r.U32()
	if err != nil {
		return UserStats{}, &DecodeError{Family: "server", Code: int(codeGetUserStats), Cause: err}
	}
	uploads, err := r.U64()
	if err != nil {
		return UserStats{}, &DecodeError{Family: "server", Code: int(codeGetUserStats), Cause: err}
	}
	files, err := r.U32()
	if err != nil {
		return UserStats{}, &DecodeError{Family: "server", Code: int(codeGetUserStats), Cause: err}
	}
	folders, err := r.U32()
	if err != nil {
		return UserStats{}, &DecodeError{Family: "server", Code: int(codeGetUserStats), Cause: err}
	}
	return UserStats{Username: username, AvgSpeed: avg, Uploads: uploads, Files: files, Folders: folders}, nil
}

// RoomList is the server's full public room roster.
type RoomList struct {
	Rooms      []string
	UserCounts []uint32
}

func decodeRoomList(body []byte) (RoomList, error) {
	r := NewReader(body)
	rooms, err := r.StringSlice()
	if err != nil {
		return RoomList{}, &DecodeError{Family: "server", Code: int(codeRoomList), Cause: err}
	}
	counts, err := r.U32Slice()
	if err != nil {
		return RoomList{}, &DecodeError{Family: "server", Code: int(codeRoomList), Cause: err}
	}
	return RoomList{Rooms: rooms, UserCounts: counts}, nil
}

// PrivilegedUsers is the server's push of the currently-privileged
// username set.
type PrivilegedUsers struct {
	Usernames []string
}

func decodePrivilegedUsers(body []byte) (PrivilegedUsers, error) {
	r := NewReader(body)
	names, err := r.StringSlice()
	if err != nil {
		return PrivilegedUsers{}, &DecodeError{Family: "server", Code: int(codePrivilegedUsers), Cause: err}
	}
	return PrivilegedUsers{Usernames: names}, nil
}

// HaveNoParents tells the server whether we are looking for a
// distributed-search parent.
type HaveNoParents struct {
	NoParents bool
}

func (m HaveNoParents) Encode() []byte {
	var w Writer
	w.Bool(m.NoParents)
	return WriteHeader(FamilyServer, codeHaveNoParents, w.Payload())
}

// PossibleParents is the server's push of distributed-overlay parent
// candidates.
type PossibleParents struct {
	Parents []Parent
}

func decodePossibleParents(body []byte) (PossibleParents, error) {
	r := NewReader(body)
	n, err := r.U32()
	if err != nil {
		return PossibleParents{}, &DecodeError{Family: "server", Code: int(codePossibleParents), Cause: err}
	}
	parents := make([]Parent, 0, n)
	for i := uint32(0); i < n; i++ {
		username, err := r.String()
		if err != nil {
			return PossibleParents{}, &DecodeError{Family: "server", Code: int(codePossibleParents), Cause: err}
		}
		ip, err := r.IPv4()
		if err != nil {
			return PossibleParents{}, &DecodeError{Family: "server", Code: int(codePossibleParents), Cause: err}
		}
		port, err := r.U32()
		if err != nil {
			return PossibleParents{}, &DecodeError{Family: "server", Code: int(codePossibleParents), Cause: err}
		}
		parents = append(parents, Parent{Username: username, IP: ip, Port: uint16(port)})
	}
	return PossibleParents{Parents: parents}, nil
}

// AcceptChildren toggles whether we accept distributed-overlay children.
type AcceptChildren struct {
	Accept bool
}

func (m AcceptChildren) Encode() []byte {
	var w Writer
	w.Bool(m.Accept)
	return WriteHeader(FamilyServer, codeAcceptChildren, w.Payload())
}

// BranchLevel, BranchRoot and ChildDepth report our position in the
// distributed-search overlay. The spec tracks these for logging only;
// DecodeServer still decodes and forwards BranchLevel and BranchRoot so a
// caller can observe overlay depth. ChildDepth is encode-only: an inbound
// code 129 decodes as ServerUnknown.
type BranchLevel struct{ Level uint32 }
type BranchRoot struct{ Root string }
type ChildDepth struct{ Depth uint32 }

func (m BranchLevel) Encode() []byte {
	var w Writer
	w.U32(m.Level)
	return WriteHeader(FamilyServer, codeBranchLevel, w.Payload())
}

func (m BranchRoot) Encode() []byte {
	var w Writer
	w.String(m.Root)
	return WriteHeader(FamilyServer, codeBranchRoot, w.Payload())
}

func (m ChildDepth) Encode() []byte {
	var w Writer
	w.U32(m.Depth)
	return WriteHeader(FamilyServer, codeChildDepth, w.Payload())
}

// ParentMinSpeed, ParentSpeedRatio and WishlistInterval are server-pushed
// tuning constants for the distributed overlay and the wishlist rotation.
type ParentMinSpeed struct{ Value uint32 }
type ParentSpeedRatio struct{ Value uint32 }
type WishlistInterval struct{ Seconds uint32 }

func decodeParentMinSpeed(body []byte) (ParentMinSpeed, error) {
	r := NewReader(body)
	v, err := r.U32()
	return ParentMinSpeed{Value: v}, wrapServerErr(err, codeParentMinSpeed)
}

func decodeParentSpeedRatio(body []byte) (ParentSpeedRatio, error) {
	r := NewReader(body)
	v, err := r.U32()
	return ParentSpeedRatio{Value: v}, wrapServerErr(err, codeParentSpeedRatio)
}

func decodeWishlistInterval(body []byte) (WishlistInterval, error) {
	r := NewReader(body)
	v, err := r.U32()
	return WishlistInterval{Seconds: v}, wrapServerErr(err, codeWishlistInterval)
}

// CheckPrivileges is the server's push of remaining privileged seconds.
type CheckPrivileges struct{ Seconds uint32 }

func decodeCheckPrivileges(body []byte) (CheckPrivileges, error) {
	r := NewReader(body)
	v, err := r.U32()
	return CheckPrivileges{Seconds: v}, wrapServerErr(err, codeCheckPrivileges)
}

// KickedFromServer is sent by the server before it drops our connection,
// typically because we logged in again elsewhere.
type KickedFromServer struct{}

// ServerUnknown preserves an unrecognized server message's raw code and
// body so callers can log it instead of failing the connection.
type ServerUnknown struct {
	Code uint32
	Body []byte
}

func wrapServerErr(err error, code uint32) error {
	if err == nil {
		return nil
	}
	return &DecodeError{Family: "server", Code: int(code), Cause: err}
}

// ServerMessage is the decoded form of one server-link frame. Exactly one
// field is non-nil.
type ServerMessage struct {
	Login                 *LoginResult
	PeerAddress            *PeerAddress
	UserStatus             *UserStatus
	ConnectToPeer          *ConnectToPeer
	SayChatroom            *SayChatroom
	UserJoinedRoom         *UserJoinedRoom
	UserLeftRoom           *UserLeftRoom
	PrivateMessage         *PrivateMessage
	UserStats              *UserStats
	RoomList               *RoomList
	PrivilegedUsers        *PrivilegedUsers
	PossibleParents        *PossibleParents
	BranchLevel            *BranchLevel
	BranchRoot             *BranchRoot
	ParentMinSpeed         *ParentMinSpeed
	ParentSpeedRatio       *ParentSpeedRatio
	WishlistInterval       *WishlistInterval
	CheckPrivileges        *CheckPrivileges
	CantConnectToPeer      *CantConnectToPeer
	KickedFromServer       *KickedFromServer
	Unknown                *ServerUnknown
}

// DecodeServer dispatches a server-family frame body by code.
func DecodeServer(code uint32, body []byte) (ServerMessage, error) {
	switch code {
	case codeLogin:
		m, err := decodeLoginResult(body)
		if err != nil {
			return ServerMessage{}, err
		}
		return ServerMessage{Login: &m}, nil
	case codeGetPeerAddress:
		m, err := decodePeerAddress(body)
		if err != nil {
			return ServerMessage{}, err
		}
		return ServerMessage{PeerAddress: &m}, nil
	case codeGetUserStatus:
		m, err := decodeUserStatus(body)
		if err != nil {
			return ServerMessage{}, err
		}
		return ServerMessage{UserStatus: &m}, nil
	case codeConnectToPeer:
		m, err := decodeConnectToPeer(body)
		if err != nil {
			return ServerMessage{}, err
		}
		return ServerMessage{ConnectToPeer: &m}, nil
	case codeSayChatroom:
		m, err := decodeSayChatroom(body)
		if err != nil {
			return ServerMessage{}, err
		}
		return ServerMessage{SayChatroom: &m}, nil
	case codeUserJoinedRoom:
		m, err := decodeUserJoinedRoom(body)
		if err != nil {
			return ServerMessage{}, err
		}
		return ServerMessage{UserJoinedRoom: &m}, nil
	case codeUserLeftRoom:
		m, err := decodeUserLeftRoom(body)
		if err != nil {
			return ServerMessage{}, err
		}
		return ServerMessage{UserLeftRoom: &m}, nil
	case codePrivateMessage:
		m, err := decodePrivateMessage(body)
		if err != nil {
			return ServerMessage{}, err
		}
		return ServerMessage{PrivateMessage: &m}, nil
	case codeGetUserStats:
		m, err := decodeUserStats(body)
		if err != nil {
			return ServerMessage{}, err
		}
		return ServerMessage{UserStats: &m}, nil
	case codeRoomList:
		m, err := decodeRoomList(body)
		if err != nil {
			return ServerMessage{}, err
		}
		return ServerMessage{RoomList: &m}, nil
	case codePrivilegedUsers:
		m, err := decodePrivilegedUsers(body)
		if err != nil {
			return ServerMessage{}, err
		}
		return ServerMessage{PrivilegedUsers: &m}, nil
	case codePossibleParents:
		m, err := decodePossibleParents(body)
		if err != nil {
			return ServerMessage{}, err
		}
		return ServerMessage{PossibleParents: &m}, nil
	case codeBranchLevel:
		r := NewReader(body)
		v, err := r.U32()
		if err != nil {
			return ServerMessage{}, wrapServerErr(err, code)
		}
		m := BranchLevel{Level: v}
		return ServerMessage{BranchLevel: &m}, nil
	case codeBranchRoot:
		r := NewReader(body)
		v, err := r.String()
		if err != nil {
			return ServerMessage{}, wrapServerErr(err, code)
		}
		m := BranchRoot{Root: v}
		return ServerMessage{BranchRoot: &m}, nil
	case codeParentMinSpeed:
		m, err := decodeParentMinSpeed(body)
		if err != nil {
			return ServerMessage{}, err
		}
		return ServerMessage{ParentMinSpeed: &m}, nil
	case codeParentSpeedRatio:
		m, err := decodeParentSpeedRatio(body)
		if err != nil {
			return ServerMessage{}, err
		}
		return ServerMessage{ParentSpeedRatio: &m}, nil
	case codeWishlistInterval:
		m, err := decodeWishlistInterval(body)
		if err != nil {
			return ServerMessage{}, err
		}
		return ServerMessage{WishlistInterval: &m}, nil
	case codeCheckPrivileges:
		m, err := decodeCheckPrivileges(body)
		if err != nil {
			return ServerMessage{}, err
		}
		return ServerMessage{CheckPrivileges: &m}, nil
	case codeCantConnectToPeer:
		m, err := decodeCantConnectToPeer(body)
		if err != nil {
			return ServerMessage{}, err
		}
		return ServerMessage{CantConnectToPeer: &m}, nil
	case codeKickedFromServer:
		return ServerMessage{KickedFromServer: &KickedFromServer{}}, nil
	default:
		return ServerMessage{Unknown: &ServerUnknown{Code: code, Body: body}}, nil
	}
}

// String renders a ServerMessage for log lines.
func (m ServerMessage) String() string {
	switch {
	case m.Login != nil:
		return "Login"
	case m.PeerAddress != nil:
		return fmt.Sprintf("PeerAddress(%s)", m.PeerAddress.Username)
	case m.UserStatus != nil:
		return fmt.Sprintf("UserStatus(%s)", m.UserStatus.Username)
	case m.ConnectToPeer != nil:
		return fmt.Sprintf("ConnectToPeer(%s)", m.ConnectToPeer.Username)
	case m.SayChatroom != nil:
		return fmt.Sprintf("SayChatroom(%s)", m.SayChatroom.Room)
	case m.UserJoinedRoom != nil:
		return fmt.Sprintf("UserJoinedRoom(%s,%s)", m.UserJoinedRoom.Room, m.UserJoinedRoom.Username)
	case m.UserLeftRoom != nil:
		return fmt.Sprintf("UserLeftRoom(%s,%s)", m.UserLeftRoom.Room, m.UserLeftRoom.Username)
	case m.PrivateMessage != nil:
		return "PrivateMessage"
	case m.UserStats != nil:
		return fmt.Sprintf("UserStats(%s)", m.UserStats.Username)
	case m.RoomList != nil:
		return "RoomList"
	case m.PrivilegedUsers != nil:
		return "PrivilegedUsers"
	case m.PossibleParents != nil:
		return "PossibleParents"
	case m.BranchLevel != nil:
		return "BranchLevel"
	case m.BranchRoot != nil:
		return "BranchRoot"
	case m.ParentMinSpeed != nil:
		return "ParentMinSpeed"
	case m.ParentSpeedRatio != nil:
		return "ParentSpeedRatio"
	case m.WishlistInterval != nil:
		return "WishlistInterval"
	case m.CheckPrivileges != nil:
		return "CheckPrivileges"
	case m.CantConnectToPeer != nil:
		return "CantConnectToPeer"
	case m.KickedFromServer != nil:
		return "KickedFromServer"
	default:
		return fmt.Sprintf("Unknown(%d)", m.Unknown.Code)
	}
}
