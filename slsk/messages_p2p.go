package slsk

// P2P message codes: everything exchanged on a connection that has
// completed its handshake as ConnectionKind P2P.
const (
	codeSharesRequest           uint32 = 4
	codeSharesReply             uint32 = 5
	codeP2PSearchRequest        uint32 = 8
	codeP2PSearchReply          uint32 = 9
	codeUserInfoRequest         uint32 = 15
	codeUserInfoReply           uint32 = 16
	codeFolderContentsRequest   uint32 = 36
	codeFolderContentsReply     uint32 = 37
	codeTransferRequest         uint32 = 40
	codeTransferReply           uint32 = 41
	codeUploadPlacehold         uint32 = 42
	codeQueueDownload           uint32 = 43
	codePlaceInQueueReply       uint32 = 44
	codeUploadFailed            uint32 = 46
	codeQueueFailed             uint32 = 50
	codePlaceInQueueRequest     uint32 = 51
	codeUploadQueueNotification uint32 = 52
)

// Attribute is a single (kind, value) audio/media tag entry attached to a
// shared file, e.g. bitrate or duration.
type Attribute struct {
	Place     uint32
	Attribute uint32
}

func (a Attribute) encode(w *Writer) {
	w.U32(a.Place)
	w.U32(a.Attribute)
}

func decodeAttribute(r *Reader) (Attribute, error) {
	place, err := r.U32()
	if err != nil {
		return Attribute{}, err
	}
	attribute, err := r.U32()
	if err != nil {
		return Attribute{}, err
	}
	return Attribute{Place: place, Attribute: attribute}, nil
}

// File describes one shared file as it appears in a SharesReply,
// FolderContentsReply or SearchReply.
type File struct {
	Name       string
	Size       uint64
	Extension  string
	Attributes []Attribute
}

func (f File) encode(w *Writer) {
	w.U8(1) // unused placeholder byte, present on every File entry
	w.String(f.Name)
	w.U64(f.Size)
	w.String(f.Extension)
	w.U32(uint32(len(f.Attributes)))
	for _, a := range f.Attributes {
		a.encode(w)
	}
}

func decodeFile(r *Reader) (File, error) {
	if _, err := r.U8(); err != nil {
		return File{}, err
	}
	name, err := r.String()
	if err != nil {
		return File{}, err
	}
	size, err := r.U64()
	if err != nil {
		return File{}, err
	}
	ext, err := r.String()
	if err != nil {
		return File{}, err
	}
	n, err := r.U32()
	if err != nil {
		return File{}, err
	}
	attrs := make([]Attribute, 0, n)
	for i := uint32(0); i < n; i++ {
		a, err := decodeAttribute(r)
		if err != nil {
			return File{}, err
		}
		attrs = append(attrs, a)
	}
	return File{Name: name, Size: size, Extension: ext, Attributes: attrs}, nil
}

// Directory is one shared folder entry: a path and its direct files.
type Directory struct {
	Name  string
	Files []File
}

func (d Directory) encode(w *Writer) {
	w.String(d.Name)
	w.U32(uint32(len(d.Files)))
	for _, f := range d.Files {
		f.encode(w)
	}
}

func decodeDirectory(r *Reader) (Directory, error) {
	name, err := r.String()
	if err != nil {
		return Directory{}, err
	}
	n, err := r.U32()
	if err != nil {
		return Directory{}, err
	}
	files := make([]File, 0, n)
	for i := uint32(0); i < n; i++ {
		f, err := decodeFile(r)
		if err != nil {
			return Directory{}, err
		}
		files = append(files, f)
	}
	return Directory{Name: name, Files: files}, nil
}

// SharesRequest asks a peer for their full share listing. It carries no
// payload.
type SharesRequest struct{}

func (m SharesRequest) Encode() []byte {
	return WriteHeader(FamilyP2P, codeSharesRequest, nil)
}

// SharesReply is a peer's full share listing, zlib-compressed on the wire
// transparently to the rest of this package.
type SharesReply struct {
	Directories []Directory
}

func (m SharesReply) Encode() []byte {
	var inner Writer
	inner.U32(uint32(len(m.Directories)))
	for _, d := range m.Directories {
		d.encode(&inner)
	}
	return WriteHeader(FamilyP2P, codeSharesReply, deflate(inner.Payload()))
}

func decodeSharesReply(body []byte) (SharesReply, error) {
	raw, err := inflate(body)
	if err != nil {
		return SharesReply{}, &DecodeError{Family: "p2p", Code: int(codeSharesReply), Cause: err}
	}
	r := NewReader(raw)
	n, err := r.U32()
	if err != nil {
		return SharesReply{}, &DecodeError{Family: "p2p", Code: int(codeSharesReply), Cause: err}
	}
	dirs := make([]Directory, 0, n)
	for i := uint32(0); i < n; i++ {
		d, err := decodeDirectory(r)
		if err != nil {
			return SharesReply{}, &DecodeError{Family: "p2p", Code: int(codeSharesReply), Cause: err}
		}
		dirs = append(dirs, d)
	}
	return SharesReply{Directories: dirs}, nil
}

// SearchReply is a peer's zlib-compressed answer to a search query
// previously broadcast through the distributed overlay or the server.
type SearchReply struct {
	Username       string
	Ticket         uint32
	Files          []File
	SlotFree       bool
	AverageSpeed   uint32
	QueueLength    uint64
	LockedResults  []File
}

func (m SearchReply) Encode() []byte {
	var inner Writer
	inner.String(m.Username)
	inner.U32(m.Ticket)
	inner.U32(uint32(len(m.Files)))
	for _, f := range m.Files {
		f.encode(&inner)
	}
	inner.Bool(m.SlotFree)
	inner.U32(m.AverageSpeed)
	inner.U64(m.QueueLength)
	inner.U32(uint32(len(m.LockedResults)))
	for _, f := range m.LockedResults {
		f.encode(&inner)
	}
	return WriteHeader(FamilyP2P, codeP2PSearchReply, deflate(inner.Payload()))
}

func decodeSearchReply(body []byte) (SearchReply, error) {
	raw, err := inflate(body)
	if err != nil {
		return SearchReply{}, &DecodeError{Family: "p2p", Code: int(codeP2PSearchReply), Cause: err}
	}
	r := NewReader(raw)
	username, err := r.String()
	if err != nil {
		return SearchReply{}, &DecodeError{Family: "p2p", Code: int(codeP2PSearchReply), Cause: err}
	}
	ticket, err := r.U32()
	if err != nil {
		return SearchReply{}, &DecodeError{Family: "p2p", Code: int(codeP2PSearchReply), Cause: err}
	}
	n, err := r.U32()
	if err != nil {
		return SearchReply{}, &DecodeError{Family: "p2p", Code: int(codeP2PSearchReply), Cause: err}
	}
	files := make([]File, 0, n)
	for i := uint32(0); i < n; i++ {
		f, err := decodeFile(r)
		if err != nil {
			return SearchReply{}, &DecodeError{Family: "p2p", Code: int(codeP2PSearchReply), Cause: err}
		}
		files = append(files, f)
	}
	slotFree, err := r.Bool()
	if err != nil {
		return SearchReply{}, &DecodeError{Family: "p2p", Code: int(codeP2PSearchReply), Cause: err}
	}
	avgSpeed, err := r.U32()
	if err != nil {
		return SearchReply{}, &DecodeError{Family: "p2p", Code: int(codeP2PSearchReply), Cause: err}
	}
	queueLength, err := r.U64()
	if err != nil {
		return SearchReply{}, &DecodeError{Family: "p2p", Code: int(codeP2PSearchReply), Cause: err}
	}
	var locked []File
	// Some clients omit the locked-results tail entirely.
	if r.Remaining() > 0 {
		ln, err := r.U32()
		if err == nil {
			locked = make([]File, 0, ln)
			for i := uint32(0); i < ln; i++ {
				f, err := decodeFile(r)
				if err != nil {
					break
				}
				locked = append(locked, f)
			}
		}
	}
	return SearchReply{
		Username: username, Ticket: ticket, Files: files, SlotFree: slotFree,
		AverageSpeed: avgSpeed, QueueLength: queueLength, LockedResults: locked,
	}, nil
}

// UserInfoRequest asks a peer for their profile. No payload.
type UserInfoRequest struct{}

func (m UserInfoRequest) Encode() []byte {
	return WriteHeader(FamilyP2P, codeUserInfoRequest, nil)
}

// UserInfoReply is a peer's profile: free-text description, optional
// picture, upload totals and current slot availability.
type UserInfoReply struct {
	Description  string
	Picture      *string
	TotalUpload  uint32
	QueueSize    uint32
	SlotsFree    bool
}

func (m UserInfoReply) Encode() []byte {
	var w Writer
	w.String(m.Description)
	if m.Picture != nil {
		w.Bool(true)
		w.String(*m.Picture)
	} else {
		w.Bool(false)
	}
	w.U32(m.TotalUpload)
	w.U32(m.QueueSize)
	w.Bool(m.SlotsFree)
	return WriteHeader(FamilyP2P, codeUserInfoReply, w.Payload())
}

func decodeUserInfoReply(body []byte) (UserInfoReply, error) {
	r := NewReader(body)
	description, err := r.String()
	if err != nil {
		return UserInfoReply{}, &DecodeError{Family: "p2p", Code: int(codeUserInfoReply), Cause: err}
	}
	hasPicture, err := r.Bool()
	if err != nil {
		return UserInfoReply{}, &DecodeError{Family: "p2p", Code: int(codeUserInfoReply), Cause: err}
	}
	var picture *string
	if hasPicture {
		p, err := r.String()
		if err == nil {
			picture = &p
		}
	}
	totalUpload, err := r.U32()
	if err != nil {
		return UserInfoReply{}, &DecodeError{Family: "p2p", Code: int(codeUserInfoReply), Cause: err}
	}
	queueSize, err := r.U32()
	if err != nil {
		return UserInfoReply{}, &DecodeError{Family: "p2p", Code: int(codeUserInfoReply), Cause: err}
	}
	slotsFree, err := r.Bool()
	if err != nil {
		return UserInfoReply{}, &DecodeError{Family: "p2p", Code: int(codeUserInfoReply), Cause: err}
	}
	return UserInfoReply{Description: description, Picture: picture, TotalUpload: totalUpload, QueueSize: queueSize, SlotsFree: slotsFree}, nil
}

// FolderContentsRequest asks a peer to list the files under a set of
// folder paths (usually one).
type FolderContentsRequest struct {
	Files []string
}

func (m FolderContentsRequest) Encode() []byte {
	var w Writer
	w.U32(uint32(len(m.Files)))
	for _, f := range m.Files {
		w.String(f)
	}
	return WriteHeader(FamilyP2P, codeFolderContentsRequest, w.Payload())
}

func decodeFolderContentsRequest(body []byte) (FolderContentsRequest, error) {
	r := NewReader(body)
	n, err := r.U32()
	if err != nil {
		return FolderContentsRequest{}, &DecodeError{Family: "p2p", Code: int(codeFolderContentsRequest), Cause: err}
	}
	files := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		f, err := r.String()
		if err != nil {
			return FolderContentsRequest{}, &DecodeError{Family: "p2p", Code: int(codeFolderContentsRequest), Cause: err}
		}
		files = append(files, f)
	}
	return FolderContentsRequest{Files: files}, nil
}

// FolderContentsReply mirrors SharesReply's directory shape, scoped to
// the requested folders.
type FolderContentsReply struct {
	Directories []Directory
}

func (m FolderContentsReply) Encode() []byte {
	var inner Writer
	inner.U32(uint32(len(m.Directories)))
	for _, d := range m.Directories {
		d.encode(&inner)
	}
	return WriteHeader(FamilyP2P, codeFolderContentsReply, deflate(inner.Payload()))
}

func decodeFolderContentsReply(body []byte) (FolderContentsReply, error) {
	raw, err := inflate(body)
	if err != nil {
		return FolderContentsReply{}, &DecodeError{Family: "p2p", Code: int(codeFolderContentsReply), Cause: err}
	}
	r := NewReader(raw)
	n, err := r.U32()
	if err != nil {
		return FolderContentsReply{}, &DecodeError{Family: "p2p", Code: int(codeFolderContentsReply), Cause: err}
	}
	dirs := make([]Directory, 0, n)
	for i := uint32(0); i < n; i++ {
		d, err := decodeDirectory(r)
		if err != nil {
			return FolderContentsReply{}, &DecodeError{Family: "p2p", Code: int(codeFolderContentsReply), Cause: err}
		}
		dirs = append(dirs, d)
	}
	return FolderContentsReply{Directories: dirs}, nil
}

// TransferRequest opens a file-transfer handoff. Direction 0 is a
// download request (peer wants a file from us); direction 1 is an
// upload announcement (peer is about to push a file to us). FileSize is
// only present when Direction == 1.
type TransferRequest struct {
	Direction uint32
	Ticket    uint32
	Filename  string
	FileSize  *uint64
}

func (m TransferRequest) Encode() []byte {
	var w Writer
	w.U32(m.Direction)
	w.U32(m.Ticket)
	w.String(m.Filename)
	if m.FileSize != nil {
		w.U64(*m.FileSize)
	}
	return WriteHeader(FamilyP2P, codeTransferRequest, w.Payload())
}

func decodeTransferRequest(body []byte) (TransferRequest, error) {
	r := NewReader(body)
	direction, err := r.U32()
	if err != nil {
		return TransferRequest{}, &DecodeError{Family: "p2p", Code: int(codeTransferRequest), Cause: err}
	}
	ticket, err := r.U32()
	if err != nil {
		return TransferRequest{}, &DecodeError{Family: "p2p", Code: int(codeTransferRequest), Cause: err}
	}
	filename, err := r.String()
	if err != nil {
		return TransferRequest{}, &DecodeError{Family: "p2p", Code: int(codeTransferRequest), Cause: err}
	}
	var size *uint64
	if r.Remaining() >= 8 {
		v, err := r.U64()
		if err == nil {
			size = &v
		}
	}
	return TransferRequest{Direction: direction, Ticket: ticket, Filename: filename, FileSize: size}, nil
}

// TransferReply answers a TransferRequest: either Allowed with the
// confirmed file size, or Rejected with a human-readable reason.
type TransferReply struct {
	Ticket   uint32
	Allowed  bool
	FileSize *uint64
	Reason   string
}

func (m TransferReply) Encode() []byte {
	var w Writer
	w.U32(m.Ticket)
	w.Bool(m.Allowed)
	if m.Allowed {
		if m.FileSize != nil {
			w.U64(*m.FileSize)
		}
	} else {
		w.String(m.Reason)
	}
	return WriteHeader(FamilyP2P, codeTransferReply, w.Payload())
}

func decodeTransferReply(body []byte) (TransferReply, error) {
	r := NewReader(body)
	ticket, err := r.U32()
	if err != nil {
		return TransferReply{}, &DecodeError{Family: "p2p", Code: int(codeTransferReply), Cause: err}
	}
	allowed, err := r.Bool()
	if err != nil {
		return TransferReply{}, &DecodeError{Family: "p2p", Code: int(codeTransferReply), Cause: err}
	}
	if !allowed {
		reason, _ := r.String()
		return TransferReply{Ticket: ticket, Allowed: false, Reason: reason}, nil
	}
	var size *uint64
	if r.Remaining() >= 8 {
		v, err := r.U64()
		if err == nil {
			size = &v
		}
	}
	return TransferReply{Ticket: ticket, Allowed: true, FileSize: size}, nil
}

// UploadPlacehold marks the first byte of an upload connection as
// legacy-client placeholder traffic; it carries no payload.
type UploadPlacehold struct{}

func (m UploadPlacehold) Encode() []byte {
	return WriteHeader(FamilyP2P, codeUploadPlacehold, nil)
}

// QueueDownload asks a peer to enqueue a file we'll fetch once they have
// a free upload slot.
type QueueDownload struct {
	Filename string
}

func (m QueueDownload) Encode() []byte {
	var w Writer
	w.String(m.Filename)
	return WriteHeader(FamilyP2P, codeQueueDownload, w.Payload())
}

func decodeQueueDownload(body []byte) (QueueDownload, error) {
	r := NewReader(body)
	filename, err := r.String()
	if err != nil {
		return QueueDownload{}, &DecodeError{Family: "p2p", Code: int(codeQueueDownload), Cause: err}
	}
	return QueueDownload{Filename: filename}, nil
}

// PlaceInQueueRequest asks our current queue position for a filename.
type PlaceInQueueRequest struct {
	Filename string
}

func (m PlaceInQueueRequest) Encode() []byte {
	var w Writer
	w.String(m.Filename)
	return WriteHeader(FamilyP2P, codePlaceInQueueRequest, w.Payload())
}

func decodePlaceInQueueRequest(body []byte) (PlaceInQueueRequest, error) {
	r := NewReader(body)
	filename, err := r.String()
	if err != nil {
		return PlaceInQueueRequest{}, &DecodeError{Family: "p2p", Code: int(codePlaceInQueueRequest), Cause: err}
	}
	return PlaceInQueueRequest{Filename: filename}, nil
}

// PlaceInQueueReply answers a PlaceInQueueRequest.
type PlaceInQueueReply struct {
	Filename string
	Place    uint32
}

func (m PlaceInQueueReply) Encode() []byte {
	var w Writer
	w.String(m.Filename)
	w.U32(m.Place)
	return WriteHeader(FamilyP2P, codePlaceInQueueReply, w.Payload())
}

func decodePlaceInQueueReply(body []byte) (PlaceInQueueReply, error) {
	r := NewReader(body)
	filename, err := r.String()
	if err != nil {
		return PlaceInQueueReply{}, &DecodeError{Family: "p2p", Code: int(codePlaceInQueueReply), Cause: err}
	}
	place, err := r.U32()
	if err != nil {
		return PlaceInQueueReply{}, &DecodeError{Family: "p2p", Code: int(codePlaceInQueueReply), Cause: err}
	}
	return PlaceInQueueReply{Filename: filename, Place: place}, nil
}

// UploadFailed tells a peer a queued download will never complete.
type UploadFailed struct {
	Filename string
}

func (m UploadFailed) Encode() []byte {
	var w Writer
	w.String(m.Filename)
	return WriteHeader(FamilyP2P, codeUploadFailed, w.Payload())
}

func decodeUploadFailed(body []byte) (UploadFailed, error) {
	r := NewReader(body)
	filename, err := r.String()
	if err != nil {
		return UploadFailed{}, &DecodeError{Family: "p2p", Code: int(codeUploadFailed), Cause: err}
	}
	return UploadFailed{Filename: filename}, nil
}

// QueueFailed tells a peer their QueueDownload could not be honored.
type QueueFailed struct {
	Filename string
	Reason   string
}

func (m QueueFailed) Encode() []byte {
	var w Writer
	w.String(m.Filename)
	w.String(m.Reason)
	return WriteHeader(FamilyP2P, codeQueueFailed, w.Payload())
}

func decodeQueueFailed(body []byte) (QueueFailed, error) {
	r := NewReader(body)
	filename, err := r.String()
	if err != nil {
		return QueueFailed{}, &DecodeError{Family: "p2p", Code: int(codeQueueFailed), Cause: err}
	}
	reason, err := r.String()
	if err != nil {
		return QueueFailed{}, &DecodeError{Family: "p2p", Code: int(codeQueueFailed), Cause: err}
	}
	return QueueFailed{Filename: filename, Reason: reason}, nil
}

// UploadQueueNotification pings a downloader to keep a queued transfer
// alive. No payload.
type UploadQueueNotification struct{}

func (m UploadQueueNotification) Encode() []byte {
	return WriteHeader(FamilyP2P, codeUploadQueueNotification, nil)
}

// P2PUnknown preserves an unrecognized P2P message's raw code and body.
type P2PUnknown struct {
	Code uint32
	Body []byte
}

// PeerRequestPacket is anything a P2P connection can send outbound: any
// concrete message type in this file, plus the peer-init handshake
// messages used before the connection has settled into a kind.
type PeerRequestPacket interface {
	Encode() []byte
}

// PeerResponsePacket is the decoded form of one inbound P2P frame.
// Exactly one field is non-nil.
type PeerResponsePacket struct {
	SharesRequest           *SharesRequest
	SharesReply             *SharesReply
	SearchReply             *SearchReply
	UserInfoRequest         *UserInfoRequest
	UserInfoReply           *UserInfoReply
	FolderContentsRequest   *FolderContentsRequest
	FolderContentsReply     *FolderContentsReply
	TransferRequest         *TransferRequest
	TransferReply           *TransferReply
	UploadPlacehold         *UploadPlacehold
	QueueDownload           *QueueDownload
	PlaceInQueueReply       *PlaceInQueueReply
	UploadFailed            *UploadFailed
	QueueFailed             *QueueFailed
	PlaceInQueueRequest     *PlaceInQueueRequest
	UploadQueueNotification *UploadQueueNotification
	Unknown                 *P2PUnknown
}

// DecodeP2P dispatches a P2P-family frame body by code.
func DecodeP2P(code uint32, body []byte) (PeerResponsePacket, error) {
	switch code {
	case codeSharesRequest:
		return PeerResponsePacket{SharesRequest: &SharesRequest{}}, nil
	case codeSharesReply:
		m, err := decodeSharesReply(body)
		if err != nil {
			return PeerResponsePacket{}, err
		}
		return PeerResponsePacket{SharesReply: &m}, nil
	case codeP2PSearchReply:
		m, err := decodeSearchReply(body)
		if err != nil {
			return PeerResponsePacket{}, err
		}
		return PeerResponsePacket{SearchReply: &m}, nil
	case codeUserInfoRequest:
		return PeerResponsePacket{UserInfoRequest: &UserInfoRequest{}}, nil
	case codeUserInfoReply:
		m, err := decodeUserInfoReply(body)
		if err != nil {
			return PeerResponsePacket{}, err
		}
		return PeerResponsePacket{UserInfoReply: &m}, nil
	case codeFolderContentsRequest:
		m, err := decodeFolderContentsRequest(body)
		if err != nil {
			return PeerResponsePacket{}, err
		}
		return PeerResponsePacket{FolderContentsRequest: &m}, nil
	case codeFolderContentsReply:
		m, err := decodeFolderContentsReply(body)
		if err != nil {
			return PeerResponsePacket{}, err
		}
		return PeerResponsePacket{FolderContentsReply: &m}, nil
	case codeTransferRequest:
		m, err := decodeTransferRequest(body)
		if err != nil {
			return PeerResponsePacket{}, err
		}
		return PeerResponsePacket{TransferRequest: &m}, nil
	case codeTransferReply:
		m, err := decodeTransferReply(body)
		if err != nil {
			return PeerResponsePacket{}, err
		}
		return PeerResponsePacket{TransferReply: &m}, nil
	case codeUploadPlacehold:
		return PeerResponsePacket{UploadPlacehold: &UploadPlacehold{}}, nil
	case codeQueueDownload:
		m, err := decodeQueueDownload(body)
		if err != nil {
			return PeerResponsePacket{}, err
		}
		return PeerResponsePacket{QueueDownload: &m}, nil
	case codePlaceInQueueReply:
		m, err := decodePlaceInQueueReply(body)
		if err != nil {
			return PeerResponsePacket{}, err
		}
		return PeerResponsePacket{PlaceInQueueReply: &m}, nil
	case codeUploadFailed:
		m, err := decodeUploadFailed(body)
		if err != nil {
			return PeerResponsePacket{}, err
		}
		return PeerResponsePacket{UploadFailed: &m}, nil
	case codeQueueFailed:
		m, err := decodeQueueFailed(body)
		if err != nil {
			return PeerResponsePacket{}, err
		}
		return PeerResponsePacket{QueueFailed: &m}, nil
	case codePlaceInQueueRequest:
		m, err := decodePlaceInQueueRequest(body)
		if err != nil {
			return PeerResponsePacket{}, err
		}
		return PeerResponsePacket{PlaceInQueueRequest: &m}, nil
	case codeUploadQueueNotification:
		return PeerResponsePacket{UploadQueueNotification: &UploadQueueNotification{}}, nil
	default:
		return PeerResponsePacket{Unknown: &P2PUnknown{Code: code, Body: body}}, nil
	}
}
