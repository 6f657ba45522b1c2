package slsk

import (
	"crypto/md5"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProbeHeaderIncompleteOnShortBuffer(t *testing.T) {
	_, err := ProbeHeader(FamilyServer, []byte{1, 0})
	require.ErrorIs(t, err, Incomplete)
}

func TestProbeHeaderIncompleteWaitsForFullBody(t *testing.T) {
	frame := WriteHeader(FamilyServer, codeSetListenPort, func() []byte {
		var w Writer
		w.U32(2234)
		return w.Payload()
	}())
	h, err := ProbeHeader(FamilyServer, frame[:len(frame)-1])
	require.NoError(t, err)
	require.ErrorIs(t, CheckAvailable(frame[:len(frame)-1], h), Incomplete)
}

func TestBufferAdvancePreservesTrailingBytes(t *testing.T) {
	b := NewBuffer()
	b.Fill([]byte{1, 2, 3, 4, 5})
	b.Advance(2)
	require.Equal(t, []byte{3, 4, 5}, b.Bytes())
	b.Advance(10)
	require.Equal(t, 0, b.Len())
}

func TestDecodeNeverConsumesOnIncomplete(t *testing.T) {
	full := (PeerInit{Username: "bob", ConnectionType: "P", Token: 7}).Encode()
	buf := NewBuffer()
	buf.Fill(full[:len(full)-1])

	_, _, err := Decode(FamilyPeerInit, buf)
	require.ErrorIs(t, err, Incomplete)
	require.Equal(t, len(full)-1, buf.Len())
}

func TestPeerInitRoundtrip(t *testing.T) {
	buf := NewBuffer()
	buf.Fill((PeerInit{Username: "alice", ConnectionType: "F", Token: 42}).Encode())

	frame, n, err := Decode(FamilyPeerInit, buf)
	require.NoError(t, err)
	require.Equal(t, buf.Len(), n)
	require.NotNil(t, frame.Handshake.PeerInit)
	require.Equal(t, "alice", frame.Handshake.PeerInit.Username)
	require.Equal(t, "F", frame.Handshake.PeerInit.ConnectionType)
	require.Equal(t, Token(42), frame.Handshake.PeerInit.Token)
}

func TestPierceFirewallRoundtrip(t *testing.T) {
	buf := NewBuffer()
	buf.Fill((PierceFirewall{Token: 99}).Encode())

	frame, n, err := Decode(FamilyPeerInit, buf)
	require.NoError(t, err)
	buf.Advance(n)
	require.Equal(t, 0, buf.Len())
	require.Equal(t, Token(99), frame.Handshake.PierceFirewall.Token)
}

func TestLoginDigestMatchesConcatenation(t *testing.T) {
	d1 := LoginDigest("bob", "hunter2")
	d2 := LoginDigest("bob", "hunter2")
	require.Equal(t, d1, d2)
	require.Len(t, d1, 32)
	sum := md5.Sum([]byte("bob" + "hunter2"))
	require.Equal(t, hex.EncodeToString(sum[:]), d1)
	require.NotEqual(t, d1, LoginDigest("bob", "hunter3"))
}

func TestLoginRequestWireShape(t *testing.T) {
	frame := (LoginRequest{Username: "bob", Password: "hunter2"}).Encode()
	h, err := ProbeHeader(FamilyServer, frame)
	require.NoError(t, err)
	require.Equal(t, uint32(codeLogin), h.Code)
	require.NoError(t, CheckAvailable(frame, h))

	body := Body(frame, h)
	r := NewReader(body)
	username, err := r.String()
	require.NoError(t, err)
	require.Equal(t, "bob", username)
	password, err := r.String()
	require.NoError(t, err)
	require.Equal(t, "hunter2", password)
	version, err := r.U32()
	require.NoError(t, err)
	require.Equal(t, uint32(loginVersion), version)
}

func TestLoginResultSuccessDecode(t *testing.T) {
	var w Writer
	w.Bool(true)
	w.String("welcome")
	w.IPv4([4]byte{127, 0, 0, 1})
	w.String("deadbeef")
	frame := WriteHeader(FamilyServer, codeLogin, w.Payload())

	buf := NewBuffer()
	buf.Fill(frame)
	decoded, n, err := Decode(FamilyServer, buf)
	require.NoError(t, err)
	require.Equal(t, len(frame), n)
	require.True(t, decoded.Server.Login.Success)
	require.Equal(t, "welcome", decoded.Server.Login.Greeting)
	require.Equal(t, [4]byte{127, 0, 0, 1}, decoded.Server.Login.ServerIP)
}

func TestLoginResultFailureDecode(t *testing.T) {
	var w Writer
	w.Bool(false)
	w.String("INVALID PASSWORD")
	frame := WriteHeader(FamilyServer, codeLogin, w.Payload())

	buf := NewBuffer()
	buf.Fill(frame)
	decoded, _, err := Decode(FamilyServer, buf)
	require.NoError(t, err)
	require.False(t, decoded.Server.Login.Success)
	require.Equal(t, "INVALID PASSWORD", decoded.Server.Login.FailureReason)
}

func TestUnknownServerCodeDoesNotFailConnection(t *testing.T) {
	frame := WriteHeader(FamilyServer, 9999, []byte{1, 2, 3})
	buf := NewBuffer()
	buf.Fill(frame)
	decoded, _, err := Decode(FamilyServer, buf)
	require.NoError(t, err)
	require.NotNil(t, decoded.Server.Unknown)
	require.Equal(t, uint32(9999), decoded.Server.Unknown.Code)
}

func TestSharesReplyRoundtrip(t *testing.T) {
	reply := SharesReply{
		Directories: []Directory{
			{
				Name: "music",
				Files: []File{
					{Name: "track.mp3", Size: 123456, Extension: "mp3", Attributes: []Attribute{{Place: 0, Attribute: 320}}},
				},
			},
		},
	}

	buf := NewBuffer()
	buf.Fill(reply.Encode())
	frame, n, err := Decode(FamilyP2P, buf)
	require.NoError(t, err)
	require.Equal(t, buf.Len(), n)
	require.NotNil(t, frame.Peer.SharesReply)
	require.Len(t, frame.Peer.SharesReply.Directories, 1)
	require.Equal(t, "music", frame.Peer.SharesReply.Directories[0].Name)
	require.Equal(t, "track.mp3", frame.Peer.SharesReply.Directories[0].Files[0].Name)
	require.Equal(t, uint64(123456), frame.Peer.SharesReply.Directories[0].Files[0].Size)
}

func TestSearchReplyRoundtrip(t *testing.T) {
	reply := SearchReply{
		Username:     "carol",
		Ticket:       7,
		Files:        []File{{Name: "a.flac", Size: 99, Extension: "flac"}},
		SlotFree:     true,
		AverageSpeed: 1000,
		QueueLength:  0,
	}

	buf := NewBuffer()
	buf.Fill(reply.Encode())
	frame, _, err := Decode(FamilyP2P, buf)
	require.NoError(t, err)
	require.Equal(t, "carol", frame.Peer.SearchReply.Username)
	require.Equal(t, uint32(7), frame.Peer.SearchReply.Ticket)
	require.True(t, frame.Peer.SearchReply.SlotFree)
	require.Len(t, frame.Peer.SearchReply.Files, 1)
}

func TestTransferRequestDownloadRoundtrip(t *testing.T) {
	req := TransferRequest{Direction: 0, Ticket: 55, Filename: "song.mp3"}
	buf := NewBuffer()
	buf.Fill(req.Encode())
	frame, _, err := Decode(FamilyP2P, buf)
	require.NoError(t, err)
	require.Equal(t, uint32(55), frame.Peer.TransferRequest.Ticket)
	require.Nil(t, frame.Peer.TransferRequest.FileSize)
}

func TestTransferRequestUploadCarriesFileSize(t *testing.T) {
	size := uint64(2048)
	req := TransferRequest{Direction: 1, Ticket: 56, Filename: "song.mp3", FileSize: &size}
	buf := NewBuffer()
	buf.Fill(req.Encode())
	frame, _, err := Decode(FamilyP2P, buf)
	require.NoError(t, err)
	require.NotNil(t, frame.Peer.TransferRequest.FileSize)
	require.Equal(t, size, *frame.Peer.TransferRequest.FileSize)
}

func TestDistSearchRequestRoundtrip(t *testing.T) {
	req := DistSearchRequest{Username: "dave", Ticket: 3, Query: "flac album"}
	buf := NewBuffer()
	buf.Fill(req.Encode())
	frame, _, err := Decode(FamilyDistributed, buf)
	require.NoError(t, err)
	require.Equal(t, "dave", frame.Distributed.SearchRequest.Username)
	require.Equal(t, "flac album", frame.Distributed.SearchRequest.Query)
}

func TestDistPingHasNoPayload(t *testing.T) {
	buf := NewBuffer()
	buf.Fill((DistPing{}).Encode())
	frame, n, err := Decode(FamilyDistributed, buf)
	require.NoError(t, err)
	require.Equal(t, buf.Len(), n)
	require.NotNil(t, frame.Distributed.Ping)
}

func TestSearchLimitRejectsStaleTicket(t *testing.T) {
	var lim SearchLimit
	lim.Reset(10, 2)
	require.True(t, lim.Allow(10))
	require.True(t, lim.Allow(10))
	require.False(t, lim.Allow(10), "emits exhausted")
	require.False(t, lim.Allow(11), "stale ticket")
}

func TestConnectionKindCodeRoundtrip(t *testing.T) {
	for _, k := range []ConnectionKind{P2P, FileTransfer, Distributed} {
		code := k.ConnectionTypeCode()
		got, ok := ConnectionKindFromCode(code)
		require.True(t, ok)
		require.Equal(t, k, got)
	}
}
