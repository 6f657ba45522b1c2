package serverlink

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/oknozor/vessel-sub000/events"
	"github.com/oknozor/vessel-sub000/slsk"
	"github.com/stretchr/testify/require"
)

func encodeLoginSuccess(greeting string) []byte {
	var w slsk.Writer
	w.Bool(true)
	w.String(greeting)
	w.IPv4([4]byte{1, 2, 3, 4})
	w.String("")
	return slsk.WriteHeader(slsk.FamilyServer, 1, w.Payload())
}

func encodeLoginFailure(reason string) []byte {
	var w slsk.Writer
	w.Bool(false)
	w.String(reason)
	return slsk.WriteHeader(slsk.FamilyServer, 1, w.Payload())
}

func readServerFrame(t *testing.T, conn net.Conn) (uint32, []byte) {
	t.Helper()
	var head [8]byte
	_, err := ioReadFull(conn, head[:])
	require.NoError(t, err)
	length := le32(head[0:4])
	code := le32(head[4:8])
	body := make([]byte, length-4)
	_, err = ioReadFull(conn, body)
	require.NoError(t, err)
	return code, body
}

func startFakeServer(t *testing.T) (net.Listener, <-chan net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ch := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			ch <- conn
		}
	}()
	return ln, ch
}

func newTestDeps() Dependencies {
	return Dependencies{
		Outlet:        events.NewOutlet(16),
		PeerRequests:  make(chan slsk.ConnectToPeer, 4),
		ParentsUpdate: make(chan []slsk.Parent, 4),
		AddressReply:  make(chan slsk.PeerAddress, 4),
	}
}

func TestDialSucceedsOnLoginSuccess(t *testing.T) {
	ln, accepted := startFakeServer(t)
	defer ln.Close()

	go func() {
		conn := <-accepted
		defer conn.Close()
		readServerFrame(t, conn) // LoginRequest
		conn.Write(encodeLoginSuccess("welcome"))
		readServerFrame(t, conn) // SetListenPort
		readServerFrame(t, conn) // HaveNoParents
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	link, err := Dial(ctx, ln.Addr().String(), Credentials{Username: "alice", Password: "pw", ListenPort: 2234}, newTestDeps())
	require.NoError(t, err)
	defer link.Close()
}

func TestDialFailsOnLoginRejection(t *testing.T) {
	ln, accepted := startFakeServer(t)
	defer ln.Close()

	go func() {
		conn := <-accepted
		defer conn.Close()
		readServerFrame(t, conn)
		conn.Write(encodeLoginFailure("bad credentials"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Dial(ctx, ln.Addr().String(), Credentials{Username: "alice", Password: "wrong"}, newTestDeps())
	require.Error(t, err)
	var fatal *slsk.FatalError
	require.ErrorAs(t, err, &fatal)
}

func TestRunForwardsConnectToPeerToDependency(t *testing.T) {
	ln, accepted := startFakeServer(t)
	defer ln.Close()

	serverConnCh := make(chan net.Conn, 1)
	go func() {
		conn := <-accepted
		readServerFrame(t, conn) // LoginRequest
		conn.Write(encodeLoginSuccess("hi"))
		readServerFrame(t, conn) // SetListenPort
		readServerFrame(t, conn) // HaveNoParents
		serverConnCh <- conn
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	deps := newTestDeps()
	link, err := Dial(ctx, ln.Addr().String(), Credentials{Username: "alice", Password: "pw"}, deps)
	require.NoError(t, err)
	defer link.Close()

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	go link.Run(runCtx)

	conn := <-serverConnCh
	defer conn.Close()

	var w slsk.Writer
	w.String("bob")
	w.String("P")
	w.IPv4([4]byte{5, 6, 7, 8})
	w.U32(9999)
	w.U32(42)
	w.Bool(false)
	conn.Write(slsk.WriteHeader(slsk.FamilyServer, 18, w.Payload()))

	select {
	case req := <-deps.PeerRequests:
		require.Equal(t, "bob", req.Username)
		require.Equal(t, slsk.Token(42), req.Token)
	case <-time.After(2 * time.Second):
		t.Fatal("expected ConnectToPeer forwarded")
	}
}

func ioReadFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
