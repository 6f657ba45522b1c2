package p2p

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/oknozor/vessel-sub000/slsk"
	"github.com/stretchr/testify/require"
)

func TestDialWithFallbackDirectSuccessRegistersLiveEntry(t *testing.T) {
	f, server := newTestFabric(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	acceptedCh := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			acceptedCh <- conn
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	peer := slsk.PeerRecord{Username: "holly", IP: ipFrom(addr.IP), Port: uint16(addr.Port)}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.DialWithFallback(ctx, peer, slsk.P2P))

	select {
	case conn := <-acceptedCh:
		defer conn.Close()
		buf := make([]byte, 64)
		conn.SetReadDeadline(time.Now().Add(time.Second))
		n, err := conn.Read(buf)
		require.NoError(t, err)
		require.Greater(t, n, 0, "expected a PeerInit handshake on the accepted side")
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the dial")
	}

	waitFor(t, time.Second, func() bool {
		_, ok := f.Registry().Find("holly", slsk.P2P)
		return ok
	})
	require.Empty(t, server.out, "a successful direct dial never asks the server for anything")
}

func TestDialWithFallbackRejectsDuplicateInFlightDial(t *testing.T) {
	f, _ := newTestFabric(t)
	key := "ivan|P2P"
	f.dialCache.Add(key, struct{}{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := f.DialWithFallback(ctx, slsk.PeerRecord{Username: "ivan", IP: [4]byte{1, 2, 3, 4}, Port: 2234}, slsk.P2P)
	require.Error(t, err)
}

func TestDialWithFallbackFallsBackToIndirectOnDialFailure(t *testing.T) {
	f, server := newTestFabric(t)

	// Nothing listens on this port; the dial should fail fast and fall
	// back to an indirect-connect invitation.
	peer := slsk.PeerRecord{Username: "jack", IP: [4]byte{127, 0, 0, 1}, Port: 1}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.DialWithFallback(ctx, peer, slsk.P2P))

	waitFor(t, time.Second, func() bool {
		return server.last() != nil
	})

	req, ok := server.last().(slsk.RequestConnectToPeer)
	require.True(t, ok, "expected a RequestConnectToPeer sent to the server link")
	require.Equal(t, "jack", req.Username)
	require.Equal(t, "P", req.ConnectionType)

	f.Shutdown()
}

func TestConnectToParentsStopsAtMaxParentsAndReportsHaveParents(t *testing.T) {
	f, server := newTestFabric(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	parents := []slsk.Parent{
		{Username: "parentA", IP: ipFrom(addr.IP), Port: uint16(addr.Port)},
		{Username: "parentB", IP: ipFrom(addr.IP), Port: uint16(addr.Port)},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	f.ConnectToParents(ctx, parents)

	waitFor(t, time.Second, func() bool {
		return f.Registry().ParentCount() >= MaxParents
	})
	require.LessOrEqual(t, f.Registry().ParentCount(), MaxParents)

	found := false
	for _, msg := range server.out {
		if hnp, ok := msg.(slsk.HaveNoParents); ok && !hnp.NoParents {
			found = true
		}
	}
	require.True(t, found, "expected HaveNoParents{false} once MaxParents reached")
}

func ipFrom(ip net.IP) [4]byte {
	v4 := ip.To4()
	var out [4]byte
	copy(out[:], v4)
	return out
}
