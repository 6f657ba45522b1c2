package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/oknozor/vessel-sub000/events"
	"github.com/oknozor/vessel-sub000/p2p"
	"github.com/oknozor/vessel-sub000/slsk"
	"github.com/stretchr/testify/require"
)

type fakeServerSender struct {
	mu  sync.Mutex
	out []slsk.Encodable
}

func (f *fakeServerSender) Send(msg slsk.Encodable) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, msg)
}

func (f *fakeServerSender) sent() []slsk.Encodable {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]slsk.Encodable(nil), f.out...)
}

type memPeerStore struct {
	mu   sync.Mutex
	recs map[string]slsk.PeerRecord
}

func newMemPeerStore() *memPeerStore { return &memPeerStore{recs: make(map[string]slsk.PeerRecord)} }

func (s *memPeerStore) Get(username string) (slsk.PeerRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[username]
	return r, ok
}

func (s *memPeerStore) Put(rec slsk.PeerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.Username] = rec
	return nil
}

type fakeShares struct{}

func (fakeShares) Shares() slsk.SharesReply   { return slsk.SharesReply{} }
func (fakeShares) Profile() slsk.UserInfoReply { return slsk.UserInfoReply{} }

func newTestDispatcher(t *testing.T) (*Dispatcher, *fakeServerSender, *memPeerStore) {
	t.Helper()
	sender := &fakeServerSender{}
	peers := newMemPeerStore()
	fabric, err := p2p.NewFabric(p2p.Config{Username: "me"}, events.NewOutlet(16), nil, fakeShares{}, sender)
	require.NoError(t, err)
	d := New(fabric.Registry(), fabric, sender, peers)
	return d, sender, peers
}

func TestControlCommandWithNoKnownAddressTriggersLookup(t *testing.T) {
	d, sender, _ := newTestDispatcher(t)

	d.onControlCommand(context.Background(), ControlCommand{Username: "alice", Packet: slsk.SharesRequest{}})

	require.True(t, d.queue.hasPending("alice"))
	sent := sender.sent()
	require.Len(t, sent, 1)
	req, ok := sent[0].(slsk.GetPeerAddress)
	require.True(t, ok)
	require.Equal(t, "alice", req.Username)
}

func TestControlCommandDoesNotDuplicateLookupWhileOneIsPending(t *testing.T) {
	d, sender, _ := newTestDispatcher(t)

	d.onControlCommand(context.Background(), ControlCommand{Username: "alice", Packet: slsk.SharesRequest{}})
	d.onControlCommand(context.Background(), ControlCommand{Username: "alice", Packet: slsk.UserInfoRequest{}})

	require.Len(t, sender.sent(), 1, "a second queued message for the same pending lookup must not resend GetPeerAddress")
	require.Len(t, d.queue.drain("alice"), 2)
}

func TestControlCommandDeliversDirectlyOverLiveEgress(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	egress := make(chan slsk.PeerRequestPacket, 1)
	d.registry.RecordPeerInit("alice", slsk.P2P, 1, egress)

	d.onControlCommand(context.Background(), ControlCommand{Username: "alice", Packet: slsk.SharesRequest{}})

	select {
	case pkt := <-egress:
		require.Equal(t, slsk.SharesRequest{}, pkt)
	case <-time.After(time.Second):
		t.Fatal("expected packet delivered to live egress")
	}
	require.False(t, d.queue.hasPending("alice"))
}

func TestControlCommandOverLiveEgressSendsOldestQueuedFirst(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	egress := make(chan slsk.PeerRequestPacket, 4)
	d.registry.RecordPeerInit("alice", slsk.P2P, 1, egress)

	// A backlog parked earlier (e.g. via the egress-full fallback) must
	// still be drained in order, ahead of a fresh control command's own
	// packet, never overtaken by it.
	d.queue.push("alice", slsk.UserInfoRequest{})

	d.onControlCommand(context.Background(), ControlCommand{Username: "alice", Packet: slsk.SharesRequest{}})

	select {
	case pkt := <-egress:
		require.Equal(t, slsk.UserInfoRequest{}, pkt, "the pre-existing backlog entry must be sent first")
	case <-time.After(time.Second):
		t.Fatal("expected the oldest queued packet delivered")
	}

	require.True(t, d.queue.hasPending("alice"), "cmd.Packet itself is queued behind the backlog, not sent directly")
	drained := d.queue.drain("alice")
	require.Equal(t, []slsk.PeerRequestPacket{slsk.SharesRequest{}}, drained)
}

func TestControlCommandOverLiveEgressRedrainsOnSubsequentCommands(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	// A full egress (capacity 0) forces every push onto the queue.
	egress := make(chan slsk.PeerRequestPacket)
	d.registry.RecordPeerInit("bob", slsk.P2P, 2, egress)

	d.onControlCommand(context.Background(), ControlCommand{Username: "bob", Packet: slsk.SharesRequest{}})
	d.onControlCommand(context.Background(), ControlCommand{Username: "bob", Packet: slsk.UserInfoRequest{}})
	require.True(t, d.queue.hasPending("bob"), "both packets stranded behind the full egress")

	// Capacity frees up; the next control command must send the oldest
	// stranded packet first, not its own new packet.
	roomy := make(chan slsk.PeerRequestPacket, 8)
	d.registry.RecordPeerInit("bob", slsk.P2P, 2, roomy)
	d.onControlCommand(context.Background(), ControlCommand{Username: "bob", Packet: slsk.SearchReply{}})

	require.Equal(t, slsk.SharesRequest{}, <-roomy, "oldest stranded packet sent first")
}

func TestOnReadyDrainsQueueForMatchingUsername(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	d.queue.push("alice", slsk.SharesRequest{})
	d.queue.push("alice", slsk.UserInfoRequest{})

	egress := make(chan slsk.PeerRequestPacket, 8)
	d.registry.RecordPeerInit("alice", slsk.P2P, 42, egress)

	d.onReady(p2p.ReadySignal{Token: 42})

	require.Len(t, egress, 2)
	require.Equal(t, slsk.SharesRequest{}, <-egress)
	require.Equal(t, slsk.UserInfoRequest{}, <-egress)
}

func TestOnAddressResolvedPersistsPeerAndClearsPendingLookup(t *testing.T) {
	d, _, peers := newTestDispatcher(t)

	d.mu.Lock()
	d.pendingLookup["alice"] = true
	d.mu.Unlock()

	d.onAddressResolved(context.Background(), slsk.PeerAddress{Username: "alice", IP: [4]byte{127, 0, 0, 1}, Port: 0})

	rec, ok := peers.Get("alice")
	require.True(t, ok)
	require.Equal(t, [4]byte{127, 0, 0, 1}, rec.IP)

	d.mu.Lock()
	_, stillPending := d.pendingLookup["alice"]
	d.mu.Unlock()
	require.False(t, stillPending)
}
