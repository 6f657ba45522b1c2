package p2p

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/oknozor/vessel-sub000/slsk"
)

// MaxParents caps how many distributed-overlay parent connections this
// node maintains at once.
const MaxParents = 1

// DialWithFallback attempts to reach peer directly within
// DirectDialTimeout; on any failure it registers an indirect-connection
// expectation and asks the server link to relay a ConnectToPeer
// invitation instead. It never blocks past the direct-dial timeout: the
// indirect path completes later, asynchronously, when the peer pierces
// our firewall and dispatchHandshake adopts the pending entry.
func (f *Fabric) DialWithFallback(ctx context.Context, peer slsk.PeerRecord, kind slsk.ConnectionKind) error {
	key := peer.Username + "|" + kind.String()
	if _, dialing := f.dialCache.Get(key); dialing {
		return fmt.Errorf("p2p: dial to %s (%s) already in flight", peer.Username, kind)
	}
	f.dialCache.Add(key, struct{}{})
	defer f.dialCache.Remove(key)

	if err := f.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	token := newToken()
	dialCtx, cancel := context.WithTimeout(ctx, DirectDialTimeout)
	defer cancel()

	raw, err := (&net.Dialer{}).DialContext(dialCtx, "tcp", peer.Address())
	if err == nil {
		f.completeDirectDial(raw, peer.Username, kind, token)
		return nil
	}

	f.sem.Release(1)
	f.log.Debug("direct dial failed, falling back to indirect", "user", peer.Username, "err", err)
	f.registry.ExpectIndirect(peer.Username, kind, token)
	f.server.Send(slsk.RequestConnectToPeer{
		Token:          token,
		Username:       peer.Username,
		ConnectionType: kind.ConnectionTypeCode(),
	})

	f.wg.Add(1)
	go f.watchIndirectTimeout(token, peer.Username)
	return nil
}

// watchIndirectTimeout gives an indirect-connection invitation
// IndirectConnectTimeout to complete. If no PierceFirewall has claimed the
// pending entry by then, it is dropped and the server is told the attempt
// failed, per the local policy decision recorded for this protocol gap.
func (f *Fabric) watchIndirectTimeout(token slsk.Token, username string) {
	defer f.wg.Done()
	select {
	case <-time.After(IndirectConnectTimeout):
		if f.registry.CancelPending(token) {
			f.log.Debug("indirect connect timed out", "user", username, "token", token)
			f.server.Send(slsk.CantConnectToPeer{Ticket: token, Username: username})
		}
	case <-f.shutdown:
	}
}

// completeDirectDial finishes a successful outbound connect: send our
// PeerInit, record the connection as live, and hand it to the listen
// loop. The caller must already hold one semaphore permit, released by
// teardown when the connection ends.
func (f *Fabric) completeDirectDial(raw net.Conn, username string, kind slsk.ConnectionKind, token slsk.Token) {
	c := newConn(raw)
	c.Kind = kind
	c.Token = token

	init := slsk.PeerInit{Username: f.cfg.Username, ConnectionType: kind.ConnectionTypeCode(), Token: token}
	if err := c.writeRequest(init); err != nil {
		f.sem.Release(1)
		c.Close()
		return
	}

	egress := make(chan slsk.PeerRequestPacket, 32)
	f.registry.RecordPeerInit(username, kind, token, egress)
	f.signalReady(token)

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer f.sem.Release(1)
		defer c.Close()
		f.listenWithEgress(c, username, egress)
	}()
}

// ConnectToParents drives the distributed-overlay parent search: dial
// candidates in order until MaxParents is reached, then tell the server
// we are no longer looking. Unreachable candidates are skipped silently;
// the overlay tolerates a parentless node.
func (f *Fabric) ConnectToParents(ctx context.Context, parents []slsk.Parent) {
	for _, parent := range parents {
		if f.registry.ParentCount() >= MaxParents {
			break
		}
		if err := f.DialWithFallback(ctx, parent, slsk.Distributed); err != nil {
			f.log.Debug("parent dial aborted", "parent", parent.Username, "err", err)
			continue
		}
	}
	if f.registry.ParentCount() >= MaxParents {
		f.server.Send(slsk.HaveNoParents{NoParents: false})
	}
}

// ConnectIndirect answers the server's ConnectToPeer invitation: some
// other node (req.Username) couldn't reach us directly, asked the
// server to relay the request, and is now waiting for us to dial them
// and pierce the firewall on their behalf using the token they chose.
func (f *Fabric) ConnectIndirect(ctx context.Context, req slsk.ConnectToPeer) error {
	kind, ok := slsk.ConnectionKindFromCode(req.ConnectionType)
	if !ok {
		return fmt.Errorf("p2p: connect-to-peer invitation with unknown connection type %q", req.ConnectionType)
	}

	if err := f.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, DirectDialTimeout)
	defer cancel()
	addr := fmt.Sprintf("%d.%d.%d.%d:%d", req.IP[0], req.IP[1], req.IP[2], req.IP[3], req.Port)
	raw, err := (&net.Dialer{}).DialContext(dialCtx, "tcp", addr)
	if err != nil {
		f.sem.Release(1)
		return fmt.Errorf("p2p: indirect dial to %s: %w", req.Username, err)
	}

	c := newConn(raw)
	c.Kind = kind
	c.Token = req.Token
	if err := c.writeRequest(slsk.PierceFirewall{Token: req.Token}); err != nil {
		f.sem.Release(1)
		c.Close()
		return err
	}

	egress := make(chan slsk.PeerRequestPacket, 32)
	f.registry.RecordPeerInit(req.Username, kind, req.Token, egress)
	f.signalReady(req.Token)

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer f.sem.Release(1)
		defer c.Close()
		f.listenWithEgress(c, req.Username, egress)
	}()
	return nil
}

// DialSearchConnection opens a one-shot, unregistered connection to
// deliver a single SearchReply, per the ephemeral token-0 convention:
// it is never added to the registry and is expected to close itself
// after one frame.
func (f *Fabric) DialSearchConnection(ctx context.Context, peer slsk.PeerRecord, reply slsk.SearchReply) error {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer f.sem.Release(1)

	dialCtx, cancel := context.WithTimeout(ctx, DirectDialTimeout)
	defer cancel()
	raw, err := (&net.Dialer{}).DialContext(dialCtx, "tcp", peer.Address())
	if err != nil {
		return fmt.Errorf("p2p: search-reply dial to %s: %w", peer.Username, err)
	}
	defer raw.Close()

	c := newConn(raw)
	init := slsk.PeerInit{Username: f.cfg.Username, ConnectionType: slsk.P2P.ConnectionTypeCode(), Token: 0}
	if err := c.writeRequest(init); err != nil {
		return err
	}
	return c.writeRequest(reply)
}
