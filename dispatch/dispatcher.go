// Package dispatch routes outbound peer messages to the right live
// connection, queueing them by username when no connection exists yet
// and triggering address resolution / dial attempts to establish one.
package dispatch

import (
	"context"
	"sync"

	"github.com/oknozor/vessel-sub000/p2p"
	"github.com/oknozor/vessel-sub000/slsk"
	"github.com/oknozor/vessel-sub000/slsklog"
	"github.com/oknozor/vessel-sub000/store"
)

// ServerSender is the one server-link capability the dispatcher needs:
// issuing a GetPeerAddress lookup for a username with no known address.
type ServerSender interface {
	Send(msg slsk.Encodable)
}

// ControlCommand asks the dispatcher to deliver pkt to username over a
// P2P connection, dialing or queueing as needed.
type ControlCommand struct {
	Username string
	Packet   slsk.PeerRequestPacket
}

// Dispatcher is the three-input-stream multiplexer described by the
// core's routing algorithm: control commands, connection-ready signals,
// and server-resolved addresses. It owns no connections itself — it
// only ever reads the registry and asks the fabric/server link to act.
type Dispatcher struct {
	registry *p2p.Registry
	fabric   *p2p.Fabric
	link     ServerSender
	peers    store.PeerStore
	log      *slsklog.Logger

	queue *messageQueue

	control      chan ControlCommand
	addressReply chan slsk.PeerAddress

	mu            sync.Mutex
	pendingLookup map[string]bool
}

// New wires a Dispatcher; addressReply is the channel serverlink.Link
// should be configured to forward GetPeerAddress replies onto
// (Dependencies.AddressReply).
func New(registry *p2p.Registry, fabric *p2p.Fabric, link ServerSender, peers store.PeerStore) *Dispatcher {
	return &Dispatcher{
		registry:      registry,
		fabric:        fabric,
		link:          link,
		peers:         peers,
		log:           slsklog.New("component", "dispatch"),
		queue:         newMessageQueue(),
		control:       make(chan ControlCommand, 256),
		addressReply:  make(chan slsk.PeerAddress, 64),
		pendingLookup: make(map[string]bool),
	}
}

// Control returns the channel callers submit outbound messages on.
func (d *Dispatcher) Control() chan<- ControlCommand { return d.control }

// AddressReply returns the channel serverlink.Link should forward
// GetPeerAddress replies onto.
func (d *Dispatcher) AddressReply() chan<- slsk.PeerAddress { return d.addressReply }

// Run drives the multiplexer until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ready := d.fabric.Ready()
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-d.control:
			d.onControlCommand(ctx, cmd)
		case sig := <-ready:
			d.onReady(sig)
		case addr := <-d.addressReply:
			d.onAddressResolved(ctx, addr)
		}
	}
}

// onControlCommand implements the dispatcher's control-command algorithm
// exactly: the packet is always appended to the per-user queue first; if
// a live P2P connection for username exists, one packet is then popped
// from the front of that queue and sent over its egress, not necessarily
// cmd.Packet itself, since an earlier backlog entry may still be waiting
// its turn. Otherwise it kicks off whatever is needed to establish a
// connection.
func (d *Dispatcher) onControlCommand(ctx context.Context, cmd ControlCommand) {
	d.queue.push(cmd.Username, cmd.Packet)

	state, ok := d.registry.Find(cmd.Username, slsk.P2P)
	if !ok || state.Phase != slsk.Ready {
		d.ensureConnecting(ctx, cmd.Username)
		return
	}

	d.sendNext(state)
}

// sendNext pops the oldest queued message for state.Username and writes
// it to the connection's egress. If the egress is momentarily full the
// packet is pushed back to the front of the queue so it is retried by a
// later onReady drain or control command, rather than lost or reordered.
func (d *Dispatcher) sendNext(state slsk.ConnectionState) {
	pkt, ok := d.queue.popFront(state.Username)
	if !ok {
		return
	}
	select {
	case state.Egress <- pkt:
	default:
		d.log.Warn("egress full, re-queueing", "user", state.Username)
		d.queue.pushFront(state.Username, pkt)
	}
}

// onReady implements: once a token's handshake completes, drain every
// message queued for that username, in push order, over its fresh
// egress channel.
func (d *Dispatcher) onReady(sig p2p.ReadySignal) {
	state, ok := d.registry.Lookup(sig.Token)
	if !ok || state.Kind != slsk.P2P {
		return
	}
	for _, pkt := range d.queue.drain(state.Username) {
		select {
		case state.Egress <- pkt:
		default:
			d.log.Warn("dropped queued message, egress full on drain", "user", state.Username)
		}
	}
}

// onAddressResolved implements: once the server answers a pending
// GetPeerAddress, persist it and, if messages are still queued for that
// user, attempt the dial now that we know where to reach them.
func (d *Dispatcher) onAddressResolved(ctx context.Context, addr slsk.PeerAddress) {
	d.mu.Lock()
	delete(d.pendingLookup, addr.Username)
	d.mu.Unlock()

	rec := slsk.PeerRecord{Username: addr.Username, IP: addr.IP, Port: addr.Port}
	_ = d.peers.Put(rec)

	if d.queue.hasPending(addr.Username) {
		if err := d.fabric.DialWithFallback(ctx, rec, slsk.P2P); err != nil {
			d.log.Warn("dial after address resolution failed", "user", addr.Username, "err", err)
		}
	}
}

// ensureConnecting resolves an address and dials if one is already
// known, or asks the server to resolve it otherwise. Either path is
// asynchronous: this never blocks the control-command loop.
func (d *Dispatcher) ensureConnecting(ctx context.Context, username string) {
	if rec, ok := d.peers.Get(username); ok {
		if err := d.fabric.DialWithFallback(ctx, rec, slsk.P2P); err != nil {
			d.log.Warn("dial failed", "user", username, "err", err)
		}
		return
	}

	d.mu.Lock()
	alreadyLooking := d.pendingLookup[username]
	d.pendingLookup[username] = true
	d.mu.Unlock()
	if alreadyLooking {
		return
	}
	d.link.Send(slsk.GetPeerAddress{Username: username})
}
