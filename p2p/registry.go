// Package p2p implements the per-peer connection fabric: the shared
// connection registry, the duplex connection wrapper, the handshake
// state machine, and the inbound accept / outbound dial loops.
package p2p

import (
	"sync"

	"github.com/oknozor/vessel-sub000/slsk"
)

type userKind struct {
	username string
	kind     slsk.ConnectionKind
}

type entry struct {
	token    slsk.Token
	username string
	kind     slsk.ConnectionKind
	egress   chan<- slsk.PeerRequestPacket
	phase    slsk.Phase
}

func snapshot(e *entry) slsk.ConnectionState {
	return slsk.ConnectionState{Token: e.token, Username: e.username, Kind: e.kind, Egress: e.egress, Phase: e.phase}
}

// Registry is the authoritative map of pending and live peer
// connections, keyed by token and by (username, kind). A single mutex
// guards both tables; every lookup returns a cloned snapshot so callers
// never hold the lock across a suspension point.
type Registry struct {
	mu     sync.Mutex
	pending map[slsk.Token]*entry
	live    map[slsk.Token]*entry
	byUser  map[userKind]*entry
}

func NewRegistry() *Registry {
	return &Registry{
		pending: make(map[slsk.Token]*entry),
		live:    make(map[slsk.Token]*entry),
		byUser:  make(map[userKind]*entry),
	}
}

// ExpectIndirect records an outbound indirect-connection attempt. No
// egress sender exists yet; the entry only becomes live once the
// matching PierceFirewall arrives and MarkReady is called.
func (r *Registry) ExpectIndirect(username string, kind slsk.ConnectionKind, token slsk.Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[token] = &entry{token: token, username: username, kind: kind, phase: slsk.ExpectingIndirect}
}

// RecordPeerInit records a direct-dialed or accepted handshake
// completion directly into the live table; there was never a pending
// entry for it since the handshake carried the username itself.
func (r *Registry) RecordPeerInit(username string, kind slsk.ConnectionKind, token slsk.Token, egress chan<- slsk.PeerRequestPacket) slsk.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := &entry{token: token, username: username, kind: kind, egress: egress, phase: slsk.Ready}
	r.live[token] = e
	r.byUser[userKind{username, kind}] = e
	return snapshot(e)
}

// MarkReady transitions the pending entry for token into the live table,
// attaching egress. It fails if no such pending entry exists, which is
// the case for an incoming PierceFirewall with an unrecognized or
// already-resolved token.
func (r *Registry) MarkReady(token slsk.Token, egress chan<- slsk.PeerRequestPacket) (slsk.ConnectionState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.pending[token]
	if !ok {
		return slsk.ConnectionState{}, false
	}
	delete(r.pending, token)
	e.egress = egress
	e.phase = slsk.Ready
	r.live[token] = e
	r.byUser[userKind{e.username, e.kind}] = e
	return snapshot(e), true
}

// CancelPending removes a still-pending entry for token, reporting whether
// it found one. It is a no-op if the entry already transitioned to live,
// so a timeout racing a late PierceFirewall can never undo a successful
// handshake.
func (r *Registry) CancelPending(token slsk.Token) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[token]; ok {
		delete(r.pending, token)
		return true
	}
	return false
}

// Lookup returns a snapshot of the live state for token.
func (r *Registry) Lookup(token slsk.Token) (slsk.ConnectionState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.live[token]
	if !ok {
		return slsk.ConnectionState{}, false
	}
	return snapshot(e), true
}

// Find returns a snapshot of the live state matching both username and
// kind; a user reachable by two kinds at once has two distinct entries.
func (r *Registry) Find(username string, kind slsk.ConnectionKind) (slsk.ConnectionState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byUser[userKind{username, kind}]
	if !ok {
		return slsk.ConnectionState{}, false
	}
	return snapshot(e), true
}

// ParentCount returns the number of live entries with kind Distributed,
// used by the overlay to cap concurrent parents.
func (r *Registry) ParentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.live {
		if e.kind == slsk.Distributed {
			n++
		}
	}
	return n
}

// Remove drops the registry entry for token from whichever table holds
// it, called from a handler's teardown.
func (r *Registry) Remove(token slsk.Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.live[token]; ok {
		delete(r.live, token)
		delete(r.byUser, userKind{e.username, e.kind})
		return
	}
	delete(r.pending, token)
}
