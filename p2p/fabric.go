package p2p

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/google/uuid"
	"github.com/oknozor/vessel-sub000/events"
	"github.com/oknozor/vessel-sub000/slsk"
	"github.com/oknozor/vessel-sub000/slsklog"
	"github.com/oknozor/vessel-sub000/store"
	"golang.org/x/sync/semaphore"
)

// DirectDialTimeout bounds how long an outbound direct dial waits before
// falling back to the server-mediated indirect path.
const DirectDialTimeout = 1 * time.Second

// IndirectConnectTimeout bounds how long a caller waits for a
// PierceFirewall to complete an indirect connection attempt before
// giving up and reporting CantConnectToPeer. The protocol itself defines
// no such timeout; this is a local policy choice.
const IndirectConnectTimeout = 30 * time.Second

// acceptBackoffMax is the ceiling of the accept-error backoff sequence
// (1, 2, 4, ..., 64s); a failure past this point is fatal.
const acceptBackoffMax = 64 * time.Second

// DefaultSearchReplyBudget caps how many SearchReply events one search
// ticket may emit to the outlet before later replies are dropped as
// stale or excessive.
const DefaultSearchReplyBudget = 250

// SharesProvider answers the two canned P2P request/reply pairs the
// listen loop must service without involving the dispatcher: a peer's
// share listing and profile.
type SharesProvider interface {
	Shares() slsk.SharesReply
	Profile() slsk.UserInfoReply
}

// ServerRequester is the subset of the server link a dial or overlay
// operation needs: emitting requests (ConnectToPeer, CantConnectToPeer,
// HaveNoParents) onto the server's outbound channel.
type ServerRequester interface {
	Send(msg slsk.Encodable)
}

// Config bundles a Fabric's tunables; MaxConnections defaults to 10000
// per spec if left zero.
type Config struct {
	Username       string
	MaxConnections int64
	DownloadDir    string
}

// ReadySignal is emitted whenever a handshake completes, for the
// dispatcher to drain that username's queued messages.
type ReadySignal struct {
	Token slsk.Token
}

// Fabric owns every live peer connection: the registry, the global
// connection semaphore, and the accept/dial/listen loops. One Fabric
// serves the whole process.
type Fabric struct {
	cfg       Config
	registry  *Registry
	sem       *semaphore.Weighted
	outlet    *events.Outlet
	downloads store.DownloadStore
	shares    SharesProvider
	server    ServerRequester
	dialCache *lru.Cache // suppresses duplicate concurrent dials to the same username+kind
	ready     chan ReadySignal
	log       *slsklog.Logger

	searchMu    sync.Mutex
	searchLimit slsk.SearchLimit

	shutdown chan struct{}
	wg       sync.WaitGroup
}

// NewFabric wires a Fabric; cfg.MaxConnections defaults to 10000.
func NewFabric(cfg Config, outlet *events.Outlet, downloads store.DownloadStore, shares SharesProvider, server ServerRequester) (*Fabric, error) {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 10000
	}
	cache, err := lru.New(4096)
	if err != nil {
		return nil, fmt.Errorf("p2p: dial cache: %w", err)
	}
	return &Fabric{
		cfg:       cfg,
		registry:  NewRegistry(),
		sem:       semaphore.NewWeighted(cfg.MaxConnections),
		outlet:    outlet,
		downloads: downloads,
		shares:    shares,
		server:    server,
		dialCache: cache,
		ready:     make(chan ReadySignal, 256),
		log:       slsklog.New("component", "p2p"),
		shutdown:  make(chan struct{}),
	}, nil
}

// Registry exposes the shared connection registry to the dispatcher.
func (f *Fabric) Registry() *Registry { return f.registry }

// Ready exposes the ready-signal stream to the dispatcher.
func (f *Fabric) Ready() <-chan ReadySignal { return f.ready }

// Shutdown broadcasts cancellation to every handler and blocks until
// they have all drained.
func (f *Fabric) Shutdown() {
	close(f.shutdown)
	f.wg.Wait()
}

func (f *Fabric) signalReady(token slsk.Token) {
	select {
	case f.ready <- ReadySignal{Token: token}:
	case <-f.shutdown:
	}
}

// Accept runs the inbound listen loop until the fabric is shut down.
// Accept errors trigger exponential backoff (1, 2, 4, ..., 64s); a
// failure past the ceiling is fatal.
func (f *Fabric) Accept(ctx context.Context, ln net.Listener) error {
	backoff := time.Second
	for {
		select {
		case <-f.shutdown:
			return nil
		default:
		}

		if err := f.sem.Acquire(ctx, 1); err != nil {
			return err
		}

		raw, err := ln.Accept()
		if err != nil {
			f.sem.Release(1)
			select {
			case <-f.shutdown:
				return nil
			default:
			}
			f.log.Warn("accept failed, backing off", "delay", backoff, "err", err)
			if backoff > acceptBackoffMax {
				return fmt.Errorf("p2p: accept backoff exhausted: %w", err)
			}
			select {
			case <-time.After(backoff):
			case <-f.shutdown:
				return nil
			}
			backoff *= 2
			continue
		}
		backoff = time.Second

		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			defer f.sem.Release(1)
			f.handleAccepted(raw)
		}()
	}
}

// handleAccepted drives one freshly accepted connection through the
// handshake state machine and into its listen loop.
func (f *Fabric) handleAccepted(raw net.Conn) {
	c := newConn(raw)
	defer c.Close()

	hs, err := c.readHandshake()
	if err != nil {
		f.log.Debug("handshake read failed", "remote", raw.RemoteAddr(), "err", err)
		return
	}
	f.dispatchHandshake(c, hs)
}

// dispatchHandshake implements the handshake state machine: a
// PierceFirewall adopts a pending registry entry; a PeerInit announces a
// fresh direct connection.
func (f *Fabric) dispatchHandshake(c *Conn, hs slsk.HandshakeMessage) {
	switch {
	case hs.PierceFirewall != nil:
		token := hs.PierceFirewall.Token
		state, ok := f.registry.Lookup(token)
		if !ok {
			state, ok = f.markReadyFromPending(c, token)
			if !ok {
				f.log.Debug("piercefirewall for unknown token, dropping", "token", token)
				return
			}
		}
		c.Kind = state.Kind
		c.Token = token
		f.signalReady(token)
		f.listen(c, state.Username)

	case hs.PeerInit != nil:
		kind, ok := slsk.ConnectionKindFromCode(hs.PeerInit.ConnectionType)
		if !ok {
			f.log.Debug("peerinit with unknown connection type, dropping", "type", hs.PeerInit.ConnectionType)
			return
		}
		c.Kind = kind
		c.Token = hs.PeerInit.Token
		username := hs.PeerInit.Username

		if !hs.PeerInit.Token.IsEphemeral() {
			egress := make(chan slsk.PeerRequestPacket, 32)
			f.registry.RecordPeerInit(username, kind, hs.PeerInit.Token, egress)
			f.signalReady(hs.PeerInit.Token)
			f.listenWithEgress(c, username, egress)
			return
		}
		// Ephemeral search-reply delivery: accept but never register.
		f.listen(c, username)
	}
}

func (f *Fabric) markReadyFromPending(c *Conn, token slsk.Token) (slsk.ConnectionState, bool) {
	egress := make(chan slsk.PeerRequestPacket, 32)
	state, ok := f.registry.MarkReady(token, egress)
	if !ok {
		return slsk.ConnectionState{}, false
	}
	f.startEgressWriter(c, egress)
	return state, true
}

// startEgressWriter spawns the goroutine that drains a connection's
// egress channel onto the wire, so listen can concurrently read.
func (f *Fabric) startEgressWriter(c *Conn, egress <-chan slsk.PeerRequestPacket) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for {
			select {
			case pkt, ok := <-egress:
				if !ok {
					return
				}
				if err := c.writeRequest(pkt); err != nil {
					f.log.Debug("egress write failed", "err", err)
					return
				}
			case <-f.shutdown:
				return
			}
		}
	}()
}

// listen runs the read side of a connection whose egress is already
// being drained elsewhere (the PierceFirewall path, where
// markReadyFromPending started the writer).
func (f *Fabric) listen(c *Conn, username string) {
	defer f.teardown(c)
	f.readLoop(c, username)
}

// listenWithEgress starts the egress writer and then runs the read loop,
// for connections recorded via RecordPeerInit.
func (f *Fabric) listenWithEgress(c *Conn, username string, egress <-chan slsk.PeerRequestPacket) {
	f.startEgressWriter(c, egress)
	f.listen(c, username)
}

func (f *Fabric) teardown(c *Conn) {
	if !c.Token.IsEphemeral() {
		f.registry.Remove(c.Token)
	}
}

// readLoop dispatches frames by connection kind until the connection
// closes, an unrecoverable decode error occurs, or shutdown fires.
func (f *Fabric) readLoop(c *Conn, username string) {
	switch c.Kind {
	case slsk.FileTransfer:
		if err := c.download(f.downloads, username, f.publishProgress, openFileForWrite, f.cfg.DownloadDir); err != nil {
			f.log.Debug("download ended", "user", username, "err", err)
		}
		return
	case slsk.P2P:
		f.readP2P(c, username)
	case slsk.Distributed:
		f.readDistributed(c, username)
	}
}

func (f *Fabric) readP2P(c *Conn, username string) {
	for {
		select {
		case <-f.shutdown:
			return
		default:
		}
		frame, err := c.readFrame()
		if err != nil {
			f.log.Debug("p2p read ended", "user", username, "err", err)
			return
		}
		pkt := frame.Peer
		if pkt.SearchReply != nil {
			if f.allowSearchReply(pkt.SearchReply.Ticket) {
				f.outlet.PublishPeer(events.PeerEvent{Username: username, Peer: pkt})
			}
			return // search-reply connections are one-shot
		}
		f.applyP2PSideEffects(c, pkt, username)
		f.outlet.PublishPeer(events.PeerEvent{Username: username, Peer: pkt})
	}
}

func (f *Fabric) readDistributed(c *Conn, username string) {
	for {
		select {
		case <-f.shutdown:
			return
		default:
		}
		frame, err := c.readFrame()
		if err != nil {
			f.log.Debug("distributed read ended", "user", username, "err", err)
			return
		}
		f.outlet.PublishPeer(events.PeerEvent{Username: username, Distributed: frame.Distributed})
	}
}

// applyP2PSideEffects implements the protocol-level replies the listen
// loop owes before forwarding a message to the outlet.
func (f *Fabric) applyP2PSideEffects(c *Conn, pkt *slsk.PeerResponsePacket, username string) {
	switch {
	case pkt.SharesRequest != nil:
		_ = c.writeRequest(f.shares.Shares())
	case pkt.UserInfoRequest != nil:
		_ = c.writeRequest(f.shares.Profile())
	case pkt.TransferRequest != nil && pkt.TransferRequest.Direction == 1:
		rec := slsk.DownloadRecord{
			User:     username,
			Ticket:   pkt.TransferRequest.Ticket,
			Filename: pkt.TransferRequest.Filename,
		}
		if pkt.TransferRequest.FileSize != nil {
			rec.FileSize = *pkt.TransferRequest.FileSize
		}
		_ = f.downloads.Put(rec)
		var size *uint64
		if pkt.TransferRequest.FileSize != nil {
			size = pkt.TransferRequest.FileSize
		}
		_ = c.writeRequest(slsk.TransferReply{Ticket: pkt.TransferRequest.Ticket, Allowed: true, FileSize: size})
	}
}

// ResetSearchLimit starts a fresh reply budget for ticket so a stale
// ticket's late replies stop counting against the new one. The daemon's
// Search calls it before each FileSearch it sends.
func (f *Fabric) ResetSearchLimit(ticket uint32) {
	f.searchMu.Lock()
	defer f.searchMu.Unlock()
	f.searchLimit.Reset(ticket, DefaultSearchReplyBudget)
}

func (f *Fabric) allowSearchReply(ticket uint32) bool {
	f.searchMu.Lock()
	defer f.searchMu.Unlock()
	return f.searchLimit.Allow(ticket)
}

func (f *Fabric) publishProgress(ticket uint32, percent int, done bool) {
	f.outlet.PublishDownload(events.DownloadProgress{Ticket: ticket, Percent: percent, Done: done})
}

// newToken returns a process-unique random token for an outbound
// connection attempt.
func newToken() slsk.Token {
	id := uuid.New()
	b := id[:4]
	return slsk.Token(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]))
}

// openFileForWrite creates (or truncates) the destination file for an
// incoming download, making sure its parent directory exists first.
func openFileForWrite(path string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
}
