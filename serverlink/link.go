// Package serverlink owns the single connection to the Soulseek server:
// login, the post-login boot sequence, and demultiplexing everything the
// server pushes afterward to the collaborators that care about it.
package serverlink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/oknozor/vessel-sub000/events"
	"github.com/oknozor/vessel-sub000/slsk"
	"github.com/oknozor/vessel-sub000/slsklog"
)

// DefaultAddress is the well-known Soulseek server address.
const DefaultAddress = "server.slsknet.org:2242"

// Credentials are the login parameters; Room is joined once login
// succeeds, matching the teacher-era client's habit of landing in a home
// room immediately.
type Credentials struct {
	Username   string
	Password   string
	ListenPort uint32
	Room       string
}

// Link owns the server TCP connection and every frame crossing it.
// Exactly one Link exists per process.
type Link struct {
	raw  net.Conn
	buf  *slsk.Buffer
	cfg  Credentials
	log  *slsklog.Logger
	mu   sync.Mutex // serializes writes; reads happen only on the run goroutine

	outlet *events.Outlet

	peerRequests  chan<- slsk.ConnectToPeer // -> Fabric indirect-connect path
	parentsUpdate chan<- []slsk.Parent      // -> distributed overlay
	addressReply  chan<- slsk.PeerAddress   // -> Dispatcher address resolution
	established   chan struct{}             // closed once PrivilegedUsers arrives

	send chan slsk.Encodable
	done chan struct{}
}

// Dependencies bundles the channels a Link forwards decoded pushes onto.
// Each is owned by another package; Link only ever sends, never closes.
type Dependencies struct {
	Outlet        *events.Outlet
	PeerRequests  chan<- slsk.ConnectToPeer
	ParentsUpdate chan<- []slsk.Parent
	AddressReply  chan<- slsk.PeerAddress
}

// Dial connects to the server and performs the login handshake. It
// blocks until the server answers Success or Failure; a Failure is
// fatal per the error taxonomy, since no useful work is possible without
// a session.
func Dial(ctx context.Context, address string, cfg Credentials, deps Dependencies) (*Link, error) {
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, &slsk.FatalError{Cause: fmt.Errorf("serverlink: dial %s: %w", address, err)}
	}

	l := &Link{
		raw:           raw,
		buf:           slsk.NewBuffer(),
		cfg:           cfg,
		log:           slsklog.New("component", "serverlink"),
		outlet:        deps.Outlet,
		peerRequests:  deps.PeerRequests,
		parentsUpdate: deps.ParentsUpdate,
		addressReply:  deps.AddressReply,
		established:   make(chan struct{}),
		send:          make(chan slsk.Encodable, 64),
		done:          make(chan struct{}),
	}

	if err := l.write(slsk.LoginRequest{Username: cfg.Username, Password: cfg.Password}); err != nil {
		raw.Close()
		return nil, &slsk.FatalError{Cause: err}
	}

	msg, err := l.readServerMessage()
	if err != nil {
		raw.Close()
		return nil, &slsk.FatalError{Cause: err}
	}
	if msg.Login == nil {
		raw.Close()
		return nil, &slsk.FatalError{Cause: errors.New("serverlink: expected login result, got " + msg.String())}
	}
	if !msg.Login.Success {
		raw.Close()
		return nil, &slsk.FatalError{Cause: fmt.Errorf("serverlink: login rejected: %s", msg.Login.FailureReason)}
	}
	l.log.Info("logged in", "greeting", msg.Login.Greeting)

	if err := l.boot(); err != nil {
		raw.Close()
		return nil, &slsk.FatalError{Cause: err}
	}

	return l, nil
}

// boot sends the fixed post-login sequence: announce our listen port,
// declare we want a distributed-search parent, and join the configured
// room.
func (l *Link) boot() error {
	if err := l.write(slsk.SetListenPort{Port: l.cfg.ListenPort}); err != nil {
		return err
	}
	if err := l.write(slsk.HaveNoParents{NoParents: true}); err != nil {
		return err
	}
	if l.cfg.Room == "" {
		return nil
	}
	return l.write(slsk.JoinRoom{Room: l.cfg.Room})
}

// Run drives the read loop until ctx is cancelled or the connection
// ends. It also drains the outbound Send queue, so callers never block
// on a slow or stalled server socket beyond the channel's buffer.
func (l *Link) Run(ctx context.Context) error {
	defer close(l.done)
	go l.drainSend(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg, err := l.readServerMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				l.log.Info("server closed connection")
				return nil
			}
			return &slsk.FatalError{Cause: err}
		}
		l.dispatch(msg)
	}
}

func (l *Link) drainSend(ctx context.Context) {
	for {
		select {
		case msg, ok := <-l.send:
			if !ok {
				return
			}
			if err := l.write(msg); err != nil {
				l.log.Warn("send failed", "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Send queues an outbound message for the link's writer, or returns
// without queueing once the link is closed. Send does not touch the
// process-wide SearchLimit: the daemon's Search resets it through
// p2p.Fabric.ResetSearchLimit before it sends a FileSearch here.
func (l *Link) Send(msg slsk.Encodable) {
	select {
	case l.send <- msg:
	case <-l.done:
	}
}

// Established reports once the server has sent PrivilegedUsers, the
// conventional signal that the session is fully up (room joined, status
// pushed, initial privilege list received).
func (l *Link) Established() <-chan struct{} { return l.established }

func (l *Link) dispatch(msg slsk.ServerMessage) {
	switch {
	case msg.ConnectToPeer != nil:
		l.forwardPeerRequest(*msg.ConnectToPeer)
	case msg.PossibleParents != nil:
		l.forwardParents(msg.PossibleParents.Parents)
	case msg.PeerAddress != nil:
		l.forwardAddress(*msg.PeerAddress)
	case msg.PrivilegedUsers != nil:
		l.signalEstablished()
		l.outlet.PublishServer(events.ServerEvent{Message: msg})
	case msg.KickedFromServer != nil:
		l.log.Warn("kicked from server")
		l.outlet.PublishServer(events.ServerEvent{Message: msg})
	default:
		l.outlet.PublishServer(events.ServerEvent{Message: msg})
	}
}

func (l *Link) forwardPeerRequest(m slsk.ConnectToPeer) {
	select {
	case l.peerRequests <- m:
	case <-l.done:
	}
}

func (l *Link) forwardParents(parents []slsk.Parent) {
	select {
	case l.parentsUpdate <- parents:
	case <-l.done:
	}
}

func (l *Link) forwardAddress(addr slsk.PeerAddress) {
	select {
	case l.addressReply <- addr:
	case <-l.done:
	}
}

func (l *Link) signalEstablished() {
	select {
	case <-l.established:
	default:
		close(l.established)
	}
}

func (l *Link) write(msg slsk.Encodable) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.raw.Write(msg.Encode())
	return err
}

// readServerMessage blocks until one full server-family frame has been
// decoded, pulling more bytes off the socket as needed.
func (l *Link) readServerMessage() (slsk.ServerMessage, error) {
	for {
		frame, n, err := slsk.Decode(slsk.FamilyServer, l.buf)
		if err == nil {
			l.buf.Advance(n)
			return *frame.Server, nil
		}
		if !errors.Is(err, slsk.Incomplete) {
			return slsk.ServerMessage{}, err
		}
		if err := l.fill(); err != nil {
			return slsk.ServerMessage{}, err
		}
	}
}

func (l *Link) fill() error {
	tmp := make([]byte, 4096)
	n, err := l.raw.Read(tmp)
	if n > 0 {
		l.buf.Fill(tmp[:n])
	}
	if err != nil {
		if n == 0 {
			if l.buf.Len() == 0 {
				return io.EOF
			}
			return slsk.ErrConnectionResetByPeer
		}
	}
	return nil
}

// Close tears down the underlying socket.
func (l *Link) Close() error { return l.raw.Close() }
