// Package events defines the three event streams the core emits to
// its external observer (the HTTP/SSE outlet in the full daemon): server
// responses, peer responses, and download progress.
package events

import "github.com/oknozor/vessel-sub000/slsk"

// ServerEvent wraps one decoded server-link message for the outlet.
type ServerEvent struct {
	Message slsk.ServerMessage
}

// PeerEvent wraps one decoded P2P or distributed message for the outlet,
// tagged with the username of the connection it arrived on.
type PeerEvent struct {
	Username    string
	Peer        *slsk.PeerResponsePacket
	Distributed *slsk.DistributedMessage
}

// DownloadProgress reports incremental progress of one inbound file
// transfer, keyed by the ticket the upload side opened the connection
// with. Percent is an integer 0-100; Done is set on the final event.
type DownloadProgress struct {
	Ticket  uint32
	Percent int
	Done    bool
}

// Outlet is the single point every core component publishes through.
// Each stream is one buffered channel with no subscriber registration:
// every event is received by exactly one reader of that channel, so
// several readers of the same stream split its events between them
// instead of each receiving all of them.
type Outlet struct {
	server   chan ServerEvent
	peer     chan PeerEvent
	download chan DownloadProgress
}

// NewOutlet allocates the three buffered channels. Buffer size bounds how
// far a slow reader may lag before new events are dropped; the core
// itself never blocks on a full outlet — see Publish*.
func NewOutlet(buffer int) *Outlet {
	return &Outlet{
		server:   make(chan ServerEvent, buffer),
		peer:     make(chan PeerEvent, buffer),
		download: make(chan DownloadProgress, buffer),
	}
}

func (o *Outlet) Server() <-chan ServerEvent           { return o.server }
func (o *Outlet) Peer() <-chan PeerEvent               { return o.peer }
func (o *Outlet) Download() <-chan DownloadProgress    { return o.download }

// PublishServer drops the event rather than blocking when the outlet is
// saturated; a slow external consumer must not stall the server link.
func (o *Outlet) PublishServer(e ServerEvent) {
	select {
	case o.server <- e:
	default:
	}
}

func (o *Outlet) PublishPeer(e PeerEvent) {
	select {
	case o.peer <- e:
	default:
	}
}

func (o *Outlet) PublishDownload(e DownloadProgress) {
	select {
	case o.download <- e:
	default:
	}
}
