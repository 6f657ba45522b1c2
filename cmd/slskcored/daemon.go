package main

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/oknozor/vessel-sub000/config"
	"github.com/oknozor/vessel-sub000/dispatch"
	"github.com/oknozor/vessel-sub000/events"
	"github.com/oknozor/vessel-sub000/p2p"
	"github.com/oknozor/vessel-sub000/serverlink"
	"github.com/oknozor/vessel-sub000/slsk"
	"github.com/oknozor/vessel-sub000/slsklog"
	"github.com/oknozor/vessel-sub000/store"
)

// staticShares answers SharesRequest/UserInfoRequest with a fixed,
// directory-derived listing; real share scanning is out of scope here,
// the way spec.md's Non-goals exclude it.
type staticShares struct {
	directories []string
	description string
}

func (s *staticShares) Shares() slsk.SharesReply {
	dirs := make([]slsk.Directory, 0, len(s.directories))
	for _, d := range s.directories {
		dirs = append(dirs, slsk.Directory{Name: d})
	}
	return slsk.SharesReply{Directories: dirs}
}

func (s *staticShares) Profile() slsk.UserInfoReply {
	return slsk.UserInfoReply{Description: s.description, SlotsFree: true}
}

// linkHandle defers to whichever serverlink.Link is installed after
// Dial succeeds, breaking the construction cycle between Fabric (which
// needs a sender at construction time) and Link (which needs channels
// owned by the Dispatcher and Fabric).
type linkHandle struct {
	link *serverlink.Link
}

func (h *linkHandle) Send(msg slsk.Encodable) {
	if h.link != nil {
		h.link.Send(msg)
	}
}

// daemon bundles every wired collaborator for the lifetime of one run.
type daemon struct {
	cfg        config.Config
	db         *store.LevelDB
	outlet     *events.Outlet
	fabric     *p2p.Fabric
	dispatcher *dispatch.Dispatcher
	link       *serverlink.Link
	log        *slsklog.Logger
	nextTicket uint32
}

// Search issues a fresh-ticketed global search and resets that ticket's
// reply budget before the request reaches the wire, so replies never
// race the limit that gates them.
func (d *daemon) Search(query string) {
	ticket := atomic.AddUint32(&d.nextTicket, 1)
	d.fabric.ResetSearchLimit(ticket)
	d.link.Send(slsk.FileSearch{Ticket: ticket, Query: query})
}

func newDaemon(ctx context.Context, cfg config.Config) (*daemon, error) {
	log := slsklog.New("component", "daemon")

	db, err := store.Open(cfg.Storage.DataDir, cfg.Storage.CacheBytes)
	if err != nil {
		return nil, err
	}

	outlet := events.NewOutlet(256)
	shares := &staticShares{directories: cfg.Shares.Directories, description: "slskcored"}
	handle := &linkHandle{}

	fabric, err := p2p.NewFabric(p2p.Config{
		Username:       cfg.Server.Username,
		MaxConnections: cfg.Listen.MaxConnections,
		DownloadDir:    cfg.Storage.DownloadDir,
	}, outlet, db.Downloads(), shares, handle)
	if err != nil {
		db.Close()
		return nil, err
	}

	dispatcher := dispatch.New(fabric.Registry(), fabric, handle, db)

	peerRequests := make(chan slsk.ConnectToPeer, 64)
	parentsUpdate := make(chan []slsk.Parent, 8)

	link, err := serverlink.Dial(ctx, cfg.Server.Address, serverlink.Credentials{
		Username:   cfg.Server.Username,
		Password:   cfg.Server.Password,
		ListenPort: cfg.Listen.Port,
		Room:       cfg.Server.Room,
	}, serverlink.Dependencies{
		Outlet:        outlet,
		PeerRequests:  peerRequests,
		ParentsUpdate: parentsUpdate,
		AddressReply:  dispatcher.AddressReply(),
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	handle.link = link

	go forwardPeerRequests(ctx, fabric, peerRequests, log)
	go forwardParentsUpdate(ctx, fabric, parentsUpdate, log)

	return &daemon{cfg: cfg, db: db, outlet: outlet, fabric: fabric, dispatcher: dispatcher, link: link, log: log}, nil
}

func forwardPeerRequests(ctx context.Context, fabric *p2p.Fabric, in <-chan slsk.ConnectToPeer, log *slsklog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-in:
			if err := fabric.ConnectIndirect(ctx, req); err != nil {
				log.Debug("indirect connect failed", "user", req.Username, "err", err)
			}
		}
	}
}

func forwardParentsUpdate(ctx context.Context, fabric *p2p.Fabric, in <-chan []slsk.Parent, log *slsklog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case parents := <-in:
			fabric.ConnectToParents(ctx, parents)
		}
	}
}

// listenAndAccept binds the configured port and runs the acceptor until
// ctx is cancelled.
func (d *daemon) listenAndAccept(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", d.cfg.Listen.Port))
	if err != nil {
		return &slsk.FatalError{Cause: fmt.Errorf("daemon: listen on %d: %w", d.cfg.Listen.Port, err)}
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	return d.fabric.Accept(ctx, ln)
}

func (d *daemon) close() {
	d.fabric.Shutdown()
	d.link.Close()
	d.db.Close()
}
