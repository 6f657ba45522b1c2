package dispatch

import (
	"sync"

	"github.com/oknozor/vessel-sub000/slsk"
)

// messageQueue holds outbound P2P messages that have nowhere to go yet,
// keyed by the destination username. Entries drain strictly in push
// order once that username's connection becomes ready.
type messageQueue struct {
	mu     sync.Mutex
	byUser map[string][]slsk.PeerRequestPacket
}

func newMessageQueue() *messageQueue {
	return &messageQueue{byUser: make(map[string][]slsk.PeerRequestPacket)}
}

func (q *messageQueue) push(username string, pkt slsk.PeerRequestPacket) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.byUser[username] = append(q.byUser[username], pkt)
}

// popFront removes and returns the oldest queued message for username, if
// any. Used by the control-command path's pop-and-send step so a live
// connection drains its own backlog one packet at a time, in push order.
func (q *messageQueue) popFront(username string) (slsk.PeerRequestPacket, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	pkts := q.byUser[username]
	if len(pkts) == 0 {
		return nil, false
	}
	pkt := pkts[0]
	if len(pkts) == 1 {
		delete(q.byUser, username)
	} else {
		q.byUser[username] = pkts[1:]
	}
	return pkt, true
}

// pushFront puts pkt back at the head of username's queue, for a packet
// that was popped but couldn't be sent (egress full). It must be retried
// before anything pushed after it, to preserve push order.
func (q *messageQueue) pushFront(username string, pkt slsk.PeerRequestPacket) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.byUser[username] = append([]slsk.PeerRequestPacket{pkt}, q.byUser[username]...)
}

// drain returns and clears every queued message for username, in the
// exact order they were pushed.
func (q *messageQueue) drain(username string) []slsk.PeerRequestPacket {
	q.mu.Lock()
	defer q.mu.Unlock()
	pkts := q.byUser[username]
	delete(q.byUser, username)
	return pkts
}

func (q *messageQueue) hasPending(username string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byUser[username]) > 0
}
