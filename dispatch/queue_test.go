package dispatch

import (
	"testing"

	"github.com/oknozor/vessel-sub000/slsk"
	"github.com/stretchr/testify/require"
)

func TestQueueDrainsInPushOrder(t *testing.T) {
	q := newMessageQueue()
	first := slsk.SharesRequest{}
	second := slsk.UserInfoRequest{}

	q.push("alice", first)
	q.push("alice", second)

	pkts := q.drain("alice")
	require.Len(t, pkts, 2)
	require.Equal(t, first, pkts[0])
	require.Equal(t, second, pkts[1])
}

func TestQueueDrainClearsEntry(t *testing.T) {
	q := newMessageQueue()
	q.push("bob", slsk.SharesRequest{})
	q.drain("bob")

	require.False(t, q.hasPending("bob"))
	require.Empty(t, q.drain("bob"))
}

func TestQueueIsolatesUsernames(t *testing.T) {
	q := newMessageQueue()
	q.push("alice", slsk.SharesRequest{})
	q.push("bob", slsk.UserInfoRequest{})

	require.Len(t, q.drain("alice"), 1)
	require.True(t, q.hasPending("bob"))
}

func TestHasPendingFalseForUnknownUser(t *testing.T) {
	q := newMessageQueue()
	require.False(t, q.hasPending("nobody"))
}
