package p2p

import (
	"bytes"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/oknozor/vessel-sub000/slsk"
	"github.com/stretchr/testify/require"
)

type memFile struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (f *memFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buf.Write(p)
}

func (f *memFile) Close() error { return nil }

func (f *memFile) Bytes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.buf.Bytes()...)
}

type progressEvent struct {
	percent int
	done    bool
}

func writeTicketAndAck(t *testing.T, conn net.Conn, ticket uint32) {
	t.Helper()
	var b [4]byte
	b[0] = byte(ticket)
	b[1] = byte(ticket >> 8)
	b[2] = byte(ticket >> 16)
	b[3] = byte(ticket >> 24)
	_, err := conn.Write(b[:])
	require.NoError(t, err)

	// Drain the three zero u32s the ack side writes back.
	ack := make([]byte, 12)
	_, err = io.ReadFull(conn, ack)
	require.NoError(t, err)
	require.Equal(t, make([]byte, 12), ack)
}

func TestDownloadReportsQuarterPercentMilestones(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	c := newConn(server)

	downloads := newMemDownloads()
	require.NoError(t, downloads.Put(slsk.DownloadRecord{User: "amy", Ticket: 1, Filename: "song.mp3", FileSize: 100}))

	var mu sync.Mutex
	var events []progressEvent
	progress := func(ticket uint32, percent int, done bool) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, progressEvent{percent, done})
	}

	var mf memFile
	openFile := func(string) (io.WriteCloser, error) { return &mf, nil }

	done := make(chan error, 1)
	go func() { done <- c.download(downloads, "amy", progress, openFile, "/tmp") }()

	writeTicketAndAck(t, client, 1)

	payload := bytes.Repeat([]byte{0xAB}, 100)
	for _, chunk := range [][]byte{payload[0:25], payload[25:50], payload[50:75], payload[75:100]} {
		_, err := client.Write(chunk)
		require.NoError(t, err)
	}
	client.Close()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("download never completed")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []progressEvent{
		{25, false}, {50, false}, {75, false}, {100, true},
	}, events)
	require.Equal(t, payload, mf.Bytes())

	rec, ok := downloads.Get("amy", 1)
	require.True(t, ok)
	require.Equal(t, uint64(100), rec.BytesProgressed)
}

func TestDownloadTruncatedTransferReportsActualPercentNotFakeCompletion(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	c := newConn(server)

	downloads := newMemDownloads()
	require.NoError(t, downloads.Put(slsk.DownloadRecord{User: "ben", Ticket: 2, Filename: "movie.mkv", FileSize: 1000}))

	var mu sync.Mutex
	var events []progressEvent
	progress := func(ticket uint32, percent int, done bool) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, progressEvent{percent, done})
	}

	var mf memFile
	openFile := func(string) (io.WriteCloser, error) { return &mf, nil }

	done := make(chan error, 1)
	go func() { done <- c.download(downloads, "ben", progress, openFile, "/tmp") }()

	writeTicketAndAck(t, client, 2)

	// Only 30% of the file arrives before the remote hangs up.
	_, err := client.Write(bytes.Repeat([]byte{0xCD}, 300))
	require.NoError(t, err)
	client.Close()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("download never returned")
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.True(t, last.done, "connection ending must still signal done")
	require.Equal(t, 30, last.percent, "a truncated transfer must report the percent actually reached, not a fabricated 100")
}

func TestSanitizeFilenameTakesWindowsBasename(t *testing.T) {
	require.Equal(t, "track.mp3", sanitizeFilename(`C:\Users\bob\share\music\track.mp3`))
	require.Equal(t, "track.mp3", sanitizeFilename("music/track.mp3"))
}
