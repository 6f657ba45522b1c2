package p2p

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"path"
	"strings"

	"github.com/oknozor/vessel-sub000/slsk"
	"github.com/oknozor/vessel-sub000/store"
)

// Conn is a duplex wrapper over a single TCP stream: an accumulating
// read buffer, the connection's current kind, and its bound token (set
// once the handshake completes). Its read side is owned by one handler
// goroutine. All writes go through writeRequest; on a live P2P connection
// two goroutines write (the egress writer and the read loop's protocol
// replies), see writeRequest.
type Conn struct {
	raw   net.Conn
	buf   *slsk.Buffer
	Kind  slsk.ConnectionKind
	Token slsk.Token
}

func newConn(raw net.Conn) *Conn {
	return &Conn{raw: raw, buf: slsk.NewBuffer(), Kind: slsk.HandShake}
}

func (c *Conn) family() slsk.Family {
	switch c.Kind {
	case slsk.P2P:
		return slsk.FamilyP2P
	case slsk.Distributed:
		return slsk.FamilyDistributed
	default:
		return slsk.FamilyPeerInit
	}
}

// fill reads whatever bytes are currently available off the socket into
// the buffer. A zero-byte read with an empty buffer is a clean
// disconnect (io.EOF); with a non-empty buffer it's ErrConnectionResetByPeer.
func (c *Conn) fill() error {
	tmp := make([]byte, 4096)
	n, err := c.raw.Read(tmp)
	if n > 0 {
		c.buf.Fill(tmp[:n])
	}
	if err != nil {
		if n == 0 {
			if c.buf.Len() == 0 {
				return io.EOF
			}
			return slsk.ErrConnectionResetByPeer
		}
	}
	return nil
}

// readFrame blocks until one full frame has been decoded off the wire,
// pulling more bytes as needed.
func (c *Conn) readFrame() (slsk.Frame, error) {
	for {
		frame, n, err := slsk.Decode(c.family(), c.buf)
		if err == nil {
			c.buf.Advance(n)
			return frame, nil
		}
		if !errors.Is(err, slsk.Incomplete) {
			return slsk.Frame{}, err
		}
		if err := c.fill(); err != nil {
			return slsk.Frame{}, err
		}
	}
}

// readHandshake reads exactly one peer-init frame; used only before the
// connection has settled into a ConnectionKind.
func (c *Conn) readHandshake() (slsk.HandshakeMessage, error) {
	frame, err := c.readFrame()
	if err != nil {
		return slsk.HandshakeMessage{}, err
	}
	return *frame.Handshake, nil
}

// writeRequest serializes one outbound application message and hands the
// whole frame to the underlying net.Conn in a single Write call. Conn
// takes no write lock of its own; concurrent callers rely on net.Conn
// accepting concurrent Write calls.
func (c *Conn) writeRequest(p slsk.PeerRequestPacket) error {
	_, err := c.raw.Write(p.Encode())
	return err
}

func (c *Conn) Close() error { return c.raw.Close() }

// sanitizeFilename takes a Soulseek remote path (backslash-separated,
// since most clients are Windows) and returns a safe basename to place
// under the local download directory.
func sanitizeFilename(remote string) string {
	unixified := strings.ReplaceAll(remote, `\`, "/")
	return path.Base(unixified)
}

// download runs a FileTransfer connection to completion: read the
// opening ticket, look up the matching DownloadRecord, acknowledge with
// three zero u32s, then stream the file body to disk, reporting integer
// percent progress as it advances. Returns once the file size has been
// reached or the remote closes cleanly.
func (c *Conn) download(downloads store.DownloadStore, username string, progress func(ticket uint32, percent int, done bool), openFile func(path string) (io.WriteCloser, error), downloadDir string) error {
	ticket, err := c.readTicket()
	if err != nil {
		return err
	}

	rec, ok := downloads.Get(username, ticket)
	if !ok {
		return errors.New("p2p: no download record for incoming transfer ticket")
	}

	if err := c.ackTransfer(); err != nil {
		return err
	}

	f, err := openFile(path.Join(downloadDir, sanitizeFilename(rec.Filename)))
	if err != nil {
		return err
	}
	defer f.Close()

	if rec.FileSize == 0 {
		progress(ticket, 100, true)
		return nil
	}

	var written uint64
	lastPercent := -1
	buf := make([]byte, 32*1024)
	for written < rec.FileSize {
		n, err := c.raw.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return werr
			}
			written += uint64(n)
			_ = downloads.UpdateProgress(username, ticket, written)
			percent := int(written * 100 / maxU64(rec.FileSize, 1))
			if percent != lastPercent {
				lastPercent = percent
				progress(ticket, percent, written >= rec.FileSize)
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
	}
	if written < rec.FileSize {
		// The remote closed before delivering the full file. Report the
		// percent actually reached rather than claiming completion.
		progress(ticket, int(written*100/rec.FileSize), true)
	}
	return nil
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func (c *Conn) readTicket() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(c.raw, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func (c *Conn) ackTransfer() error {
	var zero [4]byte
	for i := 0; i < 3; i++ {
		if _, err := c.raw.Write(zero[:]); err != nil {
			return err
		}
	}
	return nil
}
