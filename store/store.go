// Package store defines the persisted-state collaborators the core
// depends on but does not own: the peer directory, the download ledger,
// and the upload queue. The core only ever sees these interfaces; a
// default LevelDB-backed implementation is provided so cmd/slskcored can
// run standalone without an external database.
package store

import "github.com/oknozor/vessel-sub000/slsk"

// PeerStore persists resolved peer addresses, keyed by username.
type PeerStore interface {
	Get(username string) (slsk.PeerRecord, bool)
	Put(rec slsk.PeerRecord) error
}

// DownloadStore persists inbound transfer bookkeeping, keyed by
// (user, ticket).
type DownloadStore interface {
	Get(user string, ticket uint32) (slsk.DownloadRecord, bool)
	Put(rec slsk.DownloadRecord) error
	UpdateProgress(user string, ticket uint32, bytesProgressed uint64) error
}

// UploadStore persists the outbound upload queue, keyed by
// (user, filename). PlaceInQueue is assigned from a process-wide
// monotonic counter owned by the store.
type UploadStore interface {
	Get(user, filename string) (slsk.UploadRecord, bool)
	Enqueue(user, filename string, ticket uint32) (slsk.UploadRecord, error)
	Remove(user, filename string) error
}
