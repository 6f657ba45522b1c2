package store

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/oknozor/vessel-sub000/slsk"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB is the default PeerStore/DownloadStore/UploadStore
// implementation: three key prefixes in one on-disk database, with a
// fastcache read-through layer in front of the peer directory since it's
// read far more often than it's written (every dispatch lookup misses
// checks it).
type LevelDB struct {
	db           *leveldb.DB
	peerCache    *fastcache.Cache
	placeInQueue uint64
}

const (
	prefixUser     = "u:"
	prefixDownload = "d:"
	prefixUpload   = "p:"
)

// Open creates or reuses a LevelDB database at dir, with an in-memory
// peer-lookup cache sized cacheBytes.
func Open(dir string, cacheBytes int) (*LevelDB, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dir, err)
	}
	return &LevelDB{db: db, peerCache: fastcache.New(cacheBytes)}, nil
}

func (s *LevelDB) Close() error { return s.db.Close() }

func userKey(username string) []byte {
	return []byte(prefixUser + username)
}

func (s *LevelDB) Get(username string) (slsk.PeerRecord, bool) {
	if cached, ok := s.peerCache.HasGet(nil, userKey(username)); ok {
		var rec slsk.PeerRecord
		if err := json.Unmarshal(cached, &rec); err == nil {
			return rec, true
		}
	}
	raw, err := s.db.Get(userKey(username), nil)
	if err != nil {
		return slsk.PeerRecord{}, false
	}
	var rec slsk.PeerRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return slsk.PeerRecord{}, false
	}
	s.peerCache.Set(userKey(username), raw)
	return rec, true
}

func (s *LevelDB) Put(rec slsk.PeerRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.db.Put(userKey(rec.Username), raw, nil); err != nil {
		return err
	}
	s.peerCache.Set(userKey(rec.Username), raw)
	return nil
}

// ListPeers returns every persisted peer record, for CLI/diagnostic dumps.
func (s *LevelDB) ListPeers() ([]slsk.PeerRecord, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefixUser)), nil)
	defer iter.Release()

	var recs []slsk.PeerRecord
	for iter.Next() {
		var rec slsk.PeerRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	return recs, iter.Error()
}

func downloadKey(user string, ticket uint32) []byte {
	return []byte(fmt.Sprintf("%s%s@%d", prefixDownload, user, ticket))
}

func (s *LevelDB) GetDownload(user string, ticket uint32) (slsk.DownloadRecord, bool) {
	raw, err := s.db.Get(downloadKey(user, ticket), nil)
	if err != nil {
		return slsk.DownloadRecord{}, false
	}
	var rec slsk.DownloadRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return slsk.DownloadRecord{}, false
	}
	return rec, true
}

func (s *LevelDB) PutDownload(rec slsk.DownloadRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Put(downloadKey(rec.User, rec.Ticket), raw, nil)
}

func (s *LevelDB) UpdateDownloadProgress(user string, ticket uint32, bytesProgressed uint64) error {
	rec, ok := s.GetDownload(user, ticket)
	if !ok {
		return fmt.Errorf("store: no download record for %s@%d", user, ticket)
	}
	rec.BytesProgressed = bytesProgressed
	return s.PutDownload(rec)
}

func uploadKey(user, filename string) []byte {
	return []byte(prefixUpload + user + "@" + filename)
}

func (s *LevelDB) GetUpload(user, filename string) (slsk.UploadRecord, bool) {
	raw, err := s.db.Get(uploadKey(user, filename), nil)
	if err != nil {
		return slsk.UploadRecord{}, false
	}
	var rec slsk.UploadRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return slsk.UploadRecord{}, false
	}
	return rec, true
}

func (s *LevelDB) EnqueueUpload(user, filename string, ticket uint32) (slsk.UploadRecord, error) {
	place := atomic.AddUint64(&s.placeInQueue, 1)
	rec := slsk.UploadRecord{User: user, Filename: filename, Ticket: ticket, PlaceInQueue: uint32(place)}
	raw, err := json.Marshal(rec)
	if err != nil {
		return slsk.UploadRecord{}, err
	}
	if err := s.db.Put(uploadKey(user, filename), raw, nil); err != nil {
		return slsk.UploadRecord{}, err
	}
	return rec, nil
}

func (s *LevelDB) RemoveUpload(user, filename string) error {
	return s.db.Delete(uploadKey(user, filename), nil)
}

// downloadStoreAdapter and uploadStoreAdapter satisfy the store
// interfaces with LevelDB's own (differently-named, to avoid a stutter
// like DownloadStore.Get(user, ticket) shadowing PeerStore.Get(username))
// method set.
type downloadStoreAdapter struct{ db *LevelDB }
type uploadStoreAdapter struct{ db *LevelDB }

func (a downloadStoreAdapter) Get(user string, ticket uint32) (slsk.DownloadRecord, bool) {
	return a.db.GetDownload(user, ticket)
}
func (a downloadStoreAdapter) Put(rec slsk.DownloadRecord) error { return a.db.PutDownload(rec) }
func (a downloadStoreAdapter) UpdateProgress(user string, ticket uint32, bytesProgressed uint64) error {
	return a.db.UpdateDownloadProgress(user, ticket, bytesProgressed)
}

func (a uploadStoreAdapter) Get(user, filename string) (slsk.UploadRecord, bool) {
	return a.db.GetUpload(user, filename)
}
func (a uploadStoreAdapter) Enqueue(user, filename string, ticket uint32) (slsk.UploadRecord, error) {
	return a.db.EnqueueUpload(user, filename, ticket)
}
func (a uploadStoreAdapter) Remove(user, filename string) error {
	return a.db.RemoveUpload(user, filename)
}

// Downloads and Uploads expose LevelDB through the DownloadStore and
// UploadStore interfaces, so callers that only need one collection don't
// have to depend on the concrete type.
func (s *LevelDB) Downloads() DownloadStore { return downloadStoreAdapter{db: s} }
func (s *LevelDB) Uploads() UploadStore     { return uploadStoreAdapter{db: s} }

var _ PeerStore = (*LevelDB)(nil)
