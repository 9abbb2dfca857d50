package oplogservice

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/golemproject/workerexec/internal/oplog"
)

// bucketWorkers is the top-level bucket; each worker gets its own nested
// bucket keyed by its owned worker id string, following
// IAmSoThirsty-Project-AI's bucket-per-concern layout
// (internal/storage/bolt.go) but with one bucket per worker instead of one
// global bucket, since oplog reads are always scoped to a single worker.
var bucketWorkers = []byte("workers")

// BoltService is the embedded/single-node oplog backend: suitable for
// development and single-process deployments where a Postgres cluster is
// unwarranted. It stores each worker's entries in its own bbolt bucket,
// keyed by big-endian encoded OplogIndex so iteration order matches index
// order without needing a secondary sort.
type BoltService struct {
	db *bolt.DB
}

// NewBoltService opens (or creates) the bbolt file at path.
func NewBoltService(path string) (*BoltService, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt.Open(%q): %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketWorkers)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create workers bucket: %w", err)
	}
	return &BoltService{db: db}, nil
}

func (s *BoltService) Close() error {
	return s.db.Close()
}

func indexKey(idx oplog.OplogIndex) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(idx))
	return key
}

func workerBucket(tx *bolt.Tx, owner oplog.OwnedWorkerId, create bool) (*bolt.Bucket, error) {
	workers := tx.Bucket(bucketWorkers)
	name := []byte(owner.String())
	if create {
		return workers.CreateBucketIfNotExists(name)
	}
	return workers.Bucket(name), nil
}

func (s *BoltService) Append(ctx context.Context, owner oplog.OwnedWorkerId, entries []oplog.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := workerBucket(tx, owner, true)
		if err != nil {
			return fmt.Errorf("worker bucket for %s: %w", owner, err)
		}
		for _, e := range entries {
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("marshal oplog entry %d: %w", e.Index, err)
			}
			if err := b.Put(indexKey(e.Index), data); err != nil {
				return fmt.Errorf("put oplog entry %d: %w", e.Index, err)
			}
		}
		return nil
	})
}

func (s *BoltService) Read(ctx context.Context, owner oplog.OwnedWorkerId, from, to oplog.OplogIndex) ([]oplog.Entry, error) {
	var out []oplog.Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := workerBucket(tx, owner, false)
		if err != nil {
			return fmt.Errorf("worker bucket for %s: %w", owner, err)
		}
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek(indexKey(from)); k != nil; k, v = c.Next() {
			idx := oplog.OplogIndex(binary.BigEndian.Uint64(k))
			if idx > to {
				break
			}
			var e oplog.Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("unmarshal oplog entry at %v: %w", idx, err)
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

func (s *BoltService) LastIndex(ctx context.Context, owner oplog.OwnedWorkerId) (oplog.OplogIndex, error) {
	var last oplog.OplogIndex = oplog.OplogIndexNone
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := workerBucket(tx, owner, false)
		if err != nil {
			return fmt.Errorf("worker bucket for %s: %w", owner, err)
		}
		if b == nil {
			return nil
		}
		k, _ := b.Cursor().Last()
		if k != nil {
			last = oplog.OplogIndex(binary.BigEndian.Uint64(k))
		}
		return nil
	})
	return last, err
}

func (s *BoltService) DeleteRange(ctx context.Context, owner oplog.OwnedWorkerId, from, to oplog.OplogIndex) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := workerBucket(tx, owner, false)
		if err != nil {
			return fmt.Errorf("worker bucket for %s: %w", owner, err)
		}
		if b == nil {
			return nil
		}
		c := b.Cursor()
		var toDelete [][]byte
		for k, _ := c.Seek(indexKey(from)); k != nil; k, _ = c.Next() {
			idx := oplog.OplogIndex(binary.BigEndian.Uint64(k))
			if idx > to {
				break
			}
			keyCopy := make([]byte, len(k))
			copy(keyCopy, k)
			toDelete = append(toDelete, keyCopy)
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("delete oplog entry: %w", err)
			}
		}
		return nil
	})
}

var _ Service = (*BoltService)(nil)
