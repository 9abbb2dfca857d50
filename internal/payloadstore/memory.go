package payloadstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/golemproject/workerexec/internal/oplog"
)

// MemoryStore is an in-process Store used by tests and by single-process
// development deployments that have no S3-compatible endpoint configured.
type MemoryStore struct {
	mu   sync.RWMutex
	blob map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blob: make(map[string][]byte)}
}

func (m *MemoryStore) Upload(ctx context.Context, owner oplog.OwnedWorkerId, data []byte) (oplog.PayloadRef, error) {
	sum := sha256.Sum256(data)
	sha := hex.EncodeToString(sum[:])
	key := fmt.Sprintf("%s/%s", owner.String(), sha)

	m.mu.Lock()
	m.blob[key] = append([]byte(nil), data...)
	m.mu.Unlock()

	return oplog.PayloadRef{Key: key, Size: int64(len(data)), SHA256: sha}, nil
}

func (m *MemoryStore) Download(ctx context.Context, ref oplog.PayloadRef) ([]byte, error) {
	m.mu.RLock()
	data, ok := m.blob[ref.Key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("payload %s not found", ref.Key)
	}
	return append([]byte(nil), data...), nil
}

var _ Store = (*MemoryStore)(nil)
