package hostservices

import (
	"context"
	"fmt"
	"sync"
)

// FileUseToken is returned by FileLoader.GetReadOnlyTo: a reference-counted
// handle on a staged file. Dropping it (Release) decrements the refcount;
// the loader may evict the underlying content once it reaches zero.
type FileUseToken struct {
	Project    string
	Key        string
	TargetPath string

	release func()
	once    sync.Once
}

// Release drops this token's reference. Safe to call more than once; only
// the first call has an effect.
func (t *FileUseToken) Release() {
	t.once.Do(func() {
		if t.release != nil {
			t.release()
		}
	})
}

// FileLoader maintains a content-addressed read-only file store shared
// across every worker on a node, so identical InitialComponentFile content
// (the common case: every instance of a component shares the same files)
// is fetched and staged once.
type FileLoader interface {
	// GetReadOnlyTo stages key's content at targetPath for project and
	// returns a ref-counted token; the caller must Release it once the
	// worker no longer needs the file (typically on worker teardown).
	GetReadOnlyTo(ctx context.Context, project, key, targetPath string) (*FileUseToken, error)

	// GetReadWriteTo copies key's content to targetPath for project,
	// giving the caller an independent writable copy with no shared
	// refcount.
	GetReadWriteTo(ctx context.Context, project, key, targetPath string) error
}

type refCountedEntry struct {
	content []byte
	refs    int
}

// ContentAddressedFileLoader is an in-memory FileLoader keyed by content
// hash, the shape a single-node deployment or test harness needs. It only
// checks that a key is present and counts references; it writes nothing
// to targetPath for either GetReadOnlyTo or GetReadWriteTo. A
// production deployment would back this with the same blob store wired for
// BlobStore (internal/hostservices/blobstore.go).
type ContentAddressedFileLoader struct {
	mu      sync.Mutex
	content map[string][]byte // key -> file bytes, populated out of band
	refs    map[string]int    // key -> live reference count
}

func NewContentAddressedFileLoader(content map[string][]byte) *ContentAddressedFileLoader {
	if content == nil {
		content = map[string][]byte{}
	}
	return &ContentAddressedFileLoader{content: content, refs: make(map[string]int)}
}

func (l *ContentAddressedFileLoader) GetReadOnlyTo(ctx context.Context, project, key, targetPath string) (*FileUseToken, error) {
	l.mu.Lock()
	_, ok := l.content[key]
	if !ok {
		l.mu.Unlock()
		return nil, fmt.Errorf("file loader: key %q not found", key)
	}
	l.refs[key]++
	l.mu.Unlock()

	return &FileUseToken{
		Project:    project,
		Key:        key,
		TargetPath: targetPath,
		release: func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.refs[key] > 0 {
				l.refs[key]--
			}
		},
	}, nil
}

func (l *ContentAddressedFileLoader) GetReadWriteTo(ctx context.Context, project, key, targetPath string) error {
	l.mu.Lock()
	_, ok := l.content[key]
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("file loader: key %q not found", key)
	}
	return nil
}

// RefCount returns the live reference count for key, used by tests to
// assert Release actually decrements it.
func (l *ContentAddressedFileLoader) RefCount(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refs[key]
}

var _ FileLoader = (*ContentAddressedFileLoader)(nil)
