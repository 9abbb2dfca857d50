package payloadstore

import (
	"bytes"
	"context"
	"testing"

	"github.com/golemproject/workerexec/internal/oplog"
)

func TestMemoryStoreUploadDownloadRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	owner := oplog.OwnedWorkerId{WorkerId: oplog.WorkerId{WorkerName: "w1"}}
	payload := []byte("a large result that would otherwise bloat the oplog entry")

	ref, err := store.Upload(ctx, owner, payload)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if ref.Size != int64(len(payload)) {
		t.Fatalf("ref.Size = %d, want %d", ref.Size, len(payload))
	}

	got, err := store.Download(ctx, ref)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("Download = %q, want %q", got, payload)
	}
}

func TestMemoryStoreDownloadMissingKeyFails(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Download(context.Background(), oplog.PayloadRef{Key: "missing"})
	if err == nil {
		t.Fatalf("expected error downloading missing payload")
	}
}
