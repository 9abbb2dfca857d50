package hostservices

import (
	"context"
	"testing"
)

func TestContentAddressedFileLoaderRefCounting(t *testing.T) {
	loader := NewContentAddressedFileLoader(map[string][]byte{
		"sha256:abc": []byte("hello"),
	})
	ctx := context.Background()

	token1, err := loader.GetReadOnlyTo(ctx, "proj1", "sha256:abc", "/app/config.json")
	if err != nil {
		t.Fatalf("GetReadOnlyTo: %v", err)
	}
	if loader.RefCount("sha256:abc") != 1 {
		t.Fatalf("RefCount = %d, want 1", loader.RefCount("sha256:abc"))
	}

	token2, err := loader.GetReadOnlyTo(ctx, "proj2", "sha256:abc", "/app/other.json")
	if err != nil {
		t.Fatalf("GetReadOnlyTo: %v", err)
	}
	if loader.RefCount("sha256:abc") != 2 {
		t.Fatalf("RefCount = %d, want 2", loader.RefCount("sha256:abc"))
	}

	token1.Release()
	if loader.RefCount("sha256:abc") != 1 {
		t.Fatalf("RefCount after one release = %d, want 1", loader.RefCount("sha256:abc"))
	}

	token1.Release() // double release must be a no-op
	if loader.RefCount("sha256:abc") != 1 {
		t.Fatalf("RefCount after double release = %d, want 1", loader.RefCount("sha256:abc"))
	}

	token2.Release()
	if loader.RefCount("sha256:abc") != 0 {
		t.Fatalf("RefCount after both releases = %d, want 0", loader.RefCount("sha256:abc"))
	}
}

func TestContentAddressedFileLoaderMissingKey(t *testing.T) {
	loader := NewContentAddressedFileLoader(nil)
	ctx := context.Background()

	if _, err := loader.GetReadOnlyTo(ctx, "proj1", "missing", "/x"); err == nil {
		t.Fatalf("expected an error for a key that was never staged")
	}
	if err := loader.GetReadWriteTo(ctx, "proj1", "missing", "/x"); err == nil {
		t.Fatalf("expected an error for a key that was never staged")
	}
}
