package hostservices

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available, skipping: %v", err)
	}
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}

func TestRedisKeyValueServiceSetGetDelete(t *testing.T) {
	client := newTestRedisClient(t)
	svc := NewRedisKeyValueService(client)
	ctx := context.Background()

	if _, ok, err := svc.Get(ctx, "bucket1", "missing"); err != nil || ok {
		t.Fatalf("Get on missing key = (ok=%v, err=%v), want (false, nil)", ok, err)
	}

	if err := svc.Set(ctx, "bucket1", "k1", []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	data, ok, err := svc.Get(ctx, "bucket1", "k1")
	if err != nil || !ok || string(data) != "v1" {
		t.Fatalf("Get = (%q, %v, %v), want (v1, true, nil)", data, ok, err)
	}

	exists, err := svc.Exists(ctx, "bucket1", "k1")
	if err != nil || !exists {
		t.Fatalf("Exists = (%v, %v), want (true, nil)", exists, err)
	}

	if err := svc.Delete(ctx, "bucket1", "k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := svc.Get(ctx, "bucket1", "k1"); ok {
		t.Fatalf("expected key gone after Delete")
	}
}

func TestRedisKeyValueServiceListKeys(t *testing.T) {
	client := newTestRedisClient(t)
	svc := NewRedisKeyValueService(client)
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		if err := svc.Set(ctx, "bucket2", k, []byte(k)); err != nil {
			t.Fatalf("Set(%s): %v", k, err)
		}
	}

	keys, err := svc.ListKeys(ctx, "bucket2")
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("ListKeys returned %d keys, want 3", len(keys))
	}

	if err := svc.Delete(ctx, "bucket2", "a"); err != nil {
		t.Fatalf("Delete(a): %v", err)
	}
	keys, err = svc.ListKeys(ctx, "bucket2")
	if err != nil {
		t.Fatalf("ListKeys after delete: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("ListKeys after delete returned %d keys, want 2", len(keys))
	}
}
