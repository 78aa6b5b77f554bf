package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisSnapshots, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	snapshots, err := NewRedisSnapshots("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis snapshots: %v", err)
	}
	return snapshots, s
}

func TestRedisSnapshotsMissingKey(t *testing.T) {
	snapshots, s := setupTestRedis(t)
	defer snapshots.Close()
	defer s.Close()

	data, err := snapshots.Get(context.Background(), KeyUsers)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if data != nil {
		t.Fatalf("expected nil for missing key, got %q", data)
	}
}

func TestRedisSnapshotsPutAllUsesPrefixedKeys(t *testing.T) {
	snapshots, s := setupTestRedis(t)
	defer snapshots.Close()
	defer s.Close()

	ctx := context.Background()
	err := snapshots.PutAll(ctx, map[string][]byte{
		KeyEvidence: []byte(`[]`),
		KeyUsers:    []byte(`[{"id":"u1"}]`),
	})
	if err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}

	raw, err := s.Get("portal:" + KeyUsers)
	if err != nil {
		t.Fatalf("expected prefixed key in redis: %v", err)
	}
	if raw != `[{"id":"u1"}]` {
		t.Fatalf("unexpected payload %q", raw)
	}

	data, err := snapshots.Get(ctx, KeyEvidence)
	if err != nil || string(data) != "[]" {
		t.Fatalf("Get = %q, %v", data, err)
	}
}

func TestStoreOverRedisRoundTrip(t *testing.T) {
	snapshots, s := setupTestRedis(t)
	defer snapshots.Close()
	defer s.Close()

	ctx := context.Background()
	first := New(snapshots, SeedUsers())
	if err := first.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := first.Update(ctx, func(state *State) error {
		state.Users[4].Name = "Rahul V."
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	second := New(snapshots, SeedUsers())
	if err := second.Load(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := second.Snapshot().Users[4].Name; got != "Rahul V." {
		t.Fatalf("expected persisted rename, got %q", got)
	}
}

func TestNewRedisSnapshotsBadURL(t *testing.T) {
	if _, err := NewRedisSnapshots("not-a-url"); err == nil {
		t.Fatal("expected parse error")
	}
}
