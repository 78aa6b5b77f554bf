package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"compliance/api/internal/store"
)

var rahul = store.User{ID: "u5", Name: "Rahul Varma", Role: store.RoleContributor, Department: store.DeptOperations, IsActive: true}

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	registry, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { _ = registry.Close() })
	return registry, s
}

func TestNewRedisStore(t *testing.T) {
	registry, _ := setupTestRedis(t)
	if err := registry.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	if _, err := NewRedisStore("://nope"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSaveAndLookup(t *testing.T) {
	registry, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := registry.Save(ctx, "hash-1", rahul, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	data, err := registry.Lookup(ctx, "hash-1")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if data.UserID != "u5" || data.Name != "Rahul Varma" || data.Role != store.RoleContributor {
		t.Fatalf("unexpected token data: %+v", data)
	}
}

func TestLookupExpiredToken(t *testing.T) {
	registry, s := setupTestRedis(t)
	ctx := context.Background()

	if err := registry.Save(ctx, "expiring", rahul, time.Now().Add(time.Second)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	s.FastForward(2 * time.Second)

	if _, err := registry.Lookup(ctx, "expiring"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestSaveWithPastExpiryUsesDefaultTTL(t *testing.T) {
	registry, s := setupTestRedis(t)
	if err := registry.Save(context.Background(), "stale", rahul, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if ttl := s.TTL("portal:token:stale"); ttl != defaultTokenTTL {
		t.Fatalf("TTL = %v, want %v", ttl, defaultTokenTTL)
	}
}

func TestRevoke(t *testing.T) {
	registry, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := registry.Save(ctx, "hash-1", rahul, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := registry.Save(ctx, "hash-2", store.User{ID: "u1", Name: "System Admin", Role: store.RoleSuperAdmin}, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := registry.Revoke(ctx, "hash-1"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, err := registry.Lookup(ctx, "hash-1"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("revoked token still present: %v", err)
	}
	if data, err := registry.Lookup(ctx, "hash-2"); err != nil || data.UserID != "u1" {
		t.Fatalf("unrelated token affected: %+v, %v", data, err)
	}
	if err := registry.Revoke(ctx, "never-issued"); err != nil {
		t.Fatalf("Revoke of unknown token failed: %v", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	now := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	registry := NewMemoryStore(func() time.Time { return now })
	ctx := context.Background()

	if err := registry.Save(ctx, "hash", rahul, now.Add(time.Minute)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := registry.Lookup(ctx, "hash"); err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	now = now.Add(time.Minute)
	if _, err := registry.Lookup(ctx, "hash"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestMemoryStoreRevoke(t *testing.T) {
	registry := NewMemoryStore(nil)
	ctx := context.Background()
	if err := registry.Save(ctx, "hash", rahul, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := registry.Revoke(ctx, "hash"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, err := registry.Lookup(ctx, "hash"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected revoked, got %v", err)
	}
}
