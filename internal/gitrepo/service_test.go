package gitrepo

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"compliance/api/internal/store"
)

func TestLedgerLifecycle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ledger")
	ledger, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		t.Fatalf("repo not initialised: %v", err)
	}

	ctx := context.Background()
	data, err := ledger.Get(ctx, store.KeyUsers)
	if err != nil || data != nil {
		t.Fatalf("expected empty read before first commit, got %q, %v", data, err)
	}

	if err := ledger.PutAll(store.WithActor(ctx, "Anjali Nair"), map[string][]byte{
		store.KeyUsers:    []byte(`[{"id":"u1"}]`),
		store.KeyEvidence: []byte(`[]`),
	}); err != nil {
		t.Fatalf("PutAll() error = %v", err)
	}
	if err := ledger.PutAll(ctx, map[string][]byte{
		store.KeyUsers:    []byte(`[{"id":"u1"},{"id":"u2"}]`),
		store.KeyEvidence: []byte(`[]`),
	}); err != nil {
		t.Fatalf("PutAll() second error = %v", err)
	}

	got, err := ledger.Get(ctx, store.KeyUsers)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != `[{"id":"u1"},{"id":"u2"}]` {
		t.Fatalf("unexpected head snapshot %q", got)
	}

	users, err := ledger.History(store.KeyUsers, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 user revisions, got %d", len(users))
	}
	if users[1].Author != "Anjali Nair" {
		t.Fatalf("expected first commit attributed to actor, got %q", users[1].Author)
	}
	if users[0].Author != defaultAuthor {
		t.Fatalf("expected default author, got %q", users[0].Author)
	}
	if !strings.Contains(users[0].Message, store.KeyUsers) || strings.Contains(users[0].Message, store.KeyEvidence) {
		t.Fatalf("commit message should list only changed keys, got %q", users[0].Message)
	}

	evidence, err := ledger.History(store.KeyEvidence, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(evidence) != 1 {
		t.Fatalf("unchanged evidence must not be recommitted, got %d revisions", len(evidence))
	}

	old, err := ledger.At(users[1].Hash, store.KeyUsers)
	if err != nil {
		t.Fatalf("At() error = %v", err)
	}
	if string(old) != `[{"id":"u1"}]` {
		t.Fatalf("unexpected historical snapshot %q", old)
	}
}

func TestLedgerNoopSaveMakesNoCommit(t *testing.T) {
	ledger, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	ctx := context.Background()
	payload := map[string][]byte{store.KeyActivity: []byte(`[]`)}
	for i := 0; i < 3; i++ {
		if err := ledger.PutAll(ctx, payload); err != nil {
			t.Fatalf("PutAll() error = %v", err)
		}
	}
	history, err := ledger.History(store.KeyActivity, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected a single commit, got %d", len(history))
	}
}

func TestLedgerReopenBacksStore(t *testing.T) {
	dir := t.TempDir()
	ledger, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	ctx := context.Background()
	s := store.New(ledger, store.SeedUsers())
	if err := s.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := s.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	again := store.New(reopened, nil)
	if err := again.Load(ctx); err != nil {
		t.Fatalf("reload error = %v", err)
	}
	if got := len(again.Snapshot().Users); got != 5 {
		t.Fatalf("expected seeded users from ledger, got %d", got)
	}
}

func TestSanitizeEmail(t *testing.T) {
	if got := sanitizeEmail("Anjali Nair"); got != "Anjali.Nair" {
		t.Fatalf("sanitizeEmail = %q", got)
	}
	if got := sanitizeEmail("!!"); got != "user" {
		t.Fatalf("sanitizeEmail fallback = %q", got)
	}
}
