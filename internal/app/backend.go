package app

import (
	"context"
	"fmt"
	"log"
	"os"

	"compliance/api/internal/config"
	"compliance/api/internal/gitrepo"
	"compliance/api/internal/store"
)

// Backend is the opened snapshot persistence plus what the readiness probe
// and shutdown need from it.
type Backend struct {
	Snapshots store.Snapshots
	// Ledger is set only for the git backend.
	Ledger *gitrepo.Ledger
	Ping   func(context.Context) error
	Close  func()
}

// OpenBackend opens the snapshot backend named by cfg.SnapshotBackend.
func OpenBackend(ctx context.Context, cfg config.Config) (*Backend, error) {
	noop := func() {}
	alwaysOK := func(context.Context) error { return nil }

	switch cfg.SnapshotBackend {
	case "memory":
		log.Printf("Using in-memory snapshots; nothing survives a restart")
		return &Backend{Snapshots: store.NewMemorySnapshots(), Ping: alwaysOK, Close: noop}, nil

	case "redis":
		snapshots, err := store.NewRedisSnapshots(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return &Backend{Snapshots: snapshots, Ping: snapshots.Ping, Close: func() { _ = snapshots.Close() }}, nil

	case "postgres":
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrations failed: %w", err)
		}
		return &Backend{Snapshots: store.NewPostgresSnapshots(db), Ping: db.PingContext, Close: func() { _ = db.Close() }}, nil

	case "git":
		if err := os.MkdirAll(cfg.LedgerRepoDir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
		ledger, err := gitrepo.Open(cfg.LedgerRepoDir)
		if err != nil {
			return nil, err
		}
		return &Backend{Snapshots: ledger, Ledger: ledger, Ping: alwaysOK, Close: noop}, nil

	case "", "file":
		snapshots, err := store.NewFileSnapshots(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		return &Backend{Snapshots: snapshots, Ping: alwaysOK, Close: noop}, nil

	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", cfg.SnapshotBackend)
	}
}

// OpenStore opens the backend and loads the four collections from it.
func OpenStore(ctx context.Context, cfg config.Config) (*store.Store, *Backend, error) {
	backend, err := OpenBackend(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	var seed []store.User
	if cfg.SeedUsers {
		seed = store.SeedUsers()
	}
	st := store.New(backend.Snapshots, seed)
	if err := st.Load(ctx); err != nil {
		backend.Close()
		return nil, nil, err
	}
	return st, backend, nil
}

// Catalog is the checklist catalog from cfg.ChecklistFile, or the built-in one.
func Catalog(cfg config.Config) (store.Catalog, error) {
	if cfg.ChecklistFile == "" {
		return store.DefaultCatalog(), nil
	}
	return store.LoadCatalog(cfg.ChecklistFile)
}
