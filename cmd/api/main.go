package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"compliance/api/internal/admin"
	"compliance/api/internal/app"
	"compliance/api/internal/attachment"
	"compliance/api/internal/config"
	"compliance/api/internal/email"
	"compliance/api/internal/export"
	"compliance/api/internal/metrics"
	"compliance/api/internal/search"
	"compliance/api/internal/session"
	"compliance/api/internal/visibility"
	"compliance/api/internal/workflow"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	st, backend, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatalf("snapshot store failed: %v", err)
	}
	defer backend.Close()
	log.Printf("Using %s snapshot backend", cfg.SnapshotBackend)

	catalog, err := app.Catalog(cfg)
	if err != nil {
		log.Fatalf("checklist catalog failed: %v", err)
	}
	resolver := visibility.NewResolver(visibility.ParseScope(cfg.ReviewScope))
	m := metrics.New()

	var storage attachment.Storage
	if strings.TrimSpace(cfg.ObjectStoreEndpoint) != "" {
		objectStore, err := attachment.NewObjectStore(ctx, attachment.ObjectStoreConfig{
			Endpoint:  cfg.ObjectStoreEndpoint,
			AccessKey: cfg.ObjectStoreAccessKey,
			SecretKey: cfg.ObjectStoreSecretKey,
			Bucket:    cfg.ObjectStoreBucket,
			UseSSL:    cfg.ObjectStoreUseSSL,
		})
		if err != nil {
			log.Fatalf("object storage failed: %v", err)
		}
		storage = objectStore
	} else {
		local, err := attachment.NewLocalStorage(filepath.Join(cfg.DataDir, "attachments"))
		if err != nil {
			log.Fatalf("attachment dir failed: %v", err)
		}
		storage = local
	}

	engine := workflow.New(st, catalog, resolver, workflow.Options{
		Delay:           time.Sleep,
		EvidenceLatency: cfg.EvidenceLatency,
		ReportLatency:   cfg.ReportLatency,
		Observer:        m,
		Attachments:     attachment.NewService(storage),
	})

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewScan(st, catalog), resolver, catalog)

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !mailer.IsConfigured() {
		log.Printf("SMTP not configured; DMAX reminders are logged only")
	}

	checks := map[string]func(context.Context) error{"snapshots": backend.Ping}
	var tokens session.Registry
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for session token storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		tokens = redisStore
		checks["sessions"] = redisStore.Ping
	} else {
		log.Printf("Using in-memory session token storage")
		tokens = session.NewMemoryStore(nil)
	}

	service := app.New(cfg, app.Components{
		Store:  st,
		Engine: engine,
		Session: session.NewController(st, session.Options{
			WelcomeDelay: cfg.WelcomeDelay,
			Observer:     m,
		}),
		Tokens:    tokens,
		Directory: admin.New(st, admin.Options{Mailer: mailer, Observer: m}),
		Search:    searchService,
		Export:    export.NewService(st, catalog, export.Options{}),
		Metrics:   m,
		Checks:    checks,
	})
	service.Reindex()

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Compliance portal API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
