package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sentinel-secure/awareness-platform/internal/annotation"
	"github.com/sentinel-secure/awareness-platform/internal/api"
	"github.com/sentinel-secure/awareness-platform/internal/assets"
	"github.com/sentinel-secure/awareness-platform/internal/config"
	"github.com/sentinel-secure/awareness-platform/internal/instrument"
	"github.com/sentinel-secure/awareness-platform/internal/pipeline"
	"github.com/sentinel-secure/awareness-platform/internal/pkg/ratelimit"
	"github.com/sentinel-secure/awareness-platform/internal/repository/postgres"
	"github.com/sentinel-secure/awareness-platform/internal/storage"
	"github.com/sentinel-secure/awareness-platform/internal/tracking"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to reach database: %v", err)
	}
	defer db.Close()

	contentRepo := postgres.NewContentRepo(db)
	trackingRepo := postgres.NewTrackingRepo(db)

	var store *storage.Store
	if cfg.Storage.S3Enabled && cfg.Storage.S3Bucket != "" {
		store, err = storage.NewWithS3(context.Background(), cfg.Storage.UploadRoot, cfg.Storage.S3Bucket, cfg.Storage.S3Region)
	} else {
		store, err = storage.NewLocal(cfg.Storage.UploadRoot)
	}
	if err != nil {
		log.Fatalf("Failed to initialize artifact storage: %v", err)
	}

	invoker, err := annotation.NewBedrockClient(context.Background(),
		cfg.Annotation.ModelID, cfg.Annotation.Region, cfg.Annotation.MaxTokens)
	if err != nil {
		log.Fatalf("Failed to initialize annotation client: %v", err)
	}

	// The annotation rate limiter is shared across instances through
	// Redis; without Redis each instance runs unthrottled.
	var limiter annotation.Waiter
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("Failed to reach Redis: %v", err)
		}
		limiter = ratelimit.NewLimiter(rdb, "annotation", cfg.Annotation.RequestsPerMin)
		log.Printf("Annotation rate limiter enabled: %d req/min via %s", cfg.Annotation.RequestsPerMin, cfg.Redis.Addr)
	} else {
		log.Println("Redis disabled; annotation requests are unthrottled")
	}

	orchestrator := annotation.NewOrchestrator(invoker, limiter,
		cfg.Annotation.ChunkBytes, cfg.Annotation.MaxDocumentBytes, cfg.Annotation.Workers)

	fetcher, err := assets.NewHTTPFetcher(cfg.Storage.UploadRoot, cfg.Assets.FetchTimeout(), cfg.Assets.FetchRetries)
	if err != nil {
		log.Fatalf("Failed to initialize asset fetcher: %v", err)
	}
	mirror := assets.NewMirror(fetcher, cfg.Assets.LegacyPrefix, cfg.Assets.TrustedOrigin, cfg.Assets.Workers)

	injector := instrument.NewInjector(cfg.Tracking.BaseURL)
	proc := pipeline.New(contentRepo, orchestrator, mirror, injector, store)
	tracker := tracking.NewService(trackingRepo)

	server := api.New(proc, contentRepo, trackingRepo, store, tracker, cfg.Debug)

	addr := fmt.Sprintf("%s:%d", host, port)
	go func() {
		log.Printf("Server listening on %s (model=%s)", addr, invoker.ModelID())
		if err := server.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
