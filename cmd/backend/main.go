package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flashmvp/internal/config"
	"flashmvp/internal/models"
	"flashmvp/internal/queue"
	"flashmvp/internal/registry"
	"flashmvp/internal/registry/catalog"
	"flashmvp/internal/registry/core"
	"flashmvp/internal/storage"
	"flashmvp/internal/utils"
)

const serviceVersion = "2.4.0"

// featureCatalog lists the feature pages the shell renders. New
// features are added here and to the registry below.
var featureCatalog = []models.FeatureDescriptor{
	{Path: "ai-demo", Name: "AI Demo", Description: "Prompt any configured provider through the AI proxy.", IsFullPath: false},
	{Path: "usage-dashboard", Name: "Usage Dashboard", Description: "Spend and call volume from the usage ledger.", IsFullPath: false},
}

func main() {
	cfg, err := config.LoadBackend()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.NewLogger("backend")

	db, err := storage.NewDB(storage.DBConfig{
		DSN:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if err := db.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	// Usage writes from the AI proxy go through the queue worker so a
	// slow ledger never stalls a model response.
	qcfg := queue.DefaultConfig("usage")
	qcfg.UseRedis = cfg.UsageQueue.UseRedis
	qcfg.RedisAddr = cfg.UsageQueue.RedisAddr
	qcfg.RedisPassword = cfg.UsageQueue.RedisPassword
	qcfg.RedisDB = cfg.UsageQueue.RedisDB
	qcfg.BatchSize = cfg.UsageQueue.BatchSize
	qcfg.BatchTimeout = cfg.UsageQueue.BatchTimeout
	qcfg.MaxRetries = cfg.UsageQueue.MaxRetries
	qcfg.RetryBackoff = cfg.UsageQueue.RetryBackoff

	var usageQueue queue.Queue
	var usageDLQ queue.DeadLetterQueue
	if qcfg.UseRedis {
		usageQueue, err = queue.NewRedisQueue(qcfg)
		if err != nil {
			log.Fatalf("Failed to create usage queue: %v", err)
		}
		usageDLQ, err = queue.NewRedisDeadLetterQueue(qcfg)
		if err != nil {
			log.Fatalf("Failed to create usage DLQ: %v", err)
		}
	} else {
		usageQueue = queue.NewMemoryQueue(qcfg)
		usageDLQ = queue.NewMemoryDeadLetterQueue()
	}

	usageWorker := storage.NewUsageQueueWorker(usageQueue, usageDLQ, db, qcfg)
	usageWorker.Start(context.Background())

	reg, err := registry.New([]registry.Feature{
		core.New(core.Options{
			Usage:   usageWorker,
			Logger:  utils.NewLogger("core"),
			Version: serviceVersion,
		}),
		catalog.New(featureCatalog),
	}, logger)
	if err != nil {
		log.Fatalf("Failed to build feature registry: %v", err)
	}

	addr := ":" + cfg.HTTPPort
	server := &http.Server{
		Addr:         addr,
		Handler:      reg.Handler(cfg.AllowedOrigins),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("flashmvp backend listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Drain queued usage records before closing the database.
	if err := usageWorker.Stop(); err != nil {
		log.Printf("Usage worker stop failed: %v", err)
	}
	if err := db.Close(); err != nil {
		log.Printf("Database close failed: %v", err)
	}

	log.Println("Server exited")
}
