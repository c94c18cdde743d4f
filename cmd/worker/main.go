package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/csv-migrator/internal/app"
	"github.com/ignite/csv-migrator/internal/config"
	"github.com/ignite/csv-migrator/internal/jobs/postgres"
	"github.com/ignite/csv-migrator/internal/loader"
	"github.com/ignite/csv-migrator/internal/orchestrator"
	"github.com/ignite/csv-migrator/internal/pkg/distlock"
	"github.com/ignite/csv-migrator/internal/queue"
	"github.com/ignite/csv-migrator/internal/schema"
)

func main() {
	log.Println("Starting CSV migration worker...")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	controlDB, err := sql.Open("postgres", cfg.ControlDB.ConnectionString)
	if err != nil {
		log.Fatalf("connect control db: %v", err)
	}
	defer controlDB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := controlDB.PingContext(ctx); err != nil {
		cancel()
		log.Fatalf("ping control db: %v", err)
	}
	cancel()
	log.Println("Connected to control database")

	repo := postgres.New(controlDB)
	if err := repo.InitializeSchema(context.Background()); err != nil {
		log.Fatalf("initialize control schema: %v", err)
	}

	var redisClient *redis.Client
	if cfg.Queue.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		log.Println("Redis in-flight marker enabled")
	} else {
		log.Println("Redis not configured; running with single-process dedup only")
	}

	locks := distlock.NewFactory(redisClient, controlDB)
	schemaSvc := schema.New(func() int { return cfg.Schema.ConnectTimeoutSeconds })
	ld := loader.New(cfg.Loader.BatchSize, cfg.Loader.Timeout())
	orch := orchestrator.New(repo, schemaSvc, ld, locks, cfg.Queue.Workers)

	q := queue.New(orch, redisClient, queue.DefaultCapacity)
	if err := q.Start(); err != nil {
		log.Fatalf("start queue: %v", err)
	}

	application := app.New(repo, orch, q, schemaSvc)

	if cfg.RootFolder != "" {
		jobID, err := application.SubmitJob(context.Background(), cfg.RootFolder, cfg.DefaultConnection)
		if err != nil {
			log.Printf("submit startup job failed: %v", err)
		} else {
			log.Printf("submitted startup job %s for %s", jobID, cfg.RootFolder)
		}
	}

	log.Println("Worker running...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	q.Stop()
	log.Println("Worker stopped")
}
