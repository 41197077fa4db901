package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	"github.com/havenline/call-qa/internal/api"
	"github.com/havenline/call-qa/internal/config"
	"github.com/havenline/call-qa/internal/ingest"
	"github.com/havenline/call-qa/internal/jobs"
	"github.com/havenline/call-qa/internal/orchestrator"
	"github.com/havenline/call-qa/internal/pkg/logger"
	"github.com/havenline/call-qa/internal/rubric"
	"github.com/havenline/call-qa/internal/scoring"
	"github.com/havenline/call-qa/internal/store"
	"github.com/havenline/call-qa/internal/transcribe"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
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
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logger.DEBUG)
	}

	host := cfg.Server.GetHost()
	if err := checkPortAvailable(host, cfg.Server.Port); err != nil {
		log.Fatalf("Pre-flight check failed: %v", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.AWS.Region),
	)
	if err != nil {
		log.Fatalf("Failed to load AWS config: %v", err)
	}
	s3Client := s3.NewFromConfig(awsCfg)
	dynamoClient := dynamodb.NewFromConfig(awsCfg)
	bedrockClient := bedrockruntime.NewFromConfig(awsCfg)

	// Job registry: shared via Redis when configured, in-memory otherwise.
	var registry jobs.Registry
	if cfg.Jobs.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Jobs.RedisAddr,
			Password: cfg.Jobs.RedisPassword,
			DB:       cfg.Jobs.RedisDB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis at %s: %v", cfg.Jobs.RedisAddr, err)
		}
		registry = jobs.NewRedisRegistry(rdb, cfg.Jobs.TTL())
		logger.Info("job registry backed by redis", "addr", cfg.Jobs.RedisAddr)
	} else {
		registry = jobs.NewMemoryRegistry()
		logger.Info("job registry is in-memory; statuses are lost on restart")
	}
	hub := jobs.NewHub()

	r := rubric.Default()
	if cfg.Scoring.RubricPath != "" {
		r, err = rubric.Load(cfg.Scoring.RubricPath)
		if err != nil {
			log.Fatalf("Failed to load rubric from %s: %v", cfg.Scoring.RubricPath, err)
		}
	}
	if err := r.Validate(); err != nil {
		log.Fatalf("Invalid rubric: %v", err)
	}

	transcriber := transcribe.NewClient(cfg.Transcribe)
	invoker := scoring.NewBedrockInvoker(bedrockClient, cfg.Scoring.MaxTokens, cfg.Scoring.Temperature)
	scorer := scoring.NewStage(invoker, cfg.Scoring.ModelIDs, r)

	artifacts := store.NewArtifactStore(s3Client, cfg.Artifacts.Bucket)
	profiles := store.NewDynamoProfileStore(dynamoClient, cfg.Counselors.ProfileTable, cfg.Counselors.DefaultPrograms)
	records := store.NewDynamoRecordStore(dynamoClient, cfg.Counselors.EvaluationTable)

	orch := orchestrator.New(registry, hub, transcriber, scorer, r, artifacts, profiles, records)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Ingest.Enabled {
		watcher := ingest.NewWatcher(s3Client, orch, cfg.Ingest)
		go watcher.Run(ctx)
		logger.Info("ingestion watcher started",
			"bucket", cfg.Ingest.Bucket, "prefix", cfg.Ingest.Prefix)
	} else {
		logger.Info("ingestion watcher disabled")
	}

	handlers := api.NewHandlers(registry, artifacts, profiles, records)
	server := api.NewServer(handlers, cfg.Server.AllowedOrigins)

	addr := fmt.Sprintf("%s:%d", host, cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", addr)
		errCh <- server.ListenAndServe(addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("Server error: %v", err)
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err.Error())
	}
}
