package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/VineLedger/internal/api"
	"github.com/dharsanguruparan/VineLedger/internal/config"
	"github.com/dharsanguruparan/VineLedger/internal/database"
	"github.com/dharsanguruparan/VineLedger/internal/logging"
	"github.com/dharsanguruparan/VineLedger/internal/queue"
	"github.com/dharsanguruparan/VineLedger/internal/repository"
	"github.com/dharsanguruparan/VineLedger/internal/s3storage"
	"github.com/dharsanguruparan/VineLedger/internal/signing"
	"github.com/dharsanguruparan/VineLedger/internal/vine"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	pool, err := database.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		log.Fatal("connect database", zap.Error(err))
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		log.Fatal("ensure schema", zap.Error(err))
	}

	archive, err := s3storage.New(cfg)
	if err != nil {
		log.Fatal("init storage", zap.Error(err))
	}
	if err := archive.EnsureBucket(ctx); err != nil {
		log.Fatal("ensure bucket", zap.Error(err))
	}

	redis := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	client := asynq.NewClient(redis)
	defer client.Close()
	inspector := asynq.NewInspector(redis)
	defer inspector.Close()

	svc := vine.New(repository.NewOrderRepository(pool), vine.Options{
		Scheduler:            queue.NewClient(client, inspector),
		Archive:              archive,
		ValuationConcurrency: cfg.ValuationConcurrency,
		Logger:               log.Named("vine"),
	})
	srv := api.New(cfg, svc, signing.NewSigner(cfg.SigningSecret), log.Named("api"))
	if err := srv.Run(ctx); err != nil {
		log.Error("api stopped", zap.Error(err))
		os.Exit(1)
	}
}
