package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/VineLedger/internal/config"
	"github.com/dharsanguruparan/VineLedger/internal/database"
	"github.com/dharsanguruparan/VineLedger/internal/logging"
	"github.com/dharsanguruparan/VineLedger/internal/queue"
	"github.com/dharsanguruparan/VineLedger/internal/repository"
	"github.com/dharsanguruparan/VineLedger/internal/vine"
	"github.com/dharsanguruparan/VineLedger/internal/worker"
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
		ValuationConcurrency: cfg.ValuationConcurrency,
		Logger:               log.Named("vine"),
	})

	sweeper, err := worker.StartSweeper(svc, worker.SweepConfig{
		Schedule: cfg.SweepSchedule,
		Age:      cfg.SweepAge,
		Batch:    cfg.SweepBatch,
	}, log.Named("sweeper"))
	if err != nil {
		log.Fatal("start sweeper", zap.Error(err))
	}
	defer sweeper.Stop()

	server := asynq.NewServer(redis, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Logger:      log.Named("asynq").Sugar(),
	})
	processor := worker.NewProcessor(svc, log.Named("worker"))

	if err := server.Start(processor.Handler()); err != nil {
		log.Error("start worker", zap.Error(err))
		os.Exit(1)
	}
	<-ctx.Done()
	server.Shutdown()
}
