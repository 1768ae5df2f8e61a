// Command server runs VineLedger self-contained: orders live in memory and
// valuation retries run on an in-process pool. Data is lost on exit.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/VineLedger/internal/api"
	"github.com/dharsanguruparan/VineLedger/internal/config"
	"github.com/dharsanguruparan/VineLedger/internal/logging"
	"github.com/dharsanguruparan/VineLedger/internal/processing"
	"github.com/dharsanguruparan/VineLedger/internal/signing"
	"github.com/dharsanguruparan/VineLedger/internal/storage"
	"github.com/dharsanguruparan/VineLedger/internal/vine"
	"github.com/dharsanguruparan/VineLedger/internal/worker"
)

func main() {
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := processing.New(cfg.WorkerConcurrency, log.Named("processing"))
	svc := vine.New(storage.NewMemoryStore(), vine.Options{
		Scheduler:            pool,
		ValuationConcurrency: cfg.ValuationConcurrency,
		Logger:               log.Named("vine"),
	})
	pool.Start(ctx, svc)

	sweeper, err := worker.StartSweeper(svc, worker.SweepConfig{
		Schedule: cfg.SweepSchedule,
		Age:      cfg.SweepAge,
		Batch:    cfg.SweepBatch,
	}, log.Named("sweeper"))
	if err != nil {
		log.Fatal("start sweeper", zap.Error(err))
	}
	defer sweeper.Stop()

	srv := api.New(cfg, svc, signing.NewSigner(cfg.SigningSecret), log.Named("api"))
	if err := srv.Run(ctx); err != nil {
		log.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
	pool.Wait()
}
