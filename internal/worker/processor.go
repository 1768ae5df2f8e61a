package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/VineLedger/internal/model"
	"github.com/dharsanguruparan/VineLedger/internal/queue"
)

// Valuer runs the valuation pass of one upload.
type Valuer interface {
	Revalue(ctx context.Context, uploadID string) error
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	valuer Valuer
	log    *zap.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(valuer Valuer, log *zap.Logger) *Processor {
	return &Processor{valuer: valuer, log: log}
}

// Handler registers the valuation job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ValuateUploadTask, p.handleValuate)
	return mux
}

func (p *Processor) handleValuate(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.DecodeValuate(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	log := p.log.With(zap.String("upload_id", payload.UploadID))
	if err := p.valuer.Revalue(ctx, payload.UploadID); err != nil {
		// A deleted upload has nothing left to value.
		if errors.Is(err, model.ErrNotFound) {
			log.Info("upload gone, dropping valuation job")
			return nil
		}
		log.Warn("valuation job failed", zap.Error(err))
		return err
	}
	log.Info("upload valued")
	return nil
}
