// Package processing runs valuation retries on an in-process worker pool.
// It stands in for the Redis queue when the server runs self-contained.
package processing

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull is returned when the pool cannot accept more jobs.
var ErrQueueFull = errors.New("processing queue full")

// Valuer runs the valuation pass of one upload.
type Valuer interface {
	Revalue(ctx context.Context, uploadID string) error
}

// Job is one queued valuation.
type Job struct {
	UploadID string
	Attempt  int
}

// Processor consumes Jobs on a fixed number of goroutines. A failed job is
// retried with a growing delay up to MaxAttempts.
type Processor struct {
	queue       chan Job
	workers     int
	MaxAttempts int
	Backoff     time.Duration
	log         *zap.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	wg      sync.WaitGroup
}

// New builds a Processor with queue capacity tied to worker count.
func New(workers int, log *zap.Logger) *Processor {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{
		queue:       make(chan Job, workers*16),
		workers:     workers,
		MaxAttempts: 5,
		Backoff:     2 * time.Second,
		log:         log,
		pending:     make(map[string]struct{}),
	}
}

// Start launches worker goroutines that run until ctx is cancelled.
func (p *Processor) Start(ctx context.Context, valuer Valuer) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.worker(ctx, valuer)
		}()
	}
}

// Wait blocks until every worker has exited.
func (p *Processor) Wait() {
	p.wg.Wait()
}

// ScheduleValuation queues a valuation of uploadID. A job already pending
// for the upload counts as scheduled.
func (p *Processor) ScheduleValuation(_ context.Context, uploadID string) error {
	p.mu.Lock()
	if _, ok := p.pending[uploadID]; ok {
		p.mu.Unlock()
		return nil
	}
	p.pending[uploadID] = struct{}{}
	p.mu.Unlock()
	return p.submit(Job{UploadID: uploadID, Attempt: 1})
}

func (p *Processor) submit(job Job) error {
	select {
	case p.queue <- job:
		return nil
	default:
		p.done(job.UploadID)
		p.log.Warn("processor queue full, dropping valuation", zap.String("upload_id", job.UploadID))
		return ErrQueueFull
	}
}

func (p *Processor) done(uploadID string) {
	p.mu.Lock()
	delete(p.pending, uploadID)
	p.mu.Unlock()
}

func (p *Processor) worker(ctx context.Context, valuer Valuer) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.queue:
			p.process(ctx, valuer, job)
		}
	}
}

func (p *Processor) process(ctx context.Context, valuer Valuer, job Job) {
	log := p.log.With(zap.String("upload_id", job.UploadID), zap.Int("attempt", job.Attempt))
	err := valuer.Revalue(ctx, job.UploadID)
	if err == nil {
		p.done(job.UploadID)
		log.Info("upload valued")
		return
	}
	if job.Attempt >= p.MaxAttempts || ctx.Err() != nil {
		p.done(job.UploadID)
		log.Error("valuation abandoned", zap.Error(err))
		return
	}
	log.Warn("valuation failed, retrying", zap.Error(err))
	delay := p.Backoff * time.Duration(job.Attempt)
	next := Job{UploadID: job.UploadID, Attempt: job.Attempt + 1}
	time.AfterFunc(delay, func() {
		if ctx.Err() != nil {
			p.done(next.UploadID)
			return
		}
		_ = p.submit(next)
	})
}
