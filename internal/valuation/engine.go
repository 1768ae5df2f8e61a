package valuation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dharsanguruparan/VineLedger/internal/model"
)

const defaultConcurrency = 8

// Store is the persistence the engine needs.
type Store interface {
	ListUploadOrders(ctx context.Context, uploadID string) ([]model.Order, error)
	SetComputedValue(ctx context.Context, orderID string, value decimal.Decimal) error
}

// Error reports the orders whose computed value could not be written.
type Error struct {
	UploadID string
	Total    int
	// Failed maps order id to the write error.
	Failed map[string]error
}

func (e *Error) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) > 5 {
		ids = append(ids[:5], "...")
	}
	return fmt.Sprintf("valuation of upload %s failed for %d of %d orders (%s)",
		e.UploadID, len(e.Failed), e.Total, strings.Join(ids, ", "))
}

// Engine writes computed values for every order of an upload.
type Engine struct {
	store       Store
	concurrency int
	log         *zap.Logger
}

// NewEngine builds an Engine that runs at most concurrency updates at once.
func NewEngine(store Store, concurrency int, log *zap.Logger) *Engine {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: store, concurrency: concurrency, log: log}
}

// Apply values every order of the upload under tier and returns how many
// rows were written. Running it again is safe: rows that already hold the
// right value are left alone. A partial failure returns *Error after every
// update has finished.
func (e *Engine) Apply(ctx context.Context, uploadID string, tier Tier) (int, error) {
	orders, err := e.store.ListUploadOrders(ctx, uploadID)
	if err != nil {
		return 0, fmt.Errorf("list orders: %w", err)
	}
	var (
		mu      sync.Mutex
		failed  = make(map[string]error)
		written int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, o := range orders {
		o := o
		value := Compute(o.EstimatedValue, tier)
		if o.ComputedValue.Valid && o.ComputedValue.Decimal.Equal(value) {
			continue
		}
		g.Go(func() error {
			// Failures are collected rather than returned so one bad row does
			// not cancel the updates still in flight.
			err := e.store.SetComputedValue(gctx, o.ID, value)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[o.ID] = err
				return nil
			}
			written++
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return written, fmt.Errorf("valuation interrupted: %w", err)
	}
	if len(failed) > 0 {
		e.log.Warn("valuation incomplete",
			zap.String("upload_id", uploadID),
			zap.Int("failed", len(failed)),
			zap.Int("orders", len(orders)))
		return written, &Error{UploadID: uploadID, Total: len(orders), Failed: failed}
	}
	e.log.Debug("valuation applied",
		zap.String("upload_id", uploadID),
		zap.String("tier", string(tier)),
		zap.Int("written", written))
	return written, nil
}
