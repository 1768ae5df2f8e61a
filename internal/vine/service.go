// Package vine is the ingestion and valuation core. It turns uploaded
// spreadsheets into persisted, valued orders and serves them back with the
// derived cancellation flag.
package vine

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/VineLedger/internal/model"
	"github.com/dharsanguruparan/VineLedger/internal/valuation"
)

var (
	// ErrNotFound covers missing resources and resources of other accounts.
	ErrNotFound = model.ErrNotFound
	// ErrNoSource means the upload has no archived original file.
	ErrNoSource = errors.New("original file not archived")
)

// Store is the persistence used by Service.
type Store interface {
	valuation.Store

	// CreateBatch writes the upload, upserts the products and inserts the
	// orders as one unit. Product names are only ever overwritten with
	// non-empty values.
	CreateBatch(ctx context.Context, upload *model.Upload, products []model.Product, orders []model.Order) error
	GetUpload(ctx context.Context, uploadID string) (*model.Upload, error)
	ListUploads(ctx context.Context, accountID string) ([]model.UploadSummary, error)
	// DeleteUpload removes the upload and its orders.
	DeleteUpload(ctx context.Context, uploadID string) error
	SetValuationStatus(ctx context.Context, uploadID string, status model.ValuationStatus, message string) error
	// StaleValuations lists uploads not fully valued and untouched since before.
	StaleValuations(ctx context.Context, before time.Time, limit int) ([]model.Upload, error)

	PageOrders(ctx context.Context, uploadID string, q model.PageQuery) ([]model.OrderView, int, error)
	// ExportOrders returns every order of the upload, newest order date first.
	ExportOrders(ctx context.Context, uploadID string) ([]model.OrderView, error)
	// GetOrder returns the order if it belongs to an upload of accountID.
	GetOrder(ctx context.Context, accountID, orderID string) (*model.OrderView, error)
	UpdateAnnotation(ctx context.Context, orderID string, notes *string, userValue decimal.NullDecimal) error
	CancelledOrderNumbers(ctx context.Context, uploadID string, orderNumbers []string) (map[string]struct{}, error)
	HasCancellation(ctx context.Context, uploadID, orderNumber string) (bool, error)
}

// Scheduler queues a valuation pass for an upload outside the request.
type Scheduler interface {
	ScheduleValuation(ctx context.Context, uploadID string) error
}

// Archive keeps the original spreadsheet of each upload.
type Archive interface {
	PutSource(ctx context.Context, key string, data []byte, contentType string) error
	GetSource(ctx context.Context, key string) ([]byte, error)
	RemoveSource(ctx context.Context, key string) error
	PresignSource(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Options configures optional collaborators of Service.
type Options struct {
	Scheduler            Scheduler
	Archive              Archive
	ValuationConcurrency int
	Logger               *zap.Logger
}

// Service implements the upload, browse, annotate and export operations.
type Service struct {
	store     Store
	engine    *valuation.Engine
	scheduler Scheduler
	archive   Archive
	log       *zap.Logger
	now       func() time.Time
}

// New builds a Service on store.
func New(store Store, opts Options) *Service {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:     store,
		engine:    valuation.NewEngine(store, opts.ValuationConcurrency, log.Named("valuation")),
		scheduler: opts.Scheduler,
		archive:   opts.Archive,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ownedUpload loads an upload and hides it from other accounts.
func (s *Service) ownedUpload(ctx context.Context, accountID, uploadID string) (*model.Upload, error) {
	u, err := s.store.GetUpload(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if u.AccountID != accountID {
		return nil, ErrNotFound
	}
	return u, nil
}
