package vine

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/VineLedger/internal/ingest"
	"github.com/dharsanguruparan/VineLedger/internal/model"
	"github.com/dharsanguruparan/VineLedger/internal/valuation"
)

// IngestResult describes a stored upload.
type IngestResult struct {
	UploadID    string `json:"uploadId"`
	OrdersCount int    `json:"ordersCount"`
	// Skipped rows lacked an ASIN or order number. It is logged, not shown
	// to the uploader.
	Skipped int `json:"-"`
	// ValuationComplete is false when some computed values could not be
	// written; a retry has been scheduled in that case.
	ValuationComplete bool   `json:"valuationComplete"`
	ValuationError    string `json:"valuationError,omitempty"`
}

// Ingest parses a spreadsheet, stores it as a new upload of account and
// values its orders under the account's current tier.
//
// Input problems (unreadable file, no data rows) return an error wrapping
// ingest.ErrUnreadable or ingest.ErrNoData and persist nothing. A valuation
// failure after the orders are stored is not an error: the result reports it
// and the upload is left for the retry job.
func (s *Service) Ingest(ctx context.Context, account model.Account, filename string, data []byte) (*IngestResult, error) {
	batch, err := ingest.Parse(data, filename)
	if err != nil {
		return nil, err
	}
	now := s.now()
	upload := &model.Upload{
		ID:              uuid.NewString(),
		AccountID:       account.ID,
		Filename:        filename,
		Tier:            string(valuation.ParseTier(account.Tier)),
		ValuationStatus: model.ValuationPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for i := range batch.Orders {
		batch.Orders[i].ID = uuid.NewString()
		batch.Orders[i].UploadID = upload.ID
		batch.Orders[i].CreatedAt = now
	}
	log := s.log.With(zap.String("upload_id", upload.ID), zap.String("account_id", account.ID))

	if s.archive != nil {
		key := fmt.Sprintf("uploads/%s/%s/%s", account.ID, upload.ID, filepath.Base(filename))
		if err := s.archive.PutSource(ctx, key, data, contentType(filename)); err != nil {
			log.Warn("archive original failed", zap.Error(err))
		} else {
			upload.SourceKey = key
		}
	}
	if err := s.store.CreateBatch(ctx, upload, batch.Products, batch.Orders); err != nil {
		if upload.SourceKey != "" {
			if rmErr := s.archive.RemoveSource(ctx, upload.SourceKey); rmErr != nil {
				log.Warn("remove archived original failed", zap.Error(rmErr))
			}
		}
		return nil, fmt.Errorf("store upload: %w", err)
	}
	log.Info("upload stored",
		zap.String("layout", batch.Layout.String()),
		zap.Int("orders", len(batch.Orders)),
		zap.Int("skipped", batch.Skipped),
		zap.Int("products", len(batch.Products)))

	result := &IngestResult{
		UploadID:    upload.ID,
		OrdersCount: len(batch.Orders),
		Skipped:     batch.Skipped,
	}
	if err := s.valuate(ctx, upload); err != nil {
		result.ValuationError = err.Error()
		s.retryLater(ctx, upload.ID)
		return result, nil
	}
	result.ValuationComplete = true
	return result, nil
}

// Revalue runs the valuation pass of an upload using the tier captured when
// it was ingested. It is idempotent and is what the retry job calls.
func (s *Service) Revalue(ctx context.Context, uploadID string) error {
	upload, err := s.store.GetUpload(ctx, uploadID)
	if err != nil {
		return fmt.Errorf("load upload %s: %w", uploadID, err)
	}
	return s.valuate(ctx, upload)
}

// RequestRevalue queues a valuation pass for an upload of accountID, or runs
// it inline when no scheduler is configured.
func (s *Service) RequestRevalue(ctx context.Context, accountID, uploadID string) error {
	upload, err := s.ownedUpload(ctx, accountID, uploadID)
	if err != nil {
		return err
	}
	if s.scheduler == nil {
		return s.valuate(ctx, upload)
	}
	if err := s.scheduler.ScheduleValuation(ctx, upload.ID); err != nil {
		return fmt.Errorf("schedule valuation: %w", err)
	}
	return nil
}

// SweepStale re-queues uploads whose valuation has been pending or failed
// for longer than age. It returns the number of uploads queued.
func (s *Service) SweepStale(ctx context.Context, age time.Duration, limit int) (int, error) {
	if s.scheduler == nil {
		return 0, nil
	}
	uploads, err := s.store.StaleValuations(ctx, s.now().Add(-age), limit)
	if err != nil {
		return 0, fmt.Errorf("list stale valuations: %w", err)
	}
	queued := 0
	for _, u := range uploads {
		if err := s.scheduler.ScheduleValuation(ctx, u.ID); err != nil {
			s.log.Warn("requeue valuation failed", zap.String("upload_id", u.ID), zap.Error(err))
			continue
		}
		queued++
	}
	return queued, nil
}

func (s *Service) valuate(ctx context.Context, upload *model.Upload) error {
	_, err := s.engine.Apply(ctx, upload.ID, valuation.ParseTier(upload.Tier))
	if err != nil {
		// The status write uses a fresh context so an interrupted request
		// still leaves the upload marked for the sweeper.
		if serr := s.store.SetValuationStatus(context.WithoutCancel(ctx), upload.ID, model.ValuationFailed, err.Error()); serr != nil {
			s.log.Error("record valuation failure", zap.String("upload_id", upload.ID), zap.Error(serr))
		}
		return err
	}
	if err := s.store.SetValuationStatus(ctx, upload.ID, model.ValuationComplete, ""); err != nil {
		return fmt.Errorf("mark upload valued: %w", err)
	}
	return nil
}

func (s *Service) retryLater(ctx context.Context, uploadID string) {
	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.ScheduleValuation(context.WithoutCancel(ctx), uploadID); err != nil {
		s.log.Error("schedule valuation retry", zap.String("upload_id", uploadID), zap.Error(err))
	}
}

func contentType(filename string) string {
	if t := mime.TypeByExtension(filepath.Ext(filename)); t != "" {
		return t
	}
	return "application/octet-stream"
}
