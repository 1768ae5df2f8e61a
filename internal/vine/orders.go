package vine

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/VineLedger/internal/cancellation"
	"github.com/dharsanguruparan/VineLedger/internal/export"
	"github.com/dharsanguruparan/VineLedger/internal/model"
)

// Pagination describes the window returned by OrdersPage.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Page is one window of an upload's orders.
type Page struct {
	Upload     model.Upload      `json:"upload"`
	Orders     []model.OrderView `json:"orders"`
	Pagination Pagination        `json:"pagination"`
}

// Upload returns one upload of accountID.
func (s *Service) Upload(ctx context.Context, accountID, uploadID string) (*model.Upload, error) {
	return s.ownedUpload(ctx, accountID, uploadID)
}

// ListUploads returns the uploads of accountID, newest first.
func (s *Service) ListUploads(ctx context.Context, accountID string) ([]model.UploadSummary, error) {
	uploads, err := s.store.ListUploads(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	return uploads, nil
}

// DeleteUpload removes an upload of accountID with all its orders.
func (s *Service) DeleteUpload(ctx context.Context, accountID, uploadID string) error {
	upload, err := s.ownedUpload(ctx, accountID, uploadID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteUpload(ctx, upload.ID); err != nil {
		return fmt.Errorf("delete upload: %w", err)
	}
	if upload.SourceKey != "" && s.archive != nil {
		if err := s.archive.RemoveSource(ctx, upload.SourceKey); err != nil {
			s.log.Warn("remove archived original failed", zap.String("upload_id", upload.ID), zap.Error(err))
		}
	}
	return nil
}

// SourceURL returns a short-lived link to the original spreadsheet.
func (s *Service) SourceURL(ctx context.Context, accountID, uploadID string, ttl time.Duration) (string, error) {
	upload, err := s.ownedUpload(ctx, accountID, uploadID)
	if err != nil {
		return "", err
	}
	if upload.SourceKey == "" || s.archive == nil {
		return "", ErrNoSource
	}
	return s.archive.PresignSource(ctx, upload.SourceKey, ttl)
}

// SourceFile returns an upload and its archived original spreadsheet. It is
// not scoped to an account and serves operator tooling.
func (s *Service) SourceFile(ctx context.Context, uploadID string) (*model.Upload, []byte, error) {
	upload, err := s.store.GetUpload(ctx, uploadID)
	if err != nil {
		return nil, nil, err
	}
	if upload.SourceKey == "" || s.archive == nil {
		return upload, nil, ErrNoSource
	}
	data, err := s.archive.GetSource(ctx, upload.SourceKey)
	if err != nil {
		return upload, nil, fmt.Errorf("fetch original: %w", err)
	}
	return upload, data, nil
}

// OrdersPage returns one sorted page of an upload's orders. Cancellation is
// resolved with a single lookup over the page's order numbers.
func (s *Service) OrdersPage(ctx context.Context, accountID, uploadID string, q model.PageQuery) (*Page, error) {
	upload, err := s.ownedUpload(ctx, accountID, uploadID)
	if err != nil {
		return nil, err
	}
	q = q.Normalize()
	views, total, err := s.store.PageOrders(ctx, upload.ID, q)
	if err != nil {
		return nil, fmt.Errorf("page orders: %w", err)
	}
	if err := s.flagCancelled(ctx, upload.ID, views); err != nil {
		return nil, err
	}
	if views == nil {
		views = []model.OrderView{}
	}
	return &Page{
		Upload: *upload,
		Orders: views,
		Pagination: Pagination{
			Page:       q.Page,
			Limit:      q.Limit,
			Total:      total,
			TotalPages: q.TotalPages(total),
		},
	}, nil
}

// GetOrder returns one order of accountID with its cancellation flag.
func (s *Service) GetOrder(ctx context.Context, accountID, orderID string) (*model.OrderView, error) {
	view, err := s.store.GetOrder(ctx, accountID, orderID)
	if err != nil {
		return nil, err
	}
	cancelled, err := s.store.HasCancellation(ctx, view.UploadID, view.OrderNumber)
	if err != nil {
		return nil, fmt.Errorf("lookup cancellation: %w", err)
	}
	view.Cancelled = cancelled
	return view, nil
}

// UpdateOrderAnnotation replaces the user notes and user value of an order.
// A nil notes or invalid userValue clears the field.
func (s *Service) UpdateOrderAnnotation(ctx context.Context, accountID, orderID string, notes *string, userValue decimal.NullDecimal) (*model.OrderView, error) {
	if _, err := s.store.GetOrder(ctx, accountID, orderID); err != nil {
		return nil, err
	}
	if err := s.store.UpdateAnnotation(ctx, orderID, notes, userValue); err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	return s.GetOrder(ctx, accountID, orderID)
}

// CSVExport is a ready-to-write export of one upload.
type CSVExport struct {
	Filename string
	Orders   []model.OrderView
}

// Write renders the export to w.
func (e *CSVExport) Write(w io.Writer) error {
	return export.WriteCSV(w, e.Orders)
}

// ExportCSV loads every order of the upload for export.
func (s *Service) ExportCSV(ctx context.Context, accountID, uploadID string) (*CSVExport, error) {
	upload, err := s.ownedUpload(ctx, accountID, uploadID)
	if err != nil {
		return nil, err
	}
	views, err := s.allOrders(ctx, upload.ID)
	if err != nil {
		return nil, err
	}
	return &CSVExport{
		Filename: export.Filename(upload.Filename, s.now()),
		Orders:   views,
	}, nil
}

func (s *Service) allOrders(ctx context.Context, uploadID string) ([]model.OrderView, error) {
	views, err := s.store.ExportOrders(ctx, uploadID)
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}
	if err := s.flagCancelled(ctx, uploadID, views); err != nil {
		return nil, err
	}
	return views, nil
}

func (s *Service) flagCancelled(ctx context.Context, uploadID string, views []model.OrderView) error {
	if len(views) == 0 {
		return nil
	}
	cancelled, err := s.store.CancelledOrderNumbers(ctx, uploadID, cancellation.OrderNumbers(views))
	if err != nil {
		return fmt.Errorf("lookup cancellations: %w", err)
	}
	cancellation.Flag(views, cancelled)
	return nil
}
