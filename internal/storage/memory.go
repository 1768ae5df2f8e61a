// Package storage contains the in-memory persistence layer used by the
// self-contained server and by tests.
package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dharsanguruparan/VineLedger/internal/cancellation"
	"github.com/dharsanguruparan/VineLedger/internal/model"
)

// ErrNotFound is returned for unknown uploads and orders.
var ErrNotFound = model.ErrNotFound

// MemoryStore keeps uploads, orders and products in maps guarded by an
// RWMutex. Returned records are copies.
type MemoryStore struct {
	mu       sync.RWMutex
	uploads  map[string]*model.Upload
	orders   map[string]*model.Order
	byUpload map[string][]string
	products map[string]*model.Product
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		uploads:  make(map[string]*model.Upload),
		orders:   make(map[string]*model.Order),
		byUpload: make(map[string][]string),
		products: make(map[string]*model.Product),
	}
}

// CreateBatch stores the upload, upserts products and inserts the orders
// under one write lock.
func (m *MemoryStore) CreateBatch(_ context.Context, upload *model.Upload, products []model.Product, orders []model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	u := *upload
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = u.CreatedAt
	m.uploads[u.ID] = &u

	for _, p := range products {
		m.upsertProduct(p, now)
	}
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		o := o
		o.UploadID = u.ID
		m.orders[o.ID] = &o
		ids = append(ids, o.ID)
	}
	m.byUpload[u.ID] = ids
	return nil
}

func (m *MemoryStore) upsertProduct(p model.Product, now time.Time) {
	existing, ok := m.products[p.ASIN]
	if !ok {
		p.UpdatedAt = now
		m.products[p.ASIN] = &p
		return
	}
	if strings.TrimSpace(p.ProductName) == "" {
		return
	}
	existing.ProductName = p.ProductName
	existing.UpdatedAt = now
}

// Product returns the reference item for asin.
func (m *MemoryStore) Product(_ context.Context, asin string) (*model.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[asin]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *p
	return &copy, nil
}

// ProductCount is the number of distinct ASINs stored.
func (m *MemoryStore) ProductCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.products)
}

// GetUpload returns an upload copy.
func (m *MemoryStore) GetUpload(_ context.Context, uploadID string) (*model.Upload, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.uploads[uploadID]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *u
	return &copy, nil
}

// ListUploads returns the uploads of accountID, newest first.
func (m *MemoryStore) ListUploads(_ context.Context, accountID string) ([]model.UploadSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []model.UploadSummary{}
	for _, u := range m.uploads {
		if u.AccountID != accountID {
			continue
		}
		out = append(out, model.UploadSummary{Upload: *u, OrderCount: len(m.byUpload[u.ID])})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// DeleteUpload removes the upload and its orders.
func (m *MemoryStore) DeleteUpload(_ context.Context, uploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.uploads[uploadID]; !ok {
		return ErrNotFound
	}
	for _, id := range m.byUpload[uploadID] {
		delete(m.orders, id)
	}
	delete(m.byUpload, uploadID)
	delete(m.uploads, uploadID)
	return nil
}

// SetValuationStatus records the outcome of a valuation pass.
func (m *MemoryStore) SetValuationStatus(_ context.Context, uploadID string, status model.ValuationStatus, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[uploadID]
	if !ok {
		return ErrNotFound
	}
	u.ValuationStatus = status
	u.ValuationMessage = msg
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// StaleValuations lists unfinished uploads last touched before the cutoff,
// oldest first.
func (m *MemoryStore) StaleValuations(_ context.Context, before time.Time, limit int) ([]model.Upload, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Upload
	for _, u := range m.uploads {
		if u.ValuationStatus == model.ValuationComplete || !u.UpdatedAt.Before(before) {
			continue
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListUploadOrders returns copies of every order of an upload.
func (m *MemoryStore) ListUploadOrders(_ context.Context, uploadID string) ([]model.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.byUpload[uploadID]
	out := make([]model.Order, 0, len(ids))
	for _, id := range ids {
		out = append(out, *m.orders[id])
	}
	return out, nil
}

// SetComputedValue stores the valuation result of one order.
func (m *MemoryStore) SetComputedValue(_ context.Context, orderID string, value decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.ComputedValue = decimal.NewNullDecimal(value)
	return nil
}

// PageOrders returns one sorted window of an upload's orders and the total.
func (m *MemoryStore) PageOrders(_ context.Context, uploadID string, q model.PageQuery) ([]model.OrderView, int, error) {
	q = q.Normalize()
	m.mu.RLock()
	defer m.mu.RUnlock()
	views := m.viewsLocked(uploadID)
	sortViews(views, q.SortBy, q.SortOrder == model.SortDesc)
	total := len(views)
	start := q.Offset()
	if start >= total {
		return []model.OrderView{}, total, nil
	}
	end := start + q.Limit
	if end > total {
		end = total
	}
	return views[start:end], total, nil
}

// ExportOrders returns every order of the upload, newest order date first.
func (m *MemoryStore) ExportOrders(_ context.Context, uploadID string) ([]model.OrderView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	views := m.viewsLocked(uploadID)
	sortViews(views, model.SortOrderDate, true)
	return views, nil
}

// GetOrder returns the order if its upload belongs to accountID.
func (m *MemoryStore) GetOrder(_ context.Context, accountID, orderID string) (*model.OrderView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	u, ok := m.uploads[o.UploadID]
	if !ok || u.AccountID != accountID {
		return nil, ErrNotFound
	}
	v := m.viewLocked(o)
	return &v, nil
}

// UpdateAnnotation replaces notes and user value of an order.
func (m *MemoryStore) UpdateAnnotation(_ context.Context, orderID string, notes *string, userValue decimal.NullDecimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	if notes != nil {
		n := *notes
		notes = &n
	}
	o.UserNotes = notes
	o.UserValue = userValue
	return nil
}

// CancelledOrderNumbers returns which of orderNumbers have a cancellation row
// in the upload.
func (m *MemoryStore) CancelledOrderNumbers(_ context.Context, uploadID string, orderNumbers []string) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wanted := make(map[string]struct{}, len(orderNumbers))
	for _, n := range orderNumbers {
		wanted[n] = struct{}{}
	}
	out := make(map[string]struct{})
	for _, id := range m.byUpload[uploadID] {
		o := m.orders[id]
		if _, ok := wanted[o.OrderNumber]; ok && cancellation.IsCancellation(o.OrderType) {
			out[o.OrderNumber] = struct{}{}
		}
	}
	return out, nil
}

// HasCancellation reports whether the upload has a cancellation row for
// orderNumber.
func (m *MemoryStore) HasCancellation(ctx context.Context, uploadID, orderNumber string) (bool, error) {
	set, err := m.CancelledOrderNumbers(ctx, uploadID, []string{orderNumber})
	if err != nil {
		return false, err
	}
	_, ok := set[orderNumber]
	return ok, nil
}

func (m *MemoryStore) viewsLocked(uploadID string) []model.OrderView {
	ids := m.byUpload[uploadID]
	views := make([]model.OrderView, 0, len(ids))
	for _, id := range ids {
		views = append(views, m.viewLocked(m.orders[id]))
	}
	return views
}

func (m *MemoryStore) viewLocked(o *model.Order) model.OrderView {
	v := model.OrderView{Order: *o}
	if p, ok := m.products[o.ASIN]; ok {
		copy := *p
		v.Product = &copy
	}
	return v
}

// sortViews orders views by field. Missing dates and values sort last in
// either direction; ties keep insertion order.
func sortViews(views []model.OrderView, field string, desc bool) {
	sort.SliceStable(views, func(i, j int) bool {
		c := compareField(&views[i].Order, &views[j].Order, field)
		if c == 0 {
			return false
		}
		if c == nullLast || c == -nullLast {
			return c < 0
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

const nullLast = 2

func compareField(a, b *model.Order, field string) int {
	switch field {
	case model.SortOrderNumber:
		return strings.Compare(a.OrderNumber, b.OrderNumber)
	case model.SortOrderType:
		return strings.Compare(a.OrderType, b.OrderType)
	case model.SortASIN:
		return strings.Compare(a.ASIN, b.ASIN)
	case model.SortProductName:
		return strings.Compare(a.ProductName, b.ProductName)
	case model.SortEstimatedValue:
		return compareDecimal(a.EstimatedValue, b.EstimatedValue)
	case model.SortComputedValue:
		return compareDecimal(a.ComputedValue, b.ComputedValue)
	case model.SortUserValue:
		return compareDecimal(a.UserValue, b.UserValue)
	case model.SortCreatedAt:
		return a.CreatedAt.Compare(b.CreatedAt)
	default:
		switch {
		case a.OrderDate == nil && b.OrderDate == nil:
			return 0
		case a.OrderDate == nil:
			return nullLast
		case b.OrderDate == nil:
			return -nullLast
		}
		return a.OrderDate.Compare(*b.OrderDate)
	}
}

func compareDecimal(a, b decimal.NullDecimal) int {
	switch {
	case !a.Valid && !b.Valid:
		return 0
	case !a.Valid:
		return nullLast
	case !b.Valid:
		return -nullLast
	}
	return a.Decimal.Cmp(b.Decimal)
}
