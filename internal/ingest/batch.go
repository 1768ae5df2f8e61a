package ingest

import (
	"fmt"

	"github.com/dharsanguruparan/VineLedger/internal/model"
	"github.com/dharsanguruparan/VineLedger/internal/sheet"
)

// Batch accumulates the normalized rows of one spreadsheet.
type Batch struct {
	Layout Layout
	Orders []model.Order
	// Products holds one entry per ASIN that appeared with a product name.
	// The first non-empty name seen for an ASIN wins.
	Products []model.Product
	// Skipped counts rows dropped for a missing ASIN or order number.
	Skipped int

	seen map[string]struct{}
}

// NewBatch returns an empty batch for the given layout.
func NewBatch(layout Layout) *Batch {
	return &Batch{Layout: layout, seen: make(map[string]struct{})}
}

// Add normalizes rec and appends it. It reports whether the row was kept.
func (b *Batch) Add(rec sheet.Record) bool {
	order, ok := Normalize(rec)
	if !ok {
		b.Skipped++
		return false
	}
	b.Orders = append(b.Orders, order)
	if order.ProductName == "" {
		return true
	}
	if _, dup := b.seen[order.ASIN]; !dup {
		b.seen[order.ASIN] = struct{}{}
		b.Products = append(b.Products, model.Product{ASIN: order.ASIN, ProductName: order.ProductName})
	}
	return true
}

// Parse reads a spreadsheet file and normalizes every row. Input problems
// wrap ErrUnreadable or ErrNoData.
func Parse(data []byte, filename string) (*Batch, error) {
	wb, err := sheet.Open(data, filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer wb.Close()
	layout, records, err := Detect(wb)
	if err != nil {
		return nil, err
	}
	b := NewBatch(layout)
	for _, rec := range records {
		b.Add(rec)
	}
	return b, nil
}
