package ingest

import (
	"strings"

	"github.com/dharsanguruparan/VineLedger/internal/model"
	"github.com/dharsanguruparan/VineLedger/internal/sheet"
)

// Header spellings accepted for each canonical field, most specific first.
var (
	orderNumberHeaders    = []string{"Order Number", "OrderNumber", "order_number"}
	orderDateHeaders      = []string{"Order Date", "OrderDate", "order_date"}
	orderTypeHeaders      = []string{"Order Type", "OrderType", "order_type"}
	asinHeaders           = []string{"ASIN", "asin"}
	productNameHeaders    = []string{"Product Name", "ProductName", "product_name"}
	estimatedValueHeaders = []string{"Estimated Tax Value", "Estimated Value", "EstimatedValue", "estimated_value"}
)

// Normalize maps a raw record to an order. ok is false when the record has no
// ASIN or no order number; such rows are dropped.
func Normalize(rec sheet.Record) (order model.Order, ok bool) {
	orderNumber := text(resolve(rec, orderNumberHeaders))
	asin := text(resolve(rec, asinHeaders))
	if orderNumber == "" || asin == "" {
		return model.Order{}, false
	}
	orderType := text(resolve(rec, orderTypeHeaders))
	if orderType == "" {
		orderType = model.OrderTypeOrder
	}
	return model.Order{
		OrderNumber:    orderNumber,
		OrderDate:      coerceDate(resolve(rec, orderDateHeaders)),
		OrderType:      orderType,
		ASIN:           asin,
		ProductName:    text(resolve(rec, productNameHeaders)),
		EstimatedValue: coerceMoney(resolve(rec, estimatedValueHeaders)),
	}, true
}

// resolve returns the first non-empty cell among the candidate headers.
func resolve(rec sheet.Record, headers []string) any {
	for _, h := range headers {
		v, ok := rec[h]
		if !ok || v == nil {
			continue
		}
		if s, isText := v.(string); isText && strings.TrimSpace(s) == "" {
			continue
		}
		return v
	}
	return nil
}

func text(cell any) string {
	return strings.TrimSpace(sheet.Text(cell))
}
