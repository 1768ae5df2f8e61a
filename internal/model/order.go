package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Canonical order types. Comparisons against stored values are case-insensitive.
const (
	OrderTypeOrder        = "Order"
	OrderTypeCancellation = "Cancellation"
)

// Order is one normalized spreadsheet row.
type Order struct {
	ID          string     `json:"id"`
	UploadID    string     `json:"uploadId"`
	OrderNumber string     `json:"orderNumber"`
	OrderDate   *time.Time `json:"orderDate"`
	OrderType   string     `json:"orderType"`
	ASIN        string     `json:"asin"`
	ProductName string     `json:"productName"`
	// EstimatedValue is the ETV reported by the source sheet.
	EstimatedValue decimal.NullDecimal `json:"estimatedValue"`
	ComputedValue  decimal.NullDecimal `json:"computedValue"`
	UserValue      decimal.NullDecimal `json:"userValue"`
	UserNotes      *string             `json:"userNotes"`
	CreatedAt      time.Time           `json:"createdAt"`
}

// Product is the shared ASIN reference item.
type Product struct {
	ASIN        string    `json:"asin"`
	ProductName string    `json:"productName"`
	ImageURL    *string   `json:"imageUrl"`
	Category    *string   `json:"category"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// OrderView is an order as returned to readers: joined with its reference
// item and carrying the derived cancellation flag.
type OrderView struct {
	Order
	Product   *Product `json:"asinData"`
	Cancelled bool     `json:"isCancelled"`
}

// Sort directions accepted by PageQuery.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// PageQuery selects a window of an upload's orders.
type PageQuery struct {
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
}

// Offset is the number of rows skipped before the page.
func (q PageQuery) Offset() int {
	if q.Page <= 1 {
		return 0
	}
	return (q.Page - 1) * q.Limit
}

// Sort fields accepted by PageQuery, named as they appear in the API.
const (
	SortOrderDate      = "orderDate"
	SortOrderNumber    = "orderNumber"
	SortOrderType      = "orderType"
	SortASIN           = "asin"
	SortProductName    = "productName"
	SortEstimatedValue = "estimatedValue"
	SortComputedValue  = "computedValue"
	SortUserValue      = "userValue"
	SortCreatedAt      = "createdAt"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

var sortFields = map[string]string{
	SortOrderDate:      SortOrderDate,
	SortOrderNumber:    SortOrderNumber,
	SortOrderType:      SortOrderType,
	SortASIN:           SortASIN,
	SortProductName:    SortProductName,
	SortEstimatedValue: SortEstimatedValue,
	SortComputedValue:  SortComputedValue,
	SortUserValue:      SortUserValue,
	SortCreatedAt:      SortCreatedAt,
	// names used by older clients
	"computedFmv": SortComputedValue,
	"userFmv":     SortUserValue,
}

// Normalize fills defaults and replaces unknown sort fields, so stores can
// trust every value.
func (q PageQuery) Normalize() PageQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageLimit
	}
	if q.Limit > MaxPageLimit {
		q.Limit = MaxPageLimit
	}
	field, ok := sortFields[q.SortBy]
	if !ok {
		field = SortOrderDate
	}
	q.SortBy = field
	if strings.EqualFold(q.SortOrder, SortAsc) {
		q.SortOrder = SortAsc
	} else {
		q.SortOrder = SortDesc
	}
	return q
}

// TotalPages is the page count for total rows at this query's limit.
func (q PageQuery) TotalPages(total int) int {
	if q.Limit <= 0 || total <= 0 {
		return 0
	}
	return (total + q.Limit - 1) / q.Limit
}
