// Package model contains the records shared by the ingestion pipeline, the
// stores and the HTTP layer.
package model

import (
	"time"
)

// ValuationStatus tracks the second write phase of an upload. Orders are
// inserted first; computed values are filled in by a separate pass that can be
// retried until the status reaches ValuationComplete.
type ValuationStatus string

const (
	ValuationPending  ValuationStatus = "pending"
	ValuationComplete ValuationStatus = "complete"
	ValuationFailed   ValuationStatus = "failed"
)

// Upload is one ingested spreadsheet.
type Upload struct {
	ID        string `json:"id"`
	AccountID string `json:"accountId"`
	Filename  string `json:"filename"`
	// Tier is captured at ingest time and drives every later valuation of
	// this upload, even if the account changes plans afterwards.
	Tier             string          `json:"tier"`
	ValuationStatus  ValuationStatus `json:"valuationStatus"`
	ValuationMessage string          `json:"valuationMessage,omitempty"`
	// SourceKey is the object key of the archived original file, if any.
	SourceKey string    `json:"-"`
	CreatedAt time.Time `json:"uploadedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UploadSummary is an upload together with its order count.
type UploadSummary struct {
	Upload
	OrderCount int `json:"orderCount"`
}

// Account is the caller as resolved by the session layer.
type Account struct {
	ID   string
	Tier string
}
