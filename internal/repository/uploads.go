package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dharsanguruparan/VineLedger/internal/model"
)

const uploadColumns = `u.id, u.account_id, u.filename, u.tier, u.valuation_status, u.valuation_message, u.source_key, u.created_at, u.updated_at`

func scanUpload(row pgx.Row, u *model.Upload, extra ...any) error {
	dest := []any{&u.ID, &u.AccountID, &u.Filename, &u.Tier, &u.ValuationStatus,
		&u.ValuationMessage, &u.SourceKey, &u.CreatedAt, &u.UpdatedAt}
	return row.Scan(append(dest, extra...)...)
}

// GetUpload returns an upload by id.
func (r *OrderRepository) GetUpload(ctx context.Context, uploadID string) (*model.Upload, error) {
	var u model.Upload
	row := r.pool.QueryRow(ctx, `SELECT `+uploadColumns+` FROM uploads u WHERE u.id=$1`, uploadID)
	if err := scanUpload(row, &u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("upload %s: %w", uploadID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("select upload: %w", err)
	}
	return &u, nil
}

// ListUploads returns the uploads of accountID with their order counts,
// newest first.
func (r *OrderRepository) ListUploads(ctx context.Context, accountID string) ([]model.UploadSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+uploadColumns+`, count(o.id)
		FROM uploads u
		LEFT JOIN vine_orders o ON o.upload_id = u.id
		WHERE u.account_id=$1
		GROUP BY u.id
		ORDER BY u.created_at DESC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("select uploads: %w", err)
	}
	defer rows.Close()
	out := []model.UploadSummary{}
	for rows.Next() {
		var s model.UploadSummary
		if err := scanUpload(rows, &s.Upload, &s.OrderCount); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate uploads: %w", err)
	}
	return out, nil
}

// DeleteUpload removes the upload; its orders go with it.
func (r *OrderRepository) DeleteUpload(ctx context.Context, uploadID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM uploads WHERE id=$1`, uploadID)
	if err != nil {
		return fmt.Errorf("delete upload: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("upload %s: %w", uploadID, model.ErrNotFound)
	}
	return nil
}

// SetValuationStatus records the outcome of a valuation pass.
func (r *OrderRepository) SetValuationStatus(ctx context.Context, uploadID string, status model.ValuationStatus, msg string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE uploads SET valuation_status=$1, valuation_message=$2, updated_at=$3 WHERE id=$4
	`, status, msg, time.Now().UTC(), uploadID)
	if err != nil {
		return fmt.Errorf("update upload: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("upload %s: %w", uploadID, model.ErrNotFound)
	}
	return nil
}

// StaleValuations lists unfinished uploads last touched before the cutoff,
// oldest first.
func (r *OrderRepository) StaleValuations(ctx context.Context, before time.Time, limit int) ([]model.Upload, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+uploadColumns+` FROM uploads u
		WHERE u.valuation_status <> $1 AND u.updated_at < $2
		ORDER BY u.updated_at
		LIMIT $3
	`, model.ValuationComplete, before, limit)
	if err != nil {
		return nil, fmt.Errorf("select stale uploads: %w", err)
	}
	defer rows.Close()
	var out []model.Upload
	for rows.Next() {
		var u model.Upload
		if err := scanUpload(rows, &u); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate uploads: %w", err)
	}
	return out, nil
}
