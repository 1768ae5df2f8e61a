package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dharsanguruparan/VineLedger/internal/model"
)

// OrderRepository wraps all SQL used by the API and the worker.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository constructs a repository.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

const upsertProduct = `
	INSERT INTO products (asin, product_name, updated_at)
	VALUES ($1,$2,$3)
	ON CONFLICT (asin) DO UPDATE
	SET product_name = EXCLUDED.product_name, updated_at = EXCLUDED.updated_at
	WHERE EXCLUDED.product_name <> ''`

var orderColumns = []string{
	"id", "upload_id", "order_number", "order_date", "order_type", "asin", "product_name",
	"estimated_value", "computed_value", "user_value", "user_notes", "created_at",
}

// CreateBatch inserts the upload, upserts the products and copies the orders
// in one transaction.
func (r *OrderRepository) CreateBatch(ctx context.Context, upload *model.Upload, products []model.Product, orders []model.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO uploads (id, account_id, filename, tier, valuation_status, valuation_message, source_key, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, upload.ID, upload.AccountID, upload.Filename, upload.Tier, upload.ValuationStatus,
		upload.ValuationMessage, upload.SourceKey, upload.CreatedAt, upload.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert upload: %w", err)
	}

	if len(products) > 0 {
		// A fixed key order keeps concurrent uploads from deadlocking on
		// shared products.
		sorted := append([]model.Product(nil), products...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].ASIN < sorted[j].ASIN })
		batch := &pgx.Batch{}
		for _, p := range sorted {
			batch.Queue(upsertProduct, p.ASIN, p.ProductName, upload.CreatedAt)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upsert products: %w", err)
		}
	}

	rows := make([][]any, 0, len(orders))
	for _, o := range orders {
		rows = append(rows, []any{
			o.ID, upload.ID, o.OrderNumber, o.OrderDate, o.OrderType, o.ASIN, o.ProductName,
			toNumeric(o.EstimatedValue), toNumeric(o.ComputedValue), toNumeric(o.UserValue),
			o.UserNotes, o.CreatedAt,
		})
	}
	if len(rows) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"vine_orders"}, orderColumns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("copy orders: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// ListUploadOrders returns every order of an upload.
func (r *OrderRepository) ListUploadOrders(ctx context.Context, uploadID string) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT o.id, o.upload_id, o.order_number, o.order_date, o.order_type, o.asin, o.product_name,
			o.estimated_value, o.computed_value, o.user_value, o.user_notes, o.created_at
		FROM vine_orders o WHERE o.upload_id=$1
	`, uploadID)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()
	var out []model.Order
	for rows.Next() {
		var o model.Order
		if err := scanOrder(rows, &o); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return out, nil
}

// SetComputedValue stores the valuation result of one order.
func (r *OrderRepository) SetComputedValue(ctx context.Context, orderID string, value decimal.Decimal) error {
	tag, err := r.pool.Exec(ctx, `UPDATE vine_orders SET computed_value=$1 WHERE id=$2`,
		toNumeric(decimal.NewNullDecimal(value)), orderID)
	if err != nil {
		return fmt.Errorf("update computed value: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s: %w", orderID, model.ErrNotFound)
	}
	return nil
}

var sortColumns = map[string]string{
	model.SortOrderDate:      "o.order_date",
	model.SortOrderNumber:    "o.order_number",
	model.SortOrderType:      "o.order_type",
	model.SortASIN:           "o.asin",
	model.SortProductName:    "o.product_name",
	model.SortEstimatedValue: "o.estimated_value",
	model.SortComputedValue:  "o.computed_value",
	model.SortUserValue:      "o.user_value",
	model.SortCreatedAt:      "o.created_at",
}

// orderClause builds ORDER BY from whitelisted names only.
func orderClause(field, direction string) string {
	col, ok := sortColumns[field]
	if !ok {
		col = sortColumns[model.SortOrderDate]
	}
	dir := "DESC"
	if strings.EqualFold(direction, model.SortAsc) {
		dir = "ASC"
	}
	return fmt.Sprintf("%s %s NULLS LAST, o.created_at, o.id", col, dir)
}

const viewSelect = `
	SELECT o.id, o.upload_id, o.order_number, o.order_date, o.order_type, o.asin, o.product_name,
		o.estimated_value, o.computed_value, o.user_value, o.user_notes, o.created_at,
		p.asin, p.product_name, p.image_url, p.category, p.updated_at
	FROM vine_orders o
	LEFT JOIN products p ON p.asin = o.asin`

// PageOrders returns one sorted window of an upload's orders and the total.
func (r *OrderRepository) PageOrders(ctx context.Context, uploadID string, q model.PageQuery) ([]model.OrderView, int, error) {
	q = q.Normalize()
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM vine_orders WHERE upload_id=$1`, uploadID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	views, err := r.queryViews(ctx,
		viewSelect+` WHERE o.upload_id=$1 ORDER BY `+orderClause(q.SortBy, q.SortOrder)+` LIMIT $2 OFFSET $3`,
		uploadID, q.Limit, q.Offset())
	if err != nil {
		return nil, 0, err
	}
	return views, total, nil
}

// ExportOrders returns every order of the upload, newest order date first.
func (r *OrderRepository) ExportOrders(ctx context.Context, uploadID string) ([]model.OrderView, error) {
	return r.queryViews(ctx,
		viewSelect+` WHERE o.upload_id=$1 ORDER BY `+orderClause(model.SortOrderDate, model.SortDesc),
		uploadID)
}

// GetOrder returns the order if its upload belongs to accountID.
func (r *OrderRepository) GetOrder(ctx context.Context, accountID, orderID string) (*model.OrderView, error) {
	views, err := r.queryViews(ctx,
		viewSelect+` JOIN uploads u ON u.id = o.upload_id WHERE o.id=$1 AND u.account_id=$2`,
		orderID, accountID)
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, fmt.Errorf("order %s: %w", orderID, model.ErrNotFound)
	}
	return &views[0], nil
}

// UpdateAnnotation replaces the user notes and user value of an order.
func (r *OrderRepository) UpdateAnnotation(ctx context.Context, orderID string, notes *string, userValue decimal.NullDecimal) error {
	tag, err := r.pool.Exec(ctx, `UPDATE vine_orders SET user_notes=$1, user_value=$2 WHERE id=$3`,
		notes, toNumeric(userValue), orderID)
	if err != nil {
		return fmt.Errorf("update annotation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s: %w", orderID, model.ErrNotFound)
	}
	return nil
}

// CancelledOrderNumbers returns which of orderNumbers have a cancellation row
// in the upload.
func (r *OrderRepository) CancelledOrderNumbers(ctx context.Context, uploadID string, orderNumbers []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	if len(orderNumbers) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT order_number FROM vine_orders
		WHERE upload_id=$1 AND lower(trim(order_type))='cancellation' AND order_number = ANY($2)
	`, uploadID, orderNumbers)
	if err != nil {
		return nil, fmt.Errorf("select cancellations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan cancellation: %w", err)
		}
		out[n] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cancellations: %w", err)
	}
	return out, nil
}

// HasCancellation reports whether the upload has a cancellation row for
// orderNumber.
func (r *OrderRepository) HasCancellation(ctx context.Context, uploadID, orderNumber string) (bool, error) {
	var found bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM vine_orders
			WHERE upload_id=$1 AND order_number=$2 AND lower(trim(order_type))='cancellation'
		)
	`, uploadID, orderNumber).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("select cancellation: %w", err)
	}
	return found, nil
}

func (r *OrderRepository) queryViews(ctx context.Context, sql string, args ...any) ([]model.OrderView, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()
	views := []model.OrderView{}
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return views, nil
}

func scanOrder(row pgx.Row, o *model.Order) error {
	var estimated, computed, user pgtype.Numeric
	if err := row.Scan(&o.ID, &o.UploadID, &o.OrderNumber, &o.OrderDate, &o.OrderType, &o.ASIN, &o.ProductName,
		&estimated, &computed, &user, &o.UserNotes, &o.CreatedAt); err != nil {
		return fmt.Errorf("scan order: %w", err)
	}
	o.EstimatedValue = fromNumeric(estimated)
	o.ComputedValue = fromNumeric(computed)
	o.UserValue = fromNumeric(user)
	return nil
}

func scanView(row pgx.Row) (model.OrderView, error) {
	var (
		v                         model.OrderView
		estimated, computed, user pgtype.Numeric
		asin, name                *string
		image, category           *string
		productUpdated            *time.Time
	)
	err := row.Scan(&v.ID, &v.UploadID, &v.OrderNumber, &v.OrderDate, &v.OrderType, &v.ASIN, &v.ProductName,
		&estimated, &computed, &user, &v.UserNotes, &v.CreatedAt,
		&asin, &name, &image, &category, &productUpdated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return v, model.ErrNotFound
		}
		return v, fmt.Errorf("scan order: %w", err)
	}
	v.EstimatedValue = fromNumeric(estimated)
	v.ComputedValue = fromNumeric(computed)
	v.UserValue = fromNumeric(user)
	if asin != nil {
		p := &model.Product{ASIN: *asin, ImageURL: image, Category: category}
		if name != nil {
			p.ProductName = *name
		}
		if productUpdated != nil {
			p.UpdatedAt = *productUpdated
		}
		v.Product = p
	}
	return v, nil
}
