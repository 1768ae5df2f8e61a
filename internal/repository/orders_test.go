package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dharsanguruparan/VineLedger/internal/database"
	"github.com/dharsanguruparan/VineLedger/internal/model"
)

// testRepository connects to the database named by VINE_TEST_DATABASE_URL and
// skips the test when it is unset.
func testRepository(t *testing.T) *OrderRepository {
	t.Helper()
	dsn := os.Getenv("VINE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("VINE_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := database.Connect(ctx, dsn, 4)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := database.EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return NewOrderRepository(pool)
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func money(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

type fixture struct {
	upload *model.Upload
	orders []model.Order
}

func newFixture(accountID string, updated time.Time, orders ...model.Order) fixture {
	now := time.Now().UTC().Truncate(time.Microsecond)
	up := &model.Upload{
		ID:              uuid.NewString(),
		AccountID:       accountID,
		Filename:        "vine.xlsx",
		Tier:            "base",
		ValuationStatus: model.ValuationPending,
		CreatedAt:       now,
		UpdatedAt:       updated,
	}
	for i := range orders {
		orders[i].ID = uuid.NewString()
		orders[i].UploadID = up.ID
		// distinct creation times make the tie-break order predictable
		orders[i].CreatedAt = now.Add(time.Duration(i) * time.Millisecond)
	}
	return fixture{upload: up, orders: orders}
}

func (f fixture) create(t *testing.T, repo *OrderRepository, products ...model.Product) {
	t.Helper()
	ctx := context.Background()
	if err := repo.CreateBatch(ctx, f.upload, products, f.orders); err != nil {
		t.Fatalf("create batch: %v", err)
	}
	t.Cleanup(func() {
		_ = repo.DeleteUpload(context.Background(), f.upload.ID)
	})
}

func ids(views []model.OrderView) []string {
	out := make([]string, len(views))
	for i, v := range views {
		out[i] = v.ID
	}
	return out
}

func TestRepositoryOrdersRoundTrip(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()
	account := "acct-" + uuid.NewString()
	asin := "T" + uuid.NewString()[:9]
	t.Cleanup(func() {
		_, _ = repo.pool.Exec(context.Background(), `DELETE FROM products WHERE asin=$1`, asin)
	})

	first := newFixture(account, time.Now().UTC().Add(-time.Hour),
		model.Order{OrderNumber: "112-1", OrderType: "Order", ASIN: asin, ProductName: "Widget", OrderDate: day(2023, 1, 1), EstimatedValue: money("10.00")},
		model.Order{OrderNumber: "112-1", OrderType: " CANCELLATION ", ASIN: asin, ProductName: "Widget", EstimatedValue: money("5.00")},
		model.Order{OrderNumber: "112-2", OrderType: "Order", ASIN: asin, OrderDate: day(2023, 1, 3)},
	)
	first.create(t, repo, model.Product{ASIN: asin, ProductName: "Widget"})

	// A later batch without a name must not blank the shared product.
	second := newFixture(account, time.Now().UTC(),
		model.Order{OrderNumber: "112-1", OrderType: "Order", ASIN: asin, OrderDate: day(2023, 2, 1)},
	)
	second.create(t, repo, model.Product{ASIN: asin, ProductName: ""})

	o1, o2, o3 := first.orders[0].ID, first.orders[1].ID, first.orders[2].ID

	t.Run("product name survives blank upsert", func(t *testing.T) {
		view, err := repo.GetOrder(ctx, account, second.orders[0].ID)
		if err != nil {
			t.Fatalf("get order: %v", err)
		}
		if view.Product == nil || view.Product.ProductName != "Widget" {
			t.Fatalf("expected product name to be kept, got %+v", view.Product)
		}
	})

	t.Run("cancellation correlation is scoped to the upload", func(t *testing.T) {
		cancelled, err := repo.CancelledOrderNumbers(ctx, first.upload.ID, []string{"112-1", "112-2"})
		if err != nil {
			t.Fatalf("cancelled: %v", err)
		}
		if _, ok := cancelled["112-1"]; !ok || len(cancelled) != 1 {
			t.Fatalf("expected only 112-1 cancelled, got %v", cancelled)
		}
		if ok, err := repo.HasCancellation(ctx, first.upload.ID, "112-1"); err != nil || !ok {
			t.Fatalf("expected cancellation in first upload, got %v %v", ok, err)
		}
		if ok, err := repo.HasCancellation(ctx, second.upload.ID, "112-1"); err != nil || ok {
			t.Fatalf("expected no cancellation in second upload, got %v %v", ok, err)
		}
	})

	t.Run("null dates sort last in both directions", func(t *testing.T) {
		cases := []struct {
			dir  string
			want []string
		}{
			{model.SortDesc, []string{o3, o1, o2}},
			{model.SortAsc, []string{o1, o3, o2}},
		}
		for _, tc := range cases {
			views, total, err := repo.PageOrders(ctx, first.upload.ID, model.PageQuery{SortBy: model.SortOrderDate, SortOrder: tc.dir})
			if err != nil {
				t.Fatalf("page: %v", err)
			}
			got := ids(views)
			if total != 3 || len(got) != 3 || got[0] != tc.want[0] || got[1] != tc.want[1] || got[2] != tc.want[2] {
				t.Fatalf("%s: got %v (total %d), want %v", tc.dir, got, total, tc.want)
			}
		}
		views, total, err := repo.PageOrders(ctx, first.upload.ID, model.PageQuery{Page: 2, Limit: 2})
		if err != nil || total != 3 || len(views) != 1 || views[0].ID != o2 {
			t.Fatalf("unexpected second page %v total %d err %v", ids(views), total, err)
		}
	})

	t.Run("numeric values round trip", func(t *testing.T) {
		if err := repo.SetComputedValue(ctx, o1, decimal.RequireFromString("11.00")); err != nil {
			t.Fatalf("set computed: %v", err)
		}
		notes := "gift"
		if err := repo.UpdateAnnotation(ctx, o1, &notes, money("7.25")); err != nil {
			t.Fatalf("annotate: %v", err)
		}
		view, err := repo.GetOrder(ctx, account, o1)
		if err != nil {
			t.Fatalf("get order: %v", err)
		}
		if !view.ComputedValue.Decimal.Equal(decimal.RequireFromString("11")) ||
			!view.UserValue.Decimal.Equal(decimal.RequireFromString("7.25")) ||
			!view.EstimatedValue.Decimal.Equal(decimal.RequireFromString("10")) ||
			view.UserNotes == nil || *view.UserNotes != "gift" {
			t.Fatalf("unexpected values %+v", view.Order)
		}
		if _, err := repo.GetOrder(ctx, "someone-else", o1); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("expected not found for another account, got %v", err)
		}
	})

	t.Run("uploads list and go stale", func(t *testing.T) {
		uploads, err := repo.ListUploads(ctx, account)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(uploads) != 2 || uploads[0].OrderCount+uploads[1].OrderCount != 4 {
			t.Fatalf("unexpected uploads %+v", uploads)
		}
		stale, err := repo.StaleValuations(ctx, time.Now().UTC().Add(-time.Minute), 1000)
		if err != nil {
			t.Fatalf("stale: %v", err)
		}
		found := map[string]bool{}
		for _, u := range stale {
			found[u.ID] = true
		}
		if !found[first.upload.ID] || found[second.upload.ID] {
			t.Fatalf("expected only the old upload to be stale")
		}
		if err := repo.SetValuationStatus(ctx, first.upload.ID, model.ValuationComplete, ""); err != nil {
			t.Fatalf("set status: %v", err)
		}
		up, err := repo.GetUpload(ctx, first.upload.ID)
		if err != nil || up.ValuationStatus != model.ValuationComplete {
			t.Fatalf("unexpected upload %+v %v", up, err)
		}
	})

	t.Run("delete cascades to orders", func(t *testing.T) {
		if err := repo.DeleteUpload(ctx, first.upload.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		orders, err := repo.ListUploadOrders(ctx, first.upload.ID)
		if err != nil || len(orders) != 0 {
			t.Fatalf("expected orders removed, got %d %v", len(orders), err)
		}
		if _, err := repo.GetUpload(ctx, first.upload.ID); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		if err := repo.DeleteUpload(ctx, first.upload.ID); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("expected not found on second delete, got %v", err)
		}
	})
}
