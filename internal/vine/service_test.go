package vine

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dharsanguruparan/VineLedger/internal/ingest"
	"github.com/dharsanguruparan/VineLedger/internal/model"
	"github.com/dharsanguruparan/VineLedger/internal/storage"
)

const sampleCSV = `Order Number,ASIN,Product Name,Order Type,Order Date,Estimated Tax Value
112-0001,B000TEST,"Widget, ""Deluxe""",Order,2023-01-15,$100.00
112-0001,B000TEST,"Widget, ""Deluxe""",Cancellation,2023-01-20,$100.00
112-0002,B000OTHER,Gadget,Order,2023-02-03,19.99
112-0003,,No asin,Order,2023-02-04,5.00
`

var owner = model.Account{ID: "acct-1", Tier: "premium"}

// flakyStore fails the first failures computed-value writes.
type flakyStore struct {
	*storage.MemoryStore
	mu       sync.Mutex
	failures int
}

func (f *flakyStore) SetComputedValue(ctx context.Context, orderID string, value decimal.Decimal) error {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return errors.New("write timeout")
	}
	f.mu.Unlock()
	return f.MemoryStore.SetComputedValue(ctx, orderID, value)
}

type recordingScheduler struct {
	mu      sync.Mutex
	uploads []string
}

func (r *recordingScheduler) ScheduleValuation(_ context.Context, uploadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads = append(r.uploads, uploadID)
	return nil
}

type memArchive struct {
	objects map[string][]byte
}

func (a *memArchive) PutSource(_ context.Context, key string, data []byte, _ string) error {
	a.objects[key] = data
	return nil
}

func (a *memArchive) GetSource(_ context.Context, key string) ([]byte, error) {
	data, ok := a.objects[key]
	if !ok {
		return nil, errors.New("no such object")
	}
	return data, nil
}

func (a *memArchive) RemoveSource(_ context.Context, key string) error {
	delete(a.objects, key)
	return nil
}

func (a *memArchive) PresignSource(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://objects.example/" + key, nil
}

func ingestSample(t *testing.T, svc *Service) *IngestResult {
	t.Helper()
	res, err := svc.Ingest(context.Background(), owner, "vine.csv", []byte(sampleCSV))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	return res
}

func TestIngestStoresValidRows(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := New(store, Options{})
	res := ingestSample(t, svc)

	if res.OrdersCount != 3 || res.Skipped != 1 {
		t.Fatalf("expected 3 orders and 1 skipped, got %d/%d", res.OrdersCount, res.Skipped)
	}
	if !res.ValuationComplete {
		t.Fatalf("expected valuation to complete: %s", res.ValuationError)
	}
	if store.ProductCount() != 2 {
		t.Fatalf("expected 2 products, got %d", store.ProductCount())
	}
	up, err := store.GetUpload(context.Background(), res.UploadID)
	if err != nil {
		t.Fatalf("get upload: %v", err)
	}
	if up.Tier != "elevated" || up.ValuationStatus != model.ValuationComplete {
		t.Fatalf("unexpected upload state %+v", up)
	}

	page, err := svc.OrdersPage(context.Background(), owner.ID, res.UploadID, model.PageQuery{SortBy: "orderNumber", SortOrder: "asc"})
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if page.Pagination.Total != 3 || page.Pagination.TotalPages != 1 || page.Pagination.Limit != 50 {
		t.Fatalf("unexpected pagination %+v", page.Pagination)
	}
	first := page.Orders[0]
	if !first.Cancelled || !page.Orders[1].Cancelled || page.Orders[2].Cancelled {
		t.Fatalf("cancellation flags wrong: %v %v %v", first.Cancelled, page.Orders[1].Cancelled, page.Orders[2].Cancelled)
	}
	if !first.ComputedValue.Decimal.Equal(decimal.RequireFromString("110")) {
		t.Fatalf("expected computed value 110, got %s", first.ComputedValue.Decimal)
	}
	if first.Product == nil || first.Product.ProductName != `Widget, "Deluxe"` {
		t.Fatalf("expected joined product, got %+v", first.Product)
	}
}

func TestIngestRejectsBadInput(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := New(store, Options{})
	ctx := context.Background()

	_, err := svc.Ingest(ctx, owner, "broken.xlsx", []byte("definitely not a workbook"))
	if !errors.Is(err, ingest.ErrUnreadable) {
		t.Fatalf("expected unreadable, got %v", err)
	}
	_, err = svc.Ingest(ctx, owner, "empty.csv", []byte("Order Number,ASIN\n"))
	if !errors.Is(err, ingest.ErrNoData) {
		t.Fatalf("expected no data, got %v", err)
	}
	uploads, _ := svc.ListUploads(ctx, owner.ID)
	if len(uploads) != 0 {
		t.Fatalf("nothing should be stored, got %d uploads", len(uploads))
	}
}

func TestReuploadKeepsOneProduct(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := New(store, Options{})
	data := []byte("ASIN,Order Number,Product Name\nB000TEST,1,Widget\n")
	for i := 0; i < 2; i++ {
		if _, err := svc.Ingest(context.Background(), owner, "w.csv", data); err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
	}
	p, err := store.Product(context.Background(), "B000TEST")
	if err != nil || p.ProductName != "Widget" || store.ProductCount() != 1 {
		t.Fatalf("unexpected products: %+v %v", p, err)
	}
	uploads, _ := svc.ListUploads(context.Background(), owner.ID)
	if len(uploads) != 2 {
		t.Fatalf("orders are not deduplicated across uploads, expected 2 uploads got %d", len(uploads))
	}
}

func TestOtherAccountsSeeNotFound(t *testing.T) {
	svc := New(storage.NewMemoryStore(), Options{})
	res := ingestSample(t, svc)
	ctx := context.Background()
	page, err := svc.OrdersPage(ctx, owner.ID, res.UploadID, model.PageQuery{})
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	orderID := page.Orders[0].ID

	if _, err := svc.OrdersPage(ctx, "intruder", res.UploadID, model.PageQuery{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("page: expected not found, got %v", err)
	}
	if _, err := svc.GetOrder(ctx, "intruder", orderID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get order: expected not found, got %v", err)
	}
	notes := "mine now"
	if _, err := svc.UpdateOrderAnnotation(ctx, "intruder", orderID, &notes, decimal.NullDecimal{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("annotate: expected not found, got %v", err)
	}
	if _, err := svc.ExportCSV(ctx, "intruder", res.UploadID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("export: expected not found, got %v", err)
	}
	if err := svc.DeleteUpload(ctx, "intruder", res.UploadID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete: expected not found, got %v", err)
	}
}

func TestUpdateOrderAnnotation(t *testing.T) {
	svc := New(storage.NewMemoryStore(), Options{})
	res := ingestSample(t, svc)
	ctx := context.Background()
	page, _ := svc.OrdersPage(ctx, owner.ID, res.UploadID, model.PageQuery{SortBy: "orderNumber", SortOrder: "asc"})
	id := page.Orders[0].ID

	notes := "kept"
	view, err := svc.UpdateOrderAnnotation(ctx, owner.ID, id, &notes, decimal.NewNullDecimal(decimal.RequireFromString("42.5")))
	if err != nil {
		t.Fatalf("annotate: %v", err)
	}
	if view.UserNotes == nil || *view.UserNotes != "kept" || !view.UserValue.Valid || !view.Cancelled {
		t.Fatalf("unexpected view %+v", view)
	}

	view, err = svc.UpdateOrderAnnotation(ctx, owner.ID, id, nil, decimal.NullDecimal{})
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if view.UserNotes != nil || view.UserValue.Valid {
		t.Fatalf("expected cleared annotation, got %+v", view.Order)
	}
	if _, err := svc.UpdateOrderAnnotation(ctx, owner.ID, "missing", nil, decimal.NullDecimal{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestValuationFailureIsReportedAndRetried(t *testing.T) {
	store := &flakyStore{MemoryStore: storage.NewMemoryStore(), failures: 1}
	sched := &recordingScheduler{}
	svc := New(store, Options{Scheduler: sched, ValuationConcurrency: 1})
	ctx := context.Background()

	res, err := svc.Ingest(ctx, owner, "vine.csv", []byte(sampleCSV))
	if err != nil {
		t.Fatalf("ingest should succeed when only valuation fails: %v", err)
	}
	if res.ValuationComplete || res.ValuationError == "" {
		t.Fatalf("expected reported valuation failure, got %+v", res)
	}
	if len(sched.uploads) != 1 || sched.uploads[0] != res.UploadID {
		t.Fatalf("expected a retry keyed by upload id, got %v", sched.uploads)
	}
	up, _ := store.GetUpload(ctx, res.UploadID)
	if up.ValuationStatus != model.ValuationFailed {
		t.Fatalf("expected failed status, got %s", up.ValuationStatus)
	}

	if err := svc.Revalue(ctx, res.UploadID); err != nil {
		t.Fatalf("retry: %v", err)
	}
	up, _ = store.GetUpload(ctx, res.UploadID)
	if up.ValuationStatus != model.ValuationComplete {
		t.Fatalf("expected complete after retry, got %s", up.ValuationStatus)
	}
	orders, _ := store.ListUploadOrders(ctx, res.UploadID)
	for _, o := range orders {
		if !o.ComputedValue.Valid {
			t.Fatalf("order %s left without computed value", o.ID)
		}
	}
}

func TestSweepStaleRequeues(t *testing.T) {
	store := &flakyStore{MemoryStore: storage.NewMemoryStore(), failures: 1}
	sched := &recordingScheduler{}
	svc := New(store, Options{Scheduler: sched, ValuationConcurrency: 1})
	res, err := svc.Ingest(context.Background(), owner, "vine.csv", []byte(sampleCSV))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	svc.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }

	n, err := svc.SweepStale(context.Background(), 10*time.Minute, 50)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 || sched.uploads[len(sched.uploads)-1] != res.UploadID {
		t.Fatalf("expected the failed upload requeued, got %d %v", n, sched.uploads)
	}
}

func TestExportCSV(t *testing.T) {
	svc := New(storage.NewMemoryStore(), Options{})
	svc.now = func() time.Time { return time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC) }
	res := ingestSample(t, svc)

	exp, err := svc.ExportCSV(context.Background(), owner.ID, res.UploadID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exp.Filename != "vine-orders-vine.csv-2024-03-09.csv" {
		t.Fatalf("unexpected filename %q", exp.Filename)
	}
	var buf bytes.Buffer
	if err := exp.Write(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header and 3 rows, got %d", len(rows))
	}
	if rows[1][1] != "2023-02-03" || rows[1][9] != "No" {
		t.Fatalf("expected newest order first, got %v", rows[1])
	}
	if rows[2][4] != `Widget, "Deluxe"` || rows[2][9] != "Yes" {
		t.Fatalf("unexpected cancelled row %v", rows[2])
	}
}

func TestUploadStats(t *testing.T) {
	svc := New(storage.NewMemoryStore(), Options{})
	res := ingestSample(t, svc)
	st, err := svc.UploadStats(context.Background(), owner.ID, res.UploadID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalOrders != 3 || st.CancelledOrders != 2 || st.ActiveOrders != 1 {
		t.Fatalf("unexpected counts %+v", st)
	}
	// 110 + 110 + 21.99
	if !st.TotalComputed.Equal(decimal.RequireFromString("241.99")) {
		t.Fatalf("unexpected computed total %s", st.TotalComputed)
	}
	if len(st.Monthly) != 2 || st.Monthly[0].Month != "2023-01" || st.Monthly[0].Count != 2 {
		t.Fatalf("unexpected monthly breakdown %+v", st.Monthly)
	}
}

func TestDeleteUploadRemovesArchive(t *testing.T) {
	archive := &memArchive{objects: map[string][]byte{}}
	svc := New(storage.NewMemoryStore(), Options{Archive: archive})
	res := ingestSample(t, svc)
	ctx := context.Background()
	if len(archive.objects) != 1 {
		t.Fatalf("expected archived original, got %d objects", len(archive.objects))
	}
	url, err := svc.SourceURL(ctx, owner.ID, res.UploadID, time.Minute)
	if err != nil || !strings.HasSuffix(url, "/vine.csv") {
		t.Fatalf("unexpected source url %q %v", url, err)
	}
	if err := svc.DeleteUpload(ctx, owner.ID, res.UploadID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(archive.objects) != 0 {
		t.Fatalf("archive should be emptied")
	}
	if _, err := svc.OrdersPage(ctx, owner.ID, res.UploadID, model.PageQuery{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestSourceFileReturnsArchivedOriginal(t *testing.T) {
	archive := &memArchive{objects: map[string][]byte{}}
	svc := New(storage.NewMemoryStore(), Options{Archive: archive})
	res := ingestSample(t, svc)
	ctx := context.Background()

	up, data, err := svc.SourceFile(ctx, res.UploadID)
	if err != nil {
		t.Fatalf("source file: %v", err)
	}
	if up.Filename != "vine.csv" || string(data) != sampleCSV {
		t.Fatalf("unexpected original %q (%d bytes)", up.Filename, len(data))
	}

	bare := New(storage.NewMemoryStore(), Options{})
	other := ingestSample(t, bare)
	if _, _, err := bare.SourceFile(ctx, other.UploadID); !errors.Is(err, ErrNoSource) {
		t.Fatalf("expected ErrNoSource without archive, got %v", err)
	}
	if _, _, err := svc.SourceFile(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
