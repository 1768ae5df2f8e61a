package sheet

import (
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

func buildXLSX(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for r, row := range rows {
		for c, v := range row {
			if v == nil {
				continue
			}
			ref, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := f.SetCellValue("Sheet1", ref, v); err != nil {
				t.Fatalf("set cell %s: %v", ref, err)
			}
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func TestRecordsKeepsCellTypes(t *testing.T) {
	data := buildXLSX(t, [][]any{
		{"Order Number", "Order Date", "ASIN", "Estimated Tax Value"},
		{"112-0001", 44927, "B000TEST", "$1,234.56"},
		{},
		{"112-0002", 44928.75, "B000OTHER", 12.5},
	})
	wb, err := Open(data, "report.xlsx")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer wb.Close()
	recs, err := Records(wb, wb.SheetNames()[0], 0)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected blank row to be skipped, got %d records", len(recs))
	}
	if got, ok := recs[0]["Order Date"].(float64); !ok || got != 44927 {
		t.Fatalf("expected numeric serial, got %#v", recs[0]["Order Date"])
	}
	if got, ok := recs[0]["Estimated Tax Value"].(string); !ok || got != "$1,234.56" {
		t.Fatalf("expected currency text, got %#v", recs[0]["Estimated Tax Value"])
	}
	if got, ok := recs[1]["Estimated Tax Value"].(float64); !ok || got != 12.5 {
		t.Fatalf("expected numeric value, got %#v", recs[1]["Estimated Tax Value"])
	}
}

func TestRecordsNamesEmptyHeaders(t *testing.T) {
	data := buildXLSX(t, [][]any{
		{"Amazon Vine Itemized Report 2025"},
		{},
		{"Order Number", "ASIN", "Product Name"},
		{"112-0001", "B000TEST", "Widget"},
	})
	wb, err := Open(data, "report.xlsx")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer wb.Close()
	sheetName := wb.SheetNames()[0]

	plain, err := Records(wb, sheetName, 0)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(plain) != 2 {
		t.Fatalf("expected 2 records under title header, got %d", len(plain))
	}
	first := plain[0]
	for _, key := range []string{"Amazon Vine Itemized Report 2025", "__EMPTY", "__EMPTY_1"} {
		if _, ok := first[key]; !ok {
			t.Fatalf("expected key %q in %v", key, first)
		}
	}

	shifted, err := Records(wb, sheetName, 2)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(shifted) != 1 || shifted[0]["ASIN"] != "B000TEST" {
		t.Fatalf("unexpected shifted records %v", shifted)
	}
}

func TestRecordsFirstUsedRow(t *testing.T) {
	data := buildXLSX(t, [][]any{
		{},
		{},
		{"Order Number", "ASIN"},
		{"112-0001", "B000TEST"},
	})
	wb, err := Open(data, "report.xlsx")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer wb.Close()
	recs, err := Records(wb, wb.SheetNames()[0], FirstUsedRow)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(recs) != 1 || recs[0]["ASIN"] != "B000TEST" || recs[0]["Order Number"] != "112-0001" {
		t.Fatalf("unexpected records %v", recs)
	}

	empty, err := Open([]byte("\n\n"), "blank.csv")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if recs, err := Records(empty, "Sheet1", FirstUsedRow); err != nil || len(recs) != 0 {
		t.Fatalf("expected no records for blank sheet, got %v, %v", recs, err)
	}
}

func TestRecordsHeaderBeyondSheet(t *testing.T) {
	wb, err := Open([]byte("Order Number,ASIN\n"), "orders.csv")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	recs, err := Records(wb, wb.SheetNames()[0], 2)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("expected no records, got %v", recs)
	}
}

func TestOpenCSV(t *testing.T) {
	data := []byte("\xef\xbb\xbfOrder Number,ASIN,Product Name,Order Number\n112-1,B01,\"Big \"\"Deluxe\"\" Kit\",dup\n,,,\n")
	wb, err := Open(data, "orders.csv")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	recs, err := Records(wb, "Sheet1", 0)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0]["Product Name"] != `Big "Deluxe" Kit` {
		t.Fatalf("unexpected product name %q", recs[0]["Product Name"])
	}
	if recs[0]["Order Number_1"] != "dup" {
		t.Fatalf("expected duplicate header suffix, got %v", recs[0])
	}
}

func TestOpenRejectsGarbage(t *testing.T) {
	if _, err := Open([]byte("definitely not a spreadsheet"), "report.xlsx"); err == nil {
		t.Fatalf("expected error for corrupt workbook")
	}
	if _, err := Open(nil, "report.xlsx"); err == nil {
		t.Fatalf("expected error for empty file")
	}
}

func TestSerialToDate(t *testing.T) {
	cases := []struct {
		serial float64
		want   time.Time
	}{
		{44927, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)},
		{44927.99, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)},
		{0, time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)},
		{45658, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		if got := SerialToDate(tc.serial); !got.Equal(tc.want) {
			t.Fatalf("SerialToDate(%v) = %v, want %v", tc.serial, got, tc.want)
		}
	}
}

func TestText(t *testing.T) {
	if got := Text(float64(112000123)); got != "112000123" {
		t.Fatalf("unexpected text %q", got)
	}
	if got := Text(12.5); got != "12.5" {
		t.Fatalf("unexpected text %q", got)
	}
	if got := Text(nil); got != "" {
		t.Fatalf("unexpected text %q", got)
	}
}
