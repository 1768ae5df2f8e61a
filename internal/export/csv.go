// Package export renders an upload's orders as CSV.
package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dharsanguruparan/VineLedger/internal/model"
)

// Header is the column order of the export.
var Header = []string{
	"Order Number",
	"Order Date",
	"Order Type",
	"ASIN",
	"Product Name",
	"Amazon ETV",
	"Computed Value",
	"User FMV",
	"User Notes",
	"Cancelled",
}

// WriteCSV writes the header and one line per view. Product name and notes
// are always quoted; other fields are quoted only when they need it.
func WriteCSV(w io.Writer, views []model.OrderView) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(strings.Join(Header, ",")); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, v := range views {
		notes := ""
		if v.UserNotes != nil {
			notes = *v.UserNotes
		}
		fields := []string{
			field(v.OrderNumber),
			formatDate(v.OrderDate),
			field(v.OrderType),
			field(v.ASIN),
			quote(v.ProductName),
			money(v.EstimatedValue),
			money(v.ComputedValue),
			money(v.UserValue),
			quote(notes),
			yesNo(v.Cancelled),
		}
		if _, err := bw.WriteString("\n" + strings.Join(fields, ",")); err != nil {
			return fmt.Errorf("write order %s: %w", v.ID, err)
		}
	}
	return bw.Flush()
}

// Filename is the download name for an export of the given upload.
func Filename(uploadFilename string, now time.Time) string {
	return fmt.Sprintf("vine-orders-%s-%s.csv", uploadFilename, now.UTC().Format("2006-01-02"))
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func field(s string) string {
	if strings.ContainsAny(s, ",\"\r\n") {
		return quote(s)
	}
	return s
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

func money(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
