package ingest

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dharsanguruparan/VineLedger/internal/sheet"
)

// dateLayouts are tried in order for textual dates.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"01/02/2006 15:04:05",
	"1/2/2006 15:04",
	"Jan 2, 2006",
	"January 2, 2006",
	"Mon Jan 2 2006",
	"2 Jan 2006",
	"02-Jan-2006",
	"02-Jan-06",
}

// coerceDate returns the calendar date of a cell, or nil when it has none.
// Numbers are spreadsheet serials, as is numeric text from readers that only
// report strings (legacy xls, csv); other strings are parsed leniently.
func coerceDate(cell any) *time.Time {
	switch v := cell.(type) {
	case float64:
		d := sheet.SerialToDate(v)
		return &d
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			d := sheet.SerialToDate(f)
			return &d
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
				return &d
			}
		}
	}
	return nil
}

var currencyReplacer = strings.NewReplacer("$", "", ",", "")

// coerceMoney returns the amount held by a cell. Strings lose every "$" and
// "," before parsing; anything unparseable is null.
func coerceMoney(cell any) decimal.NullDecimal {
	switch v := cell.(type) {
	case float64:
		return decimal.NewNullDecimal(decimal.NewFromFloat(v))
	case string:
		s := strings.TrimSpace(currencyReplacer.Replace(v))
		if s == "" {
			return decimal.NullDecimal{}
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(d)
	}
	return decimal.NullDecimal{}
}
