// Package sheet reads uploaded spreadsheets into header-keyed records.
//
// Cells keep the type the file stored them with: numbers come back as float64
// and everything else as string, so callers can tell a date serial from a
// formatted date.
package sheet

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// EmptyHeaderPrefix names columns whose header cell is blank. The first blank
// column is "__EMPTY", the next "__EMPTY_1" and so on.
const EmptyHeaderPrefix = "__EMPTY"

var (
	// ErrNoSheets is returned for workbooks without any worksheet.
	ErrNoSheets = errors.New("workbook has no sheets")
)

// Record maps header text to a cell value (float64 or string).
type Record map[string]any

// Workbook is a parsed spreadsheet file.
type Workbook interface {
	// SheetNames returns the worksheet names in file order.
	SheetNames() []string
	// Rows returns every row of the sheet. Trailing blank cells may be omitted.
	Rows(sheet string) ([][]any, error)
	Close() error
}

// Open parses data as a workbook. The filename extension picks the reader;
// unknown extensions try xlsx and then legacy xls.
func Open(data []byte, filename string) (Workbook, error) {
	if len(data) == 0 {
		return nil, errors.New("empty file")
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return openCSV(data)
	case ".xls":
		return openXLS(data)
	}
	wb, err := openXLSX(data)
	if err == nil {
		return wb, nil
	}
	if legacy, xlsErr := openXLS(data); xlsErr == nil {
		return legacy, nil
	}
	return nil, err
}

// FirstUsedRow asks Records to take the first row holding any value as the
// header, skipping blank rows above the table.
const FirstUsedRow = -1

// Records parses the sheet using row headerRow (0-based, or FirstUsedRow) as
// column names and returns every non-blank row below it.
func Records(wb Workbook, sheetName string, headerRow int) ([]Record, error) {
	rows, err := wb.Rows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheetName, err)
	}
	if headerRow == FirstUsedRow {
		headerRow = firstUsed(rows)
	}
	if headerRow < 0 || headerRow >= len(rows) {
		return nil, nil
	}
	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	headers := headerNames(rows[headerRow], width)
	var out []Record
	for _, row := range rows[headerRow+1:] {
		rec := make(Record, len(row))
		for i, cell := range row {
			if isBlank(cell) {
				continue
			}
			rec[headers[i]] = cell
		}
		if len(rec) == 0 {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func firstUsed(rows [][]any) int {
	for i, row := range rows {
		for _, cell := range row {
			if !isBlank(cell) {
				return i
			}
		}
	}
	return -1
}

func headerNames(row []any, width int) []string {
	names := make([]string, width)
	seen := make(map[string]int, width)
	empty := 0
	for i := 0; i < width; i++ {
		var name string
		if i < len(row) {
			name = strings.TrimSpace(Text(row[i]))
		}
		if name == "" {
			if empty == 0 {
				name = EmptyHeaderPrefix
			} else {
				name = EmptyHeaderPrefix + "_" + strconv.Itoa(empty)
			}
			empty++
		} else if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = name + "_" + strconv.Itoa(n+1)
		}
		seen[name] = 0
		names[i] = name
	}
	return names
}

// Text renders a cell as a string. Whole numbers lose their decimal point so
// numeric order numbers read back the way they were typed.
func Text(cell any) string {
	switch v := cell.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func isBlank(cell any) bool {
	s, ok := cell.(string)
	return cell == nil || (ok && strings.TrimSpace(s) == "")
}

var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// SerialToDate converts a spreadsheet date serial to a calendar date. Day 0
// is 1899-12-30 and the fractional (time of day) part is dropped.
func SerialToDate(serial float64) time.Time {
	return serialEpoch.AddDate(0, 0, int(math.Floor(serial)))
}

// numericCell turns a raw cell string into float64 when it is a plain number.
func numericCell(raw string) (any, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	return f, true
}

func trimTrailingBlanks(row []any) []any {
	end := len(row)
	for end > 0 && isBlank(row[end-1]) {
		end--
	}
	return row[:end]
}
