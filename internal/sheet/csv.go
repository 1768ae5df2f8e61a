package sheet

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// csvSheetName is the single sheet exposed by a CSV workbook.
const csvSheetName = "Sheet1"

type csvWorkbook struct {
	rows [][]any
}

func openCSV(data []byte) (Workbook, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	rows := make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(rec))
		for j, v := range rec {
			row[j] = v
		}
		rows[i] = trimTrailingBlanks(row)
	}
	return &csvWorkbook{rows: rows}, nil
}

func (w *csvWorkbook) SheetNames() []string {
	return []string{csvSheetName}
}

func (w *csvWorkbook) Rows(sheetName string) ([][]any, error) {
	if sheetName != csvSheetName {
		return nil, fmt.Errorf("sheet %q not found", sheetName)
	}
	return w.rows, nil
}

func (w *csvWorkbook) Close() error {
	return nil
}
