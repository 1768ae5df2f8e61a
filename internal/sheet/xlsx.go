package sheet

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

type xlsxWorkbook struct {
	f *excelize.File
}

func openXLSX(data []byte) (Workbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	return &xlsxWorkbook{f: f}, nil
}

func (w *xlsxWorkbook) SheetNames() []string {
	return w.f.GetSheetList()
}

func (w *xlsxWorkbook) Rows(sheetName string) ([][]any, error) {
	// Raw values keep date cells as serial numbers instead of the display
	// format, which is what the date coercion expects.
	raw, err := w.f.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}
	rows := make([][]any, len(raw))
	for r, rawRow := range raw {
		row := make([]any, len(rawRow))
		for c, value := range rawRow {
			row[c] = w.cell(sheetName, r, c, value)
		}
		rows[r] = trimTrailingBlanks(row)
	}
	return rows, nil
}

func (w *xlsxWorkbook) cell(sheetName string, r, c int, value string) any {
	if value == "" {
		return nil
	}
	ref, err := excelize.CoordinatesToCellName(c+1, r+1)
	if err != nil {
		return value
	}
	typ, err := w.f.GetCellType(sheetName, ref)
	if err != nil {
		return value
	}
	switch typ {
	case excelize.CellTypeUnset, excelize.CellTypeNumber, excelize.CellTypeDate, excelize.CellTypeFormula:
		if n, ok := numericCell(value); ok {
			return n
		}
	}
	return value
}

func (w *xlsxWorkbook) Close() error {
	return w.f.Close()
}
