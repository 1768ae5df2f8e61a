package sheet

import (
	"bytes"
	"fmt"

	"github.com/extrame/xls"
)

// xlsWorkbook reads legacy BIFF files. The reader only exposes formatted
// strings, so every cell comes back as text.
type xlsWorkbook struct {
	book *xls.WorkBook
	// sheets maps sheet name to its index in the book.
	sheets map[string]int
	names  []string
}

func openXLS(data []byte) (wb Workbook, err error) {
	defer func() {
		// The BIFF parser panics on some malformed inputs.
		if r := recover(); r != nil {
			wb, err = nil, fmt.Errorf("open xls: %v", r)
		}
	}()
	book, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open xls: %w", err)
	}
	out := &xlsWorkbook{book: book, sheets: make(map[string]int)}
	for i := 0; i < book.NumSheets(); i++ {
		s := book.GetSheet(i)
		if s == nil {
			continue
		}
		out.sheets[s.Name] = i
		out.names = append(out.names, s.Name)
	}
	if len(out.names) == 0 {
		return nil, ErrNoSheets
	}
	return out, nil
}

func (w *xlsWorkbook) SheetNames() []string {
	return w.names
}

func (w *xlsWorkbook) Rows(sheetName string) ([][]any, error) {
	idx, ok := w.sheets[sheetName]
	if !ok {
		return nil, fmt.Errorf("sheet %q not found", sheetName)
	}
	s := w.book.GetSheet(idx)
	var rows [][]any
	for i := 0; i <= int(s.MaxRow); i++ {
		r := s.Row(i)
		if r == nil {
			rows = append(rows, nil)
			continue
		}
		row := make([]any, 0, r.LastCol())
		for c := 0; c < r.LastCol(); c++ {
			row = append(row, r.Col(c))
		}
		rows = append(rows, trimTrailingBlanks(row))
	}
	return rows, nil
}

func (w *xlsWorkbook) Close() error {
	return nil
}
