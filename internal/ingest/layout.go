// Package ingest turns an uploaded spreadsheet into a batch of canonical
// order records and the reference items they mention.
package ingest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dharsanguruparan/VineLedger/internal/sheet"
)

var (
	// ErrUnreadable means the file could not be parsed as a spreadsheet.
	ErrUnreadable = errors.New("unreadable spreadsheet")
	// ErrNoData means layout detection found no data rows.
	ErrNoData = errors.New("no data found in spreadsheet")
)

// IsInputError reports whether err is an input format problem that should be
// shown to the uploader as is.
func IsInputError(err error) bool {
	return errors.Is(err, ErrUnreadable) || errors.Is(err, ErrNoData)
}

// Layout is a known arrangement of the header row.
type Layout int

const (
	// LayoutPlain has the header in the first used row and data below it.
	LayoutPlain Layout = iota
	// LayoutItemizedReport is Amazon's export: a title in row 1, a blank
	// row 2, the header in row 3 and data from row 4. The rows are counted
	// from the top of the sheet.
	LayoutItemizedReport
)

const itemizedReportTitle = "Itemized Report"

type layoutSpec struct {
	name      string
	headerRow int
	// matches inspects the keys of the first record parsed with the plain
	// layout and reports whether the sheet actually uses this layout.
	matches func(keys []string) bool
}

var layouts = map[Layout]layoutSpec{
	LayoutPlain: {
		name:      "plain",
		headerRow: sheet.FirstUsedRow,
		matches:   func([]string) bool { return true },
	},
	LayoutItemizedReport: {
		name:      "itemized-report",
		headerRow: 2,
		matches: func(keys []string) bool {
			for _, k := range keys {
				if strings.HasPrefix(k, sheet.EmptyHeaderPrefix) || strings.Contains(k, itemizedReportTitle) {
					return true
				}
			}
			return false
		},
	},
}

// detectionOrder lists the alternate layouts tried before falling back to
// LayoutPlain.
var detectionOrder = []Layout{LayoutItemizedReport}

func (l Layout) String() string {
	if spec, ok := layouts[l]; ok {
		return spec.name
	}
	return fmt.Sprintf("layout(%d)", int(l))
}

// HeaderRow is the 0-based index of the header row, or sheet.FirstUsedRow.
func (l Layout) HeaderRow() int {
	return layouts[l].headerRow
}

// Detect parses the first sheet of wb and returns its records using the
// header row of the detected layout.
func Detect(wb sheet.Workbook) (Layout, []sheet.Record, error) {
	names := wb.SheetNames()
	if len(names) == 0 {
		return LayoutPlain, nil, fmt.Errorf("%w: %v", ErrUnreadable, sheet.ErrNoSheets)
	}
	first := names[0]
	records, err := sheet.Records(wb, first, LayoutPlain.HeaderRow())
	if err != nil {
		return LayoutPlain, nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	layout := LayoutPlain
	if len(records) > 0 {
		keys := make([]string, 0, len(records[0]))
		for k := range records[0] {
			keys = append(keys, k)
		}
		for _, candidate := range detectionOrder {
			if !layouts[candidate].matches(keys) {
				continue
			}
			layout = candidate
			records, err = sheet.Records(wb, first, candidate.HeaderRow())
			if err != nil {
				return layout, nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
			}
			break
		}
	}
	if len(records) == 0 {
		return layout, nil, ErrNoData
	}
	return layout, records, nil
}
