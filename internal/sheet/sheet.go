// Package sheet converts an uploaded workbook into structured row records.
package sheet

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/sheetdrop/apiserver/types"
	"github.com/xuri/excelize/v2"
)

// ErrNoWorksheet is returned for a workbook that contains no sheets.
var ErrNoWorksheet = errors.New("workbook has no worksheets")

// Parse reads the first worksheet of an Excel workbook. The first row
// supplies the column headers; every following row becomes a Row keyed by
// those headers. Blank cells are omitted from their record, and rows with
// no non-blank cells are skipped entirely. A worksheet with no data rows
// yields empty headers as well: the headers belong to the records, so a
// header-only sheet produces nothing. Cell values are the strings the
// library renders for each cell; no extra type inference is applied.
func Parse(data []byte) ([]string, []types.Row, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, ErrNoWorksheet
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read worksheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return []string{}, []types.Row{}, nil
	}

	headers := headerNames(rows[0])
	records := make([]types.Row, 0, len(rows)-1)
	for _, cells := range rows[1:] {
		record := types.Row{}
		for col, header := range headers {
			if col >= len(cells) {
				break
			}
			if value := cells[col]; value != "" {
				record[header] = value
			}
		}
		if len(record) > 0 {
			records = append(records, record)
		}
	}
	if len(records) == 0 {
		return []string{}, records, nil
	}

	return headers, records, nil
}

// headerNames cleans the header row. Blank header cells get a positional
// fallback name so their column data is not silently dropped.
func headerNames(cells []string) []string {
	headers := make([]string, len(cells))
	for i, cell := range cells {
		name := strings.TrimSpace(cell)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		headers[i] = name
	}
	return headers
}
