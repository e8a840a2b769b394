// Package export renders tabular data as CSV for spreadsheet handoff.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Column pairs a row key with the header shown in the exported file.
type Column struct {
	Key   string
	Title string
}

// utf8BOM makes Excel detect UTF-8; without it Cyrillic payment labels
// render as mojibake.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSV renders rows under the given columns, prefixed with a UTF-8 BOM.
// Missing keys render as empty cells.
func CSV(columns []Column, rows []map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(utf8BOM)

	w := csv.NewWriter(&buf)

	header := make([]string, len(columns))
	for i, col := range columns {
		header[i] = col.Title
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}

	record := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			record[i] = row[col.Key]
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
