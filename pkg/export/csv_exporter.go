package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// CSVExporter renders tabular exports. Every record must match the header
// width; the exporter refuses ragged rows rather than emitting broken CSV.
type CSVExporter struct{}

// NewCSVExporter returns a stateless CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render encodes the header plus records as CSV bytes.
func (e *CSVExporter) Render(headers []string, records [][]string) ([]byte, error) {
	width := len(headers)
	if width == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	for i, record := range records {
		if len(record) != width {
			return nil, fmt.Errorf("csv record %d has %d fields, want %d", i, len(record), width)
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, headers)
	rows = append(rows, records...)
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("encode csv: %w", err)
	}
	return buf.Bytes(), nil
}
