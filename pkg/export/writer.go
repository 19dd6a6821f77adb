package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
)

// Format is a download format.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat returns the format named by s (case-insensitive).
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (want csv or json)", s)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}

// Filename returns the download name for a listing, e.g. "export-insights.csv".
func (f Format) Filename(listing string) string {
	return "export-" + listing + "." + string(f)
}

// Write writes rows in format f.
func Write(w io.Writer, f Format, rows []*Row) error {
	if f == FormatCSV {
		return WriteCSV(w, rows)
	}
	return WriteJSON(w, rows)
}

// Columns returns the union of the row keys in first-seen order.
func Columns(rows []*Row) []string {
	seen := make(map[string]struct{})
	var cols []string
	for _, row := range rows {
		for _, key := range row.Keys() {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			cols = append(cols, key)
		}
	}
	return cols
}

// WriteCSV writes a header line and one flattened line per row.
// Missing cells are empty. No rows produce no output.
func WriteCSV(w io.Writer, rows []*Row) error {
	if len(rows) == 0 {
		return nil
	}

	cols := Columns(rows)
	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	record := make([]string, len(cols))
	for i, row := range rows {
		for j, col := range cols {
			value, _ := row.Get(col)
			record[j] = Flatten(value)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteJSON writes rows as an indented JSON array.
func WriteJSON(w io.Writer, rows []*Row) error {
	if rows == nil {
		rows = []*Row{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}
