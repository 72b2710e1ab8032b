// internal/export/csv.go
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/OmkarPadhy/AQI-Dashboard/internal/data"
)

var ErrNoReadings = errors.New("no readings to export")

// Columns returns the export columns: the first reading's quantities in name order.
// Later readings reporting other quantities do not add columns.
func Columns(readings []data.Reading) []data.Quantity {
	if len(readings) == 0 {
		return nil
	}
	return readings[0].Quantities()
}

func header(cols []data.Quantity) []string {
	h := make([]string, 0, len(cols)+2)
	h = append(h, "timestamp", "device_id")
	for _, q := range cols {
		h = append(h, string(q))
	}
	return h
}

func formatValue(r data.Reading, q data.Quantity) string {
	v, ok := r.Value(q)
	if !ok {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteCSV writes one row per reading. Missing values are empty cells.
func WriteCSV(w io.Writer, readings []data.Reading) error {
	if len(readings) == 0 {
		return ErrNoReadings
	}
	cols := Columns(readings)

	cw := csv.NewWriter(w)
	if err := cw.Write(header(cols)); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range readings {
		row := make([]string, 0, len(cols)+2)
		row = append(row, r.Timestamp.UTC().Format(time.RFC3339), r.DeviceID)
		for _, q := range cols {
			row = append(row, formatValue(r, q))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Filename builds a download name like readings_20240101T100000Z.csv.
func Filename(ext string, at time.Time) string {
	return fmt.Sprintf("readings_%s.%s", at.UTC().Format("20060102T150405Z"), ext)
}
