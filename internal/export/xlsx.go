// internal/export/xlsx.go
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/OmkarPadhy/AQI-Dashboard/internal/data"
)

const sheetName = "Readings"

// WriteXLSX writes the same columns as WriteCSV into a single-sheet workbook.
func WriteXLSX(w io.Writer, readings []data.Reading) (err error) {
	if len(readings) == 0 {
		return ErrNoReadings
	}
	cols := Columns(readings)

	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close workbook: %w", cerr)
		}
	}()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	hdr := header(cols)
	headerRow := make([]interface{}, len(hdr))
	for i, h := range hdr {
		headerRow[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &headerRow); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(hdr), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}
	if err := f.SetColWidth(sheetName, "A", "A", 22); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}

	for i, r := range readings {
		row := make([]interface{}, 0, len(hdr))
		row = append(row, r.Timestamp.UTC(), r.DeviceID)
		for _, q := range cols {
			if v, ok := r.Value(q); ok {
				row = append(row, v)
			} else {
				row = append(row, nil)
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze panes: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
