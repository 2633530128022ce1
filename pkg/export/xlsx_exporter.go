package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "Deliverables"

// XLSXExporter renders datasets into a single-sheet workbook: summary block on top, table below.
type XLSXExporter struct{}

// NewXLSXExporter constructs an XLSX exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

// ContentType reports the MIME type of rendered files.
func (e *XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Extension reports the file extension of rendered files.
func (e *XLSXExporter) Extension() string { return "xlsx" }

// Render writes the dataset into an in-memory workbook.
func (e *XLSXExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("xlsx requires at least one header")
	}
	file := excelize.NewFile()
	defer file.Close() //nolint:errcheck

	if err := file.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	set := func(col, row int, value interface{}) error {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}
		return file.SetCellValue(xlsxSheet, cell, value)
	}

	row := 1
	if data.Title != "" {
		if err := set(1, row, data.Title); err != nil {
			return nil, fmt.Errorf("write title: %w", err)
		}
		row += 2
	}
	for _, pair := range data.Summary {
		if err := set(1, row, pair[0]); err != nil {
			return nil, fmt.Errorf("write summary: %w", err)
		}
		if err := set(2, row, pair[1]); err != nil {
			return nil, fmt.Errorf("write summary: %w", err)
		}
		row++
	}
	if len(data.Summary) > 0 {
		row++
	}

	for i, header := range data.Headers {
		if err := set(i+1, row, header); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}
	for _, record := range data.Rows {
		row++
		for i, header := range data.Headers {
			if err := set(i+1, row, record[header]); err != nil {
				return nil, fmt.Errorf("write row: %w", err)
			}
		}
	}

	lastCol, err := excelize.ColumnNumberToName(len(data.Headers))
	if err != nil {
		return nil, err
	}
	_ = file.SetColWidth(xlsxSheet, "A", lastCol, 20)

	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
