package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"medorders/internal/domain"
)

const sheetName = "Orders"

// XLSXWriter accumulates orders into a single-sheet workbook.
type XLSXWriter struct {
	f   *excelize.File
	row int
}

// NewXLSXWriter creates a workbook whose only sheet is "Orders".
func NewXLSXWriter() (*XLSXWriter, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("export: rename sheet: %w", err)
	}
	return &XLSXWriter{f: f, row: 1}, nil
}

// WriteHeader writes the bold header row and freezes it.
func (w *XLSXWriter) WriteHeader() error {
	if err := w.writeRow(toAny(columns)); err != nil {
		return err
	}
	style, err := w.f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("export: header style: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(columns), 1)
	if err := w.f.SetCellStyle(sheetName, "A1", last, style); err != nil {
		return fmt.Errorf("export: header style: %w", err)
	}
	return w.f.SetPanes(sheetName, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	})
}

// WriteOrders appends one row per order. IDs, ages and quantities are
// written as numbers so spreadsheets can sort them.
func (w *XLSXWriter) WriteOrders(orders []domain.Order) error {
	for i := range orders {
		o := &orders[i]
		values := toAny(orderToRow(o))
		values[0] = o.ID
		if o.Patient != nil && o.Patient.Age != nil {
			values[5] = *o.Patient.Age
		}
		if o.ItemQuantity != nil {
			values[11] = *o.ItemQuantity
		}
		if err := w.writeRow(values); err != nil {
			return err
		}
	}
	return nil
}

// WriteTo writes the workbook to out.
func (w *XLSXWriter) WriteTo(out io.Writer) (int64, error) {
	_ = w.f.SetColWidth(sheetName, "A", "B", 20)
	_ = w.f.SetColWidth(sheetName, "C", "L", 16)
	_ = w.f.SetColWidth(sheetName, "M", "M", 40)
	_ = w.f.SetColWidth(sheetName, "N", "O", 14)
	_ = w.f.SetColWidth(sheetName, "P", "P", 48)
	n, err := w.f.WriteTo(out)
	if err != nil {
		return n, fmt.Errorf("export: xlsx write: %w", err)
	}
	return n, nil
}

func (w *XLSXWriter) writeRow(values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return err
	}
	if err := w.f.SetSheetRow(sheetName, cell, &values); err != nil {
		return fmt.Errorf("export: row %d: %w", w.row, err)
	}
	w.row++
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// Close releases the workbook.
func (w *XLSXWriter) Close() error {
	return w.f.Close()
}
