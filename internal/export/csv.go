package export

import (
	"encoding/csv"
	"io"

	"medorders/internal/domain"
)

// BOM is the UTF-8 byte order mark Excel on Windows needs to detect UTF-8.
var BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVWriter wraps csv.Writer for exporting orders.
type CSVWriter struct {
	csv *csv.Writer
}

// NewCSVWriter creates a CSVWriter that writes to w.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{csv: csv.NewWriter(w)}
}

// WriteHeader writes the header row.
func (w *CSVWriter) WriteHeader() error {
	return w.csv.Write(columns)
}

// WriteOrders converts a batch of orders to rows and writes them.
func (w *CSVWriter) WriteOrders(orders []domain.Order) error {
	for i := range orders {
		if err := w.csv.Write(orderToRow(&orders[i])); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes the underlying csv.Writer buffer.
func (w *CSVWriter) Flush() {
	w.csv.Flush()
}

// Error returns any error from the underlying csv.Writer.
func (w *CSVWriter) Error() error {
	return w.csv.Error()
}
