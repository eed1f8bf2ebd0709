package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"medorders/internal/domain"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }
func i64Ptr(n int64) *int64   { return &n }

func sampleOrder() domain.Order {
	return domain.Order{
		ID:                 7,
		PatientID:          1,
		PrescriberID:       2,
		ItemName:           strPtr("Wheelchair"),
		ItemQuantity:       intPtr(2),
		OrderCostRaw:       i64Ptr(125050),
		OrderCostToInsurer: i64Ptr(100000),
		ReasonPrescribed:   strPtr("mobility"),
		CreatedAt:          time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC),
		Patient: &domain.Patient{
			ID: 1, MedicalRecordNumber: "MRN-1", FirstName: "John", LastName: "Doe", Age: intPtr(45),
		},
		Prescriber: &domain.Prescriber{
			ID: 2, FirstName: "Jane", LastName: "Smith", NPI: strPtr("9876543210"), ClinicName: strPtr("Northside"),
		},
		Devices: []domain.OrderDevice{
			{DeviceID: 3, Quantity: 2, Device: &domain.Device{ID: 3, Name: "Wheelchair", SKU: strPtr("WC-100")}},
			{DeviceID: 4, Quantity: 1, Device: &domain.Device{ID: 4, Name: "Cushion"}},
		},
	}
}

func TestCSVWriter_HeaderAndRows(t *testing.T) {
	var buf bytes.Buffer
	w := NewCSVWriter(&buf)
	require.NoError(t, w.WriteHeader())
	require.NoError(t, w.WriteOrders([]domain.Order{sampleOrder()}))
	w.Flush()
	require.NoError(t, w.Error())

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	header, row := records[0], records[1]
	assert.Len(t, header, 16)
	assert.Equal(t, "Order ID", header[0])
	assert.Equal(t, "Reason Prescribed", header[15])

	assert.Equal(t, "7", row[0])
	assert.Equal(t, "2025-03-01T09:30:00Z", row[1])
	assert.Equal(t, "MRN-1", row[2])
	assert.Equal(t, "45", row[5])
	assert.Equal(t, "9876543210", row[8])
	assert.Equal(t, "Northside", row[9])
	assert.Equal(t, "Wheelchair (WC-100) x 2; Cushion x 1", row[12])
	assert.Equal(t, "1250.50", row[13])
	assert.Equal(t, "1000.00", row[14])
	assert.Equal(t, "mobility", row[15])
}

func TestCSVWriter_OrderWithoutParties(t *testing.T) {
	o := domain.Order{ID: 1, CreatedAt: time.Now(), Devices: []domain.OrderDevice{{DeviceID: 9, Quantity: 1}}}

	row := orderToRow(&o)

	assert.Len(t, row, len(columns))
	assert.Empty(t, row[2])
	assert.Empty(t, row[8])
	assert.Empty(t, row[13])
	assert.Equal(t, "9 x 1", row[12])
}

func TestXLSXWriter_Workbook(t *testing.T) {
	w, err := NewXLSXWriter()
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.WriteHeader())
	require.NoError(t, w.WriteOrders([]domain.Order{sampleOrder()}))

	var buf bytes.Buffer
	_, err = w.WriteTo(&buf)
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheetName}, f.GetSheetList())
	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Order ID", rows[0][0])
	assert.Equal(t, "7", rows[1][0])
	assert.Equal(t, "MRN-1", rows[1][2])
	assert.Equal(t, "1250.50", rows[1][13])
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatCSV, false},
		{"CSV", FormatCSV, false},
		{" xlsx ", FormatXLSX, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"March Orders", "March_Orders"},
		{"a//b??c", "a_b_c"},
		{"__x__", "x"},
		{"ok-name_1", "ok-name_1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.input))
	}
}

func TestBuildFilename(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "orders_2025-03-01.xlsx", BuildFilename("", FormatXLSX, now))
	assert.Equal(t, "March_2025-03-01.csv", BuildFilename("March", FormatCSV, now))
}
