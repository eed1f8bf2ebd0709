// Package export renders stored orders as CSV or XLSX for download.
package export

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"medorders/internal/domain"
)

// Format is a supported export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat maps a query value onto a Format. Empty means CSV.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("export: unsupported format %q", s)
	}
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// columns defines the header row shared by both formats.
var columns = []string{
	"Order ID",
	"Created At",
	"Patient MRN",
	"Patient First Name",
	"Patient Last Name",
	"Patient Age",
	"Prescriber First Name",
	"Prescriber Last Name",
	"Prescriber NPI",
	"Clinic Name",
	"Item Name",
	"Item Quantity",
	"Devices",
	"Order Cost",
	"Cost To Insurer",
	"Reason Prescribed",
}

// orderToRow converts a single order to len(columns) strings. Party columns
// stay empty when the order was loaded without its patient or prescriber.
func orderToRow(o *domain.Order) []string {
	row := make([]string, len(columns))

	row[0] = strconv.FormatInt(o.ID, 10)
	row[1] = o.CreatedAt.UTC().Format(time.RFC3339)
	if p := o.Patient; p != nil {
		row[2] = p.MedicalRecordNumber
		row[3] = p.FirstName
		row[4] = p.LastName
		row[5] = formatInt(p.Age)
	}
	if p := o.Prescriber; p != nil {
		row[6] = p.FirstName
		row[7] = p.LastName
		row[8] = deref(p.NPI)
		row[9] = deref(p.ClinicName)
	}
	row[10] = deref(o.ItemName)
	row[11] = formatInt(o.ItemQuantity)
	row[12] = formatDevices(o.Devices)
	row[13] = formatCents(o.OrderCostRaw)
	row[14] = formatCents(o.OrderCostToInsurer)
	row[15] = deref(o.ReasonPrescribed)

	return row
}

// formatDevices renders lines as "name (SKU) x qty" joined by "; ".
func formatDevices(lines []domain.OrderDevice) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		name := strconv.FormatInt(l.DeviceID, 10)
		if l.Device != nil {
			name = l.Device.Name
			if l.Device.SKU != nil {
				name += " (" + *l.Device.SKU + ")"
			}
		}
		parts = append(parts, fmt.Sprintf("%s x %d", name, l.Quantity))
	}
	return strings.Join(parts, "; ")
}

func formatCents(v *int64) string {
	if v == nil {
		return ""
	}
	return domain.FormatCents(*v)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// nonAlphanumeric matches characters that are not alphanumeric, hyphen, or underscore.
var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// multiUnderscore matches consecutive underscores.
var multiUnderscore = regexp.MustCompile(`_{2,}`)

// SanitizeFilename replaces unsafe characters with _, collapses runs of _
// and truncates to 100 chars.
func SanitizeFilename(name string) string {
	s := nonAlphanumeric.ReplaceAllString(name, "_")
	s = multiUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

// BuildFilename returns {sanitized_base}_{YYYY-MM-DD}.{format} for a
// Content-Disposition header.
func BuildFilename(base string, f Format, now time.Time) string {
	sanitized := SanitizeFilename(base)
	if sanitized == "" {
		sanitized = "orders"
	}
	return fmt.Sprintf("%s_%s.%s", sanitized, now.Format("2006-01-02"), f)
}
