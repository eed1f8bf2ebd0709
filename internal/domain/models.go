package domain

import "time"

// RawDocument is an uploaded file held in memory for the duration of a
// pipeline run. It is never persisted.
type RawDocument struct {
	Filename  string
	MediaType string
	Bytes     []byte
}

// ExtractedText is the text a document yielded, either directly or via OCR.
type ExtractedText struct {
	Text   string     `json:"text"`
	Source TextSource `json:"source"`
	Pages  int        `json:"pages"`
}

// ParsedPatient is the patient section of a model extraction.
type ParsedPatient struct {
	FirstName           string  `json:"first_name"`
	LastName            string  `json:"last_name"`
	MedicalRecordNumber *string `json:"medical_record_number"`
	Age                 *int    `json:"age"`
}

// ParsedPrescriber is the prescriber section of a model extraction.
type ParsedPrescriber struct {
	FirstName     string  `json:"first_name"`
	LastName      string  `json:"last_name"`
	NPI           *string `json:"npi"`
	PhoneNumber   *string `json:"phone_number"`
	Email         *string `json:"email"`
	ClinicName    *string `json:"clinic_name"`
	ClinicAddress *string `json:"clinic_address"`
}

// ParsedDevice is a single device line of a model extraction.
type ParsedDevice struct {
	Name     string  `json:"name"`
	SKU      *string `json:"sku"`
	Quantity int     `json:"quantity"`
}

// ParsedOrderData is the structured result of extracting an order from text.
// Monetary amounts are integer cents.
type ParsedOrderData struct {
	Patient            *ParsedPatient    `json:"patient"`
	Prescriber         *ParsedPrescriber `json:"prescriber"`
	Devices            []ParsedDevice    `json:"devices"`
	ItemName           *string           `json:"item_name"`
	ItemQuantity       *int              `json:"item_quantity"`
	OrderCostRaw       *int64            `json:"order_cost_raw"`
	OrderCostToInsurer *int64            `json:"order_cost_to_insurer"`
	ReasonPrescribed   *string           `json:"reason_prescribed"`
	ConfidenceScore    *float64          `json:"confidence_score,omitempty"`
	ExtractionNotes    string            `json:"extraction_notes,omitempty"`
	TextSource         TextSource        `json:"text_source,omitempty"`
}

// Patient is a persisted patient, unique by medical record number.
type Patient struct {
	ID                  int64     `db:"id" json:"id"`
	MedicalRecordNumber string    `db:"medical_record_number" json:"medical_record_number"`
	FirstName           string    `db:"first_name" json:"first_name"`
	LastName            string    `db:"last_name" json:"last_name"`
	Age                 *int      `db:"age" json:"age"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

// Prescriber is a persisted prescriber, unique by NPI when one is known.
type Prescriber struct {
	ID            int64     `db:"id" json:"id"`
	NPI           *string   `db:"npi" json:"npi"`
	FirstName     string    `db:"first_name" json:"first_name"`
	LastName      string    `db:"last_name" json:"last_name"`
	PhoneNumber   *string   `db:"phone_number" json:"phone_number"`
	Email         *string   `db:"email" json:"email"`
	ClinicName    *string   `db:"clinic_name" json:"clinic_name"`
	ClinicAddress *string   `db:"clinic_address" json:"clinic_address"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Device is a persisted device, unique by SKU when one is known.
type Device struct {
	ID                    int64     `db:"id" json:"id"`
	SKU                   *string   `db:"sku" json:"sku"`
	Name                  string    `db:"name" json:"name"`
	Details               *string   `db:"details" json:"details"`
	AuthorizationRequired bool      `db:"authorization_required" json:"authorization_required"`
	CostPerUnit           *int64    `db:"cost_per_unit" json:"cost_per_unit"`
	DeviceType            *string   `db:"device_type" json:"device_type"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
}

// OrderDevice links a device to an order with a quantity.
type OrderDevice struct {
	DeviceID int64   `db:"device_id" json:"device_id"`
	Quantity int     `db:"quantity" json:"quantity"`
	Device   *Device `db:"-" json:"device,omitempty"`
}

// Order is a persisted medical order.
type Order struct {
	ID                 int64         `db:"id" json:"id"`
	PatientID          int64         `db:"patient_id" json:"patient_id"`
	PrescriberID       int64         `db:"prescriber_id" json:"prescriber_id"`
	ItemName           *string       `db:"item_name" json:"item_name"`
	ItemQuantity       *int          `db:"item_quantity" json:"item_quantity"`
	OrderCostRaw       *int64        `db:"order_cost_raw" json:"order_cost_raw"`
	OrderCostToInsurer *int64        `db:"order_cost_to_insurer" json:"order_cost_to_insurer"`
	ReasonPrescribed   *string       `db:"reason_prescribed" json:"reason_prescribed"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	Devices            []OrderDevice `db:"-" json:"devices"`
	Patient            *Patient      `db:"-" json:"patient,omitempty"`
	Prescriber         *Prescriber   `db:"-" json:"prescriber,omitempty"`
}

// DuplicateWarning flags an existing order that looks like the one being
// created. Warnings are advisory and never block persistence.
type DuplicateWarning struct {
	OrderID          int64     `json:"order_id"`
	ItemName         *string   `json:"item_name"`
	ItemQuantity     *int      `json:"item_quantity"`
	ReasonPrescribed *string   `json:"reason_prescribed"`
	CreatedAt        time.Time `json:"created_at"`
	SimilarityScore  int       `json:"similarity_score"`
	Reasons          []string  `json:"reasons"`
}

// OrderPersistResult is returned by every operation that stores an order.
type OrderPersistResult struct {
	Order             *Order             `json:"order"`
	DuplicateWarnings []DuplicateWarning `json:"duplicate_warnings"`
	HasDuplicates     bool               `json:"has_duplicates"`
}
