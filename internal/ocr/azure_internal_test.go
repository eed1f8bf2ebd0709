package ocr

import (
	"testing"

	"github.com/Azure/azure-sdk-for-go/services/cognitiveservices/v3.0/computervision"
	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestOCRResultText(t *testing.T) {
	words := func(ws ...string) *[]computervision.OcrWord {
		out := make([]computervision.OcrWord, len(ws))
		for i, w := range ws {
			out[i] = computervision.OcrWord{Text: strPtr(w)}
		}
		return &out
	}
	result := computervision.OcrResult{
		Regions: &[]computervision.OcrRegion{
			{Lines: &[]computervision.OcrLine{
				{Words: words("Patient:", "John", "Doe")},
				{Words: words("MRN", "12345")},
			}},
			{Lines: &[]computervision.OcrLine{{Words: words("NPI", "1234567890")}}},
		},
	}

	assert.Equal(t, "Patient: John Doe\nMRN 12345\nNPI 1234567890", ocrResultText(result))
	assert.Equal(t, "", ocrResultText(computervision.OcrResult{}))
}
