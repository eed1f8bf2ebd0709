package ocr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/services/cognitiveservices/v3.0/computervision"
	"github.com/Azure/go-autorest/autorest"
)

// AzureRecognizer recognizes page images with Azure Computer Vision OCR.
type AzureRecognizer struct {
	client *computervision.BaseClient
}

// NewAzureRecognizer creates a recognizer for the given Cognitive Services
// endpoint and key.
func NewAzureRecognizer(endpoint, apiKey string) *AzureRecognizer {
	client := computervision.New(endpoint)
	client.Authorizer = autorest.NewCognitiveServicesAuthorizer(apiKey)
	return &AzureRecognizer{client: &client}
}

// RecognizePage uploads the image and returns its lines in reading order.
func (a *AzureRecognizer) RecognizePage(ctx context.Context, imagePath string) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("azure.RecognizePage: read image: %w", err)
	}

	result, err := a.client.RecognizePrintedTextInStream(
		ctx,
		true,
		io.NopCloser(bytes.NewReader(data)),
		computervision.OcrLanguages(computervision.En),
	)
	if err != nil {
		return "", fmt.Errorf("azure.RecognizePage: %w", err)
	}
	return ocrResultText(result), nil
}

func ocrResultText(result computervision.OcrResult) string {
	if result.Regions == nil {
		return ""
	}
	var lines []string
	for _, region := range *result.Regions {
		if region.Lines == nil {
			continue
		}
		for _, line := range *region.Lines {
			if line.Words == nil {
				continue
			}
			words := make([]string, 0, len(*line.Words))
			for _, word := range *line.Words {
				if word.Text != nil {
					words = append(words, *word.Text)
				}
			}
			if len(words) > 0 {
				lines = append(lines, strings.Join(words, " "))
			}
		}
	}
	return strings.Join(lines, "\n")
}
