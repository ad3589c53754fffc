//go:build !ocr

package processor

import (
	"context"
	"errors"
)

// ErrOCRNotEnabled is returned when the Tesseract provider is selected in a
// binary built without the ocr tag.
var ErrOCRNotEnabled = errors.New("tesseract OCR support not enabled; rebuild with -tags ocr")

// TesseractOCR is a placeholder when built without the ocr tag
type TesseractOCR struct{}

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	Language string
}

// NewTesseractOCR returns ErrOCRNotEnabled
func NewTesseractOCR(cfg *TesseractConfig) (*TesseractOCR, error) {
	return nil, ErrOCRNotEnabled
}

// Name returns the provider name
func (t *TesseractOCR) Name() string {
	return "tesseract"
}

// ExtractText returns ErrOCRNotEnabled
func (t *TesseractOCR) ExtractText(ctx context.Context, image []byte, mimeType string, instruction string) (string, error) {
	return "", ErrOCRNotEnabled
}
