//go:build ocr

/**
 * Tesseract OCR - Offline fallback
 *
 * Runs the local Tesseract engine through gosseract. The instruction is
 * ignored: Tesseract transcribes everything it can see, printed or handwritten.
 * Requires libtesseract at build time, hence the ocr build tag.
 */

package processor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/otiai10/gosseract/v2"

	"github.com/Aristo-Max/OCR-MVP/internal/errors"
	"github.com/Aristo-Max/OCR-MVP/internal/logging"
)

// TesseractOCR handles basic OCR using Tesseract
type TesseractOCR struct {
	language string
	logger   *logging.Logger
}

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	Language string // e.g. "eng", "eng+deu"
}

// NewTesseractOCR creates a new Tesseract OCR instance
func NewTesseractOCR(cfg *TesseractConfig) (*TesseractOCR, error) {
	language := "eng"
	if cfg != nil && cfg.Language != "" {
		language = cfg.Language
	}

	return &TesseractOCR{
		language: language,
		logger:   logging.NewLogger("TesseractOCR"),
	}, nil
}

// Name returns the provider name
func (t *TesseractOCR) Name() string {
	return "tesseract"
}

// ExtractText performs OCR using Tesseract. A fresh client per call, gosseract clients are not goroutine safe.
func (t *TesseractOCR) ExtractText(ctx context.Context, image []byte, mimeType string, instruction string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	startTime := time.Now()

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(strings.Split(t.language, "+")...); err != nil {
		return "", errors.NewCapabilityError(t.Name(), fmt.Errorf("failed to set language: %w", err))
	}

	if err := client.SetImageFromBytes(image); err != nil {
		return "", errors.NewCapabilityError(t.Name(), fmt.Errorf("failed to set image: %w", err))
	}

	text, err := client.Text()
	if err != nil {
		return "", errors.NewCapabilityError(t.Name(), fmt.Errorf("tesseract OCR failed: %w", err))
	}

	t.logger.Debug("Tesseract OCR complete",
		"mimeType", mimeType,
		"textLength", len(text),
		"duration", time.Since(startTime).String())

	return strings.TrimSpace(text), nil
}
