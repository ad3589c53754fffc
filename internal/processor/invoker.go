package processor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Aristo-Max/OCR-MVP/internal/errors"
	"github.com/Aristo-Max/OCR-MVP/internal/logging"
)

// InvokerConfig holds OCR invoker configuration
type InvokerConfig struct {
	Extractor         TextExtractor
	Instruction       string
	Timeout           time.Duration // per page, zero disables
	MaxImageDimension int           // longest edge in pixels, zero disables downscaling
}

// Invoker runs one page image through the configured TextExtractor
type Invoker struct {
	extractor   TextExtractor
	instruction string
	timeout     time.Duration
	maxDim      int
	logger      *logging.Logger
}

type extractOutcome struct {
	text string
	err  error
}

// NewInvoker creates a new OCR invoker
func NewInvoker(cfg *InvokerConfig) (*Invoker, error) {
	if cfg == nil || cfg.Extractor == nil {
		return nil, fmt.Errorf("text extractor is required")
	}
	if cfg.Instruction == "" {
		return nil, fmt.Errorf("OCR instruction is required")
	}
	return &Invoker{
		extractor:   cfg.Extractor,
		instruction: cfg.Instruction,
		timeout:     cfg.Timeout,
		maxDim:      cfg.MaxImageDimension,
		logger:      logging.NewLogger("OCRInvoker"),
	}, nil
}

// Provider returns the name of the underlying extractor
func (inv *Invoker) Provider() string {
	return inv.extractor.Name()
}

// Invoke extracts text from one page. The page is released exactly once
// before Invoke returns, whatever the outcome, and Invoke never panics.
func (inv *Invoker) Invoke(ctx context.Context, page *PageImage) (string, error) {
	defer func() {
		if err := page.Release(); err != nil {
			inv.logger.Warn("Failed to delete page image", "file", page.SourceName, "error", err)
		}
	}()

	if page.ConversionErr != nil {
		return "", page.ConversionErr
	}

	data, err := os.ReadFile(page.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read page image: %w", err)
	}

	mimeType := normalizeMimeType(page.MimeType)
	resized, resizedType, ok, err := downscaleImage(data, inv.maxDim)
	if err != nil {
		inv.logger.Warn("Downscaling failed, sending original image", "file", page.SourceName, "error", err)
	} else if ok {
		inv.logger.Debug("Downscaled page image", "file", page.SourceName, "from", len(data), "to", len(resized))
		data, mimeType = resized, resizedType
	}

	callCtx := ctx
	if inv.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, inv.timeout)
		defer cancel()
	}

	// The extractor runs on its own goroutine so a provider that ignores ctx
	// still cannot hold the batch past the deadline.
	done := make(chan extractOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- extractOutcome{err: errors.NewCapabilityError(inv.extractor.Name(), fmt.Errorf("provider panic: %v", r))}
			}
		}()
		text, err := inv.extractor.ExtractText(callCtx, data, mimeType, inv.instruction)
		done <- extractOutcome{text: text, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if ctx.Err() == nil && callCtx.Err() == context.DeadlineExceeded {
				return "", errors.NewProcessingTimeoutError("", inv.timeout, out.err)
			}
			return "", out.err
		}
		return cleanOCRText(out.text), nil

	case <-callCtx.Done():
		if ctx.Err() == nil {
			return "", errors.NewProcessingTimeoutError("", inv.timeout, callCtx.Err())
		}
		return "", fmt.Errorf("OCR cancelled: %w", ctx.Err())
	}
}
