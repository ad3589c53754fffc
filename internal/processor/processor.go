/**
 * Batch Pipeline for the OCR server
 *
 * Orchestrates one upload batch:
 * - Normalize uploads into an ordered list of page images (PDFs rasterized)
 * - OCR every page sequentially, one capability call in flight at a time
 * - Isolate per-page failures into the page's result entry
 * - Publish progress events for UIs that track long batches
 */

package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Aristo-Max/OCR-MVP/internal/errors"
	"github.com/Aristo-Max/OCR-MVP/internal/events"
	"github.com/Aristo-Max/OCR-MVP/internal/logging"
)

// errBatchCancelled is recorded for pages skipped after the request was cancelled
const errBatchCancelled = "batch cancelled"

// PageInvoker extracts text from one page and releases it
type PageInvoker interface {
	Invoke(ctx context.Context, page *PageImage) (string, error)
}

// PipelineConfig holds pipeline configuration
type PipelineConfig struct {
	Normalizer *Normalizer
	Invoker    PageInvoker
	Publisher  events.Publisher // optional
}

// BatchPipeline runs normalization and OCR for a batch of uploads
type BatchPipeline struct {
	normalizer *Normalizer
	invoker    PageInvoker
	publisher  events.Publisher
	logger     *logging.Logger
}

// NewBatchPipeline creates a new batch pipeline
func NewBatchPipeline(cfg *PipelineConfig) (*BatchPipeline, error) {
	if cfg == nil || cfg.Normalizer == nil {
		return nil, fmt.Errorf("normalizer is required")
	}
	if cfg.Invoker == nil {
		return nil, fmt.Errorf("invoker is required")
	}

	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	return &BatchPipeline{
		normalizer: cfg.Normalizer,
		invoker:    cfg.Invoker,
		publisher:  publisher,
		logger:     logging.NewLogger("BatchPipeline"),
	}, nil
}

// NewBatchID returns a fresh batch identifier
func NewBatchID() string {
	return uuid.NewString()
}

// Run processes a batch under a new batch ID
func (p *BatchPipeline) Run(ctx context.Context, files []UploadedFile) (*BatchResult, error) {
	return p.RunBatch(ctx, NewBatchID(), files)
}

// RunBatch processes files in submission order. A normalization failure fails
// the whole batch; OCR failures are recorded per page and never abort it.
// Every page image is released before RunBatch returns.
func (p *BatchPipeline) RunBatch(ctx context.Context, batchID string, files []UploadedFile) (*BatchResult, error) {
	startTime := time.Now()
	p.logger.Info(fmt.Sprintf("[Batch %s] Starting OCR batch", batchID), "files", len(files))
	p.publisher.Publish(ctx, events.Event{Event: events.BatchStarted, BatchID: batchID, Total: len(files)})

	// Step 1: Normalize uploads into page images
	p.logger.Info(fmt.Sprintf("[Batch %s] Step 1: Normalizing uploads", batchID))
	pages, err := p.normalizer.Normalize(ctx, batchID, files)
	if err != nil {
		p.logger.Error(fmt.Sprintf("[Batch %s] Normalization failed", batchID), "error", err, "code", string(errors.CodeOf(err)))
		p.publisher.Publish(ctx, batchFailedEvent(batchID, err))
		return nil, err
	}

	// Step 2: OCR each page in order
	p.logger.Info(fmt.Sprintf("[Batch %s] Step 2: Extracting text", batchID), "pages", len(pages))
	result := &BatchResult{
		BatchID: batchID,
		Results: make([]OCRResult, 0, len(pages)),
	}

	for i, page := range pages {
		entry := p.processPage(ctx, batchID, page)
		result.Results = append(result.Results, entry)

		p.publisher.Publish(ctx, events.Event{
			Event:    events.PageCompleted,
			BatchID:  batchID,
			FileName: entry.FileName,
			Index:    i + 1,
			Total:    len(pages),
			Error:    entry.Error,
		})
	}

	succeeded := result.Succeeded()
	p.logger.Info(fmt.Sprintf("[Batch %s] Batch complete", batchID),
		"pages", len(result.Results),
		"succeeded", succeeded,
		"failed", len(result.Results)-succeeded,
		"duration", time.Since(startTime).String())

	p.publisher.Publish(ctx, events.Event{
		Event:     events.BatchCompleted,
		BatchID:   batchID,
		Total:     len(result.Results),
		Succeeded: succeeded,
	})

	return result, nil
}

// processPage turns one page into its result entry
func (p *BatchPipeline) processPage(ctx context.Context, batchID string, page *PageImage) OCRResult {
	if ctx.Err() != nil {
		page.Release()
		return OCRResult{FileName: page.SourceName, Error: errBatchCancelled}
	}

	text, err := p.invoker.Invoke(ctx, page)
	if err != nil {
		p.logger.Warn(fmt.Sprintf("[Batch %s] OCR failed", batchID), "file", page.SourceName, "error", err)
		return OCRResult{FileName: page.SourceName, Error: err.Error()}
	}

	p.logger.Debug(fmt.Sprintf("[Batch %s] OCR complete", batchID), "file", page.SourceName, "textLength", len(text))
	return OCRResult{FileName: page.SourceName, Text: text}
}

// batchFailedEvent carries the error code and details of a ProcessingError
func batchFailedEvent(batchID string, err error) events.Event {
	event := events.Event{Event: events.BatchFailed, BatchID: batchID, Error: err.Error()}
	if pe, ok := errors.AsProcessingError(err); ok {
		event.Code = string(pe.Code)
		event.Details = pe.ToMap()
	}
	return event
}
