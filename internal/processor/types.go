/**
 * OCR Types - Shared data structures for the batch pipeline
 *
 * UploadedFile -> PageImage -> OCRResult, in that order.
 */

package processor

import (
	"os"
	"sync"
)

// UploadedFile is one file from a request, already written to the request's temp directory
type UploadedFile struct {
	Path         string
	MimeType     string // as declared by the client
	OriginalName string
	Size         int64
}

// PageImage is one unit of OCR work
type PageImage struct {
	Path       string
	MimeType   string
	SourceName string // original name, or "<original> - page <n>" for PDF pages

	// ConversionErr is set instead of Path when the source PDF could not be
	// rasterized and the normalizer isolates conversion failures.
	ConversionErr error

	once       sync.Once
	releaseErr error
}

// Release deletes the backing file. Only the first call touches the filesystem.
func (p *PageImage) Release() error {
	p.once.Do(func() {
		if p.Path == "" {
			return
		}
		if err := os.Remove(p.Path); err != nil && !os.IsNotExist(err) {
			p.releaseErr = err
		}
	})
	return p.releaseErr
}

// OCRResult is the outcome for one PageImage. Error set implies Text is empty.
type OCRResult struct {
	FileName string `json:"fileName"`
	Text     string `json:"text"`
	Error    string `json:"error,omitempty"`
}

// BatchResult holds one OCRResult per PageImage, in generation order
type BatchResult struct {
	BatchID string      `json:"-"`
	Results []OCRResult `json:"results"`
}

// Succeeded counts entries without an error
func (b *BatchResult) Succeeded() int {
	n := 0
	for _, r := range b.Results {
		if r.Error == "" {
			n++
		}
	}
	return n
}

// RasterPage is one rendered page produced by a PageRasterizer
type RasterPage struct {
	PageNumber int
	Path       string
	MimeType   string
}
