package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Aristo-Max/OCR-MVP/internal/errors"
	"github.com/Aristo-Max/OCR-MVP/internal/logging"
)

// NormalizerConfig holds normalizer configuration
type NormalizerConfig struct {
	Rasterizer PageRasterizer
	// IsolatePDFErrors turns a failed PDF into a single failed entry instead of
	// aborting the whole batch.
	IsolatePDFErrors bool
}

// Normalizer flattens an upload batch into an ordered list of page images
type Normalizer struct {
	rasterizer PageRasterizer
	isolate    bool
	logger     *logging.Logger
}

// NewNormalizer creates a new upload normalizer
func NewNormalizer(cfg *NormalizerConfig) (*Normalizer, error) {
	if cfg == nil || cfg.Rasterizer == nil {
		return nil, fmt.Errorf("rasterizer is required")
	}
	return &Normalizer{
		rasterizer: cfg.Rasterizer,
		isolate:    cfg.IsolatePDFErrors,
		logger:     logging.NewLogger("Normalizer"),
	}, nil
}

// Normalize returns page images in submission order, PDF pages contiguous and ascending.
// In abort mode a conversion failure releases everything produced so far.
func (n *Normalizer) Normalize(ctx context.Context, batchID string, files []UploadedFile) ([]*PageImage, error) {
	pages := make([]*PageImage, 0, len(files))

	for i, file := range files {
		mimeType := resolveMimeType(file)

		switch {
		case isPDF(mimeType):
			rasterized, err := n.rasterizePDF(ctx, batchID, i, file)
			if err != nil {
				convErr := errors.NewConversionError(batchID, file.OriginalName, err)
				if !n.isolate {
					releaseAll(pages)
					return nil, convErr
				}
				n.logger.Warn("PDF conversion failed, isolating file",
					"batch", batchID, "file", file.OriginalName, "error", err)
				os.Remove(file.Path)
				pages = append(pages, &PageImage{SourceName: file.OriginalName, ConversionErr: convErr})
				continue
			}
			pages = append(pages, rasterized...)

		case isImage(mimeType):
			pages = append(pages, &PageImage{
				Path:       file.Path,
				MimeType:   mimeType,
				SourceName: file.OriginalName,
			})

		default:
			unsupported := errors.NewUnsupportedFormatError(batchID, file.OriginalName, file.MimeType)
			n.logger.Warn("Unsupported file type, skipping", unsupportedFields(unsupported)...)
		}
	}

	return pages, nil
}

// rasterizePDF renders one PDF and deletes the original once its pages exist
func (n *Normalizer) rasterizePDF(ctx context.Context, batchID string, index int, file UploadedFile) ([]*PageImage, error) {
	outDir := filepath.Join(filepath.Dir(file.Path), fmt.Sprintf("%s_%d_pages", filepath.Base(file.Path), index))

	raster, err := n.rasterizer.Rasterize(ctx, file.Path, outDir)
	if err != nil {
		return nil, err
	}

	pages := make([]*PageImage, 0, len(raster))
	for i, page := range raster {
		pages = append(pages, &PageImage{
			Path:       page.Path,
			MimeType:   page.MimeType,
			SourceName: fmt.Sprintf("%s - page %d", file.OriginalName, i+1),
		})
	}

	if err := os.Remove(file.Path); err != nil && !os.IsNotExist(err) {
		n.logger.Warn("Failed to delete original PDF", "batch", batchID, "path", file.Path, "error", err)
	}

	n.logger.Info("PDF converted", "batch", batchID, "file", file.OriginalName, "pages", len(pages))
	return pages, nil
}

func unsupportedFields(err *errors.ProcessingError) []interface{} {
	fields := make([]interface{}, 0, 2*len(err.Details)+4)
	fields = append(fields, "batch", err.BatchID, "code", string(err.Code))
	for k, v := range err.Details {
		fields = append(fields, k, v)
	}
	return fields
}

func releaseAll(pages []*PageImage) {
	for _, p := range pages {
		p.Release()
	}
}
