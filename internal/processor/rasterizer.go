/**
 * Page Rasterizer - PDF -> ordered page images
 *
 * The pipeline only depends on PageRasterizer. PopplerRasterizer shells out to
 * pdftoppm from poppler-utils.
 */

package processor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/Aristo-Max/OCR-MVP/internal/logging"
)

// PageRasterizer converts a PDF into page images written under outDir
type PageRasterizer interface {
	Rasterize(ctx context.Context, pdfPath string, outDir string) ([]RasterPage, error)
}

// PopplerConfig holds pdftoppm settings
type PopplerConfig struct {
	PdftoppmPath string
	DPI          int
	Format       string // "jpeg" or "png"
}

// PopplerRasterizer renders pages with poppler's pdftoppm
type PopplerRasterizer struct {
	binary string
	dpi    int
	format string
	logger *logging.Logger
}

// NewPopplerRasterizer creates a rasterizer, filling in defaults for empty fields
func NewPopplerRasterizer(cfg *PopplerConfig) *PopplerRasterizer {
	r := &PopplerRasterizer{
		binary: "pdftoppm",
		dpi:    150,
		format: "jpeg",
		logger: logging.NewLogger("Rasterizer"),
	}
	if cfg != nil {
		if cfg.PdftoppmPath != "" {
			r.binary = cfg.PdftoppmPath
		}
		if cfg.DPI > 0 {
			r.dpi = cfg.DPI
		}
		if cfg.Format == "png" {
			r.format = "png"
		}
	}
	return r
}

// Rasterize renders every page of pdfPath into outDir as page-N.<ext>
func (r *PopplerRasterizer) Rasterize(ctx context.Context, pdfPath string, outDir string) ([]RasterPage, error) {
	expected, err := countPDFPages(pdfPath)
	if err != nil {
		// Page count is only a cross-check; pdftoppm copes with files the parser rejects
		r.logger.Warn("Could not read PDF page count, relying on pdftoppm", "path", pdfPath, "error", err)
		expected = 0
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	ext, mimeType := "jpg", mimeJPEG
	if r.format == "png" {
		ext, mimeType = "png", mimePNG
	}

	args := []string{"-" + r.format, "-r", strconv.Itoa(r.dpi), pdfPath, filepath.Join(outDir, "page")}
	cmd := exec.CommandContext(ctx, r.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.RemoveAll(outDir)
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("pdftoppm failed: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("pdftoppm failed: %w", err)
	}

	pages, err := collectRasterPages(outDir, ext, mimeType)
	if err != nil {
		os.RemoveAll(outDir)
		return nil, err
	}

	if len(pages) == 0 {
		os.RemoveAll(outDir)
		return nil, fmt.Errorf("pdftoppm produced no pages for %s", filepath.Base(pdfPath))
	}

	if expected > 0 && len(pages) != expected {
		os.RemoveAll(outDir)
		return nil, fmt.Errorf("pdftoppm produced %d pages, document has %d", len(pages), expected)
	}

	r.logger.Debug("PDF rasterized", "path", pdfPath, "pages", len(pages), "dpi", r.dpi, "format", r.format)
	return pages, nil
}

var pageFilePattern = regexp.MustCompile(`^page-(\d+)\.(jpg|png)$`)

// collectRasterPages lists page-N files in dir sorted by N. pdftoppm zero-pads
// N to the width of the page count, so lexical order is not enough.
func collectRasterPages(dir string, ext string, mimeType string) ([]RasterPage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list rasterized pages: %w", err)
	}

	pages := make([]RasterPage, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := pageFilePattern.FindStringSubmatch(entry.Name())
		if m == nil || m[2] != ext {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		pages = append(pages, RasterPage{
			PageNumber: n,
			Path:       filepath.Join(dir, entry.Name()),
			MimeType:   mimeType,
		})
	}

	sort.Slice(pages, func(i, j int) bool {
		return pages[i].PageNumber < pages[j].PageNumber
	})
	return pages, nil
}

// countPDFPages reads the page tree count. The parser panics on some malformed input.
func countPDFPages(path string) (count int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			count, err = 0, fmt.Errorf("malformed PDF: %v", rec)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	return reader.NumPage(), nil
}
