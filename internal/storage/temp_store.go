/**
 * Temp Store - Per-request upload spill directory
 *
 * Every request gets its own directory under TEMP_DIR named by a UUID, so
 * concurrent batches never collide on file names. The directory and anything
 * left in it are removed when the request ends.
 */

package storage

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/Aristo-Max/OCR-MVP/internal/logging"
)

// TempStore hands out request directories under a root directory
type TempStore struct {
	root   string
	logger *logging.Logger
}

// RequestDir holds the uploads of a single request
type RequestDir struct {
	Path   string
	count  int
	logger *logging.Logger
}

// SavedFile describes an upload written to disk
type SavedFile struct {
	Path         string
	MimeType     string
	OriginalName string
	Size         int64
}

// NewTempStore creates the root directory if needed
func NewTempStore(root string) (*TempStore, error) {
	if root == "" {
		return nil, fmt.Errorf("temp directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	return &TempStore{
		root:   root,
		logger: logging.NewLogger("TempStore"),
	}, nil
}

// Root returns the store's root directory
func (s *TempStore) Root() string {
	return s.root
}

// NewRequestDir creates a fresh, uniquely named directory for one request
func (s *TempStore) NewRequestDir() (*RequestDir, error) {
	path := filepath.Join(s.root, uuid.NewString())
	if err := os.Mkdir(path, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create request directory: %w", err)
	}
	return &RequestDir{Path: path, logger: s.logger}, nil
}

// Save copies a multipart upload into the request directory
func (d *RequestDir) Save(header *multipart.FileHeader) (*SavedFile, error) {
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload %s: %w", header.Filename, err)
	}
	defer f.Close()

	return d.SaveReader(header.Filename, header.Header.Get("Content-Type"), f)
}

// SaveReader writes r to a new file. The on-disk name never derives from
// originalName beyond its extension.
func (d *RequestDir) SaveReader(originalName string, mimeType string, r io.Reader) (*SavedFile, error) {
	d.count++
	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	if len(ext) > 10 {
		ext = ""
	}
	path := filepath.Join(d.Path, fmt.Sprintf("%03d_%s%s", d.count, uuid.NewString()[:8], ext))

	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload file: %w", err)
	}

	size, err := io.Copy(out, r)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write upload %s: %w", originalName, err)
	}

	return &SavedFile{
		Path:         path,
		MimeType:     mimeType,
		OriginalName: originalName,
		Size:         size,
	}, nil
}

// Cleanup removes the request directory and everything in it
func (d *RequestDir) Cleanup() error {
	if err := os.RemoveAll(d.Path); err != nil {
		d.logger.Warn("Failed to remove request directory", "path", d.Path, "error", err)
		return fmt.Errorf("failed to remove request directory: %w", err)
	}
	return nil
}
