package processor

import (
	"bytes"
	"io"
	"mime"
	"os"
	"strings"
)

const (
	mimePDF         = "application/pdf"
	mimeOctetStream = "application/octet-stream"
	mimeJPEG        = "image/jpeg"
	mimePNG         = "image/png"
)

// normalizeMimeType lowercases, drops parameters and maps the non-standard image/jpg alias
func normalizeMimeType(declared string) string {
	declared = strings.TrimSpace(declared)
	if declared == "" {
		return ""
	}

	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		mediaType = strings.ToLower(strings.SplitN(declared, ";", 2)[0])
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))

	if mediaType == "image/jpg" || mediaType == "image/pjpeg" {
		return mimeJPEG
	}
	return mediaType
}

func isPDF(mimeType string) bool {
	return mimeType == mimePDF
}

func isImage(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

// resolveMimeType returns the effective type for an upload. Generic or missing
// declarations are corrected from the file's magic bytes.
func resolveMimeType(file UploadedFile) string {
	declared := normalizeMimeType(file.MimeType)
	if declared != "" && declared != mimeOctetStream {
		return declared
	}

	f, err := os.Open(file.Path)
	if err != nil {
		return declared
	}
	defer f.Close()

	header := make([]byte, 512)
	n, _ := io.ReadFull(f, header)
	if detected := detectMimeTypeFromMagicBytes(header[:n]); detected != "" {
		return detected
	}
	return declared
}

// detectMimeTypeFromMagicBytes detects the actual MIME type from file content magic bytes
// Browsers sometimes send application/octet-stream for scans saved without an extension
func detectMimeTypeFromMagicBytes(data []byte) string {
	if len(data) < 4 {
		return ""
	}

	// PDF: %PDF-
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return mimePDF
	}

	// PNG: 0x89 'P' 'N' 'G' 0x0D 0x0A 0x1A 0x0A
	if len(data) >= 8 && bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}) {
		return mimePNG
	}

	// JPEG: 0xFF 0xD8 0xFF
	if bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}) {
		return mimeJPEG
	}

	// GIF: 'G' 'I' 'F' '8' ('7' or '9') 'a'
	if bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")) {
		return "image/gif"
	}

	// WebP: 'R' 'I' 'F' 'F' .... 'W' 'E' 'B' 'P'
	if len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && string(data[8:12]) == "WEBP" {
		return "image/webp"
	}

	// TIFF: little-endian or big-endian byte order mark
	if bytes.HasPrefix(data, []byte{0x49, 0x49, 0x2A, 0x00}) || bytes.HasPrefix(data, []byte{0x4D, 0x4D, 0x00, 0x2A}) {
		return "image/tiff"
	}

	return ""
}

// ResolveImageType returns the effective MIME type of an upload and whether it is an image
func ResolveImageType(file UploadedFile) (string, bool) {
	mimeType := resolveMimeType(file)
	return mimeType, isImage(mimeType)
}
