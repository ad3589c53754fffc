package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"github.com/Aristo-Max/OCR-MVP/internal/events"
)

// fakeExtractor echoes the page bytes back as text. Pages whose content
// contains "FAIL" return an error.
type fakeExtractor struct {
	mu        sync.Mutex
	calls     []string
	mimeTypes []string
}

func (f *fakeExtractor) Name() string { return "fake" }

func (f *fakeExtractor) ExtractText(ctx context.Context, image []byte, mimeType string, instruction string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, string(image))
	f.mimeTypes = append(f.mimeTypes, mimeType)
	f.mu.Unlock()

	if strings.Contains(string(image), "FAIL") {
		return "", fmt.Errorf("capability rejected %q", string(image))
	}
	return "  text(" + string(image) + ")\n", nil
}

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeRasterizer writes pages[base name] page files, or fails for names in failFor
type fakeRasterizer struct {
	pages   map[string]int
	failFor map[string]bool
}

func (f *fakeRasterizer) Rasterize(ctx context.Context, pdfPath string, outDir string) ([]RasterPage, error) {
	base := filepath.Base(pdfPath)
	if f.failFor[base] {
		return nil, fmt.Errorf("cannot render %s", base)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}

	n := f.pages[base]
	pages := make([]RasterPage, 0, n)
	for i := 1; i <= n; i++ {
		path := filepath.Join(outDir, fmt.Sprintf("page-%d.jpg", i))
		if err := os.WriteFile(path, []byte(fmt.Sprintf("%s#%d", base, i)), 0o600); err != nil {
			return nil, err
		}
		pages = append(pages, RasterPage{PageNumber: i, Path: path, MimeType: mimeJPEG})
	}
	return pages, nil
}

// fakeModel answers every GenerateContent call with reply
type fakeModel struct {
	reply    string
	err      error
	empty    bool
	calls    int
	lastText string
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.calls++
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if tp, ok := part.(llms.TextContent); ok {
				m.lastText = tp.Text
			}
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.empty {
		return &llms.ContentResponse{}, nil
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) last() events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return events.Event{}
	}
	return p.events[len(p.events)-1]
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Event)
	}
	return out
}

// writeUpload creates an upload file in dir with content equal to its name
func writeUpload(t *testing.T, dir string, name string, mimeType string) UploadedFile {
	t.Helper()
	return writeUploadContent(t, dir, name, mimeType, []byte(name))
}

func writeUploadContent(t *testing.T, dir string, name string, mimeType string, content []byte) UploadedFile {
	t.Helper()
	path := filepath.Join(dir, strings.ReplaceAll(name, " ", "_"))
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return UploadedFile{Path: path, MimeType: mimeType, OriginalName: name, Size: int64(len(content))}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
