package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Aristo-Max/OCR-MVP/internal/errors"
	"github.com/Aristo-Max/OCR-MVP/internal/processor"
	"github.com/Aristo-Max/OCR-MVP/internal/storage"
)

type echoExtractor struct{}

func (echoExtractor) Name() string { return "echo" }

func (echoExtractor) ExtractText(ctx context.Context, image []byte, mimeType string, instruction string) (string, error) {
	if strings.Contains(string(image), "FAIL") {
		return "", errors.NewCapabilityError("echo", fmt.Errorf("rejected"))
	}
	return "text:" + string(image), nil
}

type twoPageRasterizer struct{}

func (twoPageRasterizer) Rasterize(ctx context.Context, pdfPath string, outDir string) ([]processor.RasterPage, error) {
	data, _ := os.ReadFile(pdfPath)
	if strings.Contains(string(data), "BROKEN") {
		return nil, fmt.Errorf("cannot render")
	}
	os.MkdirAll(outDir, 0o755)
	var pages []processor.RasterPage
	for i := 1; i <= 2; i++ {
		path := filepath.Join(outDir, fmt.Sprintf("page-%d.jpg", i))
		os.WriteFile(path, []byte(fmt.Sprintf("pdfpage%d", i)), 0o600)
		pages = append(pages, processor.RasterPage{PageNumber: i, Path: path, MimeType: "image/jpeg"})
	}
	return pages, nil
}

type stubMatcher struct {
	result *processor.MatchResult
	err    error
	calls  int
}

func (m *stubMatcher) Match(ctx context.Context, query string, text string) (*processor.MatchResult, error) {
	m.calls++
	if strings.TrimSpace(query) == "" || strings.TrimSpace(text) == "" {
		return nil, errors.NewValidationError("Query and text are required.")
	}
	return m.result, m.err
}

type stubHealth struct{ err error }

func (s stubHealth) HealthCheck(ctx context.Context) error { return s.err }

type testServer struct {
	handler  http.Handler
	tempRoot string
	matcher  *stubMatcher
}

func newTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()

	normalizer, err := processor.NewNormalizer(&processor.NormalizerConfig{Rasterizer: twoPageRasterizer{}})
	if err != nil {
		t.Fatalf("NewNormalizer() error = %v", err)
	}
	invoker, err := processor.NewInvoker(&processor.InvokerConfig{Extractor: echoExtractor{}, Instruction: "extract"})
	if err != nil {
		t.Fatalf("NewInvoker() error = %v", err)
	}
	pipeline, err := processor.NewBatchPipeline(&processor.PipelineConfig{Normalizer: normalizer, Invoker: invoker})
	if err != nil {
		t.Fatalf("NewBatchPipeline() error = %v", err)
	}

	tempRoot := t.TempDir()
	store, err := storage.NewTempStore(tempRoot)
	if err != nil {
		t.Fatalf("NewTempStore() error = %v", err)
	}

	matcher := &stubMatcher{}
	cfg := &Config{
		Pipeline:      pipeline,
		Invoker:       invoker,
		Matcher:       matcher,
		Store:         store,
		Provider:      "echo",
		MaxUploadSize: 1 << 20,
		MaxFiles:      5,
	}
	if mutate != nil {
		mutate(cfg)
	}

	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &testServer{handler: srv.Handler(), tempRoot: tempRoot, matcher: matcher}
}

type upload struct {
	field, name, contentType, content string
}

func multipartRequest(t *testing.T, path string, uploads ...upload) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, u := range uploads {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, u.field, u.name))
		h.Set("Content-Type", u.contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart() error = %v", err)
		}
		io.WriteString(part, u.content)
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) assertTempClean(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(ts.tempRoot)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("request directories left behind: %d", len(entries))
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
	}
}

func TestRoot(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != livenessMessage {
		t.Fatalf("body = %q", rec.Body.String())
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Fatalf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}

	if rec := ts.do(httptest.NewRequest(http.MethodGet, "/nope", nil)); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown path status = %d, want 404", rec.Code)
	}
}

func TestOCRBatch(t *testing.T) {
	ts := newTestServer(t, nil)

	req := multipartRequest(t, "/ocr-batch",
		upload{"files", "photo.jpg", "image/jpeg", "photo"},
		upload{"files", "notes.txt", "text/plain", "ignored"},
		upload{"files", "scan.pdf", "application/pdf", "%PDF-1.4"},
		upload{"files", "bad.png", "image/png", "FAIL"},
	)
	rec := ts.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Batch-ID") == "" {
		t.Fatalf("missing X-Batch-ID header")
	}

	var resp struct {
		Results []processor.OCRResult `json:"results"`
	}
	decode(t, rec, &resp)

	want := []processor.OCRResult{
		{FileName: "photo.jpg", Text: "text:photo"},
		{FileName: "scan.pdf - page 1", Text: "text:pdfpage1"},
		{FileName: "scan.pdf - page 2", Text: "text:pdfpage2"},
	}
	if len(resp.Results) != 4 {
		t.Fatalf("results = %+v", resp.Results)
	}
	for i, w := range want {
		if resp.Results[i] != w {
			t.Fatalf("results[%d] = %+v, want %+v", i, resp.Results[i], w)
		}
	}
	if last := resp.Results[3]; last.FileName != "bad.png" || last.Error == "" || last.Text != "" {
		t.Fatalf("failed entry = %+v", last)
	}

	ts.assertTempClean(t)
}

func TestOCRBatchErrorShape(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(multipartRequest(t, "/ocr-batch", upload{"files", "broken.pdf", "application/pdf", "BROKEN"}))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}

	var resp map[string]string
	decode(t, rec, &resp)
	if resp["error"] != "OCR batch processing failed." {
		t.Fatalf("error = %q", resp["error"])
	}

	ts.assertTempClean(t)
}

func TestOCRBatchEmpty(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(multipartRequest(t, "/ocr-batch"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"results":[]}` {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestOCRBatchRequestErrors(t *testing.T) {
	ts := newTestServer(t, func(c *Config) { c.MaxFiles = 1 })

	notMultipart := httptest.NewRequest(http.MethodPost, "/ocr-batch", strings.NewReader(`{}`))
	notMultipart.Header.Set("Content-Type", "application/json")
	if rec := ts.do(notMultipart); rec.Code != http.StatusBadRequest {
		t.Fatalf("non-multipart status = %d, want 400", rec.Code)
	}

	tooMany := multipartRequest(t, "/ocr-batch",
		upload{"files", "a.png", "image/png", "a"},
		upload{"files", "b.png", "image/png", "b"},
	)
	if rec := ts.do(tooMany); rec.Code != http.StatusBadRequest {
		t.Fatalf("too many files status = %d, want 400", rec.Code)
	}

	if rec := ts.do(httptest.NewRequest(http.MethodGet, "/ocr-batch", nil)); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET status = %d, want 405", rec.Code)
	}
}

func TestOCRSingleImage(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(multipartRequest(t, "/ocr", upload{"image", "note.png", "image/png", "hello"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	decode(t, rec, &resp)
	if resp["message"] != "text:hello" {
		t.Fatalf("message = %q", resp["message"])
	}

	ts.assertTempClean(t)
}

func TestOCRSingleImageErrors(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name string
		req  *http.Request
		code int
	}{
		{"missing field", multipartRequest(t, "/ocr", upload{"files", "note.png", "image/png", "x"}), http.StatusBadRequest},
		{"not an image", multipartRequest(t, "/ocr", upload{"image", "doc.pdf", "application/pdf", "%PDF-1.4"}), http.StatusBadRequest},
		{"capability failure", multipartRequest(t, "/ocr", upload{"image", "bad.png", "image/png", "FAIL"}), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(tc.req)
			if rec.Code != tc.code {
				t.Fatalf("status = %d, want %d", rec.Code, tc.code)
			}
			var resp map[string]string
			decode(t, rec, &resp)
			if resp["error"] == "" {
				t.Fatalf("missing error message: %s", rec.Body.String())
			}
		})
	}

	ts.assertTempClean(t)
}

func TestSemanticSearch(t *testing.T) {
	ts := newTestServer(t, nil)
	sub := "back garden"
	ts.matcher.result = &processor.MatchResult{Substring: &sub, Verified: true}

	req := httptest.NewRequest(http.MethodPost, "/semantic-search", strings.NewReader(`{"query":"yard","text":"in the back garden"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := ts.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"substring":"back garden","verified":true}` {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestSemanticSearchNoMatch(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.matcher.result = &processor.MatchResult{}

	rec := ts.do(httptest.NewRequest(http.MethodPost, "/semantic-search", strings.NewReader(`{"query":"q","text":"t"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"substring":null,"verified":false}` {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestSemanticSearchErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		err     error
		code    int
		message string
	}{
		{"missing query", `{"text":"abc"}`, nil, http.StatusBadRequest, "Query and text are required."},
		{"empty text", `{"query":"abc","text":""}`, nil, http.StatusBadRequest, "Query and text are required."},
		{"invalid json", `{"query":`, nil, http.StatusBadRequest, "Query and text are required."},
		{"capability failure", `{"query":"a","text":"b"}`, errors.NewCapabilityError("gemini", fmt.Errorf("quota")), http.StatusInternalServerError, "Semantic search failed."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			ts.matcher.err = tc.err

			rec := ts.do(httptest.NewRequest(http.MethodPost, "/semantic-search", strings.NewReader(tc.body)))
			if rec.Code != tc.code {
				t.Fatalf("status = %d, want %d", rec.Code, tc.code)
			}
			var resp map[string]string
			decode(t, rec, &resp)
			if resp["error"] != tc.message {
				t.Fatalf("error = %q, want %q", resp["error"], tc.message)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, nil)

	preflight := httptest.NewRequest(http.MethodOptions, "/ocr-batch", nil)
	preflight.Header.Set("Origin", "http://localhost:3000")
	preflight.Header.Set("Access-Control-Request-Method", "POST")
	rec := ts.do(preflight)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("Allow-Origin = %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "POST") {
		t.Fatalf("Allow-Methods = %q", rec.Header().Get("Access-Control-Allow-Methods"))
	}

	get := httptest.NewRequest(http.MethodGet, "/", nil)
	get.Header.Set("Origin", "http://localhost:3000")
	if rec := ts.do(get); rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("simple request missing CORS header")
	}
}

func TestCORSRestrictedOrigins(t *testing.T) {
	ts := newTestServer(t, func(c *Config) { c.AllowedOrigins = "https://app.example.com, http://localhost:5173/" })

	allowed := httptest.NewRequest(http.MethodGet, "/", nil)
	allowed.Header.Set("Origin", "http://localhost:5173")
	if got := ts.do(allowed).Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("Allow-Origin = %q", got)
	}

	denied := httptest.NewRequest(http.MethodGet, "/", nil)
	denied.Header.Set("Origin", "https://evil.example.com")
	if got := ts.do(denied).Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected Allow-Origin %q for unlisted origin", got)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, func(c *Config) {
		c.HealthChecks = map[string]HealthChecker{"mageagent": stubHealth{}}
	})

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]interface{}
	decode(t, rec, &resp)
	if resp["status"] != "ok" || resp["provider"] != "echo" {
		t.Fatalf("unexpected health response %v", resp)
	}

	ts = newTestServer(t, func(c *Config) {
		c.HealthChecks = map[string]HealthChecker{"mageagent": stubHealth{err: fmt.Errorf("connection refused")}}
	})
	if rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil)); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unhealthy status = %d, want 503", rec.Code)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
	if _, err := New(&Config{}); err == nil {
		t.Fatalf("expected error for missing dependencies")
	}
}
