/**
 * MageAgent Client - Vision OCR over HTTP
 *
 * Alternate OCR backend for deployments that already run MageAgent. MageAgent
 * picks the vision model itself; this client only ships the image and the
 * transcription instruction and returns the text.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Aristo-Max/OCR-MVP/internal/logging"
)

// MageAgentClient handles communication with MageAgent service
type MageAgentClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// VisionOCRRequest represents a request to extract text from an image
type VisionOCRRequest struct {
	Image          string                 `json:"image"`                 // Base64 encoded image
	Format         string                 `json:"format"`                // "base64", "url", or "buffer"
	MimeType       string                 `json:"mimeType,omitempty"`    // e.g. image/jpeg
	Instruction    string                 `json:"instruction,omitempty"` // transcription prompt
	PreferAccuracy bool                   `json:"preferAccuracy"`
	Language       string                 `json:"language"`
	Metadata       map[string]interface{} `json:"metadata"`
}

// VisionOCRResponse represents a synchronous response from MageAgent vision endpoint
type VisionOCRResponse struct {
	Success bool                   `json:"success"`
	Data    VisionOCRData          `json:"data"`
	Message string                 `json:"message"`
	Meta    map[string]interface{} `json:"meta"`
}

// VisionOCRData contains the extracted text and metadata
type VisionOCRData struct {
	Text           string  `json:"text"`
	Confidence     float64 `json:"confidence"`
	ModelUsed      string  `json:"modelUsed"`
	ProcessingTime int64   `json:"processingTime"` // milliseconds
}

// NewMageAgentClient creates a new MageAgent client. A zero timeout leaves
// deadlines to the caller's context.
func NewMageAgentClient(baseURL string, timeout time.Duration) *MageAgentClient {
	return &MageAgentClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logging.NewLogger("MageAgentClient"),
	}
}

// ExtractText extracts text from an image using MageAgent's vision model selection
func (c *MageAgentClient) ExtractText(ctx context.Context, req *VisionOCRRequest) (*VisionOCRResponse, error) {
	c.logger.Debug("Requesting text extraction from MageAgent",
		"preferAccuracy", req.PreferAccuracy,
		"language", req.Language,
		"imageSize", len(req.Image))

	endpoint := fmt.Sprintf("%s/api/internal/vision/extract-text", c.baseURL)

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Source", "ocr-batch-server")
	httpReq.Header.Set("X-Request-ID", "ocr-"+uuid.NewString())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request to MageAgent failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("MageAgent returned error status %d: %s", resp.StatusCode, string(body))
	}

	var ocrResp VisionOCRResponse
	if err := json.Unmarshal(body, &ocrResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if !ocrResp.Success {
		return nil, fmt.Errorf("MageAgent operation failed: %s", ocrResp.Message)
	}

	c.logger.Debug("Text extraction complete",
		"modelUsed", ocrResp.Data.ModelUsed,
		"confidence", ocrResp.Data.Confidence,
		"processingTime", ocrResp.Data.ProcessingTime,
		"textLength", len(ocrResp.Data.Text))

	return &ocrResp, nil
}

// ExtractTextFromBytes is a convenience method that handles base64 encoding
func (c *MageAgentClient) ExtractTextFromBytes(ctx context.Context, imageData []byte, mimeType string, instruction string, language string) (*VisionOCRResponse, error) {
	req := &VisionOCRRequest{
		Image:       base64.StdEncoding.EncodeToString(imageData),
		Format:      "base64",
		MimeType:    mimeType,
		Instruction: instruction,
		Language:    language,
		Metadata: map[string]interface{}{
			"source":    "ocr-batch-server",
			"timestamp": time.Now().Unix(),
		},
	}

	return c.ExtractText(ctx, req)
}

// HealthCheck verifies MageAgent service is available
func (c *MageAgentClient) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/api/health", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check failed with status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
