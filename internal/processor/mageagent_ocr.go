package processor

import (
	"context"

	"github.com/Aristo-Max/OCR-MVP/internal/clients"
	"github.com/Aristo-Max/OCR-MVP/internal/errors"
	"github.com/Aristo-Max/OCR-MVP/internal/logging"
)

// MageAgentOCR delegates vision model selection to MageAgent
type MageAgentOCR struct {
	client   *clients.MageAgentClient
	language string
	logger   *logging.Logger
}

// NewMageAgentOCR creates a TextExtractor backed by MageAgent
func NewMageAgentOCR(client *clients.MageAgentClient, language string) *MageAgentOCR {
	return &MageAgentOCR{
		client:   client,
		language: language,
		logger:   logging.NewLogger("MageAgentOCR"),
	}
}

// Name returns the provider name
func (m *MageAgentOCR) Name() string {
	return "mageagent"
}

// ExtractText sends the page to MageAgent and cleans the returned text
func (m *MageAgentOCR) ExtractText(ctx context.Context, image []byte, mimeType string, instruction string) (string, error) {
	resp, err := m.client.ExtractTextFromBytes(ctx, image, mimeType, instruction, m.language)
	if err != nil {
		return "", errors.NewCapabilityError(m.Name(), err)
	}

	m.logger.Debug("MageAgent OCR complete",
		"modelUsed", resp.Data.ModelUsed,
		"confidence", resp.Data.Confidence)

	return cleanOCRText(resp.Data.Text), nil
}

// HealthCheck verifies MageAgent is reachable
func (m *MageAgentOCR) HealthCheck(ctx context.Context) error {
	return m.client.HealthCheck(ctx)
}
