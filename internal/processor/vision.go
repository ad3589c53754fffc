/**
 * Vision OCR providers
 *
 * TextExtractor is the external capability boundary: image bytes + MIME type +
 * instruction -> text. LLMVisionOCR drives any langchaingo model (Gemini by
 * default, OpenRouter as an alternative); MageAgentOCR and TesseractOCR are
 * the other backends selectable through OCR_PROVIDER.
 */

package processor

import (
	"context"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/Aristo-Max/OCR-MVP/internal/errors"
	"github.com/Aristo-Max/OCR-MVP/internal/logging"
)

// TextExtractor performs OCR on a single image
type TextExtractor interface {
	ExtractText(ctx context.Context, image []byte, mimeType string, instruction string) (string, error)
	Name() string
}

// ContentGenerator is the subset of llms.Model used here
type ContentGenerator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// LLMVisionOCR sends the image inline with the instruction to a multimodal model
type LLMVisionOCR struct {
	model  ContentGenerator
	name   string
	logger *logging.Logger
}

// NewLLMVisionOCR wraps a langchaingo model. name is used in logs and errors.
func NewLLMVisionOCR(model ContentGenerator, name string) *LLMVisionOCR {
	return &LLMVisionOCR{
		model:  model,
		name:   name,
		logger: logging.NewLogger("LLMVisionOCR"),
	}
}

// Name returns the provider name
func (o *LLMVisionOCR) Name() string {
	return o.name
}

// ExtractText asks the model to transcribe the image
func (o *LLMVisionOCR) ExtractText(ctx context.Context, image []byte, mimeType string, instruction string) (string, error) {
	startTime := time.Now()

	messages := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.BinaryPart(mimeType, image),
				llms.TextPart(instruction),
			},
		},
	}

	resp, err := o.model.GenerateContent(ctx, messages, llms.WithTemperature(0))
	if err != nil {
		return "", errors.NewCapabilityError(o.name, err)
	}

	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", errors.NewResponseShapeError(o.name, "no candidates in response")
	}

	text := cleanOCRText(resp.Choices[0].Content)

	o.logger.Debug("Text extraction complete",
		"provider", o.name,
		"mimeType", mimeType,
		"imageSize", len(image),
		"textLength", len(text),
		"duration", time.Since(startTime).String())

	return text, nil
}

// cleanOCRText trims whitespace and unwraps a Markdown code fence around the whole reply
func cleanOCRText(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") || !strings.HasSuffix(text, "```") || len(text) < 6 {
		return text
	}

	inner := strings.TrimSuffix(strings.TrimPrefix(text, "```"), "```")
	// Drop an info string such as ```text on the opening line
	if nl := strings.IndexByte(inner, '\n'); nl >= 0 && !strings.ContainsAny(strings.TrimSpace(inner[:nl]), " \t") {
		inner = inner[nl+1:]
	}
	return strings.TrimSpace(inner)
}
