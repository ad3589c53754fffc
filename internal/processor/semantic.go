package processor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/Aristo-Max/OCR-MVP/internal/errors"
	"github.com/Aristo-Max/OCR-MVP/internal/logging"
)

const noMatchToken = "null"

const semanticPromptTemplate = `Given the following text, find and return the most relevant substring (exact phrase) that matches the semantic meaning of the query.
If nothing matches, return null.
Query: "%s"
Text: """%s"""
Return only the matching substring or null.`

// quote pairs the model tends to wrap its answer in
var matchQuotePairs = [][2]string{
	{"\"", "\""},
	{"'", "'"},
	{"`", "`"},
	{"“", "”"},
	{"‘", "’"},
}

// MatchResult is the outcome of a semantic match. Substring is nil when nothing matched.
type MatchResult struct {
	Substring *string `json:"substring"`
	// Verified is true when Substring occurs in the input text
	Verified bool `json:"verified"`
}

// SemanticMatcher asks a language model for the substring of a text that best matches a query
type SemanticMatcher struct {
	model   ContentGenerator
	name    string
	timeout time.Duration
	logger  *logging.Logger
}

// NewSemanticMatcher creates a new semantic matcher. A zero timeout leaves deadlines to the caller.
func NewSemanticMatcher(model ContentGenerator, name string, timeout time.Duration) *SemanticMatcher {
	return &SemanticMatcher{
		model:   model,
		name:    name,
		timeout: timeout,
		logger:  logging.NewLogger("SemanticMatcher"),
	}
}

// Match returns the best matching substring of text for query. Empty input is
// a validation error and no model call is made. Model failures are not retried.
func (m *SemanticMatcher) Match(ctx context.Context, query string, text string) (*MatchResult, error) {
	if strings.TrimSpace(query) == "" || strings.TrimSpace(text) == "" {
		return nil, errors.NewValidationError("Query and text are required.")
	}

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	prompt := fmt.Sprintf(semanticPromptTemplate, query, text)
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	resp, err := m.model.GenerateContent(ctx, messages, llms.WithTemperature(0))
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.NewProcessingTimeoutError("", m.timeout, err)
		}
		return nil, errors.NewCapabilityError(m.name, err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return nil, errors.NewResponseShapeError(m.name, "no candidates in response")
	}

	answer, ok := normalizeMatch(resp.Choices[0].Content, text)
	if !ok {
		return &MatchResult{}, nil
	}

	substring, verified := verifyMatch(answer, text)
	if !verified {
		m.logger.Warn("Model returned a substring not present in the text",
			"provider", m.name, "substring", substring)
	}

	return &MatchResult{Substring: &substring, Verified: verified}, nil
}

// normalizeMatch strips fences, whitespace and surrounding quote pairs. An
// answer that already occurs in text is kept as is, quotes included. It
// reports false for the no-match token or an empty answer.
func normalizeMatch(raw string, text string) (string, bool) {
	s := strings.TrimSpace(cleanOCRText(raw))
	for {
		if s == "" || strings.EqualFold(s, noMatchToken) {
			return "", false
		}
		if occursIn(s, text) {
			return s, true
		}
		inner, ok := stripQuotePair(s)
		if !ok {
			return s, true
		}
		s = strings.TrimSpace(inner)
	}
}

// stripQuotePair removes one matching open/close quote pair around s
func stripQuotePair(s string) (string, bool) {
	for _, pair := range matchQuotePairs {
		if len(s) >= len(pair[0])+len(pair[1]) && strings.HasPrefix(s, pair[0]) && strings.HasSuffix(s, pair[1]) {
			return s[len(pair[0]) : len(s)-len(pair[1])], true
		}
	}
	return s, false
}

func occursIn(candidate string, text string) bool {
	return strings.Contains(text, candidate) || indexFold(text, candidate) >= 0
}

// verifyMatch locates candidate in text. A case-insensitive hit returns the
// text's own spelling of the match.
func verifyMatch(candidate string, text string) (string, bool) {
	if strings.Contains(text, candidate) {
		return candidate, true
	}

	if idx := indexFold(text, candidate); idx >= 0 {
		return text[idx : idx+len(candidate)], true
	}

	return candidate, false
}

// indexFold is a case-insensitive strings.Index that only reports byte
// offsets where the match has the same byte length as needle.
func indexFold(s, needle string) int {
	n := len(needle)
	for i := 0; i+n <= len(s); i++ {
		if strings.EqualFold(s[i:i+n], needle) {
			return i
		}
	}
	return -1
}
