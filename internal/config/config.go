/**
 * Configuration for the OCR batch server
 *
 * Loads configuration from environment variables. An optional YAML file
 * (CONFIG_FILE) provides defaults; environment variables always win.
 */

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	ProviderLLM       = "llm"
	ProviderMageAgent = "mageagent"
	ProviderTesseract = "tesseract"

	LLMGemini     = "gemini"
	LLMOpenRouter = "openrouter"

	PDFPolicyAbort   = "abort"
	PDFPolicyIsolate = "isolate"

	DefaultOCRPrompt = "Extract only the handwritten text from the image. Do not include any introductory phrases."
)

// Config holds server configuration
type Config struct {
	// HTTP server
	Port               int    `yaml:"port"`
	CORSAllowedOrigins string `yaml:"cors_allowed_origins"`

	// Uploads
	TempDir       string `yaml:"temp_dir"`
	MaxUploadSize int64  `yaml:"max_upload_size"`
	MaxFiles      int    `yaml:"max_files"`

	// OCR capability selection
	OCRProvider string `yaml:"ocr_provider"`
	LLMProvider string `yaml:"llm_provider"`
	OCRPrompt   string `yaml:"ocr_prompt"`

	// API Keys
	GeminiAPIKey     string `yaml:"-"`
	OpenRouterAPIKey string `yaml:"-"`

	// Models and service URLs
	GeminiModel       string `yaml:"gemini_model"`
	OpenRouterBaseURL string `yaml:"openrouter_base_url"`
	OpenRouterModel   string `yaml:"openrouter_model"`
	MageAgentURL      string `yaml:"mageagent_url"`
	TesseractLanguage string `yaml:"tesseract_language"`

	// Timeouts in milliseconds
	OCRTimeout      int `yaml:"ocr_timeout"`
	SemanticTimeout int `yaml:"semantic_timeout"`

	// PDF rasterization
	PdftoppmPath      string `yaml:"pdftoppm_path"`
	RasterDPI         int    `yaml:"raster_dpi"`
	RasterFormat      string `yaml:"raster_format"`
	MaxImageDimension int    `yaml:"max_image_dimension"`
	PDFErrorPolicy    string `yaml:"pdf_error_policy"`

	// Progress events (optional)
	RedisURL      string `yaml:"redis_url"`
	EventsChannel string `yaml:"events_channel"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// defaults returns the built-in configuration
func defaults() *Config {
	return &Config{
		Port:               3001,
		CORSAllowedOrigins: "*",
		TempDir:            filepath.Join(os.TempDir(), "ocr-uploads"),
		MaxUploadSize:      50 * 1024 * 1024, // 50MB
		MaxFiles:           20,
		OCRProvider:        ProviderLLM,
		LLMProvider:        LLMGemini,
		OCRPrompt:          DefaultOCRPrompt,
		GeminiModel:        "gemini-2.0-flash-exp",
		OpenRouterBaseURL:  "https://openrouter.ai/api/v1",
		OpenRouterModel:    "google/gemini-2.0-flash-exp:free",
		MageAgentURL:       "http://nexus-mageagent:8080",
		TesseractLanguage:  "eng",
		OCRTimeout:         60000, // 1 minute per page
		SemanticTimeout:    30000,
		PdftoppmPath:       "pdftoppm",
		RasterDPI:          150,
		RasterFormat:       "jpeg",
		MaxImageDimension:  0,
		PDFErrorPolicy:     PDFPolicyAbort,
		EventsChannel:      "ocr:events",
		LogLevel:           "info",
		LogFormat:          "console",
	}
}

// LoadConfig loads configuration from CONFIG_FILE (if set) and environment variables
func LoadConfig() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnvAsIntOrDefault("PORT", c.Port)
	c.CORSAllowedOrigins = getEnvOrDefault("CORS_ALLOWED_ORIGINS", c.CORSAllowedOrigins)
	c.TempDir = getEnvOrDefault("TEMP_DIR", c.TempDir)
	c.MaxUploadSize = getEnvAsInt64OrDefault("MAX_UPLOAD_SIZE", c.MaxUploadSize)
	c.MaxFiles = getEnvAsIntOrDefault("MAX_FILES", c.MaxFiles)
	c.OCRProvider = strings.ToLower(getEnvOrDefault("OCR_PROVIDER", c.OCRProvider))
	c.LLMProvider = strings.ToLower(getEnvOrDefault("LLM_PROVIDER", c.LLMProvider))
	c.OCRPrompt = getEnvOrDefault("OCR_PROMPT", c.OCRPrompt)
	c.GeminiAPIKey = getEnvOrDefault("GEMINI_API_KEY", c.GeminiAPIKey)
	c.OpenRouterAPIKey = getEnvOrDefault("OPENROUTER_API_KEY", c.OpenRouterAPIKey)
	c.GeminiModel = getEnvOrDefault("GEMINI_MODEL", c.GeminiModel)
	c.OpenRouterBaseURL = getEnvOrDefault("OPENROUTER_BASE_URL", c.OpenRouterBaseURL)
	c.OpenRouterModel = getEnvOrDefault("OPENROUTER_MODEL", c.OpenRouterModel)
	c.MageAgentURL = getEnvOrDefault("MAGEAGENT_URL", c.MageAgentURL)
	c.TesseractLanguage = getEnvOrDefault("TESSERACT_LANGUAGE", c.TesseractLanguage)
	c.OCRTimeout = getEnvAsIntOrDefault("OCR_TIMEOUT", c.OCRTimeout)
	c.SemanticTimeout = getEnvAsIntOrDefault("SEMANTIC_TIMEOUT", c.SemanticTimeout)
	c.PdftoppmPath = getEnvOrDefault("PDFTOPPM_PATH", c.PdftoppmPath)
	c.RasterDPI = getEnvAsIntOrDefault("RASTER_DPI", c.RasterDPI)
	c.RasterFormat = strings.ToLower(getEnvOrDefault("RASTER_FORMAT", c.RasterFormat))
	c.MaxImageDimension = getEnvAsIntOrDefault("MAX_IMAGE_DIMENSION", c.MaxImageDimension)
	c.PDFErrorPolicy = strings.ToLower(getEnvOrDefault("PDF_ERROR_POLICY", c.PDFErrorPolicy))
	c.RedisURL = getEnvOrDefault("REDIS_URL", c.RedisURL)
	c.EventsChannel = getEnvOrDefault("EVENTS_CHANNEL", c.EventsChannel)
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnvOrDefault("LOG_FORMAT", c.LogFormat)
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}

	if c.TempDir == "" {
		return fmt.Errorf("TEMP_DIR is required")
	}

	if c.MaxUploadSize < 1024 || c.MaxUploadSize > 1073741824 { // 1KB to 1GB
		return fmt.Errorf("MAX_UPLOAD_SIZE must be between 1KB and 1GB, got %d", c.MaxUploadSize)
	}

	if c.MaxFiles < 1 || c.MaxFiles > 500 {
		return fmt.Errorf("MAX_FILES must be between 1 and 500, got %d", c.MaxFiles)
	}

	switch c.LLMProvider {
	case LLMGemini, LLMOpenRouter:
	default:
		return fmt.Errorf("LLM_PROVIDER must be %q or %q, got %q", LLMGemini, LLMOpenRouter, c.LLMProvider)
	}

	// Semantic search always goes through the language model
	if c.LLMProvider == LLMGemini && c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when LLM_PROVIDER=%s", LLMGemini)
	}
	if c.LLMProvider == LLMOpenRouter && c.OpenRouterAPIKey == "" {
		return fmt.Errorf("OPENROUTER_API_KEY is required when LLM_PROVIDER=%s", LLMOpenRouter)
	}

	switch c.OCRProvider {
	case ProviderLLM, ProviderTesseract:
	case ProviderMageAgent:
		if c.MageAgentURL == "" {
			return fmt.Errorf("MAGEAGENT_URL is required when OCR_PROVIDER=%s", ProviderMageAgent)
		}
	default:
		return fmt.Errorf("OCR_PROVIDER must be one of llm, mageagent, tesseract; got %q", c.OCRProvider)
	}

	if strings.TrimSpace(c.OCRPrompt) == "" {
		return fmt.Errorf("OCR_PROMPT must not be empty")
	}

	if c.OCRTimeout < 1000 || c.OCRTimeout > 600000 { // 1s to 10m
		return fmt.Errorf("OCR_TIMEOUT must be between 1000 and 600000 ms, got %d", c.OCRTimeout)
	}

	if c.SemanticTimeout < 1000 || c.SemanticTimeout > 600000 {
		return fmt.Errorf("SEMANTIC_TIMEOUT must be between 1000 and 600000 ms, got %d", c.SemanticTimeout)
	}

	if c.RasterDPI < 36 || c.RasterDPI > 600 {
		return fmt.Errorf("RASTER_DPI must be between 36 and 600, got %d", c.RasterDPI)
	}

	if c.RasterFormat != "jpeg" && c.RasterFormat != "png" {
		return fmt.Errorf("RASTER_FORMAT must be jpeg or png, got %q", c.RasterFormat)
	}

	if c.MaxImageDimension < 0 {
		return fmt.Errorf("MAX_IMAGE_DIMENSION must not be negative, got %d", c.MaxImageDimension)
	}

	if c.PDFErrorPolicy != PDFPolicyAbort && c.PDFErrorPolicy != PDFPolicyIsolate {
		return fmt.Errorf("PDF_ERROR_POLICY must be abort or isolate, got %q", c.PDFErrorPolicy)
	}

	return nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsInt64OrDefault gets environment variable as int64 or returns default
func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}
