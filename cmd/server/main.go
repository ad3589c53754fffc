/**
 * OCR Batch Server - Main Entry Point
 *
 * HTTP service that turns uploaded images and PDFs into text.
 *
 * Architecture:
 * - Uploads spilled to a per-request temp directory
 * - PDFs rasterized page by page with pdftoppm
 * - Each page sent to a vision OCR provider (Gemini/OpenRouter via
 *   langchaingo, MageAgent, or local Tesseract)
 * - Optional progress events over Redis pub/sub
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Aristo-Max/OCR-MVP/internal/clients"
	"github.com/Aristo-Max/OCR-MVP/internal/config"
	"github.com/Aristo-Max/OCR-MVP/internal/events"
	"github.com/Aristo-Max/OCR-MVP/internal/logging"
	"github.com/Aristo-Max/OCR-MVP/internal/processor"
	"github.com/Aristo-Max/OCR-MVP/internal/server"
	"github.com/Aristo-Max/OCR-MVP/internal/storage"
)

func main() {
	logger := logging.NewLogger("Main")

	// Load environment variables
	if err := godotenv.Load(".env"); err != nil {
		logger.Warn(".env not found, using system environment variables")
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Configure(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	ctx := context.Background()

	logger.Info("OCR server starting...",
		"port", cfg.Port,
		"ocrProvider", cfg.OCRProvider,
		"llmProvider", cfg.LLMProvider,
		"pdfErrorPolicy", cfg.PDFErrorPolicy)

	// Language model: vision OCR (llm provider) and semantic search
	model, modelName, err := clients.NewLanguageModel(ctx, &clients.LLMConfig{
		Provider:          cfg.LLMProvider,
		GeminiAPIKey:      cfg.GeminiAPIKey,
		GeminiModel:       cfg.GeminiModel,
		OpenRouterAPIKey:  cfg.OpenRouterAPIKey,
		OpenRouterBaseURL: cfg.OpenRouterBaseURL,
		OpenRouterModel:   cfg.OpenRouterModel,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize language model: %w", err)
	}

	healthChecks := map[string]server.HealthChecker{}

	// OCR provider
	extractor, err := newExtractor(ctx, cfg, model, modelName, healthChecks, logger)
	if err != nil {
		return err
	}
	logger.Info("OCR provider initialized", "provider", extractor.Name())

	// Progress events
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.RedisURL != "" {
		redisPublisher, err := events.NewRedisPublisher(ctx, &events.RedisPublisherConfig{
			RedisURL: cfg.RedisURL,
			Channel:  cfg.EventsChannel,
		})
		if err != nil {
			logger.Warn("Redis unavailable, progress events disabled", "error", err)
		} else {
			publisher = redisPublisher
			healthChecks["redis"] = redisPublisher
			logger.Info("Progress events enabled", "channel", cfg.EventsChannel)
		}
	}
	defer publisher.Close()

	// Pipeline
	normalizer, err := processor.NewNormalizer(&processor.NormalizerConfig{
		Rasterizer: processor.NewPopplerRasterizer(&processor.PopplerConfig{
			PdftoppmPath: cfg.PdftoppmPath,
			DPI:          cfg.RasterDPI,
			Format:       cfg.RasterFormat,
		}),
		IsolatePDFErrors: cfg.PDFErrorPolicy == config.PDFPolicyIsolate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize normalizer: %w", err)
	}

	invoker, err := processor.NewInvoker(&processor.InvokerConfig{
		Extractor:         extractor,
		Instruction:       cfg.OCRPrompt,
		Timeout:           time.Duration(cfg.OCRTimeout) * time.Millisecond,
		MaxImageDimension: cfg.MaxImageDimension,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize OCR invoker: %w", err)
	}

	pipeline, err := processor.NewBatchPipeline(&processor.PipelineConfig{
		Normalizer: normalizer,
		Invoker:    invoker,
		Publisher:  publisher,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize batch pipeline: %w", err)
	}

	matcher := processor.NewSemanticMatcher(model, modelName, time.Duration(cfg.SemanticTimeout)*time.Millisecond)

	store, err := storage.NewTempStore(cfg.TempDir)
	if err != nil {
		return fmt.Errorf("failed to initialize temp store: %w", err)
	}
	logger.Info("Temp store initialized", "root", store.Root())

	srv, err := server.New(&server.Config{
		Pipeline:       pipeline,
		Invoker:        invoker,
		Matcher:        matcher,
		Store:          store,
		Provider:       extractor.Name(),
		HealthChecks:   healthChecks,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		MaxUploadSize:  cfg.MaxUploadSize,
		MaxFiles:       cfg.MaxFiles,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	httpServer := srv.NewHTTPServer(":" + strconv.Itoa(cfg.Port))

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Server is running", "url", fmt.Sprintf("http://localhost:%d", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case sig := <-sigChan:
		logger.Info("Received signal, initiating graceful shutdown...", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("Shutdown complete")
	return nil
}

// newExtractor builds the TextExtractor selected by OCR_PROVIDER
func newExtractor(ctx context.Context, cfg *config.Config, model processor.ContentGenerator, modelName string, healthChecks map[string]server.HealthChecker, logger *logging.Logger) (processor.TextExtractor, error) {
	switch cfg.OCRProvider {
	case config.ProviderMageAgent:
		client := clients.NewMageAgentClient(cfg.MageAgentURL, time.Duration(cfg.OCRTimeout)*time.Millisecond)
		if err := client.HealthCheck(ctx); err != nil {
			logger.Warn("MageAgent health check failed, requests will fail until it is reachable", "url", cfg.MageAgentURL, "error", err)
		} else {
			logger.Info("MageAgent connection verified", "url", cfg.MageAgentURL)
		}
		ocr := processor.NewMageAgentOCR(client, cfg.TesseractLanguage)
		healthChecks["mageagent"] = ocr
		return ocr, nil

	case config.ProviderTesseract:
		ocr, err := processor.NewTesseractOCR(&processor.TesseractConfig{Language: cfg.TesseractLanguage})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Tesseract: %w", err)
		}
		return ocr, nil

	default:
		return processor.NewLLMVisionOCR(model, modelName), nil
	}
}
