package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/prakoso/voicecoach/adapters/dify"
	"github.com/prakoso/voicecoach/adapters/llm"
	"github.com/prakoso/voicecoach/adapters/n8n"
	"github.com/prakoso/voicecoach/adapters/stt"
	"github.com/prakoso/voicecoach/adapters/tts"
	"github.com/prakoso/voicecoach/adapters/vad"
	"github.com/prakoso/voicecoach/domain/repositories"
	"github.com/prakoso/voicecoach/internal/api"
	"github.com/prakoso/voicecoach/internal/websocket"
	"github.com/prakoso/voicecoach/usecase"
)

func main() {
	// Load .env file if present; environment variables may be set elsewhere.
	_ = godotenv.Load()

	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx := context.Background()

	// Streaming dialogue backend: Dify when configured, direct Gemini otherwise.
	backend, err := buildDialogueBackend(ctx, logger)
	if err != nil {
		logger.Fatal("Failed to initialize dialogue backend", zap.Error(err))
	}

	relay := usecase.NewRelay(backend, usecase.NewRelayConfigFromEnv(), logger)

	// Blocking workflow backend is optional.
	var chatBackend repositories.ChatBackend
	if os.Getenv("N8N_WEBHOOK_URL") != "" {
		chatBackend, err = n8n.NewClient(n8n.NewConfigFromEnv(), logger)
		if err != nil {
			logger.Fatal("Failed to initialize n8n client", zap.Error(err))
		}
	}

	synthesizer, err := buildSynthesizer(logger)
	if err != nil {
		logger.Fatal("Failed to initialize speech synthesizer", zap.Error(err))
	}

	recognizer := buildRecognizer(logger)

	// Initialize WebSocket hub; each session gets its own detector.
	hub := websocket.NewHub(relay, recognizer, synthesizer,
		func() repositories.SpeechDetector { return vad.NewRMSDetector(logger) },
		logger)
	go hub.Run()

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize API routes
	handlers := api.NewHandlers(relay, chatBackend, synthesizer, logger)
	api.InitRoutes(e, handlers, hub, logger)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("port", port))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func buildDialogueBackend(ctx context.Context, logger *zap.Logger) (repositories.DialogueBackend, error) {
	if os.Getenv("DIFY_BASE_URL") != "" {
		return dify.NewClient(dify.NewConfigFromEnv(), logger)
	}
	return llm.NewGeminiBackend(ctx, llm.NewGeminiConfigFromEnv(), logger)
}

func buildSynthesizer(logger *zap.Logger) (repositories.SpeechSynthesizer, error) {
	if os.Getenv("AZURE_SPEECH_KEY") != "" {
		return tts.NewAzureTTS(tts.NewAzureConfigFromEnv(), logger)
	}
	return tts.NewElevenLabsTTS(tts.NewElevenLabsConfigFromEnv(), logger)
}

func buildRecognizer(logger *zap.Logger) repositories.SpeechRecognizer {
	// Google Cloud credentials are required for real transcription; the mock
	// keeps local development working without them.
	if os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		logger.Warn("GOOGLE_APPLICATION_CREDENTIALS not set, using mock recognizer")
		return stt.NewMockRecognizer(logger)
	}
	return stt.NewGoogleRecognizer(logger)
}
