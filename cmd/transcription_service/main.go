package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/jaiswal-naman/vet-scribe-ai/internal/audio"
	"github.com/jaiswal-naman/vet-scribe-ai/internal/config"
	"github.com/jaiswal-naman/vet-scribe-ai/internal/models"
	"github.com/jaiswal-naman/vet-scribe-ai/internal/ner"
	"github.com/jaiswal-naman/vet-scribe-ai/internal/transcriber"
	"github.com/jaiswal-naman/vet-scribe-ai/internal/transcription_service/api"
	"github.com/jaiswal-naman/vet-scribe-ai/internal/transcription_service/service"
	"github.com/jaiswal-naman/vet-scribe-ai/internal/transcription_service/store"
	httpserver "github.com/jaiswal-naman/vet-scribe-ai/pkg/http"
	"github.com/jaiswal-naman/vet-scribe-ai/pkg/logger"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Logger.Level)
	if err != nil {
		log.Fatalf("Invalid logger level: %v", err)
	}
	logger.Init(logLevel)

	serviceLogger := logger.New("TranscriptionService", "")

	stageDelay, err := time.ParseDuration(cfg.Pipeline.StageDelay)
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Invalid pipeline stage delay")
	}

	// Build the pipeline collaborators.
	decoder := audio.NewFFmpegDecoder(cfg.Decoder.FFmpegBinary)
	whisper := transcriber.NewWhisperTranscriber(cfg.Transcriber.Binary, cfg.Transcriber.Model, cfg.Transcriber.Language)
	extractor := ner.NewLexicalExtractor()
	if !whisper.Ready() {
		serviceLogger.Warn("Transcription binary not found; submissions will fail at the model_loading stage")
	}

	registry := store.NewMemoryTaskRegistry()
	connManager := service.NewConnectionManager()
	pipeline := service.NewPipeline(registry, decoder, whisper, extractor, connManager, stageDelay)
	transcriptionService := service.NewTranscriptionService(registry, pipeline, connManager, whisper, extractor, serviceLogger, cfg.Upload.Dir, cfg.Upload.AllowedExtensions)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), api.RequestLogger(serviceLogger))
	apiHandler := api.NewAPI(transcriptionService, serviceLogger)
	api.RegisterRoutes(router, apiHandler)

	srv, err := httpserver.NewServer(cfg, router, httpserver.WithAddress(cfg.Server.Address))
	if err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to create HTTP server")
	}

	go func() {
		serviceLogger.Info("Starting HTTP server on " + cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("HTTP server failed to start")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	serviceLogger.Info("Shutting down server...")

	shutdownTimeout := 5 * time.Second
	if cfg.Server.ShutdownTimeout != "" {
		if d, err := time.ParseDuration(cfg.Server.ShutdownTimeout); err == nil {
			shutdownTimeout = d
		}
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Server forced to shutdown")
	}

	if err := transcriptionService.Close(shutdownCtx); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Pipeline runs did not finish before shutdown deadline")
	}

	serviceLogger.Info("Server gracefully stopped")
}
