package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/projectconverter/internal/api"
	"github.com/Lllllllleong/projectconverter/internal/config"
	"github.com/Lllllllleong/projectconverter/internal/registry"
	"github.com/Lllllllleong/projectconverter/internal/services"
)

const httpFunctionName = "ConvertProject"

var (
	cfg               *config.Config
	converterInstance *services.ConverterFunction
	handler           http.Handler
	once              sync.Once
	initErr           error

	logLevel = new(slog.LevelVar)
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	functions.HTTP(httpFunctionName, convertProject)
	functions.HTTP("SweepDownloads", sweepDownloads)
	functions.CloudEvent("ConvertUploadedArchive", convertUploadedArchive)
}

// setup loads configuration and builds clients once per instance.
func setup() error {
	once.Do(func() {
		cfg, initErr = config.Load(config.Path())
		if initErr != nil {
			return
		}
		level, _ := cfg.SlogLevel()
		logLevel.Set(level)

		converterInstance, initErr = services.NewConverter(context.Background(), cfg)
		if initErr != nil {
			return
		}
		handler = api.NewHandler(converterInstance, cfg.MaxUploadBytes())
	})
	return initErr
}

// convertProject is the HTTP entry point serving the whole API.
func convertProject(w http.ResponseWriter, r *http.Request) {
	if err := setup(); err != nil {
		slog.Error("Critical error during function initialization", "error", err)
		api.Unavailable().ServeHTTP(w, r)
		return
	}
	handler.ServeHTTP(w, r)
}

// sweepDownloads evicts expired archives when invoked by Cloud Scheduler.
func sweepDownloads(w http.ResponseWriter, r *http.Request) {
	if err := setup(); err != nil {
		slog.Error("Critical error during function initialization", "error", err)
		api.Unavailable().ServeHTTP(w, r)
		return
	}
	api.NewSweepHandler(converterInstance).ServeHTTP(w, r)
}

// convertUploadedArchive converts zips dropped into the inbox bucket.
func convertUploadedArchive(ctx context.Context, e cloudevents.Event) error {
	if err := setup(); err != nil {
		slog.Error("Critical error during function initialization", "error", err)
		return err
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}
	return converterInstance.ProcessEvent(ctx, gcsEvent)
}

// main runs the service as a standalone server with the expiry sweeper.
// Deployed as functions, SweepDownloads is invoked on a schedule instead.
func main() {
	if err := setup(); err != nil {
		slog.Error("Failed to initialize converter", "error", err)
		os.Exit(1)
	}
	defer converterInstance.Close()

	sweeper, err := registry.NewSweeper(cfg.SweepSchedule, time.Minute, converterInstance.Sweep)
	if err != nil {
		slog.Error("Failed to schedule download sweep", "error", err)
		os.Exit(1)
	}
	sweeper.Start()
	defer sweeper.Stop()

	if os.Getenv("FUNCTION_TARGET") == "" {
		os.Setenv("FUNCTION_TARGET", httpFunctionName)
	}
	slog.Info("Starting server.", "port", cfg.Port, "sweepSchedule", cfg.SweepSchedule)
	if err := funcframework.Start(cfg.Port); err != nil {
		slog.Error("Server stopped", "error", err)
	}
}
