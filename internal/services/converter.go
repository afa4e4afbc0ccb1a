package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"github.com/Lllllllleong/projectconverter/internal/blob"
	"github.com/Lllllllleong/projectconverter/internal/config"
	"github.com/Lllllllleong/projectconverter/internal/gcp"
	"github.com/Lllllllleong/projectconverter/internal/jobs"
	"github.com/Lllllllleong/projectconverter/internal/llm"
	"github.com/Lllllllleong/projectconverter/internal/models"
	"github.com/Lllllllleong/projectconverter/internal/pipeline"
	"github.com/Lllllllleong/projectconverter/internal/prompts"
	"github.com/Lllllllleong/projectconverter/internal/registry"
)

// ErrDownloadNotFound is returned by Open for unknown, expired or missing downloads.
var ErrDownloadNotFound = errors.New("File not found or expired")

// uploadFileName is where the uploaded zip is saved inside a run directory.
const uploadFileName = "upload.zip"

type ConverterConfig struct {
	WorkDir     string
	InboxBucket string
}

// CompletionHook is notified after every successful run.
type CompletionHook interface {
	Trigger(ctx context.Context, payload any) (string, error)
}

// Dependencies are the collaborators of a ConverterFunction. Workflow and
// Storage may be nil.
type Dependencies struct {
	Pipeline *pipeline.Pipeline
	Blobs    blob.Store
	Registry *registry.Registry
	Jobs     jobs.Tracker
	Workflow CompletionHook
	Storage  *storage.Client
}

type ConverterFunction struct {
	config  ConverterConfig
	deps    Dependencies
	closers []io.Closer
}

type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// NewConverter builds every client the configuration asks for.
func NewConverter(ctx context.Context, cfg *config.Config) (*ConverterFunction, error) {
	f := &ConverterFunction{
		config: ConverterConfig{WorkDir: cfg.WorkDir, InboxBucket: cfg.InboxBucket},
	}
	if err := f.init(ctx, cfg); err != nil {
		f.Close()
		return nil, err
	}
	slog.Info("Project converter initialized.",
		"modelProvider", cfg.ModelProvider,
		"model", cfg.ModelName,
		"registryBackend", cfg.RegistryBackend,
		"workflowId", cfg.WorkflowID,
	)
	return f, nil
}

func (f *ConverterFunction) init(ctx context.Context, cfg *config.Config) error {
	var renderer *prompts.Renderer
	var err error
	if cfg.PromptCatalog != "" {
		renderer, err = prompts.Load(cfg.PromptCatalog, cfg.BasePackage)
	} else {
		renderer, err = prompts.New(cfg.BasePackage)
	}
	if err != nil {
		return err
	}

	var generator llm.Generator
	switch cfg.ModelProvider {
	case config.ProviderOllama:
		generator, err = llm.NewOllama(cfg.OllamaHost, cfg.ModelName, gcp.ConverterSystemPrompt)
		if err != nil {
			return err
		}
	default:
		vertexClient, err := gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.VertexAIRegion, cfg.ModelName)
		if err != nil {
			return fmt.Errorf("failed to create Vertex AI client: %w", err)
		}
		f.closers = append(f.closers, vertexClient)
		generator = llm.NewVertex(vertexClient.ConverterModel)
	}
	generator = llm.WithRetry(generator, cfg.ModelMaxAttempts, cfg.ModelBackoff)
	f.deps.Pipeline = pipeline.New(generator, renderer)

	if cfg.ArchiveBucket != "" || cfg.InboxBucket != "" {
		storageClient, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("failed to create Storage client: %w", err)
		}
		f.closers = append(f.closers, storageClient)
		f.deps.Storage = storageClient
	}

	var firestoreClient *firestore.Client
	if cfg.ProjectID != "" {
		firestoreClient, err = gcp.NewFirestoreClient(ctx, cfg.ProjectID)
		if err != nil {
			return fmt.Errorf("failed to create firestore client: %w", err)
		}
		f.closers = append(f.closers, firestoreClient)
		f.deps.Jobs = jobs.NewFirestore(firestoreClient, cfg.JobsCollection)
	} else {
		f.deps.Jobs = jobs.Nop{}
	}

	if cfg.ArchiveBucket != "" {
		f.deps.Blobs = blob.NewGCS(f.deps.Storage, cfg.ArchiveBucket, "archives/")
	} else {
		f.deps.Blobs, err = blob.NewLocal(cfg.ArchiveDir)
		if err != nil {
			return err
		}
	}

	var store registry.Store
	switch cfg.RegistryBackend {
	case config.BackendSQLite:
		store, err = registry.NewSQLiteStore(cfg.RegistrySQLitePath)
		if err != nil {
			return fmt.Errorf("failed to open registry database: %w", err)
		}
	case config.BackendFirestore:
		store = registry.NewFirestoreStore(firestoreClient, cfg.DownloadsCollection)
	default:
		store = registry.NewMemoryStore()
	}
	f.deps.Registry = registry.New(store, f.deps.Blobs, cfg.DownloadTTL)
	f.closers = append(f.closers, f.deps.Registry)

	if cfg.WorkflowID != "" {
		trigger, err := gcp.NewWorkflowTrigger(ctx, cfg.ProjectID, cfg.WorkflowLocation, cfg.WorkflowID)
		if err != nil {
			return err
		}
		f.closers = append(f.closers, trigger)
		f.deps.Workflow = trigger
	}
	return nil
}

// NewConverterWith assembles a ConverterFunction from existing collaborators.
func NewConverterWith(cfg ConverterConfig, deps Dependencies) *ConverterFunction {
	if deps.Jobs == nil {
		deps.Jobs = jobs.Nop{}
	}
	return &ConverterFunction{config: cfg, deps: deps}
}

// Close releases every client created by NewConverter.
func (f *ConverterFunction) Close() error {
	var errs []error
	for i := len(f.closers) - 1; i >= 0; i-- {
		if err := f.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	f.closers = nil
	return errors.Join(errs...)
}

// runStats counts the records of one run.
type runStats struct {
	converted  int
	failed     int
	lastError  string
	downloadID string
	location   string
}

// ConvertUpload converts the zip read from body, passing every record to
// emit. The "complete" record carries the download id of the published
// archive. Failures inside the run are reported as records; the returned
// error covers only saving the upload and emit failures.
func (f *ConverterFunction) ConvertUpload(ctx context.Context, filename string, body io.Reader, emit func(models.Record) error) error {
	logCtx := slog.With("filename", filename)

	runDir, err := os.MkdirTemp(f.config.WorkDir, "convert-*")
	if err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}
	defer os.RemoveAll(runDir)

	archivePath := filepath.Join(runDir, uploadFileName)
	if err := saveUpload(body, archivePath); err != nil {
		logCtx.Error("Failed to save upload", "error", err)
		return err
	}

	fileHash, err := calculateFileHash(archivePath)
	if err != nil {
		return fmt.Errorf("failed to calculate file hash: %w", err)
	}
	logCtx = logCtx.With("fileHash", fileHash)

	jobID, err := f.deps.Jobs.Create(ctx, fileHash, filename)
	if err != nil {
		logCtx.Error("Failed to create job document, continuing untracked", "error", err)
		jobID = uuid.NewString()
	}
	logCtx = logCtx.With("jobId", jobID)
	logCtx.Info("Starting conversion.")
	f.setStatus(ctx, logCtx, jobID, models.StatusConverting)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	records := f.deps.Pipeline.Run(runCtx, archivePath, runDir)

	var stats runStats
	for rec := range records {
		switch rec.Type {
		case models.RecordFile:
			stats.converted++
		case models.RecordError:
			stats.failed++
			stats.lastError = rec.Message
		case models.RecordComplete:
			location, downloadID, err := f.publish(ctx, jobID, rec.ArchivePath)
			if err != nil {
				logCtx.Error("Failed to publish archive", "error", err)
				rec = models.ErrorRecord(fmt.Sprintf("Failed to publish archive: %v", err))
				stats.lastError = rec.Message
			} else {
				rec.DownloadID = downloadID
				stats.downloadID = downloadID
				stats.location = location
				logCtx = logCtx.With("downloadId", downloadID)
			}
		}

		if err := emit(rec); err != nil {
			cancel()
			for range records {
			}
			f.fail(ctx, logCtx, jobID, fmt.Sprintf("client went away: %v", err))
			return fmt.Errorf("failed to emit record: %w", err)
		}
	}

	if stats.downloadID == "" {
		details := stats.lastError
		if ctx.Err() != nil {
			details = fmt.Sprintf("conversion cancelled: %v", ctx.Err())
		}
		f.fail(ctx, logCtx, jobID, details)
		return nil
	}

	summary := jobs.Summary{
		FileCount:      stats.converted + stats.failed,
		ConvertedCount: stats.converted,
		FailedCount:    stats.failed,
		DownloadID:     stats.downloadID,
	}
	if err := f.deps.Jobs.Finish(ctx, jobID, summary); err != nil {
		logCtx.Error("Failed to mark job complete", "error", err)
	}
	logCtx.Info("Conversion complete.", "converted", stats.converted, "failed", stats.failed)
	f.triggerWorkflow(ctx, logCtx, jobID, stats.location, summary)
	return nil
}

// publish moves the archive into the blob store and registers a download id.
func (f *ConverterFunction) publish(ctx context.Context, jobID, archivePath string) (location, downloadID string, err error) {
	location, err = f.deps.Blobs.Put(ctx, archivePath, jobID+".zip")
	if err != nil {
		return "", "", fmt.Errorf("failed to store archive: %w", err)
	}
	downloadID, err = f.deps.Registry.Register(ctx, location)
	if err != nil {
		if rmErr := f.deps.Blobs.Remove(ctx, location); rmErr != nil {
			slog.Warn("Failed to remove unregistered archive.", "location", location, "error", rmErr)
		}
		return "", "", err
	}
	return location, downloadID, nil
}

func (f *ConverterFunction) triggerWorkflow(ctx context.Context, logCtx *slog.Logger, jobID, location string, s jobs.Summary) {
	if f.deps.Workflow == nil {
		return
	}
	payload := models.CompletionWorkflowPayload{
		JobID:          jobID,
		DownloadID:     s.DownloadID,
		Archive:        location,
		ConvertedCount: s.ConvertedCount,
		FailedCount:    s.FailedCount,
	}
	execution, err := f.deps.Workflow.Trigger(ctx, payload)
	if err != nil {
		logCtx.Error("Failed to trigger completion workflow", "error", err)
		return
	}
	logCtx.Info("Triggered completion workflow.", "execution", execution)
}

func (f *ConverterFunction) setStatus(ctx context.Context, logCtx *slog.Logger, jobID, status string) {
	if err := f.deps.Jobs.SetStatus(ctx, jobID, status); err != nil {
		logCtx.Error("Failed to update job status", "status", status, "error", err)
	}
}

func (f *ConverterFunction) fail(ctx context.Context, logCtx *slog.Logger, jobID, details string) {
	logCtx.Error("Conversion failed.", "errorDetails", details)
	if err := f.deps.Jobs.Fail(context.WithoutCancel(ctx), jobID, details); err != nil {
		logCtx.Error("CRITICAL: Failed to update job status to FAILED after a conversion error.", "updateError", err)
	}
}

// Open returns the archive registered under downloadID.
func (f *ConverterFunction) Open(ctx context.Context, downloadID string) (io.ReadCloser, error) {
	location, err := f.deps.Registry.Resolve(ctx, downloadID)
	if errors.Is(err, registry.ErrNotFound) {
		return nil, ErrDownloadNotFound
	}
	if err != nil {
		return nil, err
	}
	rc, err := f.deps.Blobs.Open(ctx, location)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, ErrDownloadNotFound
	}
	return rc, err
}

// ProcessEvent converts a zip uploaded to the inbox bucket. Records are
// logged since there is no client to stream them to.
func (f *ConverterFunction) ProcessEvent(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	if !strings.EqualFold(path.Ext(e.Name), ".zip") {
		logCtx.Info("Ignoring non-zip object.")
		return nil
	}
	if f.deps.Storage == nil {
		return fmt.Errorf("no storage client configured for inbox events")
	}
	logCtx.Info("Processing new GCS object.")

	tempDir, err := os.MkdirTemp(f.config.WorkDir, "inbox-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	localPath := filepath.Join(tempDir, uploadFileName)
	if err := gcp.StreamGCSObject(ctx, f.deps.Storage, e.Bucket, e.Name, localPath); err != nil {
		logCtx.Error("Failed to download uploaded archive", "error", err)
		return err
	}
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open downloaded archive: %w", err)
	}
	defer file.Close()

	return f.ConvertUpload(ctx, path.Base(e.Name), file, func(rec models.Record) error {
		switch rec.Type {
		case models.RecordFile:
			logCtx.Info("Converted file.", "path", rec.Data.Path, "source", rec.Data.SourcePath)
		case models.RecordError:
			logCtx.Warn("Conversion error.", "message", rec.Message)
		case models.RecordComplete:
			logCtx.Info("Archive ready.", "downloadId", rec.DownloadID)
		}
		return nil
	})
}

// Sweep evicts expired downloads.
func (f *ConverterFunction) Sweep(ctx context.Context) error {
	_, err := f.deps.Registry.Sweep(ctx)
	return err
}

func saveUpload(body io.Reader, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create upload file: %w", err)
	}
	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		return fmt.Errorf("failed to save upload: %w", err)
	}
	return out.Close()
}

func calculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
