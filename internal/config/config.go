// Package config loads service settings from an optional YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Lllllllleong/projectconverter/internal/gcp"
)

// Model providers.
const (
	ProviderVertex = "vertex"
	ProviderOllama = "ollama"
)

// Registry backends.
const (
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
)

// Config holds all service configuration.
type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	WorkDir  string `yaml:"work_dir"`
	// MaxUploadMB caps the request body of the convert endpoint.
	MaxUploadMB int `yaml:"max_upload_mb"`

	ProjectID      string `yaml:"project_id"`
	VertexAIRegion string `yaml:"vertex_ai_region"`

	ModelProvider    string        `yaml:"model_provider"`
	ModelName        string        `yaml:"model_name"`
	OllamaHost       string        `yaml:"ollama_host"`
	ModelMaxAttempts int           `yaml:"model_max_attempts"`
	ModelBackoff     time.Duration `yaml:"model_backoff"`
	PromptCatalog    string        `yaml:"prompt_catalog"`
	BasePackage      string        `yaml:"base_package"`

	ArchiveDir    string `yaml:"archive_dir"`
	ArchiveBucket string `yaml:"archive_bucket"`
	InboxBucket   string `yaml:"inbox_bucket"`

	RegistryBackend     string        `yaml:"registry_backend"`
	RegistrySQLitePath  string        `yaml:"registry_sqlite_path"`
	DownloadsCollection string        `yaml:"downloads_collection"`
	DownloadTTL         time.Duration `yaml:"download_ttl"`
	SweepSchedule       string        `yaml:"sweep_schedule"`

	JobsCollection   string `yaml:"jobs_collection"`
	WorkflowID       string `yaml:"workflow_id"`
	WorkflowLocation string `yaml:"workflow_location"`
}

// Path returns the config file path from CONVERTER_CONFIG or the default.
func Path() string {
	return gcp.GetEnv("CONVERTER_CONFIG", "config.yaml")
}

// Load reads the YAML file at path, if it exists, then applies defaults and
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Environment-only configuration.
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
	}

	if err := applyEnvironmentOverrides(cfg); err != nil {
		return nil, fmt.Errorf("apply environment: %w", err)
	}
	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if cfg.MaxUploadMB == 0 {
		cfg.MaxUploadMB = 100
	}
	if cfg.VertexAIRegion == "" {
		cfg.VertexAIRegion = "us-central1"
	}
	if cfg.ModelProvider == "" {
		cfg.ModelProvider = ProviderVertex
	}
	if cfg.ModelName == "" {
		switch cfg.ModelProvider {
		case ProviderOllama:
			cfg.ModelName = "codellama"
		default:
			cfg.ModelName = "gemini-1.5-pro"
		}
	}
	if cfg.OllamaHost == "" {
		cfg.OllamaHost = "http://localhost:11434"
	}
	if cfg.ModelMaxAttempts == 0 {
		cfg.ModelMaxAttempts = 1
	}
	if cfg.ModelBackoff == 0 {
		cfg.ModelBackoff = time.Second
	}
	if cfg.BasePackage == "" {
		cfg.BasePackage = "com.ezone"
	}
	if cfg.ArchiveDir == "" {
		cfg.ArchiveDir = "./archives"
	}
	if cfg.RegistryBackend == "" {
		cfg.RegistryBackend = BackendMemory
	}
	if cfg.RegistrySQLitePath == "" {
		cfg.RegistrySQLitePath = "./downloads.db"
	}
	if cfg.DownloadsCollection == "" {
		cfg.DownloadsCollection = "downloads"
	}
	if cfg.DownloadTTL == 0 {
		cfg.DownloadTTL = 24 * time.Hour
	}
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = "@every 10m"
	}
	if cfg.JobsCollection == "" {
		cfg.JobsCollection = "conversion_jobs"
	}
	if cfg.WorkflowLocation == "" {
		cfg.WorkflowLocation = "us-central1"
	}
}

func applyEnvironmentOverrides(cfg *Config) error {
	strs := map[string]*string{
		"PORT":                 &cfg.Port,
		"LOG_LEVEL":            &cfg.LogLevel,
		"WORK_DIR":             &cfg.WorkDir,
		"PROJECT_ID":           &cfg.ProjectID,
		"VERTEX_AI_REGION":     &cfg.VertexAIRegion,
		"MODEL_PROVIDER":       &cfg.ModelProvider,
		"MODEL_NAME":           &cfg.ModelName,
		"OLLAMA_HOST":          &cfg.OllamaHost,
		"PROMPT_CATALOG":       &cfg.PromptCatalog,
		"BASE_PACKAGE":         &cfg.BasePackage,
		"ARCHIVE_DIR":          &cfg.ArchiveDir,
		"ARCHIVE_BUCKET":       &cfg.ArchiveBucket,
		"INBOX_BUCKET":         &cfg.InboxBucket,
		"REGISTRY_BACKEND":     &cfg.RegistryBackend,
		"REGISTRY_SQLITE_PATH": &cfg.RegistrySQLitePath,
		"DOWNLOADS_COLLECTION": &cfg.DownloadsCollection,
		"SWEEP_SCHEDULE":       &cfg.SweepSchedule,
		"JOBS_COLLECTION":      &cfg.JobsCollection,
		"WORKFLOW_ID":          &cfg.WorkflowID,
		"WORKFLOW_LOCATION":    &cfg.WorkflowLocation,
	}
	for key, dst := range strs {
		if v := gcp.GetEnv(key, ""); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"MAX_UPLOAD_MB":      &cfg.MaxUploadMB,
		"MODEL_MAX_ATTEMPTS": &cfg.ModelMaxAttempts,
	}
	for key, dst := range ints {
		raw := gcp.GetEnv(key, "")
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%s must be an integer, got %q", key, raw)
		}
		*dst = n
	}

	durations := map[string]*time.Duration{
		"DOWNLOAD_TTL":  &cfg.DownloadTTL,
		"MODEL_BACKOFF": &cfg.ModelBackoff,
	}
	for key, dst := range durations {
		raw := gcp.GetEnv(key, "")
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("%s must be a duration, got %q", key, raw)
		}
		*dst = d
	}
	return nil
}

func validate(cfg *Config) error {
	switch cfg.ModelProvider {
	case ProviderVertex:
		if cfg.ProjectID == "" {
			return fmt.Errorf("project_id is required for the vertex model provider")
		}
	case ProviderOllama:
	default:
		return fmt.Errorf("model_provider must be %q or %q, got %q", ProviderVertex, ProviderOllama, cfg.ModelProvider)
	}

	switch cfg.RegistryBackend {
	case BackendMemory, BackendSQLite:
	case BackendFirestore:
		if cfg.ProjectID == "" {
			return fmt.Errorf("project_id is required for the firestore registry backend")
		}
	default:
		return fmt.Errorf("registry_backend must be one of memory, sqlite, firestore; got %q", cfg.RegistryBackend)
	}

	if cfg.InboxBucket != "" && cfg.ProjectID == "" {
		return fmt.Errorf("project_id is required when inbox_bucket is set")
	}
	if cfg.WorkflowID != "" && cfg.ProjectID == "" {
		return fmt.Errorf("project_id is required when workflow_id is set")
	}
	if cfg.MaxUploadMB < 0 {
		return fmt.Errorf("max_upload_mb must not be negative")
	}
	if cfg.ModelMaxAttempts < 1 {
		return fmt.Errorf("model_max_attempts must be at least 1")
	}
	if cfg.DownloadTTL < 0 {
		return fmt.Errorf("download_ttl must not be negative")
	}
	if _, err := cfg.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// MaxUploadBytes is the upload cap in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
