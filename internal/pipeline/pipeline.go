// Package pipeline runs one conversion: extract the upload, scan it,
// convert every eligible file through the model and archive the output,
// streaming a record per result as it goes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Lllllllleong/projectconverter/internal/archive"
	"github.com/Lllllllleong/projectconverter/internal/classify"
	"github.com/Lllllllleong/projectconverter/internal/llm"
	"github.com/Lllllllleong/projectconverter/internal/models"
	"github.com/Lllllllleong/projectconverter/internal/prompts"
	"github.com/Lllllllleong/projectconverter/internal/scanner"
)

var (
	// ErrNoEligibleFiles means the upload held nothing the pipeline converts.
	ErrNoEligibleFiles = errors.New("No suitable files found in the zip file!")
	// ErrConversion prefixes every per-file failure.
	ErrConversion = errors.New("Error converting")
)

// Working directory layout of a run.
const (
	ExtractDir = "extract"
	OutputDir  = "springboot_output"
)

// Pipeline converts extracted projects file by file.
type Pipeline struct {
	generator llm.Generator
	renderer  *prompts.Renderer
}

// New creates a Pipeline.
func New(generator llm.Generator, renderer *prompts.Renderer) *Pipeline {
	return &Pipeline{generator: generator, renderer: renderer}
}

// Run converts the zip at archivePath using workDir for extraction and
// output. The returned channel yields one record per converted file or
// failure, then one "complete" record carrying the archive path, and is
// closed when the run ends. Files are converted one at a time. Cancelling
// ctx stops the run before the next model call.
func (p *Pipeline) Run(ctx context.Context, archivePath, workDir string) <-chan models.Record {
	out := make(chan models.Record)
	go func() {
		defer close(out)
		r := &run{
			p:         p,
			out:       out,
			extractTo: filepath.Join(workDir, ExtractDir),
			outputDir: filepath.Join(workDir, OutputDir),
		}
		r.execute(ctx, archivePath)
	}()
	return out
}

// run holds the state of one conversion.
type run struct {
	p              *Pipeline
	out            chan<- models.Record
	extractTo      string
	outputDir      string
	bundle         scanner.Bundle
	entryPointDone bool
}

func (r *run) send(ctx context.Context, rec models.Record) bool {
	select {
	case r.out <- rec:
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *run) fail(ctx context.Context, err error) {
	slog.Error("Conversion run failed.", "error", err)
	r.send(ctx, models.ErrorRecord(err.Error()))
}

func (r *run) execute(ctx context.Context, archivePath string) {
	if err := archive.Extract(archivePath, r.extractTo); err != nil {
		r.fail(ctx, err)
		return
	}
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		r.fail(ctx, fmt.Errorf("create output directory: %w", err))
		return
	}

	bundle, tasks, err := scanner.Scan(r.extractTo)
	if err != nil {
		r.fail(ctx, err)
		return
	}
	if len(tasks) == 0 {
		r.fail(ctx, ErrNoEligibleFiles)
		return
	}
	r.bundle = bundle
	slog.Info("Scanned project.", "eligibleFiles", len(tasks))

	for _, task := range tasks {
		if ctx.Err() != nil {
			slog.Warn("Conversion cancelled.", "error", ctx.Err())
			return
		}

		a := classify.Classify(task)
		switch {
		case a.Category == classify.Skip:
			continue
		case a.Category == classify.EntryPoint:
			if r.entryPointDone {
				continue
			}
			r.entryPointDone = true
			if !r.convertEntryPoint(ctx, task) {
				return
			}
		default:
			if !r.send(ctx, r.convertFile(ctx, task, a)) {
				return
			}
		}
	}

	zipPath := r.outputDir + ".zip"
	if err := archive.Create(r.outputDir, zipPath); err != nil {
		r.fail(ctx, err)
		return
	}
	r.send(ctx, models.CompleteRecord(zipPath))
}

// convertFile produces the record for a single-artifact file.
func (r *run) convertFile(ctx context.Context, task scanner.Task, a classify.Assignment) models.Record {
	logCtx := slog.With("file", task.RelPath, "category", string(a.Category))

	source, err := scanner.ReadText(task.Path)
	if err != nil {
		return r.failure(logCtx, task, fmt.Errorf("read source: %w", err))
	}

	prompt, err := r.p.renderer.Render(r.promptContext(a, source))
	if err != nil {
		return r.failure(logCtx, task, err)
	}
	converted, err := r.p.generate(ctx, prompt)
	if err != nil {
		return r.failure(logCtx, task, err)
	}
	if err := r.writeOutput(a, converted); err != nil {
		return r.failure(logCtx, task, err)
	}

	logCtx.Info("Converted file.", "target", a.OutputPath())
	return models.FileRecord(models.ConvertedFile{
		Name:          a.Target,
		Path:          a.OutputPath(),
		SourcePath:    task.RelPath,
		OriginalCode:  source,
		ConvertedCode: converted,
	})
}

// convertEntryPoint generates the application class, security config and
// web config from one Program.cs. All three are generated before any is
// written, so a failure leaves none of them behind. It reports whether the
// consumer is still listening.
func (r *run) convertEntryPoint(ctx context.Context, task scanner.Task) bool {
	logCtx := slog.With("file", task.RelPath, "category", string(classify.EntryPoint))

	source, err := scanner.ReadText(task.Path)
	if err != nil {
		return r.send(ctx, r.failure(logCtx, task, fmt.Errorf("read source: %w", err)))
	}

	artifacts := classify.EntryPointArtifacts()
	kinds := []string{prompts.ApplicationTemplate, prompts.SecurityTemplate, prompts.WebTemplate}
	converted := make([]string, len(artifacts))
	for i, a := range artifacts {
		prompt, err := r.p.renderer.Render(prompts.EntryPointContext{
			Kind:      kinds[i],
			ClassName: strings.TrimSuffix(a.Target, ".java"),
			Program:   source,
			Startup:   r.bundle.Startup,
			Csproj:    r.bundle.Csproj,
		})
		if err == nil {
			converted[i], err = r.p.generate(ctx, prompt)
		}
		if err != nil {
			return r.send(ctx, r.failure(logCtx, task, fmt.Errorf("%s: %w", a.Target, err)))
		}
	}

	records := make([]models.Record, 0, len(artifacts))
	for i, a := range artifacts {
		if err := r.writeOutput(a, converted[i]); err != nil {
			r.removeOutputs(artifacts[:i])
			return r.send(ctx, r.failure(logCtx, task, err))
		}
		records = append(records, models.FileRecord(models.ConvertedFile{
			Name:          a.Target,
			Path:          a.OutputPath(),
			SourcePath:    task.RelPath,
			OriginalCode:  source,
			ConvertedCode: converted[i],
		}))
	}

	logCtx.Info("Generated application entry point and configuration.")
	for _, rec := range records {
		if !r.send(ctx, rec) {
			return false
		}
	}
	return true
}

func (r *run) failure(logCtx *slog.Logger, task scanner.Task, err error) models.Record {
	err = fmt.Errorf("%w %s: %w", ErrConversion, task.Name, err)
	logCtx.Error("File conversion failed.", "error", err)
	return models.ErrorRecord(err.Error())
}

// promptContext builds the typed template input for a single-artifact file.
func (r *run) promptContext(a classify.Assignment, source string) prompts.Context {
	switch a.Category {
	case classify.Repository:
		return prompts.RepositoryContext{Source: source}
	case classify.Service:
		return prompts.ServiceContext{ClassName: strings.TrimSuffix(a.Target, ".java"), Source: source}
	case classify.Model:
		return prompts.ModelContext{Source: source, DbContext: r.bundle.DbContext}
	case classify.Controller:
		return prompts.ControllerContext{Source: source}
	case classify.Settings:
		return prompts.SettingsContext{Source: source}
	default:
		return prompts.DescriptorContext{Source: source}
	}
}

func (r *run) writeOutput(a classify.Assignment, content string) error {
	dir := filepath.Join(r.outputDir, filepath.FromSlash(a.Folder))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output folder: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, a.Target), []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", a.OutputPath(), err)
	}
	return nil
}

// removeOutputs deletes artifacts already written for a failed group.
func (r *run) removeOutputs(written []classify.Assignment) {
	for _, a := range written {
		path := filepath.Join(r.outputDir, filepath.FromSlash(a.OutputPath()))
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Failed to remove partial output.", "path", a.OutputPath(), "error", err)
		}
	}
}

// generate calls the model and cleans its answer.
func (p *Pipeline) generate(ctx context.Context, prompt string) (string, error) {
	raw, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	text := Sanitize(raw)
	if text == "" {
		return "", llm.ErrEmptyResponse
	}
	if err := llm.CheckRefusal(text); err != nil {
		return "", err
	}
	return text, nil
}

var fenceReplacer = strings.NewReplacer("```java", "", "```xml", "", "```properties", "", "```", "")

// Sanitize trims the model output and removes every code fence marker.
func Sanitize(text string) string {
	return strings.TrimSpace(fenceReplacer.Replace(strings.TrimSpace(text)))
}
