// Package api exposes the converter over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/Lllllllleong/projectconverter/internal/models"
	"github.com/Lllllllleong/projectconverter/internal/services"
)

// DownloadName is the file name clients save archives under.
const DownloadName = "springboot-project.zip"

// Converter is the part of services.ConverterFunction the handlers use.
type Converter interface {
	ConvertUpload(ctx context.Context, filename string, body io.Reader, emit func(models.Record) error) error
	Open(ctx context.Context, downloadID string) (io.ReadCloser, error)
}

type handler struct {
	converter      Converter
	maxUploadBytes int64
}

// NewHandler routes the convert, download and health endpoints. A
// non-positive maxUploadBytes disables the upload limit.
func NewHandler(c Converter, maxUploadBytes int64) http.Handler {
	h := &handler{converter: c, maxUploadBytes: maxUploadBytes}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/convert-stream", h.convertStream)
	mux.HandleFunc("GET /api/download/{id}", h.download)
	mux.HandleFunc("GET /healthz", healthCheckHandler)
	return corsMiddleware(mux)
}

// Sweeper evicts expired downloads.
type Sweeper interface {
	Sweep(ctx context.Context) error
}

// NewSweepHandler runs one expiry sweep per request, for deployments that
// trigger the sweep from a scheduler instead of an in-process cron.
func NewSweepHandler(s Sweeper) http.Handler {
	return corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.Sweep(r.Context()); err != nil {
			slog.Error("Download sweep failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Sweep failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}))
}

// Unavailable answers every request with 503, for instances whose
// initialization failed.
func Unavailable() http.Handler {
	return corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusServiceUnavailable, "Service unavailable")
	}))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,PUT,POST,DELETE,OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *handler) convertStream(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "Upload too large")
		case errors.Is(err, http.ErrMissingFile) && r.MultipartForm != nil && len(r.MultipartForm.Value["file"]) > 0:
			// A part named "file" without a filename parses as a plain value.
			writeError(w, http.StatusBadRequest, "No file selected")
		default:
			writeError(w, http.StatusBadRequest, "No file uploaded")
		}
		return
	}
	defer file.Close()
	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "No file selected")
		return
	}

	logCtx := slog.With("filename", header.Filename, "size", header.Size)
	logCtx.Info("Received upload.")

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	streamBroken := false
	emit := func(rec models.Record) error {
		if err := enc.Encode(rec); err != nil {
			streamBroken = true
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	if err := h.converter.ConvertUpload(r.Context(), header.Filename, file, emit); err != nil {
		logCtx.Error("Conversion stream ended with an error", "error", err)
		if !streamBroken {
			_ = emit(models.ErrorRecord(err.Error()))
		}
	}
}

func (h *handler) download(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	logCtx := slog.With("downloadId", id)

	rc, err := h.converter.Open(r.Context(), id)
	if errors.Is(err, services.ErrDownloadNotFound) {
		writeError(w, http.StatusNotFound, "File not found or expired")
		return
	}
	if err != nil {
		logCtx.Error("Failed to open archive", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+DownloadName+`"`)
	if _, err := io.Copy(w, rc); err != nil {
		logCtx.Warn("Download interrupted", "error", err)
	}
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("Failed to write response body", "error", err)
	}
}
