package models

// These structs define the newline-delimited JSON records streamed back to
// the caller of the convert endpoint, and the other JSON bodies the service
// exchanges.

// Record types.
const (
	RecordFile     = "file"
	RecordError    = "error"
	RecordComplete = "complete"
)

// ConvertedFile is the payload of a "file" record.
type ConvertedFile struct {
	Name          string `json:"name"`
	Path          string `json:"path"`
	SourcePath    string `json:"sourcePath"`
	OriginalCode  string `json:"originalCode"`
	ConvertedCode string `json:"convertedCode"`
}

// Record is one line of the conversion stream. Exactly one of Data, Message
// or DownloadID is meaningful, selected by Type.
type Record struct {
	Type       string         `json:"type"`
	Data       *ConvertedFile `json:"data,omitempty"`
	Message    string         `json:"message,omitempty"`
	DownloadID string         `json:"downloadId,omitempty"`

	// ArchivePath is the server-side location of the finished archive. It is
	// never serialized.
	ArchivePath string `json:"-"`
}

// FileRecord builds a "file" record.
func FileRecord(f ConvertedFile) Record {
	return Record{Type: RecordFile, Data: &f}
}

// ErrorRecord builds an "error" record.
func ErrorRecord(message string) Record {
	return Record{Type: RecordError, Message: message}
}

// CompleteRecord builds the internal "complete" record carrying the archive path.
func CompleteRecord(archivePath string) Record {
	return Record{Type: RecordComplete, ArchivePath: archivePath}
}

// ErrorResponse is the body of non-streamed error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CompletionWorkflowPayload is the argument passed to the completion workflow.
type CompletionWorkflowPayload struct {
	JobID          string `json:"jobId"`
	DownloadID     string `json:"downloadId"`
	Archive        string `json:"archive"`
	ConvertedCount int    `json:"convertedCount"`
	FailedCount    int    `json:"failedCount"`
}
