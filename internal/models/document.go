package models

import "time"

// Job statuses, in the order a healthy run moves through them.
const (
	StatusReceived   = "RECEIVED"
	StatusConverting = "CONVERTING"
	StatusComplete   = "COMPLETE"
	StatusFailed     = "FAILED"
)

// ConversionJob represents the record of one conversion run in Firestore.
// It tracks the overall status and metadata of the uploaded archive.
type ConversionJob struct {
	FileHash         string    `firestore:"fileHash,omitempty"`
	OriginalFilename string    `firestore:"originalFilename,omitempty"`
	Status           string    `firestore:"status,omitempty"`
	ErrorDetails     string    `firestore:"errorDetails,omitempty"`
	FileCount        int       `firestore:"fileCount,omitempty"`
	ConvertedCount   int       `firestore:"convertedCount,omitempty"`
	FailedCount      int       `firestore:"failedCount,omitempty"`
	DownloadID       string    `firestore:"downloadId,omitempty"`
	CreatedAt        time.Time `firestore:"createdAt,omitempty"`
	CompletedAt      time.Time `firestore:"completedAt,omitempty"`
}

// DownloadEntry is the Firestore form of a download registry entry.
type DownloadEntry struct {
	Location  string    `firestore:"location"`
	CreatedAt time.Time `firestore:"createdAt"`
	ExpiresAt time.Time `firestore:"expiresAt"`
}
