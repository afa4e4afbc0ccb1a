// Package jobs records the lifecycle of each conversion run.
package jobs

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"

	"github.com/Lllllllleong/projectconverter/internal/models"
)

// DefaultCollection holds one document per conversion run.
const DefaultCollection = "conversion_jobs"

// Summary is the outcome of a finished run.
type Summary struct {
	FileCount      int
	ConvertedCount int
	FailedCount    int
	DownloadID     string
}

// Tracker persists job status. Callers log tracker errors and carry on;
// a run never fails because its status could not be recorded.
type Tracker interface {
	// Create starts a job in RECEIVED state and returns its id.
	Create(ctx context.Context, fileHash, filename string) (string, error)
	SetStatus(ctx context.Context, jobID, status string) error
	Finish(ctx context.Context, jobID string, s Summary) error
	Fail(ctx context.Context, jobID, details string) error
}

// Firestore writes models.ConversionJob documents.
type Firestore struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

// NewFirestore tracks jobs in collection.
func NewFirestore(client *firestore.Client, collection string) *Firestore {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Firestore{client: client, collection: collection, now: time.Now}
}

func (f *Firestore) Create(ctx context.Context, fileHash, filename string) (string, error) {
	newJob := models.ConversionJob{
		FileHash:         fileHash,
		OriginalFilename: filename,
		Status:           models.StatusReceived,
		CreatedAt:        f.now(),
	}
	docRef, _, err := f.client.Collection(f.collection).Add(ctx, newJob)
	if err != nil {
		return "", fmt.Errorf("failed to create job document: %w", err)
	}
	return docRef.ID, nil
}

func (f *Firestore) SetStatus(ctx context.Context, jobID, status string) error {
	return f.update(ctx, jobID, []firestore.Update{
		{Path: "status", Value: status},
	})
}

func (f *Firestore) Finish(ctx context.Context, jobID string, s Summary) error {
	return f.update(ctx, jobID, []firestore.Update{
		{Path: "status", Value: models.StatusComplete},
		{Path: "fileCount", Value: s.FileCount},
		{Path: "convertedCount", Value: s.ConvertedCount},
		{Path: "failedCount", Value: s.FailedCount},
		{Path: "downloadId", Value: s.DownloadID},
		{Path: "completedAt", Value: f.now()},
	})
}

func (f *Firestore) Fail(ctx context.Context, jobID, details string) error {
	return f.update(ctx, jobID, []firestore.Update{
		{Path: "status", Value: models.StatusFailed},
		{Path: "errorDetails", Value: details},
		{Path: "completedAt", Value: f.now()},
	})
}

func (f *Firestore) update(ctx context.Context, jobID string, updates []firestore.Update) error {
	if _, err := f.client.Collection(f.collection).Doc(jobID).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update job %s: %w", jobID, err)
	}
	return nil
}

// Nop hands out ids and records nothing. It is used when no project is
// configured.
type Nop struct{}

func (Nop) Create(context.Context, string, string) (string, error) { return uuid.NewString(), nil }
func (Nop) SetStatus(context.Context, string, string) error { return nil }
func (Nop) Finish(context.Context, string, Summary) error { return nil }
func (Nop) Fail(context.Context, string, string) error { return nil }
