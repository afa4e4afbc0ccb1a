package jobs

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/Lllllllleong/projectconverter/internal/gcp"
	"github.com/Lllllllleong/projectconverter/internal/models"
)

func TestNopIssuesDistinctIDs(t *testing.T) {
	var tr Tracker = Nop{}
	ctx := context.Background()

	a, err := tr.Create(ctx, "hash", "shop.zip")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := tr.Create(ctx, "hash", "shop.zip")
	if a == b {
		t.Error("Nop ids must be unique")
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("id %q is not a uuid", a)
	}
	if err := tr.Finish(ctx, a, Summary{ConvertedCount: 1}); err != nil {
		t.Error(err)
	}
}

func readJob(ctx context.Context, t *testing.T, f *Firestore, jobID string) models.ConversionJob {
	t.Helper()
	snap, err := f.client.Collection(f.collection).Doc(jobID).Get(ctx)
	if err != nil {
		t.Fatalf("read job %s: %v", jobID, err)
	}
	var job models.ConversionJob
	if err := snap.DataTo(&job); err != nil {
		t.Fatalf("decode job %s: %v", jobID, err)
	}
	return job
}

// TestFirestoreLifecycle runs against the Firestore emulator when
// FIRESTORE_EMULATOR_HOST is set.
func TestFirestoreLifecycle(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	ctx := context.Background()
	client, err := gcp.NewFirestoreClient(ctx, "demo-project")
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	tr := NewFirestore(client, "conversion_jobs_test")
	id, err := tr.Create(ctx, "abc123", "shop.zip")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := tr.SetStatus(ctx, id, models.StatusConverting); err != nil {
		t.Fatal(err)
	}
	if err := tr.Finish(ctx, id, Summary{FileCount: 3, ConvertedCount: 2, FailedCount: 1, DownloadID: "d1"}); err != nil {
		t.Fatal(err)
	}

	job := readJob(ctx, t, tr, id)
	if job.Status != models.StatusComplete || job.ConvertedCount != 2 || job.DownloadID != "d1" {
		t.Errorf("job = %+v", job)
	}
}
