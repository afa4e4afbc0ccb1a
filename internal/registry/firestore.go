package registry

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/Lllllllleong/projectconverter/internal/gcp"
	"github.com/Lllllllleong/projectconverter/internal/models"
)

// FirestoreStore keeps one document per download id.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore uses collection on an existing client. The client is
// shared with job tracking, so Close does not close it.
func NewFirestoreStore(client *firestore.Client, collection string) *FirestoreStore {
	return &FirestoreStore{client: client, collection: collection}
}

func (f *FirestoreStore) Put(ctx context.Context, id string, e models.DownloadEntry) error {
	if _, err := f.client.Collection(f.collection).Doc(id).Set(ctx, e); err != nil {
		return fmt.Errorf("failed to write download document: %w", err)
	}
	return nil
}

func (f *FirestoreStore) Get(ctx context.Context, id string) (models.DownloadEntry, error) {
	var e models.DownloadEntry
	snap, err := f.client.Collection(f.collection).Doc(id).Get(ctx)
	if gcp.IsNotFound(err) {
		return e, ErrNotFound
	}
	if err != nil {
		return e, fmt.Errorf("failed to read download document: %w", err)
	}
	if err := snap.DataTo(&e); err != nil {
		return e, fmt.Errorf("failed to decode download document: %w", err)
	}
	return e, nil
}

func (f *FirestoreStore) Delete(ctx context.Context, id string) error {
	if _, err := f.client.Collection(f.collection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete download document: %w", err)
	}
	return nil
}

func (f *FirestoreStore) Expired(ctx context.Context, now time.Time) ([]Expired, error) {
	it := f.client.Collection(f.collection).Where("expiresAt", "<=", now).Documents(ctx)
	defer it.Stop()

	var out []Expired
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query expired downloads: %w", err)
		}
		var e models.DownloadEntry
		if err := snap.DataTo(&e); err != nil {
			return nil, fmt.Errorf("failed to decode download document %s: %w", snap.Ref.ID, err)
		}
		out = append(out, Expired{ID: snap.Ref.ID, Entry: e})
	}
	return out, nil
}

func (f *FirestoreStore) Close() error { return nil }
