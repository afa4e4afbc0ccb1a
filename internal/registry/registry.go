// Package registry maps opaque download ids to archive locations for a
// limited time. Locations never leave the server; callers only see ids.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/projectconverter/internal/blob"
	"github.com/Lllllllleong/projectconverter/internal/models"
)

// ErrNotFound is returned for ids that were never registered or have expired.
var ErrNotFound = errors.New("download not found")

// DefaultTTL is how long a download stays available when none is configured.
const DefaultTTL = 24 * time.Hour

// sweepConcurrency bounds parallel archive deletions during a sweep.
const sweepConcurrency = 8

// Expired is an entry returned by Store.Expired.
type Expired struct {
	ID    string
	Entry models.DownloadEntry
}

// Store persists registry entries. Implementations are safe for concurrent use.
type Store interface {
	Put(ctx context.Context, id string, e models.DownloadEntry) error
	// Get returns ErrNotFound when id is unknown.
	Get(ctx context.Context, id string) (models.DownloadEntry, error)
	Delete(ctx context.Context, id string) error
	// Expired lists entries whose ExpiresAt is not after now.
	Expired(ctx context.Context, now time.Time) ([]Expired, error)
	Close() error
}

// Registry issues and resolves download ids.
type Registry struct {
	store Store
	blobs blob.Store
	ttl   time.Duration
	now   func() time.Time
	newID func() string
}

// New creates a Registry. A non-positive ttl means DefaultTTL.
func New(store Store, blobs blob.Store, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		store: store,
		blobs: blobs,
		ttl:   ttl,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Register stores location under a fresh random id and returns the id.
func (r *Registry) Register(ctx context.Context, location string) (string, error) {
	id := r.newID()
	now := r.now().UTC()
	entry := models.DownloadEntry{
		Location:  location,
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl),
	}
	if err := r.store.Put(ctx, id, entry); err != nil {
		return "", fmt.Errorf("register download: %w", err)
	}
	return id, nil
}

// Resolve returns the location registered under id.
func (r *Registry) Resolve(ctx context.Context, id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", ErrNotFound
	}
	entry, err := r.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if !r.now().Before(entry.ExpiresAt) {
		return "", ErrNotFound
	}
	return entry.Location, nil
}

// Sweep deletes expired entries together with their archives and returns
// how many were removed. An entry whose archive cannot be removed is kept
// for the next sweep.
func (r *Registry) Sweep(ctx context.Context) (int, error) {
	expired, err := r.store.Expired(ctx, r.now())
	if err != nil {
		return 0, fmt.Errorf("list expired downloads: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	removed := make([]bool, len(expired))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(sweepConcurrency)
	for i, e := range expired {
		eg.Go(func() error {
			if err := r.blobs.Remove(gctx, e.Entry.Location); err != nil {
				slog.Warn("Failed to remove expired archive.", "downloadId", e.ID, "error", err)
				return nil
			}
			if err := r.store.Delete(gctx, e.ID); err != nil {
				return fmt.Errorf("delete entry %s: %w", e.ID, err)
			}
			removed[i] = true
			return nil
		})
	}
	err = eg.Wait()

	count := 0
	for _, ok := range removed {
		if ok {
			count++
		}
	}
	slog.Info("Swept expired downloads.", "expired", len(expired), "removed", count)
	return count, err
}

// Close releases the underlying store.
func (r *Registry) Close() error {
	return r.store.Close()
}
