package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Lllllllleong/projectconverter/internal/models"
)

// SQLiteStore keeps entries in a SQLite file so downloads survive restarts.
type SQLiteStore struct {
	conn *sql.DB
}

// NewSQLiteStore opens the database at path and initializes the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLiteStore{conn: conn}
	if err := s.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS downloads (
		id TEXT PRIMARY KEY,
		location TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_downloads_expires_at ON downloads(expires_at);
	`
	_, err := s.conn.Exec(schema)
	return err
}

func (s *SQLiteStore) Put(ctx context.Context, id string, e models.DownloadEntry) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO downloads (id, location, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		id, e.Location, e.CreatedAt.UnixNano(), e.ExpiresAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert download: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (models.DownloadEntry, error) {
	var location string
	var created, expires int64
	err := s.conn.QueryRowContext(ctx,
		`SELECT location, created_at, expires_at FROM downloads WHERE id = ?`, id,
	).Scan(&location, &created, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DownloadEntry{}, ErrNotFound
	}
	if err != nil {
		return models.DownloadEntry{}, fmt.Errorf("query download: %w", err)
	}
	return models.DownloadEntry{
		Location:  location,
		CreatedAt: time.Unix(0, created).UTC(),
		ExpiresAt: time.Unix(0, expires).UTC(),
	}, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM downloads WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete download: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Expired(ctx context.Context, now time.Time) ([]Expired, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, location, created_at, expires_at FROM downloads WHERE expires_at <= ?`, now.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("query expired downloads: %w", err)
	}
	defer rows.Close()

	var out []Expired
	for rows.Next() {
		var e Expired
		var created, expires int64
		if err := rows.Scan(&e.ID, &e.Entry.Location, &created, &expires); err != nil {
			return nil, fmt.Errorf("scan download: %w", err)
		}
		e.Entry.CreatedAt = time.Unix(0, created).UTC()
		e.Entry.ExpiresAt = time.Unix(0, expires).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}
