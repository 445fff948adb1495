// Package catalog is the SQLite-backed index of local tracks and playlists
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jfmyers9/tapedeck/internal/music"
	_ "modernc.org/sqlite"
)

// ErrTrackNotFound is returned when no track has the requested id
var ErrTrackNotFound = errors.New("track not found")

// SupportedFormats lists the file extensions the engine can decode
var SupportedFormats = []string{"mp3", "flac", "wav"}

// Catalog resolves track ids to tracks
type Catalog struct {
	db *sql.DB
}

// Open opens (creating if needed) the catalog database at dbPath
func Open(dbPath string) (*Catalog, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool size to 1 for in-memory databases to ensure consistency
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA journal_mode = WAL",
		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS tracks (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL DEFAULT '',
			artist TEXT NOT NULL DEFAULT '',
			album TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			track_number INTEGER NOT NULL DEFAULT 0,
			year INTEGER NOT NULL DEFAULT 0,
			added_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);

		CREATE INDEX IF NOT EXISTS idx_tracks_artist ON tracks(artist, album, track_number);

		CREATE TABLE IF NOT EXISTS playlists (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE COLLATE NOCASE,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS playlist_tracks (
			playlist_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			track_id TEXT NOT NULL,
			PRIMARY KEY (playlist_id, position)
		);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Catalog{db: db}, nil
}

// Close closes the database connection
func (c *Catalog) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Add inserts or updates a track keyed by its path. An empty ID is assigned
// a new one. The stored track is returned.
func (c *Catalog) Add(ctx context.Context, t music.Track) (*music.Track, error) {
	if t.Path == "" {
		return nil, errors.New("track path is required")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	query := `
		INSERT INTO tracks (id, path, title, artist, album, duration_ms, track_number, year)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title = excluded.title,
			artist = excluded.artist,
			album = excluded.album,
			duration_ms = excluded.duration_ms,
			track_number = excluded.track_number,
			year = excluded.year
	`

	_, err := c.db.ExecContext(ctx, query,
		t.ID,
		t.Path,
		t.Title,
		t.Artist,
		t.Album,
		t.Duration.Milliseconds(),
		t.TrackNumber,
		t.Year,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert track: %w", err)
	}

	// The id of an existing row wins over the generated one
	return c.byPath(ctx, t.Path)
}

// Lookup returns the track with the given id
func (c *Catalog) Lookup(ctx context.Context, id string) (*music.Track, error) {
	row := c.db.QueryRowContext(ctx, selectTracks+" WHERE id = ?", id)
	t, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTrackNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lookup track: %w", err)
	}
	return t, nil
}

func (c *Catalog) byPath(ctx context.Context, path string) (*music.Track, error) {
	row := c.db.QueryRowContext(ctx, selectTracks+" WHERE path = ?", path)
	t, err := scanTrack(row)
	if err != nil {
		return nil, fmt.Errorf("failed to read back track: %w", err)
	}
	return t, nil
}

// List returns every track ordered by artist, album and track number
func (c *Catalog) List(ctx context.Context) ([]music.Track, error) {
	rows, err := c.db.QueryContext(ctx, selectTracks+" ORDER BY artist, album, track_number, title")
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []music.Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		tracks = append(tracks, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tracks: %w", err)
	}

	return tracks, nil
}

// Remove deletes the track with the given id
func (c *Catalog) Remove(ctx context.Context, id string) error {
	result, err := c.db.ExecContext(ctx, "DELETE FROM tracks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete track: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrTrackNotFound, id)
	}

	return nil
}

// Count returns the number of tracks in the catalog
func (c *Catalog) Count(ctx context.Context) (int, error) {
	var count int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tracks").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tracks: %w", err)
	}
	return count, nil
}

// Scan walks root and adds every supported audio file it finds. Titles
// default to the file name, so tracks without metadata stay listable.
func (c *Catalog) Scan(ctx context.Context, root string) (int, error) {
	added := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !IsSupported(path) {
			return nil
		}

		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		t := music.Track{Path: abs}
		t.Title = t.DisplayTitle()
		t.Album = filepath.Base(filepath.Dir(abs))

		if _, err := c.Add(ctx, t); err != nil {
			return err
		}
		added++
		return nil
	})
	if err != nil {
		return added, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	return added, nil
}

// IsSupported reports whether path has a decodable extension
func IsSupported(path string) bool {
	return slices.Contains(SupportedFormats, (music.Track{Path: path}).Format())
}

const selectTracks = `
	SELECT id, path, title, artist, album, duration_ms, track_number, year
	FROM tracks
`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrack(row scanner) (*music.Track, error) {
	var t music.Track
	var durationMs int64

	err := row.Scan(
		&t.ID,
		&t.Path,
		&t.Title,
		&t.Artist,
		&t.Album,
		&durationMs,
		&t.TrackNumber,
		&t.Year,
	)
	if err != nil {
		return nil, err
	}

	t.Duration = time.Duration(durationMs) * time.Millisecond
	return &t, nil
}
