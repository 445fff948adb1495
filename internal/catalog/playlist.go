package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jfmyers9/tapedeck/internal/music"
	"github.com/samber/lo"
)

var (
	// ErrPlaylistNotFound is returned when no playlist matches an id or name
	ErrPlaylistNotFound = errors.New("playlist not found")

	// ErrPlaylistExists is returned when another playlist already has the name
	ErrPlaylistExists = errors.New("a playlist with this name already exists")

	// ErrEmptyName is returned for blank playlist names
	ErrEmptyName = errors.New("playlist name cannot be empty")

	// ErrPositionOutOfRange is returned for playlist positions past either end
	ErrPositionOutOfRange = errors.New("playlist position out of range")
)

// Playlist is a named, ordered list of track ids. Ids are kept even after
// their track leaves the catalog and are skipped when resolved.
type Playlist struct {
	ID        string
	Name      string
	TrackIDs  []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreatePlaylist adds an empty playlist. Names are trimmed and unique
// regardless of case.
func (c *Catalog) CreatePlaylist(ctx context.Context, name string) (*Playlist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	if err := c.checkName(ctx, "", name); err != nil {
		return nil, err
	}

	now := time.Now()
	p := &Playlist{ID: uuid.NewString(), Name: name, CreatedAt: now, UpdatedAt: now}

	_, err := c.db.ExecContext(ctx,
		"INSERT INTO playlists (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)",
		p.ID, p.Name, now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert playlist: %w", err)
	}
	return p, nil
}

// FindPlaylist returns the playlist whose id or name (any case) is ref
func (c *Catalog) FindPlaylist(ctx context.Context, ref string) (*Playlist, error) {
	row := c.db.QueryRowContext(ctx,
		selectPlaylists+" WHERE id = ? OR name = ? COLLATE NOCASE ORDER BY id = ? DESC LIMIT 1",
		ref, strings.TrimSpace(ref), ref,
	)
	p, err := scanPlaylist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrPlaylistNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lookup playlist: %w", err)
	}

	if p.TrackIDs, err = c.playlistTrackIDs(ctx, c.db, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

// Playlists returns every playlist ordered by name
func (c *Catalog) Playlists(ctx context.Context) ([]Playlist, error) {
	rows, err := c.db.QueryContext(ctx, selectPlaylists+" ORDER BY name COLLATE NOCASE")
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists: %w", err)
	}

	var playlists []Playlist
	for rows.Next() {
		p, err := scanPlaylist(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan playlist: %w", err)
		}
		playlists = append(playlists, *p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating playlists: %w", err)
	}

	// Track ids are read once the playlist rows are closed; the pool has a
	// single connection.
	for i := range playlists {
		ids, err := c.playlistTrackIDs(ctx, c.db, playlists[i].ID)
		if err != nil {
			return nil, err
		}
		playlists[i].TrackIDs = ids
	}
	return playlists, nil
}

// DeletePlaylist removes a playlist and its entries
func (c *Catalog) DeletePlaylist(ctx context.Context, id string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, "DELETE FROM playlists WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("%w: %s", ErrPlaylistNotFound, id)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM playlist_tracks WHERE playlist_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete playlist tracks: %w", err)
	}
	return tx.Commit()
}

// RenamePlaylist changes the name of a playlist
func (c *Catalog) RenamePlaylist(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if err := c.checkName(ctx, id, name); err != nil {
		return err
	}

	result, err := c.db.ExecContext(ctx,
		"UPDATE playlists SET name = ?, updated_at = ? WHERE id = ?",
		name, time.Now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to rename playlist: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("%w: %s", ErrPlaylistNotFound, id)
	}
	return nil
}

// AddToPlaylist appends catalog tracks to a playlist, skipping ids it
// already holds. It returns how many were added.
func (c *Catalog) AddToPlaylist(ctx context.Context, id string, trackIDs ...string) (int, error) {
	for _, trackID := range trackIDs {
		if _, err := c.Lookup(ctx, trackID); err != nil {
			return 0, err
		}
	}

	added := 0
	err := c.editPlaylist(ctx, id, func(ids []string) ([]string, error) {
		fresh := lo.Without(lo.Uniq(trackIDs), ids...)
		added = len(fresh)
		return append(ids, fresh...), nil
	})
	return added, err
}

// RemoveFromPlaylist drops the entry at index
func (c *Catalog) RemoveFromPlaylist(ctx context.Context, id string, index int) error {
	return c.editPlaylist(ctx, id, func(ids []string) ([]string, error) {
		if index < 0 || index >= len(ids) {
			return nil, fmt.Errorf("%w: %d", ErrPositionOutOfRange, index)
		}
		return slices.Delete(ids, index, index+1), nil
	})
}

// ReorderPlaylist moves the entry at from to position to
func (c *Catalog) ReorderPlaylist(ctx context.Context, id string, from, to int) error {
	return c.editPlaylist(ctx, id, func(ids []string) ([]string, error) {
		if from < 0 || from >= len(ids) || to < 0 || to >= len(ids) {
			return nil, fmt.Errorf("%w: %d -> %d", ErrPositionOutOfRange, from, to)
		}
		moved := ids[from]
		ids = slices.Delete(ids, from, from+1)
		return slices.Insert(ids, to, moved), nil
	})
}

// PlaylistTracks resolves a playlist's entries in order, skipping ids no
// longer in the catalog
func (c *Catalog) PlaylistTracks(ctx context.Context, id string) ([]music.Track, error) {
	ids, err := c.playlistTrackIDs(ctx, c.db, id)
	if err != nil {
		return nil, err
	}

	tracks := make([]music.Track, 0, len(ids))
	for _, trackID := range ids {
		t, err := c.Lookup(ctx, trackID)
		if errors.Is(err, ErrTrackNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, *t)
	}
	return tracks, nil
}

// checkName fails with ErrPlaylistExists when a playlist other than id has name
func (c *Catalog) checkName(ctx context.Context, id, name string) error {
	var count int
	err := c.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM playlists WHERE name = ? COLLATE NOCASE AND id != ?",
		name, id,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to check playlist name: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: %s", ErrPlaylistExists, name)
	}
	return nil
}

// editPlaylist rewrites a playlist's entries with fn in one transaction
func (c *Catalog) editPlaylist(ctx context.Context, id string, fn func([]string) ([]string, error)) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, "UPDATE playlists SET updated_at = ? WHERE id = ?", time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to update playlist: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("%w: %s", ErrPlaylistNotFound, id)
	}

	ids, err := c.playlistTrackIDs(ctx, tx, id)
	if err != nil {
		return err
	}
	if ids, err = fn(ids); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM playlist_tracks WHERE playlist_id = ?", id); err != nil {
		return fmt.Errorf("failed to clear playlist tracks: %w", err)
	}
	for i, trackID := range ids {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO playlist_tracks (playlist_id, position, track_id) VALUES (?, ?, ?)",
			id, i, trackID,
		)
		if err != nil {
			return fmt.Errorf("failed to insert playlist track: %w", err)
		}
	}
	return tx.Commit()
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (c *Catalog) playlistTrackIDs(ctx context.Context, q querier, id string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT track_id FROM playlist_tracks WHERE playlist_id = ? ORDER BY position", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist tracks: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var trackID string
		if err := rows.Scan(&trackID); err != nil {
			return nil, fmt.Errorf("failed to scan playlist track: %w", err)
		}
		ids = append(ids, trackID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating playlist tracks: %w", err)
	}
	return ids, nil
}

const selectPlaylists = `
	SELECT id, name, created_at, updated_at
	FROM playlists
`

func scanPlaylist(row scanner) (*Playlist, error) {
	var p Playlist
	var created, updated int64
	if err := row.Scan(&p.ID, &p.Name, &created, &updated); err != nil {
		return nil, err
	}
	p.CreatedAt = time.UnixMilli(created)
	p.UpdatedAt = time.UnixMilli(updated)
	return &p, nil
}
