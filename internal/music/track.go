package music

import (
	"path/filepath"
	"strings"
	"time"
)

// Track is an immutable catalog entry for a local audio file
type Track struct {
	ID          string        `json:"id"`
	Path        string        `json:"path"`
	Title       string        `json:"title"`
	Artist      string        `json:"artist"`
	Album       string        `json:"album"`
	Duration    time.Duration `json:"duration"`
	TrackNumber int           `json:"track_number,omitempty"`
	Year        int           `json:"year,omitempty"`
}

// DisplayTitle returns the title, falling back to the file name
func (t Track) DisplayTitle() string {
	if t.Title != "" {
		return t.Title
	}
	base := filepath.Base(t.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Format returns the lower-cased file extension without the dot ("mp3", "flac", ...)
func (t Track) Format() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(t.Path)), ".")
}
