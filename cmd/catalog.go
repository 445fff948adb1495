package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jfmyers9/tapedeck/internal/catalog"
	"github.com/jfmyers9/tapedeck/internal/config"
	"github.com/jfmyers9/tapedeck/internal/music"
	"github.com/spf13/cobra"
)

var catalogDataDir string

// catalogCmd represents the catalog command
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the track catalog",
	Long: `Manage the catalog of local audio files the player can queue.

Every track gets a stable id. Queue commands and the saved session refer
to tracks by these ids.`,
}

var catalogAddCmd = &cobra.Command{
	Use:   "add <file|dir>...",
	Short: "Add audio files or scan directories",
	Long: `Add audio files to the catalog.

Directories are scanned recursively for supported formats (` + strings.Join(catalog.SupportedFormats, ", ") + `).
Re-adding a known path updates its metadata and keeps its id.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCatalogAdd,
}

var catalogLsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List catalog tracks",
	Args:    cobra.NoArgs,
	RunE:    runCatalogLs,
}

var catalogRmCmd = &cobra.Command{
	Use:   "rm <track-id>...",
	Short: "Remove tracks from the catalog",
	Long: `Remove tracks from the catalog.

Removed tracks stay in a running daemon's queue until it restarts, when
they are dropped from the restored session.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCatalogRm,
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogAddCmd)
	catalogCmd.AddCommand(catalogLsCmd)
	catalogCmd.AddCommand(catalogRmCmd)

	catalogCmd.PersistentFlags().StringVar(&catalogDataDir, "data-dir", "", "Data directory (default: from config)")
	catalogAddCmd.Flags().String("title", "", "Title for a single added file")
	catalogAddCmd.Flags().String("artist", "", "Artist for added files (directories use file names only)")
	catalogAddCmd.Flags().String("album", "", "Album for added files (directories use the folder name)")
	catalogAddCmd.Flags().Duration("duration", 0, "Duration for a single added file")
}

// openCatalog opens <data_dir>/catalog.db
func openCatalog() (*catalog.Catalog, error) {
	dataDir := catalogDataDir
	if dataDir == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		dataDir = cfg.DataDir
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return catalog.Open(filepath.Join(dataDir, "catalog.db"))
}

// listCatalog returns every catalog track in listing order
func listCatalog() ([]music.Track, error) {
	cat, err := openCatalog()
	if err != nil {
		return nil, err
	}
	defer cat.Close()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	return cat.List(ctx)
}

func runCatalogAdd(cmd *cobra.Command, args []string) error {
	title, _ := cmd.Flags().GetString("title")
	artist, _ := cmd.Flags().GetString("artist")
	album, _ := cmd.Flags().GetString("album")
	duration, _ := cmd.Flags().GetDuration("duration")

	if (title != "" || duration != 0) && len(args) > 1 {
		return fmt.Errorf("--title and --duration apply to a single file")
	}

	cat, err := openCatalog()
	if err != nil {
		return err
	}
	defer cat.Close()

	ctx := context.Background()
	for _, arg := range args {
		path, err := filepath.Abs(arg)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", arg, err)
		}

		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", arg, err)
		}

		if info.IsDir() {
			n, err := cat.Scan(ctx, path)
			if err != nil {
				return err
			}
			fmt.Printf("✓ Scanned %s: %d tracks\n", path, n)
			continue
		}

		if !catalog.IsSupported(path) {
			return fmt.Errorf("unsupported format: %s", arg)
		}

		t, err := cat.Add(ctx, music.Track{
			Path:     path,
			Title:    title,
			Artist:   artist,
			Album:    album,
			Duration: duration,
		})
		if err != nil {
			return err
		}
		fmt.Printf("✓ %s  %s\n", t.ID, trackLabel(*t))
	}

	return nil
}

func runCatalogLs(cmd *cobra.Command, args []string) error {
	tracks, err := listCatalog()
	if err != nil {
		return err
	}

	if len(tracks) == 0 {
		fmt.Println("Catalog is empty. Add music with: tapedeck catalog add <dir>")
		return nil
	}
	for _, t := range tracks {
		fmt.Println(catalogLine(t))
	}
	return nil
}

// catalogLine renders one listing row with fixed-width columns
func catalogLine(t music.Track) string {
	duration := ""
	if t.Duration > 0 {
		duration = formatClock(t.Duration)
	}
	return fmt.Sprintf("%s  %s  %s  %s",
		t.ID,
		padToWidth(t.Artist, 20),
		padToWidth(t.DisplayTitle(), 32),
		duration,
	)
}

// formatClock formats a duration as M:SS
func formatClock(d time.Duration) string {
	secs := int(d.Round(time.Second).Seconds())
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

func runCatalogRm(cmd *cobra.Command, args []string) error {
	cat, err := openCatalog()
	if err != nil {
		return err
	}
	defer cat.Close()

	ctx := context.Background()
	for _, id := range args {
		if err := cat.Remove(ctx, id); err != nil {
			return fmt.Errorf("%s: %w", id, err)
		}
		fmt.Printf("✓ Removed %s\n", id)
	}
	return nil
}
