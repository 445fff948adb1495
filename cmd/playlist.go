package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/jfmyers9/tapedeck/internal/catalog"
	"github.com/jfmyers9/tapedeck/internal/control"
	"github.com/jfmyers9/tapedeck/internal/music"
	"github.com/spf13/cobra"
)

// playlistCmd represents the playlist command
var playlistCmd = &cobra.Command{
	Use:     "playlist",
	Aliases: []string{"pl"},
	Short:   "List and edit named playlists",
	Long: `List named playlists, or edit them with the subcommands.

Playlists live in the catalog database and are referred to by name (any
case) or id. Positions are 1-based, as printed by "playlist show".`,
	Args: cobra.NoArgs,
	RunE: runPlaylistLs,
}

var playlistCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an empty playlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCatalog(func(ctx context.Context, cat *catalog.Catalog) error {
			p, err := cat.CreatePlaylist(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("✓ Created %s\n", p.Name)
			return nil
		})
	},
}

var playlistDeleteCmd = &cobra.Command{
	Use:   "delete <playlist>",
	Short: "Delete a playlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPlaylist(args[0], func(ctx context.Context, cat *catalog.Catalog, p *catalog.Playlist) error {
			if err := cat.DeletePlaylist(ctx, p.ID); err != nil {
				return err
			}
			fmt.Printf("✓ Deleted %s\n", p.Name)
			return nil
		})
	},
}

var playlistRenameCmd = &cobra.Command{
	Use:   "rename <playlist> <new-name>",
	Short: "Rename a playlist",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPlaylist(args[0], func(ctx context.Context, cat *catalog.Catalog, p *catalog.Playlist) error {
			return cat.RenamePlaylist(ctx, p.ID, args[1])
		})
	},
}

var playlistShowCmd = &cobra.Command{
	Use:   "show <playlist>",
	Short: "List the tracks of a playlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPlaylist(args[0], func(ctx context.Context, cat *catalog.Catalog, p *catalog.Playlist) error {
			if len(p.TrackIDs) == 0 {
				fmt.Printf("%s is empty\n", p.Name)
				return nil
			}
			tracks := make(map[string]music.Track, len(p.TrackIDs))
			for _, id := range p.TrackIDs {
				t, err := cat.Lookup(ctx, id)
				if errors.Is(err, catalog.ErrTrackNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				tracks[id] = *t
			}
			for _, line := range playlistEntryLines(p.TrackIDs, tracks) {
				fmt.Println(line)
			}
			return nil
		})
	},
}

var playlistAddCmd = &cobra.Command{
	Use:   "add <playlist> <track-id>...",
	Short: "Append catalog tracks to a playlist",
	Long: `Append catalog tracks to a playlist.

Tracks the playlist already holds are skipped.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPlaylist(args[0], func(ctx context.Context, cat *catalog.Catalog, p *catalog.Playlist) error {
			n, err := cat.AddToPlaylist(ctx, p.ID, args[1:]...)
			if err != nil {
				return err
			}
			fmt.Printf("✓ Added %d of %d tracks to %s\n", n, len(args)-1, p.Name)
			return nil
		})
	},
}

var playlistRmCmd = &cobra.Command{
	Use:   "rm <playlist> <position>",
	Short: "Remove an entry from a playlist",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parsePositionArg(args[1])
		if err != nil {
			return err
		}
		return withPlaylist(args[0], func(ctx context.Context, cat *catalog.Catalog, p *catalog.Playlist) error {
			return cat.RemoveFromPlaylist(ctx, p.ID, index)
		})
	},
}

var playlistMvCmd = &cobra.Command{
	Use:   "mv <playlist> <from> <to>",
	Short: "Move a playlist entry to another position",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := parsePositionArg(args[1])
		if err != nil {
			return err
		}
		to, err := parsePositionArg(args[2])
		if err != nil {
			return err
		}
		return withPlaylist(args[0], func(ctx context.Context, cat *catalog.Catalog, p *catalog.Playlist) error {
			return cat.ReorderPlaylist(ctx, p.ID, from, to)
		})
	},
}

var playlistPlayCmd = &cobra.Command{
	Use:   "play <playlist>",
	Short: "Replace the queue with a playlist and start playing",
	Long: `Replace the queue with the tracks of a playlist and start playing at
--start (1-based). Entries no longer in the catalog are left out.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, _ := cmd.Flags().GetInt("start")
		return playPlaylist(args[0], start)
	},
}

func init() {
	rootCmd.AddCommand(playlistCmd)
	playlistCmd.AddCommand(playlistCreateCmd)
	playlistCmd.AddCommand(playlistDeleteCmd)
	playlistCmd.AddCommand(playlistRenameCmd)
	playlistCmd.AddCommand(playlistShowCmd)
	playlistCmd.AddCommand(playlistAddCmd)
	playlistCmd.AddCommand(playlistRmCmd)
	playlistCmd.AddCommand(playlistMvCmd)
	playlistCmd.AddCommand(playlistPlayCmd)

	playlistCmd.PersistentFlags().StringVar(&catalogDataDir, "data-dir", "", "Data directory (default: from config)")
	playlistPlayCmd.Flags().IntP("start", "s", 1, "Playlist position to start playing (1-based)")
}

// withCatalog opens the catalog for the length of one command
func withCatalog(fn func(ctx context.Context, cat *catalog.Catalog) error) error {
	cat, err := openCatalog()
	if err != nil {
		return err
	}
	defer cat.Close()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	return fn(ctx, cat)
}

// withPlaylist resolves ref then runs fn with the open catalog
func withPlaylist(ref string, fn func(ctx context.Context, cat *catalog.Catalog, p *catalog.Playlist) error) error {
	return withCatalog(func(ctx context.Context, cat *catalog.Catalog) error {
		p, err := cat.FindPlaylist(ctx, ref)
		if err != nil {
			return err
		}
		return fn(ctx, cat, p)
	})
}

// playlistQueue returns the ids of a playlist's tracks still in the catalog
func playlistQueue(ref string) ([]string, error) {
	var ids []string
	err := withPlaylist(ref, func(ctx context.Context, cat *catalog.Catalog, p *catalog.Playlist) error {
		tracks, err := cat.PlaylistTracks(ctx, p.ID)
		if err != nil {
			return err
		}
		if len(tracks) == 0 {
			return fmt.Errorf("%s has no playable tracks", p.Name)
		}
		ids = make([]string, len(tracks))
		for i, t := range tracks {
			ids[i] = t.ID
		}
		return nil
	})
	return ids, err
}

func playPlaylist(ref string, start int) error {
	ids, err := playlistQueue(ref)
	if err != nil {
		return err
	}
	view, err := send(control.Request{Cmd: control.CmdSetQueue, TrackIDs: ids, Index: start - 1})
	if err != nil {
		return err
	}
	return reportLastError(view)
}

func runPlaylistLs(cmd *cobra.Command, args []string) error {
	return withCatalog(func(ctx context.Context, cat *catalog.Catalog) error {
		playlists, err := cat.Playlists(ctx)
		if err != nil {
			return err
		}
		if len(playlists) == 0 {
			fmt.Println("No playlists. Create one with: tapedeck playlist create <name>")
			return nil
		}
		for _, p := range playlists {
			fmt.Println(playlistLine(p))
		}
		return nil
	})
}

// playlistLine renders one row of the playlist listing
func playlistLine(p catalog.Playlist) string {
	noun := "tracks"
	if len(p.TrackIDs) == 1 {
		noun = "track"
	}
	return fmt.Sprintf("%s  %d %s", padToWidth(p.Name, 24), len(p.TrackIDs), noun)
}

// playlistEntryLines numbers a playlist's entries. Ids missing from tracks
// are shown as removed.
func playlistEntryLines(ids []string, tracks map[string]music.Track) []string {
	lines := make([]string, len(ids))
	for i, id := range ids {
		label := "(removed from catalog)"
		if t, ok := tracks[id]; ok {
			label = trackLabel(t)
		}
		lines[i] = fmt.Sprintf("%3d  %s  %s", i+1, id, label)
	}
	return lines
}
