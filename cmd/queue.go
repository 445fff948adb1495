package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jfmyers9/tapedeck/internal/control"
	"github.com/jfmyers9/tapedeck/internal/music"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

// queueCmd represents the queue command
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show or edit the play queue",
	Long: `Show the play queue, marking the current track.

Queue positions are 1-based, as printed by this command.`,
	Args: cobra.NoArgs,
	RunE: runQueue,
}

var queueAddCmd = &cobra.Command{
	Use:   "add <track-id>...",
	Short: "Append tracks to the end of the queue",
	Long: `Append catalog tracks to the end of the queue.

Tracks already in the queue are skipped. If the queue was empty the first
track becomes current without starting playback.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQueueAdd,
}

var queueNextCmd = &cobra.Command{
	Use:   "next <track-id>",
	Short: "Play a track right after the current one",
	Long: `Place a catalog track immediately after the current track.

A track already in the queue is moved rather than duplicated.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := send(control.Request{Cmd: control.CmdInsertNext, TrackID: args[0]})
		return err
	},
}

var queueRmCmd = &cobra.Command{
	Use:   "rm <position>",
	Short: "Remove a track from the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parsePositionArg(args[0])
		if err != nil {
			return err
		}
		_, err = send(control.Request{Cmd: control.CmdRemove, Index: index})
		return err
	},
}

var queueMvCmd = &cobra.Command{
	Use:   "mv <from> <to>",
	Short: "Move a queue entry to another position",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := parsePositionArg(args[0])
		if err != nil {
			return err
		}
		to, err := parsePositionArg(args[1])
		if err != nil {
			return err
		}
		_, err = send(control.Request{Cmd: control.CmdMove, Index: from, To: to})
		return err
	},
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Stop playback and empty the queue",
	Args:  cobra.NoArgs,
	RunE:  simpleCommand(control.CmdClear),
}

var queueSetCmd = &cobra.Command{
	Use:   "set [track-id]...",
	Short: "Replace the queue and start playing",
	Long: `Replace the whole queue and start playing at --start (1-based).

With --all, the queue becomes every track in the catalog. With --playlist,
it becomes the tracks of a named playlist. With no tracks, the queue is
cleared.`,
	RunE: runQueueSet,
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueAddCmd)
	queueCmd.AddCommand(queueNextCmd)
	queueCmd.AddCommand(queueRmCmd)
	queueCmd.AddCommand(queueMvCmd)
	queueCmd.AddCommand(queueClearCmd)
	queueCmd.AddCommand(queueSetCmd)

	queueSetCmd.Flags().IntP("start", "s", 1, "Queue position to start playing (1-based)")
	queueSetCmd.Flags().Bool("all", false, "Queue the whole catalog")
	queueSetCmd.Flags().StringP("playlist", "p", "", "Queue a playlist by name or id")
}

// parsePositionArg converts a 1-based queue position into an index
func parsePositionArg(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid queue position: %s (must be 1 or greater)", s)
	}
	return n - 1, nil
}

func runQueue(cmd *cobra.Command, args []string) error {
	view, err := send(control.Request{Cmd: control.CmdState})
	if err != nil {
		return err
	}

	if len(view.Queue) == 0 {
		fmt.Println("Queue is empty")
		return nil
	}
	for _, line := range queueLines(view) {
		fmt.Println(line)
	}
	return nil
}

// queueLines renders the queue one entry per line, marking the current one
func queueLines(view *control.StateView) []string {
	lines := make([]string, len(view.Queue))
	for i, t := range view.Queue {
		marker := " "
		if i == view.CurrentIndex {
			marker = "▶"
		}
		lines[i] = fmt.Sprintf("%s %3d  %s  %s", marker, i+1, t.ID, trackLabel(t))
	}
	return lines
}

// trackLabel returns "Artist - Title", or just the title without an artist
func trackLabel(t music.Track) string {
	if t.Artist == "" {
		return t.DisplayTitle()
	}
	return t.Artist + " - " + t.DisplayTitle()
}

func runQueueAdd(cmd *cobra.Command, args []string) error {
	return withClient(func(ctx context.Context, client *control.Client) error {
		return addTracks(ctx, client, args, os.Stdout)
	})
}

// requester sends a single control request
type requester interface {
	Do(ctx context.Context, req control.Request) (*control.StateView, error)
}

// addTracks appends ids in order. Ids the daemon rejects, such as tracks
// already queued, are reported on w and skipped.
func addTracks(ctx context.Context, client requester, ids []string, w io.Writer) error {
	for _, id := range ids {
		_, err := client.Do(ctx, control.Request{Cmd: control.CmdAdd, TrackID: id})
		var remote *control.RemoteError
		if errors.As(err, &remote) && remote.Code == control.CodeInvalid {
			fmt.Fprintf(w, "Skipped %s: %s\n", id, remote.Message)
			continue
		}
		if err != nil {
			return fmt.Errorf("%s: %w", id, describeRemote(err))
		}
	}
	return nil
}

func runQueueSet(cmd *cobra.Command, args []string) error {
	start, _ := cmd.Flags().GetInt("start")
	all, _ := cmd.Flags().GetBool("all")
	playlist, _ := cmd.Flags().GetString("playlist")

	if countTrue(len(args) > 0, all, playlist != "") > 1 {
		return fmt.Errorf("use only one of track ids, --all or --playlist")
	}
	if playlist != "" {
		return playPlaylist(playlist, start)
	}

	ids := args
	if all {
		tracks, err := listCatalog()
		if err != nil {
			return err
		}
		ids = make([]string, len(tracks))
		for i, t := range tracks {
			ids[i] = t.ID
		}
	}

	view, err := send(control.Request{Cmd: control.CmdSetQueue, TrackIDs: ids, Index: start - 1})
	if err != nil {
		return err
	}
	return reportLastError(view)
}

func countTrue(conds ...bool) int {
	return lo.Count(conds, true)
}
