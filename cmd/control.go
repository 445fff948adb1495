package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jfmyers9/tapedeck/internal/config"
	"github.com/jfmyers9/tapedeck/internal/control"
	"github.com/jfmyers9/tapedeck/internal/session"
	"github.com/spf13/cobra"
)

const commandTimeout = 5 * time.Second

// playCmd represents the play command
var playCmd = &cobra.Command{
	Use:   "play [track-id]",
	Short: "Start or resume playback",
	Long: `Start or resume playback of the current track.

With a track id, plays that catalog track: it is queued after the current
track unless already in the queue. With --index, jumps to that queue
position (1-based).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlay,
}

// pauseCmd represents the pause command
var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause playback",
	Long:  `Pause playback, keeping the position.`,
	Args:  cobra.NoArgs,
	RunE:  simpleCommand(control.CmdPause),
}

// playpauseCmd represents the playpause command
var playpauseCmd = &cobra.Command{
	Use:   "playpause",
	Short: "Toggle play/pause",
	Long:  `Toggle between play and pause states. If playing, pauses. If paused, resumes.`,
	Args:  cobra.NoArgs,
	RunE:  simpleCommand(control.CmdToggle),
}

// stopCmd represents the stop command
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop playback",
	Long:  `Stop playback and rewind the current track to the start.`,
	Args:  cobra.NoArgs,
	RunE:  simpleCommand(control.CmdStop),
}

// nextCmd represents the next command
var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Skip to next track",
	Long:  `Skip to the next track according to the playback mode.`,
	Args:  cobra.NoArgs,
	RunE:  simpleCommand(control.CmdNext),
}

// prevCmd represents the prev command
var prevCmd = &cobra.Command{
	Use:   "prev",
	Short: "Go to previous track",
	Long: `Go to the previous track according to the playback mode.

If more than a few seconds of the current track have played, restarts it instead.`,
	Args: cobra.NoArgs,
	RunE: simpleCommand(control.CmdPrevious),
}

// seekCmd represents the seek command
var seekCmd = &cobra.Command{
	Use:   "seek <seconds|duration>",
	Short: "Seek within the current track",
	Long: `Move the playback position of the current track.

Accepts plain seconds ("90") or a Go duration ("1m30s"). Positions past the
end of the track are clamped.`,
	Args: cobra.ExactArgs(1),
	RunE: runSeek,
}

// volumeCmd represents the volume command
var volumeCmd = &cobra.Command{
	Use:   "volume [0-100]",
	Short: "Show or set playback volume",
	Long: `Set the playback volume.

Volume level must be between 0 (muted) and 100 (maximum).
Without arguments, displays the current volume.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVolume,
}

// modeCmd represents the mode command
var modeCmd = &cobra.Command{
	Use:   "mode [sequential|shuffle|repeat-one|repeat-all]",
	Short: "Show or set the playback mode",
	Long: `Control how the next and previous tracks are chosen.

Without arguments, displays the current mode.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: modeNames(),
	RunE:      runMode,
}

func init() {
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(playpauseCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(prevCmd)
	rootCmd.AddCommand(seekCmd)
	rootCmd.AddCommand(volumeCmd)
	rootCmd.AddCommand(modeCmd)

	playCmd.Flags().IntP("index", "i", 0, "Queue position to jump to (1-based)")
}

// withClient connects to the daemon and runs fn with a bounded context
func withClient(fn func(ctx context.Context, client *control.Client) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	path := cfg.SocketPath
	if socketPath != "" {
		path = socketPath
	}

	client, err := control.Dial(path, 2*time.Second)
	if err != nil {
		return fmt.Errorf("daemon not running? %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	return fn(ctx, client)
}

// send issues a single request and returns the resulting state
func send(req control.Request) (*control.StateView, error) {
	var view *control.StateView
	err := withClient(func(ctx context.Context, client *control.Client) error {
		v, err := client.Do(ctx, req)
		if err != nil {
			return describeRemote(err)
		}
		view = v
		return nil
	})
	return view, err
}

// simpleCommand builds a RunE that sends cmd without arguments
func simpleCommand(cmd string) func(*cobra.Command, []string) error {
	return func(*cobra.Command, []string) error {
		view, err := send(control.Request{Cmd: cmd})
		if err != nil {
			return err
		}
		return reportLastError(view)
	}
}

// describeRemote turns daemon error codes into CLI-friendly messages
func describeRemote(err error) error {
	var remote *control.RemoteError
	if !errors.As(err, &remote) {
		return err
	}
	switch remote.Code {
	case control.CodeNotFound:
		return fmt.Errorf("not in catalog: %s", remote.Message)
	case control.CodeInvalid:
		return fmt.Errorf("rejected: %s", remote.Message)
	default:
		return fmt.Errorf("daemon error: %s", remote.Message)
	}
}

// reportLastError surfaces a playback failure the command left behind
func reportLastError(view *control.StateView) error {
	if view != nil && view.LastError != "" {
		return errors.New(view.LastError)
	}
	return nil
}

func runPlay(cmd *cobra.Command, args []string) error {
	req := control.Request{Cmd: control.CmdPlay}

	index, _ := cmd.Flags().GetInt("index")
	switch {
	case cmd.Flags().Changed("index") && len(args) > 0:
		return fmt.Errorf("use either a track id or --index, not both")
	case cmd.Flags().Changed("index"):
		req = control.Request{Cmd: control.CmdJump, Index: index - 1}
	case len(args) == 1:
		req.TrackID = args[0]
	}

	view, err := send(req)
	if err != nil {
		return err
	}
	return reportLastError(view)
}

// parsePosition accepts whole or fractional seconds or a Go duration
func parsePosition(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("position must not be negative: %s", s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid position: %s (use seconds or a duration like 1m30s)", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("position must not be negative: %s", s)
	}
	return d, nil
}

func runSeek(cmd *cobra.Command, args []string) error {
	pos, err := parsePosition(args[0])
	if err != nil {
		return err
	}

	view, err := send(control.Request{Cmd: control.CmdSeek, Position: pos})
	if err != nil {
		return err
	}
	return reportLastError(view)
}

// parseVolume converts a 0-100 level into the session's [0,1] range
func parseVolume(s string) (float64, error) {
	level, err := strconv.Atoi(s)
	if err != nil || level < 0 || level > 100 {
		return 0, fmt.Errorf("invalid volume level: %s (must be a number 0-100)", s)
	}
	return float64(level) / 100, nil
}

func runVolume(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		view, err := send(control.Request{Cmd: control.CmdState})
		if err != nil {
			return err
		}
		fmt.Printf("%d\n", int(view.Volume*100+0.5))
		return nil
	}

	level, err := parseVolume(args[0])
	if err != nil {
		return err
	}

	_, err = send(control.Request{Cmd: control.CmdVolume, Volume: level})
	return err
}

func modeNames() []string {
	names := make([]string, len(session.Modes))
	for i, m := range session.Modes {
		names[i] = m.String()
	}
	return names
}

func runMode(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		view, err := send(control.Request{Cmd: control.CmdState})
		if err != nil {
			return err
		}
		fmt.Println(view.Mode)
		return nil
	}

	mode, err := session.ParseMode(args[0])
	if err != nil {
		return fmt.Errorf("invalid mode: %s (must be one of %v)", args[0], modeNames())
	}

	_, err = send(control.Request{Cmd: control.CmdMode, Mode: mode.String()})
	return err
}
