package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jfmyers9/tapedeck/internal/config"
	"github.com/jfmyers9/tapedeck/internal/control"
	"github.com/jfmyers9/tapedeck/internal/tui"
	"github.com/spf13/cobra"
)

// tuiCmd represents the tui command
var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Display a terminal UI for the player",
	Long: `Display a terminal-based user interface for the running daemon.

The TUI includes:
- Now playing display with title, artist, and album
- Progress bar showing playback position
- The play queue; enter jumps to the highlighted track, d removes it
- Mode, volume and the last playback error

Keys: space play/pause, n next, p previous, s stop, m cycle mode,
+/- volume, left/right seek. Press 'q' to quit.`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)

	tuiCmd.Flags().Duration("refresh", 500*time.Millisecond, "How often to poll the daemon")
}

func runTUI(cmd *cobra.Command, args []string) error {
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

	tuiCfg := tui.DefaultConfig()
	tuiCfg.RefreshRate, _ = cmd.Flags().GetDuration("refresh")

	app := tui.NewWithConfig(client, tuiCfg)
	return app.Run(context.Background())
}
