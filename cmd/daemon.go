package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jfmyers9/tapedeck/internal/config"
	"github.com/jfmyers9/tapedeck/internal/daemon"
	"github.com/jfmyers9/tapedeck/internal/music"
	"github.com/jfmyers9/tapedeck/internal/session"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	daemonLogFile  string
	daemonLogLevel string
	daemonDataDir  string
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the player daemon",
	Long: `Run the player daemon that owns the play queue and the audio output.

The daemon will:
- Restore the last session (queue, position, mode, volume) paused
- Play local audio files from the catalog
- Accept commands from the CLI and TUI on a local control socket
- Save the session periodically and on shutdown
- Handle graceful shutdown on SIGINT/SIGTERM

The daemon runs in the foreground and logs to stderr by default.
Use the --log-file flag to log to a file (useful for launchd or systemd).`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	// Command-line flags
	daemonCmd.Flags().StringVar(&daemonLogFile, "log-file", "", "Log file path (default: stderr)")
	daemonCmd.Flags().StringVar(&daemonLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	daemonCmd.Flags().StringVar(&daemonDataDir, "data-dir", "", "Data directory for catalog, session and socket (default: ~/.local/share/tapedeck)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Set up logging
	logger := setupLogger(daemonLogFile, daemonLogLevel)

	logger.Info().
		Str("version", version).
		Msg("Starting tapedeck daemon")

	// Determine data directory
	dataDir := cfg.DataDir
	socket := cfg.SocketPath
	if daemonDataDir != "" {
		dataDir = daemonDataDir
		socket = filepath.Join(dataDir, "tapedeck.sock")
	}
	if socketPath != "" {
		socket = socketPath
	}

	// Ensure data directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	logger.Info().Str("data_dir", dataDir).Msg("Using data directory")

	// Create audio engine
	engine, err := music.NewBeepEngine(music.BeepConfig{
		SampleRate:       cfg.Player.SampleRate,
		ProgressInterval: cfg.Player.ProgressInterval,
	}, logger)
	if errors.Is(err, music.ErrAudioUnavailable) {
		return fmt.Errorf("%w: rebuild with CGO_ENABLED=1 on linux", err)
	}
	if err != nil {
		return fmt.Errorf("failed to open audio output: %w", err)
	}

	// Create daemon config
	daemonCfg := daemon.Config{
		StateFile:       filepath.Join(dataDir, "session.json"),
		CatalogDB:       filepath.Join(dataDir, "catalog.db"),
		SocketPath:      socket,
		SaveInterval:    cfg.Persistence.SaveInterval,
		PersistInterval: cfg.Persistence.PersistInterval,
		Session: session.Options{
			LoadTimeout:      cfg.Player.LoadTimeout,
			RestartThreshold: cfg.Player.RestartThreshold,
			MaxAutoSkips:     cfg.Player.MaxAutoSkips,
		},
	}

	// Create daemon
	d, err := daemon.New(daemonCfg, engine, logger)
	if err != nil {
		engine.Close()
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	// Run daemon (blocks until shutdown signal)
	if err := d.Run(); err != nil {
		d.Shutdown()
		return fmt.Errorf("daemon error: %w", err)
	}

	// Graceful shutdown
	if err := d.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
		return err
	}

	logger.Info().Msg("Daemon stopped")
	return nil
}

// setupLogger creates a logger with the specified configuration
func setupLogger(logFile, logLevel string) zerolog.Logger {
	// Parse log level
	level := zerolog.InfoLevel
	switch logLevel {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	// Set up output
	var output *os.File
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			output = os.Stderr
		} else {
			output = f
		}
	} else {
		output = os.Stderr
	}

	// Create logger
	logger := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	// Use pretty console output if logging to stderr
	if output == os.Stderr {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	return logger
}
