package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/jfmyers9/tapedeck/internal/config"
	"github.com/spf13/cobra"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Show the configuration after defaults, ~/.config/tapedeck/config.yaml
and TAPEDECK_* environment overrides are applied.

With --write, saves it to the config file so it can be edited.`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.Flags().Bool("write", false, "Write the effective configuration to the config file")
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	write, _ := cmd.Flags().GetBool("write")
	if write {
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Printf("✓ Configuration saved to %s\n", filepath.Join(config.GetConfigDir(), "config.yaml"))
		return nil
	}

	for _, line := range configLines(cfg) {
		fmt.Println(line)
	}
	return nil
}

// configLines renders cfg as key: value lines using the config file keys
func configLines(cfg *config.Config) []string {
	return []string{
		fmt.Sprintf("output_format: %q", cfg.OutputFormat),
		fmt.Sprintf("output_width: %d", cfg.OutputWidth),
		fmt.Sprintf("marquee_enabled: %t", cfg.MarqueeEnabled),
		fmt.Sprintf("marquee_speed: %d", cfg.MarqueeSpeed),
		fmt.Sprintf("marquee_separator: %q", cfg.MarqueeSeparator),
		fmt.Sprintf("data_dir: %s", cfg.DataDir),
		fmt.Sprintf("socket_path: %s", cfg.SocketPath),
		"player:",
		fmt.Sprintf("  sample_rate: %d", cfg.Player.SampleRate),
		fmt.Sprintf("  progress_interval: %s", cfg.Player.ProgressInterval),
		fmt.Sprintf("  load_timeout: %s", cfg.Player.LoadTimeout),
		fmt.Sprintf("  restart_threshold: %s", cfg.Player.RestartThreshold),
		fmt.Sprintf("  max_auto_skips: %d", cfg.Player.MaxAutoSkips),
		"persistence:",
		fmt.Sprintf("  save_interval: %s", cfg.Persistence.SaveInterval),
		fmt.Sprintf("  persist_interval: %s", cfg.Persistence.PersistInterval),
	}
}
