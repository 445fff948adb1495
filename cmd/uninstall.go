package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/jfmyers9/tapedeck/internal/daemon"
	"github.com/spf13/cobra"
)

// uninstallCmd represents the uninstall command
var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Uninstall tapedeck daemon user service",
	Long: `Uninstall tapedeck daemon and stop it from running automatically.

This command will:
  - Stop the running daemon (if any)
  - Unload it from launchd (macOS) or disable it in systemd (Linux)
  - Remove the service definition

The saved session and catalog are kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Get service path
		servicePath, err := daemon.GetServicePath(runtime.GOOS)
		if err != nil {
			return fmt.Errorf("failed to get service path: %w", err)
		}

		// Check if the service exists
		if _, err := os.Stat(servicePath); os.IsNotExist(err) {
			fmt.Println("Daemon is not installed (service file not found)")
			return nil
		}

		// Unload the daemon
		fmt.Println("Stopping daemon...")
		if err := unloadDaemon(); err != nil {
			fmt.Printf("Warning: failed to unload daemon: %v\n", err)
			fmt.Println("Continuing with service file removal...")
		} else {
			fmt.Println("✓ Daemon stopped")
		}

		// Remove service file
		if err := os.Remove(servicePath); err != nil {
			return fmt.Errorf("failed to remove service file: %w", err)
		}

		fmt.Printf("✓ Removed service from %s\n", servicePath)
		fmt.Println("\nThe tapedeck daemon has been uninstalled successfully.")
		fmt.Println("It will no longer run automatically on login.")
		fmt.Println("\nTo reinstall, run:")
		fmt.Println("  tapedeck install")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
}
