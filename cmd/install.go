package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/jfmyers9/tapedeck/internal/daemon"
	"github.com/spf13/cobra"
)

// installCmd represents the install command
var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install tapedeck daemon as a user service",
	Long: `Install tapedeck daemon as a user service that runs automatically on login.

This command will:
  - Generate a launchd plist (macOS) or a systemd user unit (Linux)
  - Install it to ~/Library/LaunchAgents/ or ~/.config/systemd/user/
  - Load and start the service

The daemon will run in the background, restore your last session paused,
and wait for commands from the CLI or TUI.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Get the path to the current executable
		binaryPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}

		// Resolve symlinks to get the actual binary path
		binaryPath, err = filepath.EvalSymlinks(binaryPath)
		if err != nil {
			return fmt.Errorf("failed to resolve executable path: %w", err)
		}

		// Get the log path
		logPath, err := daemon.GetDefaultLogPath()
		if err != nil {
			return fmt.Errorf("failed to get log path: %w", err)
		}

		// Create log directory if it doesn't exist
		if err := os.MkdirAll(logPath, 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		// Get home directory for working directory
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}

		// Generate service definition
		content, err := daemon.GenerateService(runtime.GOOS, daemon.ServiceConfig{
			BinaryPath:       binaryPath,
			LogPath:          logPath,
			WorkingDirectory: home,
		})
		if err != nil {
			return fmt.Errorf("failed to generate service definition: %w", err)
		}

		// Get service path
		servicePath, err := daemon.GetServicePath(runtime.GOOS)
		if err != nil {
			return fmt.Errorf("failed to get service path: %w", err)
		}

		// Create the service directory if it doesn't exist
		if err := os.MkdirAll(filepath.Dir(servicePath), 0755); err != nil {
			return fmt.Errorf("failed to create service directory: %w", err)
		}

		// Check if the service already exists
		if _, err := os.Stat(servicePath); err == nil {
			fmt.Println("Daemon is already installed. Uninstalling first...")
			if err := unloadDaemon(); err != nil {
				fmt.Printf("Warning: failed to unload existing daemon: %v\n", err)
			}
		}

		// Write service file
		if err := os.WriteFile(servicePath, []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to write service file: %w", err)
		}

		fmt.Printf("✓ Installed service to %s\n", servicePath)

		// Load the daemon
		if err := loadDaemon(servicePath); err != nil {
			return fmt.Errorf("failed to load daemon: %w", err)
		}

		fmt.Println("✓ Daemon loaded and started successfully")
		fmt.Printf("✓ Logs will be written to %s\n", logPath)
		fmt.Println("\nThe tapedeck daemon is now running and will start automatically on login.")
		fmt.Println("\nYou can check the daemon status with:")
		if runtime.GOOS == "darwin" {
			fmt.Println("  launchctl list | grep tapedeck")
		} else {
			fmt.Println("  systemctl --user status tapedeck")
		}
		fmt.Println("\nTo uninstall, run:")
		fmt.Println("  tapedeck uninstall")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(installCmd)
}

// launchdDomain returns the launchctl domain of the current user
func launchdDomain() string {
	return fmt.Sprintf("gui/%d", os.Getuid())
}

// loadDaemon starts the installed service
func loadDaemon(servicePath string) error {
	var cmds [][]string
	switch runtime.GOOS {
	case "darwin":
		cmds = [][]string{{"launchctl", "bootstrap", launchdDomain(), servicePath}}
	case "linux":
		cmds = [][]string{
			{"systemctl", "--user", "daemon-reload"},
			{"systemctl", "--user", "enable", "--now", "tapedeck.service"},
		}
	default:
		return daemon.ErrUnsupportedPlatform
	}

	for _, args := range cmds {
		output, err := exec.Command(args[0], args[1:]...).CombinedOutput()
		if err != nil {
			if out := strings.TrimSpace(string(output)); out != "" {
				return fmt.Errorf("%s failed: %s", strings.Join(args[:2], " "), out)
			}
			return fmt.Errorf("failed to run %s: %w", args[0], err)
		}
	}

	return nil
}

// unloadDaemon stops the installed service. Failures because it is not
// loaded are reported as warnings only.
func unloadDaemon() error {
	var args []string
	switch runtime.GOOS {
	case "darwin":
		args = []string{"launchctl", "bootout", launchdDomain() + "/" + daemon.ServiceLabel}
	case "linux":
		args = []string{"systemctl", "--user", "disable", "--now", "tapedeck.service"}
	default:
		return daemon.ErrUnsupportedPlatform
	}

	output, err := exec.Command(args[0], args[1:]...).CombinedOutput()
	if err != nil {
		if out := strings.TrimSpace(string(output)); out != "" {
			fmt.Printf("Warning: %s\n", out)
		}
	}

	return nil
}
