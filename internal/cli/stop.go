package cli

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/halden/meeple/internal/config"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running daemon",
	RunE:  runStop,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the daemon is running",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	pid, running := runningPID(pidFilePath(cfg))
	if !running {
		return fmt.Errorf("daemon is not running")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal daemon: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Sent shutdown signal to pid %d\n", pid)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	if pid, running := runningPID(pidFilePath(cfg)); running {
		fmt.Fprintf(cmd.OutOrStdout(), "Daemon is running (pid %d)\n", pid)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
	}
	return nil
}
