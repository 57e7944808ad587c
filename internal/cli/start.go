package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/halden/meeple/internal/config"
	"github.com/halden/meeple/internal/daemon"
	"github.com/halden/meeple/internal/logger"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the facilitator daemon",
	Long: `Start the facilitator daemon in the foreground. The daemon serves every
bound Telegram chat and runs until interrupted.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	pidFile := pidFilePath(cfg)
	if pid, running := runningPID(pidFile); running {
		return fmt.Errorf("daemon is already running (pid %d)", pid)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	d, err := daemon.New(cfg, log)
	if err != nil {
		return err
	}

	if err := writePIDFile(pidFile); err != nil {
		log.Warn().Err(err).Msg("Failed to write pid file")
	}
	defer os.Remove(pidFile)

	return d.Run(context.Background())
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	return logger.New(logger.Config{
		Level:      level,
		File:       cfg.Logging.File,
		Console:    true,
		Pretty:     true,
		Redaction:  cfg.Logging.Redaction,
		MaxSizeMB:  cfg.Logging.MaxSize,
		MaxAgeDays: cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
	})
}

func pidFilePath(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "meeple.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// runningPID reads the pid file and checks the process is actually alive,
// so a stale file from a crash does not block restarts.
func runningPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return 0, false
	}
	if err := process.Signal(syscall.Signal(0)); err != nil {
		return 0, false
	}
	return pid, true
}
