package main

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/crucible-ai/crucible/internal/daemon"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the Crucible daemon",
	Long: `Manage the Crucible daemon lifecycle.

The daemon runs the event bus in the foreground: the filter engine, the
service registry, and the event router. It blocks until stopped with
Ctrl+C or SIGTERM, which makes it suitable for containers and systemd.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Crucible daemon",
	Long: `Start the Crucible daemon (runs in foreground until stopped).

Examples:

  # Start with the default config (~/.crucible/config.yaml)
  $ crucible daemon start

  # Start with an explicit config file
  $ crucible daemon start --config /etc/crucible/config.yaml`,
	RunE: runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running Crucible daemon",
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a Crucible daemon is running",
	RunE:  runDaemonStatus,
}

func init() {
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	d, err := daemon.New(cfg)
	if err != nil {
		return err
	}

	cmd.Printf("Starting Crucible daemon (data dir: %s)\n", cfg.Core.DataDir)
	return d.Run(cmd.Context())
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	pidPath := filepath.Join(resolveDataDir(), "daemon.pid")
	pid, err := daemon.ReadPIDFile(pidPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no daemon is running (pid file not found at %s)", pidPath)
		}
		return err
	}
	if !daemon.IsProcessRunning(pid) {
		daemon.RemovePIDFile(pidPath)
		return fmt.Errorf("daemon pid %d is not running (removed stale pid file)", pid)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal daemon pid %d: %w", pid, err)
	}
	cmd.Printf("Sent SIGTERM to daemon (pid %d)\n", pid)
	return nil
}

var (
	statusLabelStyle = lipgloss.NewStyle().Bold(true).Width(12)
	runningStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	stoppedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	dir := resolveDataDir()
	pid, err := daemon.ReadPIDFile(filepath.Join(dir, "daemon.pid"))
	running := err == nil && daemon.IsProcessRunning(pid)

	if !running {
		cmd.Println(statusLabelStyle.Render("Status:") + stoppedStyle.Render("not running"))
		return nil
	}

	cmd.Println(statusLabelStyle.Render("Status:") + runningStyle.Render("running"))
	cmd.Println(statusLabelStyle.Render("PID:") + fmt.Sprintf("%d", pid))

	info, err := daemon.ReadInfoFile(filepath.Join(dir, "daemon.json"))
	if err == nil {
		cmd.Println(statusLabelStyle.Render("Version:") + info.Version)
		cmd.Println(statusLabelStyle.Render("Uptime:") + time.Since(info.StartedAt).Round(time.Second).String())
	}
	return nil
}
