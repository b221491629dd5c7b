// Package main is the CLI entry point for kopya.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jesse-c/kopya-sub000/internal/config"
	"github.com/jesse-c/kopya-sub000/internal/daemon"
	"github.com/jesse-c/kopya-sub000/internal/domain"
	"github.com/jesse-c/kopya-sub000/internal/filter"
	"github.com/jesse-c/kopya-sub000/internal/infra"
	"github.com/jesse-c/kopya-sub000/internal/server"
	"github.com/jesse-c/kopya-sub000/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "kopya",
	Short: "Clipboard history daemon with a local HTTP API",
	Long: `kopya watches the system clipboard and keeps a deduplicated,
time-ordered history in a local database, capped at a configurable
number of entries. The history is served over a local HTTP API with
search, pagination, deletion, and a temporary private mode.`,
	Version: Version,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the clipboard daemon",
	Long: `Starts the clipboard watcher and the HTTP API in the foreground.
Use --install-agent to also register a LaunchAgent so the daemon
starts at login.`,
	RunE: runStart,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check daemon status",
	Long:  `Shows whether the daemon is running, its PID, uptime, and API address.`,
	RunE:  runStatus,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run:   runVersion,
}

var (
	configPath   string
	installAgent bool
	jsonOutput   bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ~/.config/kopya/config.toml)")
	startCmd.Flags().BoolVar(&installAgent, "install-agent", false, "Install a LaunchAgent to start kopya at login")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := createLogger(cfg.LogPath())
	defer func() { _ = logger.Sync() }()

	if installAgent {
		execPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}
		agent := infra.NewLaunchAgentManager(cfg.DataDir)
		if err := agent.Install(execPath); err != nil {
			fmt.Printf("Warning: Could not install LaunchAgent: %v\n", err)
			fmt.Println("         (kopya will run, but won't auto-start at login)")
		} else {
			fmt.Printf("Installed LaunchAgent at %s\n", agent.GetPlistPath())
		}
	}

	// Database encryption key (optional)
	var key []byte
	if cfg.EncryptDB {
		key, err = infra.EnsureKey(infra.NewFileKeyProvider(cfg.DataDir))
		if err != nil {
			return fmt.Errorf("failed to set up encryption key: %w", err)
		}
	}

	store, err := infra.NewHistoryStore(cfg.DatabasePath(), cfg.MaxEntries, key, logger)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer store.Close()

	contentFilter := filter.Compile(cfg.FilterPatterns, logger)
	privateMode := usecase.NewPrivateModeController(logger)
	snapshots := infra.NewSnapshotManager(cfg.DatabasePath(), cfg.BackupDir(), cfg.BackupRetention, logger)
	pasteboard := infra.NewPasteboard()

	// Record ourselves so `kopya status` can find the daemon.
	registry := infra.NewPidFileRegistry(cfg.DataDir)
	info := domain.DaemonInfo{
		PID:       os.Getpid(),
		StartedAt: time.Now(),
		HTTPAddr:  cfg.HTTPAddr,
		Version:   Version,
	}
	if err := registry.Register(info); err != nil {
		logger.Warn("failed to write pidfile", zap.Error(err))
	}
	defer func() { _ = registry.Clear() }()

	// Graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	watcherConfig := daemon.WatcherConfig{
		PollInterval:   cfg.PollInterval,
		BackupInterval: cfg.BackupInterval,
	}
	watcher := daemon.NewWatcher(watcherConfig, pasteboard, store, privateMode, contentFilter, snapshots, logger)

	api := server.New(cfg.HTTPAddr, store, privateMode, logger)

	errChan := make(chan error, 2)
	go func() { errChan <- watcher.Run(ctx) }()
	go func() { errChan <- api.ListenAndServe() }()

	logger.Info("kopya started",
		zap.String("version", Version),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("database", cfg.DatabasePath()),
		zap.Int("max_entries", cfg.MaxEntries),
		zap.Int("filter_patterns", contentFilter.PatternCount()))

	// First error or cancellation wins; then drain the HTTP server.
	err = <-errChan
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = api.Shutdown(shutdownCtx)

	if err == context.Canceled {
		return nil
	}
	return err
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pm := infra.NewProcessManager()
	registry := infra.NewPidFileRegistry(cfg.DataDir)

	fmt.Println("\n=== kopya Status ===")

	info, err := registry.Get()
	if err != nil || info == nil {
		fmt.Println("Status: NOT RUNNING")
		fmt.Println("\nRun 'kopya start' to begin capturing clipboard history.")
		return nil
	}

	if !pm.IsRunning(info.PID) {
		fmt.Println("Status: NOT RUNNING (stale pidfile)")
		return nil
	}

	fmt.Println("Status: RUNNING")
	fmt.Printf("PID: %d\n", info.PID)
	fmt.Printf("Version: %s\n", info.Version)
	fmt.Printf("API: http://%s\n", info.HTTPAddr)

	if uptime, err := pm.Uptime(info.PID); err == nil {
		fmt.Printf("Uptime: %s\n", (time.Duration(uptime) * time.Second).String())
	}

	fmt.Printf("Database: %s\n", cfg.DatabasePath())
	fmt.Println("====================")
	return nil
}

func createLogger(logPath string) *zap.Logger {
	// On a first run nothing has created the data directory yet; without it
	// the file sink fails to open and logging degrades to stderr-only.
	_ = os.MkdirAll(filepath.Dir(logPath), 0700)

	config := zap.NewProductionConfig()
	config.OutputPaths = []string{logPath, "stderr"}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("kopya %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
