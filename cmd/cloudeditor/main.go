package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/buckleypaul/cloudeditor/internal/config"
	"github.com/buckleypaul/cloudeditor/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cloudeditor",
		Short: "Serial monitor and upload bridge for attached boards",
	}
	cmd.PersistentFlags().StringP("workspace", "w", "", "workspace root (default: current directory)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	cmd.AddCommand(portsCmd(), monitorCmd(), serveCmd(), uploadCmd())
	return cmd
}

// env is what every command shares: the merged config, the workspace
// history and a logger.
type env struct {
	wsRoot string
	cfg    config.Config
	store  *store.Store
	logger *slog.Logger
	close  func()
}

// setup loads the workspace config and applies the --port and --baud
// flags when the command has them. With logToFile the log goes to the
// workspace log file instead of stderr.
func setup(cmd *cobra.Command, logToFile bool) (*env, error) {
	wsRoot, err := cmd.Flags().GetString("workspace")
	if err != nil {
		return nil, err
	}
	if wsRoot == "" {
		if wsRoot, err = os.Getwd(); err != nil {
			return nil, err
		}
	}

	cfg := config.Load(wsRoot)
	if f := cmd.Flags().Lookup("port"); f != nil && f.Changed {
		cfg.SerialPort = f.Value.String()
	}
	if f := cmd.Flags().Lookup("baud"); f != nil && f.Changed {
		if cfg.SerialBaudRate, err = cmd.Flags().GetInt("baud"); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return nil, err
	}
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	closeLog := func() {}
	if logToFile {
		dir := config.WorkspaceDir(wsRoot)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(filepath.Join(dir, "cloudeditor.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		closeLog = func() { f.Close() }
	}

	return &env{
		wsRoot: wsRoot,
		cfg:    cfg,
		store:  store.New(config.WorkspaceDir(wsRoot)),
		logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})),
		close:  closeLog,
	}, nil
}

func portFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("port", "p", "", "serial port (default: configured port)")
	cmd.Flags().IntP("baud", "b", config.DefaultBaudRate, "baud rate")
}
