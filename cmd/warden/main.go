package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinytelemetry/warden/internal/backup"
	"github.com/tinytelemetry/warden/internal/duckdb"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "warden",
		Short: "Security decision log service",
		Long: `warden ingests classified HTTP request records from the upstream decision
engine, stores them in DuckDB and serves them to the dashboard over HTTP
and a local socket.`,
		SilenceUsage: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is $HOME/.config/warden/config.yml)")

	load := func() (appConfig, error) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return cfg, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run ingestion and the read APIs",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := load()
				if err != nil {
					return err
				}
				return runServer(cfg)
			},
		},
		&cobra.Command{
			Use:   "import <file|->",
			Short: "Load an NDJSON or JSON export into the store",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := load()
				if err != nil {
					return err
				}
				return runImport(cfg, args[0], cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "backup [dst]",
			Short: "Write a point-in-time copy of the store",
			Long: `backup copies the whole database into a new DuckDB file at dst. Without dst
the copy goes to backup-dir, rotated like the periodic backups of serve.
DuckDB allows one writer per file, so run it while serve is stopped.`,
			Args: cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := load()
				if err != nil {
					return err
				}
				dst := ""
				if len(args) == 1 {
					dst = args[0]
				}
				return runBackup(cfg, dst, cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				printVersion(cmd.OutOrStdout())
			},
		},
	)
	return root
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "Warden - Security Decision Log Service\n")
	fmt.Fprintf(w, "  Version:    %s\n", version)
	fmt.Fprintf(w, "  Commit:     %s\n", commit)
	fmt.Fprintf(w, "  Built:      %s\n", buildTime)
	fmt.Fprintf(w, "  Go version: %s\n", goVersion)
}

func runBackup(cfg appConfig, dst string, out io.Writer) error {
	store, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
	if err != nil {
		return fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	defer store.Close()

	if dst != "" {
		if err := store.SnapshotTo(dst); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote %s\n", filepath.Clean(dst))
		return nil
	}

	mgr, err := backup.NewManager(store, backup.Config{
		Dir:      cfg.BackupDir,
		Interval: time.Hour,
		KeepLast: cfg.BackupKeepLast,
	})
	if err != nil {
		return err
	}
	path, err := mgr.RunOnce()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %s\n", path)
	return nil
}
