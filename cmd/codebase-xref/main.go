package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/DeusData/codebase-xref/internal/pipeline"
	"github.com/DeusData/codebase-xref/internal/store"
	"github.com/DeusData/codebase-xref/internal/tools"
	"github.com/DeusData/codebase-xref/internal/watcher"
)

var version = "dev"

var (
	rootCmd = &cobra.Command{
		Use:           "codebase-xref",
		Short:         "Cross-reference index for Go modules (definitions, references, hover, monikers)",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			setupLogging()
		},
	}
	dbPath  string
	verbose bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the SQLite database (default ~/.cache/codebase-xref/xref.db)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	indexCmd.Flags().String("lsif", "", "Also write an LSIF dump to this file")
	indexCmd.Flags().Bool("tests", false, "Index _test.go files (overrides .xrefconfig)")
	indexCmd.Flags().Bool("force", false, "Re-index even when no file changed")

	serveCmd.Flags().Bool("no-watch", false, "Disable automatic re-indexing of changed projects")

	dumpCmd.Flags().String("file", "", "Only dump this file (relative to the module root)")
	dumpCmd.Flags().Bool("tests", false, "Load _test.go files")

	rootCmd.AddCommand(indexCmd, serveCmd, dumpCmd, versionCmd)
}

// setupLogging sends logs to stderr; stdout carries MCP traffic under serve.
func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func openStore() (*store.Store, error) {
	if dbPath == "" {
		return store.Open()
	}
	return store.OpenPath(dbPath)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a Go module into the database",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := "."
		if len(args) > 0 {
			root = args[0]
		}

		s, err := openStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		ctx, cancel := signalContext()
		defer cancel()

		p := pipeline.New(ctx, s, root, nil)
		if cmd.Flags().Changed("tests") {
			tests, _ := cmd.Flags().GetBool("tests")
			p.Config.SetTests(tests)
		}
		p.LSIFPath, _ = cmd.Flags().GetString("lsif")
		p.Force, _ = cmd.Flags().GetBool("force")
		p.ToolVersion = version

		if err := p.Run(); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if p.Unchanged {
			fmt.Fprintf(out, "%s: unchanged\n", p.ProjectName)
			return nil
		}
		fmt.Fprintf(out, "%s: %d documents, %d symbols, %d definitions, %d references, %d monikers (run %s)\n",
			p.ProjectName, p.Stats.Documents, p.Stats.Symbols, p.Stats.Definitions,
			p.Stats.References, p.Stats.Monikers, p.RunID)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the index as MCP tools over stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := openStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		ctx, cancel := signalContext()
		defer cancel()

		srv := tools.NewServer(s, version)
		if noWatch, _ := cmd.Flags().GetBool("no-watch"); !noWatch {
			go watcher.New(s, srv.Reindex).Run(ctx)
		}
		slog.Info("serve.start", "db", s.Path(), "version", version)
		return srv.Run(ctx)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "codebase-xref", version)
	},
}
