package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/benjaminschreck/go-xdump/pkg/xdump"
)

const version = "0.1.0"

var (
	// Global flags
	verbose    bool
	configPath string
	outPath    string

	logger *xdump.Logger
	config *xdump.Config
)

var rootCmd = &cobra.Command{
	Use:   "xdump",
	Short: "xdump - template-driven exporter for object graphs",
	Long: `xdump renders an object graph to markup or the line-oriented sf dialect
according to a template document, and re-synchronizes a rendered document
with the graph after field changes.

Graphs are YAML files as accepted by memstore.Load.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if configPath != "" {
			config, err = xdump.LoadConfigFile(configPath)
			if err != nil {
				return err
			}
		} else {
			config = xdump.ConfigFromEnvironment()
		}
		if verbose {
			config.LogLevel = "debug"
		}
		if err := config.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		logger = xdump.NewLogger(os.Stderr, xdump.ParseLogLevel(config.LogLevel))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "xdump version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file (default: XDUMP_* environment)")
	rootCmd.PersistentFlags().StringVarP(&outPath, "out", "o", "", "Output file (default: stdout)")

	registerRenderFlags()
	registerUpdateFlags()

	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newEngine() *xdump.Engine {
	return xdump.New(xdump.WithConfig(config), xdump.WithLogger(logger))
}

// openOutput returns the --out file or the command's output stream, and a
// function closing it.
func openOutput(cmd *cobra.Command) (io.Writer, func() error, error) {
	if outPath == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(outPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output: %w", err)
	}
	return f, f.Close, nil
}

// watchInterrupt cancels session on SIGINT or SIGTERM until the returned
// function is called.
func watchInterrupt(cmd *cobra.Command, session *xdump.Session) func() {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			logger.Warn("interrupted, canceling")
			session.Cancel()
		case <-done:
		}
	}()
	return func() {
		close(done)
		stop()
	}
}
