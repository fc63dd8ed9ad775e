// Command sensei answers questions about recorded lectures.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sweetpotato0/sensei/config"
	"github.com/sweetpotato0/sensei/pkg/logging"
)

var version = "dev"

var (
	cfgFile   string
	logLevel  string
	logFormat string
	cfg       *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "sensei",
	Short: "Course lecture question answering",
	Long: `sensei indexes lecture transcripts and answers questions about them,
citing the lecture chunks (and optionally web results) it used.

Example usage:
  sensei serve                               # HTTP API on :8080
  sensei mcp                                 # MCP tools on stdio
  sensei ingest ml101 dQw4w9WgXcQ t.json     # index a transcript
  sensei ask ml101 "What is gradient descent?"`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// stdout carries the MCP protocol and command output
		logging.SetLogger(logging.New(os.Stderr, logFormat, logLevel))

		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", envOr("SENSEI_LOG_LEVEL", "info"), "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", envOr("SENSEI_LOG_FORMAT", "json"), "json or text")

	rootCmd.AddCommand(serveCmd(), mcpCmd(), ingestCmd(), askCmd(), versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
