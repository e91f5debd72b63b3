package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/onlinereader/internal/log"
)

// NewRootCmd creates the root command for onlinereader.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "onlinereader",
		Short: "Read online text resources as paragraphs",
		Long: `onlinereader fetches text resources over HTTP(S), including files shared on
Google Drive, and groups their lines into paragraphs.

A paragraph is a run of consecutive non-empty lines of one resource. Empty
lines and the switch to the next resource end a paragraph.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")

	cmd.AddCommand(NewFetchCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// getBoolFlag retrieves a boolean flag from the command or the root's
// persistent flags.
func getBoolFlag(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// newLogger creates the redacting logger selected by --verbose and
// --log-json, writing to w.
func newLogger(w io.Writer, verbose, jsonOutput bool) *slog.Logger {
	if jsonOutput {
		return log.NewSecureJSONLogger(w, verbose)
	}
	return log.NewSecureLogger(w, verbose)
}

// loggerFor creates the logger for cmd from the global flags.
func loggerFor(cmd *cobra.Command) *slog.Logger {
	return newLogger(cmd.ErrOrStderr(), getBoolFlag(cmd, "verbose"), getBoolFlag(cmd, "log-json"))
}
