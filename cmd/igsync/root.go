package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"igsync/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// rootOptions holds the global flags shared by every subcommand
type rootOptions struct {
	configFile string
	logLevel   string
	quiet      bool
	verbose    bool
	noColor    bool
}

// flags returns the overrides passed to config.Load
func (o *rootOptions) flags() map[string]interface{} {
	flags := make(map[string]interface{})
	switch {
	case o.verbose:
		flags["log-level"] = "debug"
	case o.quiet:
		flags["log-level"] = "error"
	case o.logLevel != "":
		flags["log-level"] = o.logLevel
	}
	return flags
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "igsync",
		Short: "Sync Instagram account stats and posts into Airtable",
		Long: `igsync keeps an Airtable base up to date with Instagram data.

Each sync cycle:
  - reads the active accounts from the accounts table
  - fetches profiles (and optionally posts) through the RapidAPI Instagram proxy
  - writes normalized rows back, recording per-account errors on the row

Calls to the proxy are rate limited globally and spaced per account and per post.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ui.SetOutput(cmd.OutOrStdout())
			ui.SetQuietMode(o.quiet)
			ui.SetNoColor(o.noColor || os.Getenv("NO_COLOR") != "")
		},
	}

	cmd.PersistentFlags().StringVarP(&o.configFile, "config", "c", "", "config file (default: ./config.yaml or ~/.config/igsync/config.yaml)")
	cmd.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVarP(&o.quiet, "quiet", "q", false, "suppress all output except errors")
	cmd.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().BoolVar(&o.noColor, "no-color", false, "disable colored output")

	cmd.SetVersionTemplate(`igsync {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)
	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.AddCommand(
		newRunCmd(o),
		newAccountCmd(o),
		newDaemonCmd(o),
		newSnapshotCmd(o),
		newConfigCmd(o),
		newSecretCmd(o),
	)
	return cmd
}

// Execute runs the CLI and exits non-zero on failure
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		ui.PrintError("Error", err)
		os.Exit(1)
	}
}
