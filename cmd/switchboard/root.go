package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// cfgFile is the configuration file every subcommand loads.
var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "switchboard",
	Short: "Halcyon Switchboard - voice-call decision core",
	Long: `Halcyon Switchboard decides what an automated phone agent says next.

Each caller turn runs through a staged pipeline:
  - Silence and interruption handling with per-call escalation ladders
  - Keyword triage against tenant rule sets compiled from the document store
  - LLM classification and response generation when no authored rule matches
  - A response policy pass that rewrites, blocks, or redirects the reply
  - An audit trail recording every decision the pipeline made

The turn API is served over HTTP; rules, policies, and response pools live
in the document store and are cached as compiled artifacts.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
}
