/*
Copyright © 2025 ALESSIO TONIOLO
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ollamamq",
	Short: "A per-user fair-queueing dispatcher for Ollama-compatible backends",
	Long: `ollamamq sits in front of a single Ollama-compatible backend and fans
incoming requests out across user identities with round-robin fairness:
each user gets their own FIFO queue, and the dispatcher never lets one
busy user starve another.

Use "ollamamq [command] --help" for more information about a command.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
