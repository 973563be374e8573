package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"scrivener/internal/config"
)

// errFailed ends a command with exit status 1 after it has already told
// the user what went wrong.
var errFailed = errors.New("failed")

var rootCmd = &cobra.Command{
	Use:   "scrivener",
	Short: "Write text into other desktop applications",
	Long: `scrivener shapes a piece of text for its destination and types, pastes or
injects it into a running application, choosing the automation recipe
that suits the target.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Configuration file (default "+config.ConfigPath()+")")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Show platform diagnostics")
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}

func verbose(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("verbose")
	return v
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(configPath(cmd))
}
