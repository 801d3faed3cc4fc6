package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/isdmx/builderbot/config"
)

var rootCmd = &cobra.Command{
	Use:   "builderbot",
	Short: "Chat-driven builder for small web applications",
	Long: `builderbot asks a language model for a single-file web app, runs it as a
supervised live preview, and can publish a full project to GitHub.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringSlice("config-path", nil, "Directories searched for config.yaml (default . and ./config)")
}

// loadConfig returns a config constructor honoring the --config-path flag.
func loadConfig(cmd *cobra.Command) func() (*config.Config, error) {
	return func() (*config.Config, error) {
		paths, _ := cmd.Flags().GetStringSlice("config-path")
		if len(paths) == 0 {
			return config.New()
		}
		return config.Load(paths...)
	}
}
