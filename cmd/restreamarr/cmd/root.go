// Package cmd implements the CLI commands for restreamarr.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/restreamarr/restreamarr/internal/version"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "restreamarr",
	Short:   "Live stream proxy and channel manager",
	Version: version.Short(),
	Long: `restreamarr proxies live video streams through an ffmpeg transcoding
pipeline so browsers and IPTV players can play sources they cannot reach
directly.

It manages channels with per-channel request credentials, refreshes those
credentials automatically from each channel's companion website, and serves
the lineup as a Threadfin compatible M3U playlist.`,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., ./configs, /etc/restreamarr)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
}
