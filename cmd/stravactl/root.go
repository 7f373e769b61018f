package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"example.com/hobbytracker/internal/config"
)

var timeoutFlag string

var rootCmd = &cobra.Command{
	Use:           "stravactl",
	Short:         "stravactl manages the Strava push subscription of the hobby tracker",
	Long:          "stravactl registers, lists and removes the webhook subscription and can fetch the latest activity to check credentials.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&timeoutFlag, "timeout", "", "Upstream request timeout (defaults to UPSTREAM_TIMEOUT)")
	rootCmd.AddCommand(subscriptionsCmd, latestCmd)
}

// loadConfig reads the environment and applies command-line overrides.
func loadConfig() (config.Config, *http.Client, error) {
	cfg := config.Load()
	timeout := cfg.UpstreamTimeout
	if timeoutFlag != "" {
		parsed, err := parseTimeout(timeoutFlag)
		if err != nil {
			return config.Config{}, nil, err
		}
		timeout = parsed
	}
	return cfg, &http.Client{Timeout: timeout}, nil
}
