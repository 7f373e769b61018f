package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"example.com/hobbytracker/internal/strava"
)

var latestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Fetch the latest activity and print it as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, client, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.SyncReadiness(); err != nil {
			return err
		}
		tokens := strava.NewTokenProvider(strava.Credentials{
			ClientID:     cfg.Strava.ClientID,
			ClientSecret: cfg.Strava.ClientSecret,
			RefreshToken: cfg.Strava.RefreshToken,
			TokenURL:     cfg.Strava.TokenURL,
		}, client, zap.NewNop())

		activity, err := strava.NewClient(cfg.Strava.APIBaseURL, tokens, client).LatestActivity(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), activity)
	},
}
