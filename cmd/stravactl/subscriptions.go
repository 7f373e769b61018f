package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"example.com/hobbytracker/internal/config"
	"example.com/hobbytracker/internal/strava"
)

var subscriptionsCmd = &cobra.Command{
	Use:   "subscriptions",
	Short: "Manage the push subscription",
}

var subscriptionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List push subscriptions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		admin, _, err := newAdmin()
		if err != nil {
			return err
		}
		subs, err := admin.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(subs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No subscriptions")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), "ID\tCALLBACK\tCREATED")
		for _, s := range subs {
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", s.ID, s.CallbackURL, s.CreatedAt)
		}
		return nil
	},
}

var callbackURLFlag string

var subscriptionsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register the webhook callback URL",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		admin, cfg, err := newAdmin()
		if err != nil {
			return err
		}
		callback := callbackURLFlag
		if callback == "" {
			callback = cfg.Strava.CallbackURL
		}
		sub, err := admin.Create(cmd.Context(), callback, cfg.Strava.VerifyToken)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created subscription %d for %s\n", sub.ID, callback)
		return nil
	},
}

var subscriptionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a push subscription",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid subscription id %q", args[0])
		}
		admin, _, err := newAdmin()
		if err != nil {
			return err
		}
		if err := admin.Delete(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted subscription %d\n", id)
		return nil
	},
}

func init() {
	subscriptionsCreateCmd.Flags().StringVar(&callbackURLFlag, "callback-url", "", "Callback URL (defaults to STRAVA_CALLBACK_URL)")
	subscriptionsCmd.AddCommand(subscriptionsListCmd, subscriptionsCreateCmd, subscriptionsDeleteCmd)
}

func newAdmin() (*strava.SubscriptionAdmin, config.Config, error) {
	cfg, client, err := loadConfig()
	if err != nil {
		return nil, config.Config{}, err
	}
	return strava.NewSubscriptionAdmin(cfg.Strava.APIBaseURL, cfg.Strava.ClientID, cfg.Strava.ClientSecret, client), cfg, nil
}
