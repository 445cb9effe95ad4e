package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func flagsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flags",
		Short: "Read and toggle feature flags",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [feature]",
		Short: "Show whether a feature is enabled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			enabled, err := a.directory.IsEnabled(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], onOff(enabled))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [feature] [on|off]",
		Short: "Enable or disable a feature",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			enabled, err := parseOnOff(args[1])
			if err != nil {
				return err
			}
			if err := a.directory.SetEnabled(cmd.Context(), args[0], enabled); err != nil {
				return err
			}
			a.logger.Info("feature flag changed", "feature", args[0], "enabled", enabled)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], onOff(enabled))
			return nil
		},
	})

	return cmd
}

func adminsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admins",
		Short: "Manage escrow administrators",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "grant [user-id]",
		Short: "Allow a user to refund and release escrows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.directory.GrantAdmin(cmd.Context(), args[0]); err != nil {
				return err
			}
			a.logger.Info("admin granted", "user_id", args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "%s is an administrator\n", args[0])
			return nil
		},
	})

	return cmd
}

func parseOnOff(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "on", "true", "enabled":
		return true, nil
	case "off", "false", "disabled":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", value)
}

func onOff(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}
