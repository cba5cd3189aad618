package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List registered and configured payment providers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		return printProviders(cmd, a)
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}

func printProviders(cmd *cobra.Command, a *app) error {
	configured := make(map[string]bool)
	for _, name := range a.manager.ConfiguredProviders() {
		configured[name] = true
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "default: %s\n", a.manager.DefaultProvider())
	for _, name := range a.manager.AvailableProviders() {
		state := "not configured"
		if configured[name] {
			state = "configured"
		}
		fmt.Fprintf(out, "  %-14s %s\n", name, state)
	}
	if len(configured) == 0 {
		fmt.Fprintln(out, "no provider is configured; set the provider environment variables")
	}
	return nil
}
