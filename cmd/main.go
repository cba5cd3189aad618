package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "1.0.0"

var envFiles []string

var rootCmd = &cobra.Command{
	Use:           "paykit",
	Short:         "Payment provider gateway",
	Long:          "PayKit routes payments, subscriptions and webhooks to Stripe, PayPal, bank transfer, Apple IAP and Google Play.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files to load before reading the environment")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
