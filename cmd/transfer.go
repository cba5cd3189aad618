package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var confirmTransferCmd = &cobra.Command{
	Use:   "confirm-transfer <transaction-id>",
	Short: "Confirm that a bank transfer was received",
	Long:  "Mark a pending bank transfer as completed and activate the subscription it pays for.",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfirmTransfer,
}

func init() {
	confirmTransferCmd.Flags().String("admin", "", "identifier of the operator confirming the transfer")
	confirmTransferCmd.Flags().String("notes", "", "free-form notes stored with the confirmation")
	_ = confirmTransferCmd.MarkFlagRequired("admin")
	rootCmd.AddCommand(confirmTransferCmd)
}

func runConfirmTransfer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return confirmTransfer(cmd, a, args[0])
}

func confirmTransfer(cmd *cobra.Command, a *app, transactionID string) error {
	admin, _ := cmd.Flags().GetString("admin")
	notes, _ := cmd.Flags().GetString("notes")

	result, err := a.manager.ConfirmBankTransfer(cmd.Context(), transactionID, admin, notes)
	if err != nil {
		return err
	}
	if !result.Success {
		if result.Error != nil {
			return result.Error
		}
		return errors.New(result.Message)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("writing result: %w", err)
	}
	return nil
}
