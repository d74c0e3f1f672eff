package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var creditsReason string

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Show the credit balance",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		balance, err := a.credits.Balance(cmd.Context())
		if err != nil {
			return err
		}
		gate := "disabled"
		if a.cfg.CreditGateEnabled {
			gate = "enabled"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "balance: %d (gate %s)\n", balance, gate)
		return nil
	},
}

var creditsAddCmd = &cobra.Command{
	Use:   "add <amount>",
	Short: "Top up the credit balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := strconv.Atoi(args[0])
		if err != nil || amount <= 0 {
			return fmt.Errorf("amount must be a positive integer, got %q", args[0])
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		balance, err := a.credits.TopUp(cmd.Context(), amount, creditsReason)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "balance: %d\n", balance)
		return nil
	},
}

func init() {
	creditsAddCmd.Flags().StringVar(&creditsReason, "reason", "manual top-up", "Ledger note")
	creditsCmd.AddCommand(creditsAddCmd)
	rootCmd.AddCommand(creditsCmd)
}
