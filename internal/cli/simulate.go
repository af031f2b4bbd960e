package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"yield-health-alerts/internal/app"
)

var (
	simulateUser     string
	simulateSymbol   string
	simulatePrice    string
	simulateSeverity string
	simulateLower    string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Evaluate a synthetic depeg and dispatch the resulting alert",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePrice == "" {
			return errors.New("--price is required")
		}

		opts := app.SimulateOptions{
			UserID:   simulateUser,
			Symbol:   simulateSymbol,
			Price:    simulatePrice,
			Severity: simulateSeverity,
			Lower:    simulateLower,
		}

		return getApp().Simulate(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateUser, "user", "simulated-user", "User identifier for the synthetic alert")
	simulateCmd.Flags().StringVar(&simulateSymbol, "symbol", "USDC", "Stablecoin symbol under test")
	simulateCmd.Flags().StringVar(&simulatePrice, "price", "", "Observed price, e.g. 0.985")
	simulateCmd.Flags().StringVar(&simulateSeverity, "severity", "default", "Alert severity (urgent, high, default, low, min)")
	simulateCmd.Flags().StringVar(&simulateLower, "lower", "", "Lower depeg threshold (defaults to 0.99)")
}
