package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// addSessionCommands adds session guardrail commands.
func addSessionCommands(rootCmd *cobra.Command, app *App) {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and control the trading session guardrail",
	}

	sessionCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the current session state",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			state := app.Guard.Snapshot()

			if output.IsJSON() {
				return output.JSON(state)
			}
			output.Bold("Session")
			output.Printf("  Realized P&L:       %.2f\n", state.RealizedPnL)
			output.Printf("  Trades:             %d\n", state.TradeCount)
			output.Printf("  Consecutive losses: %d / %d\n", state.ConsecutiveLosses, state.MaxConsecutiveLosses)
			output.Printf("  Daily loss room:    %.2f / %.2f\n", state.DailyLossRemaining(), state.MaxDailyLoss)
			if state.Locked {
				output.Warning("  LOCKED: %s", state.LockReason)
			} else {
				output.Success("  Unlocked")
			}
			return nil
		},
	})

	sessionCmd.AddCommand(&cobra.Command{
		Use:   "record <pnl>",
		Short: "Record a realized trade result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			pnl, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				output.Error("Invalid P&L: %s", args[0])
				return fmt.Errorf("invalid pnl")
			}

			state := app.Guard.RecordTradeResult(pnl)
			if output.IsJSON() {
				return output.JSON(state)
			}
			output.Success("Recorded %.2f, session P&L %.2f", pnl, state.RealizedPnL)
			if state.Locked {
				output.Warning("Session locked: %s", state.LockReason)
			}
			return nil
		},
	})

	sessionCmd.AddCommand(&cobra.Command{
		Use:   "lock [reason]",
		Short: "Manually lock the session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			reason := "manual lock"
			if len(args) == 1 {
				reason = args[0]
			}
			app.Guard.Lock(reason)
			output.Success("Session locked: %s", reason)
			return nil
		},
	})

	sessionCmd.AddCommand(&cobra.Command{
		Use:   "unlock",
		Short: "Unlock the session, keeping counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			app.Guard.Unlock()
			output.Success("Session unlocked")
			return nil
		},
	})

	sessionCmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Reset counters and unlock, for a new trading day",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			app.Guard.Reset()
			output.Success("Session reset")
			return nil
		},
	})

	rootCmd.AddCommand(sessionCmd)
}
