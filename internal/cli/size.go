package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tws-bridge/internal/models"
)

// addSizingCommands adds the position-sizing command.
func addSizingCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "size <symbol> <entry> <stop>",
		Short: "Calculate a risk-bounded position size",
		Long: `Calculate a recommended share count bounded by dollars at risk, the
capital budget, margin and the configured per-position cap. The most
restrictive constraint wins; a wide stop or a high-volatility regime scales
the recommendation down further.`,
		Example: `  tws-bridge size AAPL 200 195
  tws-bridge size AAPL 200 195 --risk-percent 2 --regime high
  tws-bridge size AAPL 200 195 --risk-amount 750`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext()
			defer cancel()

			entry, err1 := strconv.ParseFloat(args[1], 64)
			stop, err2 := strconv.ParseFloat(args[2], 64)
			if err1 != nil || err2 != nil {
				output.Error("Invalid prices: %s %s", args[1], args[2])
				return fmt.Errorf("invalid prices")
			}

			riskPercent, _ := cmd.Flags().GetFloat64("risk-percent")
			riskAmount, _ := cmd.Flags().GetFloat64("risk-amount")
			capitalPercent, _ := cmd.Flags().GetFloat64("capital-percent")
			regime, _ := cmd.Flags().GetString("regime")

			result, err := app.Sizer.Calculate(ctx, models.SizingRequest{
				Symbol:            strings.ToUpper(args[0]),
				EntryPrice:        entry,
				StopPrice:         stop,
				RiskPercent:       riskPercent,
				RiskAmount:        riskAmount,
				MaxCapitalPercent: capitalPercent,
				Regime:            models.VolatilityRegime(regime),
			})
			if err != nil {
				output.Error("Sizing failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(result)
			}
			output.Bold("Position size for %s", result.Symbol)
			output.Printf("  Risk per share:  %.2f (total %.2f)\n", result.RiskPerShare, result.TotalRiskDollars)
			output.Printf("  By risk:         %d\n", result.SharesByRisk)
			output.Printf("  By capital:      %d\n", result.SharesByCapital)
			output.Printf("  By margin:       %d\n", result.SharesByMargin)
			output.Printf("  By config:       %d\n", result.SharesByConfig)
			output.Printf("  Binding:         %s\n", result.BindingConstraint)
			output.Printf("  Regime:          %s (x%.2f)\n", result.Regime, result.RegimeScalar)
			output.Success("  Recommended:     %d shares (%.2f, %.1f%% of equity)",
				result.RecommendedShares, result.CapitalDeployed, result.PercentOfEquity)
			for _, w := range result.Warnings {
				output.Warning("  ! %s", w)
			}
			return nil
		},
	}

	cmd.Flags().Float64("risk-percent", 0, "percent of equity to risk (default from config)")
	cmd.Flags().Float64("risk-amount", 0, "explicit dollars to risk (overrides percent)")
	cmd.Flags().Float64("capital-percent", 0, "max percent of equity to deploy (default from config)")
	cmd.Flags().String("regime", "normal", "volatility regime (low, normal, high)")

	rootCmd.AddCommand(cmd)
}
