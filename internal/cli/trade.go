package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tws-bridge/internal/models"
)

// addTradingCommands adds order placement and management commands.
func addTradingCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newPlaceCmd(app))
	rootCmd.AddCommand(newBracketCmd(app))
	rootCmd.AddCommand(newModifyCmd(app))
	rootCmd.AddCommand(newCancelCmd(app))
	rootCmd.AddCommand(newCancelAllCmd(app))
	rootCmd.AddCommand(newOrdersCmd(app))
	rootCmd.AddCommand(newBracketsCmd(app))
}

func newPlaceCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "place <symbol> <side> <quantity>",
		Short: "Place a single order",
		Example: `  tws-bridge place AAPL BUY 100
  tws-bridge place AAPL BUY 100 --type LMT --limit 185.50
  tws-bridge place MSFT SELL 50 --type TRAIL --trail-percent 2.5`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext()
			defer cancel()

			qty, err := strconv.Atoi(args[2])
			if err != nil {
				output.Error("Invalid quantity: %s", args[2])
				return fmt.Errorf("invalid quantity")
			}

			orderType, _ := cmd.Flags().GetString("type")
			tif, _ := cmd.Flags().GetString("tif")

			req := models.OrderRequest{
				Symbol:   strings.ToUpper(args[0]),
				Side:     models.OrderSide(strings.ToUpper(args[1])),
				Type:     models.OrderType(orderType),
				Quantity: qty,
				TIF:      models.TimeInForce(tif),
			}
			req.LimitPrice = flagFloat(cmd, "limit")
			req.TriggerPrice = flagFloat(cmd, "trigger")
			req.TrailingPercent = flagFloat(cmd, "trail-percent")
			req.DiscretionaryAmount = flagFloat(cmd, "discretionary")

			order, err := app.Orchestrator.PlaceOrder(ctx, req)
			if err != nil {
				output.Error("Order failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(order)
			}
			output.Success("Order placed")
			output.Printf("  Order ID: %d\n", order.OrderID)
			output.Printf("  Status:   %s\n", order.Status)
			return nil
		},
	}

	cmd.Flags().String("type", "MKT", "order type (MKT, LMT, STP, STP LMT, TRAIL, TRAIL LIMIT, REL)")
	cmd.Flags().String("tif", "", "time in force (DAY, GTC, IOC)")
	cmd.Flags().Float64("limit", 0, "limit price")
	cmd.Flags().Float64("trigger", 0, "trigger price (trailing amount for TRAIL orders)")
	cmd.Flags().Float64("trail-percent", 0, "trailing percent")
	cmd.Flags().Float64("discretionary", 0, "discretionary amount (REL only)")
	return cmd
}

func newBracketCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bracket <symbol> <side> <quantity>",
		Short: "Place a bracket order (entry + take-profit + stop-loss)",
		Long: `Place a bracket order: an entry leg plus a take-profit and a stop-loss
exit leg linked under one OCA group, so that filling one exit cancels the
other. The stop leg may be a plain stop, a stop-limit, or a trailing stop.`,
		Example: `  tws-bridge bracket AAPL BUY 100 --tp 195 --sl 180
  tws-bridge bracket AAPL BUY 100 --entry-type LMT --entry-limit 185 --tp 195 --sl 180
  tws-bridge bracket AAPL BUY 100 --tp 195 --stop-type TRAIL --trail-percent 2`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext()
			defer cancel()

			qty, err := strconv.Atoi(args[2])
			if err != nil {
				output.Error("Invalid quantity: %s", args[2])
				return fmt.Errorf("invalid quantity")
			}

			entryType, _ := cmd.Flags().GetString("entry-type")
			stopType, _ := cmd.Flags().GetString("stop-type")
			tp, _ := cmd.Flags().GetFloat64("tp")
			tif, _ := cmd.Flags().GetString("tif")

			req := models.AdvancedBracketRequest{
				Symbol:          strings.ToUpper(args[0]),
				Side:            models.OrderSide(strings.ToUpper(args[1])),
				Quantity:        qty,
				EntryType:       models.OrderType(entryType),
				EntryLimitPrice: flagFloat(cmd, "entry-limit"),
				TakeProfitPrice: tp,
				StopType:        models.OrderType(stopType),
				StopPrice:       flagFloat(cmd, "sl"),
				StopLimitPrice:  flagFloat(cmd, "stop-limit"),
				TrailPercent:    flagFloat(cmd, "trail-percent"),
				TIF:             models.TimeInForce(tif),
			}

			result, err := app.Orchestrator.PlaceAdvancedBracket(ctx, req)
			if err != nil {
				output.Error("Bracket failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(result)
			}
			output.Success("Bracket placed")
			output.Printf("  Correlation: %s\n", result.CorrelationID)
			output.Printf("  OCA group:   %s\n", result.OCAGroup)
			output.Printf("  Entry:       %d (%s)\n", result.Entry.OrderID, result.Entry.Status)
			output.Printf("  Take-profit: %d (%s)\n", result.TakeProfit.OrderID, result.TakeProfit.Status)
			output.Printf("  Stop-loss:   %d (%s)\n", result.StopLoss.OrderID, result.StopLoss.Status)
			return nil
		},
	}

	cmd.Flags().String("entry-type", "MKT", "entry order type (MKT or LMT)")
	cmd.Flags().Float64("entry-limit", 0, "entry limit price")
	cmd.Flags().Float64("tp", 0, "take-profit price")
	cmd.Flags().Float64("sl", 0, "stop-loss trigger price (trailing amount for TRAIL)")
	cmd.Flags().String("stop-type", "STP", "stop leg type (STP, STP LMT, TRAIL, TRAIL LIMIT)")
	cmd.Flags().Float64("stop-limit", 0, "stop-limit price")
	cmd.Flags().Float64("trail-percent", 0, "trailing percent for TRAIL stop legs")
	cmd.Flags().String("tif", "", "time in force")
	return cmd
}

func newModifyCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modify <order-id>",
		Short: "Modify a resting order in place",
		Long: `Modify a resting order. Only the provided flags change; everything else,
including the order's bracket linkage, is preserved, and the amendment is
resubmitted under the same order id.`,
		Example: `  tws-bridge modify 1001 --limit 186.25
  tws-bridge modify 1001 --quantity 50 --tif GTC`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext()
			defer cancel()

			orderID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				output.Error("Invalid order id: %s", args[0])
				return fmt.Errorf("invalid order id")
			}

			var changes models.OrderChanges
			if cmd.Flags().Changed("quantity") {
				q, _ := cmd.Flags().GetInt("quantity")
				changes.Quantity = &q
			}
			changes.LimitPrice = flagFloat(cmd, "limit")
			changes.TriggerPrice = flagFloat(cmd, "trigger")
			changes.TrailingPercent = flagFloat(cmd, "trail-percent")
			if cmd.Flags().Changed("tif") {
				t, _ := cmd.Flags().GetString("tif")
				tif := models.TimeInForce(t)
				changes.TIF = &tif
			}

			result, err := app.Orchestrator.ModifyOrder(ctx, orderID, changes)
			if err != nil {
				output.Error("Modify failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(result)
			}
			output.Success("Order %d modified", orderID)
			for _, c := range result.Changes {
				output.Printf("  %s\n", c)
			}
			return nil
		},
	}

	cmd.Flags().Int("quantity", 0, "new quantity")
	cmd.Flags().Float64("limit", 0, "new limit price")
	cmd.Flags().Float64("trigger", 0, "new trigger price")
	cmd.Flags().Float64("trail-percent", 0, "new trailing percent")
	cmd.Flags().String("tif", "", "new time in force")
	return cmd
}

func newCancelCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <order-id>",
		Short: "Cancel a resting order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext()
			defer cancel()

			orderID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				output.Error("Invalid order id: %s", args[0])
				return fmt.Errorf("invalid order id")
			}

			if err := app.Orchestrator.CancelOrder(ctx, orderID); err != nil {
				output.Error("Cancel failed: %v", err)
				return err
			}
			output.Success("Order %d cancelled", orderID)
			return nil
		},
	}
}

func newCancelAllCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel-all",
		Short: "Cancel all open orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext()
			defer cancel()

			if err := app.Orchestrator.CancelAll(ctx); err != nil {
				output.Error("Cancel-all failed: %v", err)
				return err
			}
			output.Success("Cancel-all issued")
			return nil
		},
	}
}

func newOrdersCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "orders",
		Short: "Show the gateway's live open orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext()
			defer cancel()

			open, err := app.Orchestrator.OpenOrders(ctx)
			if err != nil {
				output.Error("Query failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(open)
			}
			if len(open) == 0 {
				output.Info("No open orders")
				return nil
			}
			output.Bold("%-8s %-8s %-5s %-10s %6s %10s %10s  %s", "ID", "SYMBOL", "SIDE", "TYPE", "QTY", "LMT", "TRIG", "STATUS")
			for _, o := range open {
				output.Printf("%-8d %-8s %-5s %-10s %6d %10.2f %10.2f  %s\n",
					o.OrderID, o.Symbol, o.Side, o.Type, o.Quantity, o.LimitPrice, o.TriggerPrice, o.Status)
			}
			return nil
		},
	}
}

func newBracketsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "brackets",
		Short: "List correlation ids of brackets with a live leg",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext()
			defer cancel()

			if app.Store == nil {
				output.Error("Order store unavailable")
				return fmt.Errorf("order store unavailable")
			}
			ids, err := app.Store.LiveBracketCorrelations(ctx)
			if err != nil {
				output.Error("Query failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(ids)
			}
			if len(ids) == 0 {
				output.Info("No live brackets")
				return nil
			}
			for _, id := range ids {
				output.Println(id)
			}
			return nil
		},
	}
}

// flagFloat returns a pointer to a float flag's value only when the caller
// set it, so unset flags stay "absent" rather than zero.
func flagFloat(cmd *cobra.Command, name string) *float64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetFloat64(name)
	return &v
}
