package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tws-bridge/internal/broker"
	"tws-bridge/internal/config"
	"tws-bridge/internal/engine"
	"tws-bridge/internal/logging"
	"tws-bridge/internal/models"
	"tws-bridge/internal/store"
	"tws-bridge/pkg/utils"
)

// Version information
const (
	Version = "0.1.0"
)

// App holds the application dependencies.
type App struct {
	Config       *config.Config
	Logger       zerolog.Logger
	Gateway      broker.Gateway
	Store        store.OrderStore
	Guard        *engine.SessionGuard
	Orchestrator *engine.Orchestrator
	Sizer        *engine.PositionSizer
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// The simulated gateway is the default session; a live session would be
	// wired here behind the same interface.
	gw := broker.NewSimGateway(broker.SimConfig{StartingEquity: cfg.Gateway.SimEquity})
	err := utils.Retry(context.Background(), utils.DefaultRetryConfig(), func() error {
		return gw.Connect(context.Background())
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to connect gateway")
	}
	app.Gateway = gw

	// The journal database may be briefly locked by another invocation.
	dbPath := filepath.Join(config.DefaultConfigDir(), "orders.db")
	orderStore, err := utils.RetryWithResult(context.Background(), utils.DefaultRetryConfig(), func() (*store.SQLiteStore, error) {
		return store.NewSQLiteStore(dbPath)
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize order store, audit journal disabled")
	} else {
		app.Store = orderStore
	}

	app.Guard = engine.NewSessionGuard(cfg.Risk.MaxDailyLoss, cfg.Risk.MaxConsecutiveLosses, logger)
	app.Sizer = engine.NewPositionSizer(app.Gateway, cfg.Sizing, logger)
	app.Orchestrator = engine.NewOrchestrator(engine.OrchestratorConfig{
		Gateway:         app.Gateway,
		Guard:           app.Guard,
		Store:           app.Store,
		Logger:          logger,
		AckTimeout:      cfg.Gateway.AckTimeout,
		SnapshotTimeout: cfg.Gateway.SnapshotTimeout,
		DefaultTIF:      models.TimeInForce(cfg.Trading.DefaultTIF),
		Strategy:        cfg.Trading.Strategy,
	})

	rootCmd := &cobra.Command{
		Use:   "tws-bridge",
		Short: "Order execution bridge for a brokerage gateway",
		Long: `tws-bridge turns trading intents into correctly sequenced, risk-gated
commands against a broker session: single orders, linked bracket orders,
in-place amendments, and multi-constraint position sizing.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/tws-bridge)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addTradingCommands(rootCmd, app)
	addSessionCommands(rootCmd, app)
	addSizingCommands(rootCmd, app)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tws-bridge %s\n", Version)
		},
	})

	return rootCmd
}

// Execute loads configuration and runs the root command.
func Execute() {
	configDir := ""
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			configDir = os.Args[i+1]
		}
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLoggerWithConfig(logging.LogConfig{
		Level:      cfg.Logging.Level,
		Console:    cfg.Logging.Console,
		File:       cfg.Logging.File,
		FilePath:   filepath.Join(config.DefaultConfigDir(), "logs", "bridge.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	})

	rootCmd := NewRootCmd(cfg, logger)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// commandContext returns the standard timeout context for a CLI invocation.
func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}
