package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/boddenberg/ledger-bfa/internal/config"
	"github.com/boddenberg/ledger-bfa/internal/infra/client"
	"github.com/boddenberg/ledger-bfa/internal/infra/resilience"
	"github.com/boddenberg/ledger-bfa/internal/ledger"
	"github.com/boddenberg/ledger-bfa/internal/service"

	"github.com/spf13/cobra"
)

var (
	flagConfig  string
	flagEnvFile string
)

var rootCmd = &cobra.Command{
	Use:          "ledger",
	Short:        "Personal finance ledger BFA",
	Long:         "Serve the ledger API, or fetch a ledger once and print it.",
	SilenceUsage: true,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "TOML config file (overrides LEDGER_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "dotenv file loaded before the environment is read")
}

// loadConfig applies the dotenv file and the --config flag, then loads
// and validates the configuration.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(flagEnvFile); err != nil {
		return nil, fmt.Errorf("loading %s: %w", flagEnvFile, err)
	}
	if flagConfig != "" {
		os.Setenv("LEDGER_CONFIG", flagConfig)
	}
	return config.Load()
}

func newFinanceClient(cfg *config.Config) *client.FinanceClient {
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("finance-api")
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	return client.NewFinanceClient(httpClient, cfg.FinanceAPIURL, cb, resilienceCfg)
}

func coordinatorConfig(cfg *config.Config) service.CoordinatorConfig {
	return service.CoordinatorConfig{
		FetchTimeout: cfg.FetchTimeout,
		Aggregate:    ledger.AggregateOptions{VisibilityFloor: cfg.UtilizationFloor},
	}
}

func screenLimits(cfg *config.Config) service.ScreenLimits {
	return service.ScreenLimits{
		DashboardRecent: cfg.DashboardRecent,
		IncomeRecent:    cfg.IncomeRecent,
		IncomeBuckets:   cfg.IncomeBuckets,
		ExpenseRecent:   cfg.ExpenseRecent,
		ExpenseBuckets:  cfg.ExpenseBuckets,
	}
}
