package main

import (
	"fmt"

	"github.com/boddenberg/ledger-bfa/internal/cli"
	"github.com/boddenberg/ledger-bfa/internal/domain"

	"github.com/spf13/cobra"
)

var flagKind string

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Fetch the ledger once and print the dashboard",
	RunE:  runSummary,
}

func init() {
	addCredentialFlags(summaryCmd)
	summaryCmd.Flags().StringVarP(&flagKind, "kind", "k", "", "show the income or expense screen instead of the dashboard")
	rootCmd.AddCommand(summaryCmd)
}

func runSummary(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	app, err := newOneShot(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if flagKind == "" {
		view, err := app.svc.Dashboard(ctx, cliSessionID)
		if err != nil {
			return err
		}
		fmt.Println()
		fmt.Println(cli.RenderDashboard(view))
		return nil
	}

	kind, ok := domain.ParseKind(flagKind)
	if !ok {
		return fmt.Errorf("--kind must be income or expense, got %q", flagKind)
	}
	view, err := app.svc.Kind(ctx, cliSessionID, kind)
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Printf("  %s total: %s (%d transactions)\n\n", kind, cli.FormatMoney(view.Total), view.Count)
	fmt.Println(cli.RenderTransactions("Recent "+string(kind), view.Recent))
	return nil
}
