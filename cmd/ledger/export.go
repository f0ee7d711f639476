package main

import (
	"fmt"
	"io"
	"os"

	"github.com/boddenberg/ledger-bfa/internal/export"

	"github.com/spf13/cobra"
)

var flagOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Fetch the ledger once and write it as CSV",
	RunE:  runExport,
}

func init() {
	addCredentialFlags(exportCmd)
	exportCmd.Flags().StringVarP(&flagOut, "out", "o", "-", "output file, - for stdout")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, _ []string) error {
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

	rows, err := app.svc.Report(ctx, cliSessionID)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if flagOut != "-" {
		f, err := os.Create(flagOut)
		if err != nil {
			return fmt.Errorf("creating %s: %w", flagOut, err)
		}
		defer f.Close()
		w = f
	}
	if err := export.WriteCSV(w, rows); err != nil {
		return err
	}
	if flagOut != "-" {
		fmt.Fprintf(os.Stderr, "  wrote %d transactions to %s\n", len(rows), flagOut)
	}
	return nil
}
