package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/palu-ci/palu/internal/config"
	"github.com/palu-ci/palu/internal/domain/consultation"
	"github.com/palu-ci/palu/internal/platform/spreadsheet"
)

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import consultations from an .xlsx or .csv file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			rows, err := readRows(args[0])
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env, os.Stderr)

			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := newConsultationService(cfg, consultation.NewRepo(pool), logger)
			sum, err := svc.Import(ctx, rows)
			if err != nil {
				return fmt.Errorf("import %s: %w", args[0], err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d consultation(s), %d row(s) rejected.\n", sum.Count, sum.Errors)
			return nil
		},
	}
}

func readRows(path string) ([]spreadsheet.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := spreadsheet.Read(f, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}
