package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/senpa-rd/casewatch/internal/ingest"
	"github.com/senpa-rd/casewatch/internal/store"
)

var importAppend bool

var importCmd = &cobra.Command{
	Use:   "import <dir|file.csv>...",
	Short: "Load CSV exports into the source tables",
	Long: `Import CSV files into the database. Each file loads into the table named
after it ("Detenidos.csv" -> detenidos); the header row gives the columns.
Semicolon and comma delimiters are detected, and a UTF-8 BOM is ignored.

By default the table is replaced; --append adds rows instead.

Examples:
  casewatch import ./exports/2024-01
  casewatch import notas_informativas.csv detenidos.csv --append`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().BoolVar(&importAppend, "append", false, "Append rows instead of replacing each table")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()
	logger, err := newLogger(cfg, "")
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer db.Close()

	total := 0
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", arg, err)
		}
		importer := ingest.NewImporter(db, ingest.Options{
			Dir:     arg,
			Replace: !importAppend,
			Logger:  logger,
		})

		var results []ingest.Result
		if info.IsDir() {
			results, err = importer.ImportDir(ctx)
		} else {
			var res ingest.Result
			res, err = importer.ImportFile(ctx, arg)
			results = append(results, res)
		}
		if err != nil {
			return err
		}
		for _, res := range results {
			logger.Info("imported", zap.String("file", res.File), zap.String("table", res.Table), zap.Int("rows", res.Rows))
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%d rows)\n", res.File, res.Table, res.Rows)
			total += res.Rows
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d rows.\n", total)
	return nil
}
