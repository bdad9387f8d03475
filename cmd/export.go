package cmd

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/senpa-rd/casewatch/internal/analytics"
	"github.com/senpa-rd/casewatch/internal/export"
	"github.com/senpa-rd/casewatch/internal/model"
)

var (
	exportStamp  bool
	exportFilter filterFlags
)

var exportCmd = &cobra.Command{
	Use:   "export [cases|metrics|regions|provinces|charts|chart:<kind>]...",
	Short: "Write CSV and PNG exports to a directory or S3",
	Long: `Export the filtered cases. With no arguments, cases and metrics CSV files
are written. The target is a local directory or s3://bucket/prefix
(query parameters region, endpoint and path_style configure the client).

Examples:
  casewatch export
  casewatch export cases charts --target ./out
  casewatch export chart:weekly --region norte --target "s3://reports/casewatch?region=us-east-1"`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().String("target", "./exports", "Export directory or s3://bucket/prefix")
	exportCmd.Flags().BoolVar(&exportStamp, "stamp", false, "Write into a timestamped sub-folder")
	exportFilter.register(exportCmd)

	viper.BindPFlag("export.target", exportCmd.Flags().Lookup("target"))
}

// exportJob renders one export file.
type exportJob struct {
	key         string
	contentType string
	render      func(w *bytes.Buffer, cases []*model.Case) error
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	jobs, err := exportJobs(a, args)
	if err != nil {
		return err
	}

	sink, err := export.OpenSink(ctx, a.cfg.Export.Target)
	if err != nil {
		return err
	}
	prefix := ""
	if exportStamp {
		prefix = time.Now().Format("20060102-150405")
	}

	cases := a.filters.Apply(a.cases.List(), exportFilter.spec())
	for _, job := range jobs {
		loc, err := runExportJob(ctx, sink, path.Join(prefix, job.key), job, cases)
		if err != nil {
			return err
		}
		a.logger.Info("export written", zap.String("location", loc), zap.Int("cases", len(cases)))
		fmt.Fprintln(cmd.OutOrStdout(), loc)
	}
	return nil
}

func runExportJob(ctx context.Context, sink export.Sink, key string, job exportJob, cases []*model.Case) (string, error) {
	var buf bytes.Buffer
	if err := job.render(&buf, cases); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", job.key, err)
	}
	return sink.Put(ctx, key, &buf, job.contentType)
}

func exportJobs(a *app, args []string) ([]exportJob, error) {
	if len(args) == 0 {
		args = []string{"cases", "metrics"}
	}
	const csvType = "text/csv; charset=utf-8"

	var jobs []exportJob
	for _, arg := range args {
		arg = strings.ToLower(strings.TrimSpace(arg))
		switch {
		case arg == "cases":
			jobs = append(jobs, exportJob{"casos.csv", csvType, func(w *bytes.Buffer, cases []*model.Case) error {
				return export.WriteCasesCSV(w, cases)
			}})
		case arg == "metrics":
			jobs = append(jobs, exportJob{"metricas.csv", csvType, func(w *bytes.Buffer, cases []*model.Case) error {
				return export.WriteMetricsCSV(w, analytics.Summarize(cases))
			}})
		case arg == "regions":
			jobs = append(jobs, exportJob{"regiones.csv", csvType, func(w *bytes.Buffer, cases []*model.Case) error {
				return export.WriteBreakdownCSV(w, "Región", analytics.ByRegion(cases))
			}})
		case arg == "provinces":
			jobs = append(jobs, exportJob{"provincias.csv", csvType, func(w *bytes.Buffer, cases []*model.Case) error {
				return export.WriteBreakdownCSV(w, "Provincia", analytics.ByProvince(cases))
			}})
		case arg == "charts":
			for _, kind := range export.ChartKinds {
				jobs = append(jobs, chartJob(a, kind))
			}
		case strings.HasPrefix(arg, "chart:"):
			kind, err := export.ParseChartKind(strings.TrimPrefix(arg, "chart:"))
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, chartJob(a, kind))
		default:
			return nil, fmt.Errorf("unknown export %q", arg)
		}
	}
	return jobs, nil
}

func chartJob(a *app, kind export.ChartKind) exportJob {
	return exportJob{
		key:         "chart-" + string(kind) + ".png",
		contentType: "image/png",
		render: func(w *bytes.Buffer, cases []*model.Case) error {
			return export.RenderChart(w, kind, cases, a.heuristics, a.filters.Dates())
		},
	}
}
