package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/senpa-rd/casewatch/internal/analytics"
)

var (
	summaryJSON   bool
	summaryFilter filterFlags
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print headline metrics and the regional breakdown",
	Long: `Print the dashboard metrics for the filtered cases, followed by the
per-region breakdown and the topic summary table.

Examples:
  casewatch summary
  casewatch summary --region sur --json`,
	RunE: runSummary,
}

func init() {
	rootCmd.AddCommand(summaryCmd)

	summaryCmd.Flags().BoolVar(&summaryJSON, "json", false, "Print JSON instead of text")
	summaryFilter.register(summaryCmd)
}

func runSummary(cmd *cobra.Command, args []string) error {
	a, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	cases := a.filters.Apply(a.cases.List(), summaryFilter.spec())
	metrics := analytics.Summarize(cases)
	regions := analytics.ByRegion(cases)
	topics := analytics.TopicSummary(cases, a.heuristics)

	w := cmd.OutOrStdout()
	if summaryJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"metrics": metrics,
			"regions": regions,
			"topics":  topics,
		})
	}
	printSummary(w, metrics, regions, topics)
	return nil
}

func printSummary(w io.Writer, m analytics.Metrics, regions []analytics.AreaBreakdown, topics analytics.SummaryTable) {
	fmt.Fprintln(w, "Metrics:")
	rows := []struct {
		label string
		value int
	}{
		{"Cases", m.TotalCases},
		{"Operations", m.Operations},
		{"Patrols", m.Patrols},
		{"Detainees", m.Detainees},
		{"Vehicles", m.Vehicles},
		{"Seizures", m.Seizures},
		{"Intervened areas", m.IntervenedAreas},
		{"Notified", m.Notified},
		{"Prosecutor referrals", m.ProsecutorReferrals},
		{"Regions", m.Regions},
	}
	for _, r := range rows {
		fmt.Fprintf(w, "  %-22s %d\n", r.label, r.value)
	}

	fmt.Fprintln(w, "\nBy region:")
	for _, r := range regions {
		fmt.Fprintf(w, "  %-22s total %d  operations %d  patrols %d  detainees %d  vehicles %d\n",
			r.Name, r.Total, r.Operations, r.Patrols, r.Detainees, r.Vehicles)
	}

	if len(topics.Rows) == 0 {
		return
	}
	fmt.Fprintf(w, "\nBy topic (%s):\n", strings.Join(topics.Regions, ", "))
	for _, row := range topics.Rows {
		cells := make([]string, len(row.Cells))
		for i, c := range row.Cells {
			cells[i] = fmt.Sprint(c)
		}
		fmt.Fprintf(w, "  %-12s %-28s %s\n", row.Category, row.Topic, strings.Join(cells, " "))
	}
}
