package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/senpa-rd/casewatch/internal/model"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List reconciled cases",
	Long: `List cases from the configured source in a simple text format.
This command works in any terminal environment and provides an alternative
to the dashboard when terminal capabilities are limited.

Examples:
  # List all cases
  casewatch list

  # Cases of one region in January
  casewatch list --region norte --from 2024-01-01 --to 2024-01-31

  # Free-text search, first 10 matches
  casewatch list --search carbón --limit 10`,
	RunE: runList,
}

var (
	listLimit  int
	listFilter filterFlags
)

// filterFlags are the filter options shared by list, summary and export.
type filterFlags struct {
	from       string
	to         string
	provinces  []string
	regions    []string
	activities []string
	topics     []string
	search     string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.from, "from", "", "Earliest case date (inclusive)")
	cmd.Flags().StringVar(&f.to, "to", "", "Latest case date (inclusive)")
	cmd.Flags().StringSliceVar(&f.provinces, "province", nil, "Province filter (repeatable)")
	cmd.Flags().StringSliceVar(&f.regions, "region", nil, "Region filter (repeatable)")
	cmd.Flags().StringSliceVar(&f.activities, "activity", nil, "Activity type filter (repeatable)")
	cmd.Flags().StringSliceVar(&f.topics, "topic", nil, "Topic area filter (repeatable)")
	cmd.Flags().StringVar(&f.search, "search", "", "Free-text search over locality, province, topic, activity and seizures")
}

func (f *filterFlags) spec() model.FilterSpec {
	return model.FilterSpec{
		DateFrom:      f.from,
		DateTo:        f.to,
		Provinces:     f.provinces,
		Regions:       f.regions,
		ActivityTypes: f.activities,
		TopicAreas:    f.topics,
		SearchText:    f.search,
	}
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum number of cases to show (0 shows all)")
	listFilter.register(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	cases := a.filters.Apply(a.cases.List(), listFilter.spec())
	printCases(cmd.OutOrStdout(), cases, listLimit)
	return nil
}

func printCases(w io.Writer, cases []*model.Case, limit int) {
	if len(cases) == 0 {
		fmt.Fprintln(w, "No cases found.")
		return
	}

	shown := cases
	if limit > 0 && limit < len(shown) {
		shown = shown[:limit]
	}
	fmt.Fprintf(w, "Found %d cases (showing %d):\n\n", len(cases), len(shown))

	for i, c := range shown {
		fmt.Fprintf(w, "%d. [%s] %s\n", i+1, c.CaseNumber, joinNonEmpty(" / ", c.ActivityType, c.TopicArea))
		fmt.Fprintf(w, "   Date: %s %s\n", c.Date, c.Time)
		fmt.Fprintf(w, "   Place: %s\n", joinNonEmpty(", ", c.Locality, c.Province, c.Region))
		fmt.Fprintf(w, "   Detainees: %d  Vehicles: %d  Seizures: %d\n", c.DetaineeCount, c.VehicleCount, len(c.Seizures))
		if c.ProsecutorReferral {
			fmt.Fprintln(w, "   Referred to prosecutor")
		}
		if c.ResultNotes != "" {
			fmt.Fprintf(w, "   Result: %s\n", c.ResultNotes)
		}
		fmt.Fprintln(w)
	}
}

func joinNonEmpty(sep string, parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return "-"
	}
	return strings.Join(out, sep)
}
