package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/senpa-rd/casewatch/internal/bus"
)

var (
	changesGroup    string
	changesConsumer string
	changesStats    bool
)

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Follow case changes published on Redis",
	Long: `Follow the case_changes stream and print one line per created, updated
or deleted case. Each consumer group sees every change once, so separate
groups can follow the stream independently.

Examples:
  casewatch changes --redis redis://localhost:6379
  casewatch changes --stats`,
	RunE: runChanges,
}

func init() {
	rootCmd.AddCommand(changesCmd)

	host, _ := os.Hostname()
	changesCmd.Flags().StringVar(&changesGroup, "group", "casewatch-changes", "Redis consumer group")
	changesCmd.Flags().StringVar(&changesConsumer, "consumer", "casewatch-"+host, "Consumer name within the group")
	changesCmd.Flags().BoolVar(&changesStats, "stats", false, "Print stream statistics and exit")
}

func runChanges(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()
	if cfg.Redis.URL == "" {
		return fmt.Errorf("redis.url is not configured")
	}
	logger, err := newLogger(cfg, "")
	if err != nil {
		return err
	}
	defer logger.Sync()

	rb, err := bus.NewRedisBus(cfg.Redis.URL, logger.Named("bus"))
	if err != nil {
		return err
	}
	defer rb.Close()

	out := cmd.OutOrStdout()
	if changesStats {
		stats, err := rb.GetStats(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	err = rb.ReadCaseChanges(ctx, changesGroup, changesConsumer, func(ctx context.Context, msg bus.CaseChangeMessage) error {
		printChange(out, msg)
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printChange(w io.Writer, msg bus.CaseChangeMessage) {
	actor := msg.Actor
	if actor == "" {
		actor = "system"
	}
	fmt.Fprintf(w, "%s  %-12s %-16s %s\n",
		time.Unix(msg.Timestamp, 0).Format("2006-01-02 15:04:05"), msg.Action, msg.CaseNumber, actor)
}
