package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/tinytelemetry/sadcompare/internal/logger"
	"github.com/tinytelemetry/sadcompare/internal/model"
	"github.com/tinytelemetry/sadcompare/internal/report"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show what the result database currently holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, ctx, err := setup(cmd)
			if err != nil {
				return err
			}
			defer logger.FromContext(ctx).Sync() //nolint:errcheck
			return runStatus(ctx, cfg, cmd.OutOrStdout())
		},
	}
}

func runStatus(_ context.Context, cfg appConfig, out io.Writer) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	current, pending, err := st.SchemaVersion()
	if err != nil {
		return fmt.Errorf("schema version: %w", err)
	}
	counts, err := st.TableRowCounts()
	if err != nil {
		return fmt.Errorf("row counts: %w", err)
	}
	datasets, err := st.ListDatasets()
	if err != nil {
		return fmt.Errorf("list datasets: %w", err)
	}

	fmt.Fprintf(out, "database  %s (%s, schema v%d, %d pending)\n", cfg.DBPath, cfg.DBDriver, current, pending)

	tables := make([]string, 0, len(counts))
	for t := range counts {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, t := range tables {
		fmt.Fprintf(out, "  %-8s %s rows\n", t, humanize.Comma(counts[t]))
	}

	if len(datasets) == 0 {
		fmt.Fprintln(out, "datasets  none")
		return nil
	}
	fmt.Fprintf(out, "datasets  %s\n\n", strings.Join(datasets, ", "))
	fmt.Fprintln(out, model.ModelLegend())

	for _, d := range datasets {
		wins, err := st.CountWinsByModel(d)
		if err != nil {
			return fmt.Errorf("count wins for %s: %w", d, err)
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, report.TerminalSummary(d, wins, 100))
	}
	return nil
}
