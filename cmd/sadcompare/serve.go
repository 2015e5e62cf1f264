package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/tinytelemetry/sadcompare/internal/httpserver"
	"github.com/tinytelemetry/sadcompare/internal/logger"
	"go.uber.org/zap"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the result database over a read-only HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, ctx, err := setup(cmd)
			if err != nil {
				return err
			}
			defer logger.FromContext(ctx).Sync() //nolint:errcheck
			return runServe(ctx, cfg, cmd.OutOrStdout())
		},
	}
}

func runServe(ctx context.Context, cfg appConfig, out io.Writer) error {
	log := logger.FromContext(ctx)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	srv := httpserver.NewServer(cfg.APIAddr, st, log)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start query API: %w", err)
	}

	datasets, err := st.ListDatasets()
	if err != nil {
		log.Warn("list datasets", zap.Error(err))
	}
	printStartupBanner(out, cfg, datasets)

	<-ctx.Done()
	log.Info("shutting down query API")
	return srv.Stop()
}

func printStartupBanner(out io.Writer, cfg appConfig, datasets []string) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")

	var lines []string
	lines = append(lines, "")
	lines = append(lines, "    "+cyan.Bold(true).Render("sadcompare")+" "+dim.Render("v"+version))
	lines = append(lines, "")
	lines = append(lines, dim.Render("    ─────────────────────────────────"))
	lines = append(lines, "")
	lines = append(lines, bold.Render("    Query API"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", check, cyan.Render("http://"+cfg.APIAddr+"/api")))
	lines = append(lines, fmt.Sprintf("    %s  Metrics        %s", check, cyan.Render("http://"+cfg.APIAddr+"/metrics")))
	lines = append(lines, "")
	lines = append(lines, bold.Render("    Storage"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  %-13s %s", check, cfg.DBDriver, dim.Render(cfg.DBPath)))
	if len(datasets) > 0 {
		lines = append(lines, fmt.Sprintf("    %s  Datasets       %s", check, strings.Join(datasets, ", ")))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Datasets       %s", dim.Render("●"), dim.Render("none, run with --reprocess")))
	}
	lines = append(lines, "")

	fmt.Fprintln(out, strings.Join(lines, "\n"))
}
