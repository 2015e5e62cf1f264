package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tinytelemetry/sadcompare/internal/logger"
	"go.uber.org/zap"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sadcompare",
		Short: "Compare species abundance distribution models across ecological datasets",
		Long: `sadcompare selects the best-fitting species abundance distribution model
for every site of every dataset, stores the results and renders comparison charts.

With --reprocess the dataset files are imported, reduced and written to the
result database first. Without it, reports are built from the existing database.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, ctx, err := setup(cmd)
			if err != nil {
				return err
			}
			defer logger.FromContext(ctx).Sync() //nolint:errcheck
			return runBatch(ctx, cfg, cmd.OutOrStdout())
		},
	}
	cmd.SetVersionTemplate(fmt.Sprintf("sadcompare %s (commit %s, built %s)\n", version, commit, buildTime))

	registerFlags(cmd.PersistentFlags())

	cmd.AddCommand(newBrowseCommand())
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newStatusCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// setup loads configuration and attaches a logger to the command context.
func setup(cmd *cobra.Command) (appConfig, context.Context, error) {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return cfg, nil, fmt.Errorf("loading config: %w", err)
	}
	l, err := logger.NewLogger(cfg.LogEnv, cfg.LogLevel)
	if err != nil {
		return cfg, nil, err
	}
	if cfg.ConfigPath != "" {
		l.Debug("config loaded", zap.String("path", cfg.ConfigPath))
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return cfg, logger.ContextWithLogger(ctx, l), nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "sadcompare - SAD model comparison\n")
			fmt.Fprintf(out, "  Version:    %s\n", version)
			fmt.Fprintf(out, "  Commit:     %s\n", commit)
			fmt.Fprintf(out, "  Built:      %s\n", buildTime)
		},
	}
}

func execute() error {
	return newRootCommand().Execute()
}
