package main

import (
	"github.com/spf13/cobra"
	"github.com/tinytelemetry/sadcompare/internal/logger"
	"github.com/tinytelemetry/sadcompare/internal/tui"
)

func newBrowseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Explore stored results in an interactive terminal view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, ctx, err := setup(cmd)
			if err != nil {
				return err
			}
			defer logger.FromContext(ctx).Sync() //nolint:errcheck

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			return tui.Run(st)
		},
	}
}
