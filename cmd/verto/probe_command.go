package main

import (
	"github.com/hbomb79/Verto/internal/engine"
	"github.com/spf13/cobra"
)

func newProbeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <file>",
		Short: "Print the media kind, format and streams of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			info, err := engine.Probe(cmd.Context(), cfg.Engine, args[0])
			if err != nil {
				return err
			}

			return writeJSON(cmd, info)
		},
	}
}
