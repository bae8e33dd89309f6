package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProcessOneCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process-one",
		Short: "Claim and run a single pending job",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, orch, err := ctx.orchestrator(cmd.Context())
			if err != nil {
				return err
			}
			if !orch.ProcessOne(cmd.Context()) {
				fmt.Fprintln(cmd.OutOrStdout(), "No pending jobs")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Processed 1 job")
			return nil
		},
	}
}

func newDrainCommand(ctx *commandContext) *cobra.Command {
	var batch int

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Run batches until the queue has no pending jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			appCtx, orch, err := ctx.orchestrator(cmd.Context())
			if err != nil {
				return err
			}
			if batch <= 0 {
				batch = appCtx.Config.Worker.BatchSize
			}
			n := orch.Drain(cmd.Context(), batch)
			fmt.Fprintf(cmd.OutOrStdout(), "Processed %d job(s)\n", n)
			return nil
		},
	}

	cmd.Flags().IntVar(&batch, "batch", 0, "Jobs per batch (defaults to worker.batch_size)")
	return cmd
}
