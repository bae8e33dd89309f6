package main

import (
	"fmt"

	"github.com/datallboy/mediaq/internal/domain"
	"github.com/datallboy/mediaq/internal/engine"
	"github.com/spf13/cobra"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue a download job",
	}
	cmd.AddCommand(newEnqueueImageCommand(ctx))
	cmd.AddCommand(newEnqueueHLSCommand(ctx))
	return cmd
}

func newEnqueueImageCommand(ctx *commandContext) *cobra.Command {
	var (
		contentID int64
		title     string
		role      string
		priority  int
	)

	cmd := &cobra.Command{
		Use:   "image <url>",
		Short: "Queue a poster or banner image for a content item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			imageRole, ok := domain.ParseImageRole(role)
			if !ok {
				return fmt.Errorf("--role must be thumb or banner, got %q", role)
			}
			appCtx, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			id, err := engine.EnqueueImage(cmd.Context(), appCtx.Store, contentID, title, imageRole, args[0], priority)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().Int64Var(&contentID, "content-id", 0, "Owning content item id")
	cmd.Flags().StringVar(&title, "title", "", "Content title used to build the file name")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleThumb), "Image role: thumb or banner")
	cmd.Flags().IntVar(&priority, "priority", 0, "Higher runs first")
	_ = cmd.MarkFlagRequired("content-id")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newEnqueueHLSCommand(ctx *commandContext) *cobra.Command {
	var (
		episodeID int64
		title     string
		number    int
		priority  int
	)

	cmd := &cobra.Command{
		Use:   "hls <url>",
		Short: "Queue an HLS stream mirror for an episode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if number <= 0 {
				return fmt.Errorf("--number must be positive")
			}
			appCtx, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			id, err := engine.EnqueueEpisode(cmd.Context(), appCtx.Store, episodeID, title, number, args[0], priority)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().Int64Var(&episodeID, "episode-id", 0, "Owning episode id")
	cmd.Flags().StringVar(&title, "title", "", "Series title used to build the directory name")
	cmd.Flags().IntVar(&number, "number", 0, "Episode number")
	cmd.Flags().IntVar(&priority, "priority", 0, "Higher runs first")
	_ = cmd.MarkFlagRequired("episode-id")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("number")
	return cmd
}
