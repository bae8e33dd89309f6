package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/datallboy/mediaq/internal/domain"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage queued jobs",
	}
	cmd.AddCommand(newJobsListCommand(ctx))
	cmd.AddCommand(newJobsShowCommand(ctx))
	cmd.AddCommand(newJobsStatsCommand(ctx))
	cmd.AddCommand(newJobsSweepCommand(ctx))
	cmd.AddCommand(newJobsRetryCommand(ctx))
	return cmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var (
		status  string
		kind    string
		limit   int
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := domain.JobFilter{Limit: limit}
			if status != "" {
				s, ok := domain.ParseJobStatus(status)
				if !ok {
					return fmt.Errorf("unknown status %q", status)
				}
				filter.Status = s
			}
			if kind != "" {
				filter.Kind = domain.JobKind(kind)
				if filter.Kind != domain.KindImage && filter.Kind != domain.KindHLS {
					return fmt.Errorf("--kind must be image or hls, got %q", kind)
				}
			}

			appCtx, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			jobs, err := appCtx.Store.ListJobs(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, jobs)
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
				return nil
			}

			colorize := shouldColorize(cmd.OutOrStdout())
			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				rows = append(rows, []string{
					job.ID,
					string(job.Kind()),
					statusLabel(job.Status, colorize),
					strconv.Itoa(job.Priority),
					strconv.Itoa(job.AttemptCount),
					job.TargetPath,
					humanize.Time(job.UpdatedAt),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Kind", "Status", "Prio", "Tries", "Target", "Updated"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, in_progress, completed, failed)")
	cmd.Flags().StringVar(&kind, "kind", "", "Filter by kind (image, hls)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appCtx, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			job, err := appCtx.Store.GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, job)
			}

			colorize := shouldColorize(cmd.OutOrStdout())
			rows := [][]string{
				{"ID", job.ID},
				{"Owner", job.Owner.String()},
				{"Status", statusLabel(job.Status, colorize)},
				{"Source", job.SourceURL},
				{"Target", job.TargetPath},
				{"Priority", strconv.Itoa(job.Priority)},
				{"Attempts", strconv.Itoa(job.AttemptCount)},
				{"Claimed by", job.ClaimedBy},
				{"Created", formatTimestamp(&job.CreatedAt)},
				{"Started", formatTimestamp(job.StartedAt)},
				{"Finished", formatTimestamp(job.FinishedAt)},
				{"Last error", job.LastError},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newJobsStatsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count jobs per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			appCtx, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := appCtx.Store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, stats)
			}

			colorize := shouldColorize(cmd.OutOrStdout())
			var rows [][]string
			for _, s := range []domain.JobStatus{domain.StatusPending, domain.StatusInProgress, domain.StatusCompleted, domain.StatusFailed} {
				rows = append(rows, []string{statusLabel(s, colorize), humanize.Comma(int64(stats[s]))})
			}
			rows = append(rows, []string{"total", humanize.Comma(int64(stats.Total()))})
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Status", "Jobs"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newJobsSweepCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Return jobs stuck in progress to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			appCtx, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			n, err := appCtx.Store.ResetStuck(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %d job(s) to pending\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", time.Hour, "Only reset jobs started longer ago than this")
	return cmd
}

func newJobsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>...",
		Short: "Queue fresh copies of failed jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appCtx, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			failed := 0
			for _, id := range args {
				newID, err := appCtx.Store.Requeue(cmd.Context(), id)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Job %s: %v\n", id, err)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s requeued as %s\n", id, newID)
			}
			if failed > 0 {
				return fmt.Errorf("%d job(s) could not be requeued", failed)
			}
			return nil
		},
	}
}

func formatTimestamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
