package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jeffconboy/StatEdge/internal/checkpoint"
	"github.com/jeffconboy/StatEdge/internal/report"
	"github.com/jeffconboy/StatEdge/internal/scheduler"
)

const (
	statusFatal  = "FATAL"
	statusFailed = "FAILED"
	statusOK     = "OK"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collect the remaining dates, then validate and write the report",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		started := time.Now()

		a, err := newApp(ctx, cfg)
		if err != nil {
			finishRun(ctx, "run", statusFatal, started)
			return fatal(err)
		}
		defer a.Close()

		rep, err := a.pipeline(ctx, sampleSeed(0))
		if err != nil {
			finishRun(ctx, "run", statusFatal, started)
			return fatal(err)
		}

		finishRun(ctx, "run", string(rep.Status), started)
		return reportExit(rep)
	},
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect the remaining dates without validating",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		started := time.Now()

		a, err := newApp(ctx, cfg)
		if err != nil {
			finishRun(ctx, "collect", statusFatal, started)
			return fatal(err)
		}
		defer a.Close()

		stats, err := a.collect(ctx)
		if err != nil {
			finishRun(ctx, "collect", statusFatal, started)
			return fatal(err)
		}

		if stats.Failed > 0 || stats.Cancelled {
			finishRun(ctx, "collect", statusFailed, started)
			return &exitError{code: exitIncomplete, err: fmt.Errorf("%d dates failed, %d left for the next run", stats.Failed, stats.Interrupted)}
		}
		finishRun(ctx, "collect", statusOK, started)
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate stored data against upstream and write the report",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		started := time.Now()

		a, err := newApp(ctx, cfg)
		if err != nil {
			finishRun(ctx, "validate", statusFatal, started)
			return fatal(err)
		}
		defer a.Close()

		rep, err := a.validate(ctx, nil, sampleSeed(0))
		if err != nil {
			finishRun(ctx, "validate", statusFatal, started)
			return fatal(err)
		}

		finishRun(ctx, "validate", string(rep.Status), started)
		return reportExit(rep)
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the pipeline on SCHEDULE_CRON until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return fatal(err)
		}
		defer a.Close()

		if cfg.EnableMetrics {
			go startMetricsServer(ctx, cfg.MetricsPort, a.store)
		}

		runOnStart, _ := cmd.Flags().GetBool("now")
		runs := 0
		sched := scheduler.NewScheduler(cfg.ScheduleCron, func(ctx context.Context) error {
			started := time.Now()
			if err := a.followSeason(started.UTC()); err != nil {
				finishRun(ctx, "schedule", statusFatal, started)
				return err
			}
			seed := sampleSeed(runs)
			runs++

			rep, err := a.pipeline(ctx, seed)
			if err != nil {
				finishRun(ctx, "schedule", statusFatal, started)
				return err
			}
			finishRun(ctx, "schedule", string(rep.Status), started)
			return nil
		}, runOnStart)

		if err := sched.Run(ctx); err != nil {
			return fatal(err)
		}
		log.Info().Msg("Scheduler shutdown complete")
		return nil
	},
}

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect collection progress",
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the season checkpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		file := checkpoint.NewFile(cfg.CheckpointDir, cfg.Season)
		tracker, err := checkpoint.NewTracker(file, log.Logger)
		if err != nil {
			return fatal(err)
		}
		st := tracker.Snapshot()

		summary := table.NewWriter()
		summary.SetOutputMirror(os.Stdout)
		summary.SetTitle(fmt.Sprintf("Season %d checkpoint", cfg.Season))
		summary.AppendRows([]table.Row{
			{"File", file.Path()},
			{"Completed dates", len(st.CompletedDates)},
			{"Failed dates", len(st.FailedDates)},
			{"Records collected", st.TotalRecords},
			{"Last update", st.LastUpdate.Format(time.RFC3339)},
		})
		summary.Render()

		if len(st.FailedDates) > 0 {
			failed := table.NewWriter()
			failed.SetOutputMirror(os.Stdout)
			failed.AppendHeader(table.Row{"Failed date", "Attempts", "Last attempt"})
			for _, d := range st.FailedDates {
				p := st.Progress(d)
				failed.AppendRow(table.Row{d, p.AttemptCount, p.LastAttemptAt.Format(time.RFC3339)})
			}
			failed.Render()
		}
		return nil
	},
}

func init() {
	scheduleCmd.Flags().Bool("now", false, "run the pipeline once at startup before waiting for the schedule")
}

// reportExit maps a report status to the process exit code
func reportExit(rep *report.Report) error {
	if code := rep.ExitCode(); code != exitComplete {
		return &exitError{code: code}
	}
	return nil
}
