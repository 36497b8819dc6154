package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jeffconboy/StatEdge/internal/config"
)

// Process exit codes
const (
	exitComplete   = 0
	exitIncomplete = 1
	exitFatal      = 2
)

// exitError carries a non-zero exit code out of a command
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func fatal(err error) error {
	return &exitError{code: exitFatal, err: err}
}

var (
	cfg *config.Config

	flagSeason     int
	flagBatchSize  int
	flagSampleSize int
	flagWorkers    int
	flagSeed       int64
)

var rootCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Statcast season backfill and validation",
	Long: `backfill collects a season of Statcast pitch data from Baseball Savant
into the pitch store one calendar date at a time, checkpointing progress so an
interrupted run resumes where it stopped, then validates the stored data
against upstream and writes a completeness report.

Exit codes: 0 report COMPLETE, 1 report INCOMPLETE, 2 fatal error.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fatal(err)
		}
		setupLogger(loaded)

		applyFlags(cmd, loaded)
		if err := loaded.Validate(); err != nil {
			return fatal(fmt.Errorf("invalid configuration: %w", err))
		}
		cfg = loaded

		log.Info().
			Str("env", cfg.AppEnv).
			Int("season", cfg.Season).
			Str("store", cfg.StoreDriver).
			Str("lease", cfg.LeaseBackend).
			Msg("Configuration loaded")
		return nil
	},
}

func main() {
	// Create context that listens for cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("Received shutdown signal, finishing current dates...")
		cancel()
	}()

	addPersistentFlags()
	registerCommands()

	os.Exit(execute(ctx))
}

func execute(ctx context.Context) int {
	return exitCode(rootCmd.ExecuteContext(ctx))
}

// exitCode maps a command error to the process exit code
func exitCode(err error) int {
	if err == nil {
		return exitComplete
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		if exitErr.code == exitFatal {
			log.Error().Err(exitErr.err).Msg("Backfill failed")
		}
		return exitErr.code
	}

	// flag and argument errors from cobra
	fmt.Fprintln(os.Stderr, "error:", err)
	return exitFatal
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.IntVar(&flagSeason, "season", 0, "season year (overrides SEASON)")
	flags.IntVar(&flagBatchSize, "batch-size-days", 0, "dates per batch (overrides BATCH_SIZE_DAYS)")
	flags.IntVar(&flagSampleSize, "sample-size", 0, "dates sampled for validation (overrides SAMPLE_SIZE)")
	flags.IntVar(&flagWorkers, "concurrency", 0, "dates processed at once (overrides WORKER_CONCURRENCY)")
	flags.Int64Var(&flagSeed, "seed", 0, "random seed for the validation sample (0 picks one)")
}

func registerCommands() {
	rootCmd.AddCommand(runCmd, collectCmd, validateCmd, scheduleCmd, checkpointCmd)
	checkpointCmd.AddCommand(checkpointShowCmd)
}

// applyFlags copies explicitly set flags over the environment configuration
func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("season") {
		c.PinSeason(flagSeason)
	}
	if flags.Changed("batch-size-days") {
		c.BatchSizeDays = flagBatchSize
	}
	if flags.Changed("sample-size") {
		c.SampleSize = flagSampleSize
	}
	if flags.Changed("concurrency") {
		c.WorkerConcurrency = flagWorkers
	}
}

// setupLogger configures the zerolog logger
func setupLogger(c *config.Config) {
	// Pretty console logging in development
	if c.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
	}

	level := zerolog.InfoLevel
	if c.LogLevel != "" {
		parsedLevel, err := zerolog.ParseLevel(c.LogLevel)
		if err == nil {
			level = parsedLevel
		}
	}
	zerolog.SetGlobalLevel(level)
}
