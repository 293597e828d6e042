package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/treedelta/internal/changeset"
	"github.com/bamsammich/treedelta/internal/config"
	"github.com/bamsammich/treedelta/internal/engine"
	"github.com/bamsammich/treedelta/internal/event"
	"github.com/bamsammich/treedelta/internal/stats"
	"github.com/bamsammich/treedelta/internal/ui"
)

var version = "dev"

func main() {
	os.Exit(run())
}

// options holds every root command flag.
type options struct {
	batchSize    int
	bufferSize   int
	noIOURing    bool
	keepGoing    bool
	verify       bool
	dryRun       bool
	archivePath  string
	archiveLevel string
	reportPath   string
	bwLimit      string
	logFile      string
	verbose      bool
	quiet        bool
	noProgress   bool
	showVersion  bool
}

func run() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var opts options

	rootCmd := &cobra.Command{
		Use:   "treedelta [flags] <baseline> <modified> <output>",
		Short: "Stage files that are new or changed between two directory trees",
		Long: `treedelta walks <modified> and copies every regular file that is missing
from <baseline>, or whose content differs, into <output> at the same
relative path. Opens are batched through io_uring where the kernel allows.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion {
				return nil
			}
			return cobra.ExactArgs(3)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion {
				fmt.Fprintf(os.Stdout, "treedelta %s\n", version)
				return nil
			}
			return runCompare(cmd, args, &opts)
		},
	}

	registerFlags(rootCmd.Flags(), &opts)

	rootCmd.AddCommand(newBenchCmd())
	rootCmd.AddCommand(newDocsCmd())

	return rootCmd
}

func registerFlags(fs *pflag.FlagSet, opts *options) {
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	fs.IntVar(&opts.batchSize, "batch-size", engine.DefaultBatchSize,
		"file pairs per io_uring submission")
	fs.IntVar(&opts.bufferSize, "buffer-size", engine.DefaultBufferSize,
		"hash read buffer size in bytes")
	fs.BoolVar(&opts.noIOURing, "no-iouring", false, "use synchronous openat(2) instead of io_uring")
	fs.BoolVar(&opts.keepGoing, "keep-going", false, "record per-file failures and continue")
	fs.BoolVar(&opts.verify, "verify", false, "verify staged files against the modified tree (BLAKE3)")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "classify files without writing the output tree")
	fs.StringVar(&opts.archivePath, "archive", "", "pack the output tree into FILE (.tar.zst or .tar.gz)")
	fs.StringVar(&opts.archiveLevel, "archive-level", "default",
		"archive compression level (fastest, default, better, best)")
	fs.StringVar(&opts.bwLimit, "bwlimit", "", "copy bandwidth limit (e.g. 100M, 1G)")
	fs.StringVar(&opts.reportPath, "report", "", "write a JSON report of every file to FILE")
	fs.StringVar(&opts.logFile, "log", "", "write structured JSON log to FILE")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output (lists unchanged files)")
	fs.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress all output except errors")
	fs.BoolVar(&opts.noProgress, "no-progress", false, "disable the progress display")
}

//nolint:gocyclo,revive // cyclomatic,cognitive-complexity: CLI entry point wires every component
func runCompare(cmd *cobra.Command, args []string, opts *options) error {
	baseline, modified, output := args[0], args[1], args[2]

	// Load optional config file.
	cfg, cfgErr := config.Load()

	// Apply config defaults for flags not explicitly set on CLI.
	applyConfigDefaults(cmd.Flags(), cfg.Defaults, opts)
	ui.ApplyTheme(cfg.Theme)

	// Configure logging.
	logLevel := slog.LevelInfo
	if opts.verbose {
		logLevel = slog.LevelDebug
	} else if opts.quiet {
		logLevel = slog.LevelWarn
	}
	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	var logHandler slog.Handler = textHandler
	if opts.logFile != "" {
		lf, err := os.Create(opts.logFile)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer lf.Close()
		jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
		logHandler = ui.NewMultiHandler(textHandler, jsonHandler)
	}
	slog.SetDefault(slog.New(logHandler))

	if cfgErr != nil {
		slog.Warn("failed to load config", "path", config.Path(), "error", cfgErr)
	}

	var archiveOpts changeset.Options
	if opts.archivePath != "" {
		format, err := changeset.ParseFormat(opts.archivePath)
		if err != nil {
			return fmt.Errorf("invalid --archive: %w", err)
		}
		level, err := changeset.ParseLevel(opts.archiveLevel)
		if err != nil {
			return fmt.Errorf("invalid --archive-level: %w", err)
		}
		archiveOpts = changeset.Options{Format: format, Level: level}
	}
	var bwLimit int64
	if opts.bwLimit != "" {
		n, err := parseSize(opts.bwLimit)
		if err != nil {
			return fmt.Errorf("invalid --bwlimit: %w", err)
		}
		bwLimit = n
	}
	if opts.batchSize <= 0 {
		return fmt.Errorf("invalid --batch-size %d: must be positive", opts.batchSize)
	}
	if opts.bufferSize <= 0 {
		return fmt.Errorf("invalid --buffer-size %d: must be positive", opts.bufferSize)
	}

	if opts.dryRun {
		slog.Info("dry run mode")
	}

	// Set up context with signal handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()
	events := make(chan event.Event, 256)
	presenterEvents := teeEvents(events, opts.logFile != "")

	tty := ui.DetectTerminal(os.Stderr)
	presenter := ui.NewPresenter(ui.Config{
		Writer:     cmd.OutOrStdout(),
		ErrWriter:  cmd.ErrOrStderr(),
		Stats:      collector,
		Width:      tty.Width,
		IsTTY:      tty.IsTTY,
		Quiet:      opts.quiet,
		Verbose:    opts.verbose,
		NoProgress: opts.noProgress,
	})

	var presenterErr error
	var presenterWg sync.WaitGroup
	presenterWg.Add(1)
	go func() {
		defer presenterWg.Done()
		presenterErr = presenter.Run(presenterEvents)
	}()

	result := engine.Run(ctx, engine.Config{
		Events:     events,
		Stats:      collector,
		Baseline:   baseline,
		Modified:   modified,
		Output:     output,
		BatchSize:  opts.batchSize,
		BufferSize: opts.bufferSize,
		BWLimit:    bwLimit,
		UseIOURing: !opts.noIOURing,
		KeepGoing:  opts.keepGoing,
		DryRun:     opts.dryRun,
		Verify:     opts.verify,
	})

	if ctx.Err() != nil {
		engine.CleanupTmpFiles()
	}

	runErr := result.Err
	if opts.archivePath != "" && completed(runErr) && ctx.Err() == nil {
		if opts.dryRun {
			slog.Info("dry run: skipping archive", "archive", opts.archivePath)
		} else {
			packed, err := changeset.Pack(ctx, output, opts.archivePath, archiveOpts)
			if err != nil {
				runErr = errors.Join(runErr, fmt.Errorf("archive: %w", err))
			} else {
				events <- event.Event{
					Type:  event.ArchiveWritten,
					Path:  packed.Path,
					Count: packed.Files,
					Size:  packed.Bytes,
				}
			}
		}
	}

	stop()
	close(events)
	presenterWg.Wait()
	if presenterErr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "presenter: %v\n", presenterErr)
	}

	if opts.reportPath != "" && result.Report != nil {
		if err := writeReport(opts.reportPath, result.Report); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}

	if !opts.quiet {
		summary := presenter.Summary()
		if summary != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), summary)
		}
	}

	slog.Debug("run finished", "method", result.Method, "stats", result.Stats.String())

	if runErr != nil {
		slog.Error("compare failed", "error", runErr)
		return &exitError{code: exitCode(runErr)}
	}
	return nil
}

// teeEvents logs every event as a structured record when logging is on,
// forwarding it unchanged to the presenter.
func teeEvents(events <-chan event.Event, logEvents bool) <-chan event.Event {
	if !logEvents {
		return events
	}
	teed := make(chan event.Event, 256)
	go func() {
		for ev := range events {
			attrs := []slog.Attr{
				slog.String("type", ev.Type.String()),
				slog.String("path", ev.Path),
				slog.Int64("size", ev.Size),
			}
			if ev.Count > 0 {
				attrs = append(attrs, slog.Int("count", ev.Count))
			}
			if ev.Error != nil {
				attrs = append(attrs, slog.String("error", ev.Error.Error()))
			}
			slog.LogAttrs(context.Background(), slog.LevelDebug, "treedelta.event", attrs...)
			teed <- ev
		}
		close(teed)
	}()
	return teed
}

func writeReport(path string, report *engine.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := report.WriteJSON(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close report: %w", err)
	}
	return nil
}

// completed reports whether the walk ran to the end, possibly with
// recorded per-file failures.
func completed(err error) bool {
	return err == nil || errors.Is(err, engine.ErrFilesFailed) || errors.Is(err, engine.ErrVerifyFailed)
}

// exitCode maps a run error to the process exit status: 1 when the run
// completed with failed or mismatched files, 2 for anything fatal.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case fatal(err):
		return 2
	default:
		return 1
	}
}

// fatal reports whether a joined error carries anything besides per-file
// failures and verify mismatches.
func fatal(err error) bool {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return !errors.Is(err, engine.ErrFilesFailed) && !errors.Is(err, engine.ErrVerifyFailed)
	}
	for _, e := range joined.Unwrap() {
		if fatal(e) {
			return true
		}
	}
	return false
}

// applyConfigDefaults applies config file defaults for flags not explicitly set on the CLI.
func applyConfigDefaults(flags *pflag.FlagSet, defaults config.DefaultsConfig, opts *options) {
	if !flags.Changed("batch-size") && defaults.BatchSize != nil {
		opts.batchSize = *defaults.BatchSize
	}
	if !flags.Changed("buffer-size") && defaults.BufferSize != nil {
		opts.bufferSize = *defaults.BufferSize
	}
	if !flags.Changed("no-iouring") && defaults.IOURing != nil {
		opts.noIOURing = !*defaults.IOURing
	}
	if !flags.Changed("keep-going") && defaults.KeepGoing != nil {
		opts.keepGoing = *defaults.KeepGoing
	}
	if !flags.Changed("verify") && defaults.Verify != nil {
		opts.verify = *defaults.Verify
	}
	if !flags.Changed("archive-level") && defaults.ArchiveLevel != nil {
		opts.archiveLevel = *defaults.ArchiveLevel
	}
	if !flags.Changed("bwlimit") && defaults.BWLimit != nil {
		opts.bwLimit = *defaults.BWLimit
	}
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
