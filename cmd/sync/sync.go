package sync

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/buger/goterm"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hmaster20/winsync/cmd/util"
	"github.com/hmaster20/winsync/pkg/config"
	"github.com/hmaster20/winsync/pkg/engine"
	"github.com/hmaster20/winsync/pkg/errors"
	"github.com/hmaster20/winsync/pkg/executor"
	"github.com/hmaster20/winsync/pkg/plan"
	"github.com/hmaster20/winsync/pkg/retry"
)

// Exit statuses. Zero means every action succeeded.
const (
	// ExitFatal means the sync never ran: bad flags, unreadable config, or a
	// missing source tree.
	ExitFatal = 1

	// ExitLocked means the sync finished, but some source files were held
	// open by another process and were skipped.
	ExitLocked = 2

	// ExitPartial means the sync finished, but some actions failed even
	// after retries.
	ExitPartial = 3
)

type syncCmd struct {
	mode          string
	dryRun        bool
	threads       int
	excludes      []string
	verify        bool
	retries       uint
	retryDelay    time.Duration
	backoffFactor float64
	tolerance     time.Duration
	trashDir      string
	watch         bool
	pollInterval  time.Duration
	logFile       string
	profileName   string
	configPath    string
}

// New creates a new `sync` command.
func New() *cobra.Command {
	var cmd syncCmd
	cobraCmd := &cobra.Command{
		Use:   "sync [source] [dest]",
		Short: "Copy changed files from a source tree to a destination tree",
		Long: `Walk the source and destination trees, work out which files differ, and
copy the changed ones over. With --mode=mirror, files that no longer exist in
the source are also deleted from the destination.

The source and destination can be given as arguments, or come from a named
profile in the winsync config file via --profile.`,
		Args: cobra.MaximumNArgs(2),
		Run: func(cobraCmd *cobra.Command, args []string) {
			cmd.run(cobraCmd, args)
		},
	}

	flags := cobraCmd.Flags()
	flags.StringVar(&cmd.mode, "mode", "update",
		`Sync mode: "update" only copies, "mirror" also deletes.`)
	flags.BoolVar(&cmd.dryRun, "dry-run", false,
		"Print what would be done without changing anything.")
	flags.IntVar(&cmd.threads, "threads", 1,
		"Number of files to copy in parallel.")
	flags.StringSliceVar(&cmd.excludes, "exclude", nil,
		"Glob patterns for paths to leave alone on both sides. Repeatable.")
	flags.BoolVar(&cmd.verify, "verify", false,
		"Re-read each copied file and compare digests before committing it.")
	flags.UintVar(&cmd.retries, "retries", 3,
		"Attempts per action before recording it as failed.")
	flags.DurationVar(&cmd.retryDelay, "retry-delay", time.Second,
		"Delay before the first retry.")
	flags.Float64Var(&cmd.backoffFactor, "backoff-factor", 2,
		"Multiplier applied to the retry delay after each attempt.")
	flags.DurationVar(&cmd.tolerance, "tolerance", plan.DefaultModTimeTolerance,
		"Modification time difference below which a file counts as unchanged.")
	flags.StringVar(&cmd.trashDir, "trash-dir", "",
		"Move deleted files here instead of removing them.")
	flags.BoolVar(&cmd.watch, "watch", false,
		"Keep running and re-sync whenever the source tree changes.")
	flags.DurationVar(&cmd.pollInterval, "poll-interval", engine.DefaultPollInterval,
		"How often --watch re-syncs when file notifications are unavailable.")
	flags.StringVar(&cmd.logFile, "log-file", "",
		"Append logs to this rotating file instead of stderr.")
	flags.StringVar(&cmd.profileName, "profile", "",
		"Name of a profile in the winsync config file to read options from.")
	flags.StringVar(&cmd.configPath, "config", "",
		"Path to the winsync config file. Defaults to ~/.winsync.yaml.")
	return cobraCmd
}

func (cmd *syncCmd) run(cobraCmd *cobra.Command, args []string) {
	if cmd.logFile != "" {
		util.SetupFileLogging(cmd.logFile)
	}

	opts, err := cmd.buildOptions(cobraCmd, args)
	if err != nil {
		util.HandleFatalError(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		defer util.HandlePanic()
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
		<-sigs
		log.Info("Interrupted. Finishing in-flight copies before exiting.")
		cancel()
	}()

	if cmd.watch {
		if err := engine.Watch(ctx, opts, cmd.pollInterval); err != nil {
			util.HandleFatalError(err)
		}
		return
	}

	res, err := engine.Run(ctx, opts)
	if err != nil {
		util.HandleFatalError(err)
	}

	outcome := engine.Classify(res)
	printOutcome(outcome, res, cmd.dryRun)
	switch outcome {
	case engine.OutcomeLocked:
		os.Exit(ExitLocked)
	case engine.OutcomePartialFailure:
		os.Exit(ExitPartial)
	}
}

// buildOptions assembles the engine options from the profile (if given) and
// the command line. Flags the user set explicitly win over profile values.
func (cmd *syncCmd) buildOptions(cobraCmd *cobra.Command, args []string) (engine.Options, error) {
	retryPolicy := retry.Policy{
		MaxAttempts:   cmd.retries,
		InitialDelay:  cmd.retryDelay,
		BackoffFactor: cmd.backoffFactor,
	}

	opts := engine.Options{
		Mode:             plan.Mode(cmd.mode),
		DryRun:           cmd.dryRun,
		Concurrency:      cmd.threads,
		ExcludePatterns:  cmd.excludes,
		Retry:            retryPolicy,
		Verify:           cmd.verify,
		ModTimeTolerance: cmd.tolerance,
	}
	trashDir := cmd.trashDir

	if cmd.profileName != "" {
		cfg, err := config.Parse(cmd.configPath)
		if err != nil {
			return engine.Options{}, err
		}
		profile, ok := cfg.Lookup(cmd.profileName)
		if !ok {
			return engine.Options{}, errors.NewFriendlyError(
				"No profile named %q in the winsync config file.",
				cmd.profileName)
		}

		opts.Source = profile.Source
		opts.Dest = profile.Dest

		changed := cobraCmd.Flags().Changed
		if !changed("mode") {
			opts.Mode = plan.Mode(profile.Mode)
		}
		if !changed("threads") && profile.Threads != 0 {
			opts.Concurrency = profile.Threads
		}
		if !changed("exclude") {
			opts.ExcludePatterns = profile.Exclude
		}
		if !changed("verify") {
			opts.Verify = profile.Verify
		}
		if !changed("retries") && !changed("retry-delay") && !changed("backoff-factor") {
			opts.Retry = profile.RetryPolicy()
		}
		if !changed("tolerance") {
			opts.ModTimeTolerance = profile.ModTimeTolerance()
		}
		if !changed("trash-dir") {
			trashDir = profile.TrashDir
		}
	}

	switch len(args) {
	case 2:
		opts.Source, opts.Dest = args[0], args[1]
	case 1:
		return engine.Options{}, errors.NewFriendlyError(
			"Expected both a source and a destination, but only got %q.",
			args[0])
	case 0:
		if cmd.profileName == "" {
			return engine.Options{}, errors.NewFriendlyError(
				"Expected a source and a destination.\n" +
					"Pass them as arguments, or select a profile with --profile.")
		}
	}

	if _, err := plan.ParseMode(string(opts.Mode)); err != nil {
		return engine.Options{}, err
	}

	if trashDir != "" {
		opts.Hooks.Delete = executor.NewTrashDelete(trashDir)
	}

	if !cmd.watch && !cmd.dryRun {
		opts.Progress = printProgress
	}
	return opts, nil
}

func printProgress(completed, total int) {
	if total == 0 {
		return
	}
	fmt.Printf("\rCopied %d of %d", completed, total)
	if completed == total {
		fmt.Println()
	}
}

func printOutcome(outcome engine.Outcome, res *executor.Result, dryRun bool) {
	if dryRun {
		fmt.Println(goterm.Color("Dry run complete. Nothing was changed.", goterm.GREEN))
		return
	}

	switch outcome {
	case engine.OutcomeClean:
		fmt.Println(goterm.Color(
			fmt.Sprintf("Sync complete. %d items updated.", res.Succeeded),
			goterm.GREEN))
	case engine.OutcomeLocked:
		fmt.Println(goterm.Color(
			fmt.Sprintf("Sync finished, but %d locked files were skipped.",
				len(res.Locked)),
			goterm.YELLOW))
	case engine.OutcomePartialFailure:
		fmt.Println(goterm.Color(
			fmt.Sprintf("Sync finished, but %d items failed.", len(res.Failed)),
			goterm.RED))
	}
}
