package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go_batchgen/batch"
	"go_batchgen/core"
	"go_batchgen/core/validation"
	"go_batchgen/credentials"
	"go_batchgen/db"
	"go_batchgen/imagegen"
	"go_batchgen/ledger"
	"go_batchgen/metrics"
	"go_batchgen/shutdown"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// history close runs after in-flight recorder writes are drained
const historyShutdownPriority = 20

type runOptions struct {
	workers int
	delay   float64
	aspect  string
	seed    int64
}

func newRunCommand(state *cliState) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate images for every pending prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := state.app.cfg
			flags := cmd.Flags()
			if flags.Changed("workers") {
				cfg.WorkerCount = opts.workers
			}
			if flags.Changed("delay") {
				cfg.RequestDelay = time.Duration(opts.delay * float64(time.Second))
			}
			if flags.Changed("aspect") {
				cfg.AspectRatio = opts.aspect
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			var seed *int64
			if flags.Changed("seed") {
				seed = &opts.seed
			}

			code, err := runBatch(state.app, seed, cmd.OutOrStdout())
			state.exitCode = code
			return err
		},
	}

	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "number of concurrent workers (default from WORKER_COUNT)")
	cmd.Flags().Float64Var(&opts.delay, "delay", 0, "seconds between two prompts of one worker")
	cmd.Flags().StringVar(&opts.aspect, "aspect", "", "aspect ratio: square, portrait or landscape")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "fixed seed for every attempt")
	return cmd
}

// runBatch performs one batch run and maps its outcome to an exit code.
// Configuration problems are returned before any request is sent.
func runBatch(a *app, seed *int64, out io.Writer) (int, error) {
	cfg := a.cfg

	aspect, err := imagegen.ParseAspectRatio(cfg.AspectRatio)
	if err != nil {
		return core.ExitCodeError, core.ErrInvalidConfig("ASPECT_RATIO", err.Error())
	}
	if a.pool.Len() == 0 {
		return core.ExitCodeError, core.ErrNoTokens(a.store.Path())
	}

	promptLedger := ledger.New(cfg.PromptsFile)
	prompts, err := promptLedger.Load()
	if err != nil {
		return core.ExitCodeError, core.ErrLedgerUnreadable(cfg.PromptsFile, err)
	}
	if len(prompts) == 0 {
		return core.ExitCodeError, core.ErrNoPrompts(cfg.PromptsFile)
	}

	client, err := a.newClient()
	if err != nil {
		return core.ExitCodeError, core.ErrInvalidConfig("IMAGE_PROVIDER", err.Error())
	}
	sink, err := imagegen.NewFileSink(cfg.OutputDir)
	if err != nil {
		return core.ExitCodeError, err
	}

	manager := shutdown.NewManager(a.logger)
	var stats metrics.Collector = metrics.NewStore(metrics.DefaultStoreConfig())
	recorders := []batch.Recorder{stats}

	if cfg.HistoryDBPath != "" {
		history, err := db.OpenHistory(cfg.HistoryDBPath, a.logger)
		if err != nil {
			a.logger.Warn("run history disabled", zap.String("path", cfg.HistoryDBPath), zap.Error(err))
		} else {
			recorders = append(recorders, history.Recorder(cfg.Provider))
			manager.Register("history", historyShutdownPriority, func(ctx context.Context) error {
				return history.Close()
			})
		}
	}

	orchestrator, err := batch.NewOrchestrator(batch.Dependencies{
		Pool:     a.pool,
		Client:   client,
		Sink:     sink,
		Ledger:   promptLedger,
		Recorder: batch.NewMultiRecorder(recorders...),
		Logger:   a.logger,
	}, batch.WorkerConfig{
		Delay:            cfg.RequestDelay,
		BreakerThreshold: cfg.BreakerThreshold,
		AspectRatio:      aspect,
		Seed:             seed,
	})
	if err != nil {
		manager.Shutdown()
		return core.ExitCodeError, err
	}

	manager.Start()
	summary, err := orchestrator.Run(manager.Context(), prompts, cfg.WorkerCount)
	interrupted := manager.Signalled()
	if shutdownErr := manager.Shutdown(); shutdownErr != nil {
		a.logger.Warn("cleanup incomplete", zap.Error(shutdownErr))
	}
	if err != nil {
		return core.ExitCodeError, err
	}

	printSummary(out, summary, interrupted)
	printTokenStats(out, stats.TokenSnapshot())

	switch {
	case interrupted:
		return core.ExitCodeSIGINT, nil
	case summary.FailedCount > 0:
		return core.ExitCodePartialFailure, nil
	default:
		return core.ExitCodeSuccess, nil
	}
}

func newCheckCommand(state *cliState) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate settings, prompts and output directory before a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := state.app
			target := validation.Target{
				SettingsPath: a.store.Path(),
				TokenCount:   a.pool.Len(),
				PromptsFile:  a.cfg.PromptsFile,
				OutputDir:    a.cfg.OutputDir,
			}
			if !offline {
				target.Endpoint = a.endpoint()
			}

			suite := validation.NewValidationSuite().
				WithOutput(cmd.OutOrStdout()).
				WithConnectivityChecker(validation.NewConnectivityChecker(core.GetHTTPClient(a.cfg, 0)))
			result := suite.Validate(cmd.Context(), target)
			a.logger.Debug(result.Summary())
			if !result.Success {
				state.exitCode = core.ExitCodeError
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "skip the endpoint reachability probe")
	return cmd
}

func newTokensCommand(state *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Manage the credential pool",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List tokens in rotation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printTokens(cmd.OutOrStdout(), state.app.pool.Tokens())
			return nil
		},
	}

	add := &cobra.Command{
		Use:   "add <name> <token>",
		Short: "Append a token to the rotation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool := state.app.pool
			token := credentials.NewToken(args[0], args[1])
			if err := pool.Add(token); err != nil {
				switch {
				case errors.Is(err, credentials.ErrDuplicateToken):
					return core.ErrDuplicateToken(token.Name)
				case errors.Is(err, credentials.ErrEmptySecret):
					return core.ErrInvalidConfig("token", "secret cannot be empty")
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%d token(s) in rotation)\n", token.Name, pool.Len())
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove <index>",
		Short: "Remove a token by its position in `tokens list`",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return core.ErrInvalidConfig("index", fmt.Sprintf("%q is not a number", args[0]))
			}
			removed, err := state.app.pool.Remove(n - 1)
			if err != nil {
				return core.ErrInvalidConfig("index", fmt.Sprintf("no token at position %d", n))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s (%d token(s) left)\n", removed.Name, state.app.pool.Len())
			return nil
		},
	}

	cmd.AddCommand(list, add, remove)
	return cmd
}

func newPromptsCommand(state *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Inspect or extend the prompt ledger",
	}

	count := &cobra.Command{
		Use:   "count",
		Short: "Print the number of pending prompts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := state.app.cfg.PromptsFile
			n, err := ledger.New(path).Count()
			if err != nil {
				return core.ErrLedgerUnreadable(path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d pending prompt(s) in %s\n", n, path)
			return nil
		},
	}

	add := &cobra.Command{
		Use:   "add <prompt>...",
		Short: "Append prompts to the ledger",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := state.app.cfg.PromptsFile
			if err := ledger.New(path).Append(args...); err != nil {
				return core.ErrLedgerUnreadable(path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Appended %d prompt(s) to %s\n", len(args), path)
			return nil
		},
	}

	cmd.AddCommand(count, add)
	return cmd
}

func newHistoryCommand(state *cliState) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent batch runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(state.app, func(database *db.Database) error {
				runs, err := db.NewRepository(database, nil).RecentRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				printRuns(cmd.OutOrStdout(), runs)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to show")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show per-prompt results of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(state.app, func(database *db.Database) error {
				repo := db.NewRepository(database, nil)
				results, err := repo.PromptResultsForRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				attempts, err := repo.AttemptsForRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printRunDetail(cmd.OutOrStdout(), args[0], results, attempts)
				return nil
			})
		},
	}

	var days int
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete history older than --days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(state.app, func(database *db.Database) error {
				result, err := database.Prune(cmd.Context(), days)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d run(s), %d attempt(s), %d prompt result(s) in %v\n",
					result.RunsDeleted, result.AttemptsDeleted, result.PromptResultsDeleted,
					result.Duration.Round(time.Millisecond))
				return nil
			})
		},
	}
	prune.Flags().IntVar(&days, "days", 30, "retention in days; 0 deletes everything")

	cmd.AddCommand(show, prune)
	return cmd
}

func withHistory(a *app, fn func(*db.Database) error) error {
	if a.cfg.HistoryDBPath == "" {
		return core.ErrInvalidConfig("HISTORY_DB_PATH", "run history is disabled")
	}
	database, err := db.Open(a.cfg.HistoryDBPath)
	if err != nil {
		return err
	}
	defer database.Close()
	return fn(database)
}

// printError renders err for a terminal. ConfigErrors get their suggested
// action on a separate line.
func printError(w io.Writer, err error) {
	red := color.New(color.FgRed, color.Bold)
	if configErr, ok := core.IsConfigError(err); ok {
		red.Fprintf(w, "Error: ")
		fmt.Fprintln(w, configErr.Message)
		if configErr.Action != "" {
			color.New(color.FgYellow).Fprintf(w, "  → %s\n", strings.TrimSpace(configErr.Action))
		}
		return
	}
	red.Fprintf(w, "Error: ")
	fmt.Fprintln(w, err)
}
