package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/repop/repop/pkg/batch"
	"github.com/repop/repop/pkg/engine"
	"github.com/repop/repop/pkg/report"
	"github.com/repop/repop/pkg/solver"
)

const watchDebounce = 300 * time.Millisecond

func newWatchCommand(a *app) *cobra.Command {
	var (
		objective string
		precision int
	)

	cmd := &cobra.Command{
		Use:   "watch FILE",
		Short: "Re-solve a plant document whenever it changes",
		Long: `Solve FILE, then solve it again every time it is saved.

Lint policies given with --policy are reloaded when they change. With
--metrics-listen the Prometheus metrics are served over HTTP.`,
		Example: `  # Edit plant.yaml in another window
  repop watch plant.yaml

  # Expose metrics while editing
  repop watch --metrics-listen :9464 plant.cue`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			prec, err := precisionOption(cmd, precision)
			if err != nil {
				return err
			}
			lint, err := a.lintEngine(ctx)
			if err != nil {
				return err
			}
			if len(a.policyPaths) > 0 {
				if err := lint.WatchPolicies(ctx, a.policyPaths); err != nil {
					return err
				}
			}
			if err := a.tel.StartMetricsServer(ctx); err != nil {
				return err
			}

			runner := batch.NewRunner(engine.NewRegistry(), lint, solver.NewSimplex(), batch.Options{
				Objective: objective,
				Precision: prec,
			})
			solve := func() {
				solveAndReport(ctx, cmd.OutOrStdout(), runner, path, report.Options{Precision: prec})
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("failed to create watcher: %w", err)
			}
			defer watcher.Close()

			// Editors replace files on save, so watch the directory.
			if err := watcher.Add(filepath.Dir(path)); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}

			solve()
			log.Info().Str("path", path).Msg("Watching for changes")
			return watchLoop(ctx, watcher, path, solve)
		},
	}

	cmd.Flags().StringVar(&objective, "objective", "", "objective name (default: document objective, then max_profit)")
	cmd.Flags().IntVar(&precision, "precision", 0, "decimals kept on solved quantities and shown in reports; 0 rounds to whole units")
	cmd.Flags().StringVar(&a.metricsListen, "metrics-listen", "", "serve Prometheus metrics on this address")

	return cmd
}

// watchLoop calls fn once per burst of changes to path until ctx is done.
func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path string, fn func()) error {
	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			fn()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Watcher error")
		}
	}
}

func solveAndReport(ctx context.Context, w io.Writer, runner *batch.Runner, path string, opts report.Options) {
	res := runner.RunOne(ctx, path)
	fmt.Fprintf(w, "\n# %s (%s)\n", filepath.Base(path), time.Now().Format(time.TimeOnly))
	if err := writeReports(w, []*batch.Result{res}, opts); err != nil {
		log.Error().Err(err).Msg("Failed to print report")
	}
}
