package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/sqltree/pkg/observability"
	"github.com/Sumatoshi-tech/sqltree/pkg/playground"
	"github.com/Sumatoshi-tech/sqltree/pkg/projector"
	"github.com/Sumatoshi-tech/sqltree/pkg/syntax/treesitter"
	"github.com/Sumatoshi-tech/sqltree/pkg/textutil"
	"github.com/Sumatoshi-tech/sqltree/pkg/view"
)

// clearScreen moves the cursor home and clears the terminal.
const clearScreen = "\x1b[H\x1b[2J"

// WatchOptions holds the watch command flags.
type WatchOptions struct {
	Grammar    string
	Debounce   time.Duration
	AllNodes   bool
	MaxSnippet int
	Plain      bool
}

// NewWatchCommand creates the live watch command.
func NewWatchCommand() *cobra.Command {
	var opts WatchOptions

	cmd := &cobra.Command{
		Use:   "watch FILE",
		Short: "Re-render the syntax tree whenever a SQL file changes",
		Long: `Watch a SQL file and redraw its syntax tree after every save.

Saves are debounced like keystrokes in the playground, so a burst of writes
produces a single reparse.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, observability.ModeCLI)
			if err != nil {
				return err
			}
			defer e.close()

			content, path, err := safeReadFile(args[0])
			if err != nil {
				return err
			}

			if opts.Grammar == "" {
				opts.Grammar = treesitter.DetectGrammar(path, content)
			}

			if opts.Grammar == "" {
				opts.Grammar = e.cfg.Grammar
			}

			if opts.Debounce <= 0 {
				opts.Debounce = e.cfg.Debounce
			}

			if opts.MaxSnippet <= 0 {
				opts.MaxSnippet = e.cfg.SnippetMax
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sess := e.session(treesitter.NewEngine(), opts.Grammar)
			defer sess.Close()

			pg := playground.New(sess,
				playground.WithInterval(opts.Debounce),
				playground.WithLogger(e.providers.Logger),
				playground.WithMetrics(e.providers.Reparse),
				playground.WithProjection(
					projector.WithMaxSnippet(opts.MaxSnippet),
					projector.WithAnonymous(opts.AllNodes),
				),
			)
			defer pg.Close()

			return runWatch(ctx, pg, path, opts, cmd.OutOrStdout(), e.providers.Logger)
		},
	}

	cmd.Flags().StringVarP(&opts.Grammar, "grammar", "g", "", "grammar locator (default: detected or configured)")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 0, "quiet period before a reparse (default: configured)")
	cmd.Flags().BoolVarP(&opts.AllNodes, "all-nodes", "a", false, "include anonymous nodes (keywords, punctuation)")
	cmd.Flags().IntVar(&opts.MaxSnippet, "max-snippet", 0, "snippet length before truncation (default: configured)")
	cmd.Flags().BoolVar(&opts.Plain, "plain", false, "disable colors and screen clearing")

	return cmd
}

// runWatch feeds every change of path into pg and redraws each new screen
// until ctx is canceled. The directory is watched rather than the file so
// editors that save by rename keep working.
func runWatch(
	ctx context.Context, pg *playground.Playground, path string, opts WatchOptions, out io.Writer, logger *slog.Logger,
) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	err = watcher.Add(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	var mu sync.Mutex

	unsubscribe := pg.Subscribe(func(screen view.Screen) {
		mu.Lock()
		defer mu.Unlock()

		if !opts.Plain {
			_, _ = io.WriteString(out, clearScreen) //nolint:errcheck // best-effort terminal control
		}

		if err := view.WriteText(out, screen, view.TextOptions{Plain: opts.Plain}); err != nil {
			logger.WarnContext(ctx, "render failed", "error", err)
		}
	})
	defer unsubscribe()

	pg.Start(ctx)

	if err := reload(pg, path); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(event.Name) != path || (!event.Has(fsnotify.Write) && !event.Has(fsnotify.Create)) {
				continue
			}

			if err := reload(pg, path); err != nil {
				logger.WarnContext(ctx, "reload failed", "path", path, "error", err)
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			if errors.Is(werr, fsnotify.ErrEventOverflow) {
				_ = reload(pg, path) //nolint:errcheck // next event retries

				continue
			}

			logger.WarnContext(ctx, "watch error", "error", werr)
		}
	}
}

func reload(pg *playground.Playground, path string) error {
	content, _, err := safeReadFile(path)
	if err != nil {
		return err
	}

	if err := textutil.CheckText(content); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	pg.SetText(string(content))

	return nil
}
