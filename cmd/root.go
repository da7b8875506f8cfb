// Package cmd provides the CLI commands for trailsync.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MyCarrier-DevOps/trailsync/internal/adapters/host"
	"github.com/MyCarrier-DevOps/trailsync/internal/domain"
	"github.com/MyCarrier-DevOps/trailsync/internal/infrastructure/config"
	"github.com/MyCarrier-DevOps/trailsync/internal/usecases"
)

// Logger defines the logging interface used by the commands.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields map[string]interface{})
}

// Engine is the reconciliation surface the commands drive.
type Engine interface {
	usecases.Reconciler
	usecases.RepositoryPusher
	Indicator(ctx context.Context, dir string) (*domain.BranchIndicator, error)
}

// Notifier reports failures to the user and flushes on Close.
type Notifier interface {
	domain.Notifier
	Close() error
}

// Watcher is a long-running document host.
type Watcher interface {
	domain.DocumentHost
	Run(ctx context.Context, paths []string) error
}

// Installer maintains the editor lock-file patterns in a repository's .gitignore.
type Installer interface {
	Install(ctx context.Context, dir string) (*domain.IgnoreUpdate, error)
	Uninstall(ctx context.Context, dir string) (*domain.IgnoreUpdate, error)
}

// OutputWriter writes command results.
type OutputWriter interface {
	WriteIndicator(ind *domain.BranchIndicator) error
	WriteLine(text string) error
}

// Dependencies holds all injectable dependencies for the commands.
// This enables testing by allowing mock implementations to be injected.
type Dependencies struct {
	// ConfigLoader loads application configuration.
	ConfigLoader func() (*config.Config, error)

	// LoggerFactory creates a logger for the loaded configuration.
	LoggerFactory func(cfg *config.Config) (Logger, error)

	// NotifierFactory creates the user-facing failure notifier.
	NotifierFactory func(log Logger) Notifier

	// EngineFactory creates the sync engine, which queues pushes on queue.
	EngineFactory func(cfg *config.Config, queue usecases.Enqueuer, notifier domain.Notifier, log Logger) Engine

	// WatcherFactory creates the filesystem-watching host that feeds lifecycle.
	WatcherFactory func(cfg *config.Config, lifecycle domain.DocumentLifecycle, log Logger) (Watcher, error)

	// InstallerFactory creates the .gitignore installer.
	InstallerFactory func(log Logger) Installer

	// OutputWriterFactory creates an OutputWriter writing to out.
	OutputWriterFactory func(out io.Writer) OutputWriter

	// Stdout is the writer for command results; nil selects os.Stdout.
	Stdout io.Writer

	// Stderr is the writer for status text and warnings.
	Stderr io.Writer
}

// defaultDeps holds the production dependencies.
// This is set by the production wiring in main or via SetDefaultDependencies.
var defaultDeps *Dependencies

// SetDefaultDependencies sets the default dependencies for production use.
// This should be called from main() before Execute().
func SetDefaultDependencies(deps *Dependencies) {
	defaultDeps = deps
}

// NewRootCmd creates the root command for trailsync.
func NewRootCmd() *cobra.Command {
	return NewRootCmdWithDeps(defaultDeps)
}

// NewRootCmdWithDeps creates the root command with explicit dependencies.
// This is the primary constructor that enables testing via dependency injection.
func NewRootCmdWithDeps(deps *Dependencies) *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "trailsync",
		Short: "Keep files in Git working trees synchronized with their remote",
		Long: `trailsync keeps tracked files synchronized with a shared Git remote.

Opening a file fetches the remote and fast-forwards the working tree when the
remote has newer commits and the file has no local edits. Saving a file commits
it and queues its repository for a background push.

Examples:
  # Watch files and synchronize them on every save
  trailsync watch model.xlsx forecast.xlsx

  # Reconcile a file before opening it elsewhere
  trailsync open model.xlsx

  # Commit a file that was just written, and push it
  trailsync save model.xlsx

  # Show the branch indicator for the current repository
  trailsync status

  # Keep editor lock files out of the current repository
  trailsync install`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable verbose/debug logging")

	rootCmd.AddCommand(
		newWatchCmd(deps, &verbose),
		newOpenCmd(deps, &verbose),
		newSaveCmd(deps, &verbose),
		newActivateCmd(deps, &verbose),
		newStatusCmd(deps, &verbose),
		newPushCmd(deps, &verbose),
		newInstallCmd(deps, &verbose),
		newUninstallCmd(deps, &verbose),
	)

	return rootCmd
}

func newWatchCmd(deps *Dependencies, verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <file>...",
		Short: "Watch files and synchronize them on open and save",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, deps, *verbose, func(ctx context.Context, rt *session) error {
				return runWatch(ctx, rt, args)
			})
		},
	}
}

func newOpenCmd(deps *Dependencies, verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "open <file>",
		Short: "Fetch and fast-forward the repository of a file about to be opened",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, deps, *verbose, func(ctx context.Context, rt *session) error {
				h := host.NewConsoleHostWithOutput(rt.stderr, rt.log, args[0])
				return rt.quiet(ctx, "open", rt.engine.Open(ctx, h, args[0]))
			})
		},
	}
}

func newSaveCmd(deps *Dependencies, verbose *bool) *cobra.Command {
	var noPush bool

	saveCmd := &cobra.Command{
		Use:   "save <file>",
		Short: "Commit a saved file and push its repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, deps, *verbose, func(ctx context.Context, rt *session) error {
				h := host.NewConsoleHostWithOutput(rt.stderr, rt.log, args[0])
				if err := rt.quiet(ctx, "save", rt.engine.Save(ctx, h, args[0], true)); err != nil {
					return err
				}
				if noPush {
					return nil
				}

				consumer := usecases.NewConsumer(rt.queue, rt.engine, h, rt.notifier, rt.log, rt.cfg.PollInterval)
				n := consumer.Drain(ctx)
				rt.log.Debug(ctx, "drained push queue", map[string]interface{}{"processed": n})
				return nil
			})
		},
	}

	saveCmd.Flags().BoolVar(&noPush, "no-push", false,
		"Commit only; leave the push to a later save or push command")

	return saveCmd
}

func newActivateCmd(deps *Dependencies, verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "activate <file>",
		Short: "Print the branch indicator for a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, deps, *verbose, func(ctx context.Context, rt *session) error {
				h := host.NewConsoleHostWithOutput(rt.stderr, rt.log, args[0])
				if err := rt.quiet(ctx, "activate", rt.engine.Activate(ctx, h, args[0])); err != nil {
					return err
				}
				return rt.writer.WriteLine(h.Caption())
			})
		},
	}
}

func newStatusCmd(deps *Dependencies, verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "status [path]",
		Short: "Print the branch indicator of a repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, deps, *verbose, func(ctx context.Context, rt *session) error {
				dir := repositoryDir(args)
				ind, err := rt.engine.Indicator(ctx, dir)
				if err != nil {
					rt.log.Error(ctx, "failed to read branch indicator", err, map[string]interface{}{"path": dir})
					if errors.Is(err, domain.ErrInvalidRepository) {
						return fmt.Errorf("not a git repository: %s", dir)
					}
					return err
				}
				return rt.writer.WriteIndicator(ind)
			})
		},
	}
}

func newPushCmd(deps *Dependencies, verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "push [path]",
		Short: "Run one push cycle for a repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, deps, *verbose, func(ctx context.Context, rt *session) error {
				dir := repositoryDir(args)
				h := host.NewConsoleHostWithOutput(rt.stderr, rt.log)
				err := rt.engine.PushRepository(ctx, h, domain.NewRepositoryHandle(dir))
				if err != nil && errors.Is(err, domain.ErrNoUpstream) {
					return fmt.Errorf("nothing to push to: %w", err)
				}
				return err
			})
		},
	}
}

func newInstallCmd(deps *Dependencies, verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "install [path]",
		Short: "Add editor lock-file patterns to a repository's .gitignore",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, deps, *verbose, func(ctx context.Context, rt *session) error {
				dir := repositoryDir(args)
				update, err := rt.deps.InstallerFactory(rt.log).Install(ctx, dir)
				if err != nil {
					return installError(ctx, rt, "install", dir, err)
				}
				if len(update.Patterns) == 0 {
					return rt.writer.WriteLine(update.Path + " is up to date")
				}
				return rt.writer.WriteLine(fmt.Sprintf("added %d patterns to %s", len(update.Patterns), update.Path))
			})
		},
	}
}

func newUninstallCmd(deps *Dependencies, verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall [path]",
		Short: "Remove editor lock-file patterns from a repository's .gitignore",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, deps, *verbose, func(ctx context.Context, rt *session) error {
				dir := repositoryDir(args)
				update, err := rt.deps.InstallerFactory(rt.log).Uninstall(ctx, dir)
				if err != nil {
					return installError(ctx, rt, "uninstall", dir, err)
				}
				return rt.writer.WriteLine(fmt.Sprintf("removed %d patterns from %s", len(update.Patterns), update.Path))
			})
		},
	}
}

func installError(ctx context.Context, rt *session, event, dir string, err error) error {
	rt.log.Error(ctx, event+" failed", err, map[string]interface{}{"path": dir})
	if errors.Is(err, domain.ErrInvalidRepository) {
		return fmt.Errorf("not a git repository: %s", dir)
	}
	return err
}

// runWatch runs the watcher and the push consumer until interrupted.
func runWatch(ctx context.Context, rt *session, paths []string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	lifecycle := usecases.NewGuardedLifecycle(rt.engine, rt.notifier, rt.log)
	watcher, err := rt.deps.WatcherFactory(rt.cfg, lifecycle, rt.log)
	if err != nil {
		rt.log.Error(ctx, "failed to start watcher", err, nil)
		return err
	}

	consumer := usecases.NewConsumer(rt.queue, rt.engine, watcher, rt.notifier, rt.log, rt.cfg.PollInterval)

	// The consumer stops with the watcher, whether or not the watcher failed.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return watcher.Run(gctx, paths)
	})
	g.Go(func() error {
		if err := consumer.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	err = g.Wait()
	rt.log.Info(ctx, "watch stopped", map[string]interface{}{"pending_pushes": rt.queue.Len()})
	return err
}

// session is the per-invocation wiring shared by all commands.
type session struct {
	deps     *Dependencies
	cfg      *config.Config
	log      Logger
	notifier Notifier
	queue    *usecases.RepoPushQueue
	engine   Engine
	writer   OutputWriter
	stderr   io.Writer
}

// quiet turns errors that mean "nothing to reconcile" into an info log line.
func (rt *session) quiet(ctx context.Context, event string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsSilent(err) {
		rt.log.Info(ctx, "nothing to reconcile", map[string]interface{}{
			"event":  event,
			"reason": err.Error(),
		})
		return nil
	}
	rt.log.Error(ctx, event+" failed", err, nil)
	return err
}

// withSession loads configuration, builds the dependencies, runs fn, and then
// flushes notifications and logs.
func withSession(cmd *cobra.Command, deps *Dependencies, verbose bool, fn func(context.Context, *session) error) error {
	if deps == nil {
		return errors.New("dependencies not configured")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	stdout := deps.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := deps.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	cfg, err := deps.ConfigLoader()
	if err != nil {
		writeWarningf(stderr, "configuration error: %v\n", err)
		return fmt.Errorf("configuration error: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	log, err := deps.LoggerFactory(cfg)
	if err != nil {
		return fmt.Errorf("logger error: %w", err)
	}
	if syncer, ok := log.(interface{ Sync() error }); ok {
		defer func() {
			// Best-effort: stderr may not support fsync.
			_ = syncer.Sync()
		}()
	}

	log.Info(ctx, "starting trailsync", map[string]interface{}{
		"command": cmd.Name(),
		"remote":  cfg.Remote,
		"verbose": verbose,
	})

	notifier := deps.NotifierFactory(log)
	defer func() {
		if closeErr := notifier.Close(); closeErr != nil {
			log.Warn(ctx, "failed to flush notifications", map[string]interface{}{
				"error": closeErr.Error(),
			})
		}
	}()

	queue := usecases.NewRepoPushQueue(cfg.QueueCapacity)

	rt := &session{
		deps:     deps,
		cfg:      cfg,
		log:      log,
		notifier: notifier,
		queue:    queue,
		engine:   deps.EngineFactory(cfg, queue, notifier, log),
		writer:   deps.OutputWriterFactory(stdout),
		stderr:   stderr,
	}
	return fn(ctx, rt)
}

// repositoryDir returns the directory named by args, defaulting to the
// current directory. A file argument selects its parent directory.
func repositoryDir(args []string) string {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return filepath.Dir(path)
	}
	return path
}

// Execute runs the root command.
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// writeWarningf writes a warning message to the given writer.
// This is a best-effort operation; errors are intentionally ignored
// because there is no recovery action if stderr writes fail.
func writeWarningf(w io.Writer, format string, args ...any) {
	_, err := fmt.Fprintf(w, format, args...)
	if err != nil {
		// Intentionally ignored: no recovery action for failed stderr writes
		return
	}
}
