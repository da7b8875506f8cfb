// Package main is the entry point for the trailsync CLI application.
// trailsync keeps files in Git working trees synchronized with a shared remote,
// pulling newer versions on open and committing and pushing on save.
package main

import (
	"io"
	"os"

	"github.com/MyCarrier-DevOps/goLibMyCarrier/logger"

	"github.com/MyCarrier-DevOps/trailsync/cmd"
	"github.com/MyCarrier-DevOps/trailsync/internal/adapters/git"
	"github.com/MyCarrier-DevOps/trailsync/internal/adapters/gitcli"
	"github.com/MyCarrier-DevOps/trailsync/internal/adapters/host"
	"github.com/MyCarrier-DevOps/trailsync/internal/adapters/lock"
	logadapter "github.com/MyCarrier-DevOps/trailsync/internal/adapters/logger"
	"github.com/MyCarrier-DevOps/trailsync/internal/adapters/notify"
	"github.com/MyCarrier-DevOps/trailsync/internal/adapters/output"
	"github.com/MyCarrier-DevOps/trailsync/internal/domain"
	"github.com/MyCarrier-DevOps/trailsync/internal/infrastructure/config"
	"github.com/MyCarrier-DevOps/trailsync/internal/usecases"
)

func main() {
	// One locker per process so every engine shares the in-process semaphores.
	locker := lock.NewRepoLocker()

	// Wire up production dependencies
	deps := &cmd.Dependencies{
		ConfigLoader: config.Load,

		LoggerFactory: func(cfg *config.Config) (cmd.Logger, error) {
			sugar, err := logadapter.NewAppLogger(logOptions(cfg))
			if err != nil {
				return nil, err
			}
			return logadapter.NewZapAdapter(logger.NewZapLogger(sugar)), nil
		},

		NotifierFactory: func(log cmd.Logger) cmd.Notifier {
			return notify.NewWriterNotifier(log)
		},

		EngineFactory: func(
			cfg *config.Config,
			queue usecases.Enqueuer,
			notifier domain.Notifier,
			log cmd.Logger,
		) cmd.Engine {
			runner := gitcli.NewRunner(log,
				gitcli.WithBinary(cfg.GitBinary),
				gitcli.WithTimeout(cfg.CommandTimeout),
			)
			return usecases.NewSyncEngine(
				git.NewOpener(log),
				runner,
				locker,
				queue,
				notifier,
				log,
				usecases.Options{
					Remote:         cfg.Remote,
					CommitTemplate: cfg.CommitTemplate,
				},
			)
		},

		WatcherFactory: func(
			cfg *config.Config,
			lifecycle domain.DocumentLifecycle,
			log cmd.Logger,
		) (cmd.Watcher, error) {
			return host.NewWatchHost(lifecycle, log, host.WatchOptions{
				Debounce: cfg.Debounce,
				Status:   os.Stderr,
			})
		},

		InstallerFactory: func(log cmd.Logger) cmd.Installer {
			return git.NewIgnoreInstaller(log)
		},

		OutputWriterFactory: func(out io.Writer) cmd.OutputWriter {
			return output.NewWriterWithOutput(out)
		},

		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}

	cmd.SetDefaultDependencies(deps)
	cmd.Execute()
}

// logOptions maps configuration onto the logger's options.
func logOptions(cfg *config.Config) logadapter.Options {
	return logadapter.Options{
		Level:      cfg.LogLevel,
		AppName:    cfg.LogAppName,
		Console:    os.Stderr,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	}
}
