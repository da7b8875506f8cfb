package usecases

import (
	"context"

	"github.com/MyCarrier-DevOps/trailsync/internal/domain"
)

// Reconciler is the error-returning form of the document lifecycle.
type Reconciler interface {
	Open(ctx context.Context, host domain.DocumentHost, path string) error
	Save(ctx context.Context, host domain.DocumentHost, path string, success bool) error
	Activate(ctx context.Context, host domain.DocumentHost, path string) error
}

// GuardedLifecycle adapts a Reconciler to domain.DocumentLifecycle. Every event
// runs inside Guard, so no failure reaches the host.
type GuardedLifecycle struct {
	reconciler Reconciler
	notifier   domain.Notifier
	logger     Logger
}

// NewGuardedLifecycle creates a GuardedLifecycle.
func NewGuardedLifecycle(reconciler Reconciler, notifier domain.Notifier, log Logger) *GuardedLifecycle {
	return &GuardedLifecycle{
		reconciler: reconciler,
		notifier:   notifier,
		logger:     log,
	}
}

// FileOpened handles the host's "file opened" notification.
func (l *GuardedLifecycle) FileOpened(ctx context.Context, host domain.DocumentHost, path string) {
	_ = Guard(ctx, l.logger, l.notifier, "open", map[string]interface{}{"path": path}, func() error {
		return l.reconciler.Open(ctx, host, path)
	})
}

// FileSaved handles the host's "file finished saving" notification.
func (l *GuardedLifecycle) FileSaved(ctx context.Context, host domain.DocumentHost, path string, success bool) {
	_ = Guard(ctx, l.logger, l.notifier, "save", map[string]interface{}{"path": path}, func() error {
		return l.reconciler.Save(ctx, host, path, success)
	})
}

// DocumentActivated handles the host's "active document changed" notification.
func (l *GuardedLifecycle) DocumentActivated(ctx context.Context, host domain.DocumentHost, path string) {
	_ = Guard(ctx, l.logger, l.notifier, "activate", map[string]interface{}{"path": path}, func() error {
		return l.reconciler.Activate(ctx, host, path)
	})
}
