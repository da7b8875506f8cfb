package usecases

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/MyCarrier-DevOps/trailsync/internal/domain"
)

// Logger defines the logging interface required by the use cases.
// This abstracts the logger dependency to avoid coupling to a specific implementation.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields map[string]interface{})
}

// Guard runs fn as one reconciliation unit (a lifecycle event or a queue entry)
// and absorbs whatever it produces. Silent errors are logged at debug level;
// every other error and any panic is logged and reported once through notifier.
// The returned error is informational; callers at the host boundary drop it.
func Guard(
	ctx context.Context,
	log Logger,
	notifier domain.Notifier,
	event string,
	fields map[string]interface{},
	fn func() error,
) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during %s: %v", event, r)
			log.Error(ctx, "recovered from panic", err, withEvent(fields, event))
			notifier.Notify(ctx, err.Error())
		}
	}()

	err = fn()
	switch {
	case err == nil:
		return nil
	case domain.IsSilent(err):
		f := withEvent(fields, event)
		f["reason"] = err.Error()
		log.Debug(ctx, "reconciliation skipped", f)
		return nil
	default:
		log.Error(ctx, event+" failed", err, withEvent(fields, event))
		notifier.Notify(ctx, err.Error())
		return err
	}
}

func withEvent(fields map[string]interface{}, event string) map[string]interface{} {
	return lo.Assign(fields, map[string]interface{}{"event": event})
}
