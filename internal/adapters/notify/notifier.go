// Package notify surfaces reconciliation failures to the user.
package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// Logger defines the logging interface for the notifier.
type Logger interface {
	Warn(ctx context.Context, msg string, fields map[string]interface{})
}

// DefaultBuffer is the number of notifications held while the writer catches up.
const DefaultBuffer = 32

// Title prefixes every notification line.
const Title = "trailsync"

// WriterNotifier implements domain.Notifier. Notify never blocks: messages are
// handed to a single writer goroutine and dropped when its buffer is full.
type WriterNotifier struct {
	out      io.Writer
	messages chan string
	logger   Logger
	done     chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewWriterNotifier creates a notifier writing to stderr.
func NewWriterNotifier(log Logger) *WriterNotifier {
	return NewWriterNotifierWithOutput(os.Stderr, log)
}

// NewWriterNotifierWithOutput creates a notifier with a custom output destination.
// This is useful for testing.
func NewWriterNotifierWithOutput(out io.Writer, log Logger) *WriterNotifier {
	n := &WriterNotifier{
		out:      out,
		messages: make(chan string, DefaultBuffer),
		logger:   log,
		done:     make(chan struct{}),
	}
	go n.loop()
	return n
}

// Notify queues message for display.
func (n *WriterNotifier) Notify(ctx context.Context, message string) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}

	select {
	case n.messages <- message:
	default:
		n.logger.Warn(ctx, "notification dropped", map[string]interface{}{"message": message})
	}
}

// Close flushes pending notifications and stops the writer goroutine.
func (n *WriterNotifier) Close() error {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.messages)
	}
	n.mu.Unlock()

	<-n.done
	return nil
}

func (n *WriterNotifier) loop() {
	defer close(n.done)
	for msg := range n.messages {
		// Best-effort: there is nowhere left to report a failed write.
		_, _ = fmt.Fprintf(n.out, "%s: %s\n", Title, msg)
	}
}
