// Package host provides domain.DocumentHost implementations: a one-shot console
// host for single commands and a filesystem-watching host for long-running use.
package host

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Logger defines the logging interface for the hosts.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
}

// ConsoleHost is a host without an editor: documents are a set of paths, and
// status text is printed. Closing and reopening a document only updates the set,
// which is all a CLI invocation needs since no process holds the file open.
type ConsoleHost struct {
	mu      sync.Mutex
	open    map[string]struct{}
	caption string
	out     io.Writer
	logger  Logger
}

// NewConsoleHost creates a ConsoleHost writing status text to stderr.
// The given documents start out open.
func NewConsoleHost(log Logger, docs ...string) *ConsoleHost {
	return NewConsoleHostWithOutput(os.Stderr, log, docs...)
}

// NewConsoleHostWithOutput creates a ConsoleHost with a custom output destination.
func NewConsoleHostWithOutput(out io.Writer, log Logger, docs ...string) *ConsoleHost {
	h := &ConsoleHost{
		open:   make(map[string]struct{}),
		out:    out,
		logger: log,
	}
	for _, doc := range docs {
		h.open[cleanPath(doc)] = struct{}{}
	}
	return h
}

// CloseDocument removes path from the open set.
func (h *ConsoleHost) CloseDocument(ctx context.Context, path string) error {
	h.mu.Lock()
	delete(h.open, cleanPath(path))
	h.mu.Unlock()

	h.logger.Debug(ctx, "document closed", map[string]interface{}{"path": path})
	return nil
}

// OpenDocument adds path to the open set.
func (h *ConsoleHost) OpenDocument(ctx context.Context, path string) error {
	h.mu.Lock()
	h.open[cleanPath(path)] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug(ctx, "document opened", map[string]interface{}{"path": path})
	return nil
}

// OpenDocuments returns the open set in lexical order.
func (h *ConsoleHost) OpenDocuments() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	docs := make([]string, 0, len(h.open))
	for doc := range h.open {
		docs = append(docs, doc)
	}
	sort.Strings(docs)
	return docs
}

// SetStatus prints non-empty status text.
func (h *ConsoleHost) SetStatus(text string) {
	if text == "" {
		return
	}
	// Best-effort: status text is informational only.
	_, _ = fmt.Fprintln(h.out, text)
}

// SetCaption records the branch indicator.
func (h *ConsoleHost) SetCaption(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.caption = text
}

// Caption returns the last branch indicator set by the engine.
func (h *ConsoleHost) Caption() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.caption
}

func cleanPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
