package host

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/lo"

	"github.com/MyCarrier-DevOps/trailsync/internal/domain"
)

// DefaultDebounce coalesces the burst of write events an editor produces for one save.
const DefaultDebounce = 500 * time.Millisecond

// eventBuffer bounds the pending lifecycle events between the watcher and the loop.
const eventBuffer = 64

type eventKind int

const (
	eventOpened eventKind = iota
	eventSaved
)

type hostEvent struct {
	kind eventKind
	path string
}

// document tracks one watched file.
type document struct {
	suspended   bool
	ignoreUntil time.Time
	timer       *time.Timer
}

// WatchOptions configures a WatchHost.
type WatchOptions struct {
	// Debounce is the quiet period after the last write before a save is reported.
	Debounce time.Duration

	// Status receives status and caption text; nil discards it.
	Status io.Writer
}

// WatchHost turns filesystem changes to a fixed set of files into document
// lifecycle events. All events are delivered from the goroutine running Run,
// one at a time.
type WatchHost struct {
	watcher   *fsnotify.Watcher
	lifecycle domain.DocumentLifecycle
	logger    Logger
	debounce  time.Duration
	status    io.Writer

	events chan hostEvent

	mu      sync.Mutex
	docs    map[string]*document
	caption string
	now     func() time.Time
}

// NewWatchHost creates a WatchHost delivering events to lifecycle.
func NewWatchHost(lifecycle domain.DocumentLifecycle, log Logger, opts WatchOptions) (*WatchHost, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &WatchHost{
		watcher:   watcher,
		lifecycle: lifecycle,
		logger:    log,
		debounce:  debounce,
		status:    opts.Status,
		events:    make(chan hostEvent, eventBuffer),
		docs:      make(map[string]*document),
		now:       time.Now,
	}, nil
}

// Run watches paths until ctx is cancelled. Every path is reported as opened
// first, and the first path is reported as activated.
func (h *WatchHost) Run(ctx context.Context, paths []string) error {
	defer h.watcher.Close()

	paths = lo.Uniq(lo.Map(paths, func(p string, _ int) string { return cleanPath(p) }))
	if len(paths) == 0 {
		return fmt.Errorf("no files to watch")
	}

	h.mu.Lock()
	for _, p := range paths {
		h.docs[p] = &document{}
	}
	h.mu.Unlock()

	dirs := lo.Uniq(lo.Map(paths, func(p string, _ int) string { return filepath.Dir(p) }))
	for _, dir := range dirs {
		if err := h.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	h.logger.Info(ctx, "watching documents", map[string]interface{}{
		"documents":   len(paths),
		"directories": len(dirs),
	})

	for _, p := range paths {
		h.lifecycle.FileOpened(ctx, h, p)
	}
	h.lifecycle.DocumentActivated(ctx, h, paths[0])

	for {
		select {
		case <-ctx.Done():
			h.stopTimers()
			return nil
		case ev := <-h.events:
			h.deliver(ctx, ev)
		case fsEvent, ok := <-h.watcher.Events:
			if !ok {
				return nil
			}
			h.handle(fsEvent)
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return nil
			}
			h.logger.Warn(ctx, "file watcher error", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (h *WatchHost) deliver(ctx context.Context, ev hostEvent) {
	switch ev.kind {
	case eventOpened:
		h.lifecycle.FileOpened(ctx, h, ev.path)
	case eventSaved:
		if h.isSuspended(ev.path) {
			return
		}
		h.lifecycle.FileSaved(ctx, h, ev.path, true)
	}
}

// handle debounces writes to tracked files. Editors that save by renaming a
// temporary file over the original produce a Create instead of a Write.
func (h *WatchHost) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	path := filepath.Clean(ev.Name)

	h.mu.Lock()
	defer h.mu.Unlock()

	doc, ok := h.docs[path]
	if !ok || doc.suspended || h.now().Before(doc.ignoreUntil) {
		return
	}
	if doc.timer != nil {
		doc.timer.Stop()
	}
	doc.timer = time.AfterFunc(h.debounce, func() {
		h.post(hostEvent{kind: eventSaved, path: path})
	})
}

// post never blocks: it is called from the Run goroutine itself while a
// lifecycle handler reopens documents.
func (h *WatchHost) post(ev hostEvent) {
	select {
	case h.events <- ev:
	default:
		h.logger.Warn(context.Background(), "document event dropped", map[string]interface{}{"path": ev.path})
	}
}

func (h *WatchHost) isSuspended(path string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	doc, ok := h.docs[path]
	return !ok || doc.suspended
}

func (h *WatchHost) stopTimers() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, doc := range h.docs {
		if doc.timer != nil {
			doc.timer.Stop()
		}
	}
}

// CloseDocument stops reporting changes to path, so the writes of a reset are
// not mistaken for a save.
func (h *WatchHost) CloseDocument(ctx context.Context, path string) error {
	path = cleanPath(path)

	h.mu.Lock()
	doc, ok := h.docs[path]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("document not tracked: %s", path)
	}
	doc.suspended = true
	if doc.timer != nil {
		doc.timer.Stop()
		doc.timer = nil
	}
	h.mu.Unlock()

	h.logger.Debug(ctx, "document closed", map[string]interface{}{"path": path})
	return nil
}

// OpenDocument resumes reporting changes to path and reports it opened again.
// Events already in flight for the reset are ignored for one debounce period.
func (h *WatchHost) OpenDocument(ctx context.Context, path string) error {
	path = cleanPath(path)

	h.mu.Lock()
	doc, ok := h.docs[path]
	if !ok {
		doc = &document{}
		h.docs[path] = doc
	}
	doc.suspended = false
	doc.ignoreUntil = h.now().Add(h.debounce)
	h.mu.Unlock()

	h.logger.Debug(ctx, "document reopened", map[string]interface{}{"path": path})
	h.post(hostEvent{kind: eventOpened, path: path})
	return nil
}

// OpenDocuments returns the tracked documents that are not suspended.
func (h *WatchHost) OpenDocuments() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	docs := lo.Filter(lo.Keys(h.docs), func(p string, _ int) bool {
		return !h.docs[p].suspended
	})
	sort.Strings(docs)
	return docs
}

// SetStatus writes status text; an empty text clears it and writes nothing.
func (h *WatchHost) SetStatus(text string) {
	if text == "" {
		return
	}
	h.logger.Info(context.Background(), "status", map[string]interface{}{"text": text})
	h.write(text)
}

// SetCaption writes the branch indicator when it changes.
func (h *WatchHost) SetCaption(text string) {
	h.mu.Lock()
	changed := h.caption != text
	h.caption = text
	h.mu.Unlock()

	if changed && text != "" {
		h.write("on " + text)
	}
}

// Caption returns the current branch indicator.
func (h *WatchHost) Caption() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.caption
}

func (h *WatchHost) write(text string) {
	if h.status == nil {
		return
	}
	_, _ = fmt.Fprintln(h.status, text)
}
