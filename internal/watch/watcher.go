// Package watch reports torrent files dropped into watched folders.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

type Event struct {
	Path string
	Time time.Time
}

type Options struct {
	Directories []string      // absolute paths to watch
	Glob        string        // file name filter, defaults to *.torrent
	Debounce    time.Duration // quiet period before a path is reported
	Logger      *logrus.Logger
}

// Watcher emits each matching file once after writes to it settle. A file
// that is removed and created again is reported again.
type Watcher struct {
	opts Options

	mu      sync.Mutex
	w       *fsnotify.Watcher
	cancel  context.CancelFunc
	started bool
}

func New(opts Options) (*Watcher, error) {
	if len(opts.Directories) == 0 {
		return nil, errors.New("no watch directories configured")
	}
	for _, dir := range opts.Directories {
		if !filepath.IsAbs(dir) {
			return nil, fmt.Errorf("watch directory must be absolute: %s", dir)
		}
	}
	if opts.Glob == "" {
		opts.Glob = "*.torrent"
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Watcher{opts: opts}, nil
}

// Start begins watching. The returned channel is closed when ctx is
// cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) (<-chan Event, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return nil, errors.New("watcher already started")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	for _, dir := range w.opts.Directories {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return nil, fmt.Errorf("add watch %s: %w", dir, err)
		}
	}

	w.w = fsw
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.started = true

	out := make(chan Event, 64)
	go w.run(ctx, out)
	w.opts.Logger.Infof("watching %d folder(s) for %s", len(w.opts.Directories), w.opts.Glob)
	return out, nil
}

func (w *Watcher) run(ctx context.Context, out chan<- Event) {
	defer func() {
		_ = w.w.Close()
		close(out)
	}()

	pending := make(map[string]time.Time)
	seen := make(map[string]struct{})

	ticker := time.NewTicker(w.opts.Debounce / 2)
	defer ticker.Stop()

	flush := func(now time.Time) {
		for p, last := range pending {
			if now.Sub(last) < w.opts.Debounce {
				continue
			}
			delete(pending, p)
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			select {
			case out <- Event{Path: p, Time: now}:
			case <-ctx.Done():
				return
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if !w.matches(ev.Name) {
				continue
			}
			switch {
			case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
				delete(pending, ev.Name)
				delete(seen, ev.Name)
			case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
				pending[ev.Name] = time.Now()
			}

		case err, ok := <-w.w.Errors:
			if ok {
				w.opts.Logger.Warnf("folder watch: %v", err)
			}

		case now := <-ticker.C:
			flush(now)
		}
	}
}

func (w *Watcher) matches(name string) bool {
	ok, _ := filepath.Match(w.opts.Glob, filepath.Base(name))
	return ok
}

// Close stops the watcher if running.
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
}
