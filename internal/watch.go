package internal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// settleDelay is how long a file must stay unchanged before it is read.
const settleDelay = 100 * time.Millisecond

// Watcher re-renders documents when they change on disk.
type Watcher struct {
	engine  *Engine
	watcher *fsnotify.Watcher
	dirs    []string
	report  func(Report)
	logger  *zap.Logger

	mu         sync.Mutex
	isWatching bool
	cancel     context.CancelFunc
	timers     map[string]*time.Timer // pending re-renders by file
	wg         sync.WaitGroup
}

// NewWatcher watches dirs recursively. report receives the result of every
// re-render that was not superseded.
func (e *Engine) NewWatcher(dirs []string, report func(Report)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("error creating watcher: %w", err)
	}
	return &Watcher{
		engine:  e,
		watcher: fw,
		dirs:    dirs,
		report:  report,
		logger:  e.logger.Named("watch"),
		timers:  make(map[string]*time.Timer),
	}, nil
}

func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isWatching {
		return errors.New("already watching")
	}

	for _, dir := range w.dirs {
		err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return w.watcher.Add(path)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("error adding directory to watcher: %w", err)
		}
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.isWatching = true
	w.wg.Add(1)
	go w.watchLoop(ctx)
	return nil
}

// Stop ends watching and waits for in-progress renders to return.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.isWatching {
		w.mu.Unlock()
		return nil
	}
	w.isWatching = false
	w.cancel()
	for name, t := range w.timers {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.timers, name)
	}
	w.mu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFileEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleFileEvent(ctx context.Context, event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	if _, ok := w.engine.Profiles().ForFile(event.Name); !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.isWatching {
		return
	}

	// Every event restarts the settle delay of its file.
	name := event.Name
	if t, ok := w.timers[name]; ok && t.Stop() {
		t.Reset(settleDelay)
		return
	}

	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(settleDelay, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.timers[name] == t {
			delete(w.timers, name)
		}
		w.mu.Unlock()
		w.rerender(ctx, name)
	})
	w.timers[name] = t
}

// rerender reads name and submits it to the engine.
func (w *Watcher) rerender(ctx context.Context, name string) {
	if ctx.Err() != nil {
		return
	}
	doc, err := ReadDocument(name)
	if err != nil {
		w.logger.Warn("skipping changed file", zap.Error(err))
		return
	}
	report, err := w.engine.Submit(ctx, doc)
	switch {
	case errors.Is(err, ErrSuperseded):
		w.logger.Debug("render superseded", zap.String("file", name))
	case err != nil:
		if ctx.Err() == nil {
			w.logger.Error("render failed", zap.String("file", name), zap.Error(err))
		}
	default:
		if err := w.engine.Flush(); err != nil {
			w.logger.Warn("failed to save cache", zap.Error(err))
		}
		if w.report != nil {
			w.report(*report)
		}
	}
}
