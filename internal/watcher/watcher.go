// Package watcher monitors configured directories for new or modified
// media files and enqueues them as jobs. It has no analog in the teacher
// repo (shrinkray is manually browsed and queued); the fsnotify idiom and
// singleflight dedup are carried over from the pack's directory-walking
// code, and the Start/Stop lifecycle follows internal/scheduler's Pool.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"

	"github.com/alchemist-io/alchemist/internal/config"
	"github.com/alchemist-io/alchemist/internal/jobs"
	"github.com/alchemist-io/alchemist/internal/logger"
	"github.com/alchemist-io/alchemist/internal/notify"
	"github.com/alchemist-io/alchemist/internal/store"
)

// defaultDebounceWindow is the quiet-window default: a file still being
// written is enqueued only once activity on it goes quiet for this long.
const defaultDebounceWindow = 2 * time.Second

// defaultEventQueueCapacity bounds the channel fsnotify events are
// relayed onto before debouncing. Once full, the watcher degrades to a
// rescan of the affected root rather than block fsnotify's delivery
// goroutine.
const defaultEventQueueCapacity = 256

// fsEvent is a candidate path paired with the WatchDir that owns it.
type fsEvent struct {
	path string
	wd   *jobs.WatchDir
}

// Watcher drives per-WatchDir fsnotify subscriptions, debounces bursts of
// events on the same path, and degrades to a full rescan under event-queue
// pressure instead of ever blocking the OS event source.
type Watcher struct {
	store    store.Store
	settings func() config.EngineSettings
	Notifier *notify.Dispatcher // optional; nil disables delivery

	fsw *fsnotify.Watcher

	// DebounceWindow and EventQueueCapacity are exported so tests can
	// shrink them; both default to the package constants in New.
	DebounceWindow     time.Duration
	EventQueueCapacity int

	mu     sync.Mutex
	roots  map[string]*jobs.WatchDir // every watched directory path -> its owning WatchDir
	timers map[string]*time.Timer    // debounce timers, keyed by candidate file path

	events      chan fsEvent
	rescanGroup singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Watcher backed by a real fsnotify watcher. Call Start
// to begin watching the store's current WatchDir set.
func New(st store.Store, settings func() config.EngineSettings) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		store:              st,
		settings:           settings,
		fsw:                fsw,
		DebounceWindow:     defaultDebounceWindow,
		EventQueueCapacity: defaultEventQueueCapacity,
		roots:              make(map[string]*jobs.WatchDir),
		timers:             make(map[string]*time.Timer),
		events:             make(chan fsEvent, defaultEventQueueCapacity),
	}, nil
}

// Start loads the current enabled WatchDir set, subscribes fsnotify to
// each directory (and every subdirectory, when recursive), and begins the
// debounce/enqueue loop. Runs until Stop is called or parentCtx ends.
func (w *Watcher) Start(parentCtx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(parentCtx)
	if w.EventQueueCapacity != defaultEventQueueCapacity {
		w.events = make(chan fsEvent, w.EventQueueCapacity)
	}

	if err := w.Reload(); err != nil {
		return err
	}

	w.wg.Add(2)
	go func() { defer w.wg.Done(); w.watchLoop() }()
	go func() { defer w.wg.Done(); w.relayLoop() }()
	return nil
}

// Stop cancels both loops, waits for them to return, stops every pending
// debounce timer, and closes the underlying fsnotify watcher.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.fsw.Close()

	w.mu.Lock()
	for _, t := range w.timers {
		t.Stop()
	}
	w.mu.Unlock()
}

// Reload re-reads the enabled WatchDir set from the store and subscribes
// fsnotify to any directory not already watched. Safe to call while
// running to pick up a freshly added WatchDir.
func (w *Watcher) Reload() error {
	dirs, err := w.store.ListWatchDirs(w.ctx)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, wd := range dirs {
		if !wd.Enabled {
			continue
		}
		if _, already := w.roots[wd.Path]; already {
			continue
		}
		if err := w.addTreeLocked(wd); err != nil {
			logger.Warn("watcher: failed to watch directory", "path", wd.Path, "error", err)
		}
	}
	return nil
}

// addTreeLocked subscribes wd.Path and, when Recursive, every
// subdirectory beneath it. Callers must hold w.mu.
func (w *Watcher) addTreeLocked(wd *jobs.WatchDir) error {
	if err := w.fsw.Add(wd.Path); err != nil {
		return err
	}
	w.roots[wd.Path] = wd

	if !wd.Recursive {
		return nil
	}
	return filepath.WalkDir(wd.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() || path == wd.Path {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			logger.Warn("watcher: failed to watch subdirectory", "path", path, "error", addErr)
			return nil
		}
		w.roots[path] = wd
		return nil
	})
}

// watchLoop reads fsnotify's own Events/Errors channels and relays
// candidates onto the bounded internal queue, never blocking on a full
// queue: overflow triggers a background rescan instead.
func (w *Watcher) watchLoop() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleRawEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("watcher: fsnotify error", "error", err)
		}
	}
}

func (w *Watcher) handleRawEvent(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	wd, known := w.ownerLocked(ev.Name)
	w.mu.Unlock()
	if !known {
		return
	}

	// A newly created directory under a recursive root needs its own
	// subscription before fsnotify can report anything created inside it.
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if wd.Recursive {
				w.mu.Lock()
				if err := w.fsw.Add(ev.Name); err == nil {
					w.roots[ev.Name] = wd
				}
				w.mu.Unlock()
			}
			return
		}
	}

	select {
	case w.events <- fsEvent{path: ev.Name, wd: wd}:
	default:
		// Never block fsnotify's delivery goroutine: degrade to a
		// background rescan of the affected root instead.
		logger.Warn("watcher: event queue full, falling back to rescan", "root", wd.Path)
		w.triggerRescan(wd)
	}
}

// ownerLocked finds the WatchDir owning path by walking up its directory
// ancestry to the nearest watched root. Callers must hold w.mu.
func (w *Watcher) ownerLocked(path string) (*jobs.WatchDir, bool) {
	dir := filepath.Dir(path)
	for {
		if wd, ok := w.roots[dir]; ok {
			return wd, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, false
		}
		dir = parent
	}
}

// triggerRescan runs a background full rescan of wd's root, deduplicated
// via singleflight so a burst of overflow signals for the same root only
// walks it once.
func (w *Watcher) triggerRescan(wd *jobs.WatchDir) {
	go func() {
		_, _, _ = w.rescanGroup.Do(wd.Path, func() (interface{}, error) {
			result, err := w.RescanOne(w.ctx, wd)
			if err != nil {
				logger.Warn("watcher: overflow rescan failed", "path", wd.Path, "error", err)
			} else {
				logger.Info("watcher: overflow rescan complete", "path", wd.Path,
					"files_found", result.FilesFound, "files_added", result.FilesAdded)
			}
			return nil, nil
		})
	}()
}

// relayLoop debounces incoming candidates: each new event for a path
// resets that path's timer to DebounceWindow, so a file still being
// written only settles once activity on it has been quiet for the full
// window.
func (w *Watcher) relayLoop() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case e, ok := <-w.events:
			if !ok {
				return
			}
			w.debounce(e)
		}
	}
}

func (w *Watcher) debounce(e fsEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[e.path]; ok {
		t.Stop()
	}
	w.timers[e.path] = time.AfterFunc(w.DebounceWindow, func() {
		w.mu.Lock()
		delete(w.timers, e.path)
		w.mu.Unlock()
		w.settle(e)
	})
}

// settle runs once a candidate path's quiet window has elapsed: re-check
// the extension/exclude filters (cheap, and settings may have changed
// since the event fired) and enqueue it.
func (w *Watcher) settle(e fsEvent) {
	if w.ctx.Err() != nil {
		return
	}
	info, err := os.Stat(e.path)
	if err != nil || info.IsDir() {
		return // removed, or a directory event that slipped through
	}
	if !candidateFile(e.path, e.wd, w.settings().Scanner) {
		return
	}
	w.enqueue(w.ctx, e.path)
}
