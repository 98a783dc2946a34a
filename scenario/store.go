package scenario

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/velhola/gleaner/telemetry"
)

// Store owns the active rule set and keeps it fresh when the backing file
// changes. A broken edit never takes down a running daemon: the previous set
// stays active and the parse error is logged.
type Store struct {
	mu       sync.RWMutex
	path     string
	models   ModelChecker
	logger   *telemetry.Logger
	set      *Set
	onReload func(*Set)

	watcher  *fsnotify.Watcher
	stop     chan struct{}
	stopOnce sync.Once
}

// NewStore loads the initial rule set from path. With an empty path the
// embedded default library is used and Watch becomes a no-op.
func NewStore(path string, models ModelChecker, logger *telemetry.Logger) (*Store, error) {
	st := &Store{
		path:   path,
		models: models,
		logger: logger,
		stop:   make(chan struct{}),
	}

	if path == "" {
		set, err := DefaultSet(models)
		if err != nil {
			return nil, err
		}
		st.swap(set, "builtin")
		return st, nil
	}

	if err := st.Reload(); err != nil {
		return nil, err
	}
	return st, nil
}

// Current returns the active rule set.
func (st *Store) Current() *Set {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.set
}

// OnReload registers a callback invoked with every successfully applied set.
func (st *Store) OnReload(fn func(*Set)) {
	st.mu.Lock()
	st.onReload = fn
	st.mu.Unlock()
}

// Reload re-reads the backing file and swaps the active set. On any error
// the previous set stays active.
func (st *Store) Reload() error {
	data, err := os.ReadFile(st.path)
	if err != nil {
		return fmt.Errorf("failed to read scenario file: %w", err)
	}
	set, err := LoadSet(data, st.models)
	if err != nil {
		return fmt.Errorf("failed to load scenarios from %s: %w", st.path, err)
	}
	st.swap(set, st.path)
	return nil
}

func (st *Store) swap(set *Set, source string) {
	st.mu.Lock()
	st.set = set
	cb := st.onReload
	st.mu.Unlock()

	if st.logger != nil {
		st.logger.Info().
			Str("source", source).
			Str("version", set.Version()).
			Int("rules", set.Len()).
			Int("rejected", len(set.Rejected())).
			Msg("scenario rule set loaded")
		for _, rej := range set.Rejected() {
			st.logger.LogRuleRejected(context.Background(), rej.RuleID, rej.Err)
		}
	}
	if cb != nil {
		cb(set)
	}
}

// Watch starts watching the backing file for edits. The parent directory is
// watched rather than the file itself because editors replace files on save,
// which silently drops a file-level watch.
func (st *Store) Watch() error {
	if st.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create scenario watcher: %w", err)
	}
	dir := filepath.Dir(st.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	st.watcher = watcher
	go st.watchLoop()
	return nil
}

func (st *Store) watchLoop() {
	for {
		select {
		case event, ok := <-st.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(st.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Editors emit bursts of writes; let the file settle.
			time.Sleep(100 * time.Millisecond)
			if err := st.Reload(); err != nil && st.logger != nil {
				st.logger.Error().
					Err(err).
					Str("path", st.path).
					Msg("scenario reload failed, keeping previous rule set")
			}

		case err, ok := <-st.watcher.Errors:
			if !ok {
				return
			}
			if st.logger != nil {
				st.logger.Error().Err(err).Msg("scenario watcher error")
			}

		case <-st.stop:
			return
		}
	}
}

// Close stops the watcher. The store remains readable.
func (st *Store) Close() {
	st.stopOnce.Do(func() { close(st.stop) })
	if st.watcher != nil {
		st.watcher.Close()
	}
}
