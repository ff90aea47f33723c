package config

import (
	"context"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/alchemist-io/alchemist/internal/store"
)

// LiveSettings is the mutable, Store-backed counterpart to the bootstrap
// Config file: the settings surface (transcode/files/hardware/scanner/
// system) the HTTP API reads and writes. It caches the current value in
// memory so the SettingsSource closures scheduler/orchestrator/watcher
// consult every tick read it without a Store round trip, keeping each
// consumer's view an immutable snapshot rather than a live reference.
type LiveSettings struct {
	store store.Store

	mu      sync.RWMutex
	current EngineSettings
}

// LoadLiveSettings reads the persisted settings blob. An empty blob (first
// run) seeds the store with def rather than leaving it uninitialized.
func LoadLiveSettings(ctx context.Context, st store.Store, def EngineSettings) (*LiveSettings, error) {
	ls := &LiveSettings{store: st, current: def}

	blob, err := st.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if blob == "" {
		if err := ls.persist(ctx); err != nil {
			return nil, err
		}
		return ls, nil
	}

	var parsed EngineSettings
	if err := yaml.Unmarshal([]byte(blob), &parsed); err != nil {
		return nil, err
	}
	ls.current = parsed
	return ls, nil
}

// Current returns an immutable snapshot, matching the SettingsSource
// signature scheduler.Pool, orchestrator.Orchestrator, and watcher.Watcher
// all consult.
func (ls *LiveSettings) Current() EngineSettings {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return ls.current.Snapshot()
}

// Update applies mutate to a private copy of the current settings,
// installs it, and persists the result. mutate receives a pointer to a
// not-yet-visible copy and runs while the write lock is held, so
// concurrent Updates are serialized and readers wait until it returns.
func (ls *LiveSettings) Update(ctx context.Context, mutate func(*EngineSettings)) (EngineSettings, error) {
	ls.mu.Lock()
	next := ls.current
	mutate(&next)
	ls.current = next
	ls.mu.Unlock()

	if err := ls.persist(ctx); err != nil {
		return EngineSettings{}, err
	}
	return ls.Current(), nil
}

func (ls *LiveSettings) persist(ctx context.Context) error {
	ls.mu.RLock()
	blob, err := yaml.Marshal(ls.current)
	ls.mu.RUnlock()
	if err != nil {
		return err
	}
	return ls.store.SaveSettings(ctx, string(blob))
}
