package classify

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// ReloadStats contains statistics about rule reloads.
type ReloadStats struct {
	LastReloadTime time.Time `json:"lastReloadTime,omitempty"`
	ReloadCount    int64     `json:"reloadCount"`
	LastError      string    `json:"lastError,omitempty"`
}

// Manager serves classification rules with optional file override and hot reload.
// Reads are lock-free.
type Manager struct {
	embedded     *Rules
	current      atomic.Pointer[Rules]
	externalPath string
	watcher      *fsnotify.Watcher
	stopCh       chan struct{}
	wg           sync.WaitGroup
	mu           sync.Mutex // Protects reloads, stats and closed
	stats        ReloadStats
	closed       bool
}

// NewManager creates a Manager.
// If externalPath is empty, only the embedded rules are used.
// If hotReload is set, changes to externalPath are applied without restart.
// A broken external file is logged and the embedded rules stay in effect.
func NewManager(externalPath string, hotReload bool) (*Manager, error) {
	m := &Manager{
		embedded:     Default(),
		externalPath: externalPath,
		stopCh:       make(chan struct{}),
	}
	m.current.Store(m.embedded)

	if externalPath == "" {
		return m, nil
	}

	if err := m.Reload(); err != nil {
		log.Warn().
			Err(err).
			Str("path", externalPath).
			Msg("Failed to load classification rules file, using embedded defaults")
	}

	if hotReload {
		if err := m.startWatcher(); err != nil {
			log.Warn().
				Err(err).
				Str("path", externalPath).
				Msg("Failed to start file watcher, hot-reload disabled")
		} else {
			log.Info().
				Str("path", externalPath).
				Msg("Hot-reload enabled for classification rules")
		}
	}

	return m, nil
}

// Static returns a Manager serving fixed rules.
func Static(r *Rules) *Manager {
	m := &Manager{embedded: r, stopCh: make(chan struct{})}
	m.current.Store(r)
	return m
}

// Get returns the rules currently in effect.
func (m *Manager) Get() *Rules {
	return m.current.Load()
}

// Reload re-reads the external file. On failure the previous rules stay in use.
func (m *Manager) Reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.externalPath == "" {
		return fmt.Errorf("no external rules path configured")
	}

	data, err := os.ReadFile(m.externalPath)
	if err != nil {
		m.stats.LastError = err.Error()
		return fmt.Errorf("failed to read rules file: %w", err)
	}
	rules, err := Parse(data)
	if err != nil {
		m.stats.LastError = err.Error()
		return fmt.Errorf("failed to parse rules file: %w", err)
	}

	m.current.Store(m.mergeWithEmbedded(rules))
	m.stats.LastReloadTime = time.Now()
	m.stats.ReloadCount++
	m.stats.LastError = ""

	log.Info().
		Int64("reload_count", m.stats.ReloadCount).
		Str("path", m.externalPath).
		Msg("Classification rules reloaded")
	return nil
}

// Stats returns the current reload statistics.
func (m *Manager) Stats() ReloadStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Close stops the file watcher. Safe to call multiple times.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()

	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}

// mergeWithEmbedded lets the external file override whole lists.
// Embedded lists fill the ones it leaves empty.
func (m *Manager) mergeWithEmbedded(external *Rules) *Rules {
	merged := *external
	if len(merged.IgnoredContentTypes) == 0 {
		merged.IgnoredContentTypes = m.embedded.IgnoredContentTypes
	}
	if len(merged.IgnoredPaths) == 0 {
		merged.IgnoredPaths = m.embedded.IgnoredPaths
	}
	return &merged
}

func (m *Manager) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(m.externalPath); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch file: %w", err)
	}
	m.watcher = watcher

	m.wg.Add(1)
	go m.watchFile()
	return nil
}

func (m *Manager) watchFile() {
	defer m.wg.Done()

	// Debounce to coalesce editors writing the file in several steps
	const debounceDelay = 100 * time.Millisecond
	debounce := time.NewTimer(debounceDelay)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			log.Debug().
				Str("event", event.Op.String()).
				Str("file", event.Name).
				Msg("Classification rules file changed")
			debounce.Reset(debounceDelay)

		case <-debounce.C:
			if err := m.Reload(); err != nil {
				log.Warn().
					Err(err).
					Str("path", m.externalPath).
					Msg("Hot-reload failed, keeping previous rules")
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("File watcher error")

		case <-m.stopCh:
			return
		}
	}
}
