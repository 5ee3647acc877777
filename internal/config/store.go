package config

import (
	"sync"

	"github.com/dshills/dartdbg/internal/event"
	"github.com/dshills/dartdbg/internal/integration/debug/devtools"
)

// Store holds the current configuration.
type Store struct {
	path string

	mu  sync.RWMutex
	cfg Config

	changed *event.Emitter[Config]
}

// NewStore creates a store backed by path. An empty path disables Save.
func NewStore(path string, cfg Config) *Store {
	return &Store{
		path:    path,
		cfg:     cfg,
		changed: event.NewEmitter[Config](),
	}
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Get returns the current configuration.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Set replaces the configuration and notifies subscribers.
func (s *Store) Set(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	s.changed.Fire(cfg)
}

// OnChange subscribes to configuration changes.
func (s *Store) OnChange(fn func(Config)) *event.Subscription {
	return s.changed.Subscribe(fn)
}

// DevToolsPolicy returns the current DevTools policy.
func (s *Store) DevToolsPolicy() devtools.Policy {
	return s.Get().DevToolsPolicy()
}

// SetDevToolsPolicy stores p and persists it when the store has a file.
func (s *Store) SetDevToolsPolicy(p devtools.Policy) error {
	if _, err := devtools.ParsePolicy(string(p)); err != nil {
		return err
	}

	s.mu.Lock()
	s.cfg.DevTools.Open = string(p)
	cfg := s.cfg
	s.mu.Unlock()

	s.changed.Fire(cfg)

	if s.path == "" {
		return nil
	}
	return Save(s.path, cfg)
}

// Close drops all subscribers.
func (s *Store) Close() {
	s.changed.Close()
}
