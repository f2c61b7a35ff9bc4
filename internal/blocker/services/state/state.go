// Package state owns the background process's cached settings.
//
// One read of the store is issued at start. Until it completes (or an update
// is applied) every Snapshot call waits on the readiness gate, so no
// navigation is evaluated against uninitialized state. After that, readers
// never touch the store: they see an immutable snapshot that writers replace
// with a single atomic store.
package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/haukened/distraction-block/internal/blocker/common/log"
	"github.com/haukened/distraction-block/internal/blocker/domain"
	"github.com/haukened/distraction-block/internal/blocker/repos/settings"
	"github.com/haukened/distraction-block/internal/blocker/services/rules"
)

// ErrNotReady is returned when a caller stops waiting for the initial load.
var ErrNotReady = errors.New("settings not loaded yet")

// Snapshot is one consistent view of the settings and its compiled matcher.
type Snapshot struct {
	Settings domain.Settings
	Matcher  *rules.Matcher
}

// Options configure a State.
type Options struct {
	Store  settings.Store
	Logger log.Logger
	// Rules are applied whenever a snapshot's matcher is compiled.
	Rules rules.Options
}

// State is the single owner of the cached settings.
type State struct {
	store  settings.Store
	logger log.Logger
	rules  rules.Options

	current atomic.Pointer[Snapshot]

	ready     chan struct{}
	readyOnce sync.Once
	startOnce sync.Once

	// mu serializes writers so the store and the cache change in the same order.
	mu      sync.Mutex
	version uint64

	subMu   sync.Mutex
	subs    map[int]chan domain.Settings
	nextSub int
}

// New returns a State that has not loaded anything yet; call Start.
func New(opts Options) *State {
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger()
	}
	ro := opts.Rules
	if ro.Logger == nil {
		ro.Logger = logger
	}
	return &State{
		store:  opts.Store,
		logger: logger,
		rules:  ro,
		ready:  make(chan struct{}),
		subs:   make(map[int]chan domain.Settings),
	}
}

// Start issues the initial asynchronous load. Later calls do nothing.
func (s *State) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.mu.Lock()
		v := s.version
		s.mu.Unlock()
		go s.initialLoad(ctx, v)
	})
}

// initialLoad applies the first read unless a write landed after version v.
func (s *State) initialLoad(ctx context.Context, v uint64) {
	defer s.markReady()

	loaded, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Error(map[string]any{"error": err}, "Initial settings load failed, using defaults")
		loaded = domain.DefaultSettings()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version != v {
		s.logger.Debug(nil, "Initial load superseded by a newer update")
		return
	}
	s.apply(loaded)
	s.logger.Info(map[string]any{
		"is_blocking": loaded.IsBlocking,
		"sites":       len(loaded.BlockedSites),
	}, "Loaded settings")
}

// Ready is closed once the first state is in place.
func (s *State) Ready() <-chan struct{} { return s.ready }

// IsReady reports whether the gate is open.
func (s *State) IsReady() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

func (s *State) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// Snapshot waits for the readiness gate and returns the cached view.
func (s *State) Snapshot(ctx context.Context) (Snapshot, error) {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return Snapshot{}, fmt.Errorf("%w: %w", ErrNotReady, ctx.Err())
	}
	return *s.current.Load(), nil
}

// Current returns the cached view without waiting; false before ready.
func (s *State) Current() (Snapshot, bool) {
	if !s.IsReady() {
		return Snapshot{}, false
	}
	return *s.current.Load(), true
}

// Status answers getBlockingStatus.
func (s *State) Status(ctx context.Context) (domain.Status, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return domain.Status{}, err
	}
	return domain.StatusOf(snap.Settings), nil
}

// Update persists next and, only if that succeeds, swaps it into the cache.
// This is the only path that writes to the store.
func (s *State) Update(ctx context.Context, next domain.Settings) error {
	next = next.Clone()

	s.mu.Lock()
	if err := s.store.Save(ctx, next); err != nil {
		s.mu.Unlock()
		s.logger.Error(map[string]any{"error": err}, "Settings not saved")
		return fmt.Errorf("save settings: %w", err)
	}
	s.version++
	s.apply(next)
	s.mu.Unlock()

	s.markReady()
	s.logger.Info(map[string]any{
		"is_blocking": next.IsBlocking,
		"sites":       len(next.BlockedSites),
	}, "Updated blocking settings")
	s.notify(next)
	return nil
}

// Refresh reloads the store opportunistically (window focus, tab
// activation). The result is dropped if any write landed while reading.
func (s *State) Refresh(ctx context.Context) error {
	s.mu.Lock()
	v := s.version
	s.mu.Unlock()

	loaded, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Warn(map[string]any{"error": err}, "Settings refresh failed, keeping cached copy")
		return fmt.Errorf("refresh settings: %w", err)
	}

	s.mu.Lock()
	if s.version != v {
		s.mu.Unlock()
		s.logger.Debug(nil, "Refresh superseded by a newer update")
		return nil
	}
	prev := s.current.Load()
	s.version++
	s.apply(loaded)
	s.mu.Unlock()

	s.markReady()
	if prev == nil || !prev.Settings.Equal(loaded) {
		s.logger.Info(map[string]any{
			"is_blocking": loaded.IsBlocking,
			"sites":       len(loaded.BlockedSites),
		}, "Refreshed settings")
		s.notify(loaded)
	}
	return nil
}

// apply compiles and publishes a snapshot; callers hold mu.
func (s *State) apply(st domain.Settings) {
	st = st.Clone()
	s.current.Store(&Snapshot{
		Settings: st,
		Matcher:  rules.Compile(st.BlockedSites, s.rules),
	})
}

// Subscribe returns a channel receiving each new record. Slow readers only
// see the latest value. Call the returned func to unsubscribe.
func (s *State) Subscribe() (<-chan domain.Settings, func()) {
	ch := make(chan domain.Settings, 1)
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *State) notify(st domain.Settings) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st.Clone():
		default:
		}
	}
}
