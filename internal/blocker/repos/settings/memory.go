package settings

import (
	"context"
	"sync"
	"time"

	"github.com/haukened/distraction-block/internal/blocker/domain"
)

// Memory is an in-process Store. LoadDelay, LoadErr and SaveErr let tests
// shape its behavior.
type Memory struct {
	mu      sync.Mutex
	data    *domain.Settings
	closed  bool
	loads   int
	saves   int
	loadErr error
	saveErr error
	delay   time.Duration
}

// NewMemory returns a Memory store. A nil initial means "first install".
func NewMemory(initial *domain.Settings) *Memory {
	m := &Memory{}
	if initial != nil {
		c := initial.Clone()
		m.data = &c
	}
	return m
}

// SetLoadDelay makes every Load wait d (or until ctx is done).
func (m *Memory) SetLoadDelay(d time.Duration) {
	m.mu.Lock()
	m.delay = d
	m.mu.Unlock()
}

// SetErrors injects failures for subsequent calls; nil clears them.
func (m *Memory) SetErrors(loadErr, saveErr error) {
	m.mu.Lock()
	m.loadErr, m.saveErr = loadErr, saveErr
	m.mu.Unlock()
}

// Counts returns how many Load and Save calls reached the store.
func (m *Memory) Counts() (loads, saves int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads, m.saves
}

func (m *Memory) Load(ctx context.Context) (domain.Settings, error) {
	m.mu.Lock()
	delay := m.delay
	m.loads++
	m.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return domain.Settings{}, ctx.Err()
		case <-t.C:
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return domain.Settings{}, ErrClosed
	}
	if m.loadErr != nil {
		return domain.Settings{}, m.loadErr
	}
	if m.data == nil {
		return domain.DefaultSettings(), nil
	}
	return m.data.Clone(), nil
}

func (m *Memory) Save(ctx context.Context, s domain.Settings) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.closed {
		return ErrClosed
	}
	if m.saveErr != nil {
		return m.saveErr
	}
	c := s.Clone()
	m.data = &c
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

var _ Store = (*Memory)(nil)
