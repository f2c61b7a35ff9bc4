// Package editor is the settings form behind blockctl. It keeps a working
// copy of the record, and every mutating action sends the whole record to
// the daemon right away.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/haukened/distraction-block/internal/blocker/common/log"
	"github.com/haukened/distraction-block/internal/blocker/domain"
)

// ErrNotSaved wraps any failure to deliver the record. The form keeps its
// in-memory state so the user can retry.
var ErrNotSaved = errors.New("settings not saved")

// Messenger carries protocol messages to the daemon.
type Messenger interface {
	GetStatus(ctx context.Context) (domain.Status, error)
	UpdateBlocking(ctx context.Context, s domain.Settings) error
}

type Editor struct {
	messenger Messenger
	logger    log.Logger

	mu       sync.Mutex
	settings domain.Settings
}

func New(m Messenger, logger log.Logger) *Editor {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Editor{
		messenger: m,
		logger:    logger,
		settings:  domain.DefaultSettings(),
	}
}

// Load replaces the form with the daemon's current record. On failure the
// form keeps what it had.
func (e *Editor) Load(ctx context.Context) error {
	st, err := e.messenger.GetStatus(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	e.mu.Lock()
	e.settings = st.Settings().Clone()
	e.mu.Unlock()
	return nil
}

// Toggle switches blocking on or off and saves.
func (e *Editor) Toggle(ctx context.Context, on bool) error {
	e.mu.Lock()
	e.settings.IsBlocking = on
	e.mu.Unlock()
	return e.Save(ctx)
}

// Add normalizes input and appends it. Re-adding an existing domain clears
// nothing and sends nothing. The normalized domain is returned either way.
func (e *Editor) Add(ctx context.Context, input string) (string, error) {
	site, err := domain.NormalizeSite(input)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	next, added := domain.AddSite(e.settings.BlockedSites, site)
	e.settings.BlockedSites = next
	e.mu.Unlock()
	if !added {
		e.logger.Debug(map[string]any{"site": site}, "Site already in list")
		return site, nil
	}
	return site, e.Save(ctx)
}

// AddAll merges many entries with a single save. Inputs that fail
// normalization are returned in rejected and never block the rest. Nothing is
// sent when no new entry was added.
func (e *Editor) AddAll(ctx context.Context, inputs []string) (added, rejected []string, err error) {
	e.mu.Lock()
	for _, in := range inputs {
		site, nerr := domain.NormalizeSite(in)
		if nerr != nil {
			rejected = append(rejected, in)
			continue
		}
		next, ok := domain.AddSite(e.settings.BlockedSites, site)
		e.settings.BlockedSites = next
		if ok {
			added = append(added, site)
		}
	}
	e.mu.Unlock()
	if len(added) == 0 {
		return nil, rejected, nil
	}
	return added, rejected, e.Save(ctx)
}

// Remove deletes site from the list and saves. It reports whether the site
// was present.
func (e *Editor) Remove(ctx context.Context, site string) (bool, error) {
	e.mu.Lock()
	next, removed := domain.RemoveSite(e.settings.BlockedSites, site)
	e.settings.BlockedSites = next
	e.mu.Unlock()
	if !removed {
		return false, nil
	}
	return true, e.Save(ctx)
}

// RemoveAt deletes the i-th entry, as the popup's per-row delete does.
func (e *Editor) RemoveAt(ctx context.Context, i int) (bool, error) {
	e.mu.Lock()
	next, removed := domain.RemoveSiteAt(e.settings.BlockedSites, i)
	e.settings.BlockedSites = next
	e.mu.Unlock()
	if !removed {
		return false, nil
	}
	return true, e.Save(ctx)
}

// Sites returns a copy of the working list.
func (e *Editor) Sites() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings.Clone().BlockedSites
}

func (e *Editor) Blocking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings.IsBlocking
}

// Settings returns a copy of the whole working record.
func (e *Editor) Settings() domain.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings.Clone()
}

// Save sends the full working record as an updateBlocking message.
func (e *Editor) Save(ctx context.Context) error {
	s := e.Settings()
	if err := e.messenger.UpdateBlocking(ctx, s); err != nil {
		e.logger.Warn(map[string]any{"error": err}, "Settings not saved")
		return fmt.Errorf("%w: %w", ErrNotSaved, err)
	}
	e.logger.Debug(map[string]any{
		"is_blocking": s.IsBlocking,
		"sites":       len(s.BlockedSites),
	}, "Saved")
	return nil
}
