// Package interceptor is the single, permanently registered navigation
// handler. It holds no decision state of its own: every event is checked
// against whatever snapshot is cached at that moment.
package interceptor

import (
	"context"
	"sync/atomic"

	"github.com/haukened/distraction-block/internal/blocker/common/log"
	"github.com/haukened/distraction-block/internal/blocker/domain"
	"github.com/haukened/distraction-block/internal/blocker/services/state"
)

// SettingsSource yields the current snapshot, waiting for the initial load.
type SettingsSource interface {
	Snapshot(ctx context.Context) (state.Snapshot, error)
}

// Options configure an Interceptor.
type Options struct {
	State SettingsSource
	// BlockedPageURL is the interstitial page redirects point to.
	BlockedPageURL string
	Logger         log.Logger
}

// Stats counts handled events.
type Stats struct {
	Evaluated  uint64
	Redirected uint64
}

type Interceptor struct {
	state       SettingsSource
	blockedPage string
	logger      log.Logger

	evaluated  atomic.Uint64
	redirected atomic.Uint64
}

func New(opts Options) *Interceptor {
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Interceptor{
		state:       opts.State,
		blockedPage: opts.BlockedPageURL,
		logger:      logger,
	}
}

// BlockedPageURL returns the redirect target.
func (i *Interceptor) BlockedPageURL() string { return i.blockedPage }

// HandleNavigation decides one navigation or tab-update event. The bool is
// true when the host should redirect the tab.
func (i *Interceptor) HandleNavigation(ctx context.Context, ev domain.NavigationEvent) (domain.Redirect, bool, error) {
	if !ev.Relevant() {
		return domain.Redirect{}, false, nil
	}
	snap, err := i.state.Snapshot(ctx)
	if err != nil {
		return domain.Redirect{}, false, err
	}
	if !snap.Settings.Active() {
		return domain.Redirect{}, false, nil
	}

	i.evaluated.Add(1)
	d := snap.Matcher.Decide(ev.URL)
	if !d.Blocked {
		return domain.Redirect{}, false, nil
	}

	i.redirected.Add(1)
	i.logger.Info(map[string]any{
		"tab_id":  ev.TabID,
		"kind":    string(ev.Kind),
		"host":    d.Host,
		"matched": d.MatchedRule,
		"apex":    d.Apex,
	}, "Blocking and redirecting navigation")
	return domain.Redirect{TabID: ev.TabID, URL: i.blockedPage}, true, nil
}

// Decide evaluates a bare hostname against the current snapshot. Disabled
// blocking always allows.
func (i *Interceptor) Decide(ctx context.Context, host string) (domain.BlockDecision, error) {
	snap, err := i.state.Snapshot(ctx)
	if err != nil {
		return domain.EmptyDecision(), err
	}
	if !snap.Settings.Active() {
		return domain.EmptyDecision(), nil
	}
	i.evaluated.Add(1)
	d := snap.Matcher.DecideHost(host)
	if d.Blocked {
		i.redirected.Add(1)
		i.logger.Debug(map[string]any{"host": d.Host, "matched": d.MatchedRule}, "Blocked host")
	}
	return d, nil
}

func (i *Interceptor) Stats() Stats {
	return Stats{Evaluated: i.evaluated.Load(), Redirected: i.redirected.Load()}
}
