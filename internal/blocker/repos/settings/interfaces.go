// Package settings defines the durable store for the blocker's settings
// record. Implementations live in sub-packages (bolt, redis); Memory is kept
// here for tests and ephemeral runs.
package settings

import (
	"context"
	"errors"

	"github.com/haukened/distraction-block/internal/blocker/domain"
)

// Keys under which the two fields are persisted.
const (
	KeyBlockedSites = "blockedSites"
	KeyIsBlocking   = "isBlocking"
	KeyUpdated      = "updated"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("settings store closed")

// Store persists the settings record.
// - Load: read both fields; missing keys yield domain.DefaultSettings values
// - Save: write both fields together
// - Close: release resources
type Store interface {
	Load(ctx context.Context) (domain.Settings, error)
	Save(ctx context.Context, s domain.Settings) error
	Close() error
}
