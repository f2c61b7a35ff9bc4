package domain

import "slices"

// Settings is the persisted record: the block list and the blocking flag.
// Both fields are always read and written together.
type Settings struct {
	BlockedSites []string `json:"blockedSites"`
	IsBlocking   bool     `json:"isBlocking"`
}

// DefaultSettings is the first-install record: an empty list, blocking off.
func DefaultSettings() Settings {
	return Settings{BlockedSites: []string{}, IsBlocking: false}
}

// Clone returns a deep copy. A nil list comes back as an empty list.
func (s Settings) Clone() Settings {
	out := Settings{IsBlocking: s.IsBlocking, BlockedSites: slices.Clone(s.BlockedSites)}
	if out.BlockedSites == nil {
		out.BlockedSites = []string{}
	}
	return out
}

// Active reports whether interception has anything to do.
func (s Settings) Active() bool {
	return s.IsBlocking && len(s.BlockedSites) > 0
}

// Equal compares both fields; list order matters.
func (s Settings) Equal(o Settings) bool {
	return s.IsBlocking == o.IsBlocking && slices.Equal(s.BlockedSites, o.BlockedSites)
}
