package domain

// NavigationKind identifies which host hook produced a NavigationEvent.
type NavigationKind string

const (
	// NavigationCommitted is a committed navigation; only the top frame counts.
	NavigationCommitted NavigationKind = "committed"
	// NavigationUpdated is a tab update; only updates that carry a URL count.
	NavigationUpdated NavigationKind = "updated"
)

// MainFrameID is the frame id of a tab's top-level document.
const MainFrameID = 0

// NavigationEvent is one invocation of an interception hook.
type NavigationEvent struct {
	TabID   int            `json:"tabId"`
	FrameID int            `json:"frameId"`
	URL     string         `json:"url"`
	Kind    NavigationKind `json:"kind"`
}

// Relevant reports whether the event should be evaluated at all.
// An empty Kind is treated as committed.
func (e NavigationEvent) Relevant() bool {
	if e.URL == "" {
		return false
	}
	if e.Kind == NavigationUpdated {
		return true
	}
	return e.FrameID == MainFrameID
}

// Redirect instructs the host to send a tab to URL. Issuing it twice for the
// same tab is harmless.
type Redirect struct {
	TabID int    `json:"tabId"`
	URL   string `json:"url"`
}
