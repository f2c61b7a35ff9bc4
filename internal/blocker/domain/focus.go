package domain

// FocusKind names the host hook behind a FocusEvent.
type FocusKind string

const (
	FocusWindow FocusKind = "window"
	FocusTab    FocusKind = "tab"
)

// NoneID is the host's sentinel for "no window" or "no tab".
const NoneID = -1

// FocusEvent is a window gaining focus or a tab being activated. Either one
// triggers an opportunistic settings refresh.
type FocusEvent struct {
	Kind FocusKind `json:"kind"`
	ID   int       `json:"id"`
}

// Relevant is false when focus left every window or no tab became active.
func (e FocusEvent) Relevant() bool {
	return e.ID != NoneID
}
