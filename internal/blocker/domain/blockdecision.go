package domain

// BlockDecision is the outcome of evaluating one hostname against the list.
type BlockDecision struct {
	Blocked     bool   // true if some entry matched
	Host        string // canonical hostname that was evaluated (www. stripped)
	MatchedRule string // the entry that matched, empty when allowed
	Apex        string // registrable domain of Host, for logging
}

// IsBlocked is a convenience accessor.
func (d BlockDecision) IsBlocked() bool { return d.Blocked }

// EmptyDecision returns a not-blocked decision.
func EmptyDecision() BlockDecision { return BlockDecision{Blocked: false} }
