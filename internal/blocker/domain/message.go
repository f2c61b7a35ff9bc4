package domain

import (
	"errors"
	"slices"
)

// Action names a request in the settings message protocol.
type Action string

const (
	ActionUpdateBlocking    Action = "updateBlocking"
	ActionGetBlockingStatus Action = "getBlockingStatus"
)

var ErrUnknownAction = errors.New("unknown action")

// Message is a request from the settings UI to the background process.
// BlockedSites and IsBlocking are only meaningful for updateBlocking.
type Message struct {
	Action       Action   `json:"action"`
	BlockedSites []string `json:"blockedSites,omitempty"`
	IsBlocking   bool     `json:"isBlocking,omitempty"`
}

// Ack answers updateBlocking (and event notifications).
type Ack struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Status answers getBlockingStatus.
type Status struct {
	IsBlocking   bool     `json:"isBlocking"`
	BlockedSites []string `json:"blockedSites"`
}

// UpdateMessage builds the updateBlocking request for s.
func UpdateMessage(s Settings) Message {
	return Message{
		Action:       ActionUpdateBlocking,
		BlockedSites: slices.Clone(s.BlockedSites),
		IsBlocking:   s.IsBlocking,
	}
}

// StatusMessage builds the getBlockingStatus request.
func StatusMessage() Message {
	return Message{Action: ActionGetBlockingStatus}
}

// Validate rejects actions outside the protocol.
func (m Message) Validate() error {
	switch m.Action {
	case ActionUpdateBlocking, ActionGetBlockingStatus:
		return nil
	default:
		return ErrUnknownAction
	}
}

// Settings extracts the record carried by an updateBlocking request.
// A missing list becomes an empty one.
func (m Message) Settings() Settings {
	return Settings{BlockedSites: m.BlockedSites, IsBlocking: m.IsBlocking}.Clone()
}

// StatusOf renders s as a getBlockingStatus response.
func StatusOf(s Settings) Status {
	c := s.Clone()
	return Status{IsBlocking: c.IsBlocking, BlockedSites: c.BlockedSites}
}

// Settings converts a status response back into a record.
func (s Status) Settings() Settings {
	return Settings{BlockedSites: s.BlockedSites, IsBlocking: s.IsBlocking}.Clone()
}

// Failure builds an unsuccessful Ack carrying err's message.
func Failure(err error) Ack {
	return Ack{Success: false, Error: err.Error()}
}
