// Package model defines the domain models for deferred switch networking.
package model

import "time"

// ActionType names the operation a NetworkingAction asks for.
type ActionType string

const (
	ActionModifyPort ActionType = "modify_port"
	ActionRevertPort ActionType = "revert_port"
)

// Valid reports whether t is one of the action types the daemon knows how to apply.
func (t ActionType) Valid() bool {
	return t == ActionModifyPort || t == ActionRevertPort
}

// ActionStatus is the lifecycle state of a NetworkingAction.
// PENDING moves to DONE or ERROR exactly once and never back.
type ActionStatus string

const (
	StatusPending ActionStatus = "PENDING"
	StatusDone    ActionStatus = "DONE"
	StatusError   ActionStatus = "ERROR"
)

// Terminal reports whether s is a final state.
func (s ActionStatus) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// NetworkingAction is one entry in the action journal.
type NetworkingAction struct {
	ID        int64        `json:"id"` // monotonic, defines processing order
	UUID      string       `json:"uuid"`
	Type      ActionType   `json:"type"`
	Status    ActionStatus `json:"status"`
	NIC       NIC          `json:"nic"`
	Channel   string       `json:"channel"`
	Network   *Network     `json:"new_network,omitempty"` // nil removes the attachment
	CreatedAt time.Time    `json:"created_at,omitempty"`
}

// OnPort reports whether the action's NIC is bound to a switch port.
func (a *NetworkingAction) OnPort() bool {
	return a.NIC.Port != nil
}

// NetworkID returns the allocator id of the target network, or "" when the
// action removes an attachment.
func (a *NetworkingAction) NetworkID() string {
	if a.Network == nil {
		return ""
	}
	return a.Network.NetworkID
}

// ActionFilter selects journal entries for listing.
type ActionFilter struct {
	Status ActionStatus // empty matches any status
	Switch string       // switch label; empty matches any
	Limit  int
}

// Matches reports whether a satisfies the filter, given the label of the
// switch its port belongs to ("" when the NIC has no port).
func (f ActionFilter) Matches(a *NetworkingAction, switchLabel string) bool {
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.Switch != "" && f.Switch != switchLabel {
		return false
	}
	return true
}
