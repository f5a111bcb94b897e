// Package audit records one event per processed networking action.
package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/newtron-network/newtnet/pkg/model"
)

// Event is the audit record of one networking action.
type Event struct {
	ID         string             `json:"id"`
	Timestamp  time.Time          `json:"timestamp"`
	ActionID   int64              `json:"action_id"`
	ActionUUID string             `json:"action_uuid,omitempty"`
	Type       model.ActionType   `json:"type"`
	Switch     string             `json:"switch,omitempty"`
	Port       string             `json:"port,omitempty"`
	Node       string             `json:"node,omitempty"`
	NIC        string             `json:"nic"`
	Channel    string             `json:"channel,omitempty"`
	Network    string             `json:"network,omitempty"` // network label, "" for a detach
	Status     model.ActionStatus `json:"status"`
	Error      string             `json:"error,omitempty"`
	Duration   time.Duration      `json:"duration"`
}

// Filter defines criteria for querying audit events
type Filter struct {
	Switch      string
	NIC         string
	Type        model.ActionType
	Status      model.ActionStatus
	StartTime   time.Time
	EndTime     time.Time
	FailureOnly bool
	Limit       int
	Offset      int
}

// NewEvent starts an event for action a.
func NewEvent(a *model.NetworkingAction) *Event {
	e := &Event{
		ID:         uuid.NewString(),
		Timestamp:  time.Now(),
		ActionID:   a.ID,
		ActionUUID: a.UUID,
		Type:       a.Type,
		Node:       a.NIC.Node,
		NIC:        a.NIC.Label,
		Channel:    a.Channel,
	}
	if a.NIC.Port != nil {
		e.Port = a.NIC.Port.Label
	}
	if a.Network != nil {
		e.Network = a.Network.Label
	}
	return e
}

// WithSwitch sets the switch label
func (e *Event) WithSwitch(label string) *Event {
	e.Switch = label
	return e
}

// WithStatus sets the final status of the action
func (e *Event) WithStatus(status model.ActionStatus) *Event {
	e.Status = status
	return e
}

// WithError records why the action failed
func (e *Event) WithError(err error) *Event {
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDuration sets the time taken to apply the action
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}

// Matches reports whether e satisfies f.
func (f Filter) Matches(e *Event) bool {
	if f.Switch != "" && e.Switch != f.Switch {
		return false
	}
	if f.NIC != "" && e.NIC != f.NIC {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if !f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && e.Timestamp.After(f.EndTime) {
		return false
	}
	if f.FailureOnly && e.Status != model.StatusError {
		return false
	}
	return true
}
