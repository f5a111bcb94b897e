// Package store defines the transactional contract newtnet needs from the
// relational store that holds the action journal and the network attachments.
//
// Every journal read and write happens inside a Tx. The drain loop opens one
// Tx per action, so the status of each action is committed individually.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/newtron-network/newtnet/pkg/model"
	"github.com/newtron-network/newtnet/pkg/util"
)

// ErrTxDone is returned by any Tx method called after Commit or Rollback.
var ErrTxDone = errors.New("transaction already committed or rolled back")

// Store opens transactions against the journal and attachment store.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	Close() error
}

// Tx is one unit of work. Nothing written through a Tx is visible to other
// transactions until Commit returns nil.
type Tx interface {
	// NextPending returns the PENDING action with the smallest id, or nil.
	NextPending(ctx context.Context) (*model.NetworkingAction, error)

	// Switch returns the switch with the given id. A missing switch is an
	// error wrapping util.ErrNotFound.
	Switch(ctx context.Context, id int64) (*model.Switch, error)
	SwitchByLabel(ctx context.Context, label string) (*model.Switch, error)
	// ListSwitches returns every switch ordered by label.
	ListSwitches(ctx context.Context) ([]model.Switch, error)
	PortsForSwitch(ctx context.Context, switchID int64) ([]PortBinding, error)

	// NativeAttachment returns the attachment on the native channel of nicID, or nil.
	NativeAttachment(ctx context.Context, nicID int64) (*model.NetworkAttachment, error)
	Attachments(ctx context.Context, nicID int64) ([]model.NetworkAttachment, error)

	// AddAttachment creates or replaces the attachment for (NICID, Channel).
	AddAttachment(ctx context.Context, att model.NetworkAttachment) error
	DeleteAttachment(ctx context.Context, nicID int64, channel string) error
	DeleteAttachments(ctx context.Context, nicID int64) error

	SetStatus(ctx context.Context, actionID int64, status model.ActionStatus) error
	ListActions(ctx context.Context, filter model.ActionFilter) ([]model.NetworkingAction, error)

	Commit() error
	Rollback() error
}

// PortBinding is a port together with the NIC cabled to it, if any.
type PortBinding struct {
	Port model.Port
	NIC  *model.NIC
}

// NotFound builds an error wrapping util.ErrNotFound.
func NotFound(kind string, key interface{}) error {
	return fmt.Errorf("%s %v: %w", kind, key, util.ErrNotFound)
}

// IsNotFound reports whether err wraps util.ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, util.ErrNotFound)
}

// CheckTransition rejects moving an action out of a terminal state or back to PENDING.
func CheckTransition(actionID int64, from, to model.ActionStatus) error {
	if from.Terminal() {
		return util.NewPreconditionError("set status", fmt.Sprintf("action %d", actionID),
			"terminal actions are never modified", fmt.Sprintf("%s -> %s", from, to))
	}
	if !to.Terminal() {
		return util.NewPreconditionError("set status", fmt.Sprintf("action %d", actionID),
			"status may only move to DONE or ERROR", string(to))
	}
	return nil
}
