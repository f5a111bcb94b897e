// Package deferred applies the networking action journal to the switches.
//
// A drain pass takes the single-writer lock, then repeatedly claims the
// oldest PENDING action, applies it and commits its terminal status in the
// same transaction, until none remain. Switch sessions are opened lazily and
// reused for every action of the pass that targets the same switch.
package deferred

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/newtron-network/newtnet/pkg/audit"
	"github.com/newtron-network/newtnet/pkg/lock"
	"github.com/newtron-network/newtnet/pkg/metrics"
	"github.com/newtron-network/newtnet/pkg/model"
	"github.com/newtron-network/newtnet/pkg/store"
	"github.com/newtron-network/newtnet/pkg/switches"
	"github.com/newtron-network/newtnet/pkg/util"
)

// ErrLock wraps failures to talk to the drain lock backend.
var ErrLock = errors.New("drain lock unavailable")

// Processor drains the journal.
type Processor struct {
	store  store.Store
	reg    *switches.Registry
	locker lock.Locker
	audit  audit.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithLocker sets the single-writer lock. The default is an in-process lock.
func WithLocker(l lock.Locker) Option {
	return func(p *Processor) { p.locker = l }
}

// WithAudit records an event for every processed action.
func WithAudit(l audit.Logger) Option {
	return func(p *Processor) { p.audit = l }
}

// New creates a Processor over st, opening sessions through reg.
func New(st store.Store, reg *switches.Registry, opts ...Option) *Processor {
	p := &Processor{
		store:  st,
		reg:    reg,
		locker: lock.NewLocal(),
		audit:  audit.Nop{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// result is the outcome of applying one action.
type result struct {
	status model.ActionStatus
	sw     string
	err    error // why the action ended in ERROR
}

// Drain processes every PENDING action in id order. It reports whether any
// action was processed; false means the journal was empty at the start of the
// pass, or another pass holds the lock.
//
// Cancelling ctx stops the pass between actions: the action in flight runs to
// completion and is committed. A precondition violation, a store failure or
// the loss of a lease lock aborts the pass: the in-flight action is rolled
// back and stays PENDING, sessions are closed and the error is returned.
// Actions committed before the failure stay committed and are counted.
func (p *Processor) Drain(ctx context.Context) (bool, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.PassDuration)

	ok, err := p.locker.TryLock(ctx)
	if err != nil {
		metrics.PassesTotal.WithLabelValues("error").Inc()
		return false, fmt.Errorf("%w: %v", ErrLock, err)
	}
	if !ok {
		util.Debugf("drain: another pass holds the lock")
		metrics.PassesTotal.WithLabelValues("locked").Inc()
		return false, nil
	}
	defer func() {
		if err := p.locker.Unlock(context.WithoutCancel(ctx)); err != nil {
			util.Warnf("drain: releasing lock: %v", err)
		}
	}()

	lost := lock.Lost(p.locker)
	work := context.WithoutCancel(ctx)
	cache := newSessionCache(p.reg)
	processed := 0
	var passErr error
	for {
		if passErr = interrupted(ctx, lost); passErr != nil {
			break
		}
		more, err := p.step(work, cache)
		if err != nil {
			passErr = err
			break
		}
		if !more {
			break
		}
		processed++
	}

	util.Debugf("drain: closing %d switch session(s)", cache.len())
	if err := cache.close(work); err != nil {
		util.Warnf("drain: closing switch sessions: %v", err)
	}

	switch {
	case passErr != nil:
		metrics.PassesTotal.WithLabelValues("error").Inc()
		if processed > 0 {
			util.Infof("drain: processed %d action(s) before stopping", processed)
		}
	case processed == 0:
		metrics.PassesTotal.WithLabelValues("idle").Inc()
	default:
		metrics.PassesTotal.WithLabelValues("work").Inc()
		util.Infof("drain: processed %d action(s)", processed)
	}
	return processed > 0, passErr
}

// interrupted reports why the pass must stop before the next action, if it must.
func interrupted(ctx context.Context, lost <-chan struct{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-lost:
		return fmt.Errorf("%w: %w", ErrLock, lock.ErrLost)
	default:
		return nil
	}
}

// step claims and applies the next action in its own transaction. It
// reports false when the journal has nothing PENDING. Drain hands it a
// context without cancellation, so a claimed action is never cut short.
func (p *Processor) step(ctx context.Context, cache *sessionCache) (bool, error) {
	tx, err := p.store.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	a, err := tx.NextPending(ctx)
	if err != nil {
		tx.Rollback()
		return false, fmt.Errorf("reading journal: %w", err)
	}
	if a == nil {
		tx.Rollback()
		return false, nil
	}

	timer := metrics.NewTimer()
	res, err := p.apply(ctx, tx, cache, a)
	if err != nil {
		tx.Rollback()
		return false, fmt.Errorf("action %d: %w", a.ID, err)
	}
	if err := tx.SetStatus(ctx, a.ID, res.status); err != nil {
		tx.Rollback()
		return false, fmt.Errorf("action %d: %w", a.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("action %d: committing: %w", a.ID, err)
	}

	timer.ObserveDurationVec(metrics.ActionDuration, string(a.Type))
	metrics.ActionsTotal.WithLabelValues(string(a.Type), string(res.status)).Inc()
	event := audit.NewEvent(a).
		WithSwitch(res.sw).
		WithStatus(res.status).
		WithError(res.err).
		WithDuration(timer.Duration())
	if err := p.audit.Log(event); err != nil {
		util.Warnf("drain: writing audit event for action %d: %v", a.ID, err)
	}
	return true, nil
}

// apply performs one action. A non-nil error is fatal for the pass; switch
// failures are reported through the result instead.
func (p *Processor) apply(ctx context.Context, tx store.Tx, cache *sessionCache, a *model.NetworkingAction) (result, error) {
	log := util.WithAction(a.ID).WithFields(logrus.Fields{"uuid": a.UUID, "type": a.Type})

	if !a.Type.Valid() {
		log.Warnf("Illegal action type %q; marking ERROR", a.Type)
		return result{status: model.StatusError, err: fmt.Errorf("illegal action type %q", a.Type)}, nil
	}
	if !a.OnPort() {
		log.Warnf("Not modifying NIC %s of node %s; NIC is not on a port", a.NIC.Label, a.NIC.Node)
		return result{status: model.StatusError, err: fmt.Errorf("nic %s is not on a port", a.NIC.Label)}, nil
	}
	if a.Type == model.ActionModifyPort {
		ch, err := model.ParseChannel(a.Channel)
		if err != nil {
			return result{}, err
		}
		if err := ch.CheckNetwork(a.Network); err != nil {
			return result{}, err
		}
	}

	port := a.NIC.Port
	sw, err := tx.Switch(ctx, port.SwitchID)
	if err != nil {
		return result{}, fmt.Errorf("resolving switch of port %s: %w", port.Label, err)
	}
	log = log.WithFields(logrus.Fields{"switch": sw.Label, "port": port.Label})

	var current *model.Network
	if a.Type == model.ActionModifyPort {
		if current, err = p.currentNetwork(ctx, tx, a.NIC.ID, a.Channel); err != nil {
			return result{}, err
		}
		if a.Network == nil && current == nil {
			log.Infof("Nothing attached on %s of port %s; no change", a.Channel, port.Label)
			return result{status: model.StatusDone, sw: sw.Label}, nil
		}
	}

	sess, err := cache.get(ctx, *sw)
	if err == nil {
		switch a.Type {
		case model.ActionModifyPort:
			err = p.modifyPort(ctx, tx, sess, a, current)
		case model.ActionRevertPort:
			err = p.revertPort(ctx, tx, sess, a)
		}
	}
	if err == nil {
		log.Infof("Applied %s on port %s of switch %s", a.Type, port.Label, sw.Label)
		return result{status: model.StatusDone, sw: sw.Label}, nil
	}

	var se *switches.SwitchError
	if !errors.As(err, &se) {
		return result{}, err
	}
	metrics.SwitchErrors.WithLabelValues(sw.Label, se.Op).Inc()
	log.Errorf("%s failed on port %s of switch %s: %v", a.Type, port.Label, sw.Label, err)
	return result{status: model.StatusError, sw: sw.Label, err: err}, nil
}

// modifyPort changes one channel of the port and records the new attachment.
// current is the network attached on the channel before the change.
func (p *Processor) modifyPort(ctx context.Context, tx store.Tx, sess switches.Session, a *model.NetworkingAction, current *model.Network) error {
	change := switches.PortChange{
		Port:    a.NIC.Port.Label,
		Channel: a.Channel,
		Network: a.Network,
		Current: current,
	}
	if err := sess.ModifyPort(ctx, change); err != nil {
		return err
	}

	if a.Network == nil {
		return tx.DeleteAttachment(ctx, a.NIC.ID, a.Channel)
	}
	return tx.AddAttachment(ctx, model.NetworkAttachment{
		NICID:   a.NIC.ID,
		Channel: a.Channel,
		Network: *a.Network,
	})
}

// revertPort clears the port and drops every attachment of its NIC.
func (p *Processor) revertPort(ctx context.Context, tx store.Tx, sess switches.Session, a *model.NetworkingAction) error {
	if err := sess.RevertPort(ctx, a.NIC.Port.Label); err != nil {
		return err
	}
	return tx.DeleteAttachments(ctx, a.NIC.ID)
}

// currentNetwork returns the network attached on channel of nicID, or nil.
func (p *Processor) currentNetwork(ctx context.Context, tx store.Tx, nicID int64, channel string) (*model.Network, error) {
	if channel == model.ChannelNative {
		att, err := tx.NativeAttachment(ctx, nicID)
		if err != nil || att == nil {
			return nil, err
		}
		return &att.Network, nil
	}
	atts, err := tx.Attachments(ctx, nicID)
	if err != nil {
		return nil, err
	}
	for i := range atts {
		if atts[i].Channel == channel {
			return &atts[i].Network, nil
		}
	}
	return nil, nil
}

// Run drains until ctx is done. A pass that did work is followed
// immediately by another; an idle pass sleeps for interval first. Lock
// backend failures are retried; any other pass failure stops the loop.
func (p *Processor) Run(ctx context.Context, interval time.Duration) error {
	util.Infof("drain: running, poll interval %s", interval)
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		worked, err := p.Drain(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			if !errors.Is(err, ErrLock) {
				return err
			}
			util.Warnf("drain: %v", err)
		}
		if worked {
			continue
		}

		timer.Reset(interval)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}
