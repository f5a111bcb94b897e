// Package memstore is an in-memory implementation of store.Store.
//
// Transactions are serialized: Begin waits until the previous transaction has
// finished, then works on a private copy of the data that Commit publishes.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/newtron-network/newtnet/pkg/model"
	"github.com/newtron-network/newtnet/pkg/store"
)

type attKey struct {
	nicID   int64
	channel string
}

type actionRow struct {
	action model.NetworkingAction
	nicID  int64
}

type data struct {
	switches    map[int64]model.Switch
	ports       map[int64]model.Port
	nics        map[int64]nicRow
	networks    map[int64]model.Network
	attachments map[attKey]model.NetworkAttachment
	actions     []actionRow // ascending id
	nextID      int64
}

type nicRow struct {
	nic    model.NIC // Port is always nil here
	portID int64     // 0 when unbound
}

func (d *data) clone() *data {
	c := &data{
		switches:    make(map[int64]model.Switch, len(d.switches)),
		ports:       make(map[int64]model.Port, len(d.ports)),
		nics:        make(map[int64]nicRow, len(d.nics)),
		networks:    make(map[int64]model.Network, len(d.networks)),
		attachments: make(map[attKey]model.NetworkAttachment, len(d.attachments)),
		actions:     make([]actionRow, len(d.actions)),
		nextID:      d.nextID,
	}
	for k, v := range d.switches {
		c.switches[k] = v
	}
	for k, v := range d.ports {
		c.ports[k] = v
	}
	for k, v := range d.nics {
		c.nics[k] = v
	}
	for k, v := range d.networks {
		c.networks[k] = v
	}
	for k, v := range d.attachments {
		c.attachments[k] = v
	}
	copy(c.actions, d.actions)
	return c
}

// Store is an in-memory journal and attachment store.
type Store struct {
	sem  chan struct{}
	data *data
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		sem: make(chan struct{}, 1),
		data: &data{
			switches:    map[int64]model.Switch{},
			ports:       map[int64]model.Port{},
			nics:        map[int64]nicRow{},
			networks:    map[int64]model.Network{},
			attachments: map[attKey]model.NetworkAttachment{},
			nextID:      1,
		},
	}
}

// Begin starts a transaction, waiting for any running one to finish.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &Tx{s: s, d: s.data.clone()}, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// mustUpdate runs fn on a fresh transaction and commits it. The seeding
// helpers built on it panic on failure, as they are only ever called with
// fixture data.
func (s *Store) mustUpdate(fn func(d *data) error) {
	tx, err := s.Begin(context.Background())
	if err != nil {
		panic("memstore: " + err.Error())
	}
	t := tx.(*Tx)
	if err := fn(t.d); err != nil {
		t.Rollback()
		panic("memstore: " + err.Error())
	}
	if err := t.Commit(); err != nil {
		panic("memstore: " + err.Error())
	}
}

func (d *data) allocID() int64 {
	id := d.nextID
	d.nextID++
	return id
}

// AddSwitch inserts sw and returns it with its id assigned. It panics on a
// duplicate label.
func (s *Store) AddSwitch(sw model.Switch) model.Switch {
	s.mustUpdate(func(d *data) error {
		for _, other := range d.switches {
			if other.Label == sw.Label {
				return fmt.Errorf("switch %q already exists", sw.Label)
			}
		}
		sw.ID = d.allocID()
		d.switches[sw.ID] = sw
		return nil
	})
	return sw
}

// AddPort inserts a port on switchID. The switch does not have to exist, so
// a dangling port can be modelled.
func (s *Store) AddPort(switchID int64, label string) model.Port {
	var p model.Port
	s.mustUpdate(func(d *data) error {
		p = model.Port{ID: d.allocID(), Label: label, SwitchID: switchID}
		d.ports[p.ID] = p
		return nil
	})
	return p
}

// AddNIC inserts a NIC on node, cabled to portID (0 for none). It panics if
// portID names no port.
func (s *Store) AddNIC(node, label string, portID int64) model.NIC {
	var n model.NIC
	s.mustUpdate(func(d *data) error {
		n = model.NIC{ID: d.allocID(), Label: label, Node: node}
		if portID != 0 {
			p, ok := d.ports[portID]
			if !ok {
				return store.NotFound("port", portID)
			}
			n.Port = &p
		}
		d.nics[n.ID] = nicRow{nic: model.NIC{ID: n.ID, Label: label, Node: node}, portID: portID}
		return nil
	})
	return n
}

// AddNetwork inserts a network.
func (s *Store) AddNetwork(label, networkID string) model.Network {
	var n model.Network
	s.mustUpdate(func(d *data) error {
		n = model.Network{ID: d.allocID(), Label: label, NetworkID: networkID}
		d.networks[n.ID] = n
		return nil
	})
	return n
}

// Enqueue appends a PENDING action to the journal and returns its id.
// A nil network removes the attachment on channel. It panics if nicID names
// no NIC.
func (s *Store) Enqueue(typ model.ActionType, nicID int64, channel string, network *model.Network) int64 {
	var id int64
	s.mustUpdate(func(d *data) error {
		if _, ok := d.nics[nicID]; !ok {
			return store.NotFound("nic", nicID)
		}
		id = d.allocID()
		a := model.NetworkingAction{
			ID:        id,
			UUID:      uuid.New().String(),
			Type:      typ,
			Status:    model.StatusPending,
			Channel:   channel,
			CreatedAt: time.Now().UTC(),
		}
		if network != nil {
			n := *network
			a.Network = &n
		}
		d.actions = append(d.actions, actionRow{action: a, nicID: nicID})
		return nil
	})
	return id
}

// Tx is a memstore transaction.
type Tx struct {
	s    *Store
	d    *data
	done bool
}

var _ store.Tx = (*Tx)(nil)

func (t *Tx) finish() {
	t.done = true
	<-t.s.sem
}

// Commit publishes the transaction's changes.
func (t *Tx) Commit() error {
	if t.done {
		return store.ErrTxDone
	}
	t.s.data = t.d
	t.finish()
	return nil
}

// Rollback discards the transaction's changes.
func (t *Tx) Rollback() error {
	if t.done {
		return store.ErrTxDone
	}
	t.finish()
	return nil
}

func (t *Tx) resolveNIC(nicID int64) model.NIC {
	row, ok := t.d.nics[nicID]
	if !ok {
		return model.NIC{ID: nicID}
	}
	n := row.nic
	if p, ok := t.d.ports[row.portID]; ok {
		n.Port = &p
	}
	return n
}

func (t *Tx) hydrate(row actionRow) model.NetworkingAction {
	a := row.action
	a.NIC = t.resolveNIC(row.nicID)
	if a.Network != nil {
		n := *a.Network
		a.Network = &n
	}
	return a
}

func (t *Tx) NextPending(ctx context.Context) (*model.NetworkingAction, error) {
	if t.done {
		return nil, store.ErrTxDone
	}
	for _, row := range t.d.actions {
		if row.action.Status == model.StatusPending {
			a := t.hydrate(row)
			return &a, nil
		}
	}
	return nil, nil
}

func (t *Tx) Switch(ctx context.Context, id int64) (*model.Switch, error) {
	if t.done {
		return nil, store.ErrTxDone
	}
	sw, ok := t.d.switches[id]
	if !ok {
		return nil, store.NotFound("switch", id)
	}
	return &sw, nil
}

func (t *Tx) SwitchByLabel(ctx context.Context, label string) (*model.Switch, error) {
	if t.done {
		return nil, store.ErrTxDone
	}
	for _, sw := range t.d.switches {
		if sw.Label == label {
			sw := sw
			return &sw, nil
		}
	}
	return nil, store.NotFound("switch", label)
}

func (t *Tx) ListSwitches(ctx context.Context) ([]model.Switch, error) {
	if t.done {
		return nil, store.ErrTxDone
	}
	out := make([]model.Switch, 0, len(t.d.switches))
	for _, sw := range t.d.switches {
		out = append(out, sw)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}

func (t *Tx) PortsForSwitch(ctx context.Context, switchID int64) ([]store.PortBinding, error) {
	if t.done {
		return nil, store.ErrTxDone
	}
	var out []store.PortBinding
	for _, p := range t.d.ports {
		if p.SwitchID != switchID {
			continue
		}
		b := store.PortBinding{Port: p}
		for _, row := range t.d.nics {
			if row.portID == p.ID {
				n := t.resolveNIC(row.nic.ID)
				b.NIC = &n
				break
			}
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Port.Label < out[j].Port.Label })
	return out, nil
}

func (t *Tx) NativeAttachment(ctx context.Context, nicID int64) (*model.NetworkAttachment, error) {
	if t.done {
		return nil, store.ErrTxDone
	}
	att, ok := t.d.attachments[attKey{nicID, model.ChannelNative}]
	if !ok {
		return nil, nil
	}
	return &att, nil
}

func (t *Tx) Attachments(ctx context.Context, nicID int64) ([]model.NetworkAttachment, error) {
	if t.done {
		return nil, store.ErrTxDone
	}
	var out []model.NetworkAttachment
	for k, att := range t.d.attachments {
		if k.nicID == nicID {
			out = append(out, att)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out, nil
}

func (t *Tx) AddAttachment(ctx context.Context, att model.NetworkAttachment) error {
	if t.done {
		return store.ErrTxDone
	}
	t.d.attachments[attKey{att.NICID, att.Channel}] = att
	return nil
}

func (t *Tx) DeleteAttachment(ctx context.Context, nicID int64, channel string) error {
	if t.done {
		return store.ErrTxDone
	}
	delete(t.d.attachments, attKey{nicID, channel})
	return nil
}

func (t *Tx) DeleteAttachments(ctx context.Context, nicID int64) error {
	if t.done {
		return store.ErrTxDone
	}
	for k := range t.d.attachments {
		if k.nicID == nicID {
			delete(t.d.attachments, k)
		}
	}
	return nil
}

func (t *Tx) SetStatus(ctx context.Context, actionID int64, status model.ActionStatus) error {
	if t.done {
		return store.ErrTxDone
	}
	for i := range t.d.actions {
		row := &t.d.actions[i]
		if row.action.ID != actionID {
			continue
		}
		if err := store.CheckTransition(actionID, row.action.Status, status); err != nil {
			return err
		}
		row.action.Status = status
		return nil
	}
	return store.NotFound("networking action", actionID)
}

func (t *Tx) ListActions(ctx context.Context, filter model.ActionFilter) ([]model.NetworkingAction, error) {
	if t.done {
		return nil, store.ErrTxDone
	}
	var out []model.NetworkingAction
	for _, row := range t.d.actions {
		a := t.hydrate(row)
		label := ""
		if a.NIC.Port != nil {
			if sw, ok := t.d.switches[a.NIC.Port.SwitchID]; ok {
				label = sw.Label
			}
		}
		if !filter.Matches(&a, label) {
			continue
		}
		out = append(out, a)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}
