// Package sqlstore implements store.Store on PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/newtron-network/newtnet/pkg/model"
	"github.com/newtron-network/newtnet/pkg/store"
	"github.com/newtron-network/newtnet/pkg/util"
)

const (
	pqForeignKeyViolation = "23503"
)

// Store is a PostgreSQL-backed store.Store.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "could not open database")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "could not reach database")
	}
	return New(db), nil
}

// New wraps an existing database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for migrations and locking.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "could not start transaction")
	}
	return &Tx{tx: tx}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Tx is a database transaction.
type Tx struct {
	tx *sql.Tx
}

var _ store.Tx = (*Tx)(nil)

func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		if err == sql.ErrTxDone {
			return store.ErrTxDone
		}
		return errors.Wrap(err, "could not commit transaction")
	}
	return nil
}

func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		if err == sql.ErrTxDone {
			return store.ErrTxDone
		}
		return errors.Wrap(err, "could not rollback transaction")
	}
	return nil
}

const actionColumns = `
	a.id, a.uuid, a.type, a.status, a.channel, a.created_at,
	n.id, n.label, n.node,
	p.id, p.label, p.switch_id,
	net.id, net.label, net.network_id`

const actionJoins = `
	FROM networking_actions a
	JOIN nics n ON n.id = a.nic_id
	LEFT JOIN ports p ON p.id = n.port_id
	LEFT JOIN networks net ON net.id = a.new_network_id`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAction(row rowScanner) (*model.NetworkingAction, error) {
	var (
		a                             model.NetworkingAction
		typ, status                   string
		portID, portSwitch            sql.NullInt64
		portLabel                     sql.NullString
		netID                         sql.NullInt64
		netLabel, netNetworkID, uuidv sql.NullString
		createdAt                     time.Time
	)
	err := row.Scan(
		&a.ID, &uuidv, &typ, &status, &a.Channel, &createdAt,
		&a.NIC.ID, &a.NIC.Label, &a.NIC.Node,
		&portID, &portLabel, &portSwitch,
		&netID, &netLabel, &netNetworkID,
	)
	if err != nil {
		return nil, err
	}
	a.UUID = uuidv.String
	a.Type = model.ActionType(typ)
	a.Status = model.ActionStatus(status)
	a.CreatedAt = createdAt
	if portID.Valid {
		a.NIC.Port = &model.Port{ID: portID.Int64, Label: portLabel.String, SwitchID: portSwitch.Int64}
	}
	if netID.Valid {
		a.Network = &model.Network{ID: netID.Int64, Label: netLabel.String, NetworkID: netNetworkID.String}
	}
	return &a, nil
}

// NextPending locks the oldest PENDING row for the rest of the transaction.
func (t *Tx) NextPending(ctx context.Context) (*model.NetworkingAction, error) {
	row := t.tx.QueryRowContext(ctx, "SELECT"+actionColumns+actionJoins+`
	WHERE a.status = 'PENDING'
	ORDER BY a.id ASC
	LIMIT 1
	FOR UPDATE OF a`)
	a, err := scanAction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "could not fetch next pending action")
	}
	return a, nil
}

func (t *Tx) ListActions(ctx context.Context, filter model.ActionFilter) ([]model.NetworkingAction, error) {
	rows, err := t.tx.QueryContext(ctx, "SELECT"+actionColumns+actionJoins+`
	LEFT JOIN switches s ON s.id = p.switch_id
	WHERE ($1 = '' OR a.status = $1)
	  AND ($2 = '' OR s.label = $2)
	ORDER BY a.id ASC
	LIMIT NULLIF($3, 0)`, string(filter.Status), filter.Switch, filter.Limit)
	if err != nil {
		return nil, errors.Wrap(err, "could not list networking actions")
	}
	defer rows.Close()

	var out []model.NetworkingAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, errors.Wrap(err, "could not scan networking action")
		}
		out = append(out, *a)
	}
	return out, errors.Wrap(rows.Err(), "could not list networking actions")
}

const switchColumns = "id, label, type, hostname, username, password, dummy_vlan, interface_type"

func scanSwitch(row rowScanner) (*model.Switch, error) {
	var (
		sw           model.Switch
		dummy, iface sql.NullString
	)
	if err := row.Scan(&sw.ID, &sw.Label, &sw.Type, &sw.Hostname, &sw.Username, &sw.Password, &dummy, &iface); err != nil {
		return nil, err
	}
	sw.DummyVLAN = dummy.String
	sw.InterfaceType = iface.String
	return &sw, nil
}

func (t *Tx) Switch(ctx context.Context, id int64) (*model.Switch, error) {
	row := t.tx.QueryRowContext(ctx, "SELECT "+switchColumns+" FROM switches WHERE id = $1", id)
	sw, err := scanSwitch(row)
	if err == sql.ErrNoRows {
		return nil, store.NotFound("switch", id)
	}
	return sw, errors.Wrapf(err, "could not fetch switch %d", id)
}

func (t *Tx) SwitchByLabel(ctx context.Context, label string) (*model.Switch, error) {
	row := t.tx.QueryRowContext(ctx, "SELECT "+switchColumns+" FROM switches WHERE label = $1", label)
	sw, err := scanSwitch(row)
	if err == sql.ErrNoRows {
		return nil, store.NotFound("switch", label)
	}
	return sw, errors.Wrapf(err, "could not fetch switch %q", label)
}

func (t *Tx) ListSwitches(ctx context.Context) ([]model.Switch, error) {
	rows, err := t.tx.QueryContext(ctx, "SELECT "+switchColumns+" FROM switches ORDER BY label")
	if err != nil {
		return nil, errors.Wrap(err, "could not list switches")
	}
	defer rows.Close()

	var out []model.Switch
	for rows.Next() {
		sw, err := scanSwitch(rows)
		if err != nil {
			return nil, errors.Wrap(err, "could not scan switch")
		}
		out = append(out, *sw)
	}
	return out, errors.Wrap(rows.Err(), "could not list switches")
}

func (t *Tx) PortsForSwitch(ctx context.Context, switchID int64) ([]store.PortBinding, error) {
	rows, err := t.tx.QueryContext(ctx, `
	SELECT p.id, p.label, p.switch_id, n.id, n.label, n.node
	FROM ports p
	LEFT JOIN nics n ON n.port_id = p.id
	WHERE p.switch_id = $1
	ORDER BY p.label`, switchID)
	if err != nil {
		return nil, errors.Wrapf(err, "could not list ports of switch %d", switchID)
	}
	defer rows.Close()

	var out []store.PortBinding
	for rows.Next() {
		var (
			b                 store.PortBinding
			nicID             sql.NullInt64
			nicLabel, nicNode sql.NullString
		)
		if err := rows.Scan(&b.Port.ID, &b.Port.Label, &b.Port.SwitchID, &nicID, &nicLabel, &nicNode); err != nil {
			return nil, errors.Wrap(err, "could not scan port")
		}
		if nicID.Valid {
			port := b.Port
			b.NIC = &model.NIC{ID: nicID.Int64, Label: nicLabel.String, Node: nicNode.String, Port: &port}
		}
		out = append(out, b)
	}
	return out, errors.Wrapf(rows.Err(), "could not list ports of switch %d", switchID)
}

const attachmentQuery = `
	SELECT na.nic_id, na.channel, net.id, net.label, net.network_id
	FROM network_attachments na
	JOIN networks net ON net.id = na.network_id
	WHERE na.nic_id = $1`

func scanAttachment(row rowScanner) (*model.NetworkAttachment, error) {
	var att model.NetworkAttachment
	err := row.Scan(&att.NICID, &att.Channel, &att.Network.ID, &att.Network.Label, &att.Network.NetworkID)
	if err != nil {
		return nil, err
	}
	return &att, nil
}

func (t *Tx) NativeAttachment(ctx context.Context, nicID int64) (*model.NetworkAttachment, error) {
	row := t.tx.QueryRowContext(ctx, attachmentQuery+" AND na.channel = $2", nicID, model.ChannelNative)
	att, err := scanAttachment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return att, errors.Wrapf(err, "could not fetch native attachment of nic %d", nicID)
}

func (t *Tx) Attachments(ctx context.Context, nicID int64) ([]model.NetworkAttachment, error) {
	rows, err := t.tx.QueryContext(ctx, attachmentQuery+" ORDER BY na.channel", nicID)
	if err != nil {
		return nil, errors.Wrapf(err, "could not list attachments of nic %d", nicID)
	}
	defer rows.Close()

	var out []model.NetworkAttachment
	for rows.Next() {
		att, err := scanAttachment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "could not scan attachment")
		}
		out = append(out, *att)
	}
	return out, errors.Wrapf(rows.Err(), "could not list attachments of nic %d", nicID)
}

// AddAttachment upserts on the (nic_id, channel) unique key.
func (t *Tx) AddAttachment(ctx context.Context, att model.NetworkAttachment) error {
	_, err := t.tx.ExecContext(ctx, `
	INSERT INTO network_attachments (nic_id, network_id, channel)
	VALUES ($1, $2, $3)
	ON CONFLICT (nic_id, channel) DO UPDATE SET network_id = EXCLUDED.network_id`,
		att.NICID, att.Network.ID, att.Channel)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqForeignKeyViolation {
		return errors.Wrapf(util.ErrNotFound, "attachment references missing row (%s)", pqErr.Constraint)
	}
	return errors.Wrapf(err, "could not attach nic %d on %s", att.NICID, att.Channel)
}

func (t *Tx) DeleteAttachment(ctx context.Context, nicID int64, channel string) error {
	_, err := t.tx.ExecContext(ctx, "DELETE FROM network_attachments WHERE nic_id = $1 AND channel = $2", nicID, channel)
	return errors.Wrapf(err, "could not detach nic %d from %s", nicID, channel)
}

func (t *Tx) DeleteAttachments(ctx context.Context, nicID int64) error {
	_, err := t.tx.ExecContext(ctx, "DELETE FROM network_attachments WHERE nic_id = $1", nicID)
	return errors.Wrapf(err, "could not detach nic %d", nicID)
}

// SetStatus only moves PENDING rows; the current status is locked and checked first.
func (t *Tx) SetStatus(ctx context.Context, actionID int64, status model.ActionStatus) error {
	var current string
	row := t.tx.QueryRowContext(ctx, "SELECT status FROM networking_actions WHERE id = $1 FOR UPDATE", actionID)
	if err := row.Scan(&current); err == sql.ErrNoRows {
		return store.NotFound("networking action", actionID)
	} else if err != nil {
		return errors.Wrapf(err, "could not fetch status of action %d", actionID)
	}
	if err := store.CheckTransition(actionID, model.ActionStatus(current), status); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, "UPDATE networking_actions SET status = $1 WHERE id = $2", string(status), actionID)
	return errors.Wrapf(err, "could not set status of action %d", actionID)
}
