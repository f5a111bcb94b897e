package sqlstore

import (
	"context"
	"database/sql"
	"sync"

	"github.com/pkg/errors"

	"github.com/newtron-network/newtnet/pkg/lock"
)

// DefaultAdvisoryKey is the pg advisory lock key guarding drain passes.
const DefaultAdvisoryKey int64 = 0x6e65776e6574 // "newnet"

// AdvisoryLock is a lock.Locker on a session-level PostgreSQL advisory lock.
// The lock lives on one pooled connection, which is kept out of the pool
// while the lock is held.
type AdvisoryLock struct {
	db  *sql.DB
	key int64

	mu   sync.Mutex
	conn *sql.Conn
}

var _ lock.Locker = (*AdvisoryLock)(nil)

// NewAdvisoryLock returns a locker on key. A zero key selects DefaultAdvisoryKey.
func NewAdvisoryLock(db *sql.DB, key int64) *AdvisoryLock {
	if key == 0 {
		key = DefaultAdvisoryKey
	}
	return &AdvisoryLock{db: db, key: key}
}

func (l *AdvisoryLock) TryLock(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return false, nil
	}

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, errors.Wrap(err, "could not reserve connection for advisory lock")
	}
	var ok bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.key).Scan(&ok); err != nil {
		conn.Close()
		return false, errors.Wrap(err, "could not take advisory lock")
	}
	if !ok {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

func (l *AdvisoryLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	conn := l.conn
	l.conn = nil
	defer conn.Close()

	var ok bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", l.key).Scan(&ok); err != nil {
		return errors.Wrap(err, "could not release advisory lock")
	}
	if !ok {
		return errors.Errorf("advisory lock %d was not held", l.key)
	}
	return nil
}
