// Package lock provides the single-writer guard for drain passes.
//
// Only one drain pass may run against a journal at a time. A Processor takes
// its Locker before touching the journal and gives it back when the pass ends;
// a pass that cannot take it does nothing.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
)

// Locker is a non-blocking mutual-exclusion lock.
type Locker interface {
	// TryLock reports whether the lock was acquired. It does not wait.
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// ErrLost reports that a lease lock ended while its holder was still working.
var ErrLost = errors.New("lock lease lost")

// Leased is implemented by Lockers whose hold can end without Unlock.
type Leased interface {
	// Lost is closed when the hold taken by the last successful TryLock ends.
	Lost() <-chan struct{}
}

// Lost returns the loss channel of l, or nil for a lock that is held until
// Unlock. A nil channel never fires in a select.
func Lost(l Locker) <-chan struct{} {
	if ll, ok := l.(Leased); ok {
		return ll.Lost()
	}
	return nil
}

// Local is an in-process Locker for a single daemon.
type Local struct {
	mu sync.Mutex
}

// NewLocal returns an unlocked Local.
func NewLocal() *Local {
	return &Local{}
}

func (l *Local) TryLock(ctx context.Context) (bool, error) {
	return l.mu.TryLock(), nil
}

func (l *Local) Unlock(ctx context.Context) error {
	l.mu.Unlock()
	return nil
}

// Holder returns an identity unique to this process, used to verify that the
// holder releasing a shared lock is the one that took it.
func Holder() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s/%d/%s", host, os.Getpid(), uuid.NewString())
}
