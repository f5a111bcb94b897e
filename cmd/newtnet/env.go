package main

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/newtnet/pkg/audit"
	"github.com/newtron-network/newtnet/pkg/deferred"
	"github.com/newtron-network/newtnet/pkg/lock"
	"github.com/newtron-network/newtnet/pkg/settings"
	"github.com/newtron-network/newtnet/pkg/store"
	"github.com/newtron-network/newtnet/pkg/store/memstore"
	"github.com/newtron-network/newtnet/pkg/store/sqlstore"
	"github.com/newtron-network/newtnet/pkg/switches"
	"github.com/newtron-network/newtnet/pkg/switches/console"
	"github.com/newtron-network/newtnet/pkg/switches/dellnos9"
	"github.com/newtron-network/newtnet/pkg/switches/mock"
	"github.com/newtron-network/newtnet/pkg/switches/ovs"
	"github.com/newtron-network/newtnet/pkg/util"
)

// env is everything a command needs to touch the journal and the switches.
// close releases it in reverse order of construction.
type env struct {
	store     store.Store
	registry  *switches.Registry
	processor *deferred.Processor
	closers   []func() error
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			util.Warnf("shutdown: %v", err)
		}
	}
}

// newEnv wires the store, lock, drivers and audit trail from s.
func newEnv(ctx context.Context, s *settings.Settings) (*env, error) {
	e := &env{registry: newRegistry(s)}

	st, err := openStore(ctx, s.Store)
	if err != nil {
		return nil, err
	}
	e.store = st
	e.closers = append(e.closers, st.Close)

	locker, closeLock, err := newLocker(s.Lock, st)
	if err != nil {
		e.close()
		return nil, err
	}
	if closeLock != nil {
		e.closers = append(e.closers, closeLock)
	}

	auditLog, err := newAuditLogger(s.Audit)
	if err != nil {
		e.close()
		return nil, err
	}
	e.closers = append(e.closers, auditLog.Close)

	e.processor = deferred.New(st, e.registry,
		deferred.WithLocker(locker),
		deferred.WithAudit(auditLog),
	)
	return e, nil
}

func openStore(ctx context.Context, s settings.StoreSettings) (store.Store, error) {
	switch s.Driver {
	case "memory":
		util.Warnf("Using the in-memory store: the journal is empty and nothing is persisted")
		return memstore.New(), nil
	case "postgres":
		st, err := sqlstore.Open(ctx, s.DSN)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		return st, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", s.Driver)
}

// newLocker returns the drain lock and, for backends with their own
// connection, a function releasing it.
func newLocker(s settings.LockSettings, st store.Store) (lock.Locker, func() error, error) {
	switch s.Driver {
	case "", "local":
		return lock.NewLocal(), nil, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     s.RedisAddr,
			DB:       s.RedisDB,
			Password: s.RedisPassword,
		})
		return lock.NewRedis(client, s.Key, s.TTL), client.Close, nil
	case "postgres":
		sq, ok := st.(*sqlstore.Store)
		if !ok {
			return nil, nil, fmt.Errorf("lock driver postgres needs the postgres store")
		}
		return sqlstore.NewAdvisoryLock(sq.DB(), 0), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown lock driver %q", s.Driver)
}

// newRegistry registers every switch driver newtnet ships.
func newRegistry(s *settings.Settings) *switches.Registry {
	reg := switches.NewRegistry()

	dialer := console.SSHDialer{Port: s.Switches.SSHPort}
	consoleOpts := func(driver string) console.Options {
		return console.Options{
			Dialer:  dialer,
			Timeout: s.Switches.ConsoleTimeout,
			Save:    s.ShouldSave(driver),
		}
	}
	reg.Register(console.PowerConnect55xx(consoleOpts(console.TypePowerConnect55xx)))
	reg.Register(console.DellN3000(consoleOpts(console.TypeDellN3000)))
	reg.Register(console.Nexus(consoleOpts(console.TypeNexus)))

	reg.Register(dellnos9.Driver(dellnos9.Options{
		Timeout: s.Switches.RESTTimeout,
		Save:    s.ShouldSave(dellnos9.Type),
	}))
	reg.Register(ovs.Driver(ovs.Options{
		Runner: ovs.ExecRunner{Command: s.Switches.OVSCommand, Sudo: s.Switches.OVSSudo},
	}))
	reg.Register(mock.New().Driver())
	return reg
}

func newAuditLogger(s settings.AuditSettings) (audit.Logger, error) {
	if s.Path == "" {
		return audit.Nop{}, nil
	}
	l, err := audit.NewFileLogger(s.Path, audit.RotationConfig{
		MaxSize:    s.MaxSize,
		MaxBackups: s.MaxBackups,
	})
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return l, nil
}
