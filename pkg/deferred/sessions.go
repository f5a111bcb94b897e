package deferred

import (
	"context"

	"github.com/hashicorp/go-multierror"

	"github.com/newtron-network/newtnet/pkg/metrics"
	"github.com/newtron-network/newtnet/pkg/model"
	"github.com/newtron-network/newtnet/pkg/switches"
	"github.com/newtron-network/newtnet/pkg/util"
)

// sessionCache holds at most one open session per switch for the duration
// of a pass. It is owned by a single pass and never shared.
type sessionCache struct {
	reg      *switches.Registry
	sessions map[string]switches.Session
	order    []string // open order, for deterministic teardown
}

func newSessionCache(reg *switches.Registry) *sessionCache {
	return &sessionCache{reg: reg, sessions: map[string]switches.Session{}}
}

// get returns the cached session for sw, opening one on first use. A failed
// open is not cached, so the next action for sw tries again.
func (c *sessionCache) get(ctx context.Context, sw model.Switch) (switches.Session, error) {
	if s, ok := c.sessions[sw.Label]; ok {
		return s, nil
	}
	s, err := c.reg.Open(ctx, sw)
	if err != nil {
		return nil, err
	}
	metrics.SessionsOpened.WithLabelValues(sw.Label).Inc()
	util.WithSwitch(sw.Label).Debugf("Opened %s session", sw.Type)
	c.sessions[sw.Label] = s
	c.order = append(c.order, sw.Label)
	return s, nil
}

// close disconnects every session, even after a failure, and empties the cache.
func (c *sessionCache) close(ctx context.Context) error {
	var errs *multierror.Error
	for _, label := range c.order {
		if err := c.sessions[label].Disconnect(ctx); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	c.sessions = map[string]switches.Session{}
	c.order = nil
	return errs.ErrorOrNil()
}

func (c *sessionCache) len() int { return len(c.order) }
