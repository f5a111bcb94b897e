package metrics

import (
	"context"
	"time"

	"github.com/newtron-network/newtnet/pkg/model"
	"github.com/newtron-network/newtnet/pkg/store"
	"github.com/newtron-network/newtnet/pkg/util"
)

// Collector periodically counts journal entries by status.
type Collector struct {
	store    store.Store
	interval time.Duration
}

// NewCollector creates a collector polling st every interval.
func NewCollector(st store.Store, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{store: st, interval: interval}
}

// Run collects until ctx is done.
func (c *Collector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		if err := c.Collect(ctx); err != nil && ctx.Err() == nil {
			util.Warnf("metrics: collecting journal counts: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Collect updates JournalActions once.
func (c *Collector) Collect(ctx context.Context) error {
	tx, err := c.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, status := range []model.ActionStatus{model.StatusPending, model.StatusDone, model.StatusError} {
		actions, err := tx.ListActions(ctx, model.ActionFilter{Status: status})
		if err != nil {
			return err
		}
		JournalActions.WithLabelValues(string(status)).Set(float64(len(actions)))
	}
	return nil
}
