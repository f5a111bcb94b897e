package deferred

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/newtron-network/newtnet/pkg/model"
	"github.com/newtron-network/newtnet/pkg/switches"
	"github.com/newtron-network/newtnet/pkg/util"
)

// PortReport compares the attachments recorded for one cabled port with
// what the switch reports.
type PortReport struct {
	Port     string
	NIC      string // node/nic
	Expected []model.PortNetwork
	Actual   []model.PortNetwork
	Missing  []model.PortNetwork // recorded but not on the switch
	Extra    []model.PortNetwork // on the switch but not recorded
}

// InSync reports whether the switch matches the recorded attachments.
func (r PortReport) InSync() bool {
	return len(r.Missing) == 0 && len(r.Extra) == 0
}

// Verify reads back every cabled port of the switch and compares it with
// the recorded attachments. It holds the drain lock so no pass changes the
// switch underneath it, and writes nothing.
func (p *Processor) Verify(ctx context.Context, switchLabel string) ([]PortReport, error) {
	ok, err := p.locker.TryLock(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLock, err)
	}
	if !ok {
		return nil, fmt.Errorf("verify %s: %w", switchLabel, util.ErrLocked)
	}
	defer func() {
		if err := p.locker.Unlock(context.WithoutCancel(ctx)); err != nil {
			util.Warnf("verify: releasing lock: %v", err)
		}
	}()

	sw, expected, err := p.expected(ctx, switchLabel)
	if err != nil {
		return nil, err
	}

	sess, err := p.reg.Open(ctx, *sw)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := sess.Disconnect(context.WithoutCancel(ctx)); err != nil {
			util.WithSwitch(sw.Label).Warnf("verify: disconnect: %v", err)
		}
	}()
	reader, ok := sess.(switches.PortReader)
	if !ok {
		return nil, fmt.Errorf("switch type %s cannot read back port configuration", sw.Type)
	}

	reports := make([]PortReport, 0, len(expected))
	for _, r := range expected {
		actual, err := reader.PortNetworks(ctx, r.Port)
		if err != nil {
			return nil, err
		}
		r.Actual = actual
		r.Missing = difference(r.Expected, actual)
		r.Extra = difference(actual, r.Expected)
		if !r.InSync() {
			util.WithSwitch(sw.Label).Warnf("Port %s drifted: missing %v, extra %v", r.Port, r.Missing, r.Extra)
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// expected loads the recorded attachments of every cabled port of a switch.
func (p *Processor) expected(ctx context.Context, switchLabel string) (*model.Switch, []PortReport, error) {
	tx, err := p.store.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	sw, err := tx.SwitchByLabel(ctx, switchLabel)
	if err != nil {
		return nil, nil, err
	}
	bindings, err := tx.PortsForSwitch(ctx, sw.ID)
	if err != nil {
		return nil, nil, err
	}

	var reports []PortReport
	for _, b := range bindings {
		if b.NIC == nil {
			continue
		}
		atts, err := tx.Attachments(ctx, b.NIC.ID)
		if err != nil {
			return nil, nil, err
		}
		r := PortReport{Port: b.Port.Label, NIC: b.NIC.Node + "/" + b.NIC.Label}
		for _, att := range atts {
			r.Expected = append(r.Expected, model.PortNetwork{Channel: att.Channel, VLAN: att.Network.NetworkID})
		}
		sortNetworks(r.Expected)
		reports = append(reports, r)
	}
	return sw, reports, nil
}

// difference returns the entries of a that are not in b.
func difference(a, b []model.PortNetwork) []model.PortNetwork {
	seen := make(map[model.PortNetwork]bool, len(b))
	for _, pn := range b {
		seen[pn] = true
	}
	var out []model.PortNetwork
	for _, pn := range a {
		if !seen[pn] {
			out = append(out, pn)
		}
	}
	return out
}

func sortNetworks(pns []model.PortNetwork) {
	sort.Slice(pns, func(i, j int) bool {
		return strings.Compare(pns[i].Channel, pns[j].Channel) < 0
	})
}
