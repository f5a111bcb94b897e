// Package ovs drives an Open vSwitch bridge through local ovs-vsctl
// invocations. There is no connection to hold: every operation reads the
// port record and issues the commands it needs.
package ovs

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/newtron-network/newtnet/pkg/model"
	"github.com/newtron-network/newtnet/pkg/switches"
	"github.com/newtron-network/newtnet/pkg/util"
)

// Type is the driver name.
const Type = "ovs"

// Options configure the driver.
type Options struct {
	Runner Runner // default ExecRunner{}
}

// Driver returns the OVS driver. The switch hostname names the bridge.
func Driver(opts Options) switches.Driver {
	runner := opts.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	return switches.Driver{
		Name:         Type,
		Capabilities: []switches.Capability{switches.CapNativelessTrunk},
		Open: func(ctx context.Context, sw model.Switch) (switches.Session, error) {
			return &Session{sw: sw, run: runner, log: util.WithSwitch(sw.Label)}, nil
		},
	}
}

// Session applies changes to one bridge.
type Session struct {
	sw  model.Switch
	run Runner
	log *logrus.Entry
}

var (
	_ switches.Session    = (*Session)(nil)
	_ switches.PortReader = (*Session)(nil)
)

func (s *Session) exec(ctx context.Context, op string, args ...string) ([]byte, error) {
	out, err := s.run.Run(ctx, args...)
	if err != nil {
		return nil, switches.NewSwitchError(s.sw.Label, op, err)
	}
	return out, nil
}

// port reads the current record of port.
func (s *Session) port(ctx context.Context, port string) (*Record, error) {
	out, err := s.exec(ctx, "list port "+port, "list", "port", port)
	if err != nil {
		return nil, err
	}
	rec, err := ParseRecord(string(out))
	if err != nil {
		return nil, switches.NewSwitchError(s.sw.Label, "list port "+port, err)
	}
	return rec, nil
}

// ModifyPort applies one channel change.
func (s *Session) ModifyPort(ctx context.Context, c switches.PortChange) error {
	plan, err := switches.PlanChange(c)
	if err != nil {
		return err
	}
	op := "modify_port " + c.Port
	s.log.WithField("port", c.Port).Debugf("Applying %s vlan %s", plan.Op, plan.VLAN)

	switch plan.Op {
	case switches.OpSetNative:
		_, err = s.exec(ctx, op, "set", "port", c.Port, "tag="+plan.VLAN, "vlan_mode=native-untagged")
		return err

	case switches.OpRemoveNative:
		rec, err := s.port(ctx, c.Port)
		if err != nil {
			return err
		}
		if rec.Tag() == "" {
			return nil
		}
		_, err = s.exec(ctx, op, "remove", "port", c.Port, "tag", rec.Tag())
		return err

	case switches.OpEnableVLAN:
		rec, err := s.port(ctx, c.Port)
		if err != nil {
			return err
		}
		trunks := rec.Trunks()
		for _, t := range trunks {
			if t == plan.VLAN {
				return nil
			}
		}
		args := []string{"set", "port", c.Port, "trunks=" + joinVLANs(append(trunks, plan.VLAN))}
		// a port carrying a native VLAN already trunks in native-untagged mode
		if len(trunks) == 0 && rec.Tag() == "" {
			args = append(args, "vlan_mode=trunk")
		}
		_, err = s.exec(ctx, op, args...)
		return err

	case switches.OpDisableVLAN:
		rec, err := s.port(ctx, c.Port)
		if err != nil {
			return err
		}
		if len(rec.Trunks()) == 0 {
			return nil
		}
		_, err = s.exec(ctx, op, "remove", "port", c.Port, "trunks", plan.VLAN)
		return err
	}
	return nil
}

// RevertPort deletes the port from the bridge and adds it back untouched.
func (s *Session) RevertPort(ctx context.Context, port string) error {
	op := "revert_port " + port
	if _, err := s.exec(ctx, op, "del-port", port); err != nil {
		return err
	}
	_, err := s.exec(ctx, op, "add-port", s.sw.Hostname, port, "vlan_mode=native-untagged")
	return err
}

// PortNetworks reports the trunked VLANs and native VLAN of port.
func (s *Session) PortNetworks(ctx context.Context, port string) ([]model.PortNetwork, error) {
	rec, err := s.port(ctx, port)
	if err != nil {
		return nil, err
	}
	var out []model.PortNetwork
	for _, vlan := range rec.Trunks() {
		out = append(out, model.PortNetwork{Channel: model.VLANChannel(vlan), VLAN: vlan})
	}
	if tag := rec.Tag(); tag != "" {
		out = append(out, model.PortNetwork{Channel: model.ChannelNative, VLAN: tag})
	}
	return out, nil
}

// Disconnect does nothing; there is no connection.
func (s *Session) Disconnect(ctx context.Context) error { return nil }

// joinVLANs joins ids in numeric order.
func joinVLANs(ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool {
		a, _ := strconv.Atoi(sorted[i])
		b, _ := strconv.Atoi(sorted[j])
		return a < b
	})
	return strings.Join(sorted, ",")
}
