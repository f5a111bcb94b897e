package console

import (
	"context"

	"github.com/newtron-network/newtnet/pkg/model"
	"github.com/newtron-network/newtnet/pkg/switches"
)

// nexus drives Cisco Nexus 5500 switches. Like the N3000, a port with no
// native VLAN has its native VLAN parked on dummy.
type nexus struct {
	dummy string
}

func (nexus) Prime() string { return "" }

func (nexus) Setup(ctx context.Context, s *Session) error { return nil }

func (nexus) EnterInterface(port string) []string {
	return []string{"config terminal", "int " + port}
}

func (nexus) ExitInterface() []string {
	return []string{"exit", "exit"}
}

func (nexus) EnableVLAN(vlan string) []string {
	return []string{"sw", "sw mode trunk", "sw trunk allowed vlan add " + vlan}
}

func (nexus) DisableVLAN(vlan string) []string {
	return []string{"sw trunk allowed vlan remove " + vlan}
}

func (n nexus) SetNative(old, new string) []string {
	var lines []string
	if old != "" {
		lines = append(lines, n.DisableVLAN(old)...)
	}
	lines = append(lines, "sw trunk native vlan "+new)
	return append(lines, n.EnableVLAN(new)...)
}

func (n nexus) DisableNative(vlan string) []string {
	return append(n.DisableVLAN(vlan), "sw trunk native vlan "+n.dummy)
}

func (n nexus) DisablePort() []string {
	return []string{"sw trunk allowed vlan none", "sw trunk native vlan " + n.dummy}
}

func (nexus) SaveConfig(ctx context.Context, s *Session) error {
	if err := s.SendLines("copy running-config startup-config"); err != nil {
		return err
	}
	_, err := s.Expect(ctx, Literal("Copy complete"))
	return err
}

func (nexus) Pager(unlimited bool) string {
	if unlimited {
		return "terminal length 0"
	}
	return "terminal length 40"
}

func (nexus) ShowPort(port string) string {
	return "show int " + port + " switchport"
}

func (nexus) TrimConfig(cfg string) string { return switches.TrimConfigHeader(cfg) }

func (n nexus) PortNetworks(fields map[string]string) []model.PortNetwork {
	return portNetworks(fields, "Trunking Native Mode VLAN", "Trunking VLANs Allowed", n.dummy)
}
