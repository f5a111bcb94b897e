package console

import (
	"context"

	"github.com/newtron-network/newtnet/pkg/model"
)

// dellBase is the command dialect shared by the Dell drivers.
type dellBase struct{}

func (dellBase) Setup(ctx context.Context, s *Session) error { return nil }

func (dellBase) EnterInterface(port string) []string {
	return []string{"config", "int " + port}
}

func (dellBase) ExitInterface() []string {
	return []string{"exit", "exit"}
}

func (dellBase) EnableVLAN(vlan string) []string {
	return []string{"sw mode trunk", "sw trunk allowed vlan add " + vlan}
}

func (dellBase) DisableVLAN(vlan string) []string {
	return []string{"sw trunk allowed vlan remove " + vlan}
}

func (d dellBase) SetNative(old, new string) []string {
	var lines []string
	if old != "" {
		lines = append(lines, d.DisableVLAN(old)...)
	}
	lines = append(lines, d.EnableVLAN(new)...)
	return append(lines, "sw trunk native vlan "+new)
}

func (d dellBase) DisableNative(vlan string) []string {
	return append(d.DisableVLAN(vlan), "sw trunk native vlan none")
}

func (dellBase) DisablePort() []string {
	return []string{"sw trunk allowed vlan none", "sw trunk native vlan none"}
}

func (dellBase) SaveConfig(ctx context.Context, s *Session) error {
	if err := s.SendLines("copy running-config startup-config"); err != nil {
		return err
	}
	if _, err := s.Expect(ctx, Literal("Overwrite file "), Literal("(y/n) ")); err != nil {
		return err
	}
	if err := s.SendLines("y"); err != nil {
		return err
	}
	_, err := s.Expect(ctx, Literal("Copy succeeded"), Literal("Configuration Saved"))
	return err
}

func (dellBase) Pager(unlimited bool) string {
	if unlimited {
		return "terminal length 0"
	}
	return "terminal length 40"
}

func (dellBase) ShowPort(port string) string {
	return "show int sw " + port
}

// powerConnect55xx drives the Dell PowerConnect 5500 series.
type powerConnect55xx struct {
	dellBase
}

// Prime sends an unknown command: a bare newline makes this switch emit
// ANSI sequences ahead of the prompt.
func (powerConnect55xx) Prime() string { return "some-unrecognized-command" }

func (powerConnect55xx) Pager(unlimited bool) string {
	if unlimited {
		return "terminal datadump"
	}
	return "no terminal datadump"
}

func (powerConnect55xx) PortNetworks(fields map[string]string) []model.PortNetwork {
	return portNetworks(fields, "Trunking Native Mode VLAN", "Trunking VLANs Enabled", "")
}

// dellN3000 drives the Dell N3000 series. The switch will not accept a trunk
// without a native VLAN, so an unassigned native VLAN is parked on dummy.
type dellN3000 struct {
	dellBase
	dummy string
}

func (dellN3000) Prime() string { return "" }

// Setup creates the dummy VLAN.
func (d dellN3000) Setup(ctx context.Context, s *Session) error {
	if err := s.SendLines("config"); err != nil {
		return err
	}
	if _, err := s.Expect(ctx, s.Prompts().Config); err != nil {
		return err
	}
	if err := s.SendLines("vlan "+d.dummy, "exit", "exit"); err != nil {
		return err
	}
	_, err := s.Expect(ctx, s.Prompts().Main)
	return err
}

// DisableNative points the native VLAN at the dummy VLAN. The dummy has to
// be allowed on the trunk while it is made native, then it is removed again.
func (d dellN3000) DisableNative(vlan string) []string {
	return append(d.DisableVLAN(vlan),
		"sw trunk allowed vlan add "+d.dummy,
		"sw trunk native vlan "+d.dummy,
		"sw trunk allowed vlan remove "+d.dummy,
	)
}

func (d dellN3000) DisablePort() []string {
	return []string{
		"sw trunk allowed vlan add " + d.dummy,
		"sw trunk native vlan " + d.dummy,
		"sw trunk allowed vlan remove 1-4093",
	}
}

func (d dellN3000) PortNetworks(fields map[string]string) []model.PortNetwork {
	return portNetworks(fields, "Trunking Mode Native VLAN", "Trunking Mode VLANs Enabled", d.dummy)
}
