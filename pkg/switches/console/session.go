package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/newtron-network/newtnet/pkg/model"
	"github.com/newtron-network/newtnet/pkg/switches"
	"github.com/newtron-network/newtnet/pkg/util"
)

// DefaultTimeout bounds every wait for console output.
const DefaultTimeout = 30 * time.Second

// Conn is an interactive console stream.
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

// Vendor supplies the command dialect of one switch family. Command
// builders return the lines to send, in order, at the interface prompt.
type Vendor interface {
	// Prime is sent after login so the switch prints a fresh prompt.
	Prime() string

	// Setup runs once after prompt detection, at the main prompt.
	Setup(ctx context.Context, s *Session) error

	EnterInterface(port string) []string
	ExitInterface() []string
	EnableVLAN(vlan string) []string
	DisableVLAN(vlan string) []string
	SetNative(old, new string) []string
	DisableNative(vlan string) []string
	DisablePort() []string

	// SaveConfig copies the running configuration to startup, at the main prompt.
	SaveConfig(ctx context.Context, s *Session) error

	Pager(unlimited bool) string
	ShowPort(port string) string
	PortNetworks(fields map[string]string) []model.PortNetwork
}

// Session is a logged-in console on one switch.
type Session struct {
	sw      model.Switch
	vendor  Vendor
	conn    Conn
	e       *Expecter
	prompts Prompts
	save    bool
	log     *logrus.Entry
}

var (
	_ switches.Session      = (*Session)(nil)
	_ switches.PortReader   = (*Session)(nil)
	_ switches.ConfigReader = (*Session)(nil)
)

// configTrimmer is implemented by vendors whose config dumps start with
// volatile header lines.
type configTrimmer interface {
	TrimConfig(cfg string) string
}

var loginPrompts = []Pattern{
	Literal("User Name:"),
	Re(`[Pp]assword:*`),
	Literal(">"),
	Literal("#"),
}

const (
	loginUser = iota
	loginPassword
	loginUnprivileged
)

// Connect logs in over conn, detects the prompts and runs the vendor setup.
// The session owns conn from here on; on failure conn is closed.
func Connect(ctx context.Context, sw model.Switch, vendor Vendor, conn Conn, timeout time.Duration, save bool) (*Session, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	log := util.WithSwitch(sw.Label)
	s := &Session{
		sw:     sw,
		vendor: vendor,
		conn:   conn,
		e:      NewExpecter(conn, conn, timeout, log),
		save:   save,
		log:    log,
	}
	if err := s.login(ctx); err != nil {
		conn.Close()
		return nil, switches.NewSwitchError(sw.Label, "login", err)
	}
	log.Debugf("Logged in to switch")
	return s, nil
}

func (s *Session) login(ctx context.Context) error {
	m, err := s.e.Expect(ctx, loginPrompts...)
	if err != nil {
		return err
	}
	// Some switches, like the PowerConnect, ask for the username again
	if m.Index == loginUser {
		if err := s.e.SendLine(s.sw.Username); err != nil {
			return err
		}
		if m, err = s.e.Expect(ctx, loginPrompts...); err != nil {
			return err
		}
	}
	if m.Index == loginPassword {
		if err := s.e.Send(s.sw.Password + "\n"); err != nil {
			return err
		}
		if m, err = s.e.Expect(ctx, loginPrompts...); err != nil {
			return err
		}
	}
	if m.Index == loginUnprivileged {
		if err := s.e.SendLine("enable"); err != nil {
			return err
		}
	}

	if err := s.e.SendLine(s.vendor.Prime()); err != nil {
		return err
	}
	if s.prompts, err = DetectPrompts(ctx, s.e); err != nil {
		return err
	}
	return s.vendor.Setup(ctx, s)
}

// Prompts returns the detected prompt patterns.
func (s *Session) Prompts() Prompts { return s.prompts }

// SendLines sends each line in order without waiting for output.
func (s *Session) SendLines(lines ...string) error {
	for _, line := range lines {
		if err := s.e.SendLine(line); err != nil {
			return err
		}
	}
	return nil
}

// Expect waits for one of patterns.
func (s *Session) Expect(ctx context.Context, patterns ...Pattern) (Match, error) {
	return s.e.Expect(ctx, patterns...)
}

// Run sends cmd at the main prompt and returns its output. Stale prompts
// left over from earlier commands are skipped until the echo of cmd is seen.
func (s *Session) Run(ctx context.Context, cmd string) (string, error) {
	if err := s.e.SendLine(cmd); err != nil {
		return "", err
	}
	for {
		m, err := s.e.Expect(ctx, s.prompts.Main)
		if err != nil {
			return "", err
		}
		if i := strings.Index(m.Before, cmd); i >= 0 {
			rest := m.Before[i+len(cmd):]
			return strings.TrimLeft(rest, "\r\n"), nil
		}
	}
}

// onInterface runs lines at the interface prompt of port and returns to the
// main prompt.
func (s *Session) onInterface(ctx context.Context, port string, lines []string) error {
	if err := s.SendLines(s.vendor.EnterInterface(port)...); err != nil {
		return err
	}
	if _, err := s.e.Expect(ctx, s.prompts.Interface); err != nil {
		return err
	}
	if err := s.SendLines(lines...); err != nil {
		return err
	}
	if err := s.SendLines(s.vendor.ExitInterface()...); err != nil {
		return err
	}
	if _, err := s.e.Expect(ctx, s.prompts.Config); err != nil {
		return err
	}
	_, err := s.e.Expect(ctx, s.prompts.Main)
	return err
}

// commands translates a plan into vendor lines.
func (s *Session) commands(p switches.Plan) []string {
	switch p.Op {
	case switches.OpSetNative:
		return s.vendor.SetNative(p.OldNative, p.VLAN)
	case switches.OpRemoveNative:
		return s.vendor.DisableNative(p.VLAN)
	case switches.OpEnableVLAN:
		return s.vendor.EnableVLAN(p.VLAN)
	case switches.OpDisableVLAN:
		return s.vendor.DisableVLAN(p.VLAN)
	}
	return nil
}

// ModifyPort applies one channel change. A change that reduces to nothing
// sends no commands.
func (s *Session) ModifyPort(ctx context.Context, c switches.PortChange) error {
	plan, err := switches.PlanChange(c)
	if err != nil {
		return err
	}
	if plan.Op == switches.OpNone {
		return nil
	}
	s.log.WithField("port", c.Port).Debugf("Applying %s vlan %s", plan.Op, plan.VLAN)
	if err := s.onInterface(ctx, c.Port, s.commands(plan)); err != nil {
		return switches.NewSwitchError(s.sw.Label, "modify_port "+c.Port, err)
	}
	return nil
}

// RevertPort removes all VLANs from port.
func (s *Session) RevertPort(ctx context.Context, port string) error {
	if err := s.onInterface(ctx, port, s.vendor.DisablePort()); err != nil {
		return switches.NewSwitchError(s.sw.Label, "revert_port "+port, err)
	}
	return nil
}

// PortNetworks reads back the VLANs configured on port.
func (s *Session) PortNetworks(ctx context.Context, port string) ([]model.PortNetwork, error) {
	if _, err := s.Run(ctx, s.vendor.Pager(true)); err != nil {
		return nil, switches.NewSwitchError(s.sw.Label, "show "+port, err)
	}
	out, err := s.Run(ctx, s.vendor.ShowPort(port))
	if err != nil {
		return nil, switches.NewSwitchError(s.sw.Label, "show "+port, err)
	}
	if _, err := s.Run(ctx, s.vendor.Pager(false)); err != nil {
		return nil, switches.NewSwitchError(s.sw.Label, "show "+port, err)
	}
	return s.vendor.PortNetworks(ParseFields(out)), nil
}

// Config dumps the running or startup configuration with paging disabled.
func (s *Session) Config(ctx context.Context, kind switches.ConfigKind) (string, error) {
	op := "show " + string(kind) + "-config"
	if _, err := s.Run(ctx, s.vendor.Pager(true)); err != nil {
		return "", switches.NewSwitchError(s.sw.Label, op, err)
	}
	out, err := s.Run(ctx, op)
	if err != nil {
		return "", switches.NewSwitchError(s.sw.Label, op, err)
	}
	if _, err := s.Run(ctx, s.vendor.Pager(false)); err != nil {
		return "", switches.NewSwitchError(s.sw.Label, op, err)
	}
	cfg := strings.TrimRight(strings.ReplaceAll(out, "\r\n", "\n"), "\n ")
	if t, ok := s.vendor.(configTrimmer); ok {
		cfg = t.TrimConfig(cfg)
	}
	return cfg, nil
}

// Disconnect saves the configuration if configured to, logs out and closes
// the connection. Some switches only drop out of privileged mode on the
// first exit, so a second exit is sent when a '>' prompt appears.
func (s *Session) Disconnect(ctx context.Context) error {
	defer s.conn.Close()

	if s.save {
		if err := s.vendor.SaveConfig(ctx, s); err != nil {
			return switches.NewSwitchError(s.sw.Label, "save", err)
		}
		s.log.Debugf("Saved running config")
	}
	if err := s.e.SendLine("exit"); err != nil {
		return switches.NewSwitchError(s.sw.Label, "logout", err)
	}
	m, err := s.e.Expect(ctx, EOF, Literal(">"))
	if err != nil {
		return switches.NewSwitchError(s.sw.Label, "logout", err)
	}
	if m.Index == 1 {
		if err := s.e.SendLine("exit"); err != nil {
			return switches.NewSwitchError(s.sw.Label, "logout", fmt.Errorf("second exit: %w", err))
		}
	}
	s.log.Debugf("Logged out of switch")
	return nil
}
