// Package mock is a switch driver that keeps port configuration in memory.
// It records every call and can be told to fail, which makes it the driver
// of choice for exercising the drain loop.
package mock

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"sync"

	"github.com/newtron-network/newtnet/pkg/model"
	"github.com/newtron-network/newtnet/pkg/switches"
)

// Type is the driver name.
const Type = "mock"

var portRE = regexp.MustCompile(`^(gi|te)\d+/\d+(/\d+)?$`)

// ErrInjected is returned by operations set up to fail.
var ErrInjected = errors.New("injected failure")

// Call is one recorded session operation.
type Call struct {
	Switch  string
	Op      string // "open", "modify_port", "revert_port", "disconnect"
	Port    string
	Channel string
	Network string // network id, "" for a detach
}

// Mock is the shared state behind every session the driver opens.
type Mock struct {
	mu    sync.Mutex
	state map[string]map[string]map[string]string // switch -> port -> channel -> network id
	calls []Call
	fail  map[string]error // keyed by "switch", "switch/port"
	hook  func(ctx context.Context, c Call) error
}

// New returns an empty mock.
func New() *Mock {
	return &Mock{
		state: map[string]map[string]map[string]string{},
		fail:  map[string]error{},
	}
}

// FailOpen makes sessions to sw fail to open.
func (m *Mock) FailOpen(sw string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[sw] = ErrInjected
}

// FailPort makes every operation on port of sw fail.
func (m *Mock) FailPort(sw, port string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[sw+"/"+port] = ErrInjected
}

// OnCall runs fn inside every ModifyPort and RevertPort that reaches the
// hardware, with the session's context. An error from fn fails the call the
// way a switch fault would.
func (m *Mock) OnCall(fn func(ctx context.Context, c Call) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = fn
}

// Clear removes all injected failures.
func (m *Mock) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = map[string]error{}
}

// Set configures a channel directly, bypassing sessions.
func (m *Mock) Set(sw, port, channel, networkID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.portState(sw, port)[channel] = networkID
}

// Calls returns the recorded calls in order.
func (m *Mock) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Count returns how many recorded calls have op.
func (m *Mock) Count(op string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Port returns a copy of the channel map of a port.
func (m *Mock) Port(sw, port string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]string{}
	for ch, net := range m.state[sw][port] {
		out[ch] = net
	}
	return out
}

func (m *Mock) portState(sw, port string) map[string]string {
	ports, ok := m.state[sw]
	if !ok {
		ports = map[string]map[string]string{}
		m.state[sw] = ports
	}
	chans, ok := ports[port]
	if !ok {
		chans = map[string]string{}
		ports[port] = chans
	}
	return chans
}

func (m *Mock) record(c Call) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
}

func (m *Mock) failure(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fail[key]
}

// apply records c and runs the hook and any injected failure for it.
func (m *Mock) apply(ctx context.Context, c Call) error {
	m.record(c)
	m.mu.Lock()
	hook := m.hook
	m.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, c); err != nil {
			return switches.NewSwitchError(c.Switch, c.Op+" "+c.Port, err)
		}
	}
	if err := m.failure(c.Switch + "/" + c.Port); err != nil {
		return switches.NewSwitchError(c.Switch, c.Op+" "+c.Port, err)
	}
	return nil
}

// Driver returns a driver backed by m.
func (m *Mock) Driver() switches.Driver {
	return switches.Driver{
		Name:         Type,
		Capabilities: []switches.Capability{switches.CapNativelessTrunk},
		PortPattern:  portRE,
		Open: func(ctx context.Context, sw model.Switch) (switches.Session, error) {
			m.record(Call{Switch: sw.Label, Op: "open"})
			if err := m.failure(sw.Label); err != nil {
				return nil, err
			}
			return &session{m: m, sw: sw.Label}, nil
		},
	}
}

type session struct {
	m  *Mock
	sw string
}

func (s *session) ModifyPort(ctx context.Context, c switches.PortChange) error {
	if _, err := switches.PlanChange(c); err != nil {
		return err
	}
	call := Call{Switch: s.sw, Op: "modify_port", Port: c.Port, Channel: c.Channel}
	if c.Network != nil {
		call.Network = c.Network.NetworkID
	}
	if err := s.m.apply(ctx, call); err != nil {
		return err
	}

	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	chans := s.m.portState(s.sw, c.Port)
	if c.Network == nil {
		delete(chans, c.Channel)
	} else {
		chans[c.Channel] = c.Network.NetworkID
	}
	return nil
}

func (s *session) RevertPort(ctx context.Context, port string) error {
	if err := s.m.apply(ctx, Call{Switch: s.sw, Op: "revert_port", Port: port}); err != nil {
		return err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	delete(s.m.state[s.sw], port)
	return nil
}

func (s *session) PortNetworks(ctx context.Context, port string) ([]model.PortNetwork, error) {
	if err := s.m.failure(s.sw + "/" + port); err != nil {
		return nil, switches.NewSwitchError(s.sw, "show "+port, err)
	}
	chans := s.m.Port(s.sw, port)
	out := make([]model.PortNetwork, 0, len(chans))
	for ch, net := range chans {
		out = append(out, model.PortNetwork{Channel: ch, VLAN: net})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out, nil
}

func (s *session) Disconnect(ctx context.Context) error {
	s.m.record(Call{Switch: s.sw, Op: "disconnect"})
	return nil
}
