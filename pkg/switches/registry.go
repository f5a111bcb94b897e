package switches

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/newtron-network/newtnet/pkg/model"
	"github.com/newtron-network/newtnet/pkg/util"
)

// Driver describes one switch type.
type Driver struct {
	Name         string
	Capabilities []Capability

	// PortPattern matches valid interface names; nil accepts any non-empty name.
	PortPattern *regexp.Regexp

	// Validate checks driver specific configuration beyond the required
	// hostname, username and password.
	Validate func(sw model.Switch) error

	Open func(ctx context.Context, sw model.Switch) (Session, error)
}

// Registry maps switch types to drivers.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]Driver
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{drivers: map[string]Driver{}}
}

// Register adds d. It panics on a duplicate name or a driver without Open.
func (r *Registry) Register(d Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.Open == nil {
		panic("switches: driver " + d.Name + " has no Open")
	}
	if _, dup := r.drivers[d.Name]; dup {
		panic("switches: driver " + d.Name + " registered twice")
	}
	r.drivers[d.Name] = d
}

// Lookup returns the driver for a switch type.
func (r *Registry) Lookup(typ string) (Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[typ]
	if !ok {
		return Driver{}, fmt.Errorf("switch type %q: %w", typ, util.ErrNotFound)
	}
	return d, nil
}

// Types lists the registered switch types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Validate checks a switch's configuration. Every driver requires hostname,
// username and password; all problems are reported together.
func (r *Registry) Validate(sw model.Switch) error {
	d, err := r.Lookup(sw.Type)
	if err != nil {
		return err
	}
	return validate(d, sw)
}

func validate(d Driver, sw model.Switch) error {
	v := &util.ValidationBuilder{}
	v.Add(sw.Label != "", "label is required")
	v.Add(sw.Hostname != "", "hostname is required")
	v.Add(sw.Username != "", "username is required")
	v.Add(sw.Password != "", "password is required")
	if d.Validate != nil {
		if err := d.Validate(sw); err != nil {
			v.AddErrorf("%v", err)
		}
	}
	return v.Build()
}

// ValidatePortName checks port against the driver's interface naming.
func (r *Registry) ValidatePortName(typ, port string) error {
	d, err := r.Lookup(typ)
	if err != nil {
		return err
	}
	if port == "" {
		return util.NewValidationError("port name is required")
	}
	if d.PortPattern != nil && !d.PortPattern.MatchString(port) {
		return util.NewValidationError(fmt.Sprintf("%s: invalid port name %q", typ, port))
	}
	return nil
}

// Capabilities returns the capabilities advertised by a switch type.
func (r *Registry) Capabilities(typ string) ([]Capability, error) {
	d, err := r.Lookup(typ)
	if err != nil {
		return nil, err
	}
	return d.Capabilities, nil
}

// Open validates the switch configuration and starts a session, so a
// misconfigured switch never sees a connection attempt. Any failure,
// including an unknown switch type, is a SwitchError.
func (r *Registry) Open(ctx context.Context, sw model.Switch) (Session, error) {
	d, err := r.Lookup(sw.Type)
	if err != nil {
		return nil, NewSwitchError(sw.Label, "connect", err)
	}
	if err := validate(d, sw); err != nil {
		return nil, NewSwitchError(sw.Label, "validate", err)
	}
	s, err := d.Open(ctx, sw)
	if err != nil {
		return nil, NewSwitchError(sw.Label, "connect", err)
	}
	return s, nil
}
