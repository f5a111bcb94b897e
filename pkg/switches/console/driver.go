// Package console implements switch sessions over an interactive CLI
// reached by SSH. The navigation, login and logout logic is shared; each
// switch family supplies its command dialect as a Vendor.
package console

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/newtron-network/newtnet/pkg/model"
	"github.com/newtron-network/newtnet/pkg/switches"
)

// Driver names.
const (
	TypePowerConnect55xx = "powerconnect55xx"
	TypeDellN3000        = "delln3000"
	TypeNexus            = "nexus"
)

var (
	dellPortRE  = regexp.MustCompile(`^(gi|te)\d+/\d+(/\d+)?$`)
	nexusPortRE = regexp.MustCompile(`^(E|e)thernet\d+/\d+(/\d+)?$`)
)

// Options configure a console driver.
type Options struct {
	Dialer  Dialer        // default SSHDialer{}
	Timeout time.Duration // per expect, default DefaultTimeout
	Save    bool          // save running config on disconnect
}

func newDriver(name string, port *regexp.Regexp, validate func(model.Switch) error,
	vendor func(model.Switch) Vendor, opts Options) switches.Driver {

	dialer := opts.Dialer
	if dialer == nil {
		dialer = SSHDialer{}
	}
	return switches.Driver{
		Name:         name,
		Capabilities: []switches.Capability{switches.CapNativelessTrunk},
		PortPattern:  port,
		Validate:     validate,
		Open: func(ctx context.Context, sw model.Switch) (switches.Session, error) {
			conn, err := dialer.Dial(ctx, sw)
			if err != nil {
				return nil, err
			}
			return Connect(ctx, sw, vendor(sw), conn, opts.Timeout, opts.Save)
		},
	}
}

// validateDummyVLAN requires a dummy_vlan in [min, max].
func validateDummyVLAN(min, max int) func(model.Switch) error {
	return func(sw model.Switch) error {
		v, err := strconv.Atoi(sw.DummyVLAN)
		if err != nil || v < min || v > max {
			return fmt.Errorf("dummy_vlan must be an integer in %d-%d, got %q", min, max, sw.DummyVLAN)
		}
		return nil
	}
}

// PowerConnect55xx returns the Dell PowerConnect 5500 driver.
func PowerConnect55xx(opts Options) switches.Driver {
	return newDriver(TypePowerConnect55xx, dellPortRE, nil,
		func(model.Switch) Vendor { return powerConnect55xx{} }, opts)
}

// DellN3000 returns the Dell N3000 driver.
func DellN3000(opts Options) switches.Driver {
	return newDriver(TypeDellN3000, dellPortRE, validateDummyVLAN(1, 4093),
		func(sw model.Switch) Vendor { return dellN3000{dummy: sw.DummyVLAN} }, opts)
}

// Nexus returns the Cisco Nexus driver.
func Nexus(opts Options) switches.Driver {
	return newDriver(TypeNexus, nexusPortRE, validateDummyVLAN(0, 4096),
		func(sw model.Switch) Vendor { return nexus{dummy: sw.DummyVLAN} }, opts)
}
