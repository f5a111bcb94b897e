// Package switches defines the session contract every switch driver
// implements, the single failure kind drivers report, and the registry that
// maps a switch type to its driver.
package switches

import (
	"context"
	"errors"
	"fmt"

	"github.com/newtron-network/newtnet/pkg/model"
)

// Capability names an optional driver behaviour.
type Capability string

const (
	// CapNativelessTrunk means a trunk port may carry tagged VLANs with no native VLAN.
	CapNativelessTrunk Capability = "nativeless-trunk-mode"
)

// PortChange is one modify_port request.
type PortChange struct {
	Port    string         // vendor interface name
	Channel string         // "vlan/native" or "vlan/<id>"
	Network *model.Network // target network; nil removes the attachment
	Current *model.Network // network attached on Channel before the change, if any
}

// Session is a handle on one switch. A session is used by one goroutine at a time.
type Session interface {
	// ModifyPort brings one channel of a port to the requested state.
	ModifyPort(ctx context.Context, change PortChange) error

	// RevertPort removes all VLAN configuration from a port.
	RevertPort(ctx context.Context, port string) error

	// Disconnect releases the session. Safe to call on an idle session.
	Disconnect(ctx context.Context) error
}

// PortReader is implemented by sessions that can read back the VLANs
// actually configured on a port.
type PortReader interface {
	PortNetworks(ctx context.Context, port string) ([]model.PortNetwork, error)
}

// SwitchError is the only failure kind drivers report: connection failures,
// unexpected console output, and failed local commands all surface as one.
type SwitchError struct {
	Switch string
	Op     string
	Err    error
}

func (e *SwitchError) Error() string {
	return fmt.Sprintf("switch %s: %s: %v", e.Switch, e.Op, e.Err)
}

func (e *SwitchError) Unwrap() error {
	return e.Err
}

// NewSwitchError wraps err. An err that already is a SwitchError is returned unchanged.
func NewSwitchError(sw, op string, err error) error {
	var se *SwitchError
	if errors.As(err, &se) {
		return err
	}
	return &SwitchError{Switch: sw, Op: op, Err: err}
}

// Errorf builds a SwitchError from a format string.
func Errorf(sw, op, format string, args ...interface{}) error {
	return &SwitchError{Switch: sw, Op: op, Err: fmt.Errorf(format, args...)}
}

// IsSwitchError reports whether err is (or wraps) a SwitchError.
func IsSwitchError(err error) bool {
	var se *SwitchError
	return errors.As(err, &se)
}
