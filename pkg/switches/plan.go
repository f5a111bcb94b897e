package switches

import (
	"github.com/newtron-network/newtnet/pkg/model"
)

// Op is the hardware step a PortChange reduces to.
type Op int

const (
	OpNone Op = iota
	OpSetNative
	OpRemoveNative
	OpEnableVLAN
	OpDisableVLAN
)

func (o Op) String() string {
	switch o {
	case OpSetNative:
		return "set-native"
	case OpRemoveNative:
		return "remove-native"
	case OpEnableVLAN:
		return "enable-vlan"
	case OpDisableVLAN:
		return "disable-vlan"
	}
	return "none"
}

// Plan is the result of reducing a PortChange.
type Plan struct {
	Op   Op
	VLAN string // VLAN the op applies to

	// OldNative is the native VLAN being replaced by OpSetNative, "" on first assignment.
	OldNative string
}

// PlanChange reduces a change to one hardware step. A malformed channel,
// or a tagged channel whose id disagrees with the network, is a
// precondition error.
func PlanChange(c PortChange) (Plan, error) {
	ch, err := model.ParseChannel(c.Channel)
	if err != nil {
		return Plan{}, err
	}
	if err := ch.CheckNetwork(c.Network); err != nil {
		return Plan{}, err
	}

	if ch.Native {
		switch {
		case c.Network != nil:
			p := Plan{Op: OpSetNative, VLAN: c.Network.NetworkID}
			if c.Current != nil {
				p.OldNative = c.Current.NetworkID
			}
			return p, nil
		case c.Current != nil:
			return Plan{Op: OpRemoveNative, VLAN: c.Current.NetworkID}, nil
		}
		return Plan{Op: OpNone}, nil
	}

	switch {
	case c.Network != nil:
		return Plan{Op: OpEnableVLAN, VLAN: ch.VLAN}, nil
	case c.Current != nil:
		return Plan{Op: OpDisableVLAN, VLAN: ch.VLAN}, nil
	}
	return Plan{Op: OpNone}, nil
}
