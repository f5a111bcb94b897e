package model

import (
	"regexp"

	"github.com/newtron-network/newtnet/pkg/util"
)

// ChannelNative is the untagged channel of a port.
const ChannelNative = "vlan/native"

var vlanChannelRE = regexp.MustCompile(`^vlan/(\d+)$`)

// Channel is a parsed channel name.
type Channel struct {
	Native bool
	VLAN   string // set when !Native
}

// String renders the channel back to its wire form.
func (c Channel) String() string {
	if c.Native {
		return ChannelNative
	}
	return "vlan/" + c.VLAN
}

// ParseChannel parses "vlan/native" or "vlan/<id>". Any other value is a
// precondition violation: channels are validated before actions are journaled.
func ParseChannel(s string) (Channel, error) {
	if s == ChannelNative {
		return Channel{Native: true}, nil
	}
	m := vlanChannelRE.FindStringSubmatch(s)
	if m == nil {
		return Channel{}, util.NewPreconditionError("parse channel", s,
			"channel must be vlan/native or vlan/<id>", "")
	}
	return Channel{VLAN: m[1]}, nil
}

// VLANChannel returns the tagged channel name for vlan.
func VLANChannel(vlan string) string {
	return "vlan/" + vlan
}

// CheckNetwork verifies that a tagged channel carries the network whose
// allocator id it names. Native channels accept any network, and a nil
// network (detach) always passes.
func (c Channel) CheckNetwork(n *Network) error {
	if c.Native || n == nil {
		return nil
	}
	if n.NetworkID != c.VLAN {
		return util.NewPreconditionError("check channel", c.String(),
			"network must match channel", "network_id "+n.NetworkID)
	}
	return nil
}
