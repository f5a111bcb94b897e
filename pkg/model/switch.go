package model

// Switch is a physical switch under management. Type selects the driver
// ("powerconnect55xx", "delln3000", "nexus", "dellnos9", "ovs", "mock").
type Switch struct {
	ID       int64  `json:"id"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Hostname string `json:"hostname"`
	Username string `json:"username"`
	Password string `json:"-"`

	// DummyVLAN parks the native VLAN of an unconfigured port on drivers
	// that cannot express "no native VLAN" (nexus, delln3000).
	DummyVLAN string `json:"dummy_vlan,omitempty"`

	// InterfaceType is the interface family of the REST driven dellnos9
	// ports, in CLI form (GigabitEthernet, TenGigabitEthernet).
	InterfaceType string `json:"interface_type,omitempty"`
}

// Port is a switch port. Label is the vendor interface name (gi1/0/11, Ethernet1/12, 1/3).
type Port struct {
	ID       int64  `json:"id"`
	Label    string `json:"label"`
	SwitchID int64  `json:"switch_id"`
}

// NIC is a node interface, optionally cabled to one Port.
type NIC struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
	Node  string `json:"node"`
	Port  *Port  `json:"port,omitempty"`
}

// Network is a layer-2 network. NetworkID is the allocator-assigned id,
// which for VLAN-backed networks is the VLAN id in decimal.
type Network struct {
	ID        int64  `json:"id"`
	Label     string `json:"label"`
	NetworkID string `json:"network_id"`
}

// NetworkAttachment records that NIC is attached to Network on Channel.
// At most one attachment exists per (NIC, Channel).
type NetworkAttachment struct {
	NICID   int64   `json:"nic_id"`
	Channel string  `json:"channel"`
	Network Network `json:"network"`
}

// PortNetwork is one (channel, vlan) pair read back from switch hardware.
type PortNetwork struct {
	Channel string `json:"channel"`
	VLAN    string `json:"vlan"`
}
