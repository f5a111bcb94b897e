// Package dellnos9 drives Dell switches running OS9 through their REST API.
// Interface state is read and written as XML documents; VLAN membership is
// changed by posting CLI commands to the API's command operation. There is
// no connection to hold, so Disconnect only saves the configuration.
package dellnos9

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/newtron-network/newtnet/pkg/model"
	"github.com/newtron-network/newtnet/pkg/switches"
	"github.com/newtron-network/newtnet/pkg/util"
)

// Type is the driver name.
const Type = "dellnos9"

// DefaultTimeout bounds one API request.
const DefaultTimeout = 30 * time.Second

var portRE = regexp.MustCompile(`^\d+/\d+(/\d+)?$`)

// interfacePrefixes maps an interface type to the prefix of its API name.
var interfacePrefixes = map[string]string{
	"GigabitEthernet":           "gige-",
	"TenGigabitEthernet":        "tengig-",
	"TwentyfiveGigabitEthernet": "twentyfivegig-",
	"fortyGigE":                 "fortygig-",
	"peGigabitEthernet":         "pegig-",
	"FiftyGigabitEthernet":      "fiftygig-",
	"HundredGigabitEthernet":    "hundredgig-",
}

var (
	taggedRE = regexp.MustCompile(`(?m)^[ \t]*T[ \t]+([\d,\- \t]+?)[ \t]*\r?$`)
	nativeRE = regexp.MustCompile(`Native\s*Vlan\s*Id:\s*(\d+)`)
)

// Options configure the driver.
type Options struct {
	Client  *http.Client  // default has Timeout
	Timeout time.Duration // default DefaultTimeout, ignored with Client
	Save    bool          // write memory on disconnect after a change
}

// Driver returns the Dell OS9 REST driver. The switch hostname is the API
// base URL; a bare host name is reached over https.
func Driver(opts Options) switches.Driver {
	hc := opts.Client
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return switches.Driver{
		Name:        Type,
		PortPattern: portRE,
		Validate:    validate,
		Open: func(ctx context.Context, sw model.Switch) (switches.Session, error) {
			return &Session{
				sw:     sw,
				prefix: interfacePrefixes[sw.InterfaceType],
				save:   opts.Save,
				log:    util.WithSwitch(sw.Label),
				api: &client{
					http:     hc,
					base:     baseURL(sw.Hostname),
					username: sw.Username,
					password: sw.Password,
				},
			}, nil
		},
	}
}

func validate(sw model.Switch) error {
	if _, ok := interfacePrefixes[sw.InterfaceType]; !ok {
		types := make([]string, 0, len(interfacePrefixes))
		for t := range interfacePrefixes {
			types = append(types, t)
		}
		sort.Strings(types)
		return fmt.Errorf("interface_type must be one of %s, got %q", strings.Join(types, ", "), sw.InterfaceType)
	}
	if _, err := url.Parse(baseURL(sw.Hostname)); err != nil {
		return fmt.Errorf("hostname: %w", err)
	}
	return nil
}

func baseURL(hostname string) string {
	if !strings.Contains(hostname, "://") {
		hostname = "https://" + hostname
	}
	return strings.TrimRight(hostname, "/")
}

// Session applies changes to one switch.
type Session struct {
	sw     model.Switch
	api    *client
	prefix string
	save   bool
	dirty  bool
	log    *logrus.Entry
}

var (
	_ switches.Session      = (*Session)(nil)
	_ switches.PortReader   = (*Session)(nil)
	_ switches.ConfigReader = (*Session)(nil)
)

// interfaceName is the API name of port, e.g. tengig-1-3 for 1/3.
func (s *Session) interfaceName(port string) string {
	return s.prefix + strings.ReplaceAll(port, "/", "-")
}

// member is the CLI argument naming port inside a vlan block.
func (s *Session) member(port string) string {
	return s.sw.InterfaceType + " " + port
}

func (s *Session) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return switches.NewSwitchError(s.sw.Label, op, err)
}

// ModifyPort brings one channel of the port to the requested state.
func (s *Session) ModifyPort(ctx context.Context, c switches.PortChange) error {
	plan, err := switches.PlanChange(c)
	if err != nil {
		return err
	}
	op := plan.Op.String() + " " + c.Port
	s.log.WithFields(logrus.Fields{"port": c.Port, "op": plan.Op}).Debugf("Changing vlan %s", plan.VLAN)

	switch plan.Op {
	case switches.OpNone:
		return nil
	case switches.OpSetNative:
		if err := s.enable(ctx, c.Port); err != nil {
			return s.wrap(op, err)
		}
		if plan.OldNative != "" && plan.OldNative != plan.VLAN {
			if err := s.vlanMember(ctx, plan.OldNative, "no untagged", c.Port); err != nil {
				return s.wrap(op, err)
			}
		}
		err = s.vlanMember(ctx, plan.VLAN, "untagged", c.Port)
	case switches.OpEnableVLAN:
		if err := s.enable(ctx, c.Port); err != nil {
			return s.wrap(op, err)
		}
		err = s.vlanMember(ctx, plan.VLAN, "tagged", c.Port)
	case switches.OpDisableVLAN:
		err = s.vlanMember(ctx, plan.VLAN, "no tagged", c.Port)
	case switches.OpRemoveNative:
		err = s.removeNative(ctx, c.Port)
	}
	if err != nil {
		return s.wrap(op, err)
	}
	s.dirty = true
	return nil
}

// removeNative drops the untagged VLAN the switch reports for port, then
// shuts the port down unless tagged VLANs remain on it.
func (s *Session) removeNative(ctx context.Context, port string) error {
	native, tagged, err := s.switchport(ctx, port)
	if err != nil {
		return err
	}
	if native != "" {
		if err := s.vlanMember(ctx, native, "no untagged", port); err != nil {
			return err
		}
	}
	if len(tagged) > 0 {
		return nil
	}
	return s.api.setInterface(ctx, s.interfaceName(port), false)
}

// RevertPort removes every VLAN from the port and shuts it down.
func (s *Session) RevertPort(ctx context.Context, port string) error {
	op := "revert " + port
	native, tagged, err := s.switchport(ctx, port)
	if err != nil {
		return s.wrap(op, err)
	}
	if len(tagged) > 0 {
		var cmds []string
		for _, vlan := range tagged {
			cmds = append(cmds, "interface vlan "+vlan, "no tagged "+s.member(port), "exit")
		}
		if _, err := s.api.cli(ctx, kindConfig, strings.Join(cmds, "\r\n")); err != nil {
			return s.wrap(op, err)
		}
	}
	if native != "" {
		if err := s.vlanMember(ctx, native, "no untagged", port); err != nil {
			return s.wrap(op, err)
		}
	}
	if err := s.api.setInterface(ctx, s.interfaceName(port), false); err != nil {
		return s.wrap(op, err)
	}
	s.dirty = true
	return nil
}

// PortNetworks reads back the VLANs on port. A shut down port carries none.
func (s *Session) PortNetworks(ctx context.Context, port string) ([]model.PortNetwork, error) {
	op := "show " + port
	on, err := s.api.interfaceEnabled(ctx, s.interfaceName(port))
	if err != nil {
		return nil, s.wrap(op, err)
	}
	if !on {
		return nil, nil
	}
	native, tagged, err := s.switchport(ctx, port)
	if err != nil {
		return nil, s.wrap(op, err)
	}
	var out []model.PortNetwork
	for _, vlan := range tagged {
		out = append(out, model.PortNetwork{Channel: model.VLANChannel(vlan), VLAN: vlan})
	}
	if native != "" {
		out = append(out, model.PortNetwork{Channel: model.ChannelNative, VLAN: native})
	}
	return out, nil
}

// Config dumps the running or startup configuration without its header.
func (s *Session) Config(ctx context.Context, kind switches.ConfigKind) (string, error) {
	out, err := s.api.cli(ctx, kindShow, string(kind)+"-config")
	if err != nil {
		return "", s.wrap("show "+string(kind)+"-config", err)
	}
	out = strings.ReplaceAll(out, "\r\n", "\n")
	return strings.TrimRight(switches.TrimConfigHeader(out), "\n "), nil
}

// Disconnect writes the running configuration when this session changed it.
func (s *Session) Disconnect(ctx context.Context) error {
	if !s.save || !s.dirty {
		return nil
	}
	if _, err := s.api.cli(ctx, kindExec, "write"); err != nil {
		return s.wrap("save", err)
	}
	s.dirty = false
	return nil
}

// enable brings port up as a hybrid switchport if it is shut down.
func (s *Session) enable(ctx context.Context, port string) error {
	name := s.interfaceName(port)
	on, err := s.api.interfaceEnabled(ctx, name)
	if err != nil || on {
		return err
	}
	return s.api.setInterface(ctx, name, true)
}

// vlanMember runs one membership command, e.g. "tagged", inside the vlan block.
func (s *Session) vlanMember(ctx context.Context, vlan, verb, port string) error {
	cmd := "interface vlan " + vlan + "\r\n" + verb + " " + s.member(port)
	_, err := s.api.cli(ctx, kindConfig, cmd)
	return err
}

// switchport returns the untagged VLAN and the tagged VLANs of port.
func (s *Session) switchport(ctx context.Context, port string) (string, []string, error) {
	out, err := s.api.cli(ctx, kindShow, "interfaces switchport "+s.member(port))
	if err != nil {
		return "", nil, err
	}
	return parseSwitchport(out)
}

// parseSwitchport reads the "T" membership lines and the native VLAN id of
// a "show interfaces switchport" listing.
func parseSwitchport(out string) (string, []string, error) {
	var native string
	if m := nativeRE.FindStringSubmatch(out); m != nil {
		native = m[1]
	}
	var tagged []string
	for _, m := range taggedRE.FindAllStringSubmatch(out, -1) {
		spec := strings.Join(strings.FieldsFunc(m[1], func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		}), ",")
		ids, err := util.ExpandVLANRange(spec)
		if err != nil {
			return "", nil, fmt.Errorf("parsing tagged vlans %q: %w", m[1], err)
		}
		for _, id := range ids {
			tagged = append(tagged, fmt.Sprint(id))
		}
	}
	return native, tagged, nil
}
