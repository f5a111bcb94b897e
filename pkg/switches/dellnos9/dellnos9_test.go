package dellnos9

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/newtron-network/newtnet/pkg/model"
	"github.com/newtron-network/newtnet/pkg/switches"
)

// fakeSwitch serves the subset of the OS9 REST API the driver uses for a
// single GigabitEthernet port.
type fakeSwitch struct {
	mu       sync.Mutex
	t        *testing.T
	port     string // e.g. 1/3
	up       bool
	native   string
	tagged   map[string]bool
	commands []string
	saves    int
	fail     string // path prefix answered with 500
}

func newFakeSwitch(t *testing.T, port string) *fakeSwitch {
	return &fakeSwitch{t: t, port: port, tagged: map[string]bool{}}
}

func (f *fakeSwitch) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if user, pass, ok := r.BasicAuth(); !ok || user != "admin" || pass != "secret" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if f.fail != "" && strings.HasPrefix(r.URL.Path, f.fail) {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	body, _ := io.ReadAll(r.Body)

	iface := interfacePath + "gige-" + strings.ReplaceAll(f.port, "/", "-")
	switch {
	case r.URL.Path == iface && r.Method == http.MethodGet:
		if _, ok := r.URL.Query()["with-defaults"]; !ok {
			f.t.Errorf("GET %s without with-defaults", r.URL)
		}
		fmt.Fprintf(w, `<interface xmlns="http://www.dell.com/ns/dell:0.1/root"><name>%s</name><shutdown>%v</shutdown></interface>`,
			strings.TrimPrefix(iface, interfacePath), !f.up)
	case r.URL.Path == iface && r.Method == http.MethodPut:
		var doc interfaceDoc
		if err := xml.Unmarshal(body, &doc); err != nil {
			f.t.Errorf("PUT %s: %v", r.URL, err)
		}
		f.up = doc.Shutdown == "false"
		if f.up && (doc.PortMode == nil || !doc.PortMode.Hybrid) {
			f.t.Errorf("PUT %s: port enabled without hybrid mode: %s", r.URL, body)
		}
	case r.URL.Path == cliPath && r.Method == http.MethodPost:
		var in cliInput
		if err := xml.Unmarshal(body, &in); err != nil {
			f.t.Errorf("POST %s: %v", r.URL, err)
		}
		out := f.run(in)
		fmt.Fprintf(w, `<output xmlns="http://www.dell.com/ns/dell:0.1/root"><command>%s</command></output>`, xmlText(out))
	default:
		http.NotFound(w, r)
	}
}

func xmlText(s string) string {
	var b strings.Builder
	xml.EscapeText(&b, []byte(s))
	return b.String()
}

func (f *fakeSwitch) run(in cliInput) string {
	switch {
	case in.Exec != "":
		f.commands = append(f.commands, "exec "+in.Exec)
		if in.Exec == "write" {
			f.saves++
		}
		return ""
	case in.Show != "":
		f.commands = append(f.commands, "show "+in.Show)
		switch in.Show {
		case "interfaces switchport GigabitEthernet " + f.port:
			return f.switchport()
		case "running-config":
			return "Current Configuration ...\r\n! Version 9.14\r\n!\r\nusername admin secret 5 xyz\r\n!\r\ninterface GigabitEthernet " + f.port + "\r\n no shutdown\r\n"
		}
		return ""
	}

	var vlan string
	for _, line := range strings.Split(in.Config, "\r\n") {
		f.commands = append(f.commands, line)
		member := " GigabitEthernet " + f.port
		switch {
		case strings.HasPrefix(line, "interface vlan "):
			vlan = strings.TrimPrefix(line, "interface vlan ")
		case line == "no tagged"+member:
			delete(f.tagged, vlan)
		case line == "tagged"+member:
			f.tagged[vlan] = true
		case line == "no untagged"+member:
			if f.native == vlan {
				f.native = ""
			}
		case line == "untagged"+member:
			if f.native != "" {
				f.t.Errorf("untagged %s while untagged in %s", vlan, f.native)
			}
			f.native = vlan
		case line == "exit":
		default:
			f.t.Errorf("unexpected config line %q", line)
		}
	}
	return ""
}

func (f *fakeSwitch) switchport() string {
	var b strings.Builder
	b.WriteString("Codes:  U - Untagged, T - Tagged\r\n")
	b.WriteString("        x - Dot1x untagged, X - Dot1x tagged\r\n\r\n")
	b.WriteString("Name: GigabitEthernet " + f.port + "\r\n")
	b.WriteString("802.1QTagged: Hybrid\r\nVlan membership:\r\nQ       Vlans\r\n")
	if f.native != "" {
		b.WriteString("U       " + f.native + "\r\n")
	}
	if len(f.tagged) > 0 {
		var vlans []string
		for v := range f.tagged {
			vlans = append(vlans, v)
		}
		sort.Strings(vlans)
		b.WriteString("T       " + strings.Join(vlans, ",") + "\r\n")
	}
	if f.native != "" {
		b.WriteString("\r\nNative VlanId:     " + f.native + ".\r\n")
	}
	return b.String()
}

var sw0 = model.Switch{
	Label:         "sw0",
	Type:          Type,
	Username:      "admin",
	Password:      "secret",
	InterfaceType: "GigabitEthernet",
}

func open(t *testing.T, f *fakeSwitch, save bool) *Session {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	sw := sw0
	sw.Hostname = srv.URL
	reg := switches.NewRegistry()
	reg.Register(Driver(Options{Client: srv.Client(), Save: save}))
	sess, err := reg.Open(context.Background(), sw)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return sess.(*Session)
}

func network(vlan string) *model.Network {
	return &model.Network{Label: "net" + vlan, NetworkID: vlan}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		ifType  string
		wantErr string
	}{
		{"gigabit", "GigabitEthernet", ""},
		{"forty", "fortyGigE", ""},
		{"missing", "", "interface_type must be one of"},
		{"unknown", "Ethernet", `got "Ethernet"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sw := sw0
			sw.Hostname = "sw0.example"
			sw.InterfaceType = tt.ifType
			err := validate(sw)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("validate() = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("validate() = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestNames(t *testing.T) {
	s := &Session{sw: model.Switch{InterfaceType: "TenGigabitEthernet"}, prefix: interfacePrefixes["TenGigabitEthernet"]}
	if got := s.interfaceName("1/3/2"); got != "tengig-1-3-2" {
		t.Errorf("interfaceName = %q", got)
	}
	if got := s.member("1/3"); got != "TenGigabitEthernet 1/3" {
		t.Errorf("member = %q", got)
	}
	if got := baseURL("sw0.example/"); got != "https://sw0.example" {
		t.Errorf("baseURL = %q", got)
	}
	if got := baseURL("http://10.0.0.1:8008"); got != "http://10.0.0.1:8008" {
		t.Errorf("baseURL = %q", got)
	}
}

func TestParseSwitchport(t *testing.T) {
	tests := []struct {
		name       string
		out        string
		wantNative string
		wantTagged []string
	}{
		{
			name:       "hybrid",
			out:        "Codes:  U - Untagged, T - Tagged\r\nQ       Vlans\r\nU       1512\r\nT       1511,1612-1614\r\n\r\nNative VlanId:     1512.\r\n",
			wantNative: "1512",
			wantTagged: []string{"1511", "1612", "1613", "1614"},
		},
		{
			name:       "space separated",
			out:        "T       100 200-201\nNative VlanId: 1.\n",
			wantNative: "1",
			wantTagged: []string{"100", "200", "201"},
		},
		{
			name: "nothing",
			out:  "Name: GigabitEthernet 1/3\r\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			native, tagged, err := parseSwitchport(tt.out)
			if err != nil {
				t.Fatal(err)
			}
			if native != tt.wantNative || !reflect.DeepEqual(tagged, tt.wantTagged) {
				t.Errorf("parseSwitchport() = %q, %v, want %q, %v", native, tagged, tt.wantNative, tt.wantTagged)
			}
		})
	}
}

func TestModifyPort(t *testing.T) {
	ctx := context.Background()
	f := newFakeSwitch(t, "1/3")
	s := open(t, f, true)

	steps := []struct {
		name   string
		change switches.PortChange
		want   []model.PortNetwork
	}{
		{
			name:   "set native",
			change: switches.PortChange{Port: "1/3", Channel: model.ChannelNative, Network: network("102")},
			want:   []model.PortNetwork{{Channel: model.ChannelNative, VLAN: "102"}},
		},
		{
			name:   "add tagged",
			change: switches.PortChange{Port: "1/3", Channel: "vlan/300", Network: network("300")},
			want: []model.PortNetwork{
				{Channel: "vlan/300", VLAN: "300"},
				{Channel: model.ChannelNative, VLAN: "102"},
			},
		},
		{
			name:   "replace native",
			change: switches.PortChange{Port: "1/3", Channel: model.ChannelNative, Network: network("103"), Current: network("102")},
			want: []model.PortNetwork{
				{Channel: "vlan/300", VLAN: "300"},
				{Channel: model.ChannelNative, VLAN: "103"},
			},
		},
		{
			name:   "remove native keeps trunk up",
			change: switches.PortChange{Port: "1/3", Channel: model.ChannelNative, Current: network("103")},
			want:   []model.PortNetwork{{Channel: "vlan/300", VLAN: "300"}},
		},
		{
			name:   "remove tagged",
			change: switches.PortChange{Port: "1/3", Channel: "vlan/300", Current: network("300")},
		},
	}
	for _, st := range steps {
		if err := s.ModifyPort(ctx, st.change); err != nil {
			t.Fatalf("%s: ModifyPort: %v", st.name, err)
		}
		got, err := s.PortNetworks(ctx, "1/3")
		if err != nil {
			t.Fatalf("%s: PortNetworks: %v", st.name, err)
		}
		if !reflect.DeepEqual(got, st.want) {
			t.Errorf("%s: PortNetworks = %v, want %v", st.name, got, st.want)
		}
	}
	if !f.up {
		t.Error("port shut down while removing a tagged vlan")
	}

	if f.saves != 0 {
		t.Errorf("saved %d time(s) before disconnect", f.saves)
	}
	if err := s.Disconnect(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Disconnect(ctx); err != nil {
		t.Fatal(err)
	}
	if f.saves != 1 {
		t.Errorf("saves = %d, want 1", f.saves)
	}
}

func TestRemoveLastNativeShutsPort(t *testing.T) {
	ctx := context.Background()
	f := newFakeSwitch(t, "1/3")
	f.up, f.native = true, "102"
	s := open(t, f, false)

	change := switches.PortChange{Port: "1/3", Channel: model.ChannelNative, Current: network("102")}
	if err := s.ModifyPort(ctx, change); err != nil {
		t.Fatal(err)
	}
	if f.up || f.native != "" {
		t.Errorf("port up=%v native=%q, want shut down with no native", f.up, f.native)
	}
	if err := s.Disconnect(ctx); err != nil {
		t.Fatal(err)
	}
	if f.saves != 0 {
		t.Errorf("saves = %d with save disabled", f.saves)
	}
}

func TestRevertPort(t *testing.T) {
	tests := []struct {
		name     string
		native   string
		tagged   []string
		wantCmds int // config lines posted
	}{
		{"native and tagged", "102", []string{"300", "301"}, 8},
		{"tagged only", "", []string{"300"}, 3},
		{"already clean", "", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFakeSwitch(t, "1/3")
			f.up, f.native = true, tt.native
			for _, v := range tt.tagged {
				f.tagged[v] = true
			}
			s := open(t, f, true)

			if err := s.RevertPort(ctx, "1/3"); err != nil {
				t.Fatal(err)
			}
			if f.up || f.native != "" || len(f.tagged) != 0 {
				t.Errorf("after revert up=%v native=%q tagged=%v", f.up, f.native, f.tagged)
			}
			config := 0
			for _, c := range f.commands {
				if !strings.HasPrefix(c, "show ") && !strings.HasPrefix(c, "exec ") {
					config++
				}
			}
			if config != tt.wantCmds {
				t.Errorf("config lines = %d, want %d: %q", config, tt.wantCmds, f.commands)
			}

			got, err := s.PortNetworks(ctx, "1/3")
			if err != nil || len(got) != 0 {
				t.Errorf("PortNetworks = %v, %v", got, err)
			}
		})
	}
}

func TestConfig(t *testing.T) {
	f := newFakeSwitch(t, "1/3")
	s := open(t, f, false)

	got, err := s.Config(context.Background(), switches.ConfigRunning)
	if err != nil {
		t.Fatal(err)
	}
	want := "username admin secret 5 xyz\n!\ninterface GigabitEthernet 1/3\n no shutdown"
	if got != want {
		t.Errorf("Config() = %q, want %q", got, want)
	}
}

func TestAPIFailures(t *testing.T) {
	tests := []struct {
		name string
		fail string
		run  func(*Session) error
		op   string
	}{
		{
			name: "interface read",
			fail: interfacePath,
			run: func(s *Session) error {
				return s.ModifyPort(context.Background(), switches.PortChange{Port: "1/3", Channel: "vlan/300", Network: network("300")})
			},
			op: "enable-vlan 1/3",
		},
		{
			name: "cli",
			fail: cliPath,
			run:  func(s *Session) error { return s.RevertPort(context.Background(), "1/3") },
			op:   "revert 1/3",
		},
		{
			name: "read back",
			fail: interfacePath,
			run: func(s *Session) error {
				_, err := s.PortNetworks(context.Background(), "1/3")
				return err
			},
			op: "show 1/3",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeSwitch(t, "1/3")
			f.fail = tt.fail
			err := tt.run(open(t, f, true))
			var se *switches.SwitchError
			if !errors.As(err, &se) {
				t.Fatalf("error = %v, want SwitchError", err)
			}
			if se.Op != tt.op || !strings.Contains(err.Error(), "500") {
				t.Errorf("error = %v, want op %q with status 500", err, tt.op)
			}
		})
	}
}

func TestWrongCredentials(t *testing.T) {
	f := newFakeSwitch(t, "1/3")
	s := open(t, f, false)
	s.api.password = "wrong"

	_, err := s.PortNetworks(context.Background(), "1/3")
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("PortNetworks() = %v, want 401", err)
	}
}
