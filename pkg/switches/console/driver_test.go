package console

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/newtron-network/newtnet/pkg/model"
	"github.com/newtron-network/newtnet/pkg/switches"
)

type fakeDialer struct {
	t    *testing.T
	fake *fakeSwitch
	err  error
}

func (d fakeDialer) Dial(ctx context.Context, sw model.Switch) (Conn, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.fake.start(d.t), nil
}

func TestValidateDummyVLAN(t *testing.T) {
	reg := switches.NewRegistry()
	reg.Register(PowerConnect55xx(Options{}))
	reg.Register(DellN3000(Options{}))
	reg.Register(Nexus(Options{}))

	tests := []struct {
		typ     string
		dummy   string
		wantErr bool
	}{
		{TypePowerConnect55xx, "", false},
		{TypeDellN3000, "2222", false},
		{TypeDellN3000, "4094", true},
		{TypeDellN3000, "", true},
		{TypeNexus, "0", false},
		{TypeNexus, "4096", false},
		{TypeNexus, "4097", true},
		{TypeNexus, "abc", true},
	}
	for _, tt := range tests {
		sw := testSwitch(tt.dummy)
		sw.Type = tt.typ
		err := reg.Validate(sw)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s dummy %q: Validate = %v, wantErr %v", tt.typ, tt.dummy, err, tt.wantErr)
		}
	}
}

func TestPortPatterns(t *testing.T) {
	reg := switches.NewRegistry()
	reg.Register(DellN3000(Options{}))
	reg.Register(Nexus(Options{}))

	tests := []struct {
		typ, port string
		ok        bool
	}{
		{TypeDellN3000, "gi1/0/3", true},
		{TypeDellN3000, "te1/0/1", true},
		{TypeDellN3000, "Ethernet1/3", false},
		{TypeNexus, "Ethernet1/3", true},
		{TypeNexus, "ethernet101/1/4", true},
		{TypeNexus, "gi1/0/3", false},
	}
	for _, tt := range tests {
		err := reg.ValidatePortName(tt.typ, tt.port)
		if (err == nil) != tt.ok {
			t.Errorf("ValidatePortName(%s, %q) = %v", tt.typ, tt.port, err)
		}
	}
}

func TestDriverOpen(t *testing.T) {
	f := &fakeSwitch{hostname: "sw0", askPassword: true}
	reg := switches.NewRegistry()
	reg.Register(Nexus(Options{Dialer: fakeDialer{t: t, fake: f}, Timeout: 2 * time.Second}))

	sw := testSwitch("2222")
	sw.Type = TypeNexus
	ctx := ctxT(t)
	s, err := reg.Open(ctx, sw)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.ModifyPort(ctx, switches.PortChange{
		Port: "Ethernet1/3", Channel: "vlan/300", Network: &model.Network{NetworkID: "300"},
	}); err != nil {
		t.Fatalf("ModifyPort: %v", err)
	}
	if err := s.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	caps, _ := reg.Capabilities(TypeNexus)
	if len(caps) != 1 || caps[0] != switches.CapNativelessTrunk {
		t.Errorf("Capabilities = %v", caps)
	}
}

func TestDriverOpenDialFailure(t *testing.T) {
	dialErr := errors.New("connection refused")
	reg := switches.NewRegistry()
	reg.Register(PowerConnect55xx(Options{Dialer: fakeDialer{err: dialErr}}))

	sw := testSwitch("")
	sw.Type = TypePowerConnect55xx
	_, err := reg.Open(ctxT(t), sw)
	if !switches.IsSwitchError(err) || !errors.Is(err, dialErr) {
		t.Fatalf("Open = %v, want SwitchError wrapping the dial error", err)
	}
}
