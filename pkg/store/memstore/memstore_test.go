package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/newtron-network/newtnet/pkg/model"
	"github.com/newtron-network/newtnet/pkg/store"
	"github.com/newtron-network/newtnet/pkg/util"
)

func seed(t *testing.T) (*Store, model.NIC, model.Network) {
	t.Helper()
	s := New()
	sw := s.AddSwitch(model.Switch{Label: "sw0", Type: "mock", Hostname: "sw0.example"})
	p := s.AddPort(sw.ID, "gi1/0/3")
	nic := s.AddNIC("node-01", "eth0", p.ID)
	net := s.AddNetwork("pxe", "102")
	return s, nic, net
}

func begin(t *testing.T, s *Store) store.Tx {
	t.Helper()
	tx, err := s.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	return tx
}

func TestNextPendingOrder(t *testing.T) {
	s, nic, net := seed(t)
	first := s.Enqueue(model.ActionModifyPort, nic.ID, model.ChannelNative, &net)
	second := s.Enqueue(model.ActionModifyPort, nic.ID, model.ChannelNative, nil)
	ctx := context.Background()

	tx := begin(t, s)
	a, err := tx.NextPending(ctx)
	if err != nil || a == nil {
		t.Fatalf("NextPending = %v, %v", a, err)
	}
	if a.ID != first {
		t.Fatalf("NextPending id = %d, want %d", a.ID, first)
	}
	if a.UUID == "" {
		t.Error("enqueued action has no uuid")
	}
	if a.NIC.Port == nil || a.NIC.Port.Label != "gi1/0/3" {
		t.Errorf("NIC port not resolved: %+v", a.NIC)
	}
	if err := tx.SetStatus(ctx, a.ID, model.StatusDone); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx = begin(t, s)
	defer tx.Rollback()
	a, _ = tx.NextPending(ctx)
	if a == nil || a.ID != second {
		t.Fatalf("second NextPending = %+v, want id %d", a, second)
	}
	if a.Network != nil {
		t.Errorf("detach action carries network %+v", a.Network)
	}
}

func TestRollbackDiscards(t *testing.T) {
	s, nic, net := seed(t)
	ctx := context.Background()

	tx := begin(t, s)
	tx.AddAttachment(ctx, model.NetworkAttachment{NICID: nic.ID, Channel: model.ChannelNative, Network: net})
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	tx = begin(t, s)
	defer tx.Rollback()
	att, err := tx.NativeAttachment(ctx, nic.ID)
	if err != nil {
		t.Fatal(err)
	}
	if att != nil {
		t.Errorf("rolled back attachment is visible: %+v", att)
	}
}

func TestTxDone(t *testing.T) {
	s, _, _ := seed(t)
	tx := begin(t, s)
	tx.Commit()
	if err := tx.Commit(); !errors.Is(err, store.ErrTxDone) {
		t.Errorf("second Commit = %v, want ErrTxDone", err)
	}
	if _, err := tx.NextPending(context.Background()); !errors.Is(err, store.ErrTxDone) {
		t.Errorf("NextPending after Commit = %v, want ErrTxDone", err)
	}
}

func TestBeginWaitsForRunningTx(t *testing.T) {
	s, _, _ := seed(t)
	tx := begin(t, s)
	defer tx.Rollback()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Begin(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("concurrent Begin = %v, want deadline exceeded", err)
	}
}

func TestAttachmentPerChannel(t *testing.T) {
	s, nic, net := seed(t)
	other := s.AddNetwork("storage", "200")
	ctx := context.Background()

	tx := begin(t, s)
	defer tx.Rollback()
	tx.AddAttachment(ctx, model.NetworkAttachment{NICID: nic.ID, Channel: model.ChannelNative, Network: net})
	tx.AddAttachment(ctx, model.NetworkAttachment{NICID: nic.ID, Channel: model.ChannelNative, Network: other})
	tx.AddAttachment(ctx, model.NetworkAttachment{NICID: nic.ID, Channel: "vlan/200", Network: other})

	atts, _ := tx.Attachments(ctx, nic.ID)
	if len(atts) != 2 {
		t.Fatalf("got %d attachments, want 2: %+v", len(atts), atts)
	}
	native, _ := tx.NativeAttachment(ctx, nic.ID)
	if native == nil || native.Network.NetworkID != "200" {
		t.Errorf("native attachment not replaced: %+v", native)
	}

	tx.DeleteAttachment(ctx, nic.ID, "vlan/200")
	atts, _ = tx.Attachments(ctx, nic.ID)
	if len(atts) != 1 {
		t.Errorf("after DeleteAttachment got %d attachments", len(atts))
	}
	tx.DeleteAttachments(ctx, nic.ID)
	atts, _ = tx.Attachments(ctx, nic.ID)
	if len(atts) != 0 {
		t.Errorf("after DeleteAttachments got %d attachments", len(atts))
	}
}

func TestSetStatusTransitions(t *testing.T) {
	s, nic, _ := seed(t)
	id := s.Enqueue(model.ActionRevertPort, nic.ID, "", nil)
	ctx := context.Background()

	tx := begin(t, s)
	defer tx.Rollback()
	if err := tx.SetStatus(ctx, id, model.StatusPending); !util.IsPrecondition(err) {
		t.Errorf("PENDING -> PENDING = %v, want precondition error", err)
	}
	if err := tx.SetStatus(ctx, id, model.StatusError); err != nil {
		t.Fatalf("PENDING -> ERROR: %v", err)
	}
	if err := tx.SetStatus(ctx, id, model.StatusDone); !util.IsPrecondition(err) {
		t.Errorf("ERROR -> DONE = %v, want precondition error", err)
	}
	if err := tx.SetStatus(ctx, 9999, model.StatusDone); !store.IsNotFound(err) {
		t.Errorf("unknown action = %v, want not found", err)
	}
}

func TestSwitchLookups(t *testing.T) {
	s, nic, _ := seed(t)
	ctx := context.Background()
	tx := begin(t, s)
	defer tx.Rollback()

	sw, err := tx.SwitchByLabel(ctx, "sw0")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tx.Switch(ctx, sw.ID); err != nil {
		t.Errorf("Switch(%d): %v", sw.ID, err)
	}
	if _, err := tx.Switch(ctx, 4242); !store.IsNotFound(err) {
		t.Errorf("Switch(4242) = %v, want not found", err)
	}

	bindings, err := tx.PortsForSwitch(ctx, sw.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(bindings) != 1 || bindings[0].NIC == nil || bindings[0].NIC.ID != nic.ID {
		t.Errorf("PortsForSwitch = %+v", bindings)
	}

	all, err := tx.ListSwitches(ctx)
	if err != nil || len(all) != 1 || all[0].Label != "sw0" {
		t.Errorf("ListSwitches = %+v, %v", all, err)
	}
}

func TestSeedingRejectsBadRows(t *testing.T) {
	s, _, _ := seed(t)
	tests := []struct {
		name string
		seed func()
	}{
		{"duplicate switch", func() { s.AddSwitch(model.Switch{Label: "sw0", Type: "mock"}) }},
		{"nic on unknown port", func() { s.AddNIC("node-09", "eth0", 4242) }},
		{"action on unknown nic", func() { s.Enqueue(model.ActionRevertPort, 4242, "", nil) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("seeding a bad row did not panic")
				}
			}()
			tt.seed()
		})
	}

	// A failed seed leaves the store usable.
	tx := begin(t, s)
	defer tx.Rollback()
	if a, err := tx.NextPending(context.Background()); err != nil || a != nil {
		t.Errorf("NextPending after failed seeds = %v, %v", a, err)
	}
}

func TestListActionsFilter(t *testing.T) {
	s, nic, net := seed(t)
	loose := s.AddNIC("node-02", "eth0", 0)
	a := s.Enqueue(model.ActionModifyPort, nic.ID, model.ChannelNative, &net)
	s.Enqueue(model.ActionModifyPort, loose.ID, model.ChannelNative, &net)
	s.Enqueue(model.ActionRevertPort, nic.ID, "", nil)
	ctx := context.Background()

	tx := begin(t, s)
	tx.SetStatus(ctx, a, model.StatusDone)
	tx.Commit()

	tx = begin(t, s)
	defer tx.Rollback()
	tests := []struct {
		name   string
		filter model.ActionFilter
		want   int
	}{
		{name: "all", filter: model.ActionFilter{}, want: 3},
		{name: "pending", filter: model.ActionFilter{Status: model.StatusPending}, want: 2},
		{name: "by switch", filter: model.ActionFilter{Switch: "sw0"}, want: 2},
		{name: "limit", filter: model.ActionFilter{Limit: 1}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tx.ListActions(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("ListActions(%+v) returned %d, want %d", tt.filter, len(got), tt.want)
			}
		})
	}
}
