package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/newtron-network/newtnet/pkg/model"
)

func testAction() *model.NetworkingAction {
	return &model.NetworkingAction{
		ID:      7,
		UUID:    "5f0c3a9e-6d7c-4d57-9a43-1f5d0c26b9e1",
		Type:    model.ActionModifyPort,
		Status:  model.StatusPending,
		NIC:     model.NIC{ID: 3, Label: "eth0", Node: "node-1", Port: &model.Port{ID: 2, Label: "gi1/0/3"}},
		Channel: model.ChannelNative,
		Network: &model.Network{ID: 4, Label: "pxe", NetworkID: "102"},
	}
}

func TestNewEvent(t *testing.T) {
	e := NewEvent(testAction()).
		WithSwitch("sw0").
		WithStatus(model.StatusError).
		WithError(errors.New("switch sw0: connect: refused")).
		WithDuration(time.Second)

	if e.ID == "" || e.Timestamp.IsZero() {
		t.Error("ID and Timestamp should be set")
	}
	if e.ActionID != 7 || e.Port != "gi1/0/3" || e.Node != "node-1" || e.NIC != "eth0" {
		t.Errorf("action identity not copied: %+v", e)
	}
	if e.Network != "pxe" || e.Switch != "sw0" || e.Status != model.StatusError {
		t.Errorf("event = %+v", e)
	}
	if e.Error != "switch sw0: connect: refused" || e.Duration != time.Second {
		t.Errorf("event = %+v", e)
	}

	// no port, no network
	a := testAction()
	a.NIC.Port = nil
	a.Network = nil
	e = NewEvent(a).WithError(nil)
	if e.Port != "" || e.Network != "" || e.Error != "" {
		t.Errorf("event = %+v", e)
	}
}

func TestFilterMatches(t *testing.T) {
	now := time.Now()
	e := &Event{Switch: "sw0", NIC: "eth0", Type: model.ActionRevertPort, Status: model.StatusDone, Timestamp: now}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", Filter{}, true},
		{"switch", Filter{Switch: "sw0"}, true},
		{"other switch", Filter{Switch: "sw1"}, false},
		{"nic", Filter{NIC: "eth1"}, false},
		{"type", Filter{Type: model.ActionModifyPort}, false},
		{"status", Filter{Status: model.StatusDone}, true},
		{"failures only", Filter{FailureOnly: true}, false},
		{"window", Filter{StartTime: now.Add(-time.Minute), EndTime: now.Add(time.Minute)}, true},
		{"before window", Filter{StartTime: now.Add(time.Minute)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(e); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFileLoggerQuery(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "sub", "audit.log")
	logger, err := NewFileLogger(logPath, RotationConfig{})
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	defer logger.Close()

	for i, status := range []model.ActionStatus{model.StatusDone, model.StatusError, model.StatusDone} {
		a := testAction()
		a.ID = int64(i + 1)
		if err := logger.Log(NewEvent(a).WithSwitch("sw0").WithStatus(status)); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	all, err := logger.Query(Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(all) != 3 || all[0].ActionID != 1 || all[2].ActionID != 3 {
		t.Fatalf("Query returned %d events in wrong order", len(all))
	}

	failed, _ := logger.Query(Filter{FailureOnly: true})
	if len(failed) != 1 || failed[0].ActionID != 2 {
		t.Errorf("failures = %+v", failed)
	}

	page, _ := logger.Query(Filter{Offset: 1, Limit: 1})
	if len(page) != 1 || page[0].ActionID != 2 {
		t.Errorf("page = %+v", page)
	}
	if past, _ := logger.Query(Filter{Offset: 5}); len(past) != 0 {
		t.Errorf("offset past end returned %d events", len(past))
	}
}

func TestFileLoggerSkipsMalformedLines(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.log")
	content := `{"id":"a","action_id":1,"status":"DONE"}
not json
{"id":"b","action_id":2,"status":"ERROR"}
`
	if err := os.WriteFile(logPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	events, err := ReadTrail(logPath, Filter{})
	if err != nil {
		t.Fatalf("ReadTrail: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("got %d events, want 2", len(events))
	}
}

func TestReadTrailMissing(t *testing.T) {
	events, err := ReadTrail(filepath.Join(t.TempDir(), "none.log"), Filter{})
	if err != nil || events == nil || len(events) != 0 {
		t.Errorf("ReadTrail on a missing file = %v, %v", events, err)
	}
}

func TestFileLoggerRotation(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "audit.jsonl")
	logger, err := NewFileLogger(logPath, RotationConfig{MaxSize: 100, MaxBackups: 2})
	if err != nil {
		t.Fatal(err)
	}
	defer logger.Close()

	for i := 0; i < 6; i++ {
		a := testAction()
		a.ID = int64(i + 1)
		if err := logger.Log(NewEvent(a).WithStatus(model.StatusDone)); err != nil {
			t.Fatalf("Log %d: %v", i, err)
		}
	}

	backups := rotatedFiles(logPath)
	if len(backups) != 2 {
		t.Fatalf("found %d backups, want 2: %v", len(backups), backups)
	}
	for _, b := range backups {
		name := filepath.Base(b)
		if !strings.HasPrefix(name, "audit-") || !strings.HasSuffix(name, ".jsonl") {
			t.Errorf("rotated file %s does not keep the base name and extension", name)
		}
	}

	// every event is larger than MaxSize, so each file holds one
	trail, err := logger.Query(Filter{})
	if err != nil {
		t.Fatal(err)
	}
	var ids []int64
	for _, e := range trail {
		ids = append(ids, e.ActionID)
	}
	if !reflect.DeepEqual(ids, []int64{4, 5, 6}) {
		t.Errorf("trail = %v, want the two backups then the live file", ids)
	}
}

func TestFileLoggerReopenKeepsSize(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	first, err := NewFileLogger(logPath, RotationConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Log(NewEvent(testAction())); err != nil {
		t.Fatal(err)
	}
	first.Close()
	if err := first.Log(NewEvent(testAction())); !errors.Is(err, os.ErrClosed) {
		t.Errorf("Log after Close = %v, want os.ErrClosed", err)
	}

	info, err := os.Stat(logPath)
	if err != nil {
		t.Fatal(err)
	}
	second, err := NewFileLogger(logPath, RotationConfig{MaxSize: info.Size() + 1})
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()
	if err := second.Log(NewEvent(testAction())); err != nil {
		t.Fatal(err)
	}
	if n := len(rotatedFiles(logPath)); n != 1 {
		t.Errorf("reopened logger rotated %d time(s), want 1", n)
	}
}

func TestReadTrailAcrossRotations(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "audit.jsonl")
	base := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

	// two rotated files and the live one, written an hour apart
	write := func(path string, at time.Time, events ...*Event) {
		t.Helper()
		var b strings.Builder
		for _, e := range events {
			line, err := json.Marshal(e)
			if err != nil {
				t.Fatal(err)
			}
			b.Write(line)
			b.WriteByte('\n')
		}
		if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(path, at, at); err != nil {
			t.Fatal(err)
		}
	}
	ev := func(id int64, sw string, status model.ActionStatus, at time.Time) *Event {
		return &Event{ID: fmt.Sprint(id), ActionID: id, Switch: sw, Status: status, Timestamp: at}
	}
	write(rotatedName(logPath, base), base,
		ev(1, "sw0", model.StatusDone, base.Add(-time.Minute)),
		ev(2, "sw1", model.StatusError, base))
	write(rotatedName(logPath, base.Add(time.Hour)), base.Add(time.Hour),
		ev(3, "sw0", model.StatusError, base.Add(time.Hour)))
	write(logPath, base.Add(2*time.Hour),
		ev(4, "sw0", model.StatusDone, base.Add(2*time.Hour)),
		ev(5, "sw1", model.StatusDone, base.Add(2*time.Hour)))
	// not a rotation of audit.jsonl
	write(filepath.Join(dir, "audit-old.jsonl"), base, ev(99, "sw0", model.StatusDone, base))

	tests := []struct {
		name   string
		filter Filter
		want   []int64
	}{
		{"all", Filter{}, []int64{1, 2, 3, 4, 5}},
		{"one switch", Filter{Switch: "sw0"}, []int64{1, 3, 4}},
		{"failures", Filter{FailureOnly: true}, []int64{2, 3}},
		{"since", Filter{StartTime: base.Add(30 * time.Minute)}, []int64{3, 4, 5}},
		{"page across files", Filter{Offset: 1, Limit: 3}, []int64{2, 3, 4}},
		{"page of one switch", Filter{Switch: "sw0", Offset: 1, Limit: 1}, []int64{3}},
		{"offset past end", Filter{Offset: 9}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := ReadTrail(logPath, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			var ids []int64
			for _, e := range events {
				ids = append(ids, e.ActionID)
			}
			if !reflect.DeepEqual(ids, tt.want) {
				t.Errorf("ReadTrail = %v, want %v", ids, tt.want)
			}
		})
	}
}

func TestNop(t *testing.T) {
	var l Logger = Nop{}
	if err := l.Log(NewEvent(testAction())); err != nil {
		t.Fatal(err)
	}
	if events, _ := l.Query(Filter{}); len(events) != 0 {
		t.Errorf("Nop returned %d events", len(events))
	}
}
