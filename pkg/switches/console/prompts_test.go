package console

import (
	"context"
	"testing"
	"time"
)

func TestPromptsFor(t *testing.T) {
	p, err := PromptsFor("core-1#")
	if err != nil {
		t.Fatalf("PromptsFor: %v", err)
	}

	tests := []struct {
		name    string
		pattern Pattern
		text    string
		want    bool
	}{
		{"main", p.Main, "\r\ncore-1#", true},
		{"config", p.Config, "core-1(config)#", true},
		{"config is not main", p.Main, "core-1(config)#", false},
		{"interface dell", p.Interface, "core-1(config-if-Gi1/0/3)#", true},
		{"interface nexus", p.Interface, "core-1(config-if)#", true},
		{"interface needs stem", p.Interface, "other(config-if)#", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pattern.re.MatchString(tt.text); got != tt.want {
				t.Errorf("%s matching %q = %v, want %v", tt.pattern, tt.text, got, tt.want)
			}
		})
	}
}

func TestPromptsForRejects(t *testing.T) {
	for _, in := range []string{"", "#", "sw0>", "sw0"} {
		if _, err := PromptsFor(in); err == nil {
			t.Errorf("PromptsFor(%q) succeeded", in)
		}
	}
}

func TestDetectPrompts(t *testing.T) {
	e := newTestExpecter("\x1b[0m\r\n% Unrecognized command\r\n\r\n  sw-lab.5#", time.Second)
	p, err := DetectPrompts(context.Background(), e)
	if err != nil {
		t.Fatalf("DetectPrompts: %v", err)
	}
	if p.Raw != "sw-lab.5#" {
		t.Errorf("Raw = %q, want sw-lab.5#", p.Raw)
	}
	// the stem is quoted so '.' is literal
	if p.Config.re.MatchString("sw-labx5(config)#") {
		t.Error("config prompt treats '.' as a wildcard")
	}
}
