package cli

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
)

func TestCapWidths_NoConstraint(t *testing.T) {
	widths := []int{5, 20, 10}
	headers := []string{"ID", "CHANNEL", "STATUS"}
	got := capWidths(widths, headers, 80, 0)
	if !reflect.DeepEqual(got, widths) {
		t.Errorf("expected no change: got %v, want %v", got, widths)
	}
}

func TestCapWidths_ReducesWidest(t *testing.T) {
	// 5 + 60 + 10 + 2*2 = 79, one over
	widths := []int{5, 60, 10}
	headers := []string{"ID", "ERROR", "STATUS"}
	got := capWidths(widths, headers, 78, 0)
	total := 2 * (len(got) - 1)
	for _, w := range got {
		total += w
	}
	if total > 78 {
		t.Errorf("total %d still exceeds 78; widths=%v", total, got)
	}
	if got[0] != widths[0] || got[2] != widths[2] {
		t.Errorf("only the widest column should shrink: %v", got)
	}
}

func TestCapWidths_RespectsHeaderMinimum(t *testing.T) {
	widths := []int{4, 60}
	headers := []string{"ID", "A-VERY-LONG-HEADER-NAME"}
	got := capWidths(widths, headers, 30, 2)
	if got[1] < visualLen("A-VERY-LONG-HEADER-NAME") {
		t.Errorf("column 1 reduced below header minimum: got %d", got[1])
	}
}

func TestCapWidths_CannotReduceFurther(t *testing.T) {
	widths := []int{3, 8}
	headers := []string{"NIC", "NETWORKS"}
	got := capWidths(widths, headers, 5, 0)
	if !reflect.DeepEqual(got, widths) {
		t.Errorf("columns at header minimum changed: %v", got)
	}
}

func TestWrapCell(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		width int
		want  []string
	}{
		{"fits", "hello", 10, []string{"hello"}},
		{"exact fit", "hello", 5, []string{"hello"}},
		{"word wrap", "hello world foo", 11, []string{"hello world", "foo"}},
		{"hard break", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"word boundary", "aa bb cc", 5, []string{"aa bb", "cc"}},
		{"empty", "", 10, []string{""}},
		{"ansi kept when it fits", "\x1b[32mDONE\x1b[0m", 10, []string{"\x1b[32mDONE\x1b[0m"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := wrapCell(tt.in, tt.width); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("wrapCell(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
			}
		})
	}
}

func TestWrapCell_ErrorMessage(t *testing.T) {
	got := wrapCell("switch sw0: connect: SSH dial sw0.example:22: connection refused", 20)
	if len(got) < 2 {
		t.Fatalf("expected wrapping: got %v", got)
	}
	for _, line := range got {
		if visualLen(line) > 20 {
			t.Errorf("line %q exceeds width 20", line)
		}
	}
}

func TestVisualLen(t *testing.T) {
	if n := visualLen("\x1b[31mERROR\x1b[0m"); n != 5 {
		t.Errorf("visualLen of colored ERROR = %d, want 5", n)
	}
	if n := visualLen("gi1/0/3"); n != 7 {
		t.Errorf("visualLen = %d, want 7", n)
	}
}

func TestTableFlush(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTableTo(&buf, "ID", "CHANNEL", "STATUS").WithPrefix("  ")
	tbl.Row("1", "vlan/native", "DONE")
	tbl.Row("12", "vlan/102")
	tbl.Flush()

	want := strings.Join([]string{
		"  ID  CHANNEL      STATUS",
		"  --  -------      ------",
		"  1   vlan/native  DONE",
		"  12  vlan/102",
		"",
	}, "\n")
	if buf.String() != want {
		t.Errorf("table output:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	NewTableTo(&buf, "ID").Flush()
	if buf.Len() != 0 {
		t.Errorf("empty table printed %q", buf.String())
	}
}
