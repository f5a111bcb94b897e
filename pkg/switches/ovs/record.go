package ovs

import (
	"fmt"
	"strconv"
	"strings"
)

// Record is one row of `ovs-vsctl list <table>` output.
type Record struct {
	Fields map[string]string // raw column values
}

// ParseRecord parses the "column : value" lines printed by ovs-vsctl list.
func ParseRecord(output string) (*Record, error) {
	r := &Record{Fields: map[string]string{}}
	for n, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("line %d: no column separator in %q", n+1, line)
		}
		r.Fields[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if len(r.Fields) == 0 {
		return nil, fmt.Errorf("empty record")
	}
	return r, nil
}

// Value returns a scalar column with surrounding quotes removed. An empty
// set "[]" reads as "".
func (r *Record) Value(col string) string {
	v := r.Fields[col]
	if v == "[]" {
		return ""
	}
	return unquote(v)
}

// List returns a set column such as `[100, 200]` or `["a, b", c]`.
func (r *Record) List(col string) []string {
	v := strings.TrimSpace(r.Fields[col])
	if !strings.HasPrefix(v, "[") || !strings.HasSuffix(v, "]") {
		if v == "" {
			return nil
		}
		return []string{unquote(v)}
	}
	var out []string
	for _, item := range splitUnquoted(v[1:len(v)-1], ',') {
		out = append(out, unquote(item))
	}
	return out
}

// Map returns a map column such as `{bridge-id="br0", owner="a,b"}`.
func (r *Record) Map(col string) map[string]string {
	v := strings.TrimSpace(r.Fields[col])
	if !strings.HasPrefix(v, "{") || !strings.HasSuffix(v, "}") {
		return nil
	}
	out := map[string]string{}
	for _, item := range splitUnquoted(v[1:len(v)-1], ',') {
		i := indexUnquoted(item, '=')
		if i < 0 {
			continue
		}
		out[unquote(strings.TrimSpace(item[:i]))] = unquote(strings.TrimSpace(item[i+1:]))
	}
	return out
}

// Tag is the port's native VLAN, "" if unset.
func (r *Record) Tag() string { return r.Value("tag") }

// Trunks are the port's tagged VLANs.
func (r *Record) Trunks() []string { return r.List("trunks") }

// indexUnquoted returns the index of the first sep outside a quoted
// string, or -1.
func indexUnquoted(s string, sep byte) int {
	quoted, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case quoted && c == '\\':
			escaped = true
		case c == '"':
			quoted = !quoted
		case !quoted && c == sep:
			return i
		}
	}
	return -1
}

// splitUnquoted splits s on sep outside quoted strings and trims the
// pieces. Empty pieces are dropped.
func splitUnquoted(s string, sep byte) []string {
	var out []string
	for s != "" {
		i := indexUnquoted(s, sep)
		if i < 0 {
			i = len(s)
		}
		if item := strings.TrimSpace(s[:i]); item != "" {
			out = append(out, item)
		}
		if i == len(s) {
			break
		}
		s = s[i+1:]
	}
	return out
}

// unquote strips the quotes ovs-vsctl puts around strings containing
// separators or spaces, resolving backslash escapes.
func unquote(s string) string {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return s
	}
	if u, err := strconv.Unquote(s); err == nil {
		return u
	}
	return s[1 : len(s)-1]
}
