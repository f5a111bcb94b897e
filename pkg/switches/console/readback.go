package console

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/newtron-network/newtnet/pkg/model"
	"github.com/newtron-network/newtnet/pkg/util"
)

// ParseFields parses "Key: Value" lines of show output. Lines without a
// colon continue the previous value. Keys and values are trimmed.
func ParseFields(out string) map[string]string {
	fields := map[string]string{}
	last := ""
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if k, v, ok := strings.Cut(line, ":"); ok && strings.TrimSpace(k) != "" {
			last = strings.TrimSpace(k)
			fields[last] = strings.TrimSpace(v)
			continue
		}
		if last == "" {
			continue
		}
		cont := strings.TrimSpace(line)
		if prev := fields[last]; prev != "" && !strings.HasSuffix(prev, ",") {
			cont = "," + cont
		}
		fields[last] += cont
	}
	return fields
}

var vlanTokenRE = regexp.MustCompile(`^(\d+)(-(\d+))?`)

// parseVLANList expands a switch VLAN list such as "1-3,7,100 (Inactive)".
// Tokens that are not numbers or ranges ("none", "ALL") are ignored.
func parseVLANList(s string) []string {
	var out []string
	for _, tok := range strings.Split(s, ",") {
		m := vlanTokenRE.FindStringSubmatch(strings.TrimSpace(tok))
		if m == nil {
			continue
		}
		ids, err := util.ExpandRange(m[0])
		if err != nil {
			continue
		}
		for _, id := range ids {
			out = append(out, strconv.Itoa(id))
		}
	}
	return out
}

func leadingNumber(s string) string {
	m := vlanTokenRE.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return ""
	}
	return m[1]
}

// portNetworks builds the read-back result from a field map. The dummy VLAN
// is hidden, and the native VLAN is reported only on the native channel.
func portNetworks(fields map[string]string, nativeKey, allowedKey, dummy string) []model.PortNetwork {
	native := leadingNumber(fields[nativeKey])
	if native == dummy {
		native = ""
	}
	var out []model.PortNetwork
	for _, vlan := range parseVLANList(fields[allowedKey]) {
		if vlan == dummy || vlan == native {
			continue
		}
		out = append(out, model.PortNetwork{Channel: model.VLANChannel(vlan), VLAN: vlan})
	}
	if native != "" {
		out = append(out, model.PortNetwork{Channel: model.ChannelNative, VLAN: native})
	}
	return out
}
