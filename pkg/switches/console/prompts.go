package console

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// promptRE finds a prompt: a line break followed by text ending in '#'.
var promptRE = Re(`[\r\n]+.+#`)

// Prompts are the three prompt patterns of one console, derived from the
// prompt the switch printed at login.
type Prompts struct {
	Raw       string // literal main prompt, e.g. "sw0#"
	Main      Pattern
	Config    Pattern
	Interface Pattern
}

// PromptsFor derives the prompt patterns from a literal main prompt.
// "sw0#" yields "sw0(config)#" and "sw0(config-if...)#".
func PromptsFor(main string) (Prompts, error) {
	if len(main) < 2 || !strings.HasSuffix(main, "#") {
		return Prompts{}, fmt.Errorf("unrecognized prompt %q", main)
	}
	stem := main[:len(main)-1]
	return Prompts{
		Raw:       main,
		Main:      Literal(main),
		Config:    Literal(stem + "(config)#"),
		Interface: Pattern{re: regexp.MustCompile(regexp.QuoteMeta(stem) + `\(config-if[^)]*\)#`)},
	}, nil
}

// DetectPrompts waits for the next prompt on e and derives the patterns from it.
func DetectPrompts(ctx context.Context, e *Expecter) (Prompts, error) {
	m, err := e.Expect(ctx, promptRE)
	if err != nil {
		return Prompts{}, fmt.Errorf("detecting prompt: %w", err)
	}
	lines := strings.Split(m.Text, "\n")
	return PromptsFor(strings.Trim(lines[len(lines)-1], " \r\n\t"))
}
