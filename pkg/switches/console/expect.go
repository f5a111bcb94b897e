package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/newtron-network/newtnet/pkg/util"
)

// ErrTimeout is returned when no pattern matched within the expect timeout.
var ErrTimeout = errors.New("timed out waiting for console output")

// Pattern is one alternative passed to Expect.
type Pattern struct {
	re  *regexp.Regexp
	eof bool
}

// EOF matches end of stream.
var EOF = Pattern{eof: true}

// Re compiles a regular expression pattern. It panics on a bad expression.
func Re(expr string) Pattern {
	return Pattern{re: regexp.MustCompile(expr)}
}

// Literal matches s exactly.
func Literal(s string) Pattern {
	return Pattern{re: regexp.MustCompile(regexp.QuoteMeta(s))}
}

func (p Pattern) String() string {
	if p.eof {
		return "EOF"
	}
	return p.re.String()
}

// Match describes which pattern matched and the text around it.
type Match struct {
	Index  int    // position of the matching pattern in the Expect call
	Before string // output consumed ahead of the match
	Text   string // the matched text; empty for EOF
}

// Expecter drives an interactive text stream. Output is read continuously
// into a buffer; Expect consumes the buffer up to the end of the earliest
// match, leaving anything after it for the next call.
type Expecter struct {
	w       io.Writer
	timeout time.Duration
	log     *logrus.Entry

	mu     sync.Mutex
	buf    []byte
	eof    bool
	err    error
	notify chan struct{}
}

// NewExpecter starts reading r. Lines are written to w. Each Expect waits at
// most timeout for a match.
func NewExpecter(r io.Reader, w io.Writer, timeout time.Duration, log *logrus.Entry) *Expecter {
	if log == nil {
		log = logrus.NewEntry(util.Logger)
	}
	e := &Expecter{
		w:       w,
		timeout: timeout,
		log:     log,
		notify:  make(chan struct{}, 1),
	}
	go e.readLoop(r)
	return e
}

func (e *Expecter) readLoop(r io.Reader) {
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		e.mu.Lock()
		e.buf = append(e.buf, chunk[:n]...)
		if err != nil {
			e.eof = true
			if err != io.EOF {
				e.err = err
			}
		}
		e.mu.Unlock()

		select {
		case e.notify <- struct{}{}:
		default:
		}
		if err != nil {
			return
		}
	}
}

// scan returns the earliest match in the buffer. Ties go to the pattern
// listed first.
func (e *Expecter) scan(patterns []Pattern) (Match, bool) {
	best, bestStart, bestEnd := -1, 0, 0
	for i, p := range patterns {
		if p.eof {
			continue
		}
		loc := p.re.FindIndex(e.buf)
		if loc == nil {
			continue
		}
		if best == -1 || loc[0] < bestStart {
			best, bestStart, bestEnd = i, loc[0], loc[1]
		}
	}
	if best != -1 {
		m := Match{Index: best, Before: string(e.buf[:bestStart]), Text: string(e.buf[bestStart:bestEnd])}
		e.buf = e.buf[bestEnd:]
		return m, true
	}
	if e.eof {
		for i, p := range patterns {
			if p.eof {
				m := Match{Index: i, Before: string(e.buf)}
				e.buf = nil
				return m, true
			}
		}
	}
	return Match{}, false
}

// Expect waits until one of patterns matches the pending output.
func (e *Expecter) Expect(ctx context.Context, patterns ...Pattern) (Match, error) {
	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	for {
		e.mu.Lock()
		m, ok := e.scan(patterns)
		eof, rerr := e.eof, e.err
		tail := tailOf(e.buf)
		e.mu.Unlock()

		if ok {
			return m, nil
		}
		if eof {
			if rerr != nil {
				return Match{}, fmt.Errorf("console closed while expecting %v: %w", patterns, rerr)
			}
			return Match{}, fmt.Errorf("console closed while expecting %v (last output %q): %w",
				patterns, tail, io.ErrUnexpectedEOF)
		}

		select {
		case <-e.notify:
		case <-timer.C:
			return Match{}, fmt.Errorf("expecting %v (last output %q): %w", patterns, tail, ErrTimeout)
		case <-ctx.Done():
			return Match{}, ctx.Err()
		}
	}
}

func tailOf(b []byte) string {
	const max = 80
	if len(b) > max {
		b = b[len(b)-max:]
	}
	return string(b)
}

// Send writes s unchanged.
func (e *Expecter) Send(s string) error {
	_, err := io.WriteString(e.w, s)
	return err
}

// SendLine logs line and writes it followed by a newline.
func (e *Expecter) SendLine(line string) error {
	e.log.Debugf("Sending to switch: %q", line)
	return e.Send(line + "\n")
}
