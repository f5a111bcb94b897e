package console

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/newtron-network/newtnet/pkg/model"
)

// fakeSwitch is a scripted switch CLI. It echoes every line, tracks the
// prompt mode and records what it was sent.
type fakeSwitch struct {
	hostname string

	askUser     bool   // prompt "User Name:" before the password
	askPassword bool   // prompt "Password:" after ssh auth
	unprivLogin bool   // land at "host>" and require enable
	exitToUser  bool   // first exit from "#" drops to "host>"
	saveStyle   string // "dell" or "nexus"
	shows       map[string]string
	dropOn      string // close the stream when this line arrives

	mu    sync.Mutex
	lines []string

	toSession   *io.PipeWriter
	fromSession *io.PipeReader
}

type pipeConn struct {
	io.Reader
	io.Writer
	closeFn func()
}

func (c *pipeConn) Close() error {
	c.closeFn()
	return nil
}

// start runs the fake and returns the session side of the stream.
func (f *fakeSwitch) start(t *testing.T) Conn {
	t.Helper()
	sr, sw := io.Pipe() // switch -> session
	cr, cw := io.Pipe() // session -> switch
	f.toSession = sw
	f.fromSession = cr
	go f.serve()

	var once sync.Once
	conn := &pipeConn{Reader: sr, Writer: cw, closeFn: func() {
		once.Do(func() {
			cw.Close()
			sr.Close()
		})
	}}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (f *fakeSwitch) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func (f *fakeSwitch) write(s string) bool {
	_, err := io.WriteString(f.toSession, s)
	return err == nil
}

func (f *fakeSwitch) serve() {
	defer f.toSession.Close()
	defer f.fromSession.Close()
	in := bufio.NewScanner(f.fromSession)

	next := func() (string, bool) {
		if !in.Scan() {
			return "", false
		}
		line := strings.TrimRight(in.Text(), "\r")
		f.mu.Lock()
		f.lines = append(f.lines, line)
		f.mu.Unlock()
		return line, true
	}

	f.write("Welcome\r\n")
	if f.askUser {
		f.write("User Name:")
		if _, ok := next(); !ok {
			return
		}
	}
	if f.askPassword {
		f.write("Password:")
		if _, ok := next(); !ok {
			return
		}
	}

	mode := "main"
	privileged := !f.unprivLogin
	prompt := func() string {
		switch {
		case !privileged:
			return f.hostname + ">"
		case mode == "config":
			return f.hostname + "(config)#"
		case mode == "if":
			return f.hostname + "(config-if-Gi1/0/3)#"
		case mode == "vlan":
			return f.hostname + "(config-vlan)#"
		}
		return f.hostname + "#"
	}
	f.write("\r\n" + prompt())

	for {
		line, ok := next()
		if !ok {
			return
		}
		if f.dropOn != "" && line == f.dropOn {
			return
		}
		out := ""
		switch {
		case !privileged && line == "enable":
			privileged = true
		case !privileged && line == "exit":
			f.write(line + "\r\n")
			return
		case mode == "main" && line == "exit":
			if f.exitToUser {
				privileged = false
			} else {
				f.write(line + "\r\n")
				return
			}
		case mode == "main" && (line == "config" || line == "config terminal"):
			mode = "config"
		case mode == "config" && strings.HasPrefix(line, "int "):
			mode = "if"
		case mode == "config" && strings.HasPrefix(line, "vlan "):
			mode = "vlan"
		case mode == "config" && line == "exit":
			mode = "main"
		case (mode == "if" || mode == "vlan") && line == "exit":
			mode = "config"
		case mode == "main" && line == "copy running-config startup-config":
			if f.saveStyle == "nexus" {
				out = "[########################################] 100%\r\nCopy complete."
				break
			}
			f.write(line + "\r\nOverwrite file [startup-config].... (y/n) [n] ")
			if _, ok := next(); !ok {
				return
			}
			out = "Copy succeeded"
		case mode == "main" && line == "some-unrecognized-command":
			out = "% Unrecognized command"
		case mode == "main" && f.shows[line] != "":
			out = f.shows[line]
		}
		resp := line + "\r\n"
		if out != "" {
			resp += out + "\r\n"
		}
		if !f.write(resp + "\r\n" + prompt()) {
			return
		}
	}
}

func testSwitch(dummy string) model.Switch {
	return model.Switch{
		Label:     "sw0",
		Hostname:  "sw0.example",
		Username:  "admin",
		Password:  "secret",
		DummyVLAN: dummy,
	}
}

func connect(t *testing.T, f *fakeSwitch, v Vendor, save bool) *Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := Connect(ctx, testSwitch("2222"), v, f.start(t), 2*time.Second, save)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	// the prompt may be detected before the fake has seen the prime line
	f.waitFor(t, v.Prime())
	return s
}

// waitFor blocks until line has been recorded.
func (f *fakeSwitch) waitFor(t *testing.T, line string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, l := range f.recorded() {
			if l == line {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("fake switch never received %q", line)
}

// after returns the lines recorded after the first occurrence of marker.
func after(lines []string, marker string) []string {
	for i, l := range lines {
		if l == marker {
			return lines[i:]
		}
	}
	return nil
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
