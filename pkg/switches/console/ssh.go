package console

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/newtron-network/newtnet/pkg/model"
)

// Dialer opens a console stream to a switch.
type Dialer interface {
	Dial(ctx context.Context, sw model.Switch) (Conn, error)
}

// SSHDialer opens an interactive shell over SSH.
type SSHDialer struct {
	Port    int           // default 22
	Timeout time.Duration // TCP connect and handshake, default 10s

	// HostKeyCallback verifies the switch host key. Nil accepts any key.
	HostKeyCallback ssh.HostKeyCallback
}

// Dial connects, authenticates with the switch password and starts a shell
// on a PTY.
func (d SSHDialer) Dial(ctx context.Context, sw model.Switch) (Conn, error) {
	port := d.Port
	if port == 0 {
		port = 22
	}
	timeout := d.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	hostKey := d.HostKeyCallback
	if hostKey == nil {
		// Switch management networks rarely carry known_hosts entries.
		hostKey = ssh.InsecureIgnoreHostKey()
	}

	config := &ssh.ClientConfig{
		User: sw.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(sw.Password),
			ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = sw.Password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	}

	addr := net.JoinHostPort(sw.Hostname, strconv.Itoa(port))
	dialer := &net.Dialer{Timeout: timeout}
	tcp, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("SSH dial %s: %w", addr, err)
	}
	tcp.SetDeadline(time.Now().Add(timeout))
	c, chans, reqs, err := ssh.NewClientConn(tcp, addr, config)
	if err != nil {
		tcp.Close()
		return nil, fmt.Errorf("SSH handshake %s: %w", addr, err)
	}
	tcp.SetDeadline(time.Time{})
	client := ssh.NewClient(c, chans, reqs)

	conn, err := openShell(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("SSH shell %s: %w", addr, err)
	}
	return conn, nil
}

type sshConn struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
}

func openShell(client *ssh.Client) (*sshConn, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, err
	}
	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 38400,
		ssh.TTY_OP_OSPEED: 38400,
	}
	if err := session.RequestPty("vt100", 200, 512, modes); err != nil {
		session.Close()
		return nil, err
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, err
	}
	if err := session.Shell(); err != nil {
		session.Close()
		return nil, err
	}
	return &sshConn{client: client, session: session, stdin: stdin, stdout: stdout}, nil
}

func (c *sshConn) Read(p []byte) (int, error)  { return c.stdout.Read(p) }
func (c *sshConn) Write(p []byte) (int, error) { return c.stdin.Write(p) }

func (c *sshConn) Close() error {
	c.stdin.Close()
	c.session.Close()
	return c.client.Close()
}
