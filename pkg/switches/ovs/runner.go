package ovs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/newtron-network/newtnet/pkg/util"
)

// Runner executes one control-plane command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, args ...string) ([]byte, error)
}

// ExecRunner runs a local command, optionally under sudo.
type ExecRunner struct {
	Command string // default "ovs-vsctl"
	Sudo    bool
}

func (r ExecRunner) argv(args []string) []string {
	cmd := r.Command
	if cmd == "" {
		cmd = "ovs-vsctl"
	}
	argv := append([]string{cmd}, args...)
	if r.Sudo {
		argv = append([]string{"sudo", "-n"}, argv...)
	}
	return argv
}

// Run executes the command. A non-zero exit is returned with the command's
// standard error attached.
func (r ExecRunner) Run(ctx context.Context, args ...string) ([]byte, error) {
	argv := r.argv(args)
	util.WithField("argv", argv).Debugf("Running %s", argv[0])

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		util.WithField("argv", argv).Errorf("Command failed: %v: %s", err, msg)
		return nil, fmt.Errorf("%s: %w: %s", strings.Join(argv, " "), err, msg)
	}
	return stdout.Bytes(), nil
}
